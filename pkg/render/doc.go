// Package render bridges DOM commands from the native render manager to a
// consuming render delegate, and carries events and promise callbacks back.
//
// Each scripting runtime instance gets one [Provider]. The native side calls
// the provider's boundary methods in this order for every frame of work:
//
//	StartBatch -> CreateNode / UpdateNode / DeleteNode -> Measure ->
//	UpdateEventListener -> UpdateLayout -> EndBatch
//
// Payload commands arrive as byte regions encoded with package codec and are
// decoded into argument lists before the delegate sees them. Failures are
// reported to the delegate's error handler and never abort the channel.
//
// A provider, including its codec buffers and string table, belongs to a
// single goroutine. Transports that receive commands concurrently must
// funnel them through the provider's [Executor].
package render
