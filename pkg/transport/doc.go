// Package transport carries render commands and host notifications across a
// process boundary.
//
// Commands travel as binary frames:
//
//	kind u8 | runtimeID i64 | body
//
// with all integers big endian. Replies are
//
//	status u8 (0 ok) | value i64
//	status u8 (1 error) | message
//
// Host notifications (channel creation, root size, events and promise
// callbacks) flow the other way as frames of the same shape, fanned out by a
// [Hub] that implements render.Host.
//
// Two carriers are provided: a length-prefixed stream protocol over TCP
// ([Listen], [Dial]) and a gRPC service named renderbridge.Bridge that moves
// the same frames with a pass-through codec ([RegisterGRPC],
// [NewGRPCClient]).
package transport
