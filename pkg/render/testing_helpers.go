package render

// NopHost is a Host that discards everything the provider sends.
type NopHost struct{}

func (NopHost) CreateChannel(int64, float32)                                      {}
func (NopHost) NotifyRootSizeChanged(int64, float32, float32)                     {}
func (NopHost) SendEvent(int64, int32, string, []byte, int, int, bool, bool)      {}
func (NopHost) SendCallback(int64, PromiseCode, string, string, []byte, int, int) {}

// NopDelegate is a Delegate that accepts every command. Embed it to
// implement only the methods a consumer cares about.
type NopDelegate struct{}

func (NopDelegate) CreateNode([]any) error                            { return nil }
func (NopDelegate) UpdateNode([]any) error                            { return nil }
func (NopDelegate) DeleteNode([]int32) error                          { return nil }
func (NopDelegate) UpdateLayout([]any) error                          { return nil }
func (NopDelegate) UpdateEventListener([]any) error                   { return nil }
func (NopDelegate) CallUIFunction(int32, string, string, []any) error { return nil }
func (NopDelegate) Measure(int32, float32, MeasureMode, float32, MeasureMode) (float32, float32) {
	return 0, 0
}
func (NopDelegate) StartBatch()             {}
func (NopDelegate) EndBatch()               {}
func (NopDelegate) HandleRenderError(error) {}

// ResetForTest unregisters every runtime. Pass it to testing.T.Cleanup.
func ResetForTest() {
	registry.mu.Lock()
	clear(registry.providers)
	registry.mu.Unlock()
}
