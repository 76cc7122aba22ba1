package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// TLSConnectionEstablished is a no-op.
func (n *NoopCollector) TLSConnectionEstablished() {}

// AuthAttempt is a no-op.
func (n *NoopCollector) AuthAttempt(mechanism string, success bool) {}

// CommandProcessed is a no-op.
func (n *NoopCollector) CommandProcessed(command string) {}

// SelectedMailbox is a no-op.
func (n *NoopCollector) SelectedMailbox(readOnly bool) {}

// FetchProcessed is a no-op.
func (n *NoopCollector) FetchProcessed(messageCount int) {}

// SearchProcessed is a no-op.
func (n *NoopCollector) SearchProcessed(matchCount int) {}

// IdleStarted is a no-op.
func (n *NoopCollector) IdleStarted() {}

// IdleEnded is a no-op.
func (n *NoopCollector) IdleEnded() {}

// MessageAppended is a no-op.
func (n *NoopCollector) MessageAppended(sizeBytes int64) {}

// MessageExpunged is a no-op.
func (n *NoopCollector) MessageExpunged() {}
