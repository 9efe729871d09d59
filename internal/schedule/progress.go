package schedule

// RunStatus is the coarse progress state reported for a node, or for the
// whole run when the event carries no node.
type RunStatus string

const (
	// RunStatusQueued indicates the node is waiting for its first firing.
	RunStatusQueued RunStatus = "queued"
	// RunStatusWorking indicates the tick is in flight.
	RunStatusWorking RunStatus = "working"
	// RunStatusDone indicates the node fired and committed this tick.
	RunStatusDone RunStatus = "done"
	// RunStatusFailed indicates the node halted on an undeclared error.
	RunStatusFailed RunStatus = "failed"
	// RunStatusHalted indicates a failed producer halted this consumer.
	RunStatusHalted RunStatus = "halted"
)

// RunEvent reports run progress for a node (or for the whole run when Node
// is empty). Events are emitted from the wave barrier on the scheduler
// goroutine, so their order is deterministic for a given plan and seed.
type RunEvent struct {
	Node   string
	Tick   uint64
	Ticks  uint64
	Status RunStatus
	Err    string
}

// ProgressSink consumes run progress events.
type ProgressSink interface {
	OnRunEvent(RunEvent)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- RunEvent
}

func (s ChannelSink) OnRunEvent(ev RunEvent) {
	if s.Ch == nil {
		return
	}
	s.Ch <- ev
}

func (r *runner) notify(ev RunEvent) {
	if r.opts.Progress == nil {
		return
	}
	ev.Ticks = r.ticks
	r.opts.Progress.OnRunEvent(ev)
}
