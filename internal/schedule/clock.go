package schedule

import (
	"sync"
	"time"
)

// Clock supplies timestamps for effect events and time_dependent blocks.
type Clock interface {
	NowMs() uint64
	// AdvanceTick moves simulated time to the start of a tick; real clocks
	// ignore it.
	AdvanceTick(tick uint64)
}

// VirtualClock advances by a fixed step per tick and never blocks. Replays
// with the same step produce the same timestamps.
type VirtualClock struct {
	mu     sync.Mutex
	StepMs uint64 // per-tick advance; 0 means 1ms
	nowMs  uint64
}

func (c *VirtualClock) NowMs() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nowMs
}

func (c *VirtualClock) AdvanceTick(tick uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	step := c.StepMs
	if step == 0 {
		step = 1
	}
	c.nowMs = tick * step
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) NowMs() uint64 {
	ms := time.Now().UnixMilli()
	if ms < 0 {
		return 0
	}
	return uint64(ms)
}

func (RealClock) AdvanceTick(uint64) {}
