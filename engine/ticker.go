package engine

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blockberries/chainberry/types"
)

const (
	// deadlineChannelSize is the buffer size for the deadline channel
	deadlineChannelSize = 100
)

// Deadline identifies one scheduled round-expiry check.
type Deadline struct {
	ChainID types.ChainID
	Height  uint64
	Round   types.Round
	At      time.Time
}

// DeadlineTicker schedules round-deadline checks across chains. At
// most one deadline is pending per chain; scheduling a new one
// replaces (and cancels) the previous, and a certificate arriving
// first cancels the check entirely, so no stale timeout fires after
// confirmation. Fired deadlines are delivered on Chan; the receiver
// decides whether the round actually expired (via the manager's
// Tick), the ticker is pure clockwork.
type DeadlineTicker struct {
	mu      sync.Mutex
	timers  map[types.ChainID]*time.Timer
	tockCh  chan Deadline
	stopCh  chan struct{}
	running bool

	// Metrics
	droppedDeadlines uint64
}

// NewDeadlineTicker creates a stopped ticker.
func NewDeadlineTicker() *DeadlineTicker {
	return &DeadlineTicker{
		timers: make(map[types.ChainID]*time.Timer),
		tockCh: make(chan Deadline, deadlineChannelSize),
		stopCh: make(chan struct{}),
	}
}

// Start makes the ticker accept schedules.
func (dt *DeadlineTicker) Start() {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	dt.running = true
}

// Stop cancels all pending deadlines. No events are delivered after
// Stop returns.
func (dt *DeadlineTicker) Stop() {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if !dt.running {
		return
	}
	dt.running = false

	close(dt.stopCh)
	for chainID, timer := range dt.timers {
		timer.Stop()
		delete(dt.timers, chainID)
	}
}

// Chan returns the channel that delivers fired deadlines.
func (dt *DeadlineTicker) Chan() <-chan Deadline {
	return dt.tockCh
}

// Schedule arms the chain's deadline check, replacing any pending
// one. A zero At cancels without rescheduling.
func (dt *DeadlineTicker) Schedule(d Deadline) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if !dt.running {
		return
	}
	if timer := dt.timers[d.ChainID]; timer != nil {
		timer.Stop()
		delete(dt.timers, d.ChainID)
	}
	if d.At.IsZero() {
		return
	}

	dt.timers[d.ChainID] = time.AfterFunc(time.Until(d.At), func() {
		select {
		case dt.tockCh <- d:
		case <-dt.stopCh:
			// Ticker stopped, don't send
		default:
			count := atomic.AddUint64(&dt.droppedDeadlines, 1)
			log.Printf("[WARN] engine: dropped deadline due to full channel: chain=%s height=%d round=%s total_dropped=%d",
				d.ChainID, d.Height, d.Round, count)
		}
	})
}

// Cancel drops the chain's pending deadline, if any. Called when a
// certificate forms before the round expires.
func (dt *DeadlineTicker) Cancel(chainID types.ChainID) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if timer := dt.timers[chainID]; timer != nil {
		timer.Stop()
		delete(dt.timers, chainID)
	}
}

// DroppedDeadlines returns the number of deadline events dropped
// due to a full channel.
func (dt *DeadlineTicker) DroppedDeadlines() uint64 {
	return atomic.LoadUint64(&dt.droppedDeadlines)
}
