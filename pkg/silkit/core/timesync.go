package core

import (
	"sync"
	"time"

	"github.com/silkit-go/silkit/pkg/silkit/metrics"
	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

// StepHandler is invoked once per simulation step with the virtual time
// at the start of the step and its duration. A synchronous handler
// returns once the step's work is done; an asynchronous one (registered
// via SetAsyncStepHandler) returns immediately and later signals
// CompleteSimulationStep.
type StepHandler func(now, duration time.Duration)

// TimeSync is the L7 barrier service (§4.7): every time-synchronized peer
// emits one NextSimTask per step and waits for the same from every other
// required peer before advancing its own virtual clock.
type TimeSync struct {
	localName string
	router    *Router
	logger    types.Logger
	metrics   *metrics.Set

	mu              sync.Mutex
	now             time.Duration
	stepDuration    time.Duration
	mode            types.TimeAdvanceMode
	animationFactor float64

	requiredPeers map[string]bool
	received      map[string]types.NextSimTask

	async        bool
	stepHandler  StepHandler
	completeCh   chan struct{}

	abortCh  chan struct{}
	abortOne sync.Once
	stopCh   chan struct{}
	stopOnce sync.Once
	pausedFn func() bool
}

// NewTimeSync builds a TimeSync with the given initial step duration. The
// advance mode and animation factor default to ByMinimalDuration and 0
// (no wall-clock pacing).
func NewTimeSync(localName string, stepDuration time.Duration, router *Router, logger types.Logger, metricsSet *metrics.Set) *TimeSync {
	t := &TimeSync{
		localName:     localName,
		router:        router,
		logger:        logger,
		metrics:       metricsSet,
		stepDuration:  stepDuration,
		mode:          types.ByMinimalDuration,
		requiredPeers: make(map[string]bool),
		received:      make(map[string]types.NextSimTask),
		abortCh:       make(chan struct{}),
		stopCh:        make(chan struct{}),
	}
	router.OnControl(ReceiverNextSimTask, t.onNextSimTask)
	return t
}

// SetRequiredParticipants records the peers whose NextSimTask this
// participant's barrier waits for each step.
func (t *TimeSync) SetRequiredParticipants(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requiredPeers = make(map[string]bool, len(names))
	for _, n := range names {
		if n == t.localName {
			continue
		}
		t.requiredPeers[n] = true
	}
}

// SetAdvanceMode selects ByMinimalDuration or ByOwnDuration.
func (t *TimeSync) SetAdvanceMode(mode types.TimeAdvanceMode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mode = mode
}

// SetAnimationFactor scales wall-clock pacing per unit of virtual time.
func (t *TimeSync) SetAnimationFactor(factor float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.animationFactor = factor
}

// SetStepDuration changes the step length effective from the next step.
func (t *TimeSync) SetStepDuration(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stepDuration = d
}

// SetStepHandler installs the synchronous per-step callback.
func (t *TimeSync) SetStepHandler(h StepHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.async = false
	t.stepHandler = h
}

// SetAsyncStepHandler installs an asynchronous per-step callback; the
// barrier will not emit the following step's NextSimTask until the
// handler calls CompleteSimulationStep.
func (t *TimeSync) SetAsyncStepHandler(h StepHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.async = true
	t.stepHandler = h
}

// CompleteSimulationStep signals that an asynchronous step handler has
// finished its work for the current step.
func (t *TimeSync) CompleteSimulationStep() {
	t.mu.Lock()
	ch := t.completeCh
	t.mu.Unlock()
	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Abort wakes every blocked barrier wait with a cancellation error,
// mirroring the shared AbortSimulation flag described in §5.
func (t *TimeSync) Abort() {
	t.abortOne.Do(func() { close(t.abortCh) })
}

// Stop ends Run's loop without a cancellation error, used when the
// lifecycle leaves Running for an orderly Stop rather than an abort.
func (t *TimeSync) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// SetPauseGate installs a predicate the barrier consults before invoking
// the step handler; while it returns true the barrier keeps emitting
// NextSimTask (§4.7: "virtual-time barrier participation continues") but
// withholds the handler invocation, matching Paused semantics.
func (t *TimeSync) SetPauseGate(fn func() bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pausedFn = fn
}

// Run drives the barrier loop until Abort is called (returning an Abort
// fault) or Stop is called (returning nil). The caller is expected to
// invoke this on its own goroutine.
func (t *TimeSync) Run() error {
	for {
		t.mu.Lock()
		now := t.now
		duration := t.stepDuration
		mode := t.mode
		handler := t.stepHandler
		async := t.async
		animation := t.animationFactor
		t.received = make(map[string]types.NextSimTask)
		t.completeCh = make(chan struct{}, 1)
		completeCh := t.completeCh
		t.mu.Unlock()

		mine := types.NextSimTask{TimePoint: now + duration, Duration: duration}
		if err := t.emit(mine); err != nil {
			return err
		}

		newNow, err := t.awaitBarrier(now, duration, mode)
		if err == errStopped {
			return nil
		}
		if err != nil {
			return err
		}

		t.mu.Lock()
		paused := t.pausedFn != nil && t.pausedFn()
		t.mu.Unlock()

		if animation > 0 {
			select {
			case <-time.After(time.Duration(float64(newNow-now) * animation)):
			case <-t.abortCh:
				return types.NewFault(types.Abort, "TimeSync.Run", errAborted)
			case <-t.stopCh:
				return nil
			}
		}

		// The handler runs with the step's start-of-step time, before the
		// barrier's advance is committed, so the very first step it ever
		// sees is now=0.
		if !paused && handler != nil {
			handler(now, duration)
			if async {
				select {
				case <-completeCh:
				case <-t.abortCh:
					return types.NewFault(types.Abort, "TimeSync.Run", errAborted)
				case <-t.stopCh:
					return nil
				}
			}
		}

		t.mu.Lock()
		t.now = newNow
		t.mu.Unlock()

		if t.metrics != nil {
			t.metrics.BarrierNow.Set(float64(newNow.Nanoseconds()))
		}
	}
}

func (t *TimeSync) emit(task types.NextSimTask) error {
	body := wire.EncodeNextSimTask(task)
	return t.router.SendControl(types.MsgNextSimTask, ReceiverNextSimTask, body)
}

func (t *TimeSync) onNextSimTask(sender string, _ types.MessageType, body []byte) {
	task, err := wire.DecodeNextSimTask(body)
	if err != nil {
		t.logger.Warnf("timesync: malformed NextSimTask from %s: %v", sender, err)
		return
	}
	t.mu.Lock()
	t.received[sender] = task
	t.mu.Unlock()
}

// awaitBarrier blocks until every required peer has contributed this
// step's NextSimTask, then computes the new `now` per the advance mode.
func (t *TimeSync) awaitBarrier(now, duration time.Duration, mode types.TimeAdvanceMode) (time.Duration, error) {
	for {
		t.mu.Lock()
		complete := true
		minNext := now + duration
		for peer := range t.requiredPeers {
			task, ok := t.received[peer]
			if !ok {
				complete = false
				break
			}
			if task.TimePoint < minNext {
				minNext = task.TimePoint
			}
		}
		t.mu.Unlock()

		if complete {
			if mode == types.ByOwnDuration {
				return now + duration, nil
			}
			return minNext, nil
		}

		select {
		case <-time.After(time.Millisecond):
		case <-t.abortCh:
			return 0, types.NewFault(types.Abort, "TimeSync.awaitBarrier", errAborted)
		case <-t.stopCh:
			return 0, errStopped
		}
	}
}

// Now returns the current virtual time.
func (t *TimeSync) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}
