package core

import (
	"sync"

	"github.com/silkit-go/silkit/pkg/silkit/metrics"
	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

// SystemStateHandler observes every change to the aggregate system state.
type SystemStateHandler func(old, new types.State)

// Monitor is the L6 system monitor (§4.8): purely observational aggregation
// of every participant's ParticipantStatus into one SystemState, the
// lattice minimum over the workflow's required-participant set, with
// Error and Aborted taking precedence regardless of their numeric value.
type Monitor struct {
	mu       sync.Mutex
	required map[string]bool
	statuses map[string]types.ParticipantStatus
	state    types.State
	metrics  *metrics.Set

	handlers []SystemStateHandler
}

func NewMonitor(router *Router, metricsSet *metrics.Set) *Monitor {
	m := &Monitor{
		required: make(map[string]bool),
		statuses: make(map[string]types.ParticipantStatus),
		state:    types.Invalid,
		metrics:  metricsSet,
	}
	router.OnControl(ReceiverParticipantStatus, m.onParticipantStatus)
	router.OnControl(ReceiverWorkflowConfiguration, m.onWorkflowConfiguration)
	return m
}

// AddStateChangeHandler registers an observer invoked whenever the
// aggregate system state changes.
func (m *Monitor) AddStateChangeHandler(h SystemStateHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// SystemState returns the current aggregate.
func (m *Monitor) SystemState() types.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) onWorkflowConfiguration(_ string, _ types.MessageType, body []byte) {
	wc, err := wire.DecodeWorkflowConfiguration(body)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.required = make(map[string]bool, len(wc.RequiredParticipantNames))
	for _, n := range wc.RequiredParticipantNames {
		m.required[n] = true
	}
	changed, old, next := m.recomputeLocked()
	m.mu.Unlock()
	m.notify(changed, old, next)
}

func (m *Monitor) onParticipantStatus(_ string, _ types.MessageType, body []byte) {
	status, err := wire.DecodeParticipantStatus(body)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.statuses[status.ParticipantName] = status
	changed, old, next := m.recomputeLocked()
	m.mu.Unlock()
	m.notify(changed, old, next)
}

func (m *Monitor) notify(changed bool, old, next types.State) {
	if !changed {
		return
	}
	if m.metrics != nil {
		m.metrics.ParticipantState.WithLabelValues(old.String()).Set(0)
		m.metrics.ParticipantState.WithLabelValues(next.String()).Set(1)
	}
	m.mu.Lock()
	handlers := make([]SystemStateHandler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()
	for _, h := range handlers {
		h(old, next)
	}
}

// lattice is the numeric precedence order aggregation walks, lowest first,
// with Error and Aborted always winning regardless of other participants'
// positions.
func lattice(s types.State) int {
	switch s {
	case types.Error:
		return 1000
	case types.Aborted:
		return 999
	default:
		return int(s)
	}
}

func (m *Monitor) recomputeLocked() (changed bool, old, next types.State) {
	if len(m.required) == 0 {
		return false, m.state, m.state
	}
	var minState types.State = types.Shutdown
	haveAll := true
	override := types.Invalid
	hasOverride := false

	for name := range m.required {
		status, ok := m.statuses[name]
		if !ok {
			haveAll = false
			minState = types.Invalid
			continue
		}
		if status.State == types.Error || status.State == types.Aborted {
			if !hasOverride || lattice(status.State) > lattice(override) {
				override = status.State
				hasOverride = true
			}
			continue
		}
		if status.State < minState {
			minState = status.State
		}
	}

	next = minState
	if hasOverride {
		next = override
	}
	if !haveAll && !hasOverride {
		next = types.Invalid
	}

	old = m.state
	if next == old {
		return false, old, next
	}
	m.state = next
	return true, old, next
}
