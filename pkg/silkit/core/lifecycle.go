package core

import (
	"sync"
	"time"

	"github.com/silkit-go/silkit/pkg/silkit/types"
	"github.com/silkit-go/silkit/pkg/silkit/wire"
)

// StateChangeHandler observes every lifecycle transition.
type StateChangeHandler func(old, new types.State, status types.ParticipantStatus)

// VoidHandler is a lifecycle hook; returning an error transitions the
// state machine to Error with the error's text as reason.
type VoidHandler func() error

// AbortHandler is invoked once, with the state the participant was in
// immediately before AbortSimulation was issued.
type AbortHandler func(prior types.State) error

// Lifecycle is the L5 per-participant state machine (§4.6). Handlers run
// on the goroutine that drives the transition: the run goroutine started
// by StartLifecycle, the router's dispatch goroutine for received
// SystemCommands, a goroutine started for the stop step, or the caller of
// Pause, Continue, Stop and AbortSimulation. Handler invocations are not
// serialized onto one goroutine.
type Lifecycle struct {
	localName string
	mode      types.OperationMode
	router    *Router
	logger    types.Logger

	mu     sync.Mutex
	state  types.State
	reason string

	requiredPeers map[string]bool
	connected     map[string]bool
	readyOnce     sync.Once
	readyCh       chan struct{}

	runCh  chan struct{}
	runOnce sync.Once

	terminalCh   chan struct{}
	terminalOnce sync.Once

	doneCh chan types.State

	communicationReadyHandlers []VoidHandler
	startingHandlers           []VoidHandler
	stopHandler                VoidHandler
	shutdownHandler            VoidHandler
	abortHandler               AbortHandler
	stateChangeHandlers        []StateChangeHandler
}

func NewLifecycle(localName string, cfg types.LifecycleConfiguration, router *Router, logger types.Logger) *Lifecycle {
	l := &Lifecycle{
		localName:     localName,
		mode:          cfg.OperationMode,
		router:        router,
		logger:        logger,
		state:         types.Invalid,
		requiredPeers: make(map[string]bool),
		connected:     make(map[string]bool),
		readyCh:       make(chan struct{}),
		runCh:         make(chan struct{}),
		terminalCh:    make(chan struct{}),
		doneCh:        make(chan types.State, 1),
	}
	router.OnControl(ReceiverSystemCommand, l.onSystemCommand)
	return l
}

// SetRequiredParticipants records the workflow's required set, used to
// gate the automatic ServicesCreated → CommunicationInitializing step.
func (l *Lifecycle) SetRequiredParticipants(names []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requiredPeers = make(map[string]bool, len(names))
	for _, n := range names {
		l.requiredPeers[n] = true
	}
	l.checkReadyLocked()
}

// NotifyPeerConnected informs the lifecycle that peerName's connection is
// live, possibly satisfying the required-peer gate.
func (l *Lifecycle) NotifyPeerConnected(peerName string) {
	l.mu.Lock()
	l.connected[peerName] = true
	l.checkReadyLocked()
	l.mu.Unlock()
}

// NotifyPeerDisconnected is the mirror of NotifyPeerConnected.
func (l *Lifecycle) NotifyPeerDisconnected(peerName string) {
	l.mu.Lock()
	delete(l.connected, peerName)
	l.mu.Unlock()
}

func (l *Lifecycle) checkReadyLocked() {
	for name := range l.requiredPeers {
		if name == l.localName {
			continue
		}
		if !l.connected[name] {
			return
		}
	}
	l.readyOnce.Do(func() { close(l.readyCh) })
}

// AddCommunicationReadyHandler registers a handler run while transitioning
// CommunicationInitializing → CommunicationInitialized.
func (l *Lifecycle) AddCommunicationReadyHandler(h VoidHandler) { l.communicationReadyHandlers = append(l.communicationReadyHandlers, h) }

// AddStartingHandler registers a handler run while transitioning
// CommunicationInitialized → ReadyToRun.
func (l *Lifecycle) AddStartingHandler(h VoidHandler) { l.startingHandlers = append(l.startingHandlers, h) }

// SetStopHandler installs the handler run during Stopping → Stopped.
func (l *Lifecycle) SetStopHandler(h VoidHandler) { l.stopHandler = h }

// SetShutdownHandler installs the handler run during ShuttingDown.
func (l *Lifecycle) SetShutdownHandler(h VoidHandler) { l.shutdownHandler = h }

// SetAbortHandler installs the handler run once on Aborting.
func (l *Lifecycle) SetAbortHandler(h AbortHandler) { l.abortHandler = h }

// AddStateChangeHandler registers an observer invoked on every transition.
func (l *Lifecycle) AddStateChangeHandler(h StateChangeHandler) { l.stateChangeHandlers = append(l.stateChangeHandlers, h) }

// State returns the current lifecycle state.
func (l *Lifecycle) State() types.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// StartLifecycle drives the state machine from Invalid through to one of
// the three terminal states and returns it, blocking the caller until
// then.
func (l *Lifecycle) StartLifecycle() types.State {
	l.transition(types.ServicesCreated, "Services created")

	if l.mode == types.Autonomous {
		l.readyOnce.Do(func() { close(l.readyCh) })
	}

	go l.runLoop()
	return <-l.doneCh
}

func (l *Lifecycle) runLoop() {
	select {
	case <-l.readyCh:
	case <-l.abortedSignal():
		return
	}
	if l.isTerminal() {
		return
	}

	l.transition(types.CommunicationInitializing, "")
	if err := l.runHandlers(l.communicationReadyHandlers); err != nil {
		l.fail(err)
		return
	}

	l.transition(types.CommunicationInitialized, "")
	if err := l.runHandlers(l.startingHandlers); err != nil {
		l.fail(err)
		return
	}

	l.transition(types.ReadyToRun, "")

	if l.mode == types.Autonomous {
		l.transition(types.Running, "")
	} else {
		select {
		case <-l.runCh:
			l.mu.Lock()
			reached := l.state == types.ReadyToRun
			l.mu.Unlock()
			if reached {
				l.transition(types.Running, "Run command")
			}
		case <-l.abortedSignal():
			return
		}
	}
}

func (l *Lifecycle) abortedSignal() <-chan struct{} {
	return l.terminalCh
}

func (l *Lifecycle) markTerminal() {
	l.terminalOnce.Do(func() { close(l.terminalCh) })
}

func (l *Lifecycle) isTerminal() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.IsTerminal() || l.state == types.Aborted
}

func (l *Lifecycle) runHandlers(handlers []VoidHandler) error {
	for _, h := range handlers {
		if l.isTerminal() {
			return nil
		}
		if err := h(); err != nil {
			return err
		}
	}
	return nil
}

// Pause suspends the simulation-step handler while the time-sync barrier
// keeps emitting NextSimTask. Valid only from Running.
func (l *Lifecycle) Pause(reason string) error {
	l.mu.Lock()
	if l.state != types.Running {
		l.mu.Unlock()
		return types.NewFault(types.StateError, "Lifecycle.Pause", errInvalidState(l.state, "Pause"))
	}
	l.mu.Unlock()
	l.transition(types.Paused, reason)
	return nil
}

// Continue resumes from Paused.
func (l *Lifecycle) Continue() error {
	l.mu.Lock()
	if l.state != types.Paused {
		l.mu.Unlock()
		return types.NewFault(types.StateError, "Lifecycle.Continue", errInvalidState(l.state, "Continue"))
	}
	l.mu.Unlock()
	l.transition(types.Running, "")
	return nil
}

// Stop requests an orderly stop. Per this spec's resolution of the
// source's inconsistency, a Coordinated participant may call Stop on
// itself without going through the system controller.
func (l *Lifecycle) Stop(reason string) error {
	l.mu.Lock()
	if l.state != types.Running {
		l.mu.Unlock()
		return types.NewFault(types.StateError, "Lifecycle.Stop", errInvalidState(l.state, "Stop"))
	}
	l.mu.Unlock()
	l.stopInternal(reason)
	return nil
}

func (l *Lifecycle) stopInternal(reason string) {
	l.transition(types.Stopping, reason)
	go func() {
		if l.stopHandler != nil {
			if err := l.stopHandler(); err != nil {
				l.fail(err)
				return
			}
		}
		l.transition(types.Stopped, "")
		if l.mode == types.Autonomous {
			l.shutdownInternal()
		}
	}()
}

func (l *Lifecycle) shutdownInternal() {
	l.transition(types.ShuttingDown, "")
	if l.shutdownHandler != nil {
		if err := l.shutdownHandler(); err != nil {
			l.fail(err)
			return
		}
	}
	l.transition(types.Shutdown, "")
	l.finish(types.Shutdown)
}

// AbortSimulation is idempotent: only the first call has effect.
func (l *Lifecycle) AbortSimulation() {
	l.mu.Lock()
	if l.state == types.Aborting || l.state == types.Aborted {
		l.mu.Unlock()
		return
	}
	prior := l.state
	l.mu.Unlock()

	l.transition(types.Aborting, "AbortSimulation")
	if l.abortHandler != nil {
		l.abortHandler(prior)
	}
	l.transition(types.Aborted, "")
	l.finish(types.Aborted)
}

func (l *Lifecycle) fail(err error) {
	l.transition(types.Error, err.Error())
	l.finish(types.Error)
}

func (l *Lifecycle) finish(final types.State) {
	l.markTerminal()
	select {
	case l.doneCh <- final:
	default:
	}
}

func (l *Lifecycle) onSystemCommand(sender string, _ types.MessageType, body []byte) {
	cmd, err := wire.DecodeSystemCommand(body)
	if err != nil {
		l.logger.Warnf("lifecycle: malformed SystemCommand from %s: %v", sender, err)
		return
	}
	switch cmd.Kind {
	case types.CommandRun:
		l.runOnce.Do(func() { close(l.runCh) })
	case types.CommandStop:
		l.mu.Lock()
		running := l.state == types.Running
		l.mu.Unlock()
		if running {
			l.stopInternal("Stop command")
		}
	case types.CommandShutdown:
		l.mu.Lock()
		stopped := l.state == types.Stopped
		l.mu.Unlock()
		if stopped {
			l.shutdownInternal()
		}
	case types.CommandAbortSimulation:
		l.AbortSimulation()
	}
}

// IssueRun broadcasts a Run SystemCommand; callers use this only when
// they hold the system controller role.
func (l *Lifecycle) IssueRun() error { return l.issueCommand(types.CommandRun) }

// IssueStop broadcasts a Stop SystemCommand.
func (l *Lifecycle) IssueStop() error { return l.issueCommand(types.CommandStop) }

// IssueShutdown broadcasts a Shutdown SystemCommand.
func (l *Lifecycle) IssueShutdown() error { return l.issueCommand(types.CommandShutdown) }

// IssueAbort broadcasts an AbortSimulation SystemCommand.
func (l *Lifecycle) IssueAbort() error { return l.issueCommand(types.CommandAbortSimulation) }

func (l *Lifecycle) issueCommand(kind types.SystemCommandKind) error {
	body := wire.EncodeSystemCommand(types.SystemCommand{Kind: kind})
	return l.router.SendControl(types.MsgSystemCommand, ReceiverSystemCommand, body)
}

func (l *Lifecycle) transition(newState types.State, reason string) {
	now := time.Now().UTC()
	l.mu.Lock()
	old := l.state
	l.state = newState
	if reason != "" {
		l.reason = reason
	}
	status := types.ParticipantStatus{
		ParticipantName: l.localName,
		State:           newState,
		EnterReason:     l.reason,
		EnterTime:       now,
		RefreshTime:     now,
	}
	l.mu.Unlock()

	body := wire.EncodeParticipantStatus(status)
	l.router.SendControl(types.MsgParticipantStatus, ReceiverParticipantStatus, body)

	for _, h := range l.stateChangeHandlers {
		h(old, newState, status)
	}
}
