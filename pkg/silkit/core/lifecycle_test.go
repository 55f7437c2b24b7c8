package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

func TestLifecycle_AutonomousRunsToShutdownWithoutPeers(t *testing.T) {
	router := newTestRouter(t, "alice")
	cfg := types.LifecycleConfiguration{OperationMode: types.Autonomous}
	lc := NewLifecycle("alice", cfg, router, newNoopLogger())

	var states []types.State
	lc.AddStateChangeHandler(func(old, next types.State, _ types.ParticipantStatus) {
		states = append(states, next)
		if next == types.Running {
			go func() { require.NoError(t, lc.Stop("done")) }()
		}
	})

	done := make(chan types.State, 1)
	go func() { done <- lc.StartLifecycle() }()

	select {
	case final := <-done:
		require.True(t, final == types.Stopped || final == types.Shutdown)
	case <-time.After(2 * time.Second):
		t.Fatal("lifecycle never reached a terminal state")
	}
}

func TestLifecycle_AbortSimulationIsIdempotent(t *testing.T) {
	router := newTestRouter(t, "alice")
	cfg := types.LifecycleConfiguration{OperationMode: types.Autonomous}
	lc := NewLifecycle("alice", cfg, router, newNoopLogger())

	go lc.StartLifecycle()
	time.Sleep(10 * time.Millisecond)

	lc.AbortSimulation()
	lc.AbortSimulation()
	require.Equal(t, types.Aborted, lc.State())
}

func TestLifecycle_PauseRejectedBeforeRunning(t *testing.T) {
	router := newTestRouter(t, "alice")
	cfg := types.LifecycleConfiguration{OperationMode: types.Coordinated}
	lc := NewLifecycle("alice", cfg, router, newNoopLogger())

	err := lc.Pause("too early")
	require.Error(t, err)
}
