package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

func TestTimeSync_SingleParticipantAdvancesImmediately(t *testing.T) {
	router := newTestRouter(t, "alice")
	ts := NewTimeSync("alice", time.Millisecond, router, newNoopLogger(), nil)

	steps := make(chan time.Duration, 3)
	ts.SetStepHandler(func(now, duration time.Duration) { steps <- now })

	go ts.Run()
	t.Cleanup(ts.Stop)

	expected := time.Duration(0)
	for i := 0; i < 3; i++ {
		select {
		case now := <-steps:
			require.Equal(t, expected, now)
			expected += time.Millisecond
		case <-time.After(time.Second):
			t.Fatalf("step %d never arrived", i)
		}
	}
}

func TestTimeSync_AsyncStepWaitsForCompletion(t *testing.T) {
	router := newTestRouter(t, "alice")
	ts := NewTimeSync("alice", time.Millisecond, router, newNoopLogger(), nil)

	entered := make(chan struct{}, 1)
	ts.SetAsyncStepHandler(func(now, duration time.Duration) {
		entered <- struct{}{}
	})

	go ts.Run()
	t.Cleanup(ts.Stop)

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("async step handler never invoked")
	}

	// Without CompleteSimulationStep the barrier must not advance again.
	select {
	case <-entered:
		t.Fatal("second step ran before CompleteSimulationStep")
	case <-time.After(50 * time.Millisecond):
	}

	ts.CompleteSimulationStep()
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("step did not resume after CompleteSimulationStep")
	}
}

func TestTimeSync_AwaitBarrierBlocksOnMissingPeer(t *testing.T) {
	router := newTestRouter(t, "alice")
	ts := NewTimeSync("alice", time.Millisecond, router, newNoopLogger(), nil)
	ts.SetRequiredParticipants([]string{"alice", "bob"})

	done := make(chan error, 1)
	go func() {
		_, err := ts.awaitBarrier(0, time.Millisecond, types.ByMinimalDuration)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("barrier resolved without bob's NextSimTask")
	case <-time.After(50 * time.Millisecond):
	}
	ts.Stop()

	select {
	case err := <-done:
		require.Equal(t, errStopped, err)
	case <-time.After(time.Second):
		t.Fatal("awaitBarrier never returned after Stop")
	}
}
