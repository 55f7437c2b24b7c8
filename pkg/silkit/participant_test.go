package silkit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/silkit-go/silkit/pkg/silkit/config"
	"github.com/silkit-go/silkit/pkg/silkit/core"
	"github.com/silkit-go/silkit/pkg/silkit/types"
)

func newTestParticipant(t *testing.T, name string) *Participant {
	t.Helper()
	cfg := config.Default(name)
	cfg.Middleware.AcceptorURIs = []string{"tcp://127.0.0.1:0"}
	p, err := NewParticipant(cfg, types.LifecycleConfiguration{OperationMode: types.Autonomous})
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func TestParticipant_ConstructionWiresSubComponents(t *testing.T) {
	p := newTestParticipant(t, "alice")
	require.Equal(t, "alice", p.Name())
	require.NotNil(t, p.Router())
	require.NotNil(t, p.Discovery())
	require.NotNil(t, p.Lifecycle())
	require.NotNil(t, p.Monitor())
	require.NotNil(t, p.TimeSync())
}

func TestParticipant_JoinSimulationExchangesBootstrapAndConnects(t *testing.T) {
	registry := core.NewRegistry(p2Logger(), nil, nil)
	t.Cleanup(registry.Close)
	require.NoError(t, registry.ProvideDomain("tcp", "127.0.0.1:0"))
	regAddr := registry.Addr().String()

	alice := newTestParticipant(t, "alice")
	bob := newTestParticipant(t, "bob")

	workflow := types.WorkflowConfiguration{RequiredParticipantNames: []string{"alice", "bob"}}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, alice.JoinSimulation(ctx, "tcp", regAddr, workflow))
	require.NoError(t, bob.JoinSimulation(ctx, "tcp", regAddr, workflow))

	require.Eventually(t, func() bool {
		return len(alice.transport.ConnectedPeers()) == 1 && len(bob.transport.ConnectedPeers()) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func p2Logger() types.Logger { return noopParticipantLogger{} }

type noopParticipantLogger struct{}

func (noopParticipantLogger) Info(v ...interface{})                  {}
func (noopParticipantLogger) Infof(format string, v ...interface{})  {}
func (noopParticipantLogger) Warn(v ...interface{})                  {}
func (noopParticipantLogger) Warnf(format string, v ...interface{})  {}
func (noopParticipantLogger) Error(v ...interface{})                 {}
func (noopParticipantLogger) Errorf(format string, v ...interface{}) {}
func (noopParticipantLogger) Debug(v ...interface{})                 {}
func (noopParticipantLogger) Debugf(format string, v ...interface{}) {}
func (noopParticipantLogger) Fatal(v ...interface{})                 {}
func (noopParticipantLogger) Fatalf(format string, v ...interface{}) {}
func (noopParticipantLogger) ToggleDebug(value bool) bool            { return value }
func (l noopParticipantLogger) With(fields types.Fields) types.Logger { return l }
