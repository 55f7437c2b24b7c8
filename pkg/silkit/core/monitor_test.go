package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/silkit-go/silkit/pkg/silkit/types"
)

func newTestRouter(t *testing.T, name string) *Router {
	t.Helper()
	transport := NewTransport(name, 1, newNoopLogger(), nil, nil, nil)
	router := NewRouter(name, transport, NewDiscovery(name), newNoopLogger(), nil)
	t.Cleanup(router.Close)
	return router
}

func TestMonitor_RequiresAllParticipantsBeforeAggregating(t *testing.T) {
	router := newTestRouter(t, "alice")
	m := NewMonitor(router, nil)

	m.onWorkflowConfiguration("", types.MsgWorkflowConfiguration,
		encodeWorkflowConfigurationForTest(t, types.WorkflowConfiguration{RequiredParticipantNames: []string{"alice", "bob"}}))
	require.Equal(t, types.Invalid, m.SystemState())

	m.onParticipantStatus("", types.MsgParticipantStatus,
		encodeParticipantStatusForTest(t, types.ParticipantStatus{ParticipantName: "alice", State: types.Running}))
	require.Equal(t, types.Invalid, m.SystemState())

	m.onParticipantStatus("", types.MsgParticipantStatus,
		encodeParticipantStatusForTest(t, types.ParticipantStatus{ParticipantName: "bob", State: types.ReadyToRun}))
	require.Equal(t, types.ReadyToRun, m.SystemState())
}

func TestMonitor_ErrorOverridesMinimum(t *testing.T) {
	router := newTestRouter(t, "alice")
	m := NewMonitor(router, nil)
	m.onWorkflowConfiguration("", types.MsgWorkflowConfiguration,
		encodeWorkflowConfigurationForTest(t, types.WorkflowConfiguration{RequiredParticipantNames: []string{"alice", "bob"}}))
	m.onParticipantStatus("", types.MsgParticipantStatus,
		encodeParticipantStatusForTest(t, types.ParticipantStatus{ParticipantName: "alice", State: types.Running}))
	m.onParticipantStatus("", types.MsgParticipantStatus,
		encodeParticipantStatusForTest(t, types.ParticipantStatus{ParticipantName: "bob", State: types.Error}))

	require.Equal(t, types.Error, m.SystemState())
}

func TestMonitor_NotifiesHandlersOnlyOnChange(t *testing.T) {
	router := newTestRouter(t, "alice")
	m := NewMonitor(router, nil)
	var transitions int
	m.AddStateChangeHandler(func(old, next types.State) { transitions++ })

	m.onWorkflowConfiguration("", types.MsgWorkflowConfiguration,
		encodeWorkflowConfigurationForTest(t, types.WorkflowConfiguration{RequiredParticipantNames: []string{"alice"}}))
	m.onParticipantStatus("", types.MsgParticipantStatus,
		encodeParticipantStatusForTest(t, types.ParticipantStatus{ParticipantName: "alice", State: types.Running}))
	m.onParticipantStatus("", types.MsgParticipantStatus,
		encodeParticipantStatusForTest(t, types.ParticipantStatus{ParticipantName: "alice", State: types.Running}))

	require.Equal(t, 1, transitions)
}
