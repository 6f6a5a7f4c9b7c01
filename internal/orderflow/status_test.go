package orderflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityTransitionAlwaysAllowed(t *testing.T) {
	for _, m := range []*Machine{PurchaseMachine(), SalesMachine()} {
		for status := range m.ranks {
			require.NoError(t, m.CanTransition(status, status), "family=%s status=%s", m.Family(), status)
		}
		require.NoError(t, m.CanTransition(StatusCancelled, StatusCancelled))
	}
}

func TestForwardOnlyProgression(t *testing.T) {
	m := PurchaseMachine()

	require.NoError(t, m.CanTransition(StatusDraft, StatusSent))
	require.NoError(t, m.CanTransition(StatusDraft, StatusCompleted))
	require.NoError(t, m.CanTransition(StatusSent, StatusApproved))

	err := m.CanTransition(StatusApproved, StatusSent)
	require.Error(t, err)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, StatusApproved, invalid.Current)
	require.Equal(t, StatusSent, invalid.Requested)
}

func TestCancellationEscapeHatch(t *testing.T) {
	po := PurchaseMachine()
	require.NoError(t, po.CanTransition(StatusDraft, StatusCancelled))
	require.NoError(t, po.CanTransition(StatusSent, StatusCancelled))
	require.NoError(t, po.CanTransition(StatusApproved, StatusCancelled))

	so := SalesMachine()
	require.NoError(t, so.CanTransition(StatusShipped, StatusCancelled))
}

func TestTerminalLock(t *testing.T) {
	po := PurchaseMachine()
	for _, requested := range []Status{StatusDraft, StatusSent, StatusApproved, StatusCancelled} {
		err := po.CanTransition(StatusCompleted, requested)
		require.Error(t, err, "requested=%s", requested)
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
	}
	require.NoError(t, po.CanTransition(StatusCompleted, StatusCompleted))

	// Both families block cancellation once terminal.
	so := SalesMachine()
	require.Error(t, so.CanTransition(StatusDelivered, StatusCancelled))
	require.Error(t, so.CanTransition(StatusCancelled, StatusDraft))
}

func TestUnknownStatusRejected(t *testing.T) {
	m := PurchaseMachine()
	require.ErrorIs(t, m.CanTransition(StatusDraft, StatusShipped), ErrUnknownStatus)
	require.ErrorIs(t, m.CanTransition("BOGUS", StatusSent), ErrUnknownStatus)
}
