package verification

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chative-support-agent/server/internal/agent/model"
)

const customerID = "5f0c2a9e-3b1d-4c2e-9a7f-1d2e3f4a5b6c"

func TestChallengeOpensPendingPin(t *testing.T) {
	m := NewMachine(0)

	s := m.Challenge(model.CustomerState{})
	assert.Equal(t, model.StatusPendingPin, s.Status)
	assert.False(t, s.Verified)
	assert.Zero(t, s.PinAttempts)

	verified := model.CustomerState{Verified: true, CustomerID: customerID, Name: "Jane"}
	assert.Equal(t, model.StatusVerified, m.Challenge(verified).Status)
}

func TestThreeWrongPinsResetToUnverified(t *testing.T) {
	m := NewMachine(3)
	s := m.Challenge(model.CustomerState{})

	var err error
	s, err = m.Fail(s)
	require.NoError(t, err)
	assert.Equal(t, 1, s.PinAttempts)
	assert.Equal(t, model.StatusPendingPin, s.Status)

	s, err = m.Fail(s)
	require.NoError(t, err)
	assert.Equal(t, 2, s.PinAttempts)

	s, err = m.Fail(s)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, model.StatusUnverified, s.Status)
	assert.Zero(t, s.PinAttempts)
	assert.False(t, s.Verified)
}

func TestConfirmFromPendingAndUnverified(t *testing.T) {
	m := NewMachine(3)

	for _, start := range []model.CustomerState{
		{},
		m.Challenge(model.CustomerState{}),
	} {
		s, err := m.Confirm(start, customerID, "Jane Doe")
		require.NoError(t, err)
		assert.True(t, s.Verified)
		assert.Equal(t, model.StatusVerified, s.Status)
		assert.Equal(t, customerID, s.CustomerID)
		assert.Equal(t, "Jane Doe", s.Name)
		assert.True(t, m.Allowed(s, true))
	}
}

func TestConfirmMismatchCountsAsFailure(t *testing.T) {
	m := NewMachine(3)
	start := model.CustomerState{Status: model.StatusPendingPin, CustomerID: customerID}

	s, err := m.Confirm(start, "other-id", "Mallory")
	assert.ErrorIs(t, err, ErrCustomerMismatch)
	assert.False(t, s.Verified)
	assert.Equal(t, 1, s.PinAttempts)

	start.PinAttempts = 2
	s, err = m.Confirm(start, "other-id", "Mallory")
	assert.True(t, errors.Is(err, ErrAttemptsExhausted))
	assert.Equal(t, model.StatusUnverified, s.Status)
}

func TestVerifiedIsSticky(t *testing.T) {
	m := NewMachine(3)
	s := model.CustomerState{Verified: true, CustomerID: customerID, Name: "Jane"}

	after, err := m.Fail(s)
	require.NoError(t, err)
	assert.True(t, after.Verified)

	after, err = m.Confirm(s, customerID, "Jane")
	require.NoError(t, err)
	assert.True(t, after.Verified)
}

func TestAllowed(t *testing.T) {
	m := NewMachine(3)
	assert.True(t, m.Allowed(model.CustomerState{}, false))
	assert.False(t, m.Allowed(model.CustomerState{}, true))
	assert.False(t, m.Allowed(model.CustomerState{Status: model.StatusPendingPin}, true))
	assert.True(t, m.Allowed(model.CustomerState{Verified: true}, true))
}
