package verification

import (
	"errors"

	"github.com/Chative-support-agent/server/internal/agent/model"
	"github.com/Chative-support-agent/server/internal/core/metrics"
)

const DefaultMaxAttempts = 3

const (
	ChallengeMessage = "To help with orders I first need to verify your identity. Please provide the email on your account and your 4-digit PIN."
	DeniedMessage    = "I'm sorry, I couldn't verify your identity after several attempts. For your security the verification has been reset. You can start again with the email on your account and your PIN."
)

var (
	// ErrAttemptsExhausted is returned by Fail when the attempt cap is reached
	// and the state has been reset to unverified.
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")
	// ErrCustomerMismatch means a PIN check confirmed a different customer than the one the session expects.
	ErrCustomerMismatch = errors.New("verified customer does not match session")
)

// Machine drives CustomerState through unverified -> pending_pin -> verified.
// It is stateless; every method takes and returns a state value.
type Machine struct {
	maxAttempts int
}

func NewMachine(maxAttempts int) *Machine {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Machine{maxAttempts: maxAttempts}
}

// Challenge opens a PIN challenge. Pending and verified states are returned unchanged.
func (m *Machine) Challenge(s model.CustomerState) model.CustomerState {
	s = s.Normalize()
	if s.Status != model.StatusUnverified {
		return s
	}
	s.Status = model.StatusPendingPin
	s.Verified = false
	s.PinAttempts = 0
	metrics.VerificationTransitions.WithLabelValues("challenge").Inc()
	return s
}

// Confirm records a successful PIN check. An unverified state is treated as if a
// challenge had been opened first. When the session already names a different
// customer the confirmation counts as a failed attempt.
func (m *Machine) Confirm(s model.CustomerState, customerID, name string) (model.CustomerState, error) {
	s = s.Normalize()
	if s.Status == model.StatusVerified {
		if s.CustomerID != "" && s.CustomerID != customerID {
			return s, ErrCustomerMismatch
		}
		return s, nil
	}
	if s.CustomerID != "" && s.CustomerID != customerID {
		next, err := m.Fail(s)
		if err != nil {
			return next, errors.Join(ErrCustomerMismatch, err)
		}
		return next, ErrCustomerMismatch
	}

	if name == "" {
		name = "Customer"
	}
	s.Status = model.StatusVerified
	s.Verified = true
	s.CustomerID = customerID
	s.Name = name
	s.PinAttempts = 0
	metrics.VerificationTransitions.WithLabelValues("confirm").Inc()
	return s, nil
}

// Fail records a wrong PIN. At the attempt cap the state resets to unverified
// and ErrAttemptsExhausted is returned. Verified states are unchanged.
func (m *Machine) Fail(s model.CustomerState) (model.CustomerState, error) {
	s = m.Challenge(s)
	if s.Status == model.StatusVerified {
		return s, nil
	}
	s.PinAttempts++
	if s.PinAttempts >= m.maxAttempts {
		metrics.VerificationTransitions.WithLabelValues("exhausted").Inc()
		return model.CustomerState{Status: model.StatusUnverified}, ErrAttemptsExhausted
	}
	metrics.VerificationTransitions.WithLabelValues("fail").Inc()
	return s, nil
}

// Allowed reports whether a tool may run for this state.
func (m *Machine) Allowed(s model.CustomerState, gated bool) bool {
	if !gated {
		return true
	}
	return s.Normalize().Status == model.StatusVerified
}
