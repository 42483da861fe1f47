package model

// VerificationStatus tracks where a session is in the PIN verification flow.
type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusPendingPin VerificationStatus = "pending_pin"
	StatusVerified   VerificationStatus = "verified"
)

// CustomerState is carried by the client between turns. Decoding into this
// struct drops any keys the client adds.
type CustomerState struct {
	Verified    bool               `json:"verified"`
	Name        string             `json:"name,omitempty"`
	CustomerID  string             `json:"customer_id,omitempty"`
	Status      VerificationStatus `json:"verification_status,omitempty"`
	PinAttempts int                `json:"pin_attempts,omitempty"`
	Token       string             `json:"token,omitempty"`
}

// Normalize fills Status from the legacy verified flag and keeps the two consistent.
func (c CustomerState) Normalize() CustomerState {
	switch c.Status {
	case StatusVerified:
		c.Verified = true
	case StatusPendingPin, StatusUnverified:
		c.Verified = false
	default:
		if c.Verified {
			c.Status = StatusVerified
		} else {
			c.Status = StatusUnverified
		}
	}
	if c.PinAttempts < 0 {
		c.PinAttempts = 0
	}
	return c
}

// Snapshot is the copy persisted with a turn; the signed token never leaves the response.
func (c CustomerState) Snapshot() CustomerState {
	c.Token = ""
	return c
}
