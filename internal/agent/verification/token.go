package verification

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Chative-support-agent/server/internal/agent/model"
	logx "github.com/Chative-support-agent/server/pkg/logger"
)

const tokenIssuer = "support-agent"

type stateClaims struct {
	Verified    bool                     `json:"verified"`
	CustomerID  string                   `json:"customer_id,omitempty"`
	Name        string                   `json:"name,omitempty"`
	Status      model.VerificationStatus `json:"verification_status"`
	PinAttempts int                      `json:"pin_attempts"`
	jwt.RegisteredClaims
}

// TokenSigner signs the verification fields of CustomerState so a client cannot
// promote itself to verified. A signer with an empty key is disabled and
// trusts client state as sent.
type TokenSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewTokenSigner(key string, ttl time.Duration) *TokenSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenSigner{key: []byte(key), ttl: ttl, now: time.Now}
}

func (s *TokenSigner) Enabled() bool {
	return s != nil && len(s.key) > 0
}

// Sign returns the state with a fresh token attached.
func (s *TokenSigner) Sign(state model.CustomerState) (model.CustomerState, error) {
	state = state.Normalize()
	state.Token = ""
	if !s.Enabled() {
		return state, nil
	}
	now := s.now()
	claims := stateClaims{
		Verified:    state.Verified,
		CustomerID:  state.CustomerID,
		Name:        state.Name,
		Status:      state.Status,
		PinAttempts: state.PinAttempts,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return state, fmt.Errorf("sign customer state: %w", err)
	}
	state.Token = signed
	return state, nil
}

// Verify returns the trusted view of an inbound state. With signing enabled the
// token claims are authoritative; a missing, expired or forged token yields a
// fresh unverified state.
func (s *TokenSigner) Verify(state model.CustomerState) model.CustomerState {
	if !s.Enabled() {
		state.Token = ""
		return state.Normalize()
	}
	if state.Token == "" {
		if state.Verified || state.Status == model.StatusVerified {
			logx.Warn().Str("customer_id", state.CustomerID).Msg("Unsigned verified customer state downgraded")
		}
		return model.CustomerState{Status: model.StatusUnverified}
	}

	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(state.Token, claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		ev := logx.Warn()
		if errors.Is(err, jwt.ErrTokenExpired) {
			ev = logx.Debug()
		}
		ev.Err(err).Msg("Customer state token rejected")
		return model.CustomerState{Status: model.StatusUnverified}
	}

	return model.CustomerState{
		Verified:    claims.Verified,
		CustomerID:  claims.CustomerID,
		Name:        claims.Name,
		Status:      claims.Status,
		PinAttempts: claims.PinAttempts,
	}.Normalize()
}
