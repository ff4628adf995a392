// Package credential issues and verifies signed tokens: admission credentials
// rendered into an attendee's QR code, and bearer tokens identifying staff.
package credential

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/fest-attendance/internal/model"
)

const (
	audienceGate = "gate"
	audienceAPI  = "api"
)

// ErrInvalid is returned for malformed, forged or wrong-audience tokens.
var ErrInvalid = errors.New("invalid token")

// ErrExpired is returned for tokens past their expiry.
var ErrExpired = errors.New("token has expired")

// Claims is the claim set shared by both token kinds.
type Claims struct {
	AttendeeID string     `json:"attendee_id"`
	Role       model.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and validates tokens with an HMAC key.
type Service struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// New constructs a Service.
func New(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer, now: time.Now}
}

// IssueAdmission returns the credential an attendee presents at the gate.
func (s *Service) IssueAdmission(attendeeID string, ttl time.Duration) (string, time.Time, error) {
	return s.issue(Claims{AttendeeID: attendeeID}, audienceGate, ttl)
}

// ParseAdmission returns the attendee id encoded in a gate credential.
func (s *Service) ParseAdmission(token string) (string, error) {
	claims, err := s.parse(token, audienceGate)
	if err != nil {
		return "", err
	}
	return claims.AttendeeID, nil
}

// IssueStaff returns a bearer token carrying the holder's role.
func (s *Service) IssueStaff(attendeeID string, role model.Role, ttl time.Duration) (string, time.Time, error) {
	return s.issue(Claims{AttendeeID: attendeeID, Role: role}, audienceAPI, ttl)
}

// ParseStaff validates a bearer token.
func (s *Service) ParseStaff(token string) (*Claims, error) {
	return s.parse(token, audienceAPI)
}

func (s *Service) issue(claims Claims, audience string, ttl time.Duration) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(ttl)
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.AttendeeID,
		Issuer:    s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Service) parse(token, audience string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithAudience(audience),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.AttendeeID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}
