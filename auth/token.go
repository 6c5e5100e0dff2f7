package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Protocol-reserved claim values. Caller-supplied fields never override these.
const (
	TokenIssuer   = "producer-dashboard"
	TokenAudience = "buyer-dashboard"
	TokenSubject  = "inter-dashboard-auth"
)

var (
	// ErrTokenExpired signals a structurally valid token past its lifetime.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals a malformed, unsigned, or wrongly-signed token.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

// Claims is the decoded inter-service token payload.
type Claims struct {
	Issuer    string
	Audience  string
	Subject   string
	Action    string
	RequestID string
	UserID    string
	OrgID     string
}

// IssueParams are the caller-supplied claim fields merged into a new token.
type IssueParams struct {
	Action string
	UserID string
	OrgID  string
}

// Codec signs and verifies short-lived inter-service tokens. Tokens are
// ephemeral: generated per outbound call, never persisted.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec builds a Codec around a symmetric secret. A non-positive ttl
// falls back to 300 seconds.
func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue produces a signed token carrying the reserved claims plus the
// caller-supplied fields. Each token gets a fresh request id.
func (c *Codec) Issue(params IssueParams) (string, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iss":        TokenIssuer,
		"aud":        TokenAudience,
		"sub":        TokenSubject,
		"request_id": uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(c.ttl).Unix(),
	}
	if params.Action != "" {
		claims["action"] = params.Action
	}
	if params.UserID != "" {
		claims["user_id"] = params.UserID
	}
	if params.OrgID != "" {
		claims["org_id"] = params.OrgID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify decodes and validates a token. Expired tokens are reported as
// ErrTokenExpired; every other failure mode (bad signature, wrong algorithm,
// garbage input) is ErrTokenInvalid. Callers treat both as authentication
// failure but log them differently.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(c.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Claims{}, ErrTokenInvalid
	}

	return Claims{
		Issuer:    stringClaim(mapClaims, "iss"),
		Audience:  audienceClaim(mapClaims),
		Subject:   stringClaim(mapClaims, "sub"),
		Action:    stringClaim(mapClaims, "action"),
		RequestID: stringClaim(mapClaims, "request_id"),
		UserID:    stringClaim(mapClaims, "user_id"),
		OrgID:     stringClaim(mapClaims, "org_id"),
	}, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}

// aud may decode as a string or a one-element array.
func audienceClaim(claims jwt.MapClaims) string {
	switch v := claims["aud"].(type) {
	case string:
		return v
	case []interface{}:
		if len(v) > 0 {
			s, _ := v[0].(string)
			return s
		}
	}
	return ""
}
