package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized signals that neither a valid token nor a matching static
// key was presented.
var ErrUnauthorized = errors.New("auth: unauthorized")

// Method records which tier of the two-tier scheme admitted a request.
type Method string

const (
	MethodToken  Method = "token"
	MethodAPIKey Method = "api_key"
)

// Admission is the outcome of a successful gate check. Claims is nil for
// API-key-authenticated requests.
type Admission struct {
	Method Method
	Claims *Claims
}

// Gate decides admission for inbound counterpart calls: a valid bearer token
// or a matching static key. The static-key tier exists so a counterpart not
// yet updated to issue tokens still authenticates during rolling deployment.
type Gate struct {
	codec      *Codec
	staticKeys []string
	logger     *log.Logger
}

// NewGate wires a Gate. Static keys are checked in order: webhook secret
// first, then the general API secret. Either may be a bcrypt hash, in which
// case presented values are compared against the hash.
func NewGate(codec *Codec, webhookSecret, apiSecret string, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	keys := make([]string, 0, 2)
	if webhookSecret != "" {
		keys = append(keys, webhookSecret)
	}
	if apiSecret != "" {
		keys = append(keys, apiSecret)
	}
	return &Gate{
		codec:      codec,
		staticKeys: keys,
		logger:     logger,
	}
}

// Admit inspects the Authorization and X-API-Key header values.
//
// A bearer value shaped like a signed token (three dot-separated segments)
// must verify; on failure the request is rejected outright. It is never
// reinterpreted as a raw static key, so a stale token cannot silently
// downgrade to key semantics. Non-token-shaped values fall through to the
// static-key comparison alongside the X-API-Key value.
func (g *Gate) Admit(authorization, apiKey string) (Admission, error) {
	bearer := extractBearer(authorization)

	if bearer != "" && looksSigned(bearer) {
		claims, err := g.codec.Verify(bearer)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				g.logger.Printf("auth reject reason=token_expired")
			} else {
				g.logger.Printf("auth reject reason=token_invalid")
			}
			return Admission{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return Admission{Method: MethodToken, Claims: &claims}, nil
	}

	for _, candidate := range []string{bearer, apiKey} {
		if candidate == "" {
			continue
		}
		for _, key := range g.staticKeys {
			if matchStaticKey(candidate, key) {
				return Admission{Method: MethodAPIKey}, nil
			}
		}
	}

	g.logger.Printf("auth reject reason=no_matching_credential")
	return Admission{}, ErrUnauthorized
}

func extractBearer(authorization string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(authorization, prefix) {
		return strings.TrimSpace(authorization[len(prefix):])
	}
	return strings.TrimSpace(authorization)
}

// looksSigned reports whether a value has the three-segment structure of a
// signed token.
func looksSigned(value string) bool {
	return strings.Count(value, ".") == 2
}

func matchStaticKey(candidate, key string) bool {
	if strings.HasPrefix(key, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(key), []byte(candidate)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(key)) == 1
}
