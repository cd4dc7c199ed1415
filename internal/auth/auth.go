package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/conveyortwin/conveyortwin/internal/config"
)

// Roles carried in JWT claims.
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims are the JWT claims the API accepts.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator checks incoming requests against the configured mode.
type Authenticator struct {
	mode   string
	header string
	key    string
	secret []byte
	exempt map[string]bool
	now    func() time.Time
}

// New builds an Authenticator. Requests to exempt paths are never checked.
func New(cfg config.APIAuthConfig, exempt ...string) *Authenticator {
	a := &Authenticator{
		mode:   cfg.Mode,
		header: cfg.EffectiveHeader(),
		key:    cfg.Key(),
		secret: []byte(cfg.Secret()),
		exempt: make(map[string]bool, len(exempt)),
		now:    time.Now,
	}
	for _, p := range exempt {
		a.exempt[p] = true
	}
	return a
}

// Wrap returns next guarded by the authenticator.
//
// Behaviour:
//   - mode "apikey" with a configured key: the header must equal the key.
//   - mode "jwt" with a configured secret: a valid bearer token is required
//     and writes need the operator role.
//   - anything else passes through.
func (a *Authenticator) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.exempt[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		switch {
		case a.mode == "apikey" && a.key != "":
			got := r.Header.Get(a.header)
			if subtle.ConstantTimeCompare([]byte(got), []byte(a.key)) != 1 {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}
		case a.mode == "jwt" && len(a.secret) > 0:
			claims, err := a.VerifyToken(r.Header.Get("Authorization"))
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}
			if !readOnly(r.Method) && claims.Role != RoleOperator {
				http.Error(w, `{"error":"operator role required"}`, http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// VerifyToken parses an HS256 token, with or without a "Bearer " prefix.
func (a *Authenticator) VerifyToken(raw string) (*Claims, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken signs a token for subject with the given role and lifetime.
func (a *Authenticator) IssueToken(subject, role string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth: no signing secret configured")
	}
	now := a.now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func readOnly(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}
