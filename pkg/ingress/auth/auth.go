// Package auth provides the default authorize() collaborator for routes
// flagged MustAuthorize: an htpasswd-style password file checked with
// bcrypt for HTTP Basic credentials, and a JWT bearer-token alternative,
// both satisfying one Authorizer interface so the request driver never
// knows which scheme is in effect for a given route.
package auth

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingHeader  = errors.New("auth: missing Authorization header")
	ErrMalformed      = errors.New("auth: malformed Authorization header")
	ErrUnknownUser    = errors.New("auth: unknown user")
	ErrBadCredentials = errors.New("auth: bad credentials")
	ErrInvalidToken   = errors.New("auth: invalid or expired token")
)

// Authorizer decides whether a request carrying the given raw
// Authorization header value (without modification) is permitted for
// realm.
type Authorizer interface {
	Authorize(authHeader []byte, realm string) error
}

var (
	basicPrefix  = []byte("Basic ")
	bearerPrefix = []byte("Bearer ")
)

// Composite tries each scheme-specific authorizer in turn, dispatching
// on the Authorization header's scheme token. A route's Realm is passed
// through unmodified to whichever authorizer matches.
type Composite struct {
	Basic  *BasicAuthorizer
	Bearer *JWTAuthorizer
}

func (c *Composite) Authorize(authHeader []byte, realm string) error {
	if len(authHeader) == 0 {
		return ErrMissingHeader
	}
	switch {
	case c.Basic != nil && bytes.HasPrefix(authHeader, basicPrefix):
		return c.Basic.Authorize(authHeader, realm)
	case c.Bearer != nil && bytes.HasPrefix(authHeader, bearerPrefix):
		return c.Bearer.Authorize(authHeader, realm)
	default:
		return ErrMalformed
	}
}

// BasicAuthorizer checks HTTP Basic credentials against an in-memory
// htpasswd-style table of bcrypt hashes, one table per realm. The table
// is swapped atomically by ReloadRealm so a file watcher can hot-reload
// the password file without holding a lock across bcrypt's comparison
// (bcrypt is deliberately slow; holding a write lock across it would
// serialize every concurrent login attempt).
type BasicAuthorizer struct {
	mu     sync.RWMutex
	realms map[string]map[string][]byte // realm -> username -> bcrypt hash
}

// NewBasicAuthorizer returns an authorizer with no realms configured.
func NewBasicAuthorizer() *BasicAuthorizer {
	return &BasicAuthorizer{realms: make(map[string]map[string][]byte)}
}

// ReloadRealm atomically replaces the user table for realm. entries maps
// username to a pre-computed bcrypt hash (as stored in the password
// file), not a plaintext password.
func (a *BasicAuthorizer) ReloadRealm(realm string, entries map[string][]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.realms[realm] = entries
}

func (a *BasicAuthorizer) Authorize(authHeader []byte, realm string) error {
	if !bytes.HasPrefix(authHeader, basicPrefix) {
		return ErrMalformed
	}
	decoded, err := base64.StdEncoding.DecodeString(string(authHeader[len(basicPrefix):]))
	if err != nil {
		return ErrMalformed
	}
	sep := bytes.IndexByte(decoded, ':')
	if sep < 0 {
		return ErrMalformed
	}
	user, pass := decoded[:sep], decoded[sep+1:]

	a.mu.RLock()
	users := a.realms[realm]
	var hash []byte
	if users != nil {
		hash = users[string(user)]
	}
	a.mu.RUnlock()

	if hash == nil {
		return ErrUnknownUser
	}
	if err := bcrypt.CompareHashAndPassword(hash, pass); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// JWTAuthorizer validates bearer tokens against a shared HMAC secret,
// caching successfully validated tokens for a bounded TTL so repeat
// requests on a keep-alive connection don't re-run signature
// verification on every call.
type JWTAuthorizer struct {
	Secret    []byte
	Algorithm string // defaults to HS256
	CacheTTL  time.Duration

	mu    sync.RWMutex
	cache map[string]time.Time // token -> expiry
}

// NewJWTAuthorizer returns a JWT authorizer using HS256 and a 5 minute
// validation cache.
func NewJWTAuthorizer(secret []byte) *JWTAuthorizer {
	return &JWTAuthorizer{
		Secret:    secret,
		Algorithm: "HS256",
		CacheTTL:  5 * time.Minute,
		cache:     make(map[string]time.Time),
	}
}

func (a *JWTAuthorizer) Authorize(authHeader []byte, realm string) error {
	if !bytes.HasPrefix(authHeader, bearerPrefix) {
		return ErrMalformed
	}
	token := string(authHeader[len(bearerPrefix):])

	a.mu.RLock()
	expiry, cached := a.cache[token]
	a.mu.RUnlock()
	if cached && time.Now().Before(expiry) {
		return nil
	}

	algorithm := a.Algorithm
	if algorithm == "" {
		algorithm = "HS256"
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != algorithm {
			return nil, ErrInvalidToken
		}
		return a.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return ErrInvalidToken
	}

	a.mu.Lock()
	a.cache[token] = time.Now().Add(a.CacheTTL)
	a.mu.Unlock()
	return nil
}

// Sweep removes expired entries from the validation cache; callers run
// it periodically. Nothing in this module calls it.
func (a *JWTAuthorizer) Sweep() {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for token, expiry := range a.cache {
		if now.After(expiry) {
			delete(a.cache, token)
		}
	}
}

// ParseHtpasswd parses an htpasswd-style "username:bcrypthash" file, one
// entry per line, blank lines and "#"-prefixed comments ignored. The
// result is ready to pass to BasicAuthorizer.ReloadRealm.
func ParseHtpasswd(data []byte) (map[string][]byte, error) {
	entries := make(map[string][]byte)
	for lineNum, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		sep := bytes.IndexByte(line, ':')
		if sep < 0 {
			return nil, fmt.Errorf("auth: malformed htpasswd line %d", lineNum+1)
		}
		user := string(line[:sep])
		hash := append([]byte(nil), line[sep+1:]...)
		entries[user] = hash
	}
	return entries, nil
}
