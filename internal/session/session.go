// Package session owns authentication state: the token pair, the user
// snapshot, and the lifecycle around them. It is the only writer of the
// credential store and the only issuer of credential-exchange and profile
// requests.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"healthcare-coordination-client/internal/credstore"
	"healthcare-coordination-client/internal/gateway"
	"healthcare-coordination-client/internal/model"
)

type Status int

const (
	Unauthenticated Status = iota
	Authenticating
	Authenticated
	Failed
)

func (s Status) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

type Manager struct {
	store *credstore.Store
	gw    *gateway.Client
	log   zerolog.Logger

	mu      sync.Mutex
	status  Status
	user    *model.User
	access  string
	refresh string
}

func NewManager(store *credstore.Store, gw *gateway.Client, log zerolog.Logger) *Manager {
	m := &Manager{store: store, gw: gw, log: log, status: Unauthenticated}
	// a rejected token anywhere forces the session down
	gw.OnUnauthorized(m.expire)
	return m
}

func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CurrentUser returns the authenticated user snapshot, if any.
func (m *Manager) CurrentUser() (model.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Authenticated || m.user == nil {
		return model.User{}, false
	}
	return *m.user, true
}

// Restore resumes a persisted session at startup. It never touches the
// network: the persisted token is inspected locally and trusted
// optimistically; the service gets the final say on the first real request.
// Malformed or partial persisted state is cleared. Idempotent.
func (m *Manager) Restore(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	creds, err := m.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if creds.Empty() {
		m.toUnauthenticatedLocked()
		return nil
	}
	if !creds.Complete() {
		// token without user (or the reverse) is corrupt
		m.log.Warn().Msg("partial credentials, clearing")
		return m.discardLocked(ctx)
	}

	var user model.User
	if err := json.Unmarshal([]byte(creds.UserJSON), &user); err != nil || !user.Role.Valid() {
		m.log.Warn().Msg("corrupt persisted user, clearing")
		return m.discardLocked(ctx)
	}
	if tokenExpired(creds.AccessToken) {
		m.log.Info().Msg("persisted token expired, clearing")
		return m.discardLocked(ctx)
	}

	m.user = &user
	m.access = creds.AccessToken
	m.refresh = creds.RefreshToken
	m.status = Authenticated
	m.gw.SetToken(creds.AccessToken)
	m.log.Info().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("session restored")
	return nil
}

// Login exchanges credentials, fetches the profile with the fresh token, and
// persists everything in one step. Nothing is persisted on any failure.
func (m *Manager) Login(ctx context.Context, identifier, secret string) (model.User, error) {
	if identifier == "" || secret == "" {
		return model.User{}, &model.ValidationError{Reason: "identifier and secret required"}
	}

	m.setStatus(Authenticating)

	pair, err := m.gw.Login(ctx, identifier, secret)
	if err != nil {
		m.fail()
		return model.User{}, &model.AuthError{Reason: "credential exchange failed", Err: err}
	}

	m.gw.SetToken(pair.Access)
	user, err := m.gw.Profile(ctx)
	if err != nil {
		m.gw.SetToken("")
		m.fail()
		return model.User{}, &model.AuthError{Reason: "profile fetch failed", Err: err}
	}

	raw, err := json.Marshal(user)
	if err != nil {
		m.gw.SetToken("")
		m.fail()
		return model.User{}, &model.AuthError{Reason: "profile not serializable", Err: err}
	}
	creds := credstore.Credentials{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		UserJSON:     string(raw),
	}
	if err := m.store.Save(ctx, creds); err != nil {
		m.gw.SetToken("")
		m.fail()
		return model.User{}, &model.AuthError{Reason: "could not persist session", Err: err}
	}

	m.mu.Lock()
	m.user = &user
	m.access = pair.Access
	m.refresh = pair.Refresh
	m.status = Authenticated
	m.mu.Unlock()

	m.log.Info().Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("logged in")
	return user, nil
}

// Register creates an account. Validation failures never reach the network,
// and a successful registration does not log the user in.
func (m *Manager) Register(ctx context.Context, req gateway.RegisterRequest) (model.User, error) {
	switch {
	case req.Username == "":
		return model.User{}, &model.ValidationError{Field: "username", Reason: "required"}
	case req.Email == "":
		return model.User{}, &model.ValidationError{Field: "email", Reason: "required"}
	case req.Password == "":
		return model.User{}, &model.ValidationError{Field: "password", Reason: "required"}
	case req.Password != req.PasswordConfirm:
		return model.User{}, &model.ValidationError{Field: "password2", Reason: "confirmation does not match"}
	case req.FirstName == "" || req.LastName == "":
		return model.User{}, &model.ValidationError{Field: "name", Reason: "first and last name required"}
	case !req.Role.Valid():
		return model.User{}, &model.ValidationError{Field: "role", Reason: "must be patient, doctor or admin"}
	}
	return m.gw.Register(ctx, req)
}

// Logout clears everything, synchronously. It has no failure mode: a store
// error is logged and the in-memory session still goes down.
func (m *Manager) Logout() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error().Err(err).Msg("clearing credential store")
	}
	m.toUnauthenticatedLocked()
	m.log.Info().Msg("logged out")
}

// expire is the gateway's unauthorized hook: the service rejected our token,
// so the session is over regardless of what we believed locally.
func (m *Manager) expire() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != Authenticated {
		return
	}
	if err := m.store.Clear(ctx); err != nil {
		m.log.Error().Err(err).Msg("clearing credential store")
	}
	m.toUnauthenticatedLocked()
	m.log.Warn().Msg("session expired by service")
}

func (m *Manager) discardLocked(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("restore: clear corrupt store: %w", err)
	}
	m.toUnauthenticatedLocked()
	return nil
}

func (m *Manager) toUnauthenticatedLocked() {
	m.user = nil
	m.access = ""
	m.refresh = ""
	m.status = Unauthenticated
	m.gw.SetToken("")
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *Manager) fail() {
	m.setStatus(Failed)
}

// tokenExpired does a local, signature-free expiry check. Only the exp claim
// matters here; a token that does not parse as a JWT at all counts as
// malformed and therefore expired.
func tokenExpired(raw string) bool {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(raw, &claims)
	if err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return claims.ExpiresAt.Before(time.Now())
}
