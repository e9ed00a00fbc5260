package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"healthcare-coordination-client/internal/credstore"
	"healthcare-coordination-client/internal/gateway"
	"healthcare-coordination-client/internal/model"
)

var testUser = model.User{
	ID:        7,
	Username:  "alice",
	Email:     "alice@example.com",
	FirstName: "Alice",
	LastName:  "Nguyen",
	Role:      model.RolePatient,
}

// makeToken mints an HS256 token with the given lifetime; restore only looks
// at the exp claim, never the signature.
func makeToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("make token: %v", err)
	}
	return tok
}

// authServer serves the credential-exchange and profile endpoints and counts
// requests so tests can assert that nothing hit the network.
func authServer(t *testing.T, requests *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		*requests++
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(gateway.TokenPair{Access: makeToken(t, time.Hour), Refresh: "refresh-raw"})
	})
	mux.HandleFunc("GET /auth/profile", func(w http.ResponseWriter, r *http.Request) {
		*requests++
		json.NewEncoder(w).Encode(testUser)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newManager(t *testing.T, baseURL string) (*Manager, *credstore.Store) {
	t.Helper()
	store, err := credstore.Open(filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	gw := gateway.New(baseURL)
	return NewManager(store, gw, zerolog.Nop()), store
}

func TestLoginSuccess(t *testing.T) {
	var requests int
	srv := authServer(t, &requests)
	m, store := newManager(t, srv.URL)
	ctx := context.Background()

	user, err := m.Login(ctx, "alice", "correct")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.ID != testUser.ID {
		t.Errorf("user id: %d", user.ID)
	}
	if m.Status() != Authenticated {
		t.Errorf("status: %s", m.Status())
	}

	creds, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !creds.Complete() {
		t.Fatalf("expected complete credentials, got %+v", creds)
	}
	var persisted model.User
	if err := json.Unmarshal([]byte(creds.UserJSON), &persisted); err != nil {
		t.Fatalf("persisted user: %v", err)
	}
	if persisted.ID != testUser.ID {
		t.Errorf("persisted id %d does not match profile %d", persisted.ID, testUser.ID)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	var requests int
	srv := authServer(t, &requests)
	m, store := newManager(t, srv.URL)
	ctx := context.Background()

	_, err := m.Login(ctx, "alice", "wrong")
	var authErr *model.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if m.Status() != Failed {
		t.Errorf("status: %s", m.Status())
	}

	creds, _ := store.Load(ctx)
	if !creds.Empty() {
		t.Errorf("nothing should be persisted on failure: %+v", creds)
	}

	// a failed session can try again
	if _, err := m.Login(ctx, "alice", "correct"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if m.Status() != Authenticated {
		t.Errorf("status after retry: %s", m.Status())
	}
}

func TestLoginProfileFetchFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gateway.TokenPair{Access: "acc", Refresh: "ref"})
	})
	mux.HandleFunc("GET /auth/profile", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m, store := newManager(t, srv.URL)
	ctx := context.Background()

	_, err := m.Login(ctx, "alice", "whatever")
	var authErr *model.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if m.Status() != Failed {
		t.Errorf("status: %s", m.Status())
	}
	creds, _ := store.Load(ctx)
	if !creds.Empty() {
		t.Errorf("token must not be partially persisted: %+v", creds)
	}
}

func TestLoginValidation(t *testing.T) {
	var requests int
	srv := authServer(t, &requests)
	m, _ := newManager(t, srv.URL)

	_, err := m.Login(context.Background(), "", "")
	var valErr *model.ValidationError
	if !errors.As(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if requests != 0 {
		t.Errorf("validation failure must not reach the network, saw %d requests", requests)
	}
}

func TestLogout(t *testing.T) {
	var requests int
	srv := authServer(t, &requests)
	m, store := newManager(t, srv.URL)
	ctx := context.Background()

	if _, err := m.Login(ctx, "alice", "correct"); err != nil {
		t.Fatalf("login: %v", err)
	}
	m.Logout()

	if m.Status() != Unauthenticated {
		t.Errorf("status: %s", m.Status())
	}
	if _, ok := m.CurrentUser(); ok {
		t.Error("user should be gone after logout")
	}
	creds, _ := store.Load(ctx)
	if !creds.Empty() {
		t.Errorf("store should be empty after logout: %+v", creds)
	}
}

func TestRestoreEmptyStore(t *testing.T) {
	m, _ := newManager(t, "http://unused.invalid")
	if err := m.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if m.Status() != Unauthenticated {
		t.Errorf("status: %s", m.Status())
	}
}

func TestRestoreValidSnapshot(t *testing.T) {
	m, store := newManager(t, "http://unused.invalid")
	ctx := context.Background()

	raw, _ := json.Marshal(testUser)
	store.Save(ctx, credstore.Credentials{
		AccessToken:  makeToken(t, time.Hour),
		RefreshToken: "refresh-raw",
		UserJSON:     string(raw),
	})

	// the base URL is unreachable on purpose: restore must not need it
	if err := m.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if m.Status() != Authenticated {
		t.Fatalf("status: %s", m.Status())
	}
	user, ok := m.CurrentUser()
	if !ok || user.ID != testUser.ID {
		t.Errorf("restored user: %+v ok=%v", user, ok)
	}
}

func TestRestoreCorruptUser(t *testing.T) {
	m, store := newManager(t, "http://unused.invalid")
	ctx := context.Background()

	store.Save(ctx, credstore.Credentials{
		AccessToken:  makeToken(t, time.Hour),
		RefreshToken: "refresh-raw",
		UserJSON:     "{not json",
	})

	if err := m.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if m.Status() != Unauthenticated {
		t.Errorf("status: %s", m.Status())
	}
	creds, _ := store.Load(ctx)
	if !creds.Empty() {
		t.Errorf("corrupt snapshot should be cleared: %+v", creds)
	}

	// idempotent
	if err := m.Restore(ctx); err != nil {
		t.Fatalf("second restore: %v", err)
	}
	if m.Status() != Unauthenticated {
		t.Errorf("status after second restore: %s", m.Status())
	}
}

func TestRestorePartialSnapshot(t *testing.T) {
	m, store := newManager(t, "http://unused.invalid")
	ctx := context.Background()

	// token without user is corrupt
	store.Save(ctx, credstore.Credentials{AccessToken: makeToken(t, time.Hour)})

	if err := m.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if m.Status() != Unauthenticated {
		t.Errorf("status: %s", m.Status())
	}
	creds, _ := store.Load(ctx)
	if !creds.Empty() {
		t.Errorf("partial snapshot should be cleared: %+v", creds)
	}
}

func TestRestoreExpiredToken(t *testing.T) {
	m, store := newManager(t, "http://unused.invalid")
	ctx := context.Background()

	raw, _ := json.Marshal(testUser)
	store.Save(ctx, credstore.Credentials{
		AccessToken:  makeToken(t, -time.Minute),
		RefreshToken: "refresh-raw",
		UserJSON:     string(raw),
	})

	if err := m.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if m.Status() != Unauthenticated {
		t.Errorf("status: %s", m.Status())
	}
	creds, _ := store.Load(ctx)
	if !creds.Empty() {
		t.Errorf("expired snapshot should be cleared: %+v", creds)
	}
}

func TestRestoreOpaqueToken(t *testing.T) {
	m, store := newManager(t, "http://unused.invalid")
	ctx := context.Background()

	raw, _ := json.Marshal(testUser)
	store.Save(ctx, credstore.Credentials{
		AccessToken:  "not-a-jwt",
		RefreshToken: "refresh-raw",
		UserJSON:     string(raw),
	})

	if err := m.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if m.Status() != Unauthenticated {
		t.Errorf("a token that does not parse is malformed; status: %s", m.Status())
	}
}

func TestForcedExpiryOn401(t *testing.T) {
	var authenticated bool
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gateway.TokenPair{Access: makeToken(t, time.Hour), Refresh: "ref"})
	})
	mux.HandleFunc("GET /auth/profile", func(w http.ResponseWriter, r *http.Request) {
		if authenticated {
			json.NewEncoder(w).Encode(testUser)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /users/doctors", func(w http.ResponseWriter, r *http.Request) {
		// the service decided our token is no good
		w.WriteHeader(http.StatusUnauthorized)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store, err := credstore.Open(filepath.Join(t.TempDir(), "creds.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	gw := gateway.New(srv.URL)
	m := NewManager(store, gw, zerolog.Nop())
	ctx := context.Background()

	authenticated = true
	if _, err := m.Login(ctx, "alice", "correct"); err != nil {
		t.Fatalf("login: %v", err)
	}

	// any authenticated call bouncing with 401 must force the session down
	if _, err := gw.Doctors(ctx); !errors.Is(err, gateway.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if m.Status() != Unauthenticated {
		t.Errorf("status after forced expiry: %s", m.Status())
	}
	creds, _ := store.Load(ctx)
	if !creds.Empty() {
		t.Errorf("store should be cleared on forced expiry: %+v", creds)
	}
}

func TestRegisterValidation(t *testing.T) {
	var requests int
	srv := authServer(t, &requests)
	m, _ := newManager(t, srv.URL)
	ctx := context.Background()

	base := gateway.RegisterRequest{
		Username:        "bob",
		Email:           "bob@example.com",
		Password:        "s3cret-s3cret",
		PasswordConfirm: "s3cret-s3cret",
		FirstName:       "Bob",
		LastName:        "Tran",
		Role:            model.RolePatient,
	}

	tests := []struct {
		name   string
		mutate func(*gateway.RegisterRequest)
	}{
		{"missing username", func(r *gateway.RegisterRequest) { r.Username = "" }},
		{"missing email", func(r *gateway.RegisterRequest) { r.Email = "" }},
		{"missing password", func(r *gateway.RegisterRequest) { r.Password = "" }},
		{"mismatched confirmation", func(r *gateway.RegisterRequest) { r.PasswordConfirm = "other" }},
		{"missing name", func(r *gateway.RegisterRequest) { r.FirstName = "" }},
		{"bad role", func(r *gateway.RegisterRequest) { r.Role = "nurse" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			tt.mutate(&req)
			_, err := m.Register(ctx, req)
			var valErr *model.ValidationError
			if !errors.As(err, &valErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if requests != 0 {
		t.Errorf("validation failures must not reach the network, saw %d requests", requests)
	}
}
