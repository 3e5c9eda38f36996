package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/presskit-builder/apiserver/internal/auth"
	"github.com/presskit-builder/apiserver/internal/services"
	"github.com/presskit-builder/apiserver/internal/store"
	"github.com/presskit-builder/apiserver/types"
)

const testSecret = "handler-test-secret"

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]types.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: map[string]types.User{}}
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if strings.EqualFold(user.Email, strings.TrimSpace(email)) {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memoryUsers) Create(_ context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = uuid.NewString()
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = testEpoch
	user.UpdatedAt = testEpoch
	m.users[user.ID] = user
	return user, nil
}

// memoryPressKits ticks its clock one minute per write so creation order is
// observable.
type memoryPressKits struct {
	mu   sync.Mutex
	kits map[string]types.PressKit
	now  time.Time
}

func newMemoryPressKits() *memoryPressKits {
	return &memoryPressKits{kits: map[string]types.PressKit{}, now: testEpoch}
}

func (m *memoryPressKits) tick() time.Time {
	m.now = m.now.Add(time.Minute)
	return m.now
}

func (m *memoryPressKits) ListByOwner(_ context.Context, ownerID string) ([]types.PressKitSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	summaries := []types.PressKitSummary{}
	for _, kit := range m.kits {
		if kit.UserID == ownerID {
			summaries = append(summaries, kit.Summary())
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (m *memoryPressKits) GetByOwner(_ context.Context, ownerID, id string) (types.PressKit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kit, ok := m.kits[id]
	if !ok || kit.UserID != ownerID {
		return types.PressKit{}, store.ErrNotFound
	}
	return kit, nil
}

func (m *memoryPressKits) Create(_ context.Context, kit types.PressKit) (types.PressKit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.kits {
		if existing.UserID == kit.UserID && existing.Slug == kit.Slug {
			return types.PressKit{}, store.ErrConflict
		}
	}
	kit.ID = uuid.NewString()
	kit.CreatedAt = m.tick()
	kit.UpdatedAt = kit.CreatedAt
	m.kits[kit.ID] = kit
	return kit, nil
}

func (m *memoryPressKits) Update(_ context.Context, ownerID, id string, patch types.PressKitPatch) (types.PressKit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kit, ok := m.kits[id]
	if !ok || kit.UserID != ownerID {
		return types.PressKit{}, store.ErrNotFound
	}
	kit = patch.ApplyTo(kit, m.tick())
	m.kits[id] = kit
	return kit, nil
}

func (m *memoryPressKits) Delete(_ context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kit, ok := m.kits[id]
	if !ok || kit.UserID != ownerID {
		return store.ErrNotFound
	}
	delete(m.kits, id)
	return nil
}

func (m *memoryPressKits) RecordView(_ context.Context, id string) (types.PressKit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kit, ok := m.kits[id]
	if !ok || !kit.IsPublished {
		return types.PressKit{}, store.ErrNotFound
	}
	kit.ViewCount++
	m.kits[id] = kit
	return kit, nil
}

type capturedEvent struct {
	channel string
	data    []byte
	attrs   map[string]string
}

type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *capturePublisher) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{channel: channel, data: data, attrs: attrs})
	return uuid.NewString(), nil
}

type testAPI struct {
	router    *chi.Mux
	tokens    *auth.TokenService
	users     *memoryUsers
	pressKits *memoryPressKits
	events    *capturePublisher
}

type apiOption func(*apiOptions)

type apiOptions struct {
	tokenOpts []auth.TokenOption
}

func withRevocation(t *testing.T) apiOption {
	return func(o *apiOptions) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		o.tokenOpts = append(o.tokenOpts, auth.WithDenylist(auth.NewRedisDenylist(client)))
	}
}

func newTestAPI(t *testing.T, opts ...apiOption) *testAPI {
	t.Helper()

	var options apiOptions
	for _, opt := range opts {
		opt(&options)
	}

	tokens, err := auth.NewTokenService(testSecret, options.tokenOpts...)
	require.NoError(t, err)

	users := newMemoryUsers()
	pressKits := newMemoryPressKits()
	events := &capturePublisher{}

	authHandler, err := NewAuthHandler(
		services.NewUserService(users),
		auth.NewBcryptHasher(bcrypt.MinCost),
		tokens,
		nil,
	)
	require.NoError(t, err)
	pressKitHandler := NewPressKitHandler(services.NewPressKitService(pressKits, events, "press-kit-views", nil), nil)

	validator := NewValidator()
	requireAuth := RequireAuth(tokens, nil)

	router := chi.NewRouter()
	router.NotFound(NotFound)
	router.MethodNotAllowed(MethodNotAllowed)
	router.Route("/api/auth", func(r chi.Router) {
		AuthRouter(r, authHandler, validator, requireAuth)
	})
	router.Route("/api/press-kits", func(r chi.Router) {
		PressKitRouter(r, pressKitHandler, validator, requireAuth)
	})

	return &testAPI{
		router:    router,
		tokens:    tokens,
		users:     users,
		pressKits: pressKits,
		events:    events,
	}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(AuthHeader, token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

// register creates an account and returns its token and id.
func (a *testAPI) register(t *testing.T, name, email string) (string, string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp AuthResponse
	decodeBody(t, rec, &resp)
	return resp.Token, resp.User.ID
}

func (a *testAPI) createPressKit(t *testing.T, token, title string) types.PressKit {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/press-kits", token, map[string]string{
		"title":       title,
		"template_id": "tpl-classic",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var kit types.PressKit
	decodeBody(t, rec, &kit)
	return kit
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}
