package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/pawmart/pawmart/internal/shared"
)

type fakeUsers struct {
	users map[int64]User
}

func (f *fakeUsers) GetUser(ctx context.Context, id int64) (User, error) {
	u, ok := f.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func newTestStore(t *testing.T) (*TokenStore, *fakeUsers) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	users := &fakeUsers{users: map[int64]User{
		1: {ID: 1, Name: "Mika", Email: "mika@pawmart.test", Role: shared.RoleAdmin, Active: true},
		2: {ID: 2, Name: "Jo", Email: "jo@pawmart.test", Role: "staff", Active: false},
	}}
	return NewTokenStore(client, users, time.Hour), users
}

func TestResolveToken(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Issue(ctx, "tok-admin", 1))

	actor, err := store.Resolve(ctx, "tok-admin")
	require.NoError(t, err)
	require.Equal(t, int64(1), actor.ID)
	require.Equal(t, shared.RoleAdmin, actor.Role)

	_, err = store.Resolve(ctx, "tok-unknown")
	require.ErrorIs(t, err, ErrTokenInvalid)
	_, err = store.Resolve(ctx, "")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResolveInactiveUser(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Issue(ctx, "tok-jo", 2))
	_, err := store.Resolve(ctx, "tok-jo")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestResolveDeletedUser(t *testing.T) {
	store, users := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Issue(ctx, "tok-admin", 1))
	delete(users.users, 1)
	_, err := store.Resolve(ctx, "tok-admin")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestRevokeToken(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Issue(ctx, "tok-admin", 1))
	require.NoError(t, store.Revoke(ctx, "tok-admin"))
	_, err := store.Resolve(ctx, "tok-admin")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestMiddleware(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Issue(context.Background(), "tok-admin", 1))

	var gotActor shared.Actor
	var hadActor bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor, hadActor = shared.ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(store)(next)

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer tok-admin")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, hadActor)
		require.Equal(t, "Mika", gotActor.Name)
	})

	t.Run("no token passes through anonymously", func(t *testing.T) {
		hadActor = false
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		require.False(t, hadActor)
	})

	t.Run("bad token rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
