package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiendalink/tiendasync/pkg/errors"
)

type scriptedLogin struct {
	calls   int
	results []func(username, password string) (string, error)
}

func (s *scriptedLogin) login(ctx context.Context, username, password string) (string, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	return s.results[idx](username, password)
}

func accept(token string) func(string, string) (string, error) {
	return func(string, string) (string, error) { return token, nil }
}

func reject() func(string, string) (string, error) {
	return func(string, string) (string, error) {
		return "", errors.New(errors.ErrorTypeAuthentication, "rejected")
	}
}

func provider(results ...func() (Credentials, bool)) CredentialProvider {
	i := 0
	return CredentialProviderFunc(func(ctx context.Context) (Credentials, bool, error) {
		idx := i
		if idx >= len(results) {
			idx = len(results) - 1
		}
		i++
		creds, ok := results[idx]()
		return creds, ok, nil
	})
}

func supply(username, password string) func() (Credentials, bool) {
	return func() (Credentials, bool) { return Credentials{username, password}, true }
}

func cancel() func() (Credentials, bool) {
	return func() (Credentials, bool) { return Credentials{}, false }
}

func TestEnsureFirstLogin(t *testing.T) {
	login := &scriptedLogin{results: []func(string, string) (string, error){accept("tok-1")}}
	m := NewManager(login.login, provider(supply("caja1", "s3cret")))

	assert.Equal(t, StateNoSession, m.State())

	token, ok, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestEnsureReusesValidToken(t *testing.T) {
	login := &scriptedLogin{results: []func(string, string) (string, error){accept("tok-1")}}
	m := NewManager(login.login, provider(supply("caja1", "s3cret")))

	_, _, err := m.Ensure(context.Background())
	require.NoError(t, err)

	token, ok, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 1, login.calls, "second Ensure must not log in again")
}

func TestEnsureRenewsExpiredTokenSilently(t *testing.T) {
	current := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	login := &scriptedLogin{results: []func(string, string) (string, error){
		accept("tok-1"),
		accept("tok-2"),
	}}
	prompts := 0
	p := CredentialProviderFunc(func(ctx context.Context) (Credentials, bool, error) {
		prompts++
		return Credentials{"caja1", "s3cret"}, true, nil
	})
	m := NewManager(login.login, p,
		WithTokenTTL(time.Hour),
		WithClock(func() time.Time { return current }))

	_, _, err := m.Ensure(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, prompts)

	// The cached expiry sits below the real TTL; crossing it forces a
	// renewal that reuses the cached credentials without re-prompting.
	current = current.Add(56 * time.Minute)
	token, ok, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, 1, prompts, "silent renewal must not prompt")
}

func TestEnsureRetryAfterRejectedLogin(t *testing.T) {
	login := &scriptedLogin{results: []func(string, string) (string, error){
		reject(),
		accept("tok-ok"),
	}}
	m := NewManager(login.login, provider(
		supply("caja1", "wrong"),
		supply("caja1", "right"),
	))

	token, ok, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-ok", token)
	assert.Equal(t, 2, login.calls)
	assert.Equal(t, StateAuthenticated, m.State())
}

func TestEnsureCancelledPrompt(t *testing.T) {
	login := &scriptedLogin{results: []func(string, string) (string, error){accept("unused")}}
	m := NewManager(login.login, provider(cancel()))

	token, ok, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, token)
	assert.Equal(t, 0, login.calls)
}

func TestEnsureConnectionErrorPropagates(t *testing.T) {
	login := &scriptedLogin{results: []func(string, string) (string, error){
		func(string, string) (string, error) {
			return "", errors.New(errors.ErrorTypeConnection, "api down")
		},
	}}
	m := NewManager(login.login, provider(supply("caja1", "s3cret")))

	_, ok, err := m.Ensure(context.Background())
	require.Error(t, err)
	assert.False(t, ok)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
}

func TestInvalidate(t *testing.T) {
	login := &scriptedLogin{results: []func(string, string) (string, error){
		accept("tok-1"),
		accept("tok-2"),
	}}
	m := NewManager(login.login, provider(supply("caja1", "s3cret")))

	_, _, err := m.Ensure(context.Background())
	require.NoError(t, err)

	m.Invalidate()
	assert.Equal(t, StateExpired, m.State())

	token, ok, err := m.Ensure(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-2", token)
}
