package middleware

import (
	"encoding/base64"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

func basicHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}

func signedToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func assertUnauthorized(t *testing.T, ex *exchange) {
	t.Helper()
	require.NoError(t, ex.err)
	assert.False(t, ex.handlerRan)
	assert.Equal(t, http11.StatusUnauthorized, ex.status())

	var body map[string]string
	require.NoError(t, json.Unmarshal(ex.ctx.Response().Body, &body))
	assert.Equal(t, map[string]string{"error": "Unauthorized", "message": "Authentication required"}, body)
}

func TestAuthBasic(t *testing.T) {
	mw := Auth(AuthConfig{Type: AuthBasic, Realm: "admin", Users: map[string]string{"alice": "s3cret:x"}})

	ex := run(newRequest("GET", "/", map[string]string{"Authorization": basicHeader("alice", "s3cret:x")}), mw)
	require.True(t, ex.handlerRan)
	assert.Equal(t, "alice", ex.ctx.Get("user"))

	for name, header := range map[string]string{
		"missing":        "",
		"wrong password": basicHeader("alice", "nope"),
		"unknown user":   basicHeader("bob", "s3cret:x"),
		"bad base64":     "Basic !!!",
		"no colon":       "Basic " + base64.StdEncoding.EncodeToString([]byte("alice")),
		"wrong scheme":   "Bearer abc",
		"extra parts":    "Basic a b",
	} {
		t.Run(name, func(t *testing.T) {
			headers := map[string]string{}
			if header != "" {
				headers["Authorization"] = header
			}
			ex := run(newRequest("GET", "/", headers), mw)
			assertUnauthorized(t, ex)
			assert.Equal(t, `Basic realm="admin"`, ex.header("WWW-Authenticate"))
		})
	}
}

func TestAuthBearer(t *testing.T) {
	const secret = "top-secret"
	mw := Auth(AuthConfig{Type: AuthBearer, Secret: secret, ContextKey: "claims"})

	token := signedToken(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{
		"sub": "42",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	for i := 0; i < 2; i++ {
		ex := run(newRequest("GET", "/", map[string]string{"Authorization": "Bearer " + token}), mw)
		require.True(t, ex.handlerRan, "attempt %d", i)
		claims, ok := ex.ctx.Get("claims").(jwt.MapClaims)
		require.True(t, ok)
		assert.Equal(t, "42", claims["sub"])
	}

	rejected := map[string]string{
		"wrong secret": signedToken(t, jwt.SigningMethodHS256, "other", jwt.MapClaims{"sub": "1"}),
		"wrong method": signedToken(t, jwt.SigningMethodHS512, secret, jwt.MapClaims{"sub": "1"}),
		"expired":      signedToken(t, jwt.SigningMethodHS256, secret, jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()}),
		"garbage":      "not.a.jwt",
	}
	for name, tok := range rejected {
		t.Run(name, func(t *testing.T) {
			ex := run(newRequest("GET", "/", map[string]string{"Authorization": "Bearer " + tok}), mw)
			assertUnauthorized(t, ex)
			assert.Equal(t, `Bearer realm="Protected"`, ex.header("WWW-Authenticate"))
		})
	}
}

func TestAuthBearerCustomValidator(t *testing.T) {
	mw := Auth(AuthConfig{Type: AuthBearer, ValidateToken: func(tok string) bool { return tok == "letmein" }})

	assert.True(t, run(newRequest("GET", "/", map[string]string{"Authorization": "Bearer letmein"}), mw).handlerRan)
	assertUnauthorized(t, run(newRequest("GET", "/", map[string]string{"Authorization": "Bearer nope"}), mw))
}

func TestAuthCustom(t *testing.T) {
	mw := Auth(AuthConfig{Type: AuthCustom, Tokens: []string{"ApiKey abc123"}})

	assert.True(t, run(newRequest("GET", "/", map[string]string{"Authorization": "ApiKey abc123"}), mw).handlerRan)

	ex := run(newRequest("GET", "/", map[string]string{"Authorization": "ApiKey wrong"}), mw)
	assertUnauthorized(t, ex)
	assert.Empty(t, ex.header("WWW-Authenticate"), "custom mode sends no challenge")
}

func TestTokenCacheExpiry(t *testing.T) {
	tc := newTokenCache(time.Hour, 8)
	tc.set("live", jwt.MapClaims{"sub": "1"}, time.Time{})
	tc.set("dead", jwt.MapClaims{"sub": "2"}, time.Now().Add(-time.Second))

	_, ok := tc.get("live")
	assert.True(t, ok)
	_, ok = tc.get("dead")
	assert.False(t, ok, "token expiry caps the TTL")
	assert.Equal(t, 1, tc.entries.len())
}

func TestExpiringLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := newExpiringLRU[int](2)
	later := time.Now().Add(time.Hour)
	c.set("a", 1, later)
	c.set("b", 2, later)
	_, _ = c.get("a")
	c.set("c", 3, later)

	_, ok := c.get("b")
	assert.False(t, ok, "b was least recently used")
	v, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.len())

	c.set("a", 10, later)
	v, _ = c.get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, c.len())
}

func TestExpiringLRUExpiry(t *testing.T) {
	c := newExpiringLRU[string](0)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.set("k", "v", now.Add(time.Second))

	_, ok := c.get("k")
	assert.True(t, ok)
	now = now.Add(time.Second)
	_, ok = c.get("k")
	assert.False(t, ok)
	assert.Zero(t, c.len())
}

func TestAuthDescriptorValidation(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(newAuthDescriptor()))
	check := func(opts Options) error {
		return reg.ValidateOptions("auth", reg.MergedOptions("auth", opts))
	}

	assert.Error(t, check(nil), "bearer needs a secret")
	assert.NoError(t, check(Options{"secret": "k"}))
	assert.Error(t, check(Options{"type": "basic"}))
	assert.NoError(t, check(Options{"type": "basic", "users": map[string]any{"a": "b"}}))
	assert.Error(t, check(Options{"type": "custom"}))
	assert.NoError(t, check(Options{"type": "custom", "tokens": []any{"t"}}))
	assert.Error(t, check(Options{"type": "digest"}))
	assert.Error(t, check(Options{"secret": "k", "algorithm": "RS256"}))
}
