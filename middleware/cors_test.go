package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

func TestCORSWildcard(t *testing.T) {
	ex := run(newRequest("GET", "/", map[string]string{"Origin": "https://x.example"}), CORS(DefaultCORSConfig()))

	require.NoError(t, ex.err)
	assert.True(t, ex.handlerRan)
	assert.Equal(t, "*", ex.header("Access-Control-Allow-Origin"))
	assert.Empty(t, ex.header("Access-Control-Allow-Credentials"))
	assert.Empty(t, ex.header("Access-Control-Allow-Methods"), "only preflight lists methods")
}

func TestCORSOriginList(t *testing.T) {
	mw := CORS(CORSConfig{
		Origin:      StringList{"https://a.example", "https://b.example"},
		Credentials: true,
	})

	tests := []struct {
		name   string
		origin string
		want   string
	}{
		{"listed", "https://b.example", "https://b.example"},
		{"not listed", "https://evil.example", ""},
		{"missing", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.origin != "" {
				headers["Origin"] = tt.origin
			}
			ex := run(newRequest("GET", "/", headers), mw)
			assert.True(t, ex.handlerRan)
			assert.Equal(t, tt.want, ex.header("Access-Control-Allow-Origin"))
			if tt.want != "" {
				assert.Equal(t, "true", ex.header("Access-Control-Allow-Credentials"))
			}
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	ex := run(newRequest("OPTIONS", "/users", map[string]string{"Origin": "https://a.example"}), CORS(DefaultCORSConfig()))

	require.NoError(t, ex.err)
	assert.False(t, ex.handlerRan, "preflight stops the chain")
	assert.Equal(t, http11.StatusNoContent, ex.status())
	assert.Equal(t, "GET, POST, PUT, DELETE, OPTIONS", ex.header("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type, Authorization", ex.header("Access-Control-Allow-Headers"))
	assert.Equal(t, "86400", ex.header("Access-Control-Max-Age"))
}

func TestCORSPreflightEchoesRequestedHeaders(t *testing.T) {
	mw := CORS(CORSConfig{Origin: StringList{"*"}, Methods: []string{"GET"}})
	ex := run(newRequest("OPTIONS", "/", map[string]string{
		"Origin":                         "https://a.example",
		"Access-Control-Request-Headers": "X-Custom",
	}), mw)

	assert.Equal(t, "GET", ex.header("Access-Control-Allow-Methods"))
	assert.Equal(t, "X-Custom", ex.header("Access-Control-Allow-Headers"))
	assert.Empty(t, ex.header("Access-Control-Max-Age"))
}

func TestCORSDescriptorValidation(t *testing.T) {
	d := newCORSDescriptor()
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(d))

	assert.NoError(t, reg.ValidateOptions("cors", reg.MergedOptions("cors", nil)))
	assert.NoError(t, reg.ValidateOptions("cors", reg.MergedOptions("cors", Options{"origin": "https://a.example"})))
	assert.Error(t, reg.ValidateOptions("cors", reg.MergedOptions("cors", Options{"credentials": true})))
	assert.Error(t, reg.ValidateOptions("cors", reg.MergedOptions("cors", Options{"origin": []any{}})))
	assert.Error(t, reg.ValidateOptions("cors", reg.MergedOptions("cors", Options{"maxAge": -1})))
}

// App resolves the method before any middleware runs, so an OPTIONS
// preflight sent to the server gets 405 and never reaches CORS.
func TestCORSPreflightThroughApp(t *testing.T) {
	app := core.New()
	app.Use(CORS(DefaultCORSConfig()))
	require.NoError(t, app.Get("/", func(c *core.Context) error {
		return c.Text(http11.StatusOK, "ok")
	}))

	req := newRequest("OPTIONS", "/", map[string]string{
		"Origin":                        "https://x.example",
		"Access-Control-Request-Method": "GET",
	})
	res := http11.NewResponse()
	require.NoError(t, app.Handle(req, res))
	assert.Equal(t, http11.StatusMethodNotAllowed, res.StatusCode)
	assert.Empty(t, res.Header.Get("Access-Control-Allow-Origin"))

	req = newRequest("GET", "/", map[string]string{"Origin": "https://x.example"})
	res = http11.NewResponse()
	require.NoError(t, app.Handle(req, res))
	assert.Equal(t, http11.StatusOK, res.StatusCode)
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}
