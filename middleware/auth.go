package middleware

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/watt-toolkit/riptide/core"
	"github.com/watt-toolkit/riptide/pkg/riptide/http11"
)

// Authentication schemes.
const (
	AuthBasic  = "basic"
	AuthBearer = "bearer"
	AuthCustom = "custom"
)

// AuthConfig defines authentication middleware configuration.
type AuthConfig struct {
	// Type is basic, bearer or custom.
	// Default: bearer
	Type string `json:"type" validate:"oneof=basic bearer custom"`

	// Realm is advertised in WWW-Authenticate.
	// Default: Protected
	Realm string `json:"realm"`

	// Users maps user names to passwords for basic auth.
	Users map[string]string `json:"users" validate:"required_if=Type basic"`

	// Secret is the HMAC key bearer tokens are signed with.
	Secret string `json:"secret"`

	// Algorithm is the accepted JWT signing method.
	// Default: HS256
	Algorithm string `json:"algorithm" validate:"omitempty,oneof=HS256 HS384 HS512"`

	// Tokens accepted verbatim as the Authorization header in custom mode.
	Tokens []string `json:"tokens"`

	// ContextKey stores the JWT claims, or the basic auth user name.
	// Default: user
	ContextKey string `json:"contextKey"`

	// CacheTTLMs bounds how long a verified bearer token is remembered.
	// Default: 300000
	CacheTTLMs int `json:"cacheTTLMs" validate:"gte=0"`

	// CacheSize bounds how many verified tokens are remembered.
	// Default: 1024
	CacheSize int `json:"cacheSize" validate:"gte=0"`

	// ValidateToken replaces the built-in check for bearer and custom
	// modes. Bearer mode passes the token; custom mode the whole header.
	ValidateToken func(token string) bool `json:"-"`
}

type unauthorizedBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Auth returns authentication middleware.
//
// On failure the chain stops with 401, a WWW-Authenticate challenge for
// basic and bearer modes, and a JSON body.
//
// Example:
//
//	app.Use(middleware.Auth(middleware.AuthConfig{
//	    Type:   middleware.AuthBearer,
//	    Secret: os.Getenv("JWT_SECRET"),
//	}))
func Auth(config AuthConfig) core.Middleware {
	if config.Type == "" {
		config.Type = AuthBearer
	}
	if config.Realm == "" {
		config.Realm = "Protected"
	}
	if config.Algorithm == "" {
		config.Algorithm = "HS256"
	}
	if config.ContextKey == "" {
		config.ContextKey = "user"
	}
	if config.CacheTTLMs == 0 {
		config.CacheTTLMs = 300000
	}
	if config.CacheSize == 0 {
		config.CacheSize = 1024
	}

	var challenge string
	switch config.Type {
	case AuthBasic:
		challenge = `Basic realm="` + config.Realm + `"`
	case AuthBearer:
		challenge = `Bearer realm="` + config.Realm + `"`
	}

	cache := newTokenCache(time.Duration(config.CacheTTLMs)*time.Millisecond, config.CacheSize)

	return func(c *core.Context, next core.Next) error {
		header := c.GetHeader("Authorization")
		scheme, credentials := splitAuthorization(header)

		ok := false
		switch config.Type {
		case AuthBasic:
			if scheme == AuthBasic {
				var user string
				user, ok = checkBasic(credentials, config.Users)
				if ok {
					c.Set(config.ContextKey, user)
				}
			}
		case AuthBearer:
			if scheme == AuthBearer {
				ok = checkBearer(c, credentials, &config, cache)
			}
		case AuthCustom:
			if header != "" {
				ok = checkCustom(header, &config)
			}
		}

		if ok {
			return next()
		}
		if challenge != "" {
			c.SetHeader("WWW-Authenticate", challenge)
		}
		return c.JSON(http11.StatusUnauthorized, unauthorizedBody{
			Error:   "Unauthorized",
			Message: "Authentication required",
		})
	}
}

// splitAuthorization splits "<scheme> <credentials>". Anything other than
// exactly two space-separated parts yields an empty scheme.
func splitAuthorization(header string) (scheme, credentials string) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[1] == "" {
		return "", ""
	}
	return strings.ToLower(parts[0]), parts[1]
}

func checkBasic(credentials string, users map[string]string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(credentials)
	if err != nil {
		return "", false
	}
	user, pass, found := strings.Cut(string(raw), ":")
	if !found || user == "" || pass == "" {
		return "", false
	}
	want, known := users[user]
	if !known || subtle.ConstantTimeCompare([]byte(want), []byte(pass)) != 1 {
		return "", false
	}
	return user, true
}

func checkBearer(c *core.Context, token string, config *AuthConfig, cache *tokenCache) bool {
	if config.ValidateToken != nil {
		return config.ValidateToken(token)
	}
	if claims, ok := cache.get(token); ok {
		c.Set(config.ContextKey, claims)
		return true
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(config.Secret), nil
	}, jwt.WithValidMethods([]string{config.Algorithm}))
	if err != nil || !parsed.Valid {
		return false
	}

	expires := time.Time{}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expires = exp.Time
	}
	cache.set(token, claims, expires)
	c.Set(config.ContextKey, claims)
	return true
}

func checkCustom(header string, config *AuthConfig) bool {
	if config.ValidateToken != nil {
		return config.ValidateToken(header)
	}
	for _, t := range config.Tokens {
		if subtle.ConstantTimeCompare([]byte(t), []byte(header)) == 1 {
			return true
		}
	}
	return false
}

// tokenCache remembers verified bearer tokens until their expiry or the
// TTL, whichever comes first, holding at most a fixed number of tokens.
type tokenCache struct {
	entries *expiringLRU[jwt.MapClaims]
	ttl     time.Duration
}

func newTokenCache(ttl time.Duration, size int) *tokenCache {
	return &tokenCache{entries: newExpiringLRU[jwt.MapClaims](size), ttl: ttl}
}

func (tc *tokenCache) get(token string) (jwt.MapClaims, bool) {
	return tc.entries.get(token)
}

func (tc *tokenCache) set(token string, claims jwt.MapClaims, tokenExpiry time.Time) {
	expires := tc.entries.now().Add(tc.ttl)
	if !tokenExpiry.IsZero() && tokenExpiry.Before(expires) {
		expires = tokenExpiry
	}
	tc.entries.set(token, claims, expires)
}

func newAuthDescriptor() Descriptor {
	return Descriptor{
		Name:        "auth",
		Description: "Authentication supporting basic, bearer (JWT) and custom tokens",
		Version:     "1.0.0",
		Priority:    40,
		Group:       GroupAuth,
		Defaults: Options{
			"type":  AuthBearer,
			"realm": "Protected",
		},
		Validate: decoder(func(cfg *AuthConfig) error {
			switch {
			case cfg.Type == AuthBearer && cfg.Secret == "":
				return errors.New("secret is required for bearer auth")
			case cfg.Type == AuthCustom && len(cfg.Tokens) == 0:
				return errors.New("tokens are required for custom auth")
			}
			return nil
		}),
		Factory: func(opts Options) (core.Middleware, error) {
			var cfg AuthConfig
			if err := Decode(opts, &cfg); err != nil {
				return nil, err
			}
			return Auth(cfg), nil
		},
	}
}
