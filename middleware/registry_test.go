package middleware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watt-toolkit/riptide/core"
)

func passthrough(c *core.Context, next core.Next) error { return next() }

func stubDescriptor(name string, group Group, priority int) Descriptor {
	return Descriptor{
		Name:     name,
		Group:    group,
		Priority: priority,
		Factory:  func(Options) (core.Middleware, error) { return passthrough, nil },
	}
}

func TestRegistryRegisterAndQuery(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(stubDescriptor("auth", GroupAuth, 40)))
	require.NoError(t, reg.Register(stubDescriptor("logger", GroupMonitoring, 10)))
	require.NoError(t, reg.Register(stubDescriptor("cors", GroupSecurity, 20)))
	require.NoError(t, reg.Register(stubDescriptor("requestId", GroupMonitoring, 5)))

	assert.True(t, reg.Has("cors"))
	assert.False(t, reg.Has("missing"))
	assert.Equal(t, []string{"auth", "logger", "cors", "requestId"}, reg.Names())

	d, ok := reg.Get("logger")
	require.True(t, ok)
	assert.Equal(t, GroupMonitoring, d.Group)

	var sorted []string
	for _, d := range reg.Sorted() {
		sorted = append(sorted, d.Name)
	}
	assert.Equal(t, []string{"requestId", "logger", "cors", "auth"}, sorted)

	monitoring := reg.ByGroup(GroupMonitoring)
	require.Len(t, monitoring, 2)
	assert.Equal(t, "logger", monitoring[0].Name)

	stats := reg.Stats()
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.ByGroup[GroupMonitoring])
	assert.Equal(t, 1, stats.ByGroup[GroupAuth])
}

func TestRegistryOverwriteKeepsPosition(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(stubDescriptor("a", GroupBusiness, 1)))
	require.NoError(t, reg.Register(stubDescriptor("b", GroupBusiness, 2)))
	require.NoError(t, reg.Register(stubDescriptor("a", GroupBusiness, 9)))

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	d, _ := reg.Get("a")
	assert.Equal(t, 9, d.Priority)
}

func TestRegistryRejectsInvalidDescriptors(t *testing.T) {
	reg := NewRegistry(nil)
	tests := []struct {
		name string
		desc Descriptor
	}{
		{"empty name", stubDescriptor("", GroupAuth, 1)},
		{"unknown group", stubDescriptor("x", Group("middle"), 1)},
		{"no factory", Descriptor{Name: "x", Group: GroupAuth}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, reg.Register(tt.desc), ErrInvalidDescriptor)
		})
	}
	assert.Empty(t, reg.Names())
}

func TestRegistryUnregisterAndClear(t *testing.T) {
	reg := NewRegistry(nil)
	require.NoError(t, reg.Register(stubDescriptor("a", GroupAuth, 1)))
	require.NoError(t, reg.Register(stubDescriptor("b", GroupAuth, 2)))

	assert.True(t, reg.Unregister("a"))
	assert.False(t, reg.Unregister("a"))
	assert.Equal(t, []string{"b"}, reg.Names())

	reg.Clear()
	assert.Equal(t, 0, reg.Stats().Total)
}

func TestRegistryOptions(t *testing.T) {
	reg := NewRegistry(nil)
	d := stubDescriptor("limit", GroupRateLimiting, 30)
	d.Defaults = Options{"windowMs": 60000, "maxRequests": 100}
	d.Validate = func(opts Options) error {
		if opts["maxRequests"] == 0 {
			return errors.New("maxRequests must be positive")
		}
		return nil
	}
	require.NoError(t, reg.Register(d))

	merged := reg.MergedOptions("limit", Options{"maxRequests": 5})
	assert.Equal(t, Options{"windowMs": 60000, "maxRequests": 5}, merged)

	assert.NoError(t, reg.ValidateOptions("limit", merged))
	assert.ErrorIs(t, reg.ValidateOptions("limit", Options{"maxRequests": 0}), ErrInvalidOptions)
	assert.ErrorIs(t, reg.ValidateOptions("nope", nil), ErrUnknownMiddleware)
}

func TestGroupRank(t *testing.T) {
	ordered := []Group{
		GroupMonitoring, GroupSecurity, GroupRateLimiting, GroupAuth,
		GroupParsing, GroupBusiness, GroupFinalization,
	}
	for i, g := range ordered {
		assert.Equal(t, i+1, g.Rank(), g)
	}
	assert.False(t, Group("other").Valid())
}

func TestRegisterBuiltins(t *testing.T) {
	reg := NewRegistry(nil)
	store := NewRateLimitStore(0, nil)
	require.NoError(t, RegisterBuiltins(reg, Builtins{RateLimitStore: store}))

	for _, name := range []string{"recovery", "requestId", "logger", "cors", "rateLimit", "auth"} {
		assert.True(t, reg.Has(name), name)
	}
	assert.False(t, reg.Has("metrics"), "metrics needs a registerer")
}
