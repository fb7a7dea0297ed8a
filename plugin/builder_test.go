package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context, args ...any) (any, error) {
	return nil, nil
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.methods == nil {
		t.Error("expected methods slice to be initialized")
	}
}

func TestConfigSetters(t *testing.T) {
	cfg := NewConfig()

	cfg.SetName("custom")
	cfg.SetVersion("1.0.0")
	cfg.SetDescription("Custom plugin")

	assert.Equal(t, "custom", cfg.name)
	assert.Equal(t, "1.0.0", cfg.version)
	assert.Equal(t, "Custom plugin", cfg.description)
}

func TestConfigAddMethod(t *testing.T) {
	cfg := NewConfig()
	cfg.AddMethod("foo", noop)
	cfg.AddMethodWithDesc("bar", "Does bar", noop)

	require.Len(t, cfg.methods, 2)
	assert.Equal(t, "foo", cfg.methods[0].descriptor.Name)
	assert.Empty(t, cfg.methods[0].descriptor.Description)
	assert.Equal(t, "Does bar", cfg.methods[1].descriptor.Description)
}

func TestNew(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := NewConfig()
		cfg.SetName("custom")
		cfg.SetVersion("1.0.0")
		cfg.SetDescription("Custom plugin")
		cfg.AddMethodWithDesc("foo", "Returns foo", func(ctx context.Context, args ...any) (any, error) {
			return "foo", nil
		})
		cfg.AddMethod("bar", noop)

		p, err := New(cfg)
		require.NoError(t, err)

		assert.Equal(t, "custom", p.Name())
		assert.Equal(t, "1.0.0", p.Version())
		assert.Equal(t, "Custom plugin", p.Description())
		assert.Equal(t, []string{"foo", "bar"}, p.Methods())

		fn, ok := p.Lookup("foo")
		require.True(t, ok)
		v, err := fn(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "foo", v)

		_, ok = p.Lookup("baz")
		assert.False(t, ok)

		d := p.Descriptor()
		assert.Equal(t, "custom", d.Name)
		require.Len(t, d.Methods, 2)
		assert.Equal(t, MethodDescriptor{Name: "foo", Description: "Returns foo"}, d.Methods[0])
	})

	t.Run("builder changes after New do not leak", func(t *testing.T) {
		cfg := NewConfig()
		cfg.SetName("custom")
		cfg.SetVersion("1.0.0")
		cfg.AddMethod("foo", noop)

		p, err := New(cfg)
		require.NoError(t, err)

		cfg.AddMethod("bar", noop)
		assert.Equal(t, []string{"foo"}, p.Methods())
	})

	errTests := []struct {
		name  string
		setup func() *Config
	}{
		{"nil config", func() *Config { return nil }},
		{"missing name", func() *Config {
			cfg := NewConfig()
			cfg.SetVersion("1.0.0")
			return cfg
		}},
		{"missing version", func() *Config {
			cfg := NewConfig()
			cfg.SetName("custom")
			return cfg
		}},
		{"empty method name", func() *Config {
			cfg := NewConfig()
			cfg.SetName("custom")
			cfg.SetVersion("1.0.0")
			cfg.AddMethod("", noop)
			return cfg
		}},
		{"nil method", func() *Config {
			cfg := NewConfig()
			cfg.SetName("custom")
			cfg.SetVersion("1.0.0")
			cfg.AddMethod("foo", nil)
			return cfg
		}},
		{"duplicate method", func() *Config {
			cfg := NewConfig()
			cfg.SetName("custom")
			cfg.SetVersion("1.0.0")
			cfg.AddMethod("foo", noop)
			cfg.AddMethod("foo", noop)
			return cfg
		}},
	}

	for _, tt := range errTests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.setup())
			if !errors.Is(err, ErrInvalidPlugin) {
				t.Errorf("expected ErrInvalidPlugin, got %v", err)
			}
		})
	}
}
