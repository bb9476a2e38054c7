package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/stockbot/config"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Enabled: true},
		Database:    config.DatabaseConfig{Driver: config.DriverMemory},
		Telegram: config.TelegramConfig{
			Enabled:     true,
			Token:       "123:abc",
			BaseURL:     "http://127.0.0.1:1",
			PollTimeout: time.Second,
			QueueSize:   4,
		},
		Completion: config.CompletionConfig{
			APIKey:   "key",
			Endpoint: "http://127.0.0.1:1",
			Model:    "gpt-4",
			Timeout:  time.Second,
		},
		News: config.NewsConfig{
			APIKey:   "key",
			BaseURL:  "http://127.0.0.1:1",
			MaxItems: 3,
			Timeout:  time.Second,
		},
		Budget: config.BudgetConfig{
			DailyLimit:     1,
			MaxRequestCost: 0.1,
			Timezone:       "UTC",
		},
		Session: config.SessionConfig{
			MaxPendingUsers: 100,
			CleanupInterval: time.Minute,
		},
		Access: config.AccessConfig{
			AllowedUsers: []string{"42"},
			AdminUsers:   []string{"1"},
		},
		Aliases: config.AliasConfig{
			File:  filepath.Join(dir, "stocks.yaml"),
			Watch: false,
		},
		Auth: config.AuthConfig{
			Issuer:   "stockbot",
			TokenTTL: time.Hour,
		},
		Audit: config.AuditConfig{
			BufferSize:  16,
			WorkerCount: 1,
		},
		Observability: config.ObservabilityConfig{LogLevel: "debug"},
	}
}

func TestNewDependencies(t *testing.T) {
	t.Run("memory driver wires every component", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Nil(t, deps.DB)
		assert.NotNil(t, deps.Repos)
		assert.NotNil(t, deps.Metrics)
		assert.NotNil(t, deps.Assistant)
		assert.NotNil(t, deps.Bot)
		assert.NotNil(t, deps.AuthMiddleware)
		assert.NotNil(t, deps.HealthHandler)
		assert.NotNil(t, deps.AssistantHandler)
		assert.NotNil(t, deps.AdminHandler)

		// a missing alias file is seeded with the bundled table
		assert.Greater(t, deps.Resolver.Len(), 0)
		_, err = os.Stat(cfg.Aliases.File)
		assert.NoError(t, err)

		allowed, err := deps.Access.IsAllowed(ctx, "42")
		require.NoError(t, err)
		assert.True(t, allowed)
		admin, err := deps.Access.IsAdmin(ctx, "1")
		require.NoError(t, err)
		assert.True(t, admin)
	})

	t.Run("telegram disabled", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Telegram.Enabled = false

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		assert.Nil(t, deps.Bot)
	})

	t.Run("sqlite driver", func(t *testing.T) {
		ctx := context.Background()
		cfg := testConfig(t)
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "data", "stockbot.db")

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		defer deps.Close(ctx)

		require.NotNil(t, deps.storeCheck)
		assert.NoError(t, deps.storeCheck(ctx))
		_, err = os.Stat(cfg.Database.SQLitePath)
		assert.NoError(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Database.Driver = "mongo"

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "failed to initialize database")
	})

	t.Run("unparsable alias file", func(t *testing.T) {
		cfg := testConfig(t)
		require.NoError(t, os.WriteFile(cfg.Aliases.File, []byte("aliases: [unclosed"), 0o644))

		deps, err := NewDependencies(context.Background(), cfg, zaptest.NewLogger(t))
		assert.Error(t, err)
		assert.Nil(t, deps)
		assert.Contains(t, err.Error(), "alias table")
	})
}

func TestDependencies_Tokens(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	// an empty secret is replaced, never used as-is
	token, err := deps.Tokens.Issue("42")
	require.NoError(t, err)
	claims, err := deps.Tokens.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID())
}

func TestDependencies_AliasWatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.Aliases.Watch = true

	deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer deps.Close(ctx)

	require.NoError(t, os.WriteFile(cfg.Aliases.File, []byte("aliases:\n  - name: zzzcorp\n    symbol: ZZZ\n"), 0o644))

	assert.Eventually(t, func() bool {
		symbol, ok := deps.Resolver.Resolve("what about zzzcorp?")
		return ok && symbol == "ZZZ" && deps.Resolver.Len() == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func TestDependenciesClose(t *testing.T) {
	ctx := context.Background()
	deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NoError(t, deps.Close(ctx))
	// second close is a no-op
	assert.NoError(t, deps.Close(ctx))
}
