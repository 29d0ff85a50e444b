package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/internal/config"
	"github.com/MrEthical07/tenantauth/internal/logging"
	"github.com/MrEthical07/tenantauth/refresh"
	"github.com/MrEthical07/tenantauth/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRefreshStoreSQLite(t *testing.T) {
	cfg := &config.Config{RefreshStore: config.RefreshStoreConfig{Driver: config.StoreSQLite, DSN: "file::memory:"}}

	store, closeStore, err := openRefreshStore(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closeStore()
	require.NotNil(t, store)

	ctx := context.Background()
	value, err := store.Create(ctx, refresh.Owner{UserID: "u1", TenantID: "default"}, time.Hour)
	require.NoError(t, err)
	rec, err := store.FindValid(ctx, value)
	require.NoError(t, err)
	assert.Equal(t, "u1", rec.UserID)
}

func TestOpenRefreshStoreRedisNeedsClient(t *testing.T) {
	cfg := &config.Config{RefreshStore: config.RefreshStoreConfig{Driver: config.StoreRedis}}
	_, _, err := openRefreshStore(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestOpenUsersFromSeed(t *testing.T) {
	cfg := &config.Config{
		Auth: config.AuthConfig{DefaultTenant: "default"},
		Users: config.UsersConfig{
			Source: config.UsersSeed,
			Seed:   []users.Seed{{ID: "u1", Username: "alice", PasswordHash: "digest"}},
		},
	}

	provider, closeUsers, err := openUsers(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer closeUsers()

	u, err := provider.FindByUsername(context.Background(), "default", "alice")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
}

func TestAuditSinkLogsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	cfg := &config.Config{Audit: config.AuditConfig{Enabled: true}}

	sink, closeSink := auditSink(cfg, log)
	defer closeSink()
	sink.Emit(context.Background(), tenantauth.AuditEvent{EventType: "login_success", UserID: "u1", Success: true})

	var rec struct {
		Msg   string         `json:"msg"`
		Event map[string]any `json:"event"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "audit", rec.Msg)
	assert.Equal(t, "u1", rec.Event["user_id"])
}
