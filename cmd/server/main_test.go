package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credentia/internal/ledger/store"
	"credentia/internal/notary/handler"
	"credentia/internal/notary/service"
	"credentia/internal/platform/config"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeHealth struct{ err error }

func (f fakeHealth) Health(context.Context) error { return f.err }

func TestBoundedLedgerAddsDeadline(t *testing.T) {
	l := boundedLedger{ledgerBackend: store.NewInMemory(), timeout: time.Minute}

	err := l.Atomically(context.Background(), func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
		return nil
	})
	require.NoError(t, err)
}

func TestBoundedLedgerUsesConfiguredTimeout(t *testing.T) {
	l := newBoundedLedger(store.NewInMemory(), config.Ledger{TxTimeout: 250 * time.Millisecond})

	err := l.Atomically(context.Background(), func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(250*time.Millisecond), deadline, 200*time.Millisecond)
		return nil
	})
	require.NoError(t, err)
}

func TestBoundedLedgerKeepsCallerDeadline(t *testing.T) {
	l := boundedLedger{ledgerBackend: store.NewInMemory(), timeout: time.Minute}
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()
	want, _ := ctx.Deadline()

	err := l.Atomically(ctx, func(ctx context.Context) error {
		got, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.Equal(t, want, got)
		return nil
	})
	require.NoError(t, err)
}

func TestBoundedLedgerRejectsCancelledContext(t *testing.T) {
	l := boundedLedger{ledgerBackend: store.NewInMemory()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := l.Atomically(ctx, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestOpenLedger(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		cfg := config.Server{Ledger: config.Ledger{Backend: config.BackendMemory}}
		l, err := openLedger(context.Background(), cfg, discard)
		require.NoError(t, err)
		assert.IsType(t, &store.InMemory{}, l)
	})

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Server{Ledger: config.Ledger{
			Backend:    config.BackendSQLite,
			SQLitePath: filepath.Join(t.TempDir(), "ledger.db"),
		}}
		l, err := openLedger(context.Background(), cfg, discard)
		require.NoError(t, err)
		defer l.Close()
		require.NoError(t, l.Health(context.Background()))
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := config.Server{Ledger: config.Ledger{Backend: "tape"}}
		_, err := openLedger(context.Background(), cfg, discard)
		require.Error(t, err)
	})
}

func TestRouterHealth(t *testing.T) {
	notary := handler.New(service.New(store.NewInMemory()), discard, time.Minute)

	t.Run("healthy", func(t *testing.T) {
		r := newRouter(discard, fakeHealth{}, notary, prometheus.NewRegistry())
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("backend down", func(t *testing.T) {
		r := newRouter(discard, fakeHealth{err: errors.New("connection refused")}, notary, prometheus.NewRegistry())
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
