package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// startTestMetricsServer поднимает служебный сервер на свободном порту и ждёт /livez.
func startTestMetricsServer(t *testing.T, ctx context.Context, handler *healthcheck.Handler) (string, *http.Server) {
	t.Helper()

	base := fmt.Sprintf("http://127.0.0.1:%d", findFreePort(t))
	addr := base[len("http://"):]
	srv := startMetricsServer(ctx, addr, log.WithField("test", t.Name()), handler)
	require.NotNil(t, srv)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)
	return base, srv
}

func TestStartMetricsServer_ServesOperationalEndpoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base, _ := startTestMetricsServer(t, ctx, healthcheck.NewHandler(version.Version()))

	testCases := []struct {
		path     string
		contains string
	}{
		{path: "/metrics", contains: "go_goroutines"},
		{path: "/healthz", contains: version.Version()},
		{path: "/readyz"},
		{path: "/livez", contains: "ok"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(base + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			require.Contains(t, string(body), tc.contains)
		})
	}
}

func TestStartMetricsServer_ReadinessFollowsCriticalChecks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := healthcheck.NewHandler(version.Version())
	handler.RegisterChecker("storage", healthcheck.CheckFunc(func(context.Context) error {
		return errors.New("dial tcp: connection refused")
	}))
	base, _ := startTestMetricsServer(t, ctx, handler)

	resp, err := http.Get(base + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	// liveness не зависит от хранилища
	resp, err = http.Get(base + "/livez")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartMetricsServer_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	base, _ := startTestMetricsServer(t, ctx, healthcheck.NewHandler(version.Version()))

	cancel()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/livez")
		if err == nil {
			resp.Body.Close()
		}
		return err != nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestStartMetricsServer_BusyAddrDoesNotPanic(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := startMetricsServer(ctx, busy.Addr().String(), log.WithField("test", "busy"), healthcheck.NewHandler(version.Version()))
	require.NotNil(t, srv)
}

func TestShutdownHTTP(t *testing.T) {
	logger := log.WithField("test", "shutdown-http")
	shutdownHTTP(nil, logger)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	url := srv.URL
	shutdownHTTP(srv.Config, logger)
	srv.Listener.Close()

	_, err := http.Get(url)
	require.Error(t, err)
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}

func TestNewHealthHandler_StorageIsCritical(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, log.WithField("test", "health"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies failed: %v", err)
	}
	deps.storageChecker = healthcheck.CheckFunc(func(context.Context) error { return errors.New("connection refused") })

	handler := newHealthHandler(deps, &services{})
	resp := handler.Run(context.Background())
	if resp.Status != healthcheck.StatusUnhealthy {
		t.Fatalf("expected unhealthy status, got %s", resp.Status)
	}
	if _, ok := resp.Checks["outbox"]; !ok {
		t.Fatal("expected outbox check to be registered")
	}

	rec := httptest.NewRecorder()
	handler.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from /readyz, got %d", rec.Code)
	}
}

func TestNewHealthHandler_OutboxLagIsDegraded(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), Config{StorageDriver: StorageDriverMemory}, log.WithField("test", "health"))
	if err != nil {
		t.Fatalf("initRuntimeDependencies failed: %v", err)
	}
	deps.outboxRepo = laggingOutbox{OutboxRepository: deps.outboxRepo}

	resp := newHealthHandler(deps, nil).Run(context.Background())
	if resp.Status != healthcheck.StatusDegraded {
		t.Fatalf("expected degraded status, got %s", resp.Status)
	}
}

type laggingOutbox struct {
	domain.OutboxRepository
}

func (laggingOutbox) Stats(context.Context) (domain.OutboxStats, error) {
	return domain.OutboxStats{PendingCount: 3, OldestPendingAt: time.Now().Add(-time.Hour)}, nil
}
