package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/teamslot/internal/config"
	"github.com/friendsincode/teamslot/internal/events"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Environment:      "test",
		HTTPBind:         "127.0.0.1",
		HTTPPort:         0,
		DBBackend:        config.DatabaseSQLite,
		DBDSN:            filepath.Join(dir, "teamslot.db"),
		JWTSigningKey:    "server-test-key",
		OptimizerMaxIter: 10,
		EventBus:         config.EventBusMemory,
		ArchiveDir:       filepath.Join(dir, "archive"),
		RedisAddr:        "127.0.0.1:1",
	}
}

func TestNewEventBusDefaultsToMemory(t *testing.T) {
	bus, closeBus := newEventBus(testConfig(t), zerolog.Nop())
	if _, ok := bus.(*events.Bus); !ok {
		t.Fatalf("bus = %T, want *events.Bus", bus)
	}
	if closeBus != nil {
		t.Fatal("memory bus needs no closer")
	}
}

func TestServerServesHealth(t *testing.T) {
	srv, err := New(testConfig(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	rr := httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/healthz = %d", rr.Code)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["leader"]; ok {
		t.Fatal("leader flag reported without election")
	}

	rr = httptest.NewRecorder()
	srv.HTTPServer().Handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/teams/1/schedules", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated API call = %d, want 401", rr.Code)
	}
}
