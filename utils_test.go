package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLog(t *testing.T, dir, name string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(b)
}

func TestAppLoggerSinks(t *testing.T) {
	dir := t.TempDir()
	al, err := NewAppLogger(LogConfig{OutputDir: dir, LogRequests: true, LogDB: true, LogWS: true})
	if err != nil {
		t.Fatalf("NewAppLogger: %v", err)
	}
	defer al.Close()

	h := &LoggingHandler{Logger: al, Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		writeJSON(w, http.StatusTeapot, map[string]string{"echo": string(body)})
	})}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("POST", "/api/step", strings.NewReader("ping")))

	if w.Code != http.StatusTeapot || !strings.Contains(w.Body.String(), `"echo":"ping"`) {
		t.Errorf("Handler response must pass through unchanged, got %d %q", w.Code, w.Body.String())
	}

	al.LogWebSocket("OUT", "", `{"type":"state"}`)

	archive := openTestArchive(t)
	if err := archive.saveSnapshot(newTestState(RoleVillager, RoleWerewolf)); err != nil {
		t.Fatal(err)
	}
	al.LogDB("after save", archive.db)

	requests := readLog(t, dir, "requests.log")
	for _, want := range []string{"POST /api/step", "ping", "418", `"echo":"ping"`} {
		if !strings.Contains(requests, want) {
			t.Errorf("requests.log missing %q:\n%s", want, requests)
		}
	}
	if ws := readLog(t, dir, "websocket.log"); !strings.Contains(ws, "OUT [spectator]") {
		t.Errorf("websocket.log missing frame:\n%s", ws)
	}
	db := readLog(t, dir, "database.log")
	if !strings.Contains(db, "after save") || !strings.Contains(db, "test-game") || !strings.Contains(db, "--- log_entry") {
		t.Errorf("database.log missing archive dump:\n%s", db)
	}
}

func TestAppLoggerDisabledSinks(t *testing.T) {
	al, err := NewAppLogger(LogConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if al.IsEnabled() {
		t.Errorf("Logger without options should be disabled")
	}
	// must not panic without files
	al.LogWebSocket("IN", "p1", "{}")
	al.LogExchange(exchange{Method: "GET", URL: "/"})
	al.LogDB("nothing", nil)
}
