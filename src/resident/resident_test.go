package resident

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"character-hunter/src/coordinator"
)

func fixedStatus() coordinator.Snapshot {
	return coordinator.Snapshot{
		State:    "active",
		Subject:  "Pikachu",
		Source:   "Pokemon",
		Counters: coordinator.Counters{Saved: 3, Ignored: 1},
	}
}

func TestRouter(t *testing.T) {
	ts := httptest.NewServer(NewServer(0, fixedStatus).Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content type = %q", ct)
	}

	resp2, err := http.Post(ts.URL+"/status", "text/plain", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST /status = %d, expected 405", resp2.StatusCode)
	}
}

func TestServerClientRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	srv := NewServer(0, fixedStatus)
	if err := srv.Listen(); err != nil {
		t.Skipf("loopback unavailable in this environment: %v", err)
	}
	serveCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(serveCtx) }()

	port := srv.Port()
	if !Ping(ctx, port) {
		t.Fatal("expected resident to answer ping")
	}
	if got, ok := DetectResident(ctx, port, port); !ok || got != port {
		t.Errorf("DetectResident = %d, %v", got, ok)
	}
	snap, err := FetchStatus(ctx, port)
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if snap.Subject != "Pikachu" || snap.Counters.Saved != 3 {
		t.Errorf("unexpected snapshot %+v", snap)
	}

	second := NewServer(port, fixedStatus)
	if err := second.Listen(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Listen = %v, expected ErrAlreadyRunning", err)
	}

	stop()
	if err := <-done; err != nil {
		t.Errorf("Serve returned %v", err)
	}
	if Ping(ctx, port) {
		t.Error("resident still answering after stop")
	}
}

func TestServeBeforeListen(t *testing.T) {
	if err := NewServer(0, fixedStatus).Serve(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
