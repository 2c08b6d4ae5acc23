package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"SignalHub/internal/domain/models"
	drepo "SignalHub/internal/domain/repository"
	"SignalHub/pkg/logger"

	"github.com/labstack/echo/v4"
)

type fakeBus struct {
	mu        sync.Mutex
	latest    *models.Snapshot
	ch        chan *models.Snapshot
	cancelled bool
}

func newFakeBus() *fakeBus {
	return &fakeBus{ch: make(chan *models.Snapshot, 8)}
}

func (f *fakeBus) Publish(ctx context.Context, lease *drepo.Lease, snap *models.Snapshot) error {
	f.mu.Lock()
	f.latest = snap
	f.mu.Unlock()
	f.ch <- snap
	return nil
}

func (f *fakeBus) Latest(ctx context.Context) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, nil
}

func (f *fakeBus) Subscribe(ctx context.Context) (<-chan *models.Snapshot, func(), error) {
	return f.ch, func() {
		f.mu.Lock()
		f.cancelled = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeBus) wasCancelled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func liveSnapshot(n int) *models.Snapshot {
	return &models.Snapshot{
		GeneratedAt: time.Now().UTC(),
		Mode:        "live",
		OK:          true,
		Count:       n,
	}
}

func newTestServer(t *testing.T, bus drepo.SnapshotBus) *httptest.Server {
	t.Helper()
	e := echo.New()
	h := NewSignalsHandler(logger.Nop(), bus, nil, nil, StreamConfig{DefaultPingSec: 15})
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

// readEvent consumes one "event:"/"data:" pair from an SSE stream.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestStreamReplaysLatestBeforeLive(t *testing.T) {
	bus := newFakeBus()
	bus.latest = liveSnapshot(3)
	srv := newTestServer(t, bus)

	resp, err := http.Get(srv.URL + "/signals/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	event, data := readEvent(t, r)
	if event != "snapshot" {
		t.Fatalf("first event = %q, want snapshot", event)
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatalf("decode replay: %v", err)
	}
	if snap.Count != 3 || !snap.OK {
		t.Fatalf("replayed snapshot = %+v", snap)
	}

	// A later publish arrives as a second snapshot event.
	if err := bus.Publish(context.Background(), nil, liveSnapshot(5)); err != nil {
		t.Fatal(err)
	}
	event, data = readEvent(t, r)
	if event != "snapshot" {
		t.Fatalf("second event = %q", event)
	}
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Count != 5 {
		t.Fatalf("live snapshot count = %d, want 5", snap.Count)
	}
}

func TestStreamEmitsPlaceholderWhenEmpty(t *testing.T) {
	bus := newFakeBus()
	srv := newTestServer(t, bus)

	resp, err := http.Get(srv.URL + "/signals/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	event, data := readEvent(t, bufio.NewReader(resp.Body))
	if event != "snapshot" {
		t.Fatalf("first event = %q", event)
	}
	var snap models.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.OK || snap.Mode != "empty" || snap.Message != "no snapshot yet" {
		t.Fatalf("placeholder = %+v", snap)
	}
}

func TestStreamRejectsOutOfRangePing(t *testing.T) {
	srv := newTestServer(t, newFakeBus())

	for _, q := range []string{"ping_sec=2", "ping_sec=120"} {
		resp, err := http.Get(srv.URL + "/signals/stream?" + q)
		if err != nil {
			t.Fatal(err)
		}
		if ct := resp.Header.Get("Content-Type"); strings.HasPrefix(ct, "text/event-stream") {
			t.Fatalf("%s accepted as a stream, want rejection", q)
		}
		var body struct {
			Status int `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if body.Status != http.StatusBadRequest {
			t.Fatalf("%s: status = %d, want 400", q, body.Status)
		}
	}
}

func TestStreamUnsubscribesOnDisconnect(t *testing.T) {
	bus := newFakeBus()
	bus.latest = liveSnapshot(1)
	srv := newTestServer(t, bus)

	resp, err := http.Get(srv.URL + "/signals/stream")
	if err != nil {
		t.Fatal(err)
	}
	readEvent(t, bufio.NewReader(resp.Body))
	resp.Body.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if bus.wasCancelled() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("subscription not cancelled after client disconnect")
}

func TestLatestEndpoint(t *testing.T) {
	bus := newFakeBus()
	srv := newTestServer(t, bus)

	// Envelope style: HTTP layer stays 200, the payload carries 404.
	var body struct {
		Status int `json:"status"`
	}
	resp, err := http.Get(srv.URL + "/signals/latest")
	if err != nil {
		t.Fatal(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if body.Status != http.StatusNotFound {
		t.Fatalf("empty latest status = %d, want 404", body.Status)
	}

	bus.latest = liveSnapshot(2)
	resp, err = http.Get(srv.URL + "/signals/latest")
	if err != nil {
		t.Fatal(err)
	}
	var ok struct {
		Status int              `json:"status"`
		Data   *models.Snapshot `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ok); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if ok.Status != http.StatusOK || ok.Data == nil || ok.Data.Count != 2 {
		t.Fatalf("latest response = %+v", ok)
	}
}
