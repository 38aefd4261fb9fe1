package telemetry

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rjboer/txsink/internal/logging"
	"github.com/rjboer/txsink/internal/sink"
)

func newTestHub() *Hub {
	return NewHub(3, logging.New(logging.Debug, logging.Text, io.Discard))
}

func streamingSample(ts time.Time, sent, underruns uint64) Sample {
	return Sample{Timestamp: ts, State: sink.Streaming.String(), BuffersSent: sent, Underruns: underruns}
}

func TestHubHistoryIsBounded(t *testing.T) {
	hub := newTestHub()
	base := time.Now()
	for i := 0; i < 5; i++ {
		hub.Report(streamingSample(base.Add(time.Duration(i)*time.Second), uint64(10*i), 0))
	}
	hist := hub.History()
	if len(hist) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(hist))
	}
	if hist[0].BuffersSent != 20 || hist[2].BuffersSent != 40 {
		t.Fatalf("unexpected retained samples %+v", hist)
	}
	if hist[2].BuffersPerSecond != 10 {
		t.Fatalf("expected 10 buffers/s, got %v", hist[2].BuffersPerSecond)
	}
}

func TestFromStats(t *testing.T) {
	ts := time.Unix(100, 0)
	s := FromStats(sink.Stats{State: sink.Stopping, Buffers: 15, Queued: 4, BuffersSent: 9, Underruns: 2}, ts)
	if s.State != "stopping" || s.Buffers != 15 || s.Queued != 4 || s.BuffersSent != 9 || s.Underruns != 2 || !s.Timestamp.Equal(ts) {
		t.Fatalf("unexpected sample %+v", s)
	}
}

func TestHealth(t *testing.T) {
	hub := newTestHub()
	if h := hub.Health(); h.Status != "idle" || h.Process.NumGoroutine == 0 {
		t.Fatalf("unexpected empty health %+v", h)
	}
	now := time.Now()
	hub.Report(streamingSample(now, 1, 0))
	hub.Report(streamingSample(now.Add(time.Second), 2, 0))
	if h := hub.Health(); h.Status != "ok" {
		t.Fatalf("expected ok, got %+v", h)
	}
	hub.Report(streamingSample(now.Add(2*time.Second), 3, 4))
	if h := hub.Health(); h.Status != "degraded" || h.Latest.Underruns != 4 {
		t.Fatalf("expected degraded, got %+v", h)
	}
}

func TestLogEventBounded(t *testing.T) {
	hub := newTestHub()
	for i := 0; i < 150; i++ {
		hub.LogEvent("warn", "TX: underrun, sending silence")
	}
	if got := len(hub.Events()); got != defaultConfig().EventLimit {
		t.Fatalf("expected %d events, got %d", defaultConfig().EventLimit, got)
	}
}

func TestHandleStats(t *testing.T) {
	hub := newTestHub()
	rr := httptest.NewRecorder()
	hub.handleStats(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any sample, got %d", rr.Code)
	}

	hub.Report(streamingSample(time.Now(), 7, 1))
	rr = httptest.NewRecorder()
	hub.handleStats(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	var got Sample
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.BuffersSent != 7 || got.Underruns != 1 {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestHandlersRejectPost(t *testing.T) {
	hub := newTestHub()
	handlers := map[string]http.HandlerFunc{
		"/api/history":  hub.handleHistory,
		"/api/events":   hub.handleEvents,
		"/api/spectrum": hub.handleSpectrum,
		"/api/health":   hub.handleHealth,
	}
	for path, h := range handlers {
		rr := httptest.NewRecorder()
		h(rr, httptest.NewRequest(http.MethodPost, path, nil))
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", path, rr.Code)
		}
	}
}

func TestHandleSpectrum(t *testing.T) {
	hub := newTestHub()
	bins := []float64{-60, -3, -60}
	hub.UpdateSpectrum(bins, 433.92e6, 2e6, "tone")
	bins[1] = 0

	rr := httptest.NewRecorder()
	hub.handleSpectrum(rr, httptest.NewRequest(http.MethodGet, "/api/spectrum", nil))
	var resp SpectrumSnapshot
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Bins) != 3 || resp.Bins[1] != -3 || resp.Source != "tone" || resp.CenterHz != 433.92e6 {
		t.Fatalf("unexpected snapshot %+v", resp)
	}
}

func TestHandleSetConfig(t *testing.T) {
	hub := newTestHub()
	for i := 0; i < 3; i++ {
		hub.Report(streamingSample(time.Now(), uint64(i), 0))
	}

	body := bytes.NewBufferString(`{"historyLimit": 2}`)
	rr := httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodPost, "/api/config/update", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if cfg := hub.ConfigSnapshot(); cfg.HistoryLimit != 2 || cfg.EventLimit != defaultConfig().EventLimit {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(hub.History()) != 2 {
		t.Fatalf("history not trimmed to new limit")
	}

	rr = httptest.NewRecorder()
	hub.handleSetConfig(rr, httptest.NewRequest(http.MethodPost, "/api/config/update", strings.NewReader(`{"historyLimit": 100000}`)))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range limit, got %d", rr.Code)
	}
}

func TestLiveStreamsHistoryAndUpdates(t *testing.T) {
	hub := newTestHub()
	hub.Report(streamingSample(time.Now(), 1, 0))

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/live", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	events := make(chan Sample, 4)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line, ok := strings.CutPrefix(sc.Text(), "data: ")
			if !ok {
				continue
			}
			var s Sample
			if json.Unmarshal([]byte(line), &s) == nil {
				events <- s
			}
		}
		close(events)
	}()

	first := <-events
	if first.BuffersSent != 1 {
		t.Fatalf("expected history replay first, got %+v", first)
	}
	hub.Report(streamingSample(time.Now(), 2, 0))
	select {
	case s := <-events:
		if s.BuffersSent != 2 {
			t.Fatalf("unexpected live sample %+v", s)
		}
	case <-ctx.Done():
		t.Fatalf("no live sample received")
	}
}

type fixedStats struct{ st sink.Stats }

func (f fixedStats) Stats() sink.Stats { return f.st }

type collector struct {
	mu      sync.Mutex
	samples []Sample
}

func (c *collector) Report(s Sample) {
	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

func TestPollReportsUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &collector{}
	done := make(chan struct{})
	go func() {
		Poll(ctx, fixedStats{sink.Stats{State: sink.Streaming, BuffersSent: 5}}, time.Millisecond, c)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-done

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.samples) < 2 {
		t.Fatalf("expected periodic samples, got %d", len(c.samples))
	}
	if c.samples[len(c.samples)-1].BuffersSent != 5 {
		t.Fatalf("unexpected final sample %+v", c.samples[len(c.samples)-1])
	}
}

func TestStdoutReporterSkipsRepeats(t *testing.T) {
	var buf bytes.Buffer
	r := NewStdoutReporter(logging.New(logging.Info, logging.Text, &buf))
	s := streamingSample(time.Now(), 3, 0)
	r.Report(s)
	r.Report(s)
	if n := strings.Count(buf.String(), "tx stats"); n != 1 {
		t.Fatalf("expected one log line, got %d: %q", n, buf.String())
	}
	s.Underruns = 1
	r.Report(s)
	if !strings.Contains(buf.String(), "underruns=1") {
		t.Fatalf("underruns missing from %q", buf.String())
	}
}

func TestMultiReporter(t *testing.T) {
	a, b := &collector{}, &collector{}
	MultiReporter{a, nil, b}.Report(Sample{State: "idle"})
	if len(a.samples) != 1 || len(b.samples) != 1 {
		t.Fatalf("fan-out failed")
	}
}
