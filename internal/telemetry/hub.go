// Package telemetry records transmit pipeline statistics and serves them to
// log output and an HTTP dashboard.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/rjboer/txsink/internal/logging"
	"github.com/rjboer/txsink/internal/sink"
)

// Config holds the hub settings that can be changed at runtime.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
	EventLimit   int `json:"eventLimit"`
}

const (
	minHistoryLimit = 1
	maxHistoryLimit = 10_000
	maxEventLimit   = 1_000
)

func defaultConfig() Config {
	return Config{HistoryLimit: 500, EventLimit: 100}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 || base.EventLimit == 0 {
		base = defaultConfig()
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.EventLimit == 0 {
		cfg.EventLimit = base.EventLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	if cfg.EventLimit < 0 || cfg.EventLimit > maxEventLimit {
		return Config{}, fmt.Errorf("event limit must be between 0 and %d", maxEventLimit)
	}
	return cfg, nil
}

// Sample is one statistics snapshot of the transmit pipeline.
type Sample struct {
	Timestamp     time.Time `json:"timestamp"`
	State         string    `json:"state"`
	Queued        int       `json:"queued"`
	Buffers       int       `json:"buffers"`
	BuffersQueued uint64    `json:"buffersQueued"`
	BuffersSent   uint64    `json:"buffersSent"`
	Underruns     uint64    `json:"underruns"`
	Overruns      uint64    `json:"overruns"`
	// BuffersPerSecond is derived from consecutive samples; zero for the first.
	BuffersPerSecond float64 `json:"buffersPerSecond"`
}

// FromStats converts a sink snapshot taken at ts.
func FromStats(st sink.Stats, ts time.Time) Sample {
	return Sample{
		Timestamp:     ts,
		State:         st.State.String(),
		Queued:        st.Queued,
		Buffers:       st.Buffers,
		BuffersQueued: st.BuffersQueued,
		BuffersSent:   st.BuffersSent,
		Underruns:     st.Underruns,
		Overruns:      st.Overruns,
	}
}

// Event is a pipeline diagnostic such as an underrun.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// SpectrumSnapshot is the latest power spectrum of the outgoing signal.
type SpectrumSnapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	CenterHz   float64   `json:"centerHz"`
	SampleRate float64   `json:"sampleRate"`
	Bins       []float64 `json:"bins"`
	Source     string    `json:"source"`
}

// ProcessInfo carries runtime figures for the diagnostics endpoint.
type ProcessInfo struct {
	Uptime       time.Duration `json:"uptime"`
	NumGoroutine int           `json:"numGoroutine"`
	HeapAlloc    uint64        `json:"heapAlloc"`
}

// HealthStatus summarizes whether the transmitter is keeping up.
type HealthStatus struct {
	Status  string      `json:"status"`
	Reason  string      `json:"reason,omitempty"`
	Latest  *Sample     `json:"latest,omitempty"`
	Process ProcessInfo `json:"process"`
}

// Hub keeps a bounded history of samples and events and fans samples out to
// live subscribers.
type Hub struct {
	mu          sync.RWMutex
	history     []Sample
	events      []Event
	subscribers map[chan Sample]struct{}
	config      Config
	spectrum    SpectrumSnapshot
	started     time.Time
	logger      logging.Logger
}

// NewHub builds a hub keeping up to historyLimit samples.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := defaultConfig()
	if historyLimit > 0 {
		cfg.HistoryLimit = historyLimit
	}
	cfg, err := validateConfig(cfg, defaultConfig())
	if err != nil {
		cfg = defaultConfig()
	}
	return &Hub{
		subscribers: make(map[chan Sample]struct{}),
		config:      cfg,
		started:     time.Now(),
		logger:      logger.With(logging.F("subsystem", "telemetry")),
	}
}

// Report records a sample and forwards it to subscribers without blocking.
func (h *Hub) Report(sample Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.history); n > 0 && sample.BuffersPerSecond == 0 {
		sample.BuffersPerSecond = throughput(h.history[n-1], sample)
	}
	h.history = append(h.history, sample)
	if len(h.history) > h.config.HistoryLimit {
		h.history = h.history[len(h.history)-h.config.HistoryLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- sample:
		default:
		}
	}
}

func throughput(prev, cur Sample) float64 {
	dt := cur.Timestamp.Sub(prev.Timestamp).Seconds()
	if dt <= 0 || cur.BuffersSent < prev.BuffersSent {
		return 0
	}
	return float64(cur.BuffersSent-prev.BuffersSent) / dt
}

// LogEvent records a pipeline diagnostic; it satisfies sink.EventLogger.
func (h *Hub) LogEvent(level, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.config.EventLimit == 0 {
		return
	}
	h.events = append(h.events, Event{Timestamp: time.Now(), Level: level, Message: message})
	if len(h.events) > h.config.EventLimit {
		h.events = h.events[len(h.events)-h.config.EventLimit:]
	}
}

// History returns a copy of the stored samples.
func (h *Hub) History() []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Sample, len(h.history))
	copy(out, h.history)
	return out
}

// Events returns a copy of the stored diagnostics.
func (h *Hub) Events() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.events))
	copy(out, h.events)
	return out
}

// Latest returns the newest sample, if any.
func (h *Hub) Latest() (Sample, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.history) == 0 {
		return Sample{}, false
	}
	return h.history[len(h.history)-1], true
}

// ConfigSnapshot returns the active configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// UpdateSpectrum stores the latest spectrum of the outgoing signal.
func (h *Hub) UpdateSpectrum(bins []float64, centerHz, sampleRate float64, source string) {
	snap := SpectrumSnapshot{
		Timestamp:  time.Now(),
		CenterHz:   centerHz,
		SampleRate: sampleRate,
		Bins:       append([]float64(nil), bins...),
		Source:     source,
	}
	h.mu.Lock()
	h.spectrum = snap
	h.mu.Unlock()
}

// Spectrum returns the latest spectrum snapshot.
func (h *Hub) Spectrum() SpectrumSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	snap := h.spectrum
	snap.Bins = append([]float64(nil), snap.Bins...)
	return snap
}

// Subscribe registers a listener for live samples.
func (h *Hub) Subscribe() (<-chan Sample, func()) {
	ch := make(chan Sample, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Health reports "ok" while streaming without new underruns across the last
// two samples, "idle" when not streaming, and "degraded" otherwise.
func (h *Hub) Health() HealthStatus {
	status := HealthStatus{Status: "idle", Process: h.processInfo()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := len(h.history)
	if n == 0 {
		status.Reason = "no samples yet"
		return status
	}
	latest := h.history[n-1]
	status.Latest = &latest
	if latest.State != sink.Streaming.String() {
		return status
	}
	status.Status = "ok"
	if n > 1 && latest.Underruns > h.history[n-2].Underruns {
		status.Status = "degraded"
		status.Reason = "underruns increasing"
	}
	return status
}

func (h *Hub) processInfo() ProcessInfo {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ProcessInfo{
		Uptime:       time.Since(h.started),
		NumGoroutine: runtime.NumGoroutine(),
		HeapAlloc:    ms.HeapAlloc,
	}
}

// MultiReporter fans samples out to several destinations.
type MultiReporter []Reporter

func (m MultiReporter) Report(sample Sample) {
	for _, r := range m {
		if r != nil {
			r.Report(sample)
		}
	}
}

var errMethodNotAllowed = errors.New("method not allowed")

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func requireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, errMethodNotAllowed.Error(), http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (h *Hub) handleHistory(w http.ResponseWriter, r *http.Request) {
	if requireGet(w, r) {
		writeJSON(w, h.History())
	}
}

func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	if requireGet(w, r) {
		writeJSON(w, h.Events())
	}
}

func (h *Hub) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireGet(w, r) {
		return
	}
	latest, ok := h.Latest()
	if !ok {
		http.Error(w, "no samples yet", http.StatusNotFound)
		return
	}
	writeJSON(w, latest)
}

func (h *Hub) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	if requireGet(w, r) {
		writeJSON(w, h.Spectrum())
	}
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	if requireGet(w, r) {
		writeJSON(w, h.Health())
	}
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if requireGet(w, r) {
		writeJSON(w, h.ConfigSnapshot())
	}
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, errMethodNotAllowed.Error(), http.StatusMethodNotAllowed)
		return
	}
	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	cfg, err := validateConfig(incoming, h.config)
	if err == nil {
		h.applyConfigLocked(cfg)
	}
	h.mu.Unlock()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Info("telemetry config updated",
		logging.F("history_limit", cfg.HistoryLimit), logging.F("event_limit", cfg.EventLimit))
	writeJSON(w, cfg)
}

func (h *Hub) applyConfigLocked(cfg Config) {
	h.config = cfg
	if len(h.history) > cfg.HistoryLimit {
		h.history = h.history[len(h.history)-cfg.HistoryLimit:]
	}
	if len(h.events) > cfg.EventLimit {
		h.events = h.events[len(h.events)-cfg.EventLimit:]
	}
}

func (h *Hub) handleLive(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	for _, sample := range h.History() {
		writeEvent(w, sample)
	}
	flusher.Flush()

	for {
		select {
		case sample, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, sample)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, sample Sample) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
