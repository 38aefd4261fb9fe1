package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rjboer/txsink/internal/logging"
)

const indexPage = `<!doctype html>
<html><head><title>txsink</title></head>
<body>
<h1>txsink</h1>
<pre id="stats">waiting for samples</pre>
<script>
const out = document.getElementById("stats");
new EventSource("/api/live").onmessage = (ev) => {
  out.textContent = JSON.stringify(JSON.parse(ev.data), null, 2);
};
</script>
</body></html>
`

// WebServer exposes the hub over HTTP.
type WebServer struct {
	srv    *http.Server
	hub    *Hub
	logger logging.Logger
}

// NewWebServer wires the hub's endpoints onto a fresh mux.
func NewWebServer(addr string, hub *Hub, logger logging.Logger) *WebServer {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebServer{
		hub:    hub,
		logger: logger.With(logging.F("subsystem", "web")),
		srv:    &http.Server{Addr: addr, Handler: hub.Handler(), ReadHeaderTimeout: 5 * time.Second},
	}
}

// Handler returns the routes served by the dashboard.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/live", h.handleLive)
	mux.HandleFunc("/api/stats", h.handleStats)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/spectrum", h.handleSpectrum)
	mux.HandleFunc("/api/health", h.handleHealth)
	mux.HandleFunc("/api/config", h.handleGetConfig)
	mux.HandleFunc("/api/config/update", h.handleSetConfig)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexPage))
	})
	return mux
}

// Start listens until ctx is canceled, then shuts the server down.
func (w *WebServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("web telemetry shutdown", logging.F("err", err))
		}
	}()

	w.logger.Info("web telemetry listening", logging.F("addr", w.srv.Addr))
	if err := w.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		w.logger.Error("web telemetry server error", logging.F("err", err))
	}
}
