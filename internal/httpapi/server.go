// Package httpapi serves the probe status: GET / as JSON or text, a fixed
// fallback body for every unknown path, plus health, journal and live-stream
// routes.
package httpapi

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"cloudpico-probe/internal/journal"
	"cloudpico-probe/internal/probe"
	"cloudpico-probe/internal/status"
	"cloudpico-probe/internal/utils"
)

// FallbackBody answers every path without a route.
const FallbackBody = "Whoopsie"

const (
	FormatJSON = "json"
	FormatText = "text"
)

type StatusReader interface {
	Snapshot() status.Snapshot
}

type ReadingsReader interface {
	Latest(ctx context.Context, limit int) ([]journal.Entry, error)
}

type Options struct {
	Format string
	// Readings nil leaves /readings unrouted.
	Readings       ReadingsReader
	StreamInterval time.Duration
	Logger         *slog.Logger
}

type statusBody struct {
	Temp     float64         `json:"temp"`
	TempF    float64         `json:"temp_f"`
	Status   status.State    `json:"status"`
	Archival status.Archival `json:"archival"`
}

func newStatusBody(s status.Snapshot) statusBody {
	return statusBody{
		Temp:     s.Temperature,
		TempF:    math.Round(probe.Fahrenheit(s.Temperature)*100) / 100,
		Status:   s.State,
		Archival: s.Archival,
	}
}

func (b statusBody) text() string {
	return strconv.FormatFloat(b.Temp, 'f', -1, 64) + "°C " +
		strconv.FormatFloat(b.TempF, 'f', -1, 64) + "°F " +
		b.Status.String()
}

type api struct {
	ctx      context.Context
	status   StatusReader
	format   string
	readings ReadingsReader
	interval time.Duration
	logger   *slog.Logger
}

// NewMux routes the status API. ctx bounds live websocket streams, which
// outlive http.Server.Shutdown once hijacked.
func NewMux(ctx context.Context, st StatusReader, opts Options) *http.ServeMux {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Format == "" {
		opts.Format = FormatJSON
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	a := &api{
		ctx:      ctx,
		status:   st,
		format:   opts.Format,
		readings: opts.Readings,
		interval: opts.StreamInterval,
		logger:   opts.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.handleStatus)
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /ws", a.handleStream)
	if a.readings != nil {
		mux.HandleFunc("GET /readings", a.handleReadings)
	}
	mux.HandleFunc("/", handleFallback)
	return mux
}

func NewServer(addr string, handler http.Handler, logger *slog.Logger) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &http.Server{
		Addr:              addr,
		Handler:           requestLogger(logger, handler),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (a *api) handleStatus(w http.ResponseWriter, _ *http.Request) {
	body := newStatusBody(a.status.Snapshot())
	if a.format == FormatText {
		utils.WriteText(w, http.StatusOK, body.text())
		return
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

func (a *api) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) handleReadings(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			utils.WriteError(w, http.StatusBadRequest, "invalid 'limit' (expected integer)")
			return
		}
		if n <= 0 || n > journal.MaxLimit {
			utils.WriteError(w, http.StatusBadRequest, "'limit' must be between 1 and "+strconv.Itoa(journal.MaxLimit))
			return
		}
		limit = n
	}

	items, err := a.readings.Latest(r.Context(), limit)
	if err != nil {
		a.logger.Error("failed to read journal", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	if items == nil {
		items = []journal.Entry{}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{
		"limit": limit,
		"items": items,
	})
}

func handleFallback(w http.ResponseWriter, _ *http.Request) {
	utils.WriteText(w, http.StatusOK, FallbackBody)
}
