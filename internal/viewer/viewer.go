// Package viewer serves a single page showing the newest archived reading.
package viewer

import (
	"context"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"cloudpico-probe/internal/archive"
	"cloudpico-probe/internal/probe"
	"cloudpico-probe/internal/utils"
)

//go:embed templates/*.html
var templatesFS embed.FS

type LastUpdater interface {
	LastUpdate(ctx context.Context) (LastUpdate, error)
}

type page struct {
	Temperature string
	LastUpdate  string
	Since       string
}

type handler struct {
	store  LastUpdater
	tmpl   *template.Template
	now    func() time.Time
	logger *slog.Logger
}

func parseTemplates(fsys fs.FS) (*template.Template, error) {
	return template.ParseFS(fsys, "templates/index.html")
}

// NewMux returns the viewer routes. It fails if the page template does not
// parse.
func NewMux(store LastUpdater, logger *slog.Logger) (*http.ServeMux, error) {
	tmpl, err := parseTemplates(templatesFS)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &handler{store: store, tmpl: tmpl, now: time.Now, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /health", handleHealth)
	return mux, nil
}

func (h *handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	u, err := h.store.LastUpdate(r.Context())
	switch {
	case errors.Is(err, ErrNoCooks), errors.Is(err, ErrNoObjects):
		utils.WriteText(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		h.logger.Error("last update", "error", err)
		utils.WriteText(w, http.StatusInternalServerError, "failed to load last update")
		return
	}

	p := page{
		Temperature: strconv.FormatFloat(probe.Fahrenheit(u.Celsius), 'f', 1, 64) + "°F",
		LastUpdate:  u.Time.UTC().Format(archive.TimestampLayout),
		Since:       strconv.Itoa(minutesSince(h.now(), u.Time)) + " minutes ago",
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.tmpl.ExecuteTemplate(w, "index.html", p); err != nil {
		h.logger.Error("render index", "error", err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	utils.WriteText(w, http.StatusOK, "ok")
}

// minutesSince truncates toward zero; a reading from the future is negative.
func minutesSince(now, t time.Time) int {
	return int(now.Sub(t) / time.Minute)
}
