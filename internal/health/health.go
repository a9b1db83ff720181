// Package health exposes the liveness and readiness endpoints of the world
// server. Liveness ([Handler.Healthz]) only reports that the process is up
// and for how long. Readiness ([Handler.Readyz]) runs every registered probe
// — database reachability, model backend, whatever the caller wires in — and
// turns 503 as soon as one of them fails, so an orchestrator can hold traffic
// until the world is actually able to serve it.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"
)

// probeTimeout bounds a single readiness probe. A probe that blocks longer
// counts as failed rather than stalling the whole endpoint.
const probeTimeout = 5 * time.Second

// Checker is a single named readiness probe. Check must honor ctx; it
// receives a context that expires after [probeTimeout].
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// report is the JSON body of both endpoints.
type report struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the health endpoints for a fixed set of probes.
type Handler struct {
	checkers []Checker
	started  time.Time
}

// New builds a [Handler] over the given probes. The slice is cloned, so the
// caller may reuse or mutate its copy afterwards.
func New(checkers ...Checker) *Handler {
	return &Handler{
		checkers: slices.Clone(checkers),
		started:  time.Now(),
	}
}

// Register mounts both endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz reports liveness. It always answers 200: if this handler runs at
// all, the process is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{
		Status: "ok",
		Uptime: time.Since(h.started).Truncate(time.Second).String(),
	})
}

// Readyz runs all probes concurrently and reports per-probe outcomes. Every
// probe runs to completion even when a sibling has already failed — the
// response names each broken dependency, not just the first one.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	outcomes := make([]string, len(h.checkers))

	g := new(errgroup.Group)
	for i, c := range h.checkers {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()
			if err := c.Check(ctx); err != nil {
				outcomes[i] = "fail: " + err.Error()
			} else {
				outcomes[i] = "ok"
			}
			return nil
		})
	}
	_ = g.Wait()

	rep := report{Status: "ok"}
	if len(h.checkers) > 0 {
		rep.Checks = make(map[string]string, len(h.checkers))
	}
	code := http.StatusOK
	for i, c := range h.checkers {
		rep.Checks[c.Name] = outcomes[i]
		if outcomes[i] != "ok" {
			rep.Status = "fail"
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, rep)
}

// writeJSON marshals before writing so a marshal failure can still produce a
// clean 500 instead of a truncated body.
func writeJSON(w http.ResponseWriter, code int, rep report) {
	body, err := json.Marshal(rep)
	if err != nil {
		http.Error(w, "health: encode report: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
