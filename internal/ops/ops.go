// Package ops exposes a small HTTP surface for health checks and inspection.
package ops

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/NolanChai/discord-gm/dispatch"
	"github.com/NolanChai/discord-gm/internal/profile"
	"github.com/NolanChai/discord-gm/internal/state"
)

// Server answers operational queries about a running bot.
type Server struct {
	Dispatcher *dispatch.Dispatcher
	Catalog    *dispatch.Catalog
	Profiles   *profile.Manager
	States     *state.Manager
	Logger     *slog.Logger
}

// Router builds the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/functions", func(w http.ResponseWriter, _ *http.Request) {
		type entry struct {
			Name    string `json:"name"`
			Purpose string `json:"purpose,omitempty"`
		}
		byName := map[string]string{}
		if s.Catalog != nil {
			for _, d := range s.Catalog.Entries() {
				byName[d.Name] = d.Purpose
			}
		}
		var out []entry
		for _, name := range s.Dispatcher.Names() {
			out = append(out, entry{Name: name, Purpose: byName[name]})
		}
		s.writeJSON(w, out)
	})

	r.Get("/users/{id}/profile", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		type view struct {
			Profile *profile.Profile `json:"profile"`
			State   string           `json:"state"`
		}
		s.writeJSON(w, view{Profile: s.Profiles.Load(id), State: s.States.Get(id)})
	})

	return r
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil && s.Logger != nil {
		s.Logger.Error("writing response", "error", err)
	}
}
