// Package admin is the read-only operator introspection surface,
// deliberately bound to a gorilla/mux router distinct from the
// ingress chi.Router (SPEC_FULL.md §6.7) so a routing bug in either
// library's matcher can never leak one surface into the other.
// Grounded on the teacher's internal/api/server.go route-registration
// shape, generalised from its health/version endpoints to this
// runtime's debug introspection set.
package admin

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/FairForge/edgerunner/internal/breaker"
	"github.com/FairForge/edgerunner/internal/cache"
	"github.com/FairForge/edgerunner/internal/pool"
	"github.com/FairForge/edgerunner/internal/routing"
	"github.com/FairForge/edgerunner/internal/version"
)

// Server exposes debug endpoints over the runtime's live routing
// table, cache, pool, breaker registry, and version ledger. Nothing
// it reaches is mutated.
type Server struct {
	Routes   *routing.Table
	Cache    *cache.Cache
	Pool     *pool.Pool
	Breakers *breaker.Registry
	Ledger   *version.Ledger
}

// Router builds the gorilla/mux router for the admin surface.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/debug/routes", s.handleRoutes).Methods(http.MethodGet)
	r.HandleFunc("/debug/cache", s.handleCache).Methods(http.MethodGet)
	r.HandleFunc("/debug/pool/{function_id}", s.handlePool).Methods(http.MethodGet)
	r.HandleFunc("/debug/breaker/{function_id}", s.handleBreaker).Methods(http.MethodGet)
	r.HandleFunc("/debug/versions/{function_id}", s.handleVersions).Methods(http.MethodGet)
	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type routeView struct {
	ID          string   `json:"id"`
	Host        string   `json:"host"`
	FunctionID  string   `json:"function_id"`
	Priority    int      `json:"priority"`
	PoPSelector string   `json:"pop_selector,omitempty"`
	Path        []string `json:"path_segments"`
}

func (s *Server) handleRoutes(w http.ResponseWriter, _ *http.Request) {
	routes := s.Routes.Snapshot()
	out := make([]routeView, 0, len(routes))
	for _, rt := range routes {
		out = append(out, routeView{
			ID:          rt.ID,
			Host:        rt.Host,
			FunctionID:  rt.FunctionID,
			Priority:    rt.Priority,
			PoPSelector: rt.PoPSelector,
			Path:        rt.PathSegs,
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleCache(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.Cache.Stats())
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	functionID := mux.Vars(r)["function_id"]
	writeJSON(w, map[string]int{"hot_instances": s.Pool.HotCount(functionID)})
}

func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	functionID := mux.Vars(r)["function_id"]
	state := s.Breakers.Get(functionID).State()
	writeJSON(w, map[string]string{"function_id": functionID, "state": state.String()})
}

func (s *Server) handleVersions(w http.ResponseWriter, r *http.Request) {
	functionID := mux.Vars(r)["function_id"]
	entries, err := s.Ledger.List(functionID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, entries)
}
