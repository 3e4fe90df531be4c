// Package routing is the prioritised host/path/method route table.
// Matching and tie-break rules are grounded on original_source's
// RouteManager (Vec<Route>, max_by_key(priority)); the concurrency
// shape — readers never block behind the writer — is the teacher's
// copy-on-write swap pattern used for hot config snapshots
// (internal/config/config.go's atomic reload) generalised to
// atomic.Pointer since the whole table is replaced wholesale on every
// heartbeat, never patched in place.
package routing

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/FairForge/edgerunner/internal/model"
)

// Route is the parsed, matchable form of model.RouteSpec.
type Route struct {
	ID          string
	Host        string
	PathSegs    []string
	Methods     map[string]struct{}
	Priority    int
	FunctionID  string
	PoPSelector string

	// insertOrder breaks priority ties: first inserted wins, matching
	// a stable sort over the incoming slice.
	insertOrder int
}

// Match is the result of a successful Table.Match call.
type Match struct {
	FunctionID string
	Params     map[string]string
	Route      *Route
}

// Table is a read-mostly route table replaced wholesale by the
// reconciler and read concurrently by every ingress request.
type Table struct {
	routes atomic.Pointer[[]*Route]
}

// NewTable returns an empty table.
func NewTable() *Table {
	t := &Table{}
	empty := []*Route{}
	t.routes.Store(&empty)
	return t
}

// Replace swaps in a whole new route set built from specs, sorted by
// descending priority with ties broken by input order. This is the
// only mutation the table supports: heartbeat responses are treated
// as the complete, authoritative route set.
func (t *Table) Replace(specs []model.RouteSpec) {
	routes := make([]*Route, 0, len(specs))
	for i, s := range specs {
		routes = append(routes, &Route{
			ID:          s.ID,
			Host:        s.Host,
			PathSegs:    splitPath(s.Path),
			Methods:     methodSet(s.Methods),
			Priority:    s.Priority,
			FunctionID:  s.FunctionID,
			PoPSelector: s.PoPSelector,
			insertOrder: i,
		})
	}
	stableSortByPriorityDesc(routes)
	t.routes.Store(&routes)
}

// Match returns the highest-priority route satisfying host, path and
// method, or ok=false if none match.
func (t *Table) Match(host, path, method string) (Match, bool) {
	routes := *t.routes.Load()
	reqSegs := splitPath(path)

	for _, r := range routes {
		if !hostMatches(r.Host, host) {
			continue
		}
		if !methodMatches(r.Methods, method) {
			continue
		}
		params, ok := pathMatches(r.PathSegs, reqSegs)
		if !ok {
			continue
		}
		return Match{FunctionID: r.FunctionID, Params: params, Route: r}, true
	}
	return Match{}, false
}

// Snapshot returns the current route set for the admin debug surface.
func (t *Table) Snapshot() []*Route {
	routes := *t.routes.Load()
	out := make([]*Route, len(routes))
	copy(out, routes)
	return out
}

func hostMatches(routeHost, reqHost string) bool {
	return routeHost == "*" || routeHost == reqHost
}

func methodMatches(methods map[string]struct{}, reqMethod string) bool {
	if _, ok := methods["*"]; ok {
		return true
	}
	_, ok := methods[reqMethod]
	return ok
}

func methodSet(methods []string) map[string]struct{} {
	out := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		out[m] = struct{}{}
	}
	return out
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// pathMatches compares route segments against request segments.
// A literal segment must match exactly. A ":name" segment matches any
// single segment and is captured. A route of "*" or "/*" (a single "*"
// segment after split) matches anything; a route with no segments
// ("/" or "") matches only a request with no segments. A trailing "/*"
// segment matches any suffix of remaining request segments.
func pathMatches(routeSegs, reqSegs []string) (map[string]string, bool) {
	if len(routeSegs) == 1 && routeSegs[0] == "*" {
		return map[string]string{}, true
	}
	if len(routeSegs) == 0 {
		return map[string]string{}, len(reqSegs) == 0
	}

	params := map[string]string{}
	for i, seg := range routeSegs {
		if seg == "*" {
			return params, true
		}
		if i >= len(reqSegs) {
			return nil, false
		}
		if strings.HasPrefix(seg, ":") {
			params[seg[1:]] = reqSegs[i]
			continue
		}
		if seg != reqSegs[i] {
			return nil, false
		}
	}
	if len(routeSegs) == len(reqSegs) {
		return params, true
	}
	return nil, false
}

// stableSortByPriorityDesc sorts by descending priority, preserving
// insertOrder for ties (first inserted wins).
func stableSortByPriorityDesc(routes []*Route) {
	sort.SliceStable(routes, func(i, j int) bool {
		if routes[i].Priority != routes[j].Priority {
			return routes[i].Priority > routes[j].Priority
		}
		return routes[i].insertOrder < routes[j].insertOrder
	})
}
