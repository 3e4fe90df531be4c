package ingress

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/FairForge/edgerunner/internal/admission"
	"github.com/FairForge/edgerunner/internal/breaker"
	"github.com/FairForge/edgerunner/internal/cache"
	"github.com/FairForge/edgerunner/internal/metrics"
	"github.com/FairForge/edgerunner/internal/model"
	"github.com/FairForge/edgerunner/internal/pool"
	"github.com/FairForge/edgerunner/internal/registry"
	"github.com/FairForge/edgerunner/internal/routing"
	"github.com/FairForge/edgerunner/internal/version"
)

func shaHex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type fixture struct {
	h       *Handler
	cache   *cache.Cache
	reg     *registry.Registry
	routes  *routing.Table
	ledger  *version.Ledger
	brk     *breaker.Registry
	admit   *admission.Limiter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cache.New(t.TempDir(), 1<<20, zap.NewNop())
	require.NoError(t, err)

	reg := registry.New()
	routes := routing.NewTable()
	ledger := version.New()
	brk := breaker.NewRegistry(3, zap.NewNop())
	admit := admission.New(1000, time.Minute)
	p := pool.New(t.Context(), 5, time.Minute, zap.NewNop())

	h := &Handler{
		Routes:                routes,
		Admission:             admit,
		Breakers:              brk,
		Cache:                 c,
		Pool:                  p,
		Registry:              reg,
		Ledger:                ledger,
		Metrics:               metrics.NewCollector(),
		DefaultConcurrencyCap: 10,
	}
	return &fixture{h: h, cache: c, reg: reg, routes: routes, ledger: ledger, brk: brk, admit: admit}
}

func (f *fixture) deploy(t *testing.T, functionID, ver string) {
	t.Helper()
	mod := tinyModule()
	hash := shaHex(mod)
	require.NoError(t, f.cache.Put(hash, mod))

	md := model.FunctionMetadata{
		FunctionID:     functionID,
		Version:        ver,
		SHA256:         hash,
		MemoryPages:    1,
		MaxExecutionMS: 1000,
	}
	f.reg.Register(md)
	require.NoError(t, f.ledger.Register(functionID, 1, md))

	f.routes.Replace([]model.RouteSpec{
		{ID: "r-" + functionID, Host: "*", Path: "/" + functionID, FunctionID: functionID, Methods: []string{"GET"}, Priority: 1},
	})
}

func TestServeHTTPSuccess(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "fn1", "1")

	req := httptest.NewRequest(http.MethodGet, "/fn1", nil)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServeHTTPAssignsRequestID(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "fn1", "1")

	req := httptest.NewRequest(http.MethodGet, "/fn1", nil)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)

	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServeHTTPEchoesIncomingRequestID(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "fn1", "1")

	req := httptest.NewRequest(http.MethodGet, "/fn1", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)

	assert.Equal(t, "caller-supplied-id", w.Header().Get("X-Request-ID"))
}

func TestServeHTTPRouteMiss(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServeHTTPAdmissionDenied(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "fn1", "1")
	f.admit.SetLimit(0)

	req := httptest.NewRequest(http.MethodGet, "/fn1", nil)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestServeHTTPCacheMissReturnsServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	md := model.FunctionMetadata{FunctionID: "fn1", Version: "1", SHA256: "not-cached"}
	f.reg.Register(md)
	require.NoError(t, f.ledger.Register("fn1", 1, md))
	f.routes.Replace([]model.RouteSpec{
		{ID: "r1", Host: "*", Path: "/fn1", FunctionID: "fn1", Methods: []string{"GET"}, Priority: 1},
	})

	req := httptest.NewRequest(http.MethodGet, "/fn1", nil)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServeHTTPBreakerOpenFallsBackToPreviousVersion(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "fn1", "1")

	// Deploy a second, broken version as active; the registry now
	// advertises v2's (nonexistent) hash while v1's bytes remain
	// cached and registered in the ledger.
	badMD := model.FunctionMetadata{FunctionID: "fn1", Version: "2", SHA256: "missing-hash"}
	f.reg.Register(badMD)
	require.NoError(t, f.ledger.Register("fn1", 2, badMD))
	require.NoError(t, f.ledger.SetActive("fn1", 2))

	// Trip the breaker open.
	b := f.brk.Get("fn1")
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, breaker.StateOpen, b.State())

	req := httptest.NewRequest(http.MethodGet, "/fn1", nil)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "should fall back to the cached v1 artifact")
}

func TestServeHTTPBreakerOpenNoFallbackReturnsServiceUnavailable(t *testing.T) {
	f := newFixture(t)
	f.deploy(t, "fn1", "1")

	b := f.brk.Get("fn1")
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	require.Equal(t, breaker.StateOpen, b.State())

	req := httptest.NewRequest(http.MethodGet, "/fn1", nil)
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
