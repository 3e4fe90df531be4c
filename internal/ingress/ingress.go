// Package ingress is the request-serving path: match a route, gate it
// through admission and the circuit breaker, resolve the function's
// module bytes from the artifact cache, and run it through a pooled
// wazero instance. Grounded on the teacher's internal/gateway/gateway.go
// catch-all handler shape and internal/api/server.go's discipline of
// registering specific routes before a catch-all; the seven-step
// pipeline itself is spec.md §4.6.
package ingress

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/FairForge/edgerunner/internal/admission"
	"github.com/FairForge/edgerunner/internal/breaker"
	"github.com/FairForge/edgerunner/internal/cache"
	"github.com/FairForge/edgerunner/internal/invoker"
	"github.com/FairForge/edgerunner/internal/metrics"
	"github.com/FairForge/edgerunner/internal/model"
	"github.com/FairForge/edgerunner/internal/pool"
	"github.com/FairForge/edgerunner/internal/registry"
	"github.com/FairForge/edgerunner/internal/routing"
	"github.com/FairForge/edgerunner/internal/version"
)

// Handler wires the route table, admission, breaker, cache, pool, and
// metrics together into a single http.Handler. Per-function quotas
// come from the registry's metadata; DefaultConcurrencyCap is the
// fallback when a deployment does not declare its own.
type Handler struct {
	Routes    *routing.Table
	Admission *admission.Limiter
	Breakers  *breaker.Registry
	Cache     *cache.Cache
	Pool      *pool.Pool
	Registry  *registry.Registry
	Ledger    *version.Ledger
	Metrics   *metrics.Collector

	DefaultConcurrencyCap int
	RespCap               int

	Log *zap.Logger
}

func (h *Handler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

// ServeHTTP runs spec.md §4.6's seven steps against one request. It
// is mounted as the catch-all of a chi.Router whose specific routes
// (/metrics, /healthz) are registered first; the admin endpoints are
// served by a separate server and router.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", requestID)

	host := r.Host
	if host == "" {
		host = "localhost"
	}

	match, ok := h.Routes.Match(host, r.URL.Path, r.Method)
	if !ok {
		http.Error(w, "no route", http.StatusNotFound)
		return
	}
	functionID := match.FunctionID

	if !h.Admission.Allow(functionID) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	concurrencyCap := h.DefaultConcurrencyCap
	registeredMD, hasMD := h.Registry.Get(functionID)
	if hasMD && registeredMD.ConcurrencyCap > 0 {
		concurrencyCap = int(registeredMD.ConcurrencyCap)
	}
	if hasMD && !h.Admission.AllowBurst(functionID, registeredMD.BurstRPS, registeredMD.BurstSize) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}
	release, ok := h.Admission.Acquire(functionID, concurrencyCap)
	if !ok {
		http.Error(w, "concurrency cap reached", http.StatusTooManyRequests)
		return
	}
	defer release()

	md, ok := h.resolveServingMetadata(requestID, functionID)
	if !ok {
		http.Error(w, "function unavailable", http.StatusServiceUnavailable)
		return
	}

	rc, err := h.Cache.Get(md.SHA256)
	if err != nil {
		h.Metrics.RecordCacheMiss()
		http.Error(w, "function not provisioned", http.StatusServiceUnavailable)
		return
	}
	h.Metrics.RecordCacheHit()
	moduleBytes, readErr := io.ReadAll(rc)
	rc.Close()
	if readErr != nil {
		http.Error(w, "artifact read failed", http.StatusInternalServerError)
		return
	}

	// poolKey is qualified by version so a rollback (or a fresh
	// deploy) never hands an old version's hot instance to a caller
	// expecting the new one; stacks for superseded versions simply
	// idle out under the pool's idle timeout.
	poolKey := functionID + "@" + md.Version
	inst, err := h.Pool.Acquire(r.Context(), poolKey, moduleBytes, md.MemoryPages)
	if err != nil {
		h.Metrics.RecordError(functionID, "pool_exhausted")
		http.Error(w, "no capacity", http.StatusServiceUnavailable)
		return
	}

	deadline := time.Duration(md.MaxExecutionMS) * time.Millisecond
	if deadline <= 0 {
		deadline = 5 * time.Second
	}

	body, _ := io.ReadAll(r.Body)
	req := invoker.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: encodeHeaders(r.Header),
		Body:    body,
	}

	respCap := h.RespCap
	if respCap <= 0 {
		respCap = invoker.DefaultRespCap
	}

	start := time.Now()
	out, invokeErr := invoker.Invoke(r.Context(), inst.Module, req, respCap, deadline)
	elapsed := time.Since(start).Seconds()
	h.Metrics.RecordInvocation(functionID, elapsed)

	switch {
	case invokeErr == nil:
		h.Pool.Release(r.Context(), inst)
		h.Breakers.Get(functionID).RecordSuccess()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out)

	case errors.Is(invokeErr, invoker.ErrTimeout) || errors.Is(invokeErr, context.DeadlineExceeded) || errors.Is(invokeErr, context.Canceled):
		inst.Discard()
		h.Pool.Release(r.Context(), inst)
		h.Breakers.Get(functionID).RecordFailure()
		h.Metrics.RecordError(functionID, "timeout")
		h.log().Warn("ingress: invocation timed out",
			zap.String("request_id", requestID), zap.String("function_id", functionID), zap.Duration("deadline", deadline))
		http.Error(w, "timeout", http.StatusGatewayTimeout)

	default:
		inst.Discard()
		h.Pool.Release(r.Context(), inst)
		h.Breakers.Get(functionID).RecordFailure()
		h.Metrics.RecordError(functionID, "guest_trap")
		h.log().Warn("ingress: guest trap",
			zap.String("request_id", requestID), zap.String("function_id", functionID), zap.Error(invokeErr))
		http.Error(w, "guest error", http.StatusInternalServerError)
	}
}

// resolveServingMetadata checks the function's breaker: closed or
// half-open serve the currently active registry metadata; open
// attempts a fallback to the previous version via the ledger,
// without mutating the breaker or the ledger's active pointer. ok is
// false when nothing can be served. requestID is carried only for the
// warn log below, so an operator can grep one request's full story
// out of the logs.
func (h *Handler) resolveServingMetadata(requestID, functionID string) (model.FunctionMetadata, bool) {
	if h.Breakers.Get(functionID).Allow() {
		md, ok := h.Registry.Get(functionID)
		return md, ok
	}

	prev, err := h.Ledger.Previous(functionID)
	if err != nil {
		h.log().Warn("ingress: breaker open with no fallback version",
			zap.String("request_id", requestID), zap.String("function_id", functionID), zap.Error(err))
		return model.FunctionMetadata{}, false
	}
	return prev.Metadata, true
}

func encodeHeaders(hdr http.Header) string {
	var b []byte
	for k, vs := range hdr {
		for _, v := range vs {
			b = append(b, k...)
			b = append(b, ':')
			b = append(b, v...)
			b = append(b, '\n')
		}
	}
	return string(b)
}
