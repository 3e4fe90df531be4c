// Package reconciler runs the periodic heartbeat tick: snapshot
// cached state, POST a heartbeat, register deployments, download and
// verify missing artifacts, and replace the route table wholesale.
// Grounded on spec.md §4.5 and original_source's heartbeat/downloader
// pair; the retry backoff on a failed tick reuses the teacher's
// ExponentialBackoff shape (internal/drivers/s3_resilience.go).
package reconciler

import (
	"context"
	"math"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/edgerunner/internal/cache"
	"github.com/FairForge/edgerunner/internal/controlplane"
	"github.com/FairForge/edgerunner/internal/model"
	"github.com/FairForge/edgerunner/internal/registry"
	"github.com/FairForge/edgerunner/internal/routing"
	"github.com/FairForge/edgerunner/internal/version"
)

// Reconciler drives the heartbeat loop against a control-plane client,
// applying the result to the registry, route table, and artifact
// cache.
type Reconciler struct {
	client *controlplane.Client
	cache  *cache.Cache
	reg    *registry.Registry
	routes *routing.Table
	ledger *version.Ledger

	interval time.Duration
	backoff  backoff

	log *zap.Logger

	// cachedFns tracks which (function_id, version) this node
	// currently advertises as cached, for the next heartbeat's
	// snapshot.
	cachedFns map[string]string
}

type backoff struct {
	base, max time.Duration
	attempt   int
}

func (b *backoff) next() time.Duration {
	d := time.Duration(math.Min(
		float64(b.base)*math.Pow(2, float64(b.attempt)),
		float64(b.max),
	))
	b.attempt++
	return d
}

func (b *backoff) reset() { b.attempt = 0 }

// New builds a Reconciler.
func New(client *controlplane.Client, c *cache.Cache, reg *registry.Registry, routes *routing.Table, ledger *version.Ledger, interval time.Duration, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		client:    client,
		cache:     c,
		reg:       reg,
		routes:    routes,
		ledger:    ledger,
		interval:  interval,
		backoff:   backoff{base: time.Second, max: 30 * time.Second},
		log:       log,
		cachedFns: make(map[string]string),
	}
}

// Run blocks, ticking every interval until ctx is cancelled. After a
// failed tick, whatever the error, it logs the failure and waits an
// exponential backoff delay (1s, doubling per consecutive failure,
// capped at 30s) before waiting for the next tick; a successful tick
// resets the backoff.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				delay := r.backoff.next()
				r.log.Warn("reconciler: tick failed, backing off", zap.Error(err), zap.Duration("delay", delay))
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
				continue
			}
			r.backoff.reset()
		}
	}
}

// Tick runs one reconciliation cycle.
func (r *Reconciler) Tick(ctx context.Context) error {
	snapshot := r.snapshotCached()

	resp, err := r.client.Heartbeat(ctx, snapshot)
	if err != nil {
		return err
	}

	for _, d := range resp.Deployments {
		r.applyDeployment(ctx, d)
	}

	r.routes.Replace(resp.Routes)
	return nil
}

func (r *Reconciler) snapshotCached() []model.CachedFunctionAd {
	ads := make([]model.CachedFunctionAd, 0, len(r.cachedFns))
	for fnID, ver := range r.cachedFns {
		ads = append(ads, model.CachedFunctionAd{FunctionID: fnID, Version: ver, State: "cached"})
	}
	return ads
}

// applyDeployment registers metadata unconditionally and attempts to
// provision the artifact; a failed download/verify leaves the
// registry entry in place without marking the function cached, so the
// next heartbeat re-requests it.
func (r *Reconciler) applyDeployment(ctx context.Context, d model.Deployment) {
	md := model.FunctionMetadata{
		FunctionID:     d.FunctionID,
		Version:        d.Version,
		ArtifactURL:    d.ArtifactURL,
		SHA256:         d.SHA256,
		MemoryPages:    uint32(d.MemoryPages),
		MaxExecutionMS: uint32(d.MaxExecutionMS),
		ConcurrencyCap: uint32(d.ConcurrencyCap),
		BurstRPS:       d.BurstRPS,
		BurstSize:      d.BurstSize,
		RegisteredAt:   time.Now(),
	}
	r.reg.Register(md)

	if v, err := strconv.ParseUint(d.Version, 10, 32); err == nil {
		if regErr := r.ledger.Register(d.FunctionID, uint32(v), md); regErr != nil && regErr != version.ErrVersionExists {
			r.log.Warn("reconciler: version ledger register failed",
				zap.String("function_id", d.FunctionID), zap.Error(regErr))
		}
	}

	if r.cache.Has(d.SHA256) {
		r.cachedFns[d.FunctionID] = d.Version
		return
	}

	bytes, err := r.client.DownloadArtifact(ctx, d.ArtifactURL, d.SHA256)
	if err != nil {
		r.log.Warn("reconciler: artifact download failed, will retry next tick",
			zap.String("function_id", d.FunctionID), zap.Error(err))
		return
	}

	if err := r.cache.Put(d.SHA256, bytes); err != nil {
		r.log.Warn("reconciler: artifact cache put failed",
			zap.String("function_id", d.FunctionID), zap.Error(err))
		return
	}

	r.cachedFns[d.FunctionID] = d.Version
}
