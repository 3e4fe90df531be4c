// Package model holds the data types shared across the edge runner's
// subsystems: function metadata, routes, and the control-plane wire
// format. Keeping them in one place avoids import cycles between
// registry, routing, reconciler, and controlplane.
package model

import "time"

// FunctionMetadata is the registry's record for one deployed function.
// It is replaced, never mutated, when a newer version is activated.
type FunctionMetadata struct {
	FunctionID      string
	Version         string
	ArtifactURL     string
	SHA256          string
	MemoryPages     uint32
	MaxExecutionMS  uint32
	ConcurrencyCap  uint32
	// BurstRPS/BurstSize configure an optional token-bucket admission
	// gate on top of the sliding window; BurstRPS <= 0 means unconfigured.
	BurstRPS        float64
	BurstSize       int
	Entrypoint      string
	RegisteredAt    time.Time
}

// CachedFunctionAd is what a node advertises in a heartbeat for a
// function it already holds in its local artifact cache.
type CachedFunctionAd struct {
	FunctionID string `json:"function_id"`
	Version    string `json:"version"`
	State      string `json:"state"`
}

// HeartbeatRequest is the body of POST /api/v1/nodes/{node_id}/heartbeat.
type HeartbeatRequest struct {
	NodeID          string              `json:"node_id"`
	PoPID           string              `json:"pop_id"`
	Status          string              `json:"status"`
	CachedFunctions []CachedFunctionAd  `json:"cached_functions"`
}

// Deployment is one entry of the heartbeat response's deployment list.
type Deployment struct {
	FunctionID     string `json:"function_id"`
	Version        string `json:"version"`
	ArtifactURL    string `json:"artifact_url"`
	SHA256         string `json:"sha256"`
	MemoryPages    int    `json:"memory_pages"`
	MaxExecutionMS int    `json:"max_execution_ms"`
	ConcurrencyCap int    `json:"concurrency_cap,omitempty"`
	BurstRPS       float64 `json:"burst_rps,omitempty"`
	BurstSize      int     `json:"burst_size,omitempty"`
}

// RouteSpec is one entry of the heartbeat response's route list, the
// wire shape of a Route before it is parsed into routing.Route.
type RouteSpec struct {
	ID          string   `json:"id"`
	Host        string   `json:"host"`
	Path        string   `json:"path"`
	FunctionID  string   `json:"function_id"`
	Methods     []string `json:"methods"`
	Priority    int      `json:"priority"`
	PoPSelector string   `json:"pop_selector,omitempty"`
}

// HeartbeatResponse is the body returned by the control plane.
type HeartbeatResponse struct {
	Deployments []Deployment `json:"deployments"`
	Routes      []RouteSpec  `json:"routes"`
}
