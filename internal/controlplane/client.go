// Package controlplane is the heartbeat/artifact-download client the
// reconciler drives. Grounded on the teacher's internal/auth.go
// (JWT claims + golang-jwt/jwt/v5 signing) and internal/crypto's
// ZstdCompressor (klauspost/compress/zstd, once-initialised
// encoder/decoder), wired to the OAuth2 client-credentials flow and
// heartbeat JSON Schema validation called out in SPEC_FULL.md §6.1.
package controlplane

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/klauspost/compress/zstd"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/FairForge/edgerunner/internal/model"
)

// ErrValidation is returned when a heartbeat response fails JSON
// Schema validation. It is fatal for that tick and is not retried,
// per spec.md §7's error table (Validation: no retry).
var ErrValidation = errors.New("controlplane: response failed schema validation")

// heartbeatResponseSchema is deliberately permissive on nested field
// shapes (the wire structs carry the real contract) and only enforces
// the top-level envelope: both arrays must be present.
const heartbeatResponseSchema = `{
  "type": "object",
  "required": ["deployments", "routes"],
  "properties": {
    "deployments": {"type": "array"},
    "routes": {"type": "array"}
  }
}`

// Client talks to the control plane over HTTP, authenticating with an
// OAuth2 client-credentials bearer token; heartbeats also carry a
// node identity assertion (artifact downloads do not).
type Client struct {
	httpClient *http.Client
	cpURL      string
	nodeID     string
	popID      string

	signingKey []byte

	schema *gojsonschema.Schema

	zstdMu      sync.Mutex
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder

	log *zap.Logger
}

// Config is the subset of config.Config the control-plane client needs.
type Config struct {
	CPURL          string
	NodeID         string
	PoPID          string
	ClientID       string
	ClientSecret   string
	TokenURL       string
	NodeSecret     string
}

// New builds a Client. When ClientID is empty, requests are made
// unauthenticated (useful for tests and local heartbeats against a
// bare control plane).
func New(cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var hc *http.Client
	if cfg.ClientID != "" {
		ccCfg := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		hc = ccCfg.Client(context.Background())
	} else {
		hc = http.DefaultClient
	}

	schemaLoader := gojsonschema.NewStringLoader(heartbeatResponseSchema)
	schema, err := gojsonschema.NewSchema(schemaLoader)
	if err != nil {
		return nil, fmt.Errorf("controlplane: compile schema: %w", err)
	}

	key, err := deriveSigningKey(cfg.NodeSecret, cfg.NodeID)
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("controlplane: new zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("controlplane: new zstd decoder: %w", err)
	}

	return &Client{
		httpClient:  hc,
		cpURL:       cfg.CPURL,
		nodeID:      cfg.NodeID,
		popID:       cfg.PoPID,
		signingKey:  key,
		schema:      schema,
		zstdEncoder: enc,
		zstdDecoder: dec,
		log:         log,
	}, nil
}

// deriveSigningKey expands secret via HKDF-SHA256, salted by nodeID,
// into a 32-byte HS256 key — proves node identity independent of
// whatever tenant the OAuth2 bearer token belongs to.
func deriveSigningKey(secret, nodeID string) ([]byte, error) {
	if secret == "" {
		secret = "edgerunner-dev-secret"
	}
	r := hkdf.New(sha256.New, []byte(secret), []byte(nodeID), []byte("edgerunner-node-assertion"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("controlplane: derive signing key: %w", err)
	}
	return key, nil
}

// nodeAssertionClaims is the JWT payload asserting node identity,
// mirroring the teacher's auth.JWTClaims shape (custom fields plus
// jwt.RegisteredClaims).
type nodeAssertionClaims struct {
	NodeID string `json:"node_id"`
	PoPID  string `json:"pop_id"`
	jwt.RegisteredClaims
}

func (c *Client) nodeAssertion() (string, error) {
	now := time.Now()
	claims := nodeAssertionClaims{
		NodeID: c.nodeID,
		PoPID:  c.popID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.signingKey)
}

// Heartbeat sends the node's cached-function snapshot and returns the
// parsed deployments/routes.
func (c *Client) Heartbeat(ctx context.Context, cached []model.CachedFunctionAd) (*model.HeartbeatResponse, error) {
	reqBody := model.HeartbeatRequest{
		NodeID:          c.nodeID,
		PoPID:           c.popID,
		Status:          "healthy",
		CachedFunctions: cached,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("controlplane: marshal heartbeat: %w", err)
	}

	compressed, err := c.compress(payload)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v1/nodes/%s/heartbeat", c.cpURL, c.nodeID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("controlplane: build heartbeat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Content-Encoding", "zstd")

	assertion, err := c.nodeAssertion()
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("X-Node-Assertion", assertion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("controlplane: heartbeat request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("controlplane: read heartbeat response: %w", err)
	}
	if resp.Header.Get("Content-Encoding") == "zstd" {
		body, err = c.decompress(body)
		if err != nil {
			return nil, err
		}
	}

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("controlplane: heartbeat status %d: %s", resp.StatusCode, string(body))
	}

	result, err := c.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("controlplane: %w: %v", ErrValidation, err)
	}
	if !result.Valid() {
		return nil, fmt.Errorf("controlplane: %w: %v", ErrValidation, result.Errors())
	}

	var hr model.HeartbeatResponse
	if err := json.Unmarshal(body, &hr); err != nil {
		return nil, fmt.Errorf("controlplane: %w: decode: %v", ErrValidation, err)
	}
	return &hr, nil
}

// DownloadArtifact fetches the bytes at url and verifies their
// SHA-256 matches expectedHash before returning them.
func (c *Client) DownloadArtifact(ctx context.Context, url, expectedHash string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("controlplane: build artifact request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("controlplane: artifact request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("controlplane: artifact status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("controlplane: read artifact: %w", err)
	}
	if resp.Header.Get("Content-Encoding") == "zstd" {
		body, err = c.decompress(body)
		if err != nil {
			return nil, err
		}
	}

	sum := sha256.Sum256(body)
	if hex.EncodeToString(sum[:]) != expectedHash {
		return nil, fmt.Errorf("controlplane: artifact hash mismatch")
	}
	return body, nil
}

func (c *Client) compress(data []byte) ([]byte, error) {
	c.zstdMu.Lock()
	defer c.zstdMu.Unlock()
	return c.zstdEncoder.EncodeAll(data, nil), nil
}

func (c *Client) decompress(data []byte) ([]byte, error) {
	c.zstdMu.Lock()
	defer c.zstdMu.Unlock()
	out, err := c.zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("controlplane: zstd decode: %w", err)
	}
	return out, nil
}

// Close releases the zstd decoder's background resources.
func (c *Client) Close() {
	c.zstdDecoder.Close()
}
