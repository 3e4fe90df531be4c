package controlplane

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/edgerunner/internal/model"
)

func shaHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestHeartbeatRoundTrip(t *testing.T) {
	dec, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Node-Assertion"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		if r.Header.Get("Content-Encoding") == "zstd" {
			body, err = dec.DecodeAll(body, nil)
			require.NoError(t, err)
		}

		var hr model.HeartbeatRequest
		require.NoError(t, json.Unmarshal(body, &hr))
		assert.Equal(t, "node-1", hr.NodeID)

		resp := model.HeartbeatResponse{
			Deployments: []model.Deployment{{FunctionID: "f1", Version: "1"}},
			Routes:      []model.RouteSpec{{ID: "r1", Host: "*", Path: "/x", FunctionID: "f1", Methods: []string{"GET"}}},
		}
		out, _ := json.Marshal(resp)
		w.Write(out)
	}))
	defer srv.Close()

	c, err := New(Config{CPURL: srv.URL, NodeID: "node-1", PoPID: "pop-1"}, nil)
	require.NoError(t, err)
	defer c.Close()

	hr, err := c.Heartbeat(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, hr.Deployments, 1)
	assert.Equal(t, "f1", hr.Deployments[0].FunctionID)
}

func TestHeartbeatRejectsInvalidSchema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not_deployments_or_routes": true}`))
	}))
	defer srv.Close()

	c, err := New(Config{CPURL: srv.URL, NodeID: "node-1", PoPID: "pop-1"}, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Heartbeat(t.Context(), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestDownloadArtifactVerifiesHash(t *testing.T) {
	const body = "wasm bytes go here"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	c, err := New(Config{CPURL: srv.URL, NodeID: "node-1"}, nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.DownloadArtifact(t.Context(), srv.URL, "wrong-hash")
	assert.Error(t, err)

	sum := shaHex(body)
	got, err := c.DownloadArtifact(t.Context(), srv.URL, sum)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}
