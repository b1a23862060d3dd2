package entitystore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

type recordedRequest struct {
	Method    string
	Path      string
	RequestID string
	Body      map[string]any
}

type fakeCatalog struct {
	mu       sync.Mutex
	requests []recordedRequest
	router   *mux.Router
}

func newFakeCatalog(t *testing.T) (*fakeCatalog, *HTTPClient) {
	t.Helper()
	fc := &fakeCatalog{router: mux.NewRouter()}
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)

	client, err := NewHTTPClient(HTTPConfig{
		BaseURL: srv.URL,
		Scope:   Scope{TopologyID: 1, VersionID: 2},
		Timeout: 2 * time.Second,
		Headers: map[string]string{"Authorization": "Bearer t"},
	}, nil)
	require.NoError(t, err)
	return fc, client
}

func (fc *fakeCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, RequestID: r.Header.Get("X-Request-ID")}
	b, _ := io.ReadAll(r.Body)
	if len(b) > 0 {
		_ = json.Unmarshal(b, &rec.Body)
	}
	r.Body = io.NopCloser(bytes.NewReader(b))
	fc.mu.Lock()
	fc.requests = append(fc.requests, rec)
	fc.mu.Unlock()
	fc.router.ServeHTTP(w, r)
}

func (fc *fakeCatalog) last() recordedRequest {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.requests[len(fc.requests)-1]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestHTTPConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     HTTPConfig
		wantErr bool
	}{
		{"valid", HTTPConfig{BaseURL: "http://localhost:8080", Scope: Scope{TopologyID: 1}}, false},
		{"missing url", HTTPConfig{Scope: Scope{TopologyID: 1}}, true},
		{"bad scheme", HTTPConfig{BaseURL: "ftp://host", Scope: Scope{TopologyID: 1}}, true},
		{"missing topology", HTTPConfig{BaseURL: "http://localhost"}, true},
		{"negative timeout", HTTPConfig{BaseURL: "http://localhost", Scope: Scope{TopologyID: 1}, Timeout: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestHTTPClientPaths(t *testing.T) {
	fc, client := newFakeCatalog(t)
	ctx := context.Background()

	fc.router.HandleFunc("/api/v1/catalog/topologies/{tid}/{category}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": 5, "name": "KAFKA", "versionId": 2})
	}).Methods(http.MethodPost)
	fc.router.HandleFunc("/api/v1/catalog/topologies/{tid}/versions/{vid}/{category}/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 5, "name": "KAFKA"})
	}).Methods(http.MethodGet)
	fc.router.HandleFunc("/api/v1/catalog/topologies/{tid}/versions/{vid}/{category}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"entities": []any{
			map[string]any{"id": 5}, map[string]any{"id": 6},
		}})
	}).Methods(http.MethodGet)
	fc.router.HandleFunc("/api/v1/catalog/topologies/{tid}/{category}/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": 5})
	}).Methods(http.MethodPut, http.MethodDelete)

	created, err := client.CreateNode(ctx, topology.CategorySources, &Entity{Name: "KAFKA", Config: Config{}, BundleID: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(5), created.ID)
	assert.Contains(t, created.Extra, "versionId")
	req := fc.last()
	assert.Equal(t, "/api/v1/catalog/topologies/1/sources", req.Path)
	assert.Equal(t, map[string]any{}, req.Body["config"])
	assert.Equal(t, float64(3), req.Body["topologyComponentBundleId"])
	_, err = uuid.Parse(req.RequestID)
	assert.NoError(t, err, "request id is a uuid")

	_, err = client.GetNode(ctx, topology.CategoryProcessors, 5)
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/catalog/topologies/1/versions/2/processors/5", fc.last().Path)

	list, err := client.ListNodes(ctx, topology.CategoryEdges)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, "/api/v1/catalog/topologies/1/versions/2/edges", fc.last().Path)

	_, err = client.UpdateNode(ctx, topology.CategorySinks, 5, &Entity{Name: "HDFS"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPut, fc.last().Method)
	assert.Equal(t, "/api/v1/catalog/topologies/1/sinks/5", fc.last().Path)

	_, err = client.DeleteNode(ctx, topology.CategoryStreams, 5)
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, fc.last().Method)
	assert.Equal(t, "/api/v1/catalog/topologies/1/streams/5", fc.last().Path)
}

func TestHTTPClientRejection(t *testing.T) {
	fc, client := newFakeCatalog(t)
	ctx := context.Background()

	fc.router.HandleFunc("/api/v1/catalog/topologies/1/versions/2/rules/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"responseCode":    1101,
			"responseMessage": "Entity with id [9] not found",
		})
	})
	fc.router.HandleFunc("/api/v1/catalog/topologies/1/streams/{id}", func(w http.ResponseWriter, r *http.Request) {
		// some rejections come back with a success status
		writeJSON(w, http.StatusOK, map[string]any{
			"responseCode":    1102,
			"responseMessage": "Stream is in use",
		})
	})
	fc.router.HandleFunc("/api/v1/catalog/topologies/1/sinks/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.GetNode(ctx, topology.CategoryRules, 9)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, "Entity with id [9] not found", errors.UserMessage(err))

	_, err = client.DeleteNode(ctx, topology.CategoryStreams, 4)
	require.Error(t, err)
	re, ok := errors.IsRemote(err)
	require.True(t, ok)
	assert.Equal(t, 1102, re.Code)
	assert.Equal(t, "streams", re.Category)
	assert.Equal(t, string(OpDelete), re.Op)
	assert.False(t, errors.IsNotFound(err))

	_, err = client.DeleteNode(ctx, topology.CategorySinks, 4)
	require.Error(t, err)
	assert.Equal(t, "boom", errors.UserMessage(err))
}

func TestHTTPClientTransportAndDecodeErrors(t *testing.T) {
	fc, client := newFakeCatalog(t)
	fc.router.HandleFunc("/api/v1/catalog/topologies/1/versions/2/sources", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{not json"))
	})

	_, err := client.ListNodes(context.Background(), topology.CategorySources)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.ErrorIs(t, err, errors.ErrParsingFailed)

	unreachable, err := NewHTTPClient(HTTPConfig{
		BaseURL: "http://127.0.0.1:1",
		Scope:   Scope{TopologyID: 1},
		Timeout: time.Second,
	}, nil)
	require.NoError(t, err)
	_, err = unreachable.GetNode(context.Background(), topology.CategorySources, 1)
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestHTTPClientMetaInfoAndBundles(t *testing.T) {
	fc, client := newFakeCatalog(t)
	ctx := context.Background()

	fc.router.HandleFunc("/api/v1/catalog/system/topologyeditormetadata/1", func(w http.ResponseWriter, r *http.Request) {
		var body MetaInfoEnvelope
		_ = json.NewDecoder(r.Body).Decode(&body)
		body.VersionID = 2
		writeJSON(w, http.StatusOK, body)
	}).Methods(http.MethodPut)
	fc.router.HandleFunc("/api/v1/catalog/system/versions/2/topologyeditormetadata/1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"topologyId": 1, "versionId": 2, "data": `{"sources":[]}`})
	}).Methods(http.MethodGet)
	fc.router.HandleFunc("/api/v1/catalog/streams/componentbundles/{type}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"entities": []any{
			map[string]any{"id": 1, "type": mux.Vars(r)["type"], "subType": "SHUFFLE"},
		}})
	})

	stored, err := client.PutMetaInfo(ctx, &MetaInfoEnvelope{Data: "{}"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.TopologyID)
	assert.Equal(t, int64(2), stored.VersionID)

	got, err := client.GetMetaInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"sources":[]}`, got.Data)

	bundles, err := client.ListBundles(ctx, "link")
	require.NoError(t, err)
	require.Len(t, bundles, 1)
	assert.Equal(t, BundleLink, bundles[0].Type)
	assert.Equal(t, "/api/v1/catalog/streams/componentbundles/LINK", fc.last().Path)
}
