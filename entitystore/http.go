package entitystore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

const catalogPrefix = "/api/v1/catalog"

// HTTPConfig configures the catalog REST client
type HTTPConfig struct {
	BaseURL string
	Scope   Scope
	Timeout time.Duration
	Headers map[string]string
}

// Validate checks the configuration for errors
func (c HTTPConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "HTTPConfig", "Validate", "base url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return errors.WrapInvalid(err, "HTTPConfig", "Validate", "invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPConfig", "Validate",
			fmt.Sprintf("unsupported scheme %q", u.Scheme))
	}
	if c.Scope.TopologyID <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPConfig", "Validate", "topology id must be positive")
	}
	if c.Timeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "HTTPConfig", "Validate", "timeout cannot be negative")
	}
	return nil
}

// HTTPClient talks to the Streamline catalog REST API
type HTTPClient struct {
	base    string
	scope   Scope
	headers map[string]string
	http    *http.Client
	logger  *slog.Logger
}

// NewHTTPClient creates a catalog client bound to cfg.Scope
func NewHTTPClient(cfg HTTPConfig, logger *slog.Logger) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		scope:   cfg.Scope,
		headers: cfg.Headers,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "entitystore-http"),
	}, nil
}

// Scope returns the topology version the client is bound to
func (c *HTTPClient) Scope() Scope {
	return c.scope
}

func (c *HTTPClient) versionPath(category topology.Category) string {
	return fmt.Sprintf("%s/topologies/%d/versions/%d/%s", catalogPrefix, c.scope.TopologyID, c.scope.VersionID, category)
}

func (c *HTTPClient) writePath(category topology.Category) string {
	return fmt.Sprintf("%s/topologies/%d/%s", catalogPrefix, c.scope.TopologyID, category)
}

// CreateNode creates an entity in category
func (c *HTTPClient) CreateNode(ctx context.Context, category topology.Category, body *Entity) (*Entity, error) {
	var out Entity
	if err := c.do(ctx, OpCreate, category, http.MethodPost, c.writePath(category), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetNode fetches one entity
func (c *HTTPClient) GetNode(ctx context.Context, category topology.Category, id int64) (*Entity, error) {
	var out Entity
	path := fmt.Sprintf("%s/%d", c.versionPath(category), id)
	if err := c.do(ctx, OpGet, category, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type entityList struct {
	Entities []*Entity `json:"entities"`
}

// ListNodes fetches every entity in category
func (c *HTTPClient) ListNodes(ctx context.Context, category topology.Category) ([]*Entity, error) {
	var out entityList
	if err := c.do(ctx, OpList, category, http.MethodGet, c.versionPath(category), nil, &out); err != nil {
		return nil, err
	}
	if out.Entities == nil {
		out.Entities = []*Entity{}
	}
	return out.Entities, nil
}

// UpdateNode replaces an entity
func (c *HTTPClient) UpdateNode(ctx context.Context, category topology.Category, id int64, body *Entity) (*Entity, error) {
	var out Entity
	path := fmt.Sprintf("%s/%d", c.writePath(category), id)
	if err := c.do(ctx, OpUpdate, category, http.MethodPut, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteNode removes an entity and returns the deleted record
func (c *HTTPClient) DeleteNode(ctx context.Context, category topology.Category, id int64) (*Entity, error) {
	var out Entity
	path := fmt.Sprintf("%s/%d", c.writePath(category), id)
	if err := c.do(ctx, OpDelete, category, http.MethodDelete, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PutMetaInfo stores the editor metadata of the topology
func (c *HTTPClient) PutMetaInfo(ctx context.Context, meta *MetaInfoEnvelope) (*MetaInfoEnvelope, error) {
	if meta == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "HTTPClient", "PutMetaInfo", "metadata cannot be nil")
	}
	body := *meta
	if body.TopologyID == 0 {
		body.TopologyID = c.scope.TopologyID
	}
	var out MetaInfoEnvelope
	path := fmt.Sprintf("%s/system/topologyeditormetadata/%d", catalogPrefix, c.scope.TopologyID)
	if err := c.do(ctx, OpPutMeta, "metadata", http.MethodPut, path, &body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMetaInfo fetches the editor metadata of the topology version
func (c *HTTPClient) GetMetaInfo(ctx context.Context) (*MetaInfoEnvelope, error) {
	var out MetaInfoEnvelope
	path := fmt.Sprintf("%s/system/versions/%d/topologyeditormetadata/%d", catalogPrefix, c.scope.VersionID, c.scope.TopologyID)
	if err := c.do(ctx, OpGetMeta, "metadata", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type bundleList struct {
	Entities []*Bundle `json:"entities"`
}

// ListBundles fetches the component bundles of a type (SOURCE, PROCESSOR,
// SINK or LINK)
func (c *HTTPClient) ListBundles(ctx context.Context, bundleType string) ([]*Bundle, error) {
	var out bundleList
	path := fmt.Sprintf("%s/streams/componentbundles/%s", catalogPrefix, url.PathEscape(strings.ToUpper(bundleType)))
	if err := c.do(ctx, OpListBundles, topology.Category(strings.ToLower(bundleType)), http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.Entities == nil {
		out.Entities = []*Bundle{}
	}
	return out.Entities, nil
}

// catalogError is the body the catalog returns in place of an entity
type catalogError struct {
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
}

func (c *HTTPClient) do(ctx context.Context, op Op, category topology.Category, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.WrapFatal(err, "HTTPClient", string(op), "marshal request body")
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.WrapInvalid(err, "HTTPClient", string(op), "build request")
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("Catalog request failed",
			"op", op, "category", category, "request_id", requestID, "error", err)
		return errors.WrapTransient(err, "HTTPClient", string(op), fmt.Sprintf("%s %s", method, path))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapTransient(err, "HTTPClient", string(op), "read response body")
	}
	c.logger.Debug("Catalog request",
		"op", op, "category", category, "method", method, "path", path,
		"status", resp.StatusCode, "request_id", requestID, "duration", time.Since(start))

	var rejection catalogError
	_ = json.Unmarshal(data, &rejection)
	if resp.StatusCode >= 400 || rejection.ResponseMessage != "" {
		msg := rejection.ResponseMessage
		if msg == "" {
			msg = strings.TrimSpace(string(data))
		}
		if msg == "" {
			msg = resp.Status
		}
		return &errors.RemoteError{
			Code:     rejection.ResponseCode,
			Message:  msg,
			Status:   resp.StatusCode,
			Category: string(category),
			Op:       string(op),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"HTTPClient", string(op), "decode response")
	}
	return nil
}
