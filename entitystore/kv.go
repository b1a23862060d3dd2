package entitystore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/natsclient"
	"github.com/ggolani/streamline/topology"
)

// DefaultBucket is the KV bucket holding editor entities
const DefaultBucket = "topology_editor_entities"

// KVConfig configures a KV-backed store
type KVConfig struct {
	Bucket  string `koanf:"bucket"`
	History uint8  `koanf:"history"`
	Scope   Scope  `koanf:"scope"`
}

// KVStore is a Client persisting entities in a NATS JetStream KV bucket.
// Entities live under "t<topology>.v<version>.<category>.<id>"; ids come
// from a per-version sequence key updated with compare-and-swap.
type KVStore struct {
	kv     *natsclient.KVStore
	scope  Scope
	logger *slog.Logger

	mu     sync.Mutex
	lastTS int64
}

// NewKVStore opens (creating if needed) the configured bucket
func NewKVStore(ctx context.Context, client *natsclient.Client, cfg KVConfig, logger *slog.Logger) (*KVStore, error) {
	if client == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "KVStore", "NewKVStore", "nats client cannot be nil")
	}
	if cfg.Scope.TopologyID <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "KVStore", "NewKVStore", "topology id must be positive")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	if cfg.History == 0 {
		cfg.History = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Topology editor entities and layout metadata",
		History:     cfg.History,
	})
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "NewKVStore", "open KV bucket")
	}

	return &KVStore{
		kv:     client.NewKVStore(bucket),
		scope:  cfg.Scope,
		logger: logger.With("component", "entitystore", "backend", "nats-kv", "bucket", cfg.Bucket),
	}, nil
}

// Scope returns the topology version the store is bound to
func (s *KVStore) Scope() Scope {
	return s.scope
}

func (s *KVStore) prefix() string {
	return fmt.Sprintf("t%d.v%d.", s.scope.TopologyID, s.scope.VersionID)
}

func (s *KVStore) categoryPrefix(category topology.Category) string {
	return s.prefix() + string(category) + "."
}

func (s *KVStore) entityKey(category topology.Category, id int64) string {
	return s.categoryPrefix(category) + strconv.FormatInt(id, 10)
}

func (s *KVStore) sequenceKey() string {
	return s.prefix() + "_seq"
}

func (s *KVStore) metaKey() string {
	return s.prefix() + "_meta"
}

func bundlesKey(bundleType string) string {
	return "bundles." + strings.ToUpper(bundleType)
}

func (s *KVStore) now() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := time.Now().UnixMilli()
	if ts <= s.lastTS {
		ts = s.lastTS + 1
	}
	s.lastTS = ts
	return ts
}

func (s *KVStore) nextID(ctx context.Context) (int64, error) {
	var id int64
	err := s.kv.UpdateWithRetry(ctx, s.sequenceKey(), func(current []byte) ([]byte, error) {
		id = 1
		if len(current) > 0 {
			n, err := strconv.ParseInt(string(current), 10, 64)
			if err != nil {
				return nil, errors.WrapFatal(errors.ErrDataCorrupted, "KVStore", "nextID", "parse id sequence")
			}
			id = n + 1
		}
		return []byte(strconv.FormatInt(id, 10)), nil
	})
	if err != nil {
		return 0, errors.WrapClass(err, "KVStore", "nextID", "advance id sequence")
	}
	return id, nil
}

func (s *KVStore) load(ctx context.Context, op Op, category topology.Category, id int64) (*Entity, error) {
	entry, err := s.kv.Get(ctx, s.entityKey(category, id))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, notFound(op, category, id)
		}
		return nil, errors.WrapTransient(err, "KVStore", string(op), "get from KV")
	}
	var e Entity
	if err := json.Unmarshal(entry.Value, &e); err != nil {
		return nil, errors.WrapFatal(err, "KVStore", string(op), "unmarshal entity")
	}
	return &e, nil
}

func (s *KVStore) store(ctx context.Context, op Op, category topology.Category, e *Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.WrapFatal(err, "KVStore", string(op), "marshal entity")
	}
	if _, err := s.kv.Put(ctx, s.entityKey(category, e.ID), data); err != nil {
		return errors.WrapTransient(err, "KVStore", string(op), "put to KV")
	}
	return nil
}

// CreateNode stores body under a new id
func (s *KVStore) CreateNode(ctx context.Context, category topology.Category, body *Entity) (*Entity, error) {
	if body == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "KVStore", "CreateNode", "body cannot be nil")
	}
	id, err := s.nextID(ctx)
	if err != nil {
		return nil, err
	}
	stored := body.Clone()
	stored.ID = id
	stored.Timestamp = s.now()
	if err := s.store(ctx, OpCreate, category, stored); err != nil {
		return nil, err
	}
	s.logger.Debug("Entity created", "category", category, "id", id)
	return stored, nil
}

// GetNode reads one entity
func (s *KVStore) GetNode(ctx context.Context, category topology.Category, id int64) (*Entity, error) {
	return s.load(ctx, OpGet, category, id)
}

// ListNodes returns every entity in category ordered by id
func (s *KVStore) ListNodes(ctx context.Context, category topology.Category) ([]*Entity, error) {
	keys, err := s.kv.Keys(ctx, s.categoryPrefix(category))
	if err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "ListNodes", "list KV keys")
	}

	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		id, err := strconv.ParseInt(strings.TrimPrefix(key, s.categoryPrefix(category)), 10, 64)
		if err != nil {
			s.logger.Warn("Skipping malformed entity key", "key", key)
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		e, err := s.load(ctx, OpList, category, id)
		if err != nil {
			if errors.IsNotFound(err) {
				// deleted between listing and reading
				continue
			}
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// UpdateNode replaces an existing entity
func (s *KVStore) UpdateNode(ctx context.Context, category topology.Category, id int64, body *Entity) (*Entity, error) {
	if body == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "KVStore", "UpdateNode", "body cannot be nil")
	}
	if _, err := s.load(ctx, OpUpdate, category, id); err != nil {
		return nil, err
	}
	stored := body.Clone()
	stored.ID = id
	stored.Timestamp = s.now()
	if err := s.store(ctx, OpUpdate, category, stored); err != nil {
		return nil, err
	}
	return stored, nil
}

// DeleteNode removes an entity and returns its last state
func (s *KVStore) DeleteNode(ctx context.Context, category topology.Category, id int64) (*Entity, error) {
	e, err := s.load(ctx, OpDelete, category, id)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Delete(ctx, s.entityKey(category, id)); err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return nil, notFound(OpDelete, category, id)
		}
		return nil, errors.WrapTransient(err, "KVStore", "DeleteNode", "delete from KV")
	}
	e.Timestamp = s.now()
	s.logger.Debug("Entity deleted", "category", category, "id", id)
	return e, nil
}

// PutMetaInfo stores the layout metadata of the bound topology version
func (s *KVStore) PutMetaInfo(ctx context.Context, meta *MetaInfoEnvelope) (*MetaInfoEnvelope, error) {
	if meta == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "KVStore", "PutMetaInfo", "metadata cannot be nil")
	}
	stored := *meta
	if stored.TopologyID == 0 {
		stored.TopologyID = s.scope.TopologyID
	}
	stored.VersionID = s.scope.VersionID
	stored.Timestamp = s.now()

	data, err := json.Marshal(&stored)
	if err != nil {
		return nil, errors.WrapFatal(err, "KVStore", "PutMetaInfo", "marshal metadata")
	}
	if _, err := s.kv.Put(ctx, s.metaKey(), data); err != nil {
		return nil, errors.WrapTransient(err, "KVStore", "PutMetaInfo", "put to KV")
	}
	return &stored, nil
}

// GetMetaInfo reads the layout metadata. A version without metadata yields
// an empty envelope.
func (s *KVStore) GetMetaInfo(ctx context.Context) (*MetaInfoEnvelope, error) {
	entry, err := s.kv.Get(ctx, s.metaKey())
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return &MetaInfoEnvelope{TopologyID: s.scope.TopologyID, VersionID: s.scope.VersionID}, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "GetMetaInfo", "get from KV")
	}
	var out MetaInfoEnvelope
	if err := json.Unmarshal(entry.Value, &out); err != nil {
		return nil, errors.WrapFatal(err, "KVStore", "GetMetaInfo", "unmarshal metadata")
	}
	return &out, nil
}

// ListBundles returns the bundles registered for bundleType
func (s *KVStore) ListBundles(ctx context.Context, bundleType string) ([]*Bundle, error) {
	entry, err := s.kv.Get(ctx, bundlesKey(bundleType))
	if err != nil {
		if natsclient.IsKVNotFoundError(err) {
			return []*Bundle{}, nil
		}
		return nil, errors.WrapTransient(err, "KVStore", "ListBundles", "get from KV")
	}
	var bundles []*Bundle
	if err := json.Unmarshal(entry.Value, &bundles); err != nil {
		return nil, errors.WrapFatal(err, "KVStore", "ListBundles", "unmarshal bundles")
	}
	return bundles, nil
}

// PutBundles registers the bundles of bundleType, replacing earlier ones.
// Bundles are shared by every topology in the bucket.
func (s *KVStore) PutBundles(ctx context.Context, bundleType string, bundles ...*Bundle) error {
	data, err := json.Marshal(bundles)
	if err != nil {
		return errors.WrapFatal(err, "KVStore", "PutBundles", "marshal bundles")
	}
	if _, err := s.kv.Put(ctx, bundlesKey(bundleType), data); err != nil {
		return errors.WrapTransient(err, "KVStore", "PutBundles", "put to KV")
	}
	return nil
}
