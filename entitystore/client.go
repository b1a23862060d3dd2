package entitystore

import (
	"context"

	"github.com/ggolani/streamline/topology"
)

// Client performs CRUD on the entities of one topology version. A store
// rejection is returned as *errors.RemoteError (class Invalid); transport
// failures are Transient. Implementations must be safe for concurrent use.
type Client interface {
	CreateNode(ctx context.Context, category topology.Category, body *Entity) (*Entity, error)
	GetNode(ctx context.Context, category topology.Category, id int64) (*Entity, error)
	ListNodes(ctx context.Context, category topology.Category) ([]*Entity, error)
	UpdateNode(ctx context.Context, category topology.Category, id int64, body *Entity) (*Entity, error)
	DeleteNode(ctx context.Context, category topology.Category, id int64) (*Entity, error)
	PutMetaInfo(ctx context.Context, meta *MetaInfoEnvelope) (*MetaInfoEnvelope, error)
	GetMetaInfo(ctx context.Context) (*MetaInfoEnvelope, error)
	ListBundles(ctx context.Context, bundleType string) ([]*Bundle, error)
}

// Op names a client operation, used for fault injection and call logs
type Op string

// Client operations
const (
	OpCreate      Op = "create"
	OpGet         Op = "get"
	OpList        Op = "list"
	OpUpdate      Op = "update"
	OpDelete      Op = "delete"
	OpPutMeta     Op = "putMetaInfo"
	OpGetMeta     Op = "getMetaInfo"
	OpListBundles Op = "listBundles"
)

// Scope identifies the topology version a client is bound to
type Scope struct {
	TopologyID int64 `json:"topologyId" koanf:"topology_id"`
	VersionID  int64 `json:"versionId" koanf:"version_id"`
}
