package entitystore

import (
	"encoding/json"
	"maps"
	"strconv"

	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

// Object is a loosely typed JSON object nested in an entity (an action, an
// output stream, a stream field). Keeping it untyped preserves fields this
// package does not know about.
type Object map[string]any

// Int64 reads key as an integer id
func (o Object) Int64(key string) int64 {
	return ToInt64(o[key])
}

// String reads key as a string
func (o Object) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Name is the "name" field, used by actions to reference a downstream node
func (o Object) Name() string {
	return o.String("name")
}

// Config is an entity's "config" object
type Config map[string]any

// Properties returns config.properties, or nil when absent
func (c Config) Properties() map[string]any {
	p, _ := c["properties"].(map[string]any)
	return p
}

// SetProperty sets config.properties[key], creating properties if needed
func (c Config) SetProperty(key string, value any) {
	p := c.Properties()
	if p == nil {
		p = map[string]any{}
		c["properties"] = p
	}
	p[key] = value
}

// Entity is a record held by the entity store. Known fields are typed; any
// other field is kept in Extra and written back unchanged, so an entity can
// be fetched, patched and pushed back without losing data.
type Entity struct {
	ID              int64                     `json:"id,omitempty"`
	Name            string                    `json:"name,omitempty"`
	Timestamp       int64                     `json:"timestamp,omitempty"`
	Type            string                    `json:"type,omitempty"`
	BundleID        int64                     `json:"topologyComponentBundleId,omitempty"`
	Config          Config                    `json:"config,omitempty"`
	OutputStreams   []Object                  `json:"outputStreams,omitempty"`
	OutputStreamIDs []int64                   `json:"outputStreamIds,omitempty"`
	Actions         []Object                  `json:"actions,omitempty"`
	FromID          int64                     `json:"fromId,omitempty"`
	ToID            int64                     `json:"toId,omitempty"`
	StreamGroupings []topology.StreamGrouping `json:"streamGroupings,omitempty"`
	StreamID        string                    `json:"streamId,omitempty"`
	Fields          []Object                  `json:"fields,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type entityAlias Entity

var knownFields = []string{
	"id", "name", "timestamp", "type", "topologyComponentBundleId", "config",
	"outputStreams", "outputStreamIds", "actions", "fromId", "toId",
	"streamGroupings", "streamId", "fields",
}

// UnmarshalJSON decodes the typed fields and keeps the rest in Extra
func (e *Entity) UnmarshalJSON(b []byte) error {
	var a entityAlias
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(raw, k)
	}
	*e = Entity(a)
	if len(raw) > 0 {
		e.Extra = raw
	}
	return nil
}

// MarshalJSON writes typed fields and Extra. Slices that are empty but
// non-nil are written as [] so that clearing a list reaches the store.
func (e Entity) MarshalJSON() ([]byte, error) {
	b, err := json.Marshal(entityAlias(e))
	if err != nil {
		return nil, err
	}
	out := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	empty := json.RawMessage("[]")
	if e.OutputStreams != nil && len(e.OutputStreams) == 0 {
		out["outputStreams"] = empty
	}
	if e.OutputStreamIDs != nil && len(e.OutputStreamIDs) == 0 {
		out["outputStreamIds"] = empty
	}
	if e.Actions != nil && len(e.Actions) == 0 {
		out["actions"] = empty
	}
	if e.Config != nil && len(e.Config) == 0 {
		out["config"] = json.RawMessage("{}")
	}
	for k, v := range e.Extra {
		if _, known := out[k]; !known {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// Clone returns a deep copy via a JSON round trip
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	var out Entity
	b, err := json.Marshal(e)
	if err == nil {
		err = json.Unmarshal(b, &out)
	}
	if err != nil {
		out = *e
		out.Extra = maps.Clone(e.Extra)
	}
	return &out
}

// Properties returns config.properties, or nil
func (e *Entity) Properties() map[string]any {
	if e.Config == nil {
		return nil
	}
	return e.Config.Properties()
}

// SetProperty sets config.properties[key]
func (e *Entity) SetProperty(key string, value any) {
	if e.Config == nil {
		e.Config = Config{}
	}
	e.Config.SetProperty(key, value)
}

// RuleIDs returns the ids listed in config.properties.rules
func (e *Entity) RuleIDs() []int64 {
	return ToInt64s(e.Properties()["rules"])
}

// OutputStreamRefs returns the ids of the entity's output streams
func (e *Entity) OutputStreamRefs() []int64 {
	var ids []int64
	for _, s := range e.OutputStreams {
		if id := s.Int64("id"); id != 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// RemoveAction drops every action named name and reports whether any was
// removed.
func (e *Entity) RemoveAction(name string) bool {
	kept := make([]Object, 0, len(e.Actions))
	for _, a := range e.Actions {
		if a.Name() != name {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(e.Actions) {
		return false
	}
	e.Actions = kept
	return true
}

// HasAction reports whether an action named name exists
func (e *Entity) HasAction(name string) bool {
	for _, a := range e.Actions {
		if a.Name() == name {
			return true
		}
	}
	return false
}

// ToInt64 converts a decoded JSON number (or numeric string) to int64
func ToInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

// ToInt64s converts a decoded JSON array of numbers to ids
func ToInt64s(v any) []int64 {
	switch arr := v.(type) {
	case []int64:
		return arr
	case []any:
		out := make([]int64, 0, len(arr))
		for _, x := range arr {
			out = append(out, ToInt64(x))
		}
		return out
	default:
		return nil
	}
}

// MetaInfoEnvelope is the body stored against a topology for editor
// metadata. Data is the metadata encoded as a JSON string.
type MetaInfoEnvelope struct {
	TopologyID int64  `json:"topologyId"`
	VersionID  int64  `json:"versionId,omitempty"`
	Data       string `json:"data"`
	Timestamp  int64  `json:"timestamp,omitempty"`
}

// NewMetaInfoEnvelope encodes meta for topologyID
func NewMetaInfoEnvelope(topologyID int64, meta *topology.MetaInfo) (*MetaInfoEnvelope, error) {
	data, err := meta.Encode()
	if err != nil {
		return nil, err
	}
	return &MetaInfoEnvelope{TopologyID: topologyID, Data: data}, nil
}

// MetaInfo decodes the envelope's data
func (m *MetaInfoEnvelope) MetaInfo() (*topology.MetaInfo, error) {
	if m == nil {
		return topology.NewMetaInfo(), nil
	}
	meta, err := topology.ParseMetaInfo(m.Data)
	if err != nil {
		return nil, errors.Wrap(err, "MetaInfoEnvelope", "MetaInfo", "decode metadata")
	}
	return meta, nil
}

// BundleField is one field of a component bundle's UI specification
type BundleField struct {
	FieldName    string `json:"fieldName"`
	UIName       string `json:"uiName,omitempty"`
	DefaultValue any    `json:"defaultValue,omitempty"`
}

// UISpecification lists the UI fields of a component bundle
type UISpecification struct {
	Fields []BundleField `json:"fields"`
}

// Bundle describes a component type available in the palette
type Bundle struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	SubType string          `json:"subType"`
	Engine  string          `json:"streamingEngine,omitempty"`
	UISpec  UISpecification `json:"topologyComponentUISpecification"`
}

// ParentType parses the bundle's type
func (b *Bundle) ParentType() (topology.ParentType, error) {
	return topology.ParseParentType(b.Type)
}

// Label is the display label of nodes built from the bundle. Custom
// bundles use the default value of their "name" field.
func (b *Bundle) Label() string {
	if topology.ParseSubtype(b.SubType) != topology.SubtypeCustom {
		return b.SubType
	}
	for _, f := range b.UISpec.Fields {
		if f.FieldName != "name" {
			continue
		}
		if s, ok := f.DefaultValue.(string); ok && s != "" {
			return s
		}
	}
	return "Custom"
}

// Bundle types understood by ListBundles
const (
	BundleSource    = "SOURCE"
	BundleProcessor = "PROCESSOR"
	BundleSink      = "SINK"
	BundleLink      = "LINK"
)
