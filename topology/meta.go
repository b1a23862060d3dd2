package topology

import (
	"encoding/json"
	"slices"

	"github.com/ggolani/streamline/errors"
)

// FailedTuplesStream is the only stream id kept on a node's metadata record
const FailedTuplesStream = "failedTuplesStream"

// MetaRecord is the persisted canvas position of one node
type MetaRecord struct {
	ID       int64   `json:"id" yaml:"id"`
	X        float64 `json:"x" yaml:"x"`
	Y        float64 `json:"y" yaml:"y"`
	StreamID string  `json:"streamId,omitempty" yaml:"streamId,omitempty"`
}

// CustomName maps a generated unique name back to the custom processor name
// the user picked.
type CustomName struct {
	UIName              string `json:"uiname" yaml:"uiname"`
	CustomProcessorName string `json:"customProcessorName" yaml:"customProcessorName"`
}

// MetaInfo is the editor metadata persisted per topology version, separately
// from node business configuration.
type MetaInfo struct {
	Sources     []MetaRecord `json:"sources" yaml:"sources"`
	Processors  []MetaRecord `json:"processors" yaml:"processors"`
	Sinks       []MetaRecord `json:"sinks" yaml:"sinks"`
	CustomNames []CustomName `json:"customNames,omitempty" yaml:"customNames,omitempty"`
}

// NewMetaInfo returns empty metadata with non-nil arrays
func NewMetaInfo() *MetaInfo {
	return &MetaInfo{
		Sources:    []MetaRecord{},
		Processors: []MetaRecord{},
		Sinks:      []MetaRecord{},
	}
}

// ParseMetaInfo decodes the metadata blob. An empty blob yields empty metadata.
func ParseMetaInfo(data string) (*MetaInfo, error) {
	m := NewMetaInfo()
	if data == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(data), m); err != nil {
		return nil, errors.WrapInvalid(err, "MetaInfo", "ParseMetaInfo", "unmarshal metadata")
	}
	m.normalize()
	return m, nil
}

// Encode returns the metadata as the JSON string stored against the topology
func (m *MetaInfo) Encode() (string, error) {
	m.normalize()
	b, err := json.Marshal(m)
	if err != nil {
		return "", errors.WrapFatal(err, "MetaInfo", "Encode", "marshal metadata")
	}
	return string(b), nil
}

func (m *MetaInfo) normalize() {
	if m.Sources == nil {
		m.Sources = []MetaRecord{}
	}
	if m.Processors == nil {
		m.Processors = []MetaRecord{}
	}
	if m.Sinks == nil {
		m.Sinks = []MetaRecord{}
	}
}

// Clone returns a deep copy
func (m *MetaInfo) Clone() *MetaInfo {
	return &MetaInfo{
		Sources:     append([]MetaRecord{}, m.Sources...),
		Processors:  append([]MetaRecord{}, m.Processors...),
		Sinks:       append([]MetaRecord{}, m.Sinks...),
		CustomNames: slices.Clone(m.CustomNames),
	}
}

func (m *MetaInfo) records(p ParentType) *[]MetaRecord {
	switch p {
	case ParentSource:
		return &m.Sources
	case ParentProcessor:
		return &m.Processors
	case ParentSink:
		return &m.Sinks
	default:
		return nil
	}
}

// Records returns the records for a parent type
func (m *MetaInfo) Records(p ParentType) []MetaRecord {
	if r := m.records(p); r != nil {
		return *r
	}
	return nil
}

// Lookup finds the record for a node id within a parent type
func (m *MetaInfo) Lookup(p ParentType, id int64) (MetaRecord, bool) {
	for _, r := range m.Records(p) {
		if r.ID == id {
			return r, true
		}
	}
	return MetaRecord{}, false
}

// Upsert writes the node's position. An existing record keeps its identity;
// its streamId survives only when the node is on the failed-tuples stream.
func (m *MetaInfo) Upsert(n *Node) {
	arr := m.records(n.ParentType)
	if arr == nil {
		return
	}
	for i := range *arr {
		r := &(*arr)[i]
		if r.ID != n.ID {
			continue
		}
		r.X, r.Y = n.X, n.Y
		if n.StreamID == FailedTuplesStream {
			r.StreamID = n.StreamID
		} else {
			r.StreamID = ""
		}
		return
	}
	*arr = append(*arr, MetaRecord{ID: n.ID, X: n.X, Y: n.Y})
}

// Remove drops the node's record and, for custom nodes, its custom name entry
func (m *MetaInfo) Remove(n *Node) {
	if arr := m.records(n.ParentType); arr != nil {
		*arr = slices.DeleteFunc(*arr, func(r MetaRecord) bool { return r.ID == n.ID })
	}
	if m.CustomNames != nil {
		m.CustomNames = slices.DeleteFunc(m.CustomNames, func(c CustomName) bool { return c.UIName == n.UIName })
	}
}

// AddCustomName records the user-chosen name of a custom processor
func (m *MetaInfo) AddCustomName(uiname, customName string) {
	for _, c := range m.CustomNames {
		if c.UIName == uiname {
			return
		}
	}
	m.CustomNames = append(m.CustomNames, CustomName{UIName: uiname, CustomProcessorName: customName})
}

// RemoveCustomName drops a custom name entry by generated name
func (m *MetaInfo) RemoveCustomName(uiname string) {
	m.CustomNames = slices.DeleteFunc(m.CustomNames, func(c CustomName) bool { return c.UIName == uiname })
}
