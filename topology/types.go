package topology

import (
	"fmt"
	"strings"

	"github.com/ggolani/streamline/errors"
)

// ParentType is the top-level role of a node in a topology
type ParentType int

// ParentType values. The zero value is deliberately invalid.
const (
	ParentUnknown ParentType = iota
	ParentSource
	ParentProcessor
	ParentSink
)

// String returns the wire form used by component bundles ("SOURCE", ...)
func (p ParentType) String() string {
	switch p {
	case ParentSource:
		return "SOURCE"
	case ParentProcessor:
		return "PROCESSOR"
	case ParentSink:
		return "SINK"
	default:
		return "UNKNOWN"
	}
}

// Category returns the entity category nodes of this parent type live in
func (p ParentType) Category() Category {
	switch p {
	case ParentSource:
		return CategorySources
	case ParentProcessor:
		return CategoryProcessors
	case ParentSink:
		return CategorySinks
	default:
		return ""
	}
}

// ParseParentType parses "SOURCE", "PROCESSOR" or "SINK" (case-insensitive)
func ParseParentType(s string) (ParentType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SOURCE":
		return ParentSource, nil
	case "PROCESSOR":
		return ParentProcessor, nil
	case "SINK":
		return ParentSink, nil
	default:
		return ParentUnknown, errors.WrapInvalid(
			fmt.Errorf("%w: parent type %q", errors.ErrUnknownType, s),
			"topology", "ParseParentType", "parse parent type")
	}
}

// MarshalText implements encoding.TextMarshaler
func (p ParentType) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *ParentType) UnmarshalText(b []byte) error {
	v, err := ParseParentType(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Category names an entity collection in the store
type Category string

// Entity categories known to the store
const (
	CategorySources     Category = "sources"
	CategoryProcessors  Category = "processors"
	CategorySinks       Category = "sinks"
	CategoryStreams     Category = "streams"
	CategoryRules       Category = "rules"
	CategoryWindows     Category = "windows"
	CategoryBranchRules Category = "branchrules"
	CategoryEdges       Category = "edges"
)

// Categories lists every category in a stable order
func Categories() []Category {
	return []Category{
		CategorySources, CategoryProcessors, CategorySinks, CategoryStreams,
		CategoryRules, CategoryWindows, CategoryBranchRules, CategoryEdges,
	}
}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Subtype is the closed set of node subtypes whose handling differs.
// Every other bundle subtype (KAFKA, HDFS, PARSER, ...) is SubtypeGeneric.
type Subtype int

// Subtype values
const (
	SubtypeGeneric Subtype = iota
	SubtypeRule
	SubtypeCustom
	SubtypeNormalization
	SubtypeSplit
	SubtypeStage
	SubtypeJoin
	SubtypeWindow
	SubtypeBranch
)

var subtypeNames = map[Subtype]string{
	SubtypeGeneric:       "GENERIC",
	SubtypeRule:          "RULE",
	SubtypeCustom:        "CUSTOM",
	SubtypeNormalization: "NORMALIZATION",
	SubtypeSplit:         "SPLIT",
	SubtypeStage:         "STAGE",
	SubtypeJoin:          "JOIN",
	SubtypeWindow:        "WINDOW",
	SubtypeBranch:        "BRANCH",
}

// String returns the upper-case bundle subtype name
func (s Subtype) String() string {
	if n, ok := subtypeNames[s]; ok {
		return n
	}
	return "GENERIC"
}

// ParseSubtype maps a bundle subtype string to a Subtype. Unknown subtypes
// are generic.
func ParseSubtype(s string) Subtype {
	up := strings.ToUpper(strings.TrimSpace(s))
	for k, v := range subtypeNames {
		if v == up && k != SubtypeGeneric {
			return k
		}
	}
	return SubtypeGeneric
}

// IsRuleLike reports whether nodes of this subtype carry actions that
// reference downstream nodes by name.
func (s Subtype) IsRuleLike() bool {
	return s == SubtypeRule || s == SubtypeWindow || s == SubtypeBranch
}

// ActionCategory is where the action-carrying entities of a rule-like
// subtype are stored. Empty for other subtypes.
func (s Subtype) ActionCategory() Category {
	switch s {
	case SubtypeRule:
		return CategoryRules
	case SubtypeWindow:
		return CategoryWindows
	case SubtypeBranch:
		return CategoryBranchRules
	default:
		return ""
	}
}

// Node is a component placed on the editor canvas
type Node struct {
	ID          int64      `json:"nodeId" yaml:"nodeId"`
	ParentType  ParentType `json:"parentType" yaml:"parentType"`
	Subtype     Subtype    `json:"-" yaml:"-"`
	TypeName    string     `json:"currentType" yaml:"currentType"`
	UIName      string     `json:"uiname" yaml:"uiname"`
	X           float64    `json:"x" yaml:"x"`
	Y           float64    `json:"y" yaml:"y"`
	Configured  bool       `json:"isConfigured" yaml:"isConfigured"`
	Parallelism int        `json:"parallelismCount" yaml:"parallelismCount"`
	BundleID    int64      `json:"topologyComponentBundleId" yaml:"topologyComponentBundleId"`
	ImageURL    string     `json:"imageURL,omitempty" yaml:"imageURL,omitempty"`
	Label       string     `json:"nodeLabel,omitempty" yaml:"nodeLabel,omitempty"`
	StreamID    string     `json:"streamId,omitempty" yaml:"streamId,omitempty"`
}

// Persisted reports whether the node has been assigned a server id
func (n *Node) Persisted() bool {
	return n != nil && n.ID != 0
}

// Category is the entity category of the node
func (n *Node) Category() Category {
	return n.ParentType.Category()
}

// IsSource reports whether the node is a source
func (n *Node) IsSource() bool {
	return n.ParentType == ParentSource
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s#%d)", n.UIName, n.TypeName, n.ID)
}

// NewNode builds a transient node from a bundle subtype name
func NewNode(parent ParentType, typeName, uiname string, bundleID int64) *Node {
	return &Node{
		ParentType:  parent,
		Subtype:     ParseSubtype(typeName),
		TypeName:    CapitalizeFirst(typeName),
		UIName:      uiname,
		Parallelism: 1,
		BundleID:    bundleID,
		Label:       typeName,
		ImageURL:    "styles/img/icon-" + strings.ToLower(typeName) + ".png",
	}
}

// CapitalizeFirst lower-cases s and upper-cases its first letter
func CapitalizeFirst(s string) string {
	s = strings.ToLower(s)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// StreamGrouping describes how tuples on an edge are partitioned
type StreamGrouping struct {
	StreamID int64    `json:"streamId" yaml:"streamId"`
	Grouping string   `json:"grouping" yaml:"grouping"`
	Fields   []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Edge connects two persisted nodes
type Edge struct {
	ID       int64          `json:"edgeId"`
	Source   *Node          `json:"-"`
	Target   *Node          `json:"-"`
	Grouping StreamGrouping `json:"streamGrouping"`
}

// Touches reports whether n is either endpoint of the edge
func (e *Edge) Touches(n *Node) bool {
	return e.Source == n || e.Target == n
}

func (e *Edge) String() string {
	return fmt.Sprintf("%s->%s#%d", e.Source, e.Target, e.ID)
}
