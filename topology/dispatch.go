package topology

import (
	"fmt"

	"github.com/ggolani/streamline/errors"
)

// FormKind is the top-level configuration form for a node
type FormKind int

// FormKind values
const (
	SourceForm FormKind = iota + 1
	ProcessorForm
	SinkForm
)

func (k FormKind) String() string {
	switch k {
	case SourceForm:
		return "source"
	case ProcessorForm:
		return "processor"
	case SinkForm:
		return "sink"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler
func (k FormKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *FormKind) UnmarshalText(b []byte) error {
	for _, v := range []FormKind{SourceForm, ProcessorForm, SinkForm} {
		if v.String() == string(b) {
			*k = v
			return nil
		}
	}
	return errors.WrapInvalid(fmt.Errorf("%w: form %q", errors.ErrUnknownType, b), "FormKind", "UnmarshalText", "parse form")
}

// ChildForm is the subtype-specific form nested in a processor form
type ChildForm int

// ChildForm values. ChildNone is used for generic processors and for
// sources and sinks.
const (
	ChildNone ChildForm = iota
	ChildRule
	ChildCustom
	ChildNormalization
	ChildSplit
	ChildStage
	ChildJoin
	ChildWindow
	ChildBranch
)

var childFormNames = [...]string{
	ChildNone:          "",
	ChildRule:          "rule",
	ChildCustom:        "custom",
	ChildNormalization: "normalization",
	ChildSplit:         "split",
	ChildStage:         "stage",
	ChildJoin:          "join",
	ChildWindow:        "window",
	ChildBranch:        "branch",
}

func (c ChildForm) String() string {
	if c < 0 || int(c) >= len(childFormNames) {
		return ""
	}
	return childFormNames[c]
}

// MarshalText implements encoding.TextMarshaler
func (c ChildForm) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (c *ChildForm) UnmarshalText(b []byte) error {
	for i, name := range childFormNames {
		if name == string(b) {
			*c = ChildForm(i)
			return nil
		}
	}
	return errors.WrapInvalid(fmt.Errorf("%w: child form %q", errors.ErrUnknownType, b), "ChildForm", "UnmarshalText", "parse child form")
}

// ShuffleOption is one stream-grouping choice offered for an edge
type ShuffleOption struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// ShuffleOptions derives the grouping choices from the subtypes of the
// link component bundles.
func ShuffleOptions(linkSubtypes ...string) []ShuffleOption {
	opts := make([]ShuffleOption, 0, len(linkSubtypes))
	for _, s := range linkSubtypes {
		opts = append(opts, ShuffleOption{Label: s, Value: s})
	}
	return opts
}

// FormDescriptor tells the rendering layer which form to open for a node
// and with which neighbours.
type FormDescriptor struct {
	Form           FormKind        `json:"form"`
	Child          ChildForm       `json:"child,omitempty"`
	Node           *Node           `json:"node"`
	Category       Category        `json:"category"`
	Upstream       []*Node         `json:"upstream"`
	Downstream     []*Node         `json:"downstream"`
	CurrentEdges   []*Edge         `json:"-"`
	GraphEdges     []*Edge         `json:"-"`
	ShuffleOptions []ShuffleOption `json:"shuffleOptions,omitempty"`
}

// FirstUpstream returns the first upstream node, used by forms that only
// read from a single input.
func (d FormDescriptor) FirstUpstream() *Node {
	if len(d.Upstream) == 0 {
		return nil
	}
	return d.Upstream[0]
}

// Dispatch selects the configuration form for node. edges are all the
// edges of the graph; the ones touching node are split into upstream and
// downstream neighbours.
func Dispatch(node *Node, edges []*Edge, shuffle []ShuffleOption) (FormDescriptor, error) {
	if node == nil {
		return FormDescriptor{}, errors.WrapInvalid(errors.ErrNodeNotFound, "topology", "Dispatch", "select form")
	}

	d := FormDescriptor{
		Node:       node,
		Category:   node.Category(),
		GraphEdges: edges,
		Upstream:   []*Node{},
		Downstream: []*Node{},
	}
	for _, e := range edges {
		if !e.Touches(node) {
			continue
		}
		d.CurrentEdges = append(d.CurrentEdges, e)
		switch {
		case e.Target == node:
			d.Upstream = append(d.Upstream, e.Source)
		case e.Source == node:
			d.Downstream = append(d.Downstream, e.Target)
		}
	}

	switch node.ParentType {
	case ParentSource:
		d.Form = SourceForm
		d.ShuffleOptions = shuffle
	case ParentSink:
		d.Form = SinkForm
	case ParentProcessor:
		d.Form = ProcessorForm
		d.Child = childFor(node.Subtype)
		d.ShuffleOptions = shuffle
	default:
		return FormDescriptor{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrUnknownType, node.ParentType),
			"topology", "Dispatch", "select form")
	}
	return d, nil
}

func childFor(s Subtype) ChildForm {
	switch s {
	case SubtypeRule:
		return ChildRule
	case SubtypeCustom:
		return ChildCustom
	case SubtypeNormalization:
		return ChildNormalization
	case SubtypeSplit:
		return ChildSplit
	case SubtypeStage:
		return ChildStage
	case SubtypeJoin:
		return ChildJoin
	case SubtypeWindow:
		return ChildWindow
	case SubtypeBranch:
		return ChildBranch
	case SubtypeGeneric:
		return ChildNone
	}
	return ChildNone
}
