package editor

import (
	"context"
	"fmt"
	"sync"

	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

// Click is the kind of click that ended a pointer gesture
type Click int

// Click values
const (
	ClickSingle Click = iota
	ClickDouble
)

// Element is the part of a node the pointer was released on
type Element int

// Element values
const (
	ElementRect Element = iota
	ElementCircle
)

// ReleaseEvent is a pointer release on a node
type ReleaseEvent struct {
	Node        *topology.Node
	PointerDown *topology.Node
	Dragged     bool
	Click       Click
	Element     Element
}

// ReactionKind is what the controller did in response to an event
type ReactionKind int

// Reactions
const (
	ReactionNone ReactionKind = iota
	ReactionArmed
	ReactionConnected
	ReactionConnectRejected
	ReactionDragEnded
	ReactionOpenedConfig
	ReactionConfigBlocked
	ReactionSelected
	ReactionDeselected
)

var reactionNames = map[ReactionKind]string{
	ReactionNone:            "none",
	ReactionArmed:           "armed",
	ReactionConnected:       "connected",
	ReactionConnectRejected: "connect_rejected",
	ReactionDragEnded:       "drag_ended",
	ReactionOpenedConfig:    "opened_config",
	ReactionConfigBlocked:   "config_blocked",
	ReactionSelected:        "selected",
	ReactionDeselected:      "deselected",
}

func (k ReactionKind) String() string {
	return reactionNames[k]
}

// MarshalText implements encoding.TextMarshaler
func (k ReactionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *ReactionKind) UnmarshalText(b []byte) error {
	for kind, name := range reactionNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return errors.WrapInvalid(fmt.Errorf("%w: reaction %q", errors.ErrInvalidData, b), "ReactionKind", "UnmarshalText", "parse reaction")
}

// Reaction is the outcome of one release event
type Reaction struct {
	Kind ReactionKind             `json:"kind"`
	Edge *topology.Edge           `json:"edge,omitempty"`
	Form *topology.FormDescriptor `json:"form,omitempty"`
	Err  error                    `json:"-"`
}

// Opener shows a configuration form to the user
type Opener interface {
	Open(form topology.FormDescriptor)
}

// OpenerFunc adapts a function to Opener
type OpenerFunc func(topology.FormDescriptor)

// Open calls f
func (f OpenerFunc) Open(form topology.FormDescriptor) {
	f(form)
}

// Controller reacts to pointer releases on the canvas: connecting nodes,
// opening configuration forms and toggling selection.
type Controller struct {
	manager *Manager
	opener  Opener
	shuffle []topology.ShuffleOption
	refresh Refresh

	mu    sync.Mutex
	armed bool
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithOpener sets the form opener
func WithOpener(o Opener) ControllerOption {
	return func(c *Controller) {
		c.opener = o
	}
}

// WithShuffleOptions sets the stream groupings offered by forms
func WithShuffleOptions(opts []topology.ShuffleOption) ControllerOption {
	return func(c *Controller) {
		c.shuffle = opts
	}
}

// WithRefresh sets the refresh callback passed to manager operations
func WithRefresh(r Refresh) ControllerOption {
	return func(c *Controller) {
		c.refresh = r
	}
}

// NewController creates a controller driving m
func NewController(m *Manager, opts ...ControllerOption) *Controller {
	c := &Controller{manager: m}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Armed reports whether edges may be drawn
func (c *Controller) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

// Release handles a pointer release. The first release only arms edge
// drawing.
func (c *Controller) Release(ctx context.Context, ev ReleaseEvent) Reaction {
	c.mu.Lock()
	if !c.armed {
		c.armed = true
		c.mu.Unlock()
		return Reaction{Kind: ReactionArmed}
	}
	c.mu.Unlock()

	if ev.Node == nil {
		return Reaction{Kind: ReactionNone}
	}
	graph := c.manager.Graph()

	if ev.PointerDown != nil && ev.PointerDown != ev.Node {
		reaction := c.connect(ctx, ev.PointerDown, ev.Node)
		if err := c.manager.UpdateMetaInfo(ctx, ev.Node); err != nil && reaction.Err == nil {
			reaction.Err = err
		}
		return reaction
	}

	if ev.Element == ElementRect {
		if ev.Dragged {
			return Reaction{Kind: ReactionDragEnded}
		}
		if ev.Click == ClickDouble {
			return c.open(graph, ev.Node)
		}
	}
	return c.toggle(graph, ev.Node)
}

func (c *Controller) connect(ctx context.Context, source, target *topology.Node) Reaction {
	graph := c.manager.Graph()
	if target.Subtype == topology.SubtypeBranch && len(graph.Incoming(target)) > 0 {
		c.manager.notify(LevelWarning, "Edge cannot be connected to Branch.")
		return Reaction{Kind: ReactionConnectRejected}
	}
	edge, err := c.manager.CreateEdge(ctx, source, target, c.refresh)
	if err != nil {
		return Reaction{Kind: ReactionConnectRejected, Err: err}
	}
	return Reaction{Kind: ReactionConnected, Edge: edge}
}

func (c *Controller) open(graph *topology.Graph, node *topology.Node) Reaction {
	if !node.IsSource() && len(graph.Incoming(node)) == 0 {
		c.manager.notify(LevelWarning, "Connect and configure a source component")
		return Reaction{Kind: ReactionConfigBlocked}
	}
	form, err := topology.Dispatch(node, graph.Edges(), c.shuffle)
	if err != nil {
		return Reaction{Kind: ReactionConfigBlocked, Err: err}
	}
	if c.opener != nil {
		c.opener.Open(form)
	}
	return Reaction{Kind: ReactionOpenedConfig, Form: &form}
}

func (c *Controller) toggle(graph *topology.Graph, node *topology.Node) Reaction {
	if graph.SelectedEdge() != nil {
		graph.SelectEdge(nil)
	}
	if graph.SelectedNode() == node {
		graph.SelectNode(nil)
		return Reaction{Kind: ReactionDeselected}
	}
	graph.SelectNode(node)
	return Reaction{Kind: ReactionSelected}
}

// SelectEdge toggles the selection of edge. Selecting an edge drops the
// node selection.
func (c *Controller) SelectEdge(edge *topology.Edge) Reaction {
	graph := c.manager.Graph()
	if edge == nil {
		return Reaction{Kind: ReactionNone}
	}
	if graph.SelectedEdge() == edge {
		graph.SelectEdge(nil)
		return Reaction{Kind: ReactionDeselected, Edge: edge}
	}
	graph.SelectEdge(edge)
	return Reaction{Kind: ReactionSelected, Edge: edge}
}
