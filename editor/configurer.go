package editor

import (
	"context"
	"fmt"

	"github.com/ggolani/streamline/entitystore"
	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

// GroupingShuffle is the stream grouping used when none is chosen
const GroupingShuffle = "SHUFFLE"

// EdgeRequest carries what the edge configuration step needs to persist a
// new edge. SourceEntity is a fresh remote copy of the source node.
type EdgeRequest struct {
	Source       *topology.Node
	Target       *topology.Node
	SourceEntity *entitystore.Entity
	Graph        *topology.Graph
}

// EdgeConfigurer performs the remote edge create, usually after asking the
// user for a stream and grouping. It returns the confirmed edge entity, or
// nil without error when the user cancelled.
type EdgeConfigurer interface {
	ConfigureEdge(ctx context.Context, req EdgeRequest) (*entitystore.Entity, error)
}

// EdgeConfigurerFunc adapts a function to EdgeConfigurer
type EdgeConfigurerFunc func(ctx context.Context, req EdgeRequest) (*entitystore.Entity, error)

// ConfigureEdge calls f
func (f EdgeConfigurerFunc) ConfigureEdge(ctx context.Context, req EdgeRequest) (*entitystore.Entity, error) {
	return f(ctx, req)
}

// DirectEdgeConfigurer creates edges without asking: the source's first
// output stream with the configured grouping. A source without an output
// stream gets one. Rule-like sources get an action named after the target
// on every rule entity that lacks one.
type DirectEdgeConfigurer struct {
	Client   entitystore.Client
	Grouping string
}

// ConfigureEdge persists the edge and the actions that reference it
func (d DirectEdgeConfigurer) ConfigureEdge(ctx context.Context, req EdgeRequest) (*entitystore.Entity, error) {
	if req.Source == nil || req.Target == nil || req.SourceEntity == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "DirectEdgeConfigurer", "ConfigureEdge", "edge request incomplete")
	}

	streamID, streamName, err := d.outputStream(ctx, req.Source, req.SourceEntity)
	if err != nil {
		return nil, err
	}

	if req.Source.Subtype.IsRuleLike() {
		if err := d.addActions(ctx, req, streamName); err != nil {
			return nil, err
		}
	}

	grouping := d.Grouping
	if grouping == "" {
		grouping = GroupingShuffle
	}
	edge, err := d.Client.CreateNode(ctx, topology.CategoryEdges, &entitystore.Entity{
		FromID: req.Source.ID,
		ToID:   req.Target.ID,
		StreamGroupings: []topology.StreamGrouping{
			{StreamID: streamID, Grouping: grouping},
		},
	})
	if err != nil {
		return nil, errors.WrapClass(err, "DirectEdgeConfigurer", "ConfigureEdge", "create edge")
	}
	return edge, nil
}

func (d DirectEdgeConfigurer) outputStream(
	ctx context.Context, source *topology.Node, entity *entitystore.Entity,
) (int64, string, error) {
	if len(entity.OutputStreams) > 0 {
		s := entity.OutputStreams[0]
		return s.Int64("id"), s.String("streamId"), nil
	}
	if len(entity.OutputStreamIDs) > 0 {
		s, err := d.Client.GetNode(ctx, topology.CategoryStreams, entity.OutputStreamIDs[0])
		if err != nil {
			return 0, "", errors.WrapClass(err, "DirectEdgeConfigurer", "ConfigureEdge", "fetch output stream")
		}
		return s.ID, s.StreamID, nil
	}

	name := fmt.Sprintf("%s_stream_%d", source.UIName, source.ID)
	s, err := d.Client.CreateNode(ctx, topology.CategoryStreams, &entitystore.Entity{
		StreamID: name,
		Fields:   []entitystore.Object{},
	})
	if err != nil {
		return 0, "", errors.WrapClass(err, "DirectEdgeConfigurer", "ConfigureEdge", "create output stream")
	}

	entity.OutputStreamIDs = append(entity.OutputStreamIDs, s.ID)
	if _, err := d.Client.UpdateNode(ctx, source.Category(), source.ID, entity); err != nil {
		return 0, "", errors.WrapClass(err, "DirectEdgeConfigurer", "ConfigureEdge", "attach output stream")
	}
	return s.ID, s.StreamID, nil
}

func (d DirectEdgeConfigurer) addActions(ctx context.Context, req EdgeRequest, streamName string) error {
	category := req.Source.Subtype.ActionCategory()
	for _, id := range req.SourceEntity.RuleIDs() {
		rule, err := d.Client.GetNode(ctx, category, id)
		if err != nil {
			return errors.WrapClass(err, "DirectEdgeConfigurer", "ConfigureEdge", "fetch rule")
		}
		if rule.HasAction(req.Target.UIName) {
			continue
		}
		rule.Actions = append(rule.Actions, entitystore.Object{
			"name":          req.Target.UIName,
			"outputStreams": []any{streamName},
		})
		if _, err := d.Client.UpdateNode(ctx, category, id, rule); err != nil {
			return errors.WrapClass(err, "DirectEdgeConfigurer", "ConfigureEdge", "add action")
		}
	}
	return nil
}
