package editorapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ggolani/streamline/editor"
	"github.com/ggolani/streamline/errors"
	"github.com/ggolani/streamline/topology"
)

const maxBodyBytes = 1 << 20

// FailureView is one failed request of a batch
type FailureView struct {
	Step     editor.Step       `json:"step"`
	Category topology.Category `json:"category,omitempty"`
	ID       int64             `json:"id,omitempty"`
	Error    string            `json:"error"`
}

// BatchResponse reports a fan-out operation
type BatchResponse struct {
	Requests int           `json:"requests"`
	Failures []FailureView `json:"failures"`
}

func newBatchResponse(res editor.BatchResult) BatchResponse {
	out := BatchResponse{Requests: res.Len(), Failures: []FailureView{}}
	for _, o := range res.Failed() {
		out.Failures = append(out.Failures, FailureView{
			Step:     o.Step,
			Category: o.Category,
			ID:       o.ID,
			Error:    errors.UserMessage(o.Err),
		})
	}
	return out
}

// writeBatch answers okStatus when every request succeeded, 207 when some
// did and the class of the first failure when none did
func (s *Server) writeBatch(w http.ResponseWriter, res editor.BatchResult, okStatus int) {
	failed := res.Failed()
	status := okStatus
	switch {
	case len(failed) == 0:
	case len(failed) == res.Len():
		status = statusFor(failed[0].Err)
	default:
		status = http.StatusMultiStatus
	}
	s.writeJSON(w, status, newBatchResponse(res))
}

// decode validates the body against schema and unmarshals it into dst
func (s *Server) decode(r *http.Request, schema string, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "Server", "decode", "read body")
	}
	if err := s.validator.Validate(schema, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "Server", "decode", "unmarshal body")
	}
	return nil
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func (s *Server) node(r *http.Request) (*topology.Node, error) {
	id := pathID(r)
	n, ok := s.manager.Graph().Node(id)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %d", errors.ErrNodeNotFound, id), "Server", "node", "lookup node")
	}
	return n, nil
}

func (s *Server) edge(r *http.Request) (*topology.Edge, error) {
	id := pathID(r)
	e, ok := s.manager.Graph().Edge(id)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %d", errors.ErrEdgeNotFound, id), "Server", "edge", "lookup edge")
	}
	return e, nil
}

func edgeView(e *topology.Edge) *topology.EdgeView {
	if e == nil {
		return nil
	}
	return &topology.EdgeView{ID: e.ID, SourceID: e.Source.ID, TargetID: e.Target.ID, Grouping: e.Grouping}
}

func (s *Server) handleGraph(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Graph().Snapshot())
}

// StatusResponse describes the editor's state
type StatusResponse struct {
	LastUpdated int64             `json:"lastUpdated"`
	Clients     int               `json:"clients"`
	Queue       editor.QueueStats `json:"queue"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{
		LastUpdated: s.manager.LastChange(),
		Clients:     s.hub.Clients(),
		Queue:       s.manager.QueueStats(),
	})
}

type createNodesRequest struct {
	Nodes []editor.NodeSpec `json:"nodes"`
}

func (s *Server) handleCreateNodes(w http.ResponseWriter, r *http.Request) {
	var req createNodesRequest
	if err := s.decode(r, "create_nodes", &req); err != nil {
		s.writeError(w, err)
		return
	}

	var res editor.BatchResult
	err := s.run(r, "create_nodes", func(ctx context.Context) error {
		res = s.manager.CreateNodes(ctx, req.Nodes, s.hub.Refresh())
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeBatch(w, res, http.StatusCreated)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	var res editor.BatchResult
	err := s.run(r, "delete_node", func(ctx context.Context) error {
		n, err := s.node(r)
		if err != nil {
			return err
		}
		res = s.manager.DeleteNode(ctx, n, s.hub.Refresh())
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeBatch(w, res, http.StatusOK)
}

type positionRequest struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s *Server) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := s.decode(r, "position", &req); err != nil {
		s.writeError(w, err)
		return
	}
	err := s.run(r, "move_node", func(ctx context.Context) error {
		n, err := s.node(r)
		if err != nil {
			return err
		}
		return s.manager.MoveNode(ctx, n, req.X, req.Y)
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type parallelismRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleParallelism(w http.ResponseWriter, r *http.Request) {
	var req parallelismRequest
	if err := s.decode(r, "parallelism", &req); err != nil {
		s.writeError(w, err)
		return
	}
	var node topology.Node
	err := s.run(r, "update_parallelism", func(ctx context.Context) error {
		n, err := s.node(r)
		if err != nil {
			return err
		}
		if err := s.manager.UpdateParallelism(ctx, n, req.Count, s.hub.Refresh()); err != nil {
			return err
		}
		node = *n
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	n, err := s.node(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	form, err := topology.Dispatch(n, s.manager.Graph().Edges(), s.shuffle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, form)
}

type createEdgeRequest struct {
	SourceID int64 `json:"sourceId"`
	TargetID int64 `json:"targetId"`
}

func (s *Server) handleCreateEdge(w http.ResponseWriter, r *http.Request) {
	var req createEdgeRequest
	if err := s.decode(r, "create_edge", &req); err != nil {
		s.writeError(w, err)
		return
	}

	var edge *topology.EdgeView
	err := s.run(r, "create_edge", func(ctx context.Context) error {
		g := s.manager.Graph()
		source, ok := g.Node(req.SourceID)
		if !ok {
			return errors.WrapInvalid(errors.ErrNodeNotFound, "Server", "CreateEdge", "lookup source")
		}
		target, ok := g.Node(req.TargetID)
		if !ok {
			return errors.WrapInvalid(errors.ErrNodeNotFound, "Server", "CreateEdge", "lookup target")
		}
		e, err := s.manager.CreateEdge(ctx, source, target, s.hub.Refresh())
		edge = edgeView(e)
		return err
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if edge == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.writeJSON(w, http.StatusCreated, edge)
}

func (s *Server) handleDeleteEdge(w http.ResponseWriter, r *http.Request) {
	var res editor.BatchResult
	err := s.run(r, "delete_edge", func(ctx context.Context) error {
		e, err := s.edge(r)
		if err != nil {
			return err
		}
		res = s.manager.DeleteEdge(ctx, e, s.hub.Refresh())
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeBatch(w, res, http.StatusOK)
}

func (s *Server) handleEdgeDetails(w http.ResponseWriter, r *http.Request) {
	e, err := s.edge(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	details, err := s.manager.EdgeDetails(r.Context(), e)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, details)
}

// ReactionResponse is the JSON form of a controller reaction
type ReactionResponse struct {
	Kind  editor.ReactionKind      `json:"kind"`
	Edge  *topology.EdgeView       `json:"edge,omitempty"`
	Form  *topology.FormDescriptor `json:"form,omitempty"`
	Error string                   `json:"error,omitempty"`
}

func newReactionResponse(r editor.Reaction) ReactionResponse {
	out := ReactionResponse{Kind: r.Kind, Edge: edgeView(r.Edge), Form: r.Form}
	if r.Err != nil {
		out.Error = errors.UserMessage(r.Err)
	}
	return out
}

func (s *Server) handleSelectEdge(w http.ResponseWriter, r *http.Request) {
	e, err := s.edge(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	reaction := s.controller.SelectEdge(e)
	s.hub.Refresh()()
	s.writeJSON(w, http.StatusOK, newReactionResponse(reaction))
}

type releaseRequest struct {
	NodeID        int64  `json:"nodeId"`
	PointerDownID int64  `json:"pointerDownId"`
	Dragged       bool   `json:"dragged"`
	Click         string `json:"click"`
	Element       string `json:"element"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := s.decode(r, "release", &req); err != nil {
		s.writeError(w, err)
		return
	}

	var reaction editor.Reaction
	err := s.run(r, "release", func(ctx context.Context) error {
		g := s.manager.Graph()
		n, ok := g.Node(req.NodeID)
		if !ok {
			return errors.WrapInvalid(errors.ErrNodeNotFound, "Server", "Release", "lookup node")
		}
		ev := editor.ReleaseEvent{Node: n, Dragged: req.Dragged}
		if req.PointerDownID != 0 {
			down, ok := g.Node(req.PointerDownID)
			if !ok {
				return errors.WrapInvalid(errors.ErrNodeNotFound, "Server", "Release", "lookup pointer-down node")
			}
			ev.PointerDown = down
		}
		if req.Click == "double" {
			ev.Click = editor.ClickDouble
		}
		if req.Element == "circle" {
			ev.Element = editor.ElementCircle
		}
		reaction = s.controller.Release(ctx, ev)
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch reaction.Kind {
	case editor.ReactionSelected, editor.ReactionDeselected:
		s.hub.Refresh()()
	}
	s.writeJSON(w, http.StatusOK, newReactionResponse(reaction))
}
