package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ironsheep/label-propagator/internal/labels"
	"github.com/ironsheep/label-propagator/internal/overlay"
	"github.com/ironsheep/label-propagator/internal/propagation"
	"github.com/ironsheep/label-propagator/internal/similarity"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "propagate_image", "labels_get").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`

	// Meta carries the optional progress token.
	Meta *struct {
		ProgressToken interface{} `json:"progressToken,omitempty"`
	} `json:"_meta,omitempty"`
}

// call is the per-request context handed to tool handlers.
type call struct {
	ctx           context.Context
	progressToken interface{}
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}
	if len(params.Arguments) == 0 {
		params.Arguments = json.RawMessage("{}")
	}

	c := call{ctx: ctx}
	if params.Meta != nil {
		c.progressToken = params.Meta.ProgressToken
	}

	result, err := s.executeTool(c, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(c call, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Labels
	case "labels_get":
		return s.handleLabelsGet(args)
	case "labels_set":
		return s.handleLabelsSet(args)

	// Similarity
	case "image_similarity":
		return s.handleImageSimilarity(args)

	// Propagation
	case "propagate_image":
		return s.handlePropagateImage(c, args)
	case "propagate_object":
		return s.handlePropagateObject(c, args)
	case "propagate_tracking":
		return s.handlePropagateTracking(c, args)

	// Suggestions
	case "suggestions_list":
		return s.handleSuggestionsList(args)
	case "suggestion_accept":
		return s.handleSuggestionAccept(args)
	case "suggestions_accept_all":
		return s.handleSuggestionsAcceptAll(args)
	case "suggestion_reject":
		return s.handleSuggestionReject(args)
	case "suggestions_reject_all":
		return s.handleSuggestionsRejectAll(args)
	case "suggestions_clear":
		return s.handleSuggestionsClear()

	// Review
	case "render_overlay":
		return s.handleRenderOverlay(args)
	case "project_save":
		return s.handleProjectSave()

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// === Label Handlers ===

type pathArgs struct {
	Path string `json:"path"`
}

func (s *Server) parsePath(args json.RawMessage) (string, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", err
	}
	if a.Path == "" {
		return "", fmt.Errorf("path is required")
	}
	return s.project.Resolve(a.Path), nil
}

type labelsResult struct {
	Path        string              `json:"path"`
	Labels      []labels.Label      `json:"labels"`
	Suggestions []labels.Suggestion `json:"suggestions"`
}

func (s *Server) handleLabelsGet(args json.RawMessage) (interface{}, error) {
	path, err := s.parsePath(args)
	if err != nil {
		return nil, err
	}
	store := s.project.Store
	return labelsResult{
		Path:        path,
		Labels:      nonNil(store.Labels(path)),
		Suggestions: nonNil(store.Suggestions(path)),
	}, nil
}

type labelsSetArgs struct {
	Path    string         `json:"path"`
	Labels  []labels.Label `json:"labels"`
	Changed bool           `json:"changed"`
}

func (s *Server) handleLabelsSet(args json.RawMessage) (interface{}, error) {
	var a labelsSetArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	path := s.project.Resolve(a.Path)
	if a.Changed {
		if err := s.project.Refresh(path); err != nil {
			return nil, err
		}
	}
	s.project.Store.SetLabels(path, a.Labels)
	stored := s.project.Store.Labels(path)
	return map[string]interface{}{
		"path":   path,
		"count":  len(stored),
		"labels": nonNil(stored),
	}, nil
}

// === Similarity Handlers ===

type imageSimilarityArgs struct {
	A    string `json:"a"`
	B    string `json:"b"`
	Mode string `json:"mode"`
}

func (s *Server) handleImageSimilarity(args json.RawMessage) (interface{}, error) {
	var a imageSimilarityArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.A == "" || a.B == "" {
		return nil, fmt.Errorf("a and b are required")
	}
	mode := s.project.Config.Mode()
	if a.Mode != "" {
		m, err := similarity.ParseMode(a.Mode)
		if err != nil {
			return nil, err
		}
		mode = m
	}
	score, err := s.project.Index.Similarity(s.project.Resolve(a.A), s.project.Resolve(a.B), mode)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"score": score,
		"mode":  mode.String(),
	}, nil
}

// === Propagation Handlers ===

type runArgs struct {
	AutoAccept     bool    `json:"auto_accept"`
	SkipLabeled    bool    `json:"skip_labeled"`
	MaxSuggestions int     `json:"max_suggestions"`
	MergeIoU       float64 `json:"merge_iou"`
	Threshold      float64 `json:"threshold"`
}

func (s *Server) options(c call, a runArgs) propagation.Options {
	opts := propagation.Options{
		AutoAccept:             a.AutoAccept,
		SkipAlreadyLabeled:     a.SkipLabeled,
		MaxSuggestionsPerImage: a.MaxSuggestions,
		MergeIoU:               a.MergeIoU,
		Threshold:              a.Threshold,
	}
	if c.progressToken != nil {
		opts.Progress = func(p propagation.Progress) {
			s.notify("notifications/progress", map[string]interface{}{
				"progressToken": c.progressToken,
				"progress":      p.Current,
				"total":         p.Total,
				"message":       p.Phase,
			})
		}
	}
	return opts
}

// images resolves paths, defaulting to every image in the project.
func (s *Server) images(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return s.project.Images()
	}
	return s.project.ResolveAll(paths), nil
}

type runResult struct {
	propagation.Summary
	Cancelled bool `json:"cancelled"`
}

type propagateImageArgs struct {
	runArgs
	Sources    []string `json:"sources"`
	Candidates []string `json:"candidates"`
}

func (s *Server) handlePropagateImage(c call, args json.RawMessage) (interface{}, error) {
	var a propagateImageArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Sources) == 0 {
		return nil, fmt.Errorf("sources is required")
	}
	candidates, err := s.images(a.Candidates)
	if err != nil {
		return nil, err
	}
	sum, err := s.project.Engine.RunImageSimilarity(c.ctx, s.project.ResolveAll(a.Sources), candidates, s.options(c, a.runArgs))
	if err != nil {
		return nil, err
	}
	return runResult{Summary: sum, Cancelled: c.ctx.Err() != nil}, nil
}

type propagateObjectArgs struct {
	runArgs
	Sources        []string `json:"sources"`
	Candidates     []string `json:"candidates"`
	TopK           int      `json:"top_k"`
	DisableRanking bool     `json:"disable_ranking"`
}

func (s *Server) handlePropagateObject(c call, args json.RawMessage) (interface{}, error) {
	var a propagateObjectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Sources) == 0 {
		return nil, fmt.Errorf("sources is required")
	}
	candidates, err := s.images(a.Candidates)
	if err != nil {
		return nil, err
	}
	sum, err := s.project.Engine.RunObjectSimilarity(c.ctx, s.project.ResolveAll(a.Sources), candidates, propagation.ObjectOptions{
		Options:        s.options(c, a.runArgs),
		TopK:           a.TopK,
		DisableRanking: a.DisableRanking,
	})
	if err != nil {
		return nil, err
	}
	return runResult{Summary: sum, Cancelled: c.ctx.Err() != nil}, nil
}

type propagateTrackingArgs struct {
	runArgs
	Frames      []string `json:"frames"`
	Anchor      string   `json:"anchor"`
	FrameWindow int      `json:"frame_window"`
}

func (s *Server) handlePropagateTracking(c call, args json.RawMessage) (interface{}, error) {
	var a propagateTrackingArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Anchor == "" {
		return nil, fmt.Errorf("anchor is required")
	}
	frames, err := s.images(a.Frames)
	if err != nil {
		return nil, err
	}
	anchor := s.project.Resolve(a.Anchor)
	idx := -1
	for i, f := range frames {
		if f == anchor {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("anchor %s is not one of the frames", anchor)
	}
	if a.FrameWindow <= 0 {
		a.FrameWindow = s.project.Config.FrameWindow
	}

	sum, err := s.project.Engine.RunTracking(c.ctx, frames, idx, propagation.TrackingOptions{
		Options:     s.options(c, a.runArgs),
		FrameWindow: a.FrameWindow,
	})
	if err != nil {
		return nil, err
	}
	return runResult{Summary: sum, Cancelled: c.ctx.Err() != nil}, nil
}

// === Suggestion Handlers ===

type pendingCount struct {
	Path    string `json:"path"`
	Pending int    `json:"pending"`
}

func (s *Server) handleSuggestionsList(args json.RawMessage) (interface{}, error) {
	var a pathArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	store := s.project.Store
	if a.Path != "" {
		path := s.project.Resolve(a.Path)
		list := store.Suggestions(path)
		sort.SliceStable(list, func(i, j int) bool { return list[i].Score > list[j].Score })
		return map[string]interface{}{
			"path":        path,
			"suggestions": nonNil(list),
		}, nil
	}

	images := []pendingCount{}
	total := 0
	for _, path := range store.Images() {
		if n := store.PendingCount(path); n > 0 {
			images = append(images, pendingCount{Path: path, Pending: n})
			total += n
		}
	}
	return map[string]interface{}{
		"images": images,
		"total":  total,
	}, nil
}

type suggestionArgs struct {
	Path string `json:"path"`
	ID   string `json:"id"`
}

func (s *Server) parseSuggestion(args json.RawMessage) (string, string, error) {
	var a suggestionArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", "", err
	}
	if a.Path == "" || a.ID == "" {
		return "", "", fmt.Errorf("path and id are required")
	}
	return s.project.Resolve(a.Path), a.ID, nil
}

func (s *Server) handleSuggestionAccept(args json.RawMessage) (interface{}, error) {
	path, id, err := s.parseSuggestion(args)
	if err != nil {
		return nil, err
	}
	return s.project.Store.AcceptSuggestion(path, id)
}

func (s *Server) handleSuggestionsAcceptAll(args json.RawMessage) (interface{}, error) {
	path, err := s.parsePath(args)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"accepted": s.project.Store.AcceptAllSuggestions(path)}, nil
}

func (s *Server) handleSuggestionReject(args json.RawMessage) (interface{}, error) {
	path, id, err := s.parseSuggestion(args)
	if err != nil {
		return nil, err
	}
	if err := s.project.Store.RejectSuggestion(path, id); err != nil {
		return nil, err
	}
	return map[string]interface{}{"rejected": 1}, nil
}

func (s *Server) handleSuggestionsRejectAll(args json.RawMessage) (interface{}, error) {
	path, err := s.parsePath(args)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"rejected": s.project.Store.RejectAllSuggestions(path)}, nil
}

func (s *Server) handleSuggestionsClear() (interface{}, error) {
	return map[string]interface{}{"cleared": s.project.Store.ClearAllSuggestions()}, nil
}

// === Review Handlers ===

type renderOverlayArgs struct {
	Path            string  `json:"path"`
	HideLabels      bool    `json:"hide_labels"`
	HideSuggestions bool    `json:"hide_suggestions"`
	MinScore        float64 `json:"min_score"`
	Color           string  `json:"color"`
	MaxSide         *int    `json:"max_side"`
	ShowTags        *bool   `json:"show_tags"`
}

func (s *Server) handleRenderOverlay(args json.RawMessage) (interface{}, error) {
	var a renderOverlayArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, fmt.Errorf("path is required")
	}
	path := s.project.Resolve(a.Path)
	img, err := s.project.Decoder.Decode(path)
	if err != nil {
		return nil, err
	}

	opts := overlay.Options{
		HideLabels:      a.HideLabels,
		HideSuggestions: a.HideSuggestions,
		MinScore:        a.MinScore,
		Color:           a.Color,
		MaxSide:         1024,
		ShowTags:        true,
	}
	if a.MaxSide != nil {
		opts.MaxSide = *a.MaxSide
	}
	if a.ShowTags != nil {
		opts.ShowTags = *a.ShowTags
	}
	return overlay.Render(img, s.project.Store.Labels(path), s.project.Store.Suggestions(path), opts)
}

func (s *Server) handleProjectSave() (interface{}, error) {
	if err := s.project.Save(); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"saved":         true,
		"images":        len(s.project.Store.Images()),
		"cached_hashes": s.project.Index.Len(),
	}, nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
