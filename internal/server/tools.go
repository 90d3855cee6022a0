package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func stringList(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"items":       map[string]interface{}{"type": "string"},
		"description": description,
	}
}

func schema(props map[string]interface{}, required ...string) map[string]interface{} {
	s := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var rectSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"x": map[string]interface{}{"type": "integer"},
		"y": map[string]interface{}{"type": "integer"},
		"w": map[string]interface{}{"type": "integer"},
		"h": map[string]interface{}{"type": "integer"},
	},
	"required": []string{"x", "y", "w", "h"},
}

// runProperties are the options shared by every propagate_* tool.
func runProperties(extra map[string]interface{}) map[string]interface{} {
	props := map[string]interface{}{
		"auto_accept":     prop("boolean", "Commit results as labels instead of queuing suggestions. Default false"),
		"skip_labeled":    prop("boolean", "Leave candidates that already have labels untouched. Default false"),
		"max_suggestions": prop("integer", "Cap on results added to one image by this run. Negative disables the cap. Default from config"),
		"merge_iou":       prop("number", "IoU at which a result counts as a duplicate (0-1]. Default from config"),
		"threshold":       prop("number", "Minimum score for a result (0-1]. Matches below 0.3 are always rejected. Default from config"),
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Labels
		{
			Name:        "labels_get",
			Description: "Get the committed labels and pending suggestions of an image.",
			InputSchema: schema(map[string]interface{}{
				"path": prop("string", "Image path, absolute or relative to the project"),
			}, "path"),
		},
		{
			Name:        "labels_set",
			Description: "Replace the committed labels of an image. Boxes without area are dropped and unknown class ids map to the default class.",
			InputSchema: schema(map[string]interface{}{
				"path": prop("string", "Image path, absolute or relative to the project"),
				"labels": map[string]interface{}{
					"type": "array",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id":       prop("string", "Optional label id; generated when empty"),
							"name":     prop("string", "Optional display name; defaults to the class name"),
							"class_id": prop("integer", "Class id"),
							"rect":     rectSchema,
						},
						"required": []string{"rect"},
					},
				},
				"changed": prop("boolean", "Set when the image file was replaced on disk; drops its cached fingerprints"),
			}, "path", "labels"),
		},

		// Similarity
		{
			Name:        "image_similarity",
			Description: "Score how alike two images are in [0,1], using a difference hash or a grayscale histogram.",
			InputSchema: schema(map[string]interface{}{
				"a":    prop("string", "First image path"),
				"b":    prop("string", "Second image path"),
				"mode": prop("string", "hash or histogram. Default from config"),
			}, "a", "b"),
		},

		// Propagation
		{
			Name:        "propagate_image",
			Description: "Copy the labels of each source onto candidates that look the same as a whole, scaled to the candidate size. Sends notifications/progress when a progressToken is given.",
			InputSchema: schema(runProperties(map[string]interface{}{
				"sources":    stringList("Labeled source images"),
				"candidates": stringList("Images to receive suggestions. Default: every image in the project"),
			}), "sources"),
		},
		{
			Name:        "propagate_object",
			Description: "Crop each source label and search for it in the most similar candidates by normalized cross-correlation.",
			InputSchema: schema(runProperties(map[string]interface{}{
				"sources":         stringList("Labeled source images"),
				"candidates":      stringList("Images to search. Default: every image in the project"),
				"top_k":           prop("integer", "Candidates searched per source after ranking. Default from config"),
				"disable_ranking": prop("boolean", "Search every candidate instead of the top_k most similar. Default false"),
			}), "sources"),
		},
		{
			Name:        "propagate_tracking",
			Description: "Follow the labels of an anchor frame through the neighbouring frames of an ordered sequence.",
			InputSchema: schema(runProperties(map[string]interface{}{
				"frames":       stringList("Ordered frame paths. Default: every image in the project sorted by name"),
				"anchor":       prop("string", "Labeled frame to start from"),
				"frame_window": prop("integer", "Frames to walk in each direction. Default from config"),
			}), "anchor"),
		},

		// Suggestions
		{
			Name:        "suggestions_list",
			Description: "List pending suggestions of one image, or the pending count of every image when no path is given.",
			InputSchema: schema(map[string]interface{}{
				"path": prop("string", "Optional image path"),
			}),
		},
		{
			Name:        "suggestion_accept",
			Description: "Move one pending suggestion into the committed labels.",
			InputSchema: schema(map[string]interface{}{
				"path": prop("string", "Image path"),
				"id":   prop("string", "Suggestion id"),
			}, "path", "id"),
		},
		{
			Name:        "suggestions_accept_all",
			Description: "Move every pending suggestion of an image into the committed labels.",
			InputSchema: schema(map[string]interface{}{
				"path": prop("string", "Image path"),
			}, "path"),
		},
		{
			Name:        "suggestion_reject",
			Description: "Discard one pending suggestion.",
			InputSchema: schema(map[string]interface{}{
				"path": prop("string", "Image path"),
				"id":   prop("string", "Suggestion id"),
			}, "path", "id"),
		},
		{
			Name:        "suggestions_reject_all",
			Description: "Discard every pending suggestion of an image.",
			InputSchema: schema(map[string]interface{}{
				"path": prop("string", "Image path"),
			}, "path"),
		},
		{
			Name:        "suggestions_clear",
			Description: "Discard pending suggestions on every image in the project.",
			InputSchema: schema(map[string]interface{}{}),
		},

		// Review
		{
			Name:        "render_overlay",
			Description: "Draw committed labels (solid) and pending suggestions (dashed) onto an image and return it as base64-encoded PNG.",
			InputSchema: schema(map[string]interface{}{
				"path":             prop("string", "Image path"),
				"hide_labels":      prop("boolean", "Do not draw committed labels"),
				"hide_suggestions": prop("boolean", "Do not draw pending suggestions"),
				"min_score":        prop("number", "Hide suggestions scoring below this"),
				"color":            prop("string", "Single #RRGGBB colour instead of per-class colours"),
				"max_side":         prop("integer", "Shrink the output so its longer side fits. Default 1024, 0 keeps full size"),
				"show_tags":        prop("boolean", "Draw class id and score tags. Default true"),
			}, "path"),
		},
		{
			Name:        "project_save",
			Description: "Write labels and suggestions to labels.json and flush the hash cache.",
			InputSchema: schema(map[string]interface{}{}),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
