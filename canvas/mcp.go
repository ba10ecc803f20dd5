package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domcanvas/layer"
)

// RegisterMCP registers the canvas tools on an MCP server.
func (s *Session) RegisterMCP(srv *mcp.Server) {
	s.registerTreeTool(srv)
	s.registerLayerTool(srv)
	s.registerCreateTool(srv)
	s.registerDeleteTool(srv)
	s.registerMoveTool(srv)
	s.registerSetPropertyTool(srv)
	s.registerSetTransformTool(srv)
	s.registerSelectTool(srv)
	s.registerUndoTool(srv)
	s.registerRedoTool(srv)
	s.registerExportMarkdownTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// registerTool wires a raw-arguments handler as an MCP tool. Handler
// errors become tool errors, never protocol errors.
func registerTool(srv *mcp.Server, tool *mcp.Tool, fn func(context.Context, json.RawMessage) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := fn(ctx, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			if reason := layer.Reason(err); reason != "" {
				err = fmt.Errorf("%s: %s", reason, err)
			}
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- tree ---

func (s *Session) registerTreeTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_tree",
		Description: "Return the whole layer tree in interchange form: ids, types, names, transforms, content, children.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		return s.SerializeTree(), nil
	})
}

// --- layer ---

type layerRequest struct {
	ID string `json:"id"`
}

func (s *Session) registerLayerTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_layer",
		Description: "Return one layer and its subtree in interchange form.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Layer id"},
		}, []string{"id"}),
	}
	registerTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r layerRequest
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, err
		}
		return s.SerializeLayer(r.ID)
	})
}

// --- create ---

type createRequest struct {
	Type     string `json:"type"`
	ParentID string `json:"parent_id,omitempty"`
	Index    *int   `json:"index,omitempty"`
	Override bool   `json:"override,omitempty"`
}

func (s *Session) registerCreateTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_create",
		Description: "Create a new layer of the given type and insert the matching empty element into the rendered document.",
		InputSchema: inputSchema(map[string]any{
			"type":      map[string]any{"type": "string", "description": "Layer type (text, image, container, button, ...)"},
			"parent_id": map[string]any{"type": "string", "description": "Parent layer id (default: root)"},
			"index":     map[string]any{"type": "integer", "description": "Sibling position (default: append)"},
			"override":  map[string]any{"type": "boolean", "description": "Edit even when the parent chain is locked"},
		}, []string{"type"}),
	}
	registerTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r createRequest
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, err
		}
		if r.ParentID == "" {
			r.ParentID = s.RootID()
		}
		index := -1
		if r.Index != nil {
			index = *r.Index
		}
		created, err := s.CreateLayer(ctx, layer.Type(r.Type), r.ParentID, index, editOptions(r.Override)...)
		if err != nil {
			return nil, err
		}
		return s.SerializeLayer(created.ID)
	})
}

// --- delete ---

type deleteRequest struct {
	ID       string `json:"id"`
	Override bool   `json:"override,omitempty"`
}

func (s *Session) registerDeleteTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_delete",
		Description: "Delete a layer and its subtree from the tree and the rendered document. Undoable.",
		InputSchema: inputSchema(map[string]any{
			"id":       map[string]any{"type": "string", "description": "Layer id"},
			"override": map[string]any{"type": "boolean", "description": "Delete even when locked"},
		}, []string{"id"}),
	}
	registerTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r deleteRequest
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, err
		}
		if err := s.DeleteLayer(ctx, r.ID, editOptions(r.Override)...); err != nil {
			return nil, err
		}
		return map[string]string{"status": "deleted", "id": r.ID}, nil
	})
}

// --- move ---

type moveRequest struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Index    *int   `json:"index,omitempty"`
	Override bool   `json:"override,omitempty"`
}

func (s *Session) registerMoveTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_move",
		Description: "Reparent or reorder a layer. The rendered element moves with it.",
		InputSchema: inputSchema(map[string]any{
			"id":        map[string]any{"type": "string", "description": "Layer id"},
			"parent_id": map[string]any{"type": "string", "description": "New parent layer id"},
			"index":     map[string]any{"type": "integer", "description": "Sibling position under the new parent (default: append)"},
			"override":  map[string]any{"type": "boolean", "description": "Move even when locked"},
		}, []string{"id", "parent_id"}),
	}
	registerTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r moveRequest
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, err
		}
		index := -1
		if r.Index != nil {
			index = *r.Index
		}
		if err := s.MoveLayer(ctx, r.ID, r.ParentID, index, editOptions(r.Override)...); err != nil {
			return nil, err
		}
		return s.SerializeLayer(r.ID)
	})
}

// --- set_property ---

type setPropertyRequest struct {
	ID       string          `json:"id"`
	Key      string          `json:"key"`
	Value    json.RawMessage `json:"value"`
	Override bool            `json:"override,omitempty"`
}

func (s *Session) registerSetPropertyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_set_property",
		Description: "Set one scalar layer property: name, visible, locked, collapsed, or content.* (text, src, alt, href, ...). Content and visibility changes mirror to the rendered document.",
		InputSchema: inputSchema(map[string]any{
			"id":       map[string]any{"type": "string", "description": "Layer id"},
			"key":      map[string]any{"type": "string", "description": "Property key (e.g. name, visible, content.text)"},
			"value":    map[string]any{"description": "New value; type depends on the key"},
			"override": map[string]any{"type": "boolean", "description": "Edit even when locked"},
		}, []string{"id", "key"}),
	}
	registerTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r setPropertyRequest
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, err
		}
		var value any
		if len(r.Value) > 0 {
			if err := json.Unmarshal(r.Value, &value); err != nil {
				return nil, err
			}
		}
		if err := s.SetProperty(ctx, r.ID, r.Key, value, editOptions(r.Override)...); err != nil {
			return nil, err
		}
		return s.SerializeLayer(r.ID)
	})
}

// --- set_transform ---

type setTransformRequest struct {
	ID string `json:"id"`
	layer.TransformPatch
	Override bool `json:"override,omitempty"`
}

func (s *Session) registerSetTransformTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_set_transform",
		Description: "Overlay a partial transform (x, y, width, height, rotation, scaleX, scaleY) on a layer and mirror it as inline style.",
		InputSchema: inputSchema(map[string]any{
			"id":       map[string]any{"type": "string", "description": "Layer id"},
			"x":        map[string]any{"type": "number", "description": "Translation x in px"},
			"y":        map[string]any{"type": "number", "description": "Translation y in px"},
			"width":    map[string]any{"type": "number", "description": "Width override in px"},
			"height":   map[string]any{"type": "number", "description": "Height override in px"},
			"rotation": map[string]any{"type": "number", "description": "Rotation in degrees"},
			"scaleX":   map[string]any{"type": "number", "description": "Horizontal scale factor"},
			"scaleY":   map[string]any{"type": "number", "description": "Vertical scale factor"},
			"override": map[string]any{"type": "boolean", "description": "Edit even when locked"},
		}, []string{"id"}),
	}
	registerTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r setTransformRequest
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, err
		}
		if err := s.SetTransform(ctx, r.ID, r.TransformPatch, editOptions(r.Override)...); err != nil {
			return nil, err
		}
		tr, err := s.GetTransform(r.ID)
		if err != nil {
			return nil, err
		}
		return tr, nil
	})
}

// --- select ---

type selectRequest struct {
	ID    string `json:"id,omitempty"`
	Mode  string `json:"mode,omitempty"`
	Clear bool   `json:"clear,omitempty"`
}

func (s *Session) registerSelectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_select",
		Description: "Change the selection set and return the selected ids.",
		InputSchema: inputSchema(map[string]any{
			"id":    map[string]any{"type": "string", "description": "Layer id to select"},
			"mode":  map[string]any{"type": "string", "enum": []any{"replace", "add", "toggle"}, "description": "Selection mode (default: replace)"},
			"clear": map[string]any{"type": "boolean", "description": "Clear the selection instead"},
		}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r selectRequest
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, err
		}
		if r.Clear {
			s.ClearSelection()
			return map[string]any{"ids": []string{}}, nil
		}
		if err := s.Select(r.ID, layer.ParseSelectMode(r.Mode)); err != nil {
			return nil, err
		}
		return map[string]any{"ids": s.SelectedIDs()}, nil
	})
}

// --- undo / redo ---

func (s *Session) registerUndoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_undo",
		Description: "Undo the most recent committed edit. Returns the undone command's name.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		name, err := s.Undo(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"undone": name}, nil
	})
}

func (s *Session) registerRedoTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_redo",
		Description: "Re-apply the most recently undone edit. Returns the command's name.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, _ json.RawMessage) (any, error) {
		name, err := s.Redo(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]string{"redone": name}, nil
	})
}

// --- export_markdown ---

type exportRequest struct {
	ID string `json:"id,omitempty"`
}

func (s *Session) registerExportMarkdownTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "canvas_export_markdown",
		Description: "Render a layer's rendered subtree as markdown. Omit id to export the whole document.",
		InputSchema: inputSchema(map[string]any{
			"id": map[string]any{"type": "string", "description": "Layer id (default: root)"},
		}, nil),
	}
	registerTool(srv, tool, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r exportRequest
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, err
		}
		if r.ID == "" {
			r.ID = s.RootID()
		}
		md, err := s.ExportMarkdown(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"markdown": md}, nil
	})
}
