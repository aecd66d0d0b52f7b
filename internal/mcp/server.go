// Package mcp exposes read-only gallery tools over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"gallery/internal/filter"
	"gallery/internal/models"
	"gallery/internal/render"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Gallery is the read side of gallery.Repository.
type Gallery interface {
	ListFolderNames() []string
	AllImages() []models.MatchedImage
}

// ImageInfo describes an image without its payload.
type ImageInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Folder    string   `json:"folder"`
	Tags      []string `json:"tags"`
	CreatedAt int64    `json:"createdAt"`
	Bytes     int      `json:"bytes"`
	MediaType string   `json:"mediaType,omitempty"`
}

func Info(img models.MatchedImage) ImageInfo {
	info := ImageInfo{
		ID:        img.ID,
		Name:      img.Name,
		Folder:    img.Folder,
		Tags:      img.Tags,
		CreatedAt: img.CreatedAt,
		Bytes:     models.DataURLSize(img.DataURL),
	}
	if mt, _, err := models.DecodeDataURL(img.DataURL); err == nil {
		info.MediaType = mt
	}
	return info
}

type folderInfo struct {
	Name   string `json:"name"`
	Images int    `json:"images"`
}

type searchReq struct {
	Folder string   `json:"folder"`
	Query  string   `json:"query"`
	Tags   []string `json:"tags"`
	Limit  int      `json:"limit"`
}

type searchResp struct {
	Matched int         `json:"matched"`
	Total   int         `json:"total"`
	Message string      `json:"message"`
	Images  []ImageInfo `json:"images"`
}

// NewServer returns an MCP server with the gallery tools registered.
func NewServer(g Gallery, version string) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "gallery", Version: version}, nil)
	RegisterTools(srv, g)
	return srv
}

// Handler serves srv over streamable HTTP without per-client sessions.
func Handler(srv *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv },
		&mcp.StreamableHTTPOptions{Stateless: true})
}

func RegisterTools(srv *mcp.Server, g Gallery) {
	srv.AddTool(&mcp.Tool{
		Name:        "list_folders",
		Description: "List gallery folders with the number of images in each.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		counts := map[string]int{}
		for _, img := range g.AllImages() {
			counts[img.Folder]++
		}
		folders := []folderInfo{}
		for _, name := range g.ListFolderNames() {
			folders = append(folders, folderInfo{Name: name, Images: counts[name]})
		}
		return jsonResult(map[string]any{"folders": folders})
	})

	srv.AddTool(&mcp.Tool{
		Name: "search_images",
		Description: "Search gallery images by folder, case-insensitive name substring and " +
			"required tags. Returns metadata newest first, without image data.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"folder": map[string]any{"type": "string", "description": "Folder name; omit for all folders"},
				"query":  map[string]any{"type": "string", "description": "Substring of the image name"},
				"tags": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Every tag must be present",
				},
				"limit": map[string]any{"type": "integer", "description": "Maximum images returned; 0 for all"},
			},
		},
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r searchReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return errorResult(fmt.Errorf("invalid arguments: %w", err)), nil
			}
		}
		if r.Limit < 0 {
			return errorResult(fmt.Errorf("limit must not be negative")), nil
		}

		all := g.AllImages()
		matched := filter.Apply(all, filter.Query{Folder: r.Folder, Text: r.Query, Tags: r.Tags})
		resp := searchResp{
			Matched: len(matched),
			Total:   len(all),
			Message: render.CountMessage(len(matched), len(all)),
			Images:  []ImageInfo{},
		}
		for i, img := range matched {
			if r.Limit > 0 && i == r.Limit {
				break
			}
			resp.Images = append(resp.Images, Info(img))
		}
		return jsonResult(resp)
	})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Errorf("marshal: %w", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}

func errorResult(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
