// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the intelligence graph to LLM clients via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/nexus/internal/intelservice"
	"github.com/starford/nexus/internal/models"
	"github.com/starford/nexus/internal/store"
)

// Server wraps the MCP server with intelligence graph tools.
type Server struct {
	mcp     *server.MCPServer
	svc     *intelservice.Service
	fetcher *fetcher
}

// New creates a new MCP server with all tools registered.
func New(svc *intelservice.Service, version string) *Server {
	s := &Server{svc: svc, fetcher: newFetcher()}

	s.mcp = server.NewMCPServer(
		"Nexus",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("link_entities",
		mcp.WithDescription("Create a directed, typed link from one entity to another. "+
			"Links are append-only; linking the same pair twice keeps both links."),
		mcp.WithString("source_id", mcp.Required(), mcp.Description("UUID of the source entity")),
		mcp.WithString("target_id", mcp.Required(), mcp.Description("UUID of the target entity")),
		mcp.WithString("relationship_type", mcp.Required(), mcp.Description("Relationship label, e.g. owns, references")),
		mcp.WithNumber("weight", mcp.Description("Link weight (default 1.0)")),
	), s.linkEntities)

	s.mcp.AddTool(mcp.NewTool("get_links",
		mcp.WithDescription("List the links leaving (out) or reaching (in) an entity."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity UUID")),
		mcp.WithString("direction", mcp.Description("out (default) or in"), mcp.Enum(intelservice.DirectionOut, intelservice.DirectionIn)),
	), s.getLinks)

	s.mcp.AddTool(mcp.NewTool("get_context",
		mcp.WithDescription("Summarize what an entity is linked to, one line per outgoing link."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Entity UUID")),
	), s.getContext)

	s.mcp.AddTool(mcp.NewTool("process_document",
		mcp.WithDescription("Ingest a local file, classify it into a department, attach a summary "+
			"and optionally link it to related entities. Returns the stored document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file on the server host")),
		mcp.WithString("related_to", mcp.Description("Comma-separated related entities, each <uuid> or <uuid>:<relationship_type>")),
	), s.processDocument)

	s.mcp.AddTool(mcp.NewTool("upload_document",
		mcp.WithDescription("Fetch a document from an http(s) URL or a base64 data URI and process it "+
			"like process_document."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:<mime>;base64,<data> URI")),
		mcp.WithString("filename", mcp.Description("Filename to record; derived from the URL when omitted")),
		mcp.WithString("related_to", mcp.Description("Comma-separated related entities, each <uuid> or <uuid>:<relationship_type>")),
	), s.uploadDocument)

	s.mcp.AddTool(mcp.NewTool("classify_text",
		mcp.WithDescription("Return the department a piece of text would be filed under and the deciding keyword."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Free text to classify")),
	), s.classifyText)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List processed documents, newest first."),
		mcp.WithString("department", mcp.Description("Optional department filter"),
			mcp.Enum(departmentNames()...)),
		mcp.WithNumber("limit", mcp.Description("Maximum number of documents (default 50)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("get_classification_rules",
		mcp.WithDescription("Describe the keyword rules used to route documents to departments. "+
			"Same content as the "+rulesURI+" resource."),
	), s.getClassificationRules)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Classification Rules",
			mcp.WithResourceDescription("Department keyword rules in priority order."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func departmentNames() []string {
	ds := models.Departments()
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = string(d)
	}
	return out
}

func requireID(req mcp.CallToolRequest, key string) (uuid.UUID, error) {
	raw, err := req.RequireString(key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: invalid UUID %q", key, raw)
	}
	return id, nil
}

// parseRelated parses "id[:type],id[:type]" lists.
func parseRelated(raw string) ([]intelservice.Relation, error) {
	var out []intelservice.Relation
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idPart, relType, _ := strings.Cut(part, ":")
		id, err := uuid.Parse(strings.TrimSpace(idPart))
		if err != nil {
			return nil, fmt.Errorf("related_to: invalid UUID %q", idPart)
		}
		out = append(out, intelservice.Relation{ID: id, RelationshipType: strings.TrimSpace(relType)})
	}
	return out, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) linkEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	src, err := requireID(req, "source_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dst, err := requireID(req, "target_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	relType, err := req.RequireString("relationship_type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	weight := req.GetFloat("weight", models.DefaultWeight)

	l, err := s.svc.Link(ctx, src, dst, relType, &weight)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(l), nil
}

func (s *Server) getLinks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	links, err := s.svc.Links(ctx, id, req.GetString("direction", intelservice.DirectionOut))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(links) == 0 {
		return mcp.NewToolResultText("no links found"), nil
	}
	return jsonResult(links), nil
}

func (s *Server) getContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireID(req, "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(strings.Join(s.svc.Context(ctx, id), "\n")), nil
}

func (s *Server) processDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	related, err := parseRelated(req.GetString("related_to", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.ProcessDocument(ctx, path, related)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(detail), nil
}

func (s *Server) classifyText(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.svc.Classify(text)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.ListDocuments(ctx, store.DocumentFilter{
		Department: models.Department(req.GetString("department", "")),
		Limit:      int(req.GetFloat("limit", 0)),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	lines := make([]string, len(docs))
	for i, d := range docs {
		lines[i] = fmt.Sprintf("%s\t%s\t%s", d.ID, d.Department, d.Filename)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getClassificationRules(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(renderRules(s.svc.Rules())), nil
}

func (s *Server) readRulesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     renderRules(s.svc.Rules()),
		},
	}, nil
}
