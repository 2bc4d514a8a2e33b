package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"sift-agent/src/contracts"
	"sift-agent/src/logger"
	"sift-agent/src/pipeline"
)

// Reviewer runs one review to completion.
type Reviewer interface {
	Run(ctx context.Context, req contracts.ReviewRequest) (*pipeline.ReviewRecord, error)
}

// LocalProvider names requests created by the MCP tools.
const LocalProvider = "local"

// Server is the MCP server for sift.
type Server struct {
	mcpServer *server.MCPServer
	reviewer  Reviewer
	store     ManifestStore
	logger    logger.Logger
}

// NewServer creates a new MCP server around reviewer.
func NewServer(reviewer Reviewer, version string, log logger.Logger) *Server {
	s := server.NewMCPServer(
		"sift",
		version,
		server.WithToolCapabilities(true),
	)

	srv := &Server{
		mcpServer: s,
		reviewer:  reviewer,
		store:     NewInMemoryStore(DefaultStoreCapacity),
		logger:    logger.OrSilent(log),
	}
	srv.registerTools()

	return srv
}

func (s *Server) registerTools() {
	reviewTool := mcp.NewTool("review_diff",
		mcp.WithDescription("Review a unified diff and return findings. Error and warning findings are fully expanded with a code snippet; notes and suggestions are summarized. Use get_finding_details to drill into a summarized finding."),
		mcp.WithString("diff",
			mcp.Required(),
			mcp.Description("Unified diff to review (git diff output)"),
		),
		mcp.WithString("repo",
			mcp.Description("Repository as owner/name, used to resolve per-repository configuration"),
		),
		mcp.WithString("title",
			mcp.Description("Short description of the change"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max findings per section (default: 15)"),
		),
	)

	detailsTool := mcp.NewTool("get_finding_details",
		mcp.WithDescription("Get full details for one finding, including the surrounding code. Use after review_diff."),
		mcp.WithString("review_id",
			mcp.Required(),
			mcp.Description("Review ID from the review_diff response"),
		),
		mcp.WithString("finding_id",
			mcp.Required(),
			mcp.Description("Finding ID from the review_diff response"),
		),
	)

	s.mcpServer.AddTool(reviewTool, s.handleReviewDiff)
	s.mcpServer.AddTool(detailsTool, s.handleGetFindingDetails)
}

// Run serves the tools on stdio.
func (s *Server) Run() error {
	return server.ServeStdio(s.mcpServer)
}

func (s *Server) handleReviewDiff(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	diff := request.GetString("diff", "")
	if strings.TrimSpace(diff) == "" {
		return mcp.NewToolResultError("diff parameter is required"), nil
	}

	req, err := LocalRequest(diff, request.GetString("repo", ""), request.GetString("title", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := request.GetInt("limit", DefaultLimit)

	rec, err := s.reviewer.Run(ctx, req)
	if err != nil {
		s.logger.Warn("[MCP] Review of %s failed: %v", req.Ref(), err)
		return mcp.NewToolResultError(fmt.Sprintf("review failed: %v", err)), nil
	}

	manifest, findings := Tier(rec, limit)
	s.store.Store(manifest.ReviewID, manifest, findings)

	jsonBytes, err := json.Marshal(manifest)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleGetFindingDetails(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	reviewID := request.GetString("review_id", "")
	if reviewID == "" {
		return mcp.NewToolResultError("review_id parameter is required"), nil
	}
	findingID := request.GetString("finding_id", "")
	if findingID == "" {
		return mcp.NewToolResultError("finding_id parameter is required"), nil
	}

	finding, found := s.store.Get(reviewID, findingID)
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("finding not found: review_id=%s, finding_id=%s", reviewID, findingID)), nil
	}

	jsonBytes, err := json.Marshal(finding)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal finding: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// LocalRequest builds a request for an inline diff. Identical diffs share an
// idempotency key so a repeated call replays the earlier result.
func LocalRequest(diff, repo, title string) (contracts.ReviewRequest, error) {
	owner, name := LocalProvider, "workspace"
	if repo != "" {
		parts := strings.Split(repo, "/")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return contracts.ReviewRequest{}, fmt.Errorf("repo must be owner/name, got %q", repo)
		}
		owner, name = parts[0], parts[1]
	}

	digest := uuid.NewSHA1(uuid.NameSpaceOID, []byte(owner+"/"+name+"\n"+diff)).String()
	return contracts.ReviewRequest{
		Provider:       LocalProvider,
		Owner:          owner,
		Repo:           name,
		HeadSHA:        digest,
		Title:          title,
		Diff:           diff,
		IdempotencyKey: "mcp:" + digest,
	}, nil
}
