package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"sift-agent/src/contracts"
	"sift-agent/src/pipeline"
)

type fakeReviewer struct {
	requests []contracts.ReviewRequest
	err      error
}

func (f *fakeReviewer) Run(ctx context.Context, req contracts.ReviewRequest) (*pipeline.ReviewRecord, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return testRecord(), nil
}

func testRequest() contracts.ReviewRequest {
	return contracts.ReviewRequest{Provider: LocalProvider, Owner: "acme", Repo: "api"}
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return text.Text
}

func TestHandleReviewDiff(t *testing.T) {
	reviewer := &fakeReviewer{}
	s := NewServer(reviewer, "test", nil)

	result, err := s.handleReviewDiff(context.Background(), callTool("review_diff", map[string]any{
		"diff": "diff --git a/x b/x\n",
		"repo": "acme/api",
	}))
	if err != nil {
		t.Fatalf("handleReviewDiff() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}

	var manifest ReviewManifest
	if err := json.Unmarshal([]byte(resultText(t, result)), &manifest); err != nil {
		t.Fatalf("response is not a manifest: %v", err)
	}
	if len(manifest.Blocking) != 2 {
		t.Errorf("expected 2 blocking findings, got %d", len(manifest.Blocking))
	}

	req := reviewer.requests[0]
	if req.Owner != "acme" || req.Repo != "api" || req.Diff == "" || req.IdempotencyKey == "" {
		t.Errorf("unexpected request %+v", req)
	}

	details, err := s.handleGetFindingDetails(context.Background(), callTool("get_finding_details", map[string]any{
		"review_id":  manifest.ReviewID,
		"finding_id": manifest.Other[0].ID,
	}))
	if err != nil || details.IsError {
		t.Fatalf("get_finding_details failed: %v", err)
	}
	var finding Finding
	if err := json.Unmarshal([]byte(resultText(t, details)), &finding); err != nil {
		t.Fatalf("response is not a finding: %v", err)
	}
	if finding.Severity != "note" || len(finding.Snippet) == 0 {
		t.Errorf("unexpected finding %+v", finding)
	}
}

func TestHandleReviewDiff_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		err  error
	}{
		{"missing diff", map[string]any{}, nil},
		{"blank diff", map[string]any{"diff": "  \n"}, nil},
		{"bad repo", map[string]any{"diff": "x", "repo": "no-slash"}, nil},
		{"review failure", map[string]any{"diff": "x"}, errors.New("inference down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(&fakeReviewer{err: tt.err}, "test", nil)
			result, err := s.handleReviewDiff(context.Background(), callTool("review_diff", tt.args))
			if err != nil {
				t.Fatalf("handler returned protocol error: %v", err)
			}
			if !result.IsError {
				t.Error("expected tool error result")
			}
		})
	}
}

func TestHandleGetFindingDetails_NotFound(t *testing.T) {
	s := NewServer(&fakeReviewer{}, "test", nil)
	result, err := s.handleGetFindingDetails(context.Background(), callTool("get_finding_details", map[string]any{
		"review_id":  "nope",
		"finding_id": "nope",
	}))
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	if !result.IsError {
		t.Error("expected tool error result")
	}
}

func TestLocalRequest_IdempotentPerDiff(t *testing.T) {
	a, _ := LocalRequest("diff one", "", "")
	b, _ := LocalRequest("diff one", "", "")
	c, _ := LocalRequest("diff two", "", "")

	if a.IdempotencyKey != b.IdempotencyKey {
		t.Error("identical diffs should share a key")
	}
	if a.IdempotencyKey == c.IdempotencyKey {
		t.Error("different diffs should not share a key")
	}
	if a.Owner != LocalProvider || a.Repo != "workspace" {
		t.Errorf("default repository = %s/%s", a.Owner, a.Repo)
	}
}
