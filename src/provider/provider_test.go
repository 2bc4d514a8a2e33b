package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"sift-agent/src/contracts"
	"sift-agent/src/review"
)

func TestRegistry(t *testing.T) {
	a := NewMemoryAdapter("local", "")
	b := NewMemoryAdapter("github", "")

	reg, err := NewRegistry(a, b)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	got, err := reg.Get("local")
	if err != nil {
		t.Fatalf("Get(local) error = %v", err)
	}
	if got != a {
		t.Error("Get(local) returned a different adapter")
	}

	if _, err := reg.Get("gitlab"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Get(gitlab) error = %v, want ErrUnknownProvider", err)
	}

	if err := reg.Register(NewMemoryAdapter("local", "")); err == nil {
		t.Error("Register() duplicate should fail")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "github" || names[1] != "local" {
		t.Errorf("Names() = %v, want [github local]", names)
	}
}

func TestMemoryAdapter_Signature(t *testing.T) {
	a := NewMemoryAdapter("local", "s3cret")
	payload := []byte(`{"owner":"acme","repo":"api","number":7}`)

	sig := a.Sign(payload)
	if !a.VerifySignature(payload, sig) {
		t.Error("VerifySignature() rejected a valid signature")
	}
	if a.VerifySignature([]byte(`{"owner":"evil"}`), sig) {
		t.Error("VerifySignature() accepted a signature for a different payload")
	}
	if a.VerifySignature(payload, "deadbeef") {
		t.Error("VerifySignature() accepted a signature without the sha256= prefix")
	}

	open := NewMemoryAdapter("local", "")
	if !open.VerifySignature(payload, "") {
		t.Error("VerifySignature() with no secret should accept any payload")
	}
}

func TestMemoryAdapter_ParseWebhook(t *testing.T) {
	a := NewMemoryAdapter("local", "")

	req, err := a.ParseWebhook([]byte(`{"owner":"acme","repo":"api","number":7,"head_sha":"abc"}`), http.Header{})
	if err != nil {
		t.Fatalf("ParseWebhook() error = %v", err)
	}
	if req.Provider != "local" {
		t.Errorf("Provider = %q, want local", req.Provider)
	}
	if req.IdempotencyKey != "local:acme/api#7@abc" {
		t.Errorf("IdempotencyKey = %q", req.IdempotencyKey)
	}

	if _, err := a.ParseWebhook([]byte(`{"owner":"acme"}`), http.Header{}); !errors.Is(err, ErrUnsupportedEvent) {
		t.Errorf("ParseWebhook() incomplete payload error = %v, want ErrUnsupportedEvent", err)
	}

	if _, err := a.ParseWebhook([]byte(`not json`), http.Header{}); err == nil {
		t.Error("ParseWebhook() should fail on malformed JSON")
	}
}

func TestMemoryAdapter_DiffAndPost(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryAdapter("local", "")
	req := contracts.ReviewRequest{Provider: "local", Owner: "acme", Repo: "api", Number: 7}

	if _, err := a.FetchDiff(ctx, req); !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchDiff() unknown ref error = %v, want ErrNotFound", err)
	}

	a.SetDiff("acme/api#7", "diff --git a/x b/x\n")
	diff, err := a.FetchDiff(ctx, req)
	if err != nil || diff == "" {
		t.Fatalf("FetchDiff() = %q, %v", diff, err)
	}
	if a.Fetches() != 2 {
		t.Errorf("Fetches() = %d, want 2", a.Fetches())
	}

	comments := []review.Comment{{Path: "x", Line: 1, Body: "fix", Severity: review.SeverityWarning}}
	if err := a.PostReview(ctx, req, comments, "summary"); err != nil {
		t.Fatalf("PostReview() error = %v", err)
	}

	a.FailPosts(errors.New("api down"))
	if err := a.PostReview(ctx, req, nil, "again"); err == nil {
		t.Error("PostReview() should return the injected error")
	}

	posted := a.Posted()
	if len(posted) != 1 {
		t.Fatalf("Posted() = %d reviews, want 1", len(posted))
	}
	if posted[0].Summary != "summary" || len(posted[0].Comments) != 1 {
		t.Errorf("Posted()[0] = %+v", posted[0])
	}
}
