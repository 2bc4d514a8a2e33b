// Package github adapts the GitHub REST API and webhooks to the provider interface.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v69/github"
	"golang.org/x/oauth2"

	"sift-agent/src/contracts"
	"sift-agent/src/logger"
	"sift-agent/src/provider"
	"sift-agent/src/review"
)

// ProviderName is the name GitHub is registered under.
const ProviderName = "github"

// reviewActions are the pull_request actions that trigger a review.
var reviewActions = map[string]bool{
	"opened":           true,
	"synchronize":      true,
	"reopened":         true,
	"ready_for_review": true,
}

// Config holds GitHub credentials and endpoints.
type Config struct {
	Token         string
	WebhookSecret string
	// BaseURL overrides the API endpoint (GitHub Enterprise or tests).
	BaseURL string
}

// Adapter implements provider.Adapter for GitHub pull requests.
type Adapter struct {
	client *gogithub.Client
	secret []byte
	logger logger.Logger
}

// New creates a GitHub adapter. An empty token yields an unauthenticated client.
func New(ctx context.Context, cfg Config, log logger.Logger) (*Adapter, error) {
	var httpClient *http.Client
	if cfg.Token != "" {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	}
	client := gogithub.NewClient(httpClient)

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL %q: %w", cfg.BaseURL, err)
		}
		client.BaseURL = u
	}

	log = logger.OrSilent(log)
	if cfg.WebhookSecret == "" {
		log.Warn("[GitHub] No webhook secret configured; signatures will not be checked")
	}

	return &Adapter{
		client: client,
		secret: []byte(cfg.WebhookSecret),
		logger: log,
	}, nil
}

func (a *Adapter) Name() string            { return ProviderName }
func (a *Adapter) SignatureHeader() string { return gogithub.SHA256SignatureHeader }

// VerifySignature checks an X-Hub-Signature-256 value. With no secret
// configured every payload is accepted.
func (a *Adapter) VerifySignature(payload []byte, signature string) bool {
	if len(a.secret) == 0 {
		return true
	}
	if signature == "" {
		return false
	}
	return gogithub.ValidateSignature(signature, payload, a.secret) == nil
}

// ParseWebhook accepts pull_request deliveries for opened, synchronized,
// reopened, and ready-for-review non-draft pull requests.
func (a *Adapter) ParseWebhook(payload []byte, headers http.Header) (*contracts.ReviewRequest, error) {
	eventType := headers.Get(gogithub.EventTypeHeader)
	if eventType != "pull_request" {
		return nil, fmt.Errorf("%w: %q", provider.ErrUnsupportedEvent, eventType)
	}

	event, err := gogithub.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	pr, ok := event.(*gogithub.PullRequestEvent)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected payload type %T", provider.ErrUnsupportedEvent, event)
	}

	action := pr.GetAction()
	if !reviewActions[action] {
		return nil, fmt.Errorf("%w: pull_request action %q", provider.ErrUnsupportedEvent, action)
	}
	if pr.GetPullRequest().GetDraft() {
		return nil, fmt.Errorf("%w: draft pull request", provider.ErrUnsupportedEvent)
	}

	req := &contracts.ReviewRequest{
		Provider: ProviderName,
		Owner:    pr.GetRepo().GetOwner().GetLogin(),
		Repo:     pr.GetRepo().GetName(),
		Number:   pr.GetNumber(),
		HeadSHA:  pr.GetPullRequest().GetHead().GetSHA(),
		BaseSHA:  pr.GetPullRequest().GetBase().GetSHA(),
		Title:    pr.GetPullRequest().GetTitle(),
	}
	if req.Number == 0 {
		req.Number = pr.GetPullRequest().GetNumber()
	}
	if req.Owner == "" || req.Repo == "" || req.Number == 0 {
		return nil, fmt.Errorf("%w: payload does not identify a pull request", provider.ErrUnsupportedEvent)
	}
	req.IdempotencyKey = req.DeriveIdempotencyKey()
	return req, nil
}

// FetchDiff downloads the pull request as a unified diff.
func (a *Adapter) FetchDiff(ctx context.Context, req contracts.ReviewRequest) (string, error) {
	diff, _, err := a.client.PullRequests.GetRaw(ctx, req.Owner, req.Repo, req.Number, gogithub.RawOptions{Type: gogithub.Diff})
	if err != nil {
		return "", classify(err)
	}
	return diff, nil
}

// PostReview creates a COMMENT review anchored to the head commit. If GitHub
// rejects the inline comments, the review is posted again with the comments
// folded into the body.
func (a *Adapter) PostReview(ctx context.Context, req contracts.ReviewRequest, comments []review.Comment, summary string) error {
	err := a.createReview(ctx, req, summary, draftComments(comments))
	if err == nil || len(comments) == 0 || !isUnprocessable(err) {
		return classify(err)
	}

	a.logger.Warn("[GitHub] Inline comments rejected for %s, posting as summary: %v", req.Ref(), err)
	return classify(a.createReview(ctx, req, foldComments(summary, comments), nil))
}

func (a *Adapter) createReview(ctx context.Context, req contracts.ReviewRequest, body string, comments []*gogithub.DraftReviewComment) error {
	draft := &gogithub.PullRequestReviewRequest{
		Body:     gogithub.Ptr(body),
		Event:    gogithub.Ptr("COMMENT"),
		Comments: comments,
	}
	if req.HeadSHA != "" {
		draft.CommitID = gogithub.Ptr(req.HeadSHA)
	}
	_, _, err := a.client.PullRequests.CreateReview(ctx, req.Owner, req.Repo, req.Number, draft)
	return err
}

func draftComments(comments []review.Comment) []*gogithub.DraftReviewComment {
	out := make([]*gogithub.DraftReviewComment, 0, len(comments))
	for _, c := range comments {
		out = append(out, &gogithub.DraftReviewComment{
			Path: gogithub.Ptr(c.Path),
			Line: gogithub.Ptr(c.Line),
			Side: gogithub.Ptr("RIGHT"),
			Body: gogithub.Ptr(c.Body),
		})
	}
	return out
}

func foldComments(summary string, comments []review.Comment) string {
	var b strings.Builder
	b.WriteString(summary)
	b.WriteString("\n\n### Findings\n")
	for _, c := range comments {
		fmt.Fprintf(&b, "\n- `%s:%d` %s", c.Path, c.Line, strings.ReplaceAll(c.Body, "\n", "\n  "))
	}
	return b.String()
}

func isUnprocessable(err error) bool {
	var errResp *gogithub.ErrorResponse
	return errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusUnprocessableEntity
}

// classify maps API failures onto provider sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var rateErr *gogithub.RateLimitError
	if errors.As(err, &rateErr) {
		return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
	}
	var abuseErr *gogithub.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
	}

	var errResp *gogithub.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		switch errResp.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", provider.ErrAuthFailed, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", provider.ErrNotFound, err)
		}
	}
	return err
}
