// Package notify delivers ingest results back to the chat-bot producer
// over a webhook. Delivery is best-effort at-least-once; the pipeline
// records a NOTIFY_CALLBACK_FAIL when the callback cannot be reached.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/docvault/pkg/actiontoken"
	"github.com/hashicorp-forge/docvault/pkg/models"
)

// Action is one operator affordance rendered by the chat-bot: either a
// signed callback button or a plain bot command.
type Action struct {
	Kind      string                 `json:"kind"`
	Action    string                 `json:"action"`
	Label     string                 `json:"label"`
	Method    string                 `json:"method,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Token     string                 `json:"token,omitempty"`
	Command   string                 `json:"command,omitempty"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// ResultPayload is the webhook body for one finished (or failed)
// ingest job.
type ResultPayload struct {
	JobID        string                 `json:"job_id"`
	State        string                 `json:"state"`
	Success      bool                   `json:"success"`
	DocumentID   *string                `json:"document_id"`
	Title        *string                `json:"title"`
	Category     *string                `json:"category"`
	EventDate    *string                `json:"event_date"`
	ReviewNeeded bool                   `json:"review_needed"`
	ErrorCode    *string                `json:"error_code"`
	ErrorMessage *string                `json:"error_message"`
	DashboardURL *string                `json:"dashboard_url"`
	Actions      []Action               `json:"actions"`
	Extra        map[string]interface{} `json:"extra"`
}

// Config configures the notifier.
type Config struct {
	Enabled     bool   `hcl:"enabled,optional"`
	CallbackURL string `hcl:"callback_url,optional"`

	// APIBaseURL is the public base of this service, used to build
	// action URLs embedded in callback buttons.
	APIBaseURL string `hcl:"api_base_url,optional"`

	// FrontendBaseURL builds the dashboard link shown to operators.
	FrontendBaseURL string `hcl:"frontend_base_url,optional"`

	// TimeoutSeconds bounds the webhook POST. Defaults to 10.
	TimeoutSeconds int `hcl:"timeout_seconds,optional"`
}

// SetDefaults fills in default values.
func (c *Config) SetDefaults() {
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 10
	}
}

// Notifier posts results to the producer callback.
type Notifier struct {
	cfg    Config
	client *http.Client
	issuer *actiontoken.Issuer
	logger hclog.Logger
}

// New creates a notifier. The issuer may be nil when callbacks carry no
// actions (notifications disabled).
func New(cfg Config, issuer *actiontoken.Issuer, logger hclog.Logger) *Notifier {
	cfg.SetDefaults()
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		issuer: issuer,
		logger: logger.Named("notify"),
	}
}

// Enabled reports whether callbacks are configured.
func (n *Notifier) Enabled() bool {
	return n.cfg.Enabled && n.cfg.CallbackURL != ""
}

// Send posts the result payload. A disabled notifier is a no-op.
func (n *Notifier) Send(ctx context.Context, payload *ResultPayload) error {
	if !n.Enabled() {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("callback request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	n.logger.Debug("callback delivered", "job_id", payload.JobID, "state", payload.State)
	return nil
}

// actionURL builds the public endpoint an action button POSTs to.
func (n *Notifier) actionURL(jobID uuid.UUID, action string) string {
	base := n.cfg.APIBaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return fmt.Sprintf("%s/ingest/actions/%s/%s", base, jobID, action)
}

// BuildResultActions assembles the actions offered for a chat-bot job
// that ended in FAILED or NEEDS_REVIEW: retry and reprocess buttons,
// plus a re-upload command when the temp file was already gone.
func (n *Notifier) BuildResultActions(job *models.IngestJob, errorCode string) []Action {
	if job.Source != models.SourceChatBot {
		return nil
	}
	if job.State != models.StateFailed && job.State != models.StateNeedsReview {
		return nil
	}
	if n.issuer == nil {
		return nil
	}

	now := time.Now()
	retryToken, retryExpires, err := n.issuer.Issue(job.ID, actiontoken.ActionRetry, now)
	if err != nil {
		n.logger.Error("failed to issue retry token", "job_id", job.ID, "error", err)
		return nil
	}
	reprocessToken, reprocessExpires, err := n.issuer.Issue(job.ID, actiontoken.ActionReprocess, now)
	if err != nil {
		n.logger.Error("failed to issue reprocess token", "job_id", job.ID, "error", err)
		return nil
	}

	actions := []Action{
		{
			Kind:      "button",
			Action:    actiontoken.ActionRetry,
			Label:     "재시도",
			Method:    http.MethodPost,
			URL:       n.actionURL(job.ID, actiontoken.ActionRetry),
			Token:     retryToken,
			ExpiresAt: &retryExpires,
			Payload:   map[string]interface{}{"clear_error": true},
		},
		{
			Kind:      "button",
			Action:    actiontoken.ActionReprocess,
			Label:     "재처리",
			Method:    http.MethodPost,
			URL:       n.actionURL(job.ID, actiontoken.ActionReprocess),
			Token:     reprocessToken,
			ExpiresAt: &reprocessExpires,
			Payload:   map[string]interface{}{"reset_attempts": true, "clear_error": true},
		},
	}

	if errorCode == models.ErrCodeStorageTempFileMissing {
		actions = append(actions, Action{
			Kind:    "command",
			Action:  "recover_upload",
			Label:   "파일 재업로드",
			Command: fmt.Sprintf("/recover_upload %s", job.ID),
			Payload: map[string]interface{}{"reason": models.ErrCodeStorageTempFileMissing},
		})
	}

	return actions
}

// DashboardURL returns the operator link for a document, or nil when no
// frontend is configured.
func (n *Notifier) DashboardURL(documentID uuid.UUID) *string {
	if n.cfg.FrontendBaseURL == "" {
		return nil
	}
	base := n.cfg.FrontendBaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	url := fmt.Sprintf("%s/documents/%s", base, documentID)
	return &url
}
