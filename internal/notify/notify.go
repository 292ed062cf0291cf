// Package notify delivers SLA alerts and assignment notices to a chat
// incoming-webhook.
package notify

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/time/rate"

	"github.com/mark3748/sla-notifier/internal/sla"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

var messageTemplates = template.Must(template.ParseFS(templatesFS, "templates/*.tmpl"))

// Subjects come from end users; strip any markup before they reach chat.
var subjectPolicy = bluemonday.StrictPolicy()

// ErrNotConfigured is returned when no webhook URL is set.
var ErrNotConfigured = errors.New("chat webhook not configured")

// ViolationMessage is the JSON body posted for an SLA violation.
type ViolationMessage struct {
	Text          string     `json:"text"`
	TicketID      string     `json:"ticket_id"`
	Kind          string     `json:"kind"`
	Deadline      *time.Time `json:"deadline,omitempty"`
	AssigneeEmail string     `json:"assignee_email,omitempty"`
}

// AssignmentMessage is the JSON body posted when a ticket is assigned.
type AssignmentMessage struct {
	Text          string `json:"text"`
	TicketID      string `json:"ticket_id"`
	AssigneeEmail string `json:"assignee_email"`
}

// Chat posts messages to a webhook, paced by a token bucket.
type Chat struct {
	url     string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewChat returns a Chat posting to url at most ratePerSec messages per
// second. A non-positive rate disables pacing. client may be nil.
func NewChat(url string, ratePerSec float64, client *http.Client) *Chat {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	lim := rate.NewLimiter(rate.Inf, 0)
	if ratePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(ratePerSec), 1)
	}
	return &Chat{url: url, client: client, limiter: lim, now: time.Now}
}

type violationView struct {
	TicketID string
	Subject  string
	SLAName  string
	Deadline string
	Overdue  string
	Assignee string
}

// Dispatch implements sla.Dispatcher.
func (c *Chat) Dispatch(ctx context.Context, a sla.Alert) error {
	r := a.Record
	v := violationView{
		TicketID: r.TicketID,
		Subject:  CleanSubject(r.Subject),
		SLAName:  r.SLAName,
		Assignee: firstNonEmpty(r.AssigneeName, r.AssigneeEmail),
	}
	if d := a.Violation.Deadline; d != nil {
		v.Deadline = d.UTC().Format(time.RFC3339)
		if over := c.now().Sub(*d); over > 0 {
			v.Overdue = over.Truncate(time.Second).String()
		}
	}
	text, err := render(string(a.Violation.Kind), v)
	if err != nil {
		return err
	}
	return c.post(ctx, ViolationMessage{
		Text:          text,
		TicketID:      r.TicketID,
		Kind:          string(a.Violation.Kind),
		Deadline:      a.Violation.Deadline,
		AssigneeEmail: r.AssigneeEmail,
	})
}

// NotifyAssignment tells the assignee of rec that the ticket is theirs.
func (c *Chat) NotifyAssignment(ctx context.Context, rec sla.AssignmentRecord, subject string) error {
	view := struct {
		TicketID   string
		Subject    string
		AssignedAt string
	}{rec.TicketID, CleanSubject(subject), ""}
	if !rec.AssignedAt.IsZero() {
		view.AssignedAt = rec.AssignedAt.UTC().Format(time.RFC3339)
	}
	text, err := render("assignment", view)
	if err != nil {
		return err
	}
	return c.post(ctx, AssignmentMessage{Text: text, TicketID: rec.TicketID, AssigneeEmail: rec.AssigneeEmail})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := messageTemplates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func (c *Chat) post(ctx context.Context, payload any) error {
	if c.url == "" {
		return ErrNotConfigured
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post chat message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("chat webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// CleanSubject strips markup and line breaks from a ticket subject.
func CleanSubject(s string) string {
	s = html.UnescapeString(subjectPolicy.Sanitize(s))
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
