// Package ticketing fetches ticket snapshots from the ticketing provider's
// REST API.
package ticketing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3748/sla-notifier/internal/sla"
)

const maxPages = 100

// Client lists tickets updated since a given instant.
type Client struct {
	base   string
	token  string
	http   *http.Client
	paging int
}

// New returns a Client for the API rooted at baseURL. httpClient may be nil.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), token: token, http: httpClient, paging: 100}
}

type page struct {
	Tickets    []sla.TicketSnapshot `json:"tickets"`
	NextCursor string               `json:"nextCursor"`
}

// ListUpdated returns every ticket modified at or after since, following the
// provider's cursor until it is exhausted.
func (c *Client) ListUpdated(ctx context.Context, since time.Time) ([]sla.TicketSnapshot, error) {
	var out []sla.TicketSnapshot
	cursor := ""
	for i := 0; i < maxPages; i++ {
		p, err := c.fetch(ctx, since, cursor)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Tickets...)
		if p.NextCursor == "" {
			return out, nil
		}
		cursor = p.NextCursor
	}
	return out, fmt.Errorf("ticket listing exceeded %d pages", maxPages)
}

// Get returns one ticket. An unknown ticket yields an error wrapping
// sla.ErrNotFound.
func (c *Client) Get(ctx context.Context, id string) (sla.TicketSnapshot, error) {
	req, err := c.newRequest(ctx, "/tickets/"+url.PathEscape(id))
	if err != nil {
		return sla.TicketSnapshot{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return sla.TicketSnapshot{}, fmt.Errorf("get ticket %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return sla.TicketSnapshot{}, fmt.Errorf("ticket %s: %w", id, sla.ErrNotFound)
	}
	if err := checkStatus(resp); err != nil {
		return sla.TicketSnapshot{}, fmt.Errorf("get ticket %s: %w", id, err)
	}
	var s sla.TicketSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return sla.TicketSnapshot{}, fmt.Errorf("decode ticket %s: %w", id, err)
	}
	return s, nil
}

func (c *Client) newRequest(ctx context.Context, path string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func (c *Client) fetch(ctx context.Context, since time.Time, cursor string) (page, error) {
	q := url.Values{}
	q.Set("updated_since", since.UTC().Format(time.RFC3339))
	q.Set("limit", fmt.Sprint(c.paging))
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	req, err := c.newRequest(ctx, "/tickets?"+q.Encode())
	if err != nil {
		return page{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return page{}, fmt.Errorf("list tickets: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return page{}, fmt.Errorf("list tickets: %w", err)
	}
	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return page{}, fmt.Errorf("decode tickets: %w", err)
	}
	return p, nil
}
