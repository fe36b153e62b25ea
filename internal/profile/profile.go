// Package profile loads extended requester profiles (account age, karma)
// from the platform's user API.  Lookups can be slow and rate-limited, so
// the allocation engine only asks for a profile after its cheap
// existing-claim short-circuit, and a Redis cache decorator keeps repeat
// requesters from hitting the API at all.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Profile holds the requester attributes the eligibility evaluator needs.
type Profile struct {
	Username     string    `json:"username"`
	Created      time.Time `json:"created"`
	CommentKarma int       `json:"comment_karma"`
	LinkKarma    int       `json:"link_karma"`
}

// Karma returns the combined karma used against event thresholds.
func (p Profile) Karma() int { return p.CommentKarma + p.LinkKarma }

// AgeDays returns the account age in whole days at the given time.
func (p Profile) AgeDays(now time.Time) int {
	if p.Created.IsZero() || p.Created.After(now) {
		return 0
	}
	return int(now.Sub(p.Created).Hours() / 24)
}

// Loader fetches a profile for a username.
type Loader interface {
	Fetch(ctx context.Context, username string) (Profile, error)
}

// Client fetches profiles over HTTP from the platform user API.  The
// endpoint is GET {base}/user/{username}/about and returns JSON with the
// account creation epoch and karma counters.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a Client for the given API base URL.
func NewClient(base string) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

type aboutPayload struct {
	Name         string  `json:"name"`
	CreatedUTC   float64 `json:"created_utc"`
	CommentKarma int     `json:"comment_karma"`
	LinkKarma    int     `json:"link_karma"`
}

// Fetch loads the profile for username from the user API.
func (c *Client) Fetch(ctx context.Context, username string) (Profile, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	url := fmt.Sprintf("%s/user/%s/about", c.base, username)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Profile{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("profile fetch %s: %w", username, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("profile fetch %s: unexpected status %d", username, resp.StatusCode)
	}
	var payload aboutPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Profile{}, fmt.Errorf("profile fetch %s: decode: %w", username, err)
	}
	return Profile{
		Username:     username,
		Created:      time.Unix(int64(payload.CreatedUTC), 0).UTC(),
		CommentKarma: payload.CommentKarma,
		LinkKarma:    payload.LinkKarma,
	}, nil
}
