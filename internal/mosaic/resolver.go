package mosaic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ResolvedChannel is a channel successfully mapped to a playable source.
type ResolvedChannel struct {
	// URL is the current stream location for the channel.
	URL string `json:"streamUrl"`
	// Name is the channel's display name, used as an audio track title.
	Name string `json:"name"`
	// AuthHeader, when non-empty, is the HTTP header line the upstream
	// source requires to be fetched (e.g. "Authorization: Bearer ...").
	AuthHeader string `json:"authHeader,omitempty"`
}

// Resolver maps a channel identifier to its current stream location and
// display name. Resolution is owned by the host; the orchestrator consumes
// it and tolerates per-channel failures.
type Resolver interface {
	Resolve(ctx context.Context, id ChannelID) (ResolvedChannel, error)
}

// HTTPResolver resolves channels against the host's catalog API:
// GET {base}/channels/{id} with a bearer token, returning a JSON
// ResolvedChannel.
type HTTPResolver struct {
	base   string
	token  string
	client *http.Client
}

// NewHTTPResolver returns a Resolver backed by the host catalog at base.
func NewHTTPResolver(base, token string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPResolver{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

// Resolve implements Resolver.
func (r *HTTPResolver) Resolve(ctx context.Context, id ChannelID) (ResolvedChannel, error) {
	endpoint := fmt.Sprintf("%s/channels/%s", r.base, url.PathEscape(string(id)))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ResolvedChannel{}, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return ResolvedChannel{}, fmt.Errorf("resolve channel %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ResolvedChannel{}, fmt.Errorf("resolve channel %s: status %d", id, resp.StatusCode)
	}

	var rc ResolvedChannel
	if err := json.NewDecoder(resp.Body).Decode(&rc); err != nil {
		return ResolvedChannel{}, fmt.Errorf("resolve channel %s: decode: %w", id, err)
	}
	if rc.URL == "" {
		return ResolvedChannel{}, fmt.Errorf("resolve channel %s: no stream url", id)
	}
	return rc, nil
}
