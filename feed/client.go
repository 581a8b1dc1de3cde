package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"sort"
	"time"

	"github.com/volteq/flexplan/auth"
	"github.com/volteq/flexplan/config"
	"github.com/volteq/flexplan/core/model"
	"github.com/volteq/flexplan/infra/logger"
)

// Client polls a market operator API for requirement and baseline forecasts.
type Client struct {
	cache  *Cache
	sink   Sink
	notify func(model.Trigger)
	log    logger.Logger
	client *http.Client
	creds  *auth.ClientCred
	apiURL string

	interval time.Duration
	now      func() time.Time

	lastBaselines map[string][]BaselinePayload
}

// NewClient creates a polling client. OAuth2 is used when the config carries
// credentials, plain requests otherwise.
func NewClient(cfg config.FeedClientConfig, cache *Cache, sink Sink, notify func(model.Trigger)) *Client {
	c := &Client{
		cache:         cache,
		sink:          sink,
		notify:        notify,
		log:           logger.New("feed-client"),
		client:        &http.Client{Timeout: 10 * time.Second},
		apiURL:        cfg.APIURL,
		interval:      cfg.PollInterval(),
		now:           time.Now,
		lastBaselines: make(map[string][]BaselinePayload),
	}
	if cfg.Auth.Enabled() {
		c.creds = auth.NewClientCred(cfg.Auth)
	}
	return c
}

// Start polls immediately, so planning has requirements before the first
// rollover, then keeps polling until context cancellation.
func (c *Client) Start(ctx context.Context) error {
	if err := c.Poll(ctx); err != nil {
		c.log.Errorf("poll error: %v", err)
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.Poll(ctx); err != nil {
				c.log.Errorf("poll error: %v", err)
			}
		}
	}
}

// Poll fetches one snapshot and applies it. Portfolios whose data did not
// change since the previous poll raise no trigger.
func (c *Client) Poll(ctx context.Context) error {
	snap, err := c.fetch(ctx)
	if err != nil {
		return err
	}
	return c.Apply(snap)
}

func (c *Client) fetch(ctx context.Context) (Snapshot, error) {
	resp, err := c.get(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if resp.StatusCode == http.StatusUnauthorized && c.creds != nil {
		// Token may have been revoked server-side: refresh once and retry.
		resp.Body.Close()
		if _, err := c.creds.ForceRefresh(ctx); err != nil {
			return Snapshot{}, fmt.Errorf("failed to refresh token: %w", err)
		}
		if resp, err = c.get(ctx); err != nil {
			return Snapshot{}, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Snapshot{}, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read response: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return snap, nil
}

func (c *Client) get(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.creds != nil {
		if err := c.creds.SetAuthHeader(ctx, req); err != nil {
			return nil, fmt.Errorf("failed to set auth header: %w", err)
		}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

// Apply converts one snapshot into domain data, updates the cache and the
// registry sink, and raises one forecast-update trigger per changed
// portfolio.
func (c *Client) Apply(snap Snapshot) error {
	reqsByPf := make(map[string][]model.Requirement)
	for _, p := range snap.Requirements {
		r, err := p.ToRequirement()
		if err != nil {
			return err
		}
		reqsByPf[p.Portfolio] = append(reqsByPf[p.Portfolio], r)
	}
	basesByPf := make(map[string][]BaselinePayload)
	for _, b := range snap.Baselines {
		if err := b.Validate(); err != nil {
			return err
		}
		basesByPf[b.Portfolio] = append(basesByPf[b.Portfolio], b)
	}

	for _, pf := range sortedKeys(reqsByPf, basesByPf) {
		changed := c.cache.SetAll(pf, reqsByPf[pf])
		if bases := basesByPf[pf]; len(bases) > 0 && !reflect.DeepEqual(bases, c.lastBaselines[pf]) {
			for _, b := range bases {
				if err := c.sink.SetBaseline(b.Portfolio, b.AssetID, b.Series()); err != nil {
					c.log.Errorf("baseline %s/%s: %v", b.Portfolio, b.AssetID, err)
					continue
				}
			}
			c.lastBaselines[pf] = bases
			changed = true
		}
		if !changed {
			continue
		}
		c.log.Infof("forecast update portfolio=%s products=%d baselines=%d", pf, len(reqsByPf[pf]), len(basesByPf[pf]))
		if c.notify != nil {
			c.notify(model.Trigger{
				Kind:      model.TriggerForecastUpdate,
				Portfolio: pf,
				At:        c.now(),
				Reason:    "feed snapshot changed",
			})
		}
	}
	return nil
}

func sortedKeys(reqs map[string][]model.Requirement, bases map[string][]BaselinePayload) []string {
	seen := make(map[string]bool, len(reqs))
	for pf := range reqs {
		seen[pf] = true
	}
	for pf := range bases {
		seen[pf] = true
	}
	out := make([]string, 0, len(seen))
	for pf := range seen {
		out = append(out, pf)
	}
	sort.Strings(out)
	return out
}
