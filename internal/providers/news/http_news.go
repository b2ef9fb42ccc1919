// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package news implements the news-lookup capability tier. Results
// are cached in-process for 30 minutes per query, since news queries
// for the same company recur heavily across a research run's agents.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"researchengine/internal/obslog"
	"researchengine/internal/perrors"
	"researchengine/internal/providers/base"
)

// DefaultCacheTTL is the news-result cache lifetime (spec: 30 minutes).
const DefaultCacheTTL = 30 * time.Minute

type cacheEntry struct {
	response *base.Response
	expires  time.Time
}

// Provider queries a news-search HTTP API and caches responses by
// query string for DefaultCacheTTL.
type Provider struct {
	name    string
	cfg     *base.ProviderConfig
	client  *http.Client
	breaker *perrors.CircuitBreaker
	log     *obslog.Logger

	ttl   time.Duration
	mu    sync.Mutex
	cache map[string]cacheEntry
}

var _ base.Provider = (*Provider)(nil)

// New creates a news provider with the default cache TTL.
func New(log *obslog.Logger) *Provider {
	if log == nil {
		log = obslog.New("news")
	}
	return &Provider{log: log, ttl: DefaultCacheTTL, cache: make(map[string]cacheEntry)}
}

func (p *Provider) Connect(ctx context.Context, config *base.ProviderConfig) error {
	if config == nil || config.BaseURL == "" {
		return base.NewProviderError("news", "connect", "base_url is required", false, nil)
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return base.NewProviderError("news", "connect", "invalid base_url", false, err)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	p.name = config.Name
	p.cfg = config
	p.client = &http.Client{Timeout: timeout}
	p.breaker = perrors.NewCircuitBreaker(config.Name, 5, 30*time.Second)
	return nil
}

func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[string]cacheEntry)
	return nil
}

func (p *Provider) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	if p.breaker.State() == "open" {
		return &base.HealthStatus{Healthy: false, Timestamp: start, Error: "circuit open"}, nil
	}
	return &base.HealthStatus{Healthy: true, Latency: time.Since(start), Timestamp: start}, nil
}

func (p *Provider) Name() string               { return p.name }
func (p *Provider) Capability() base.Capability { return base.CapabilityNews }
func (p *Provider) Version() string             { return "1.0.0" }

type newsAPIResult struct {
	Articles []struct {
		URL         string    `json:"url"`
		Title       string    `json:"title"`
		Summary     string    `json:"summary"`
		Source      string    `json:"source"`
		PublishedAt time.Time `json:"published_at"`
	} `json:"articles"`
}

func (p *Provider) Fetch(ctx context.Context, req *base.Request) (*base.Response, error) {
	if p.client == nil {
		return nil, base.NewProviderError(p.name, "fetch", "provider not connected", false, nil)
	}

	if cached, ok := p.lookupCache(req.Query); ok {
		clone := *cached
		clone.Cached = true
		return &clone, nil
	}

	start := time.Now()
	reqURL := fmt.Sprintf("%s?q=%s", p.cfg.BaseURL, url.QueryEscape(req.Query))
	if err := base.ValidateURL(reqURL, base.DefaultURLValidationOptions()); err != nil {
		return nil, base.NewProviderError(p.name, "fetch", "url failed ssrf validation", false, err)
	}

	var out newsAPIResult
	err := p.breaker.Execute(ctx, func() error {
		return perrors.RetryVoid(ctx, perrors.DefaultRetryConfig(), func() error {
			return p.doRequest(ctx, reqURL, &out)
		})
	})
	if err != nil {
		p.log.ErrorWithCode(p.name, "", "news fetch failed", 0, err, nil)
		return nil, base.NewProviderError(p.name, "fetch", "request failed", perrors.IsRetryable(err), err)
	}

	items := make([]base.ResultItem, 0, len(out.Articles))
	for _, a := range out.Articles {
		items = append(items, base.ResultItem{
			URL:         a.URL,
			Title:       a.Title,
			Snippet:     a.Summary,
			Source:      a.Source,
			PublishedAt: a.PublishedAt,
		})
		if req.MaxResults > 0 && len(items) >= req.MaxResults {
			break
		}
	}

	resp := &base.Response{Items: items, Provider: p.name, Duration: time.Since(start)}
	p.storeCache(req.Query, resp)
	return resp, nil
}

func (p *Provider) lookupCache(query string) (*base.Response, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.cache[query]
	if !ok || time.Now().After(entry.expires) {
		delete(p.cache, query)
		return nil, false
	}
	return entry.response, true
}

func (p *Provider) storeCache(query string, resp *base.Response) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache[query] = cacheEntry{response: resp, expires: time.Now().Add(p.ttl)}
}

func (p *Provider) doRequest(ctx context.Context, reqURL string, out *newsAPIResult) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &perrors.NonRetryableError{Err: fmt.Errorf("build request: %w", err)}
	}
	if key, ok := p.cfg.Credentials["api_key"]; ok {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return &perrors.RetryableError{Err: fmt.Errorf("transport error: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &perrors.RetryableError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return &perrors.NonRetryableError{Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
