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

// Package financial implements the financial-data capability tier:
// ticker/fundamentals lookups against a quote API.
package financial

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"researchengine/internal/obslog"
	"researchengine/internal/perrors"
	"researchengine/internal/providers/base"
)

// Provider queries a financial data HTTP API for a company's ticker
// fundamentals and recent filings.
type Provider struct {
	name    string
	cfg     *base.ProviderConfig
	client  *http.Client
	breaker *perrors.CircuitBreaker
	log     *obslog.Logger
}

var _ base.Provider = (*Provider)(nil)

// New creates a financial data provider.
func New(log *obslog.Logger) *Provider {
	if log == nil {
		log = obslog.New("financial")
	}
	return &Provider{log: log}
}

func (p *Provider) Connect(ctx context.Context, config *base.ProviderConfig) error {
	if config == nil || config.BaseURL == "" {
		return base.NewProviderError("financial", "connect", "base_url is required", false, nil)
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return base.NewProviderError("financial", "connect", "invalid base_url", false, err)
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	p.name = config.Name
	p.cfg = config
	p.client = &http.Client{Timeout: timeout}
	p.breaker = perrors.NewCircuitBreaker(config.Name, 5, 30*time.Second)
	return nil
}

func (p *Provider) Disconnect(ctx context.Context) error { return nil }

func (p *Provider) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	if p.breaker.State() == "open" {
		return &base.HealthStatus{Healthy: false, Timestamp: start, Error: "circuit open"}, nil
	}
	return &base.HealthStatus{Healthy: true, Latency: time.Since(start), Timestamp: start}, nil
}

func (p *Provider) Name() string               { return p.name }
func (p *Provider) Capability() base.Capability { return base.CapabilityFinancial }
func (p *Provider) Version() string             { return "1.0.0" }

type financialAPIResult struct {
	Fundamentals map[string]interface{} `json:"fundamentals"`
	Filings      []struct {
		URL   string    `json:"url"`
		Title string    `json:"title"`
		Filed time.Time `json:"filed"`
	} `json:"filings"`
}

func (p *Provider) Fetch(ctx context.Context, req *base.Request) (*base.Response, error) {
	if p.client == nil {
		return nil, base.NewProviderError(p.name, "fetch", "provider not connected", false, nil)
	}
	start := time.Now()

	reqURL := fmt.Sprintf("%s?symbol=%s", p.cfg.BaseURL, url.QueryEscape(req.Query))
	if err := base.ValidateURL(reqURL, base.DefaultURLValidationOptions()); err != nil {
		return nil, base.NewProviderError(p.name, "fetch", "url failed ssrf validation", false, err)
	}

	var out financialAPIResult
	err := p.breaker.Execute(ctx, func() error {
		return perrors.RetryVoid(ctx, perrors.DefaultRetryConfig(), func() error {
			return p.doRequest(ctx, reqURL, &out)
		})
	})
	if err != nil {
		p.log.ErrorWithCode(p.name, "", "financial fetch failed", 0, err, nil)
		return nil, base.NewProviderError(p.name, "fetch", "request failed", perrors.IsRetryable(err), err)
	}

	items := make([]base.ResultItem, 0, 1+len(out.Filings))
	if len(out.Fundamentals) > 0 {
		items = append(items, base.ResultItem{
			Title:  "fundamentals",
			Source: p.name,
			Fields: out.Fundamentals,
		})
	}
	for _, f := range out.Filings {
		items = append(items, base.ResultItem{
			URL:         f.URL,
			Title:       f.Title,
			Source:      p.name,
			PublishedAt: f.Filed,
		})
		if req.MaxResults > 0 && len(items) >= req.MaxResults {
			break
		}
	}

	return &base.Response{Items: items, Provider: p.name, Duration: time.Since(start)}, nil
}

func (p *Provider) doRequest(ctx context.Context, reqURL string, out *financialAPIResult) error {
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
