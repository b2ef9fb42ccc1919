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

// Package base defines the capability-provider contract shared by the
// search, news, and financial provider tiers. It generalizes the
// connector lifecycle pattern (Connect/HealthCheck/Query) to external
// read-only data APIs that the provider router selects between.
package base

import (
	"context"
	"time"
)

// Capability identifies what kind of data a provider tier serves.
type Capability string

const (
	CapabilitySearch    Capability = "search"
	CapabilityNews      Capability = "news"
	CapabilityFinancial Capability = "financial"
)

// Provider is implemented by every search/news/financial backend. It
// mirrors the Connector lifecycle (connect, health-check, query) but
// narrows Query to a single typed request/response pair instead of the
// generic statement+parameters shape, since these are read-only HTTP
// APIs rather than databases.
type Provider interface {
	Connect(ctx context.Context, config *ProviderConfig) error
	Disconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)

	Fetch(ctx context.Context, req *Request) (*Response, error)

	Name() string
	Capability() Capability
	Version() string
}

// ProviderConfig holds connection settings for one provider instance.
type ProviderConfig struct {
	Name        string            `json:"name"`
	BaseURL     string            `json:"base_url"`
	Credentials map[string]string `json:"credentials"`
	Options     map[string]interface{} `json:"options"`
	Timeout     time.Duration     `json:"timeout"`
	MaxRetries  int               `json:"max_retries"`

	// QuotaPerDay bounds the number of Fetch calls this provider
	// instance may serve in a rolling 24h window; 0 means unbounded.
	QuotaPerDay int `json:"quota_per_day"`
	// CostPerCall is used by the cost ledger to attribute spend.
	CostPerCall float64 `json:"cost_per_call"`
}

// Request is a single capability-agnostic fetch request. Providers
// interpret Query according to their Capability (a search string, a
// ticker symbol, a company name for news lookup).
type Request struct {
	Query      string                 `json:"query"`
	Parameters map[string]interface{} `json:"parameters"`
	MaxResults int                    `json:"max_results"`
	Timeout    time.Duration          `json:"timeout"`
}

// Response carries the provider's results plus the metadata the
// router and cost ledger need: which provider served it, whether it
// came from cache, and how long the call took.
type Response struct {
	Items     []ResultItem           `json:"items"`
	Provider  string                 `json:"provider"`
	Cached    bool                   `json:"cached"`
	Duration  time.Duration          `json:"duration"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// ResultItem is one unit of provider output: a search hit, a news
// article, or a financial data point, normalized to a common shape so
// the quality pipeline can treat them uniformly regardless of source.
type ResultItem struct {
	URL         string                 `json:"url,omitempty"`
	Title       string                 `json:"title"`
	Snippet     string                 `json:"snippet,omitempty"`
	Source      string                 `json:"source,omitempty"`
	PublishedAt time.Time              `json:"published_at,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// HealthStatus mirrors connectors/base.HealthStatus.
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error"`
}

// ProviderError represents a failure from a specific provider call,
// distinguishing retryable transport failures from permanent ones so
// the router's fallback policy can act on it.
type ProviderError struct {
	ProviderName string
	Operation    string
	Message      string
	Retryable    bool
	Cause        error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.ProviderName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ProviderName + "." + e.Operation + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new ProviderError.
func NewProviderError(providerName, operation, message string, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		ProviderName: providerName,
		Operation:    operation,
		Message:      message,
		Retryable:    retryable,
		Cause:        cause,
	}
}
