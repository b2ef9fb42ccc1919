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

package agents

import (
	"context"
	"errors"
	"testing"

	"researchengine/internal/providers/base"
	"researchengine/internal/providers/llm"
)

// fakeLLMProvider is a minimal llm.Provider double: it returns a fixed
// completion (possibly empty), or err when err is set.
type fakeLLMProvider struct {
	name    string
	content string
	err     error
}

func (f *fakeLLMProvider) Name() string         { return f.name }
func (f *fakeLLMProvider) Type() llm.ProviderType { return llm.ProviderTypeCustom }
func (f *fakeLLMProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.content, Model: "fake-model"}, nil
}
func (f *fakeLLMProvider) HealthCheck(ctx context.Context) (*llm.HealthCheckResult, error) {
	return &llm.HealthCheckResult{Status: llm.HealthStatusHealthy}, nil
}
func (f *fakeLLMProvider) Capabilities() []llm.Capability  { return nil }
func (f *fakeLLMProvider) SupportsStreaming() bool         { return false }
func (f *fakeLLMProvider) EstimateCost(req llm.CompletionRequest) *llm.CostEstimate { return nil }

// newTestLLMRouter builds an llm.Router with a single enabled fake
// provider that returns content, or err if non-nil.
func newTestLLMRouter(t *testing.T, content string, err error) *llm.Router {
	t.Helper()
	registry := llm.NewRegistry()
	provider := &fakeLLMProvider{name: "fake", content: content, err: err}
	regErr := registry.RegisterProvider("fake", provider, &llm.ProviderConfig{Name: "fake", Type: llm.ProviderTypeCustom, Enabled: true})
	if regErr != nil {
		t.Fatalf("register fake provider: %v", regErr)
	}
	return llm.NewRouter(llm.WithRouterRegistry(registry))
}

// fakeDataProvider is a minimal base.Provider double for the domain
// data tiers (search/news/financial) used by enhanced agents.
type fakeDataProvider struct {
	name       string
	capability base.Capability
	items      []base.ResultItem
	err        error
}

func (f *fakeDataProvider) Connect(ctx context.Context, config *base.ProviderConfig) error { return nil }
func (f *fakeDataProvider) Disconnect(ctx context.Context) error                          { return nil }
func (f *fakeDataProvider) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true}, nil
}
func (f *fakeDataProvider) Fetch(ctx context.Context, req *base.Request) (*base.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &base.Response{Items: f.items, Provider: f.name}, nil
}
func (f *fakeDataProvider) Name() string               { return f.name }
func (f *fakeDataProvider) Capability() base.Capability { return f.capability }
func (f *fakeDataProvider) Version() string             { return "test" }

var errFakeFetch = errors.New("fake fetch failed")
