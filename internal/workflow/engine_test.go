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

package workflow

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"researchengine/internal/config"
	"researchengine/internal/obslog"
	"researchengine/internal/providers/base"
	"researchengine/internal/providers/llm"
	"researchengine/internal/router"
)

// fakeLLMProvider returns the same fixed completion for every call.
type fakeLLMProvider struct{ content string }

func (f *fakeLLMProvider) Name() string           { return "fake" }
func (f *fakeLLMProvider) Type() llm.ProviderType { return llm.ProviderTypeCustom }
func (f *fakeLLMProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: f.content, Model: "fake-model"}, nil
}
func (f *fakeLLMProvider) HealthCheck(ctx context.Context) (*llm.HealthCheckResult, error) {
	return &llm.HealthCheckResult{Status: llm.HealthStatusHealthy}, nil
}
func (f *fakeLLMProvider) Capabilities() []llm.Capability  { return nil }
func (f *fakeLLMProvider) SupportsStreaming() bool         { return false }
func (f *fakeLLMProvider) EstimateCost(req llm.CompletionRequest) *llm.CostEstimate { return nil }

func newFakeLLMRouter(t *testing.T, content string) *llm.Router {
	t.Helper()
	registry := llm.NewRegistry()
	require.NoError(t, registry.RegisterProvider("fake", &fakeLLMProvider{content: content}, &llm.ProviderConfig{
		Name: "fake", Type: llm.ProviderTypeCustom, Enabled: true,
	}))
	return llm.NewRouter(llm.WithRouterRegistry(registry))
}

// fakeSearchProvider answers every search fetch with a handful of
// results so the researcher and threshold checker see real data.
type fakeSearchProvider struct{ n int }

func (f *fakeSearchProvider) Connect(ctx context.Context, cfg *base.ProviderConfig) error { return nil }
func (f *fakeSearchProvider) Disconnect(ctx context.Context) error                        { return nil }
func (f *fakeSearchProvider) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	return &base.HealthStatus{Healthy: true}, nil
}
func (f *fakeSearchProvider) Fetch(ctx context.Context, req *base.Request) (*base.Response, error) {
	items := make([]base.ResultItem, 0, f.n)
	for i := 0; i < f.n; i++ {
		items = append(items, base.ResultItem{
			URL:     fmt.Sprintf("https://example%d.com/%s", i, req.Query),
			Title:   "result " + req.Query,
			Snippet: "substantial content about " + req.Query + " with real detail to satisfy section minimums and then some more words to pad the length out nicely for testing purposes across the board.",
			Source:  "fake-search",
		})
	}
	return &base.Response{Items: items, Provider: "fake-search"}, nil
}
func (f *fakeSearchProvider) Name() string               { return "fake-search" }
func (f *fakeSearchProvider) Capability() base.Capability { return base.CapabilitySearch }
func (f *fakeSearchProvider) Version() string             { return "test" }

func newFakeFetcher() *router.Router {
	r := router.New(obslog.New("test"))
	r.Register(base.CapabilitySearch, &fakeSearchProvider{n: 4}, 0, 0)
	r.Register(base.CapabilityFinancial, &fakeSearchProvider{n: 2}, 0, 0)
	r.Register(base.CapabilityNews, &fakeSearchProvider{n: 2}, 0, 0)
	return r
}

func TestEngine_Run_QuickDepthProducesReport(t *testing.T) {
	content := "## Company Overview\n\nAcme Corp is a widget maker with substantial market presence and a long operating history worth describing in detail.\n\n## Financial Summary\n\nRevenue was $120M in FY2023, up from $100M in FY2022, a 20% increase driven by strong demand.\n\n## Market Position\n\nAcme holds a leading position in its niche with durable competitive advantages.\n"
	cfg := config.Default()
	cfg.MaxIterations = 1
	eng := New(cfg, newFakeLLMRouter(t, content), newFakeFetcher())

	result, err := eng.Run(context.Background(), "Acme Corp", DepthQuick)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Report)
	require.Equal(t, "Acme Corp", result.State.Company)
	require.GreaterOrEqual(t, result.State.IterationCount, 1)
}

func TestEngine_Run_StopsAtMaxIterations(t *testing.T) {
	cfg := config.Default()
	cfg.MaxIterations = 1
	cfg.QualityThreshold = 100 // unreachable, forcing the iteration cap to be the stop condition
	eng := New(cfg, newFakeLLMRouter(t, "thin content"), newFakeFetcher())

	result, err := eng.Run(context.Background(), "Thin Co", DepthQuick)
	require.NoError(t, err)
	require.Equal(t, 1, result.State.IterationCount)
}

func TestEngine_RunBatch_CapsConcurrencyAndCollectsAllResults(t *testing.T) {
	cfg := config.Default()
	cfg.MaxIterations = 1
	eng := New(cfg, newFakeLLMRouter(t, "## Company Overview\n\nShort."), newFakeFetcher())

	companies := []string{"A Inc", "B Inc", "C Inc"}
	results := eng.RunBatch(context.Background(), companies, DepthQuick, 2)
	require.Len(t, results, 3)
	for _, c := range companies {
		require.Contains(t, results, c)
		require.NotNil(t, results[c])
	}
}
