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

package agentcore

import (
	"context"
	"fmt"
	"strings"

	"researchengine/internal/obslog"
	"researchengine/internal/providers/llm"
	"researchengine/internal/state"
)

// SpecialistConfig parameterizes a BaseSpecialist: prompt template,
// LLM call shape, and the truncation rules applied when formatting
// search results into the prompt context.
type SpecialistConfig struct {
	AgentName         string
	PromptTemplate    string // "{{company_name}}" and "{{formatted_results}}" placeholders
	MaxTokens         int
	Temperature       float64
	MaxSources        int // top-N sources included in the prompt
	ContentTruncate   int // per-source content cap, bytes
	// Parse is called on the raw LLM response to build the agent's
	// domain-specific fields; it receives a Parser already bound to
	// the response text.
	Parse func(p *Parser) map[string]interface{}
}

// BaseSpecialist implements the base-specialist node pattern used by
// most agents: format search results, bind the prompt, invoke the LLM
// through the router, parse the response with a Parser, assemble an
// AgentOutput, and track cost/tokens. Enhanced agents (financial,
// competitor scout, market) hold a BaseSpecialist and run a domain-API
// pre-fetch before RunWithContext, passing its data as extraContext.
type BaseSpecialist struct {
	Config SpecialistConfig
	Router llm.Completer
	Log    *obslog.Logger
}

// NewBaseSpecialist builds a specialist node for cfg. router may be a bare
// *llm.Router or a cost.CostTrackingRouter decorator — anything satisfying
// llm.Completer.
func NewBaseSpecialist(cfg SpecialistConfig, router llm.Completer, log *obslog.Logger) *BaseSpecialist {
	if log == nil {
		log = obslog.New(cfg.AgentName)
	}
	return &BaseSpecialist{Config: cfg, Router: router, Log: log}
}

// Run implements Node: read-only snapshot in, partial update out.
// Never returns a non-nil error for runtime failures — those are
// folded into the returned update per the failure-semantics contract.
func (b *BaseSpecialist) Run(ctx context.Context, snapshot *state.WorkflowState) (state.PartialUpdate, error) {
	return b.RunWithContext(ctx, snapshot, "")
}

// RunWithContext is Run plus an extraContext block (pre-fetched
// domain-API data) spliced into the prompt ahead of the formatted
// search results, used by the custom-class enhanced agents.
func (b *BaseSpecialist) RunWithContext(ctx context.Context, snapshot *state.WorkflowState, extraContext string) (state.PartialUpdate, error) {
	name := b.Config.AgentName

	if len(snapshot.SearchResults) == 0 && extraContext == "" {
		b.Log.Info(name, "", "no_data", map[string]interface{}{"reason": "empty search_results"})
		return EmptyResult(name, "no_data"), nil
	}

	formatted := b.formatSearchResults(snapshot.SearchResults)
	prompt := b.bindPrompt(snapshot.Company, formatted, extraContext)

	resp, routeInfo, err := b.Router.RouteRequest(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   b.Config.MaxTokens,
		Temperature: b.Config.Temperature,
	})
	if err != nil {
		b.Log.ErrorWithCode(name, "", "llm call failed after fallback chain", 0, err, nil)
		return EmptyResult(name, fmt.Sprintf("llm unavailable: %v", err)), nil
	}

	parser := NewParser(resp.Content)
	fields := map[string]interface{}{}
	if b.Config.Parse != nil {
		fields = b.Config.Parse(parser)
	}

	sourceURLs := make([]string, 0, len(snapshot.SearchResults))
	for _, r := range snapshot.SearchResults {
		sourceURLs = append(sourceURLs, r.URL)
	}

	output := state.AgentOutput{
		AgentName:         name,
		StructuredPayload: fields,
		NarrativeAnalysis: resp.Content,
		Cost:              estimateCost(routeInfo, resp),
		Tokens: state.TokenUsage{
			Input:  resp.Usage.PromptTokens,
			Output: resp.Usage.CompletionTokens,
		},
		Confidence: parser.ExtractScore("confidence", 0.7) / 100,
		Sources:    sourceURLs,
	}

	return state.PartialUpdate{
		AgentOutput: &output,
		CostDelta:   output.Cost,
		TokensDelta: output.Tokens,
	}, nil
}

func estimateCost(info *llm.RouteInfo, resp *llm.CompletionResponse) float64 {
	if info == nil || resp == nil {
		return 0
	}
	// 1e-6 USD per token is a conservative placeholder; the cost
	// ledger (internal/cost) recomputes the authoritative figure from
	// provider+model pricing once the route is recorded.
	return float64(resp.Usage.TotalTokens) * 1e-6
}

func (b *BaseSpecialist) formatSearchResults(results []state.SearchResult) string {
	max := b.Config.MaxSources
	if max <= 0 || max > len(results) {
		max = len(results)
	}
	truncateAt := b.Config.ContentTruncate
	if truncateAt <= 0 {
		truncateAt = 500
	}

	var sb strings.Builder
	for i := 0; i < max; i++ {
		r := results[i]
		content := r.Content
		if len(content) > truncateAt {
			content = content[:truncateAt]
		}
		fmt.Fprintf(&sb, "[%d] %s (%s)\n%s\n\n", i+1, r.Title, r.URL, content)
	}
	return sb.String()
}

func (b *BaseSpecialist) bindPrompt(company, formattedResults, extraContext string) string {
	tmpl := b.Config.PromptTemplate
	tmpl = strings.ReplaceAll(tmpl, "{{company_name}}", company)
	tmpl = strings.ReplaceAll(tmpl, "{{formatted_results}}", formattedResults)
	if extraContext != "" {
		tmpl = extraContext + "\n\n" + tmpl
	}
	return tmpl
}
