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
	"fmt"
	"strings"

	"researchengine/internal/agentcore"
	"researchengine/internal/obslog"
	"researchengine/internal/providers/base"
	"researchengine/internal/providers/llm"
	"researchengine/internal/router"
	"researchengine/internal/state"
)

// enhancedAgent is the custom-class pattern of spec.md §4.4: pre-fetch
// domain-API data through the provider router, render it as extra
// prompt context, then delegate to a BaseSpecialist for LLM synthesis.
// The outside contract (Node) is identical to a plain specialist; only
// the internals differ.
type enhancedAgent struct {
	spec       *agentcore.BaseSpecialist
	fetcher    *router.Router
	capability base.Capability
	log        *obslog.Logger
	render     func(resp *base.Response) string
}

func (e *enhancedAgent) Run(ctx context.Context, snapshot *state.WorkflowState) (state.PartialUpdate, error) {
	extra := e.preFetch(ctx, snapshot.Company)
	return e.spec.RunWithContext(ctx, snapshot, extra)
}

// preFetch queries the provider router for domain data; a failure here
// is non-fatal, the agent simply falls through to search-results-only
// synthesis (extraContext is empty).
func (e *enhancedAgent) preFetch(ctx context.Context, company string) string {
	resp, err := e.fetcher.Fetch(ctx, e.capability, &base.Request{Query: company, MaxResults: 10})
	if err != nil {
		e.log.Warn(e.spec.Config.AgentName, "", "domain data pre-fetch failed, continuing with search results only",
			map[string]interface{}{"capability": string(e.capability), "error": err.Error()})
		return ""
	}
	return e.render(resp)
}

func renderResultItems(label string, resp *base.Response) string {
	if resp == nil || len(resp.Items) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s:\n", label)
	for _, item := range resp.Items {
		fmt.Fprintf(&sb, "- %s", item.Title)
		if item.URL != "" {
			fmt.Fprintf(&sb, " (%s)", item.URL)
		}
		if item.Snippet != "" {
			fmt.Fprintf(&sb, ": %s", item.Snippet)
		}
		for k, v := range item.Fields {
			fmt.Fprintf(&sb, " [%s=%v]", k, v)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// NewFinancial pre-fetches fundamentals and filings from the financial
// provider tier (ticker lookup, SEC filings) before synthesizing a
// financial summary.
func NewFinancial(llmRouter llm.Completer, fetcher *router.Router) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameFinancial,
		MaxTokens:       1800,
		Temperature:     0.1,
		MaxSources:      8,
		ContentTruncate: 500,
		PromptTemplate: "Using the financial data and sources below for {{company_name}}, produce " +
			"'Revenue', 'Profitability', 'Key Filings', and 'Financial Risk score'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"revenue":        p.ExtractSection("Revenue", 300),
				"profitability":  p.ExtractSection("Profitability", 300),
				"key_filings":    p.ExtractListItems("Key Filings", 10, 3),
				"financial_risk": p.ExtractScore("Financial Risk", 50),
			}
		},
	}, llmRouter, nil)

	e := &enhancedAgent{
		spec:       spec,
		fetcher:    fetcher,
		capability: base.CapabilityFinancial,
		log:        obslog.New(NameFinancial),
		render:     func(resp *base.Response) string { return renderResultItems("Financial data", resp) },
	}
	return e.Run
}

// NewCompetitorScout pre-fetches competitor and tech-stack search
// results before identifying direct competitors and positioning.
func NewCompetitorScout(llmRouter llm.Completer, fetcher *router.Router) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameCompetitorScout,
		MaxTokens:       1500,
		Temperature:     0.3,
		MaxSources:      8,
		ContentTruncate: 500,
		PromptTemplate: "Using the competitor research below for {{company_name}}, produce " +
			"'Direct Competitors', 'Competitive Positioning', and 'Market Share score'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"direct_competitors":      p.ExtractKeywordList("Direct Competitors", 0),
				"competitive_positioning": p.ExtractSection("Competitive Positioning", 600),
				"market_share":            p.ExtractScore("Market Share", 0),
			}
		},
	}, llmRouter, nil)

	e := &enhancedAgent{
		spec:       spec,
		fetcher:    fetcher,
		capability: base.CapabilitySearch,
		log:        obslog.New(NameCompetitorScout),
		render: func(resp *base.Response) string {
			return renderResultItems("Competitor and tech-stack search results", resp)
		},
	}
	return e.Run
}

// NewMarket pre-fetches recent news coverage before assessing market
// position, trends, and growth drivers.
func NewMarket(llmRouter llm.Completer, fetcher *router.Router) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameMarket,
		MaxTokens:       1500,
		Temperature:     0.3,
		MaxSources:      8,
		ContentTruncate: 500,
		PromptTemplate: "Using the market news below for {{company_name}}, produce 'Market Position', " +
			"'Trends', and 'Growth Drivers'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"market_position": p.ExtractSection("Market Position", 600),
				"trends":          p.ExtractListItems("Trends", 10, 3),
				"growth_drivers":  p.ExtractListItems("Growth Drivers", 10, 3),
			}
		},
	}, llmRouter, nil)

	e := &enhancedAgent{
		spec:       spec,
		fetcher:    fetcher,
		capability: base.CapabilityNews,
		log:        obslog.New(NameMarket),
		render:     func(resp *base.Response) string { return renderResultItems("Recent news coverage", resp) },
	}
	return e.Run
}
