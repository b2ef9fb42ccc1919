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

// Package agents implements the specialist agent roster of spec.md
// §4.4: Researcher, Analyst, Financial, Market, Competitor Scout,
// Brand Auditor, Social Media, Sales Intelligence, Investment
// Analyst, Product, Multilingual Search Generator, Logic Critic, and
// Synthesiser. Most are plain base-specialist nodes differing only in
// prompt template and parse function; Financial, Competitor Scout,
// and Market are custom-class agents that pre-fetch domain-API data
// before the LLM call (see enhanced.go).
package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"researchengine/internal/agentcore"
	"researchengine/internal/providers/llm"
	"researchengine/internal/state"
)

// summarizeAgentOutputs renders prior agent_outputs as a text block
// for agents whose input is synthesised data rather than raw search
// results (Investment Analyst, Logic Critic, Synthesiser).
func summarizeAgentOutputs(outputs map[string]state.AgentOutput) string {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		out := outputs[name]
		fmt.Fprintf(&sb, "## %s\n%s\n\n", name, out.NarrativeAnalysis)
	}
	return sb.String()
}

// Names of every specialist in the roster, used by the workflow
// engine to build its agent_outputs fan-out/fan-in groups.
const (
	NameResearcher       = "researcher"
	NameAnalyst          = "analyst"
	NameFinancial        = "financial"
	NameMarket           = "market"
	NameCompetitorScout  = "competitor_scout"
	NameBrandAuditor     = "brand_auditor"
	NameSocialMedia      = "social_media"
	NameSalesIntel       = "sales_intelligence"
	NameInvestmentAnalyst = "investment_analyst"
	NameProduct          = "product"
	NameMultilingual     = "multilingual_search_generator"
	NameLogicCritic      = "logic_critic"
	NameSynthesiser      = "synthesiser"
)

// NewAnalyst summarizes search results into a company overview with
// key metrics and competitor mentions.
func NewAnalyst(router llm.Completer) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameAnalyst,
		MaxTokens:       1500,
		Temperature:     0.2,
		MaxSources:      8,
		ContentTruncate: 600,
		PromptTemplate: "Summarize {{company_name}} from the sources below. Produce sections " +
			"'Company Overview', 'Key Metrics', and 'Competitors'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"company_overview": p.ExtractSection("Company Overview", 2000),
				"key_metrics":       p.ExtractListItems("Key Metrics", 10, 3),
				"competitors":       p.ExtractKeywordList("Competitors", 0),
			}
		},
	}, router, nil)
	return spec.Run
}

// NewBrandAuditor assesses brand strength, sentiment, and issues.
func NewBrandAuditor(router llm.Completer) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameBrandAuditor,
		MaxTokens:       1200,
		Temperature:     0.3,
		MaxSources:      8,
		ContentTruncate: 500,
		PromptTemplate: "Audit the brand of {{company_name}}. Produce 'Brand Strength score', " +
			"'Sentiment', and 'Issues'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"strength":  p.ExtractScore("Brand Strength", 50),
				"sentiment": p.ExtractSection("Sentiment", 400),
				"issues":    p.ExtractListItems("Issues", 10, 3),
			}
		},
	}, router, nil)
	return spec.Run
}

// NewSocialMedia profiles digital presence across platforms.
func NewSocialMedia(router llm.Completer) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameSocialMedia,
		MaxTokens:       1200,
		Temperature:     0.3,
		MaxSources:      8,
		ContentTruncate: 500,
		PromptTemplate: "Profile {{company_name}}'s digital presence. Produce 'Platforms', " +
			"'Engagement Level score', and 'Content Strategy'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"platforms":         p.ExtractKeywordList("Platforms", 0),
				"engagement_level":  p.ExtractScore("Engagement Level", 40),
				"content_strategy":  p.ExtractSection("Content Strategy", 600),
			}
		},
	}, router, nil)
	return spec.Run
}

// NewSalesIntelligence infers ICP, pain points, and buying stage.
func NewSalesIntelligence(router llm.Completer) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameSalesIntel,
		MaxTokens:       1200,
		Temperature:     0.3,
		MaxSources:      8,
		ContentTruncate: 500,
		PromptTemplate: "Build a go-to-market profile for {{company_name}}. Produce 'ICP', " +
			"'Pain Points', and 'Buying Stage'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"icp":          p.ExtractSection("ICP", 400),
				"pain_points":  p.ExtractListItems("Pain Points", 10, 3),
				"buying_stage": p.ExtractSection("Buying Stage", 100),
			}
		},
	}, router, nil)
	return spec.Run
}

// NewProduct catalogs offerings and tech stack.
func NewProduct(router llm.Completer) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameProduct,
		MaxTokens:       1200,
		Temperature:     0.2,
		MaxSources:      8,
		ContentTruncate: 500,
		PromptTemplate: "List {{company_name}}'s product offerings and technology stack. " +
			"Produce 'Products' and 'Tech Stack'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"products":  p.ExtractListItems("Products", 15, 3),
				"tech_stack": p.ExtractKeywordList("Tech Stack", 0),
			}
		},
	}, router, nil)
	return spec.Run
}

// NewInvestmentAnalyst synthesizes all prior agent outputs (rendered
// from the snapshot's agent_outputs and passed as extraContext) into an
// investment thesis.
func NewInvestmentAnalyst(router llm.Completer) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameInvestmentAnalyst,
		MaxTokens:       1800,
		Temperature:     0.25,
		MaxSources:      6,
		ContentTruncate: 400,
		PromptTemplate: "Given the research on {{company_name}} below, produce an investment " +
			"thesis with a 'Rating' (one of SB, B, H, S, SS), 'Price Target', 'Bull Case', and " +
			"'Bear Case'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"rating":       p.ExtractSection("Rating", 10),
				"price_target": p.ExtractSection("Price Target", 100),
				"bull_case":    p.ExtractSection("Bull Case", 600),
				"bear_case":    p.ExtractSection("Bear Case", 600),
			}
		},
	}, router, nil)
	return func(ctx context.Context, snapshot *state.WorkflowState) (state.PartialUpdate, error) {
		return spec.RunWithContext(ctx, snapshot, summarizeAgentOutputs(snapshot.AgentOutputs))
	}
}

// NewLogicCritic reviews the draft report for contradictions and
// source-quality issues; its input is the synthesised report text
// rather than raw search results, supplied via extraContext.
func NewLogicCritic(router llm.Completer) agentcore.Node {
	spec := agentcore.NewBaseSpecialist(agentcore.SpecialistConfig{
		AgentName:       NameLogicCritic,
		MaxTokens:       1000,
		Temperature:     0.1,
		MaxSources:      0,
		ContentTruncate: 0,
		PromptTemplate: "Review the draft research report on {{company_name}} for internal " +
			"contradictions and weak sourcing. Produce 'Contradictions', 'Source Quality score', " +
			"and 'Confidence score'.\n\n{{formatted_results}}",
		Parse: func(p *agentcore.Parser) map[string]interface{} {
			return map[string]interface{}{
				"contradictions": p.ExtractListItems("Contradictions", 20, 5),
				"source_quality": p.ExtractScore("Source Quality", 60),
				"confidence":     p.ExtractScore("Confidence", 60),
			}
		},
	}, router, nil)
	return func(ctx context.Context, snapshot *state.WorkflowState) (state.PartialUpdate, error) {
		return spec.RunWithContext(ctx, snapshot, summarizeAgentOutputs(snapshot.AgentOutputs))
	}
}
