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

// Package workflow builds and executes the directed state graph of
// spec.md §4.1: generate_queries → search → analyse → extract →
// quality_check, looping back to search while iterations remain and
// quality is below threshold, then fanning out to the remaining
// specialists, synthesising, and scoring the finished report.
package workflow

import (
	"researchengine/internal/quality"
	"researchengine/internal/state"
)

// Depth selects how much of the specialist roster runs.
type Depth string

const (
	DepthQuick         Depth = "quick"
	DepthStandard      Depth = "standard"
	DepthComprehensive Depth = "comprehensive"
)

// edgeDecision is should_continue_research(state)'s verdict.
type edgeDecision string

const (
	edgeFinish  edgeDecision = "finish"
	edgeIterate edgeDecision = "iterate"
)

// shouldContinueResearch implements spec.md §4.1's conditional-edge
// rule: finish if quality_score >= threshold OR iteration_count >=
// max_iterations OR the pre-gate says generation can't proceed;
// iterate otherwise, looping back to search.
func shouldContinueResearch(snapshot *state.WorkflowState, gate quality.GateResult, qualityThreshold float64, maxIterations int) edgeDecision {
	if snapshot.QualityScore >= qualityThreshold {
		return edgeFinish
	}
	if snapshot.IterationCount >= maxIterations {
		return edgeFinish
	}
	if !gate.CanGenerate {
		return edgeFinish
	}
	return edgeIterate
}

// sectionsForGate renders the agent_outputs accumulated so far into
// the named sections the quality Gate and ThresholdChecker expect.
// Sections with no contributing agent output yet are simply absent,
// which the Gate treats as "no data" rather than a hard failure
// (only company_overview and key_metrics are required).
func sectionsForGate(snapshot *state.WorkflowState) map[string]string {
	sections := make(map[string]string, 9)
	set := func(key, agent string) {
		if out, ok := snapshot.AgentOutputs[agent]; ok && out.NarrativeAnalysis != "" {
			sections[key] = out.NarrativeAnalysis
		}
	}
	set("company_overview", "analyst")
	set("key_metrics", "analyst")
	set("financial_summary", "financial")
	set("market_position", "market")
	set("competitive_landscape", "competitor_scout")
	set("products", "product")
	set("brand", "brand_auditor")
	set("investment_outlook", "investment_analyst")
	return sections
}

// sectionsForThresholdChecker maps agent_outputs onto the late-stage
// structured-data weights of spec.md §4.6 (financial/market/
// company_info/competitive/products/strategy).
func sectionsForThresholdChecker(snapshot *state.WorkflowState) map[string]string {
	sections := make(map[string]string, 6)
	get := func(agent string) string {
		return snapshot.AgentOutputs[agent].NarrativeAnalysis
	}
	sections["financial"] = get("financial")
	sections["market"] = get("market")
	sections["company_info"] = get("analyst")
	sections["competitive"] = get("competitor_scout")
	sections["products"] = get("product")
	sections["strategy"] = get("investment_analyst")
	return sections
}
