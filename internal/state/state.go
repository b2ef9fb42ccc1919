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

// Package state defines the research run's typed workflow state and
// the reducers that merge concurrent partial updates from parallel
// agent fan-out. Every field here carries exactly one reducer, chosen
// so that updates from agents running in parallel commute.
package state

import (
	"time"

	"github.com/google/uuid"
)

// SearchResult is a single web search hit. Identity is URL after
// normalization; deduplication is by URL.
type SearchResult struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	Domain      string    `json:"domain"`
	Provider    string    `json:"provider"`
}

// QualityTier classifies a Source's reliability.
type QualityTier string

const (
	QualityTierPrimary QualityTier = "primary"
	QualityTierHigh    QualityTier = "high"
	QualityTierMedium  QualityTier = "medium"
	QualityTierLow     QualityTier = "low"
	QualityTierUnknown QualityTier = "unknown"
)

// Source is a SearchResult that contributed to an extracted claim.
type Source struct {
	SearchResult
	QualityTier QualityTier `json:"quality_tier"`
	RetrievedAt time.Time   `json:"retrieved_at"`
}

// TokenUsage tracks input/output token counts, summed componentwise
// across agents.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// AgentOutput is what an agent writes into AgentOutputs[agent_name].
// agent_name is unique per run; re-execution replaces the entry.
type AgentOutput struct {
	AgentName          string                 `json:"agent_name"`
	StructuredPayload  map[string]interface{} `json:"structured_payload,omitempty"`
	NarrativeAnalysis  string                 `json:"narrative_analysis,omitempty"`
	Cost               float64                `json:"cost"`
	Tokens             TokenUsage             `json:"tokens"`
	Confidence         float64                `json:"confidence"`
	Sources            []string               `json:"sources,omitempty"`
}

// WorkflowState is the single mapping from well-known keys to typed
// values carried through every node of a research run. Fields map 1:1
// to the reducer table: company_name (last-wins, immutable post-init),
// search_results/sources (append+dedupe by URL), agent_outputs
// (key-merge), total_cost (numeric sum), total_tokens (componentwise
// sum), iteration_count (max), quality_score (last-wins), errors
// (append), gaps_detected (union).
type WorkflowState struct {
	RunID   string `json:"run_id"`
	Company string `json:"company_name"`

	SearchResults []SearchResult `json:"search_results"`
	Sources       []Source       `json:"sources"`

	AgentOutputs map[string]AgentOutput `json:"agent_outputs"`

	TotalCost   float64    `json:"total_cost"`
	TotalTokens TokenUsage `json:"total_tokens"`

	IterationCount int     `json:"iteration_count"`
	QualityScore   float64 `json:"quality_score"`

	Errors        []string `json:"errors"`
	GapsDetected  []string `json:"gaps_detected"`
}

// New creates an initial WorkflowState for a company. company_name is
// immutable thereafter; the orchestrator enforces this by never
// applying a PartialUpdate.Company to an existing state.
func New(company string) *WorkflowState {
	return &WorkflowState{
		RunID:        uuid.NewString(),
		Company:      company,
		AgentOutputs: make(map[string]AgentOutput),
	}
}

// PartialUpdate is what an agent or control node returns from a state
// snapshot: a sparse set of fields to merge via their reducers. Zero
// values mean "nothing to merge" for that field, except where noted.
type PartialUpdate struct {
	SearchResults []SearchResult
	Sources       []Source

	AgentOutput *AgentOutput

	CostDelta   float64
	TokensDelta TokenUsage

	// IterationCount, when non-zero, is merged via max — it is not a
	// delta. Agents normally leave this zero; only the orchestrator's
	// loop-back control node sets it.
	IterationCount int

	// QualitySet, when true, means QualityScore should replace the
	// current value (last-wins). Agents that don't compute a quality
	// score leave this false.
	QualitySet   bool
	QualityScore float64

	Errors       []string
	GapsDetected []string
}
