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

	"researchengine/internal/agentcore"
	"researchengine/internal/obslog"
	"researchengine/internal/providers/llm"
	"researchengine/internal/state"
)

// nine languages the retry-wiring multilingual expansion strategy
// generates queries in, per spec.md §4.4's "9-language queries".
var multilingualTargets = []string{
	"English", "Spanish", "Mandarin Chinese", "German", "French",
	"Japanese", "Portuguese", "Korean", "Arabic",
}

// NewMultilingualSearchGenerator expands the query set into
// parent-company and regional-source variants across nine languages,
// used by the orchestrator's retry wiring when the pre-gate recommends
// the MULTILINGUAL or PARENT_COMPANY strategy.
func NewMultilingualSearchGenerator(llmRouter llm.Completer) agentcore.Node {
	log := obslog.New(NameMultilingual)
	return func(ctx context.Context, snapshot *state.WorkflowState) (state.PartialUpdate, error) {
		prompt := fmt.Sprintf(
			"Generate search queries for researching the company %q, covering: "+
				"(1) one query per language for %v, (2) one query assuming it may be a "+
				"subsidiary and searching for its parent company, (3) one query biased "+
				"toward regional/local news sources. Reply as a newline-separated list.",
			snapshot.Company, multilingualTargets)

		resp, _, err := llmRouter.RouteRequest(ctx, llm.CompletionRequest{Prompt: prompt, MaxTokens: 500, Temperature: 0.5})
		if err != nil {
			log.ErrorWithCode(NameMultilingual, "", "query expansion failed", 0, err, nil)
			return agentcore.EmptyResult(NameMultilingual, fmt.Sprintf("llm unavailable: %v", err)), nil
		}

		output := state.AgentOutput{
			AgentName: NameMultilingual,
			StructuredPayload: map[string]interface{}{
				"expanded_queries": resp.Content,
				"languages":        multilingualTargets,
			},
			Confidence: 0.6,
			Tokens: state.TokenUsage{
				Input:  resp.Usage.PromptTokens,
				Output: resp.Usage.CompletionTokens,
			},
		}

		return state.PartialUpdate{
			AgentOutput: &output,
			TokensDelta: output.Tokens,
		}, nil
	}
}
