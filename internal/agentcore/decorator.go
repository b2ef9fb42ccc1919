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

	"researchengine/internal/obslog"
	"researchengine/internal/providers/llm"
	"researchengine/internal/state"
)

// PromptFunc is what a decorator-wrapped agent implements: given the
// company name and pre-formatted, pre-truncated search context, it
// returns the prompt to send and the parse function for the response.
type PromptFunc func(company, formattedResults string) (prompt string, parse func(p *Parser) map[string]interface{})

// AgentNode wraps a PromptFunc into a Node, injecting the logger, LLM
// router, and formatted search context the way BaseSpecialist does,
// for agents simple enough not to need the full specialist struct.
func AgentNode(name string, maxTokens int, temperature float64, maxSources, contentTruncateLength int, router llm.Completer, fn PromptFunc) Node {
	log := obslog.New(name)
	spec := &BaseSpecialist{
		Router: router,
		Log:    log,
		Config: SpecialistConfig{
			AgentName:       name,
			MaxTokens:       maxTokens,
			Temperature:     temperature,
			MaxSources:      maxSources,
			ContentTruncate: contentTruncateLength,
		},
	}

	return func(ctx context.Context, snapshot *state.WorkflowState) (state.PartialUpdate, error) {
		formatted := spec.formatSearchResults(snapshot.SearchResults)
		prompt, parse := fn(snapshot.Company, formatted)
		spec.Config.PromptTemplate = prompt
		spec.Config.Parse = parse
		return spec.Run(ctx, snapshot)
	}
}
