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
	"sort"
	"strings"

	"researchengine/internal/agentcore"
	"researchengine/internal/obslog"
	"researchengine/internal/providers/llm"
	"researchengine/internal/state"
)

// Synthesiser fans in every specialist's agent_outputs into one
// sectioned markdown report. It tries LLM synthesis first and falls
// back to simple concatenation of each agent's narrative analysis if
// the LLM call fails or the response can't be used, so report
// generation never hard-fails on a single provider outage.
type Synthesiser struct {
	llmRouter llm.Completer
	log       *obslog.Logger
}

// NewSynthesiser builds the Synthesiser node.
func NewSynthesiser(router llm.Completer) agentcore.Node {
	s := &Synthesiser{llmRouter: router, log: obslog.New(NameSynthesiser)}
	return s.Run
}

func (s *Synthesiser) Run(ctx context.Context, snapshot *state.WorkflowState) (state.PartialUpdate, error) {
	if len(snapshot.AgentOutputs) == 0 {
		return agentcore.EmptyResult(NameSynthesiser, "no_data"), nil
	}

	prompt := s.buildSynthesisPrompt(snapshot)

	report, confidence := s.synthesizeViaLLM(ctx, prompt)
	if report == "" {
		report = s.simpleConcatenation(snapshot)
		confidence = 0.4
	}

	output := state.AgentOutput{
		AgentName:         NameSynthesiser,
		NarrativeAnalysis: report,
		Confidence:        confidence,
	}

	return state.PartialUpdate{AgentOutput: &output}, nil
}

func (s *Synthesiser) buildSynthesisPrompt(snapshot *state.WorkflowState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Synthesize the following specialist research on %q into a single "+
		"sectioned markdown report covering company overview, financials, market position, "+
		"competitive landscape, products, brand, and investment outlook.\n\n", snapshot.Company)
	sb.WriteString(summarizeAgentOutputs(snapshot.AgentOutputs))
	return sb.String()
}

func (s *Synthesiser) synthesizeViaLLM(ctx context.Context, prompt string) (string, float64) {
	resp, _, err := s.llmRouter.RouteRequest(ctx, llm.CompletionRequest{Prompt: prompt, MaxTokens: 4000, Temperature: 0.3})
	if err != nil {
		s.log.Warn(NameSynthesiser, "", "llm synthesis failed, falling back to concatenation", map[string]interface{}{"error": err.Error()})
		return "", 0
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", 0
	}
	return resp.Content, 0.75
}

// simpleConcatenation is the fallback path: every agent's narrative
// analysis, in a stable order, separated by section headers.
func (s *Synthesiser) simpleConcatenation(snapshot *state.WorkflowState) string {
	names := make([]string, 0, len(snapshot.AgentOutputs))
	for name := range snapshot.AgentOutputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Research Report: %s\n\n", snapshot.Company)
	for _, name := range names {
		out := snapshot.AgentOutputs[name]
		if out.NarrativeAnalysis == "" {
			continue
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", strings.Title(strings.ReplaceAll(name, "_", " ")), out.NarrativeAnalysis)
	}
	return sb.String()
}
