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

// Package agentcore defines the single node contract every agent
// honours — receive a read-only state snapshot, return a partial
// update — and the three implementation patterns built on top of it:
// a base-specialist type with a parsing mixin, a decorator-wrapped
// node constructor, and the outside contract that custom,
// externally-enhanced agents also satisfy.
package agentcore

import (
	"context"

	"researchengine/internal/state"
)

// Node is the uniform shape every agent and control function
// implements: given a read-only snapshot, produce a partial update.
// An agent MUST NOT return an error that aborts the workflow — runtime
// failures are folded into the returned update's Errors field by the
// node itself (see BaseSpecialist.Run); Node's error return is
// reserved for programming errors (nil snapshot, unconfigured node)
// that the workflow engine treats as fatal for that single node only.
type Node func(ctx context.Context, snapshot *state.WorkflowState) (state.PartialUpdate, error)

// EmptyResult builds the partial update an agent returns when it has
// nothing to contribute (no search results, or its fallback chain was
// exhausted), tagged into Errors per the failure semantics: "on empty
// input -> create_empty_result(agent_name) and log no_data".
func EmptyResult(agentName, reason string) state.PartialUpdate {
	return state.PartialUpdate{
		AgentOutput: &state.AgentOutput{
			AgentName:  agentName,
			Confidence: 0,
		},
		Errors: []string{agentName + ": " + reason},
	}
}
