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

package state

// Apply merges a PartialUpdate into a WorkflowState using each
// field's declared reducer. Reducers here are commutative and
// associative on the values agents running in parallel may produce,
// which is what makes concurrent fan-out safe to merge without a
// shared lock: Apply is called once per returned update, serialized by
// the caller (the workflow engine), never concurrently on the same
// state.
func Apply(s *WorkflowState, u PartialUpdate) {
	s.SearchResults = appendDedupeByURL(s.SearchResults, u.SearchResults)
	s.Sources = appendDedupeSourcesByURL(s.Sources, u.Sources)

	if u.AgentOutput != nil {
		keyMergeAgentOutput(s.AgentOutputs, *u.AgentOutput)
	}

	s.TotalCost += u.CostDelta // numeric sum

	s.TotalTokens.Input += u.TokensDelta.Input // componentwise sum
	s.TotalTokens.Output += u.TokensDelta.Output

	if u.IterationCount > s.IterationCount { // max
		s.IterationCount = u.IterationCount
	}

	if u.QualitySet { // last-wins
		s.QualityScore = u.QualityScore
	}

	s.Errors = append(s.Errors, u.Errors...) // append

	s.GapsDetected = unionStrings(s.GapsDetected, u.GapsDetected) // union
}

func appendDedupeByURL(existing, incoming []SearchResult) []SearchResult {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.URL] = struct{}{}
	}
	out := existing
	for _, r := range incoming {
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		out = append(out, r)
	}
	return out
}

func appendDedupeSourcesByURL(existing, incoming []Source) []Source {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		seen[s.URL] = struct{}{}
	}
	out := existing
	for _, s := range incoming {
		if _, dup := seen[s.URL]; dup {
			continue
		}
		seen[s.URL] = struct{}{}
		out = append(out, s)
	}
	return out
}

// keyMergeAgentOutput replaces the entry for out.AgentName. Distinct
// agent keys written concurrently merge without conflict since each
// writes only its own key.
func keyMergeAgentOutput(m map[string]AgentOutput, out AgentOutput) {
	m[out.AgentName] = out
}

func unionStrings(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	out := existing
	for _, v := range incoming {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Snapshot returns a shallow copy of s suitable for handing to an
// agent node as its read-only view. Slices and maps are copied one
// level deep so an agent cannot mutate the orchestrator's state by
// appending to a slice it was handed.
func Snapshot(s *WorkflowState) *WorkflowState {
	cp := *s

	cp.SearchResults = append([]SearchResult(nil), s.SearchResults...)
	cp.Sources = append([]Source(nil), s.Sources...)
	cp.Errors = append([]string(nil), s.Errors...)
	cp.GapsDetected = append([]string(nil), s.GapsDetected...)

	cp.AgentOutputs = make(map[string]AgentOutput, len(s.AgentOutputs))
	for k, v := range s.AgentOutputs {
		cp.AgentOutputs[k] = v
	}

	return &cp
}
