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

package quality

import (
	"fmt"
	"regexp"
	"strings"
)

// sectionRequirement is one row of the pre-gate's minimum-threshold
// table: a required section must be non-empty and score at least Min.
type sectionRequirement struct {
	Name     string
	Min      float64
	Required bool
}

// defaultSectionRequirements is the pre-gate's minimum-threshold
// table per spec.md §4.6 ("company_overview ≥ 30, key_metrics ≥ 25,
// etc").
var defaultSectionRequirements = []sectionRequirement{
	{Name: "company_overview", Min: 30, Required: true},
	{Name: "key_metrics", Min: 25, Required: true},
	{Name: "financial_summary", Min: 20, Required: false},
	{Name: "market_position", Min: 20, Required: false},
	{Name: "competitive_landscape", Min: 20, Required: false},
	{Name: "products", Min: 15, Required: false},
	{Name: "brand", Min: 10, Required: false},
	{Name: "leadership", Min: 10, Required: false},
	{Name: "investment_outlook", Min: 15, Required: false},
}

// minWordFloor is the absolute word-count floor below which a
// section is treated as empty regardless of score.
const minWordFloor = 200

var notAvailableRE = regexp.MustCompile(`(?i)\b(n/?a|not available|unknown|to be determined|tbd)\b`)

// Gate implements the Stage-1 pre-generation quality gate
// (QualityEnforcer): it scores the accumulated research sections
// before the synthesiser ever runs, and can block synthesis outright.
type Gate struct {
	Requirements []sectionRequirement
}

// NewGate builds a Gate using the default section-requirement table.
func NewGate() *Gate {
	return &Gate{Requirements: defaultSectionRequirements}
}

// Evaluate scores the accumulated research sections (section name ->
// rendered text) and decides whether the synthesiser may run.
func (g *Gate) Evaluate(sections map[string]string) GateResult {
	result := GateResult{
		CanGenerate:   true,
		SectionScores: make(map[string]float64, len(g.Requirements)),
	}

	var total float64
	for _, req := range g.Requirements {
		content := strings.TrimSpace(sections[req.Name])
		score := scoreSection(content)
		result.SectionScores[req.Name] = score
		total += score

		if req.Required && content == "" {
			result.CanGenerate = false
			result.BlockReasons = append(result.BlockReasons, fmt.Sprintf("required section %q is missing", req.Name))
			result.Improvements = append(result.Improvements, fmt.Sprintf("gather research for %q", req.Name))
			continue
		}
		if content == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("section %q has no data", req.Name))
			continue
		}
		if len(strings.Fields(content)) < minWordFloor {
			result.CanGenerate = false
			result.BlockReasons = append(result.BlockReasons, fmt.Sprintf("section %q is shorter than the %d-word floor", req.Name, minWordFloor))
			result.Improvements = append(result.Improvements, fmt.Sprintf("expand research for %q", req.Name))
			continue
		}
		if score < req.Min {
			if req.Required {
				result.CanGenerate = false
				result.BlockReasons = append(result.BlockReasons, fmt.Sprintf("section %q scored %.0f, below minimum %.0f", req.Name, score, req.Min))
			} else {
				result.Warnings = append(result.Warnings, fmt.Sprintf("section %q scored %.0f, below recommended %.0f", req.Name, score, req.Min))
			}
			result.Improvements = append(result.Improvements, fmt.Sprintf("strengthen section %q", req.Name))
		}
		if isDominatedByNotAvailable(content) {
			result.CanGenerate = false
			result.BlockReasons = append(result.BlockReasons, fmt.Sprintf("section %q is dominated by not-available placeholders", req.Name))
			result.Improvements = append(result.Improvements, fmt.Sprintf("replace placeholder content in %q with real research", req.Name))
		}
	}

	if len(g.Requirements) > 0 {
		result.QualityScore = total / float64(len(g.Requirements))
	}

	if result.CanGenerate {
		result.Summary = fmt.Sprintf("research sufficient to generate a report, quality_score=%.0f", result.QualityScore)
	} else {
		result.Summary = fmt.Sprintf("blocked: %s", strings.Join(result.BlockReasons, "; "))
	}
	return result
}

// scoreSection is a length/structure heuristic in [0,100]: richer
// section text (longer, with more distinct sentences) scores higher,
// capped so a single very long paragraph doesn't saturate the score.
func scoreSection(content string) float64 {
	if content == "" {
		return 0
	}
	words := len(strings.Fields(content))
	sentences := strings.Count(content, ".") + strings.Count(content, "\n")
	score := float64(words)/4 + float64(sentences)*2
	if score > 100 {
		score = 100
	}
	return score
}

// isDominatedByNotAvailable rejects sections where most of the content
// is "not available"-style placeholder text rather than real research.
func isDominatedByNotAvailable(content string) bool {
	matches := notAvailableRE.FindAllString(content, -1)
	words := strings.Fields(content)
	if len(words) == 0 {
		return false
	}
	return float64(len(matches))/float64(len(words)) > 0.3
}
