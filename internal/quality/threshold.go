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
	"strings"

	"researchengine/internal/state"
)

// sectionWeights are the late-stage structured-data coverage weights
// per spec.md §4.6: financial 30%, market 20%, company_info 15%,
// competitive 15%, products 10%, strategy 10%.
var sectionWeights = map[string]float64{
	"financial":    0.30,
	"market":       0.20,
	"company_info": 0.15,
	"competitive":  0.15,
	"products":     0.10,
	"strategy":     0.10,
}

var categoryKeywords = map[string][]string{
	"financial":   {"revenue", "profit", "earnings", "margin"},
	"competitive": {"competitor", "market share", "rival"},
	"market":      {"market", "industry", "trend"},
	"product":     {"product", "service", "offering"},
}

// ThresholdChecker implements spec.md §4.6's unified threshold
// surface: CheckRawResults for early-stage search results, and
// CheckResearchData for late-stage structured section data. Both live
// on one type per SPEC_FULL.md's Open-Question resolution.
type ThresholdChecker struct{}

// NewThresholdChecker builds a ThresholdChecker.
func NewThresholdChecker() *ThresholdChecker { return &ThresholdChecker{} }

// CheckRawResults ranks early-stage search results by source_count,
// unique_domains, content_richness, and category-keyword presence,
// and recommends retry strategies when results look thin.
func (c *ThresholdChecker) CheckRawResults(results []state.SearchResult) ThresholdResult {
	domains := make(map[string]struct{})
	var totalContentLen int
	flags := make(map[string]bool)

	for _, r := range results {
		domains[r.Domain] = struct{}{}
		totalContentLen += len(r.Content)
		lower := strings.ToLower(r.Content)
		for category, keywords := range categoryKeywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					flags[category] = true
				}
			}
		}
	}

	richness := 0.0
	if len(results) > 0 {
		richness = float64(totalContentLen) / float64(len(results))
	}

	var categoryFlags []string
	for category := range flags {
		categoryFlags = append(categoryFlags, category)
	}

	result := ThresholdResult{
		SourceCount:     len(results),
		UniqueDomains:   len(domains),
		ContentRichness: richness,
		CategoryFlags:   categoryFlags,
	}
	result.Sufficient = len(results) >= 5 && len(domains) >= 3 && richness >= 200

	if !result.Sufficient {
		result.RecommendedStrategies = recommendStrategiesForRaw(result)
	}
	return result
}

func recommendStrategiesForRaw(r ThresholdResult) []RetryStrategy {
	var strategies []RetryStrategy
	if r.UniqueDomains < 3 {
		strategies = append(strategies, StrategyAlternativeSources, StrategyRegionalSources)
	}
	if r.SourceCount < 5 {
		strategies = append(strategies, StrategyRelaxedQueries, StrategyMultilingual)
	}
	if r.ContentRichness < 100 {
		strategies = append(strategies, StrategyPressReleases, StrategyArchivedData)
	}
	if r.SourceCount == 0 {
		strategies = append(strategies, StrategyParentCompany)
	}
	return strategies
}

// CheckResearchData scores late-stage structured section data against
// the weighted coverage table. When strict is true, any missing
// critical section (financial, market, company_info) marks the result
// insufficient even if the weighted total clears the floor.
func (c *ThresholdChecker) CheckResearchData(sections map[string]string, strict bool) ThresholdResult {
	coverages := make(map[string]float64, len(sectionWeights))
	var weighted float64
	var missingCritical []string

	for section, weight := range sectionWeights {
		content := strings.TrimSpace(sections[section])
		coverage := 0.0
		if content != "" {
			coverage = scoreSection(content)
			if coverage > 100 {
				coverage = 100
			}
		}
		coverages[section] = coverage
		weighted += coverage * weight

		if content == "" && (section == "financial" || section == "market" || section == "company_info") {
			missingCritical = append(missingCritical, section)
		}
	}

	result := ThresholdResult{
		SectionCoverages: coverages,
		MissingCritical:  missingCritical,
	}
	result.Sufficient = weighted >= 50 && !(strict && len(missingCritical) > 0)
	result.SufficiencyLevel = string(completenessFor(weighted, missingCritical))

	if !result.Sufficient {
		result.RecommendedStrategies = recommendStrategiesForSections(missingCritical)
	}
	return result
}

func recommendStrategiesForSections(missing []string) []RetryStrategy {
	if len(missing) == 0 {
		return []RetryStrategy{StrategyRelaxedQueries}
	}
	return []RetryStrategy{StrategyParentCompany, StrategyAlternativeSources, StrategyMultilingual}
}

func completenessFor(weighted float64, missingCritical []string) CompletenessLevel {
	switch {
	case weighted == 0:
		return CompletenessEmpty
	case len(missingCritical) > 1:
		return CompletenessMinimal
	case weighted >= 85:
		return CompletenessComplete
	case weighted >= 65:
		return CompletenessSubstantial
	case weighted >= 40:
		return CompletenessPartial
	default:
		return CompletenessMinimal
	}
}
