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

// canonicalSections is the ~9 canonical sections scanned by the
// post-generation analyser, matched against markdown headings.
var canonicalSections = []string{
	"Company Overview", "Key Metrics", "Financial Summary", "Market Position",
	"Competitive Landscape", "Products", "Brand", "Leadership", "Investment Outlook",
}

var (
	headingRE    = regexp.MustCompile(`(?im)^#{1,3}\s*(.+?)\s*$`)
	currencyRE   = regexp.MustCompile(`[$€£]\s?\d[\d,.]*\s?(?:million|billion|M|B|K)?`)
	percentRE    = regexp.MustCompile(`\d+(?:\.\d+)?\s?%`)
	fiscalRE     = regexp.MustCompile(`(?i)\bFY\s?\d{2,4}\b|\bQ[1-4]\s?\d{4}\b`)
	datedFactRE  = regexp.MustCompile(`(?i)\b(19|20)\d{2}\b`)
	executiveRE  = regexp.MustCompile(`(?i)\b(CEO|CFO|COO|CTO|Chairman|President)\b`)
	vaguePatternRE = regexp.MustCompile(`(?i)\b(n/?a|unknown|to be determined|tbd|not available)\b`)
)

// Analyzer implements the Stage-2 post-generation quality analyser
// (ReportQualityEnforcer): it scores the finished report and decides
// whether it clears the publishability gate.
type Analyzer struct {
	SourceCount int
}

// NewAnalyzer builds an Analyzer. sourceCount is the number of
// distinct sources cited across the run's search_results/sources,
// used by both the source_coverage score and the publishability gate.
func NewAnalyzer(sourceCount int) *Analyzer {
	return &Analyzer{SourceCount: sourceCount}
}

// Analyze scores report (markdown text) and returns the Quality Report.
func (a *Analyzer) Analyze(report string) Report {
	perSection := make(map[string]SectionScore, len(canonicalSections))
	var sectionTotal float64
	present := 0

	for _, name := range canonicalSections {
		body := extractSectionBody(report, name)
		sc := SectionScore{}
		if body != "" {
			sc.Present = true
			present++
			sc.WordCount = len(strings.Fields(body))
			sc.DataPoints = countDataPoints(body)
			sc.Completeness = sectionCompleteness(sc.WordCount, sc.DataPoints)
		}
		perSection[name] = sc
		sectionTotal += sc.Completeness
	}
	sectionScore := sectionTotal / float64(len(canonicalSections))

	totalDataPoints := 0
	for _, sc := range perSection {
		totalDataPoints += sc.DataPoints
	}
	metricsCoverage := metricsCoverageScore(totalDataPoints)
	sourceCoverage := sourceCoverageScore(a.SourceCount)

	issues := a.detectIssues(report, perSection)
	issues = append(issues, detectContradictions(report)...)

	issuePenalty := issuePenaltyScore(issues)
	overall := 0.6*sectionScore + 0.2*metricsCoverage + 0.1*sourceCoverage - 0.1*issuePenalty
	if overall < 0 {
		overall = 0
	}
	if overall > 100 {
		overall = 100
	}

	rpt := Report{
		OverallScore:    overall,
		Level:           levelFor(overall),
		PerSection:      perSection,
		Issues:          issues,
		MetricsCoverage: metricsCoverage,
		SourceCoverage:  sourceCoverage,
	}
	rpt.Publishable = overall >= 55 &&
		rpt.countBySeverity(SeverityCritical) == 0 &&
		rpt.countBySeverity(SeverityMajor) <= 3 &&
		present >= 6 &&
		metricsCoverage >= 40 &&
		a.SourceCount >= 3

	return rpt
}

func (a *Analyzer) detectIssues(report string, perSection map[string]SectionScore) []Issue {
	var issues []Issue
	for name, sc := range perSection {
		if !sc.Present {
			issues = append(issues, Issue{
				Type: "missing_section", Severity: SeverityMinor, Section: name,
				Description: fmt.Sprintf("%q section is absent from the report", name),
				Suggestion:  fmt.Sprintf("add a %q section", name),
			})
			continue
		}
		if sc.WordCount < 40 {
			issues = append(issues, Issue{
				Type: "thin_section", Severity: SeverityMinor, Section: name,
				Description: fmt.Sprintf("%q section is only %d words", name, sc.WordCount),
			})
		}
	}
	if vague := vaguePatternRE.FindAllString(report, -1); len(vague) > 8 {
		issues = append(issues, Issue{
			Type: "vague_content", Severity: SeverityMajor,
			Description: fmt.Sprintf("%d vague/placeholder phrases found across the report", len(vague)),
			Suggestion:  "replace placeholder phrases with researched facts",
		})
	}
	return issues
}

func extractSectionBody(report, name string) string {
	locs := headingRE.FindAllStringSubmatchIndex(report, -1)
	lower := strings.ToLower(name)
	for i, loc := range locs {
		heading := report[loc[2]:loc[3]]
		if !strings.Contains(strings.ToLower(heading), lower) {
			continue
		}
		start := loc[1]
		end := len(report)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		return strings.TrimSpace(report[start:end])
	}
	return ""
}

func countDataPoints(body string) int {
	return len(currencyRE.FindAllString(body, -1)) +
		len(percentRE.FindAllString(body, -1)) +
		len(fiscalRE.FindAllString(body, -1)) +
		len(datedFactRE.FindAllString(body, -1)) +
		len(executiveRE.FindAllString(body, -1))
}

func sectionCompleteness(wordCount, dataPoints int) float64 {
	score := float64(wordCount)/3 + float64(dataPoints)*5
	if score > 100 {
		score = 100
	}
	return score
}

func metricsCoverageScore(dataPoints int) float64 {
	// 20 data points across the report is treated as full coverage.
	score := float64(dataPoints) / 20 * 100
	if score > 100 {
		score = 100
	}
	return score
}

func sourceCoverageScore(sourceCount int) float64 {
	// 15 distinct sources is treated as full coverage.
	score := float64(sourceCount) / 15 * 100
	if score > 100 {
		score = 100
	}
	return score
}

func issuePenaltyScore(issues []Issue) float64 {
	var penalty float64
	for _, iss := range issues {
		switch iss.Severity {
		case SeverityCritical:
			penalty += 40
		case SeverityMajor:
			penalty += 15
		case SeverityMinor:
			penalty += 5
		case SeverityInfo:
			penalty += 1
		}
	}
	if penalty > 100 {
		penalty = 100
	}
	return penalty
}
