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

// Package cache implements the company-keyed research cache: a
// never-delete, per-section store keyed by a normalised company name,
// with a URL registry that prevents re-fetching links already marked
// useless, and a file-like per-company lock serialising writes while
// reads stay lock-free.
package cache

import (
	"regexp"
	"strings"
	"time"

	"researchengine/internal/quality"
)

// requiredSections is the canonical section set used to judge data
// completeness: the sections of the quality gate's requirement table,
// except leadership.
var requiredSections = []string{
	"company_overview", "key_metrics", "financial_summary", "market_position",
	"competitive_landscape", "products", "brand", "investment_outlook",
}

// CachedSection is one stored section of a company's research record.
type CachedSection struct {
	Content  string    `json:"content"`
	Sources  []string  `json:"sources,omitempty"`
	StoredAt time.Time `json:"stored_at"`
}

// CompanyRecord is the cached company record: the never-deleted,
// section-keyed accumulation of everything learned about a company
// across runs.
type CompanyRecord struct {
	Company     string                   `json:"company"`
	Sections    map[string]CachedSection `json:"sections"`
	URLRegistry map[string]bool          `json:"url_registry"` // url -> useful
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// Statistics summarises the cache's contents for operational visibility.
type Statistics struct {
	TotalCompanies int            `json:"total_companies"`
	TotalSections  int            `json:"total_sections"`
	TotalURLs      int            `json:"total_urls"`
	ByCompleteness map[string]int `json:"by_completeness"`
}

var nonWordRE = regexp.MustCompile(`[^a-z0-9]+`)

// NormalizeKey lowercases, strips punctuation, and collapses
// whitespace into a single canonical cache key for a company name.
func NormalizeKey(company string) string {
	lower := strings.ToLower(strings.TrimSpace(company))
	collapsed := nonWordRE.ReplaceAllString(lower, "_")
	return strings.Trim(collapsed, "_")
}

// Completeness computes a data-completeness level from a company
// record's section presence and data-point richness, on the same
// five-level scale the research threshold checker uses.
func Completeness(rec *CompanyRecord) quality.CompletenessLevel {
	if rec == nil || len(rec.Sections) == 0 {
		return quality.CompletenessEmpty
	}

	present := 0
	dataPoints := 0
	for _, name := range requiredSections {
		sec, ok := rec.Sections[name]
		if !ok || strings.TrimSpace(sec.Content) == "" {
			continue
		}
		present++
		dataPoints += len(sec.Sources)
	}

	ratio := float64(present) / float64(len(requiredSections))
	switch {
	case ratio >= 0.9 && dataPoints >= len(requiredSections)*2:
		return quality.CompletenessComplete
	case ratio >= 0.7:
		return quality.CompletenessSubstantial
	case ratio >= 0.4:
		return quality.CompletenessPartial
	case ratio > 0:
		return quality.CompletenessMinimal
	default:
		return quality.CompletenessEmpty
	}
}

// IdentifyGaps returns the required sections missing or empty in rec.
func IdentifyGaps(rec *CompanyRecord) []string {
	var gaps []string
	for _, name := range requiredSections {
		sec, ok := rec.Sections[name]
		if !ok || strings.TrimSpace(sec.Content) == "" {
			gaps = append(gaps, name)
		}
	}
	return gaps
}
