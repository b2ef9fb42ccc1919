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
	"strconv"
	"strings"
)

// claim is one extracted (entity, metric, fiscal period, value) tuple
// the contradiction detector can compare against others sharing the
// same entity/metric/period.
type claim struct {
	metric string // "revenue" or "market_share"
	period string // fiscal period token, e.g. "FY2023" or "2023"
	value  float64
	raw    string
}

var (
	revenueClaimRE     = regexp.MustCompile(`(?i)revenue[^.\n]{0,40}?[$€£]\s?([\d,.]+)\s?(million|billion|M|B)?[^.\n]{0,40}?\b((?:19|20)\d{2})\b`)
	marketShareClaimRE = regexp.MustCompile(`(?i)market share[^.\n]{0,40}?(\d+(?:\.\d+)?)\s?%[^.\n]{0,40}?\b((?:19|20)\d{2})\b`)
)

// contradictionEpsilon is the relative tolerance: two revenue/market-
// share claims for the same period disagreeing by more than this
// fraction are flagged CRITICAL.
const contradictionEpsilon = 0.05

// detectContradictions extracts revenue and market-share claims from
// report, groups them by (metric, fiscal period), and flags pairwise
// disagreement beyond contradictionEpsilon as a CRITICAL issue.
func detectContradictions(report string) []Issue {
	claims := extractClaims(report)
	grouped := make(map[string][]claim)
	for _, c := range claims {
		key := c.metric + "|" + c.period
		grouped[key] = append(grouped[key], c)
	}

	var issues []Issue
	for _, group := range grouped {
		if len(group) < 2 {
			continue
		}
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.value == 0 && b.value == 0 {
					continue
				}
				denom := a.value
				if b.value > denom {
					denom = b.value
				}
				if denom == 0 {
					continue
				}
				diff := abs(a.value-b.value) / denom
				if diff > contradictionEpsilon {
					issues = append(issues, Issue{
						Type:        "contradiction",
						Severity:    SeverityCritical,
						Description: fmt.Sprintf("conflicting %s figures for %s: %q vs %q", a.metric, a.period, a.raw, b.raw),
						Suggestion:  "reconcile the conflicting figures or cite the more authoritative source",
					})
				}
			}
		}
	}
	return issues
}

func extractClaims(report string) []claim {
	var claims []claim
	for _, m := range revenueClaimRE.FindAllStringSubmatch(report, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		if strings.EqualFold(m[2], "billion") || strings.EqualFold(m[2], "B") {
			v *= 1000
		}
		claims = append(claims, claim{metric: "revenue", period: m[3], value: v, raw: m[0]})
	}
	for _, m := range marketShareClaimRE.FindAllStringSubmatch(report, -1) {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		claims = append(claims, claim{metric: "market_share", period: m[2], value: v, raw: m[0]})
	}
	return claims
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
