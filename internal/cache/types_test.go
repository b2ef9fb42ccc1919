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

package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"researchengine/internal/quality"
)

func TestNormalizeKey(t *testing.T) {
	require.Equal(t, "acme_corp", NormalizeKey("  Acme, Corp.  "))
	require.Equal(t, "at_t", NormalizeKey("AT&T"))
}

func TestCompleteness_EmptyRecord(t *testing.T) {
	require.Equal(t, quality.CompletenessEmpty, Completeness(nil))
	require.Equal(t, quality.CompletenessEmpty, Completeness(&CompanyRecord{}))
}

func TestCompleteness_FullRecordIsComplete(t *testing.T) {
	rec := &CompanyRecord{Sections: map[string]CachedSection{}}
	for _, name := range requiredSections {
		rec.Sections[name] = CachedSection{Content: "substantial content", Sources: []string{"a", "b", "c"}}
	}
	require.Equal(t, quality.CompletenessComplete, Completeness(rec))
}

func TestCompleteness_PartialRecord(t *testing.T) {
	rec := &CompanyRecord{Sections: map[string]CachedSection{
		"company_overview":     {Content: "x"},
		"key_metrics":          {Content: "y"},
		"financial_summary":    {Content: "z"},
		"market_position":      {Content: "w"},
	}}
	require.Equal(t, quality.CompletenessPartial, Completeness(rec))
}

func TestIdentifyGaps_ReturnsMissingSections(t *testing.T) {
	rec := &CompanyRecord{Sections: map[string]CachedSection{
		"company_overview": {Content: "present"},
	}}
	gaps := IdentifyGaps(rec)
	require.Contains(t, gaps, "financial_summary")
	require.NotContains(t, gaps, "company_overview")
}
