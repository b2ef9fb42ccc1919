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
	"testing"

	"github.com/stretchr/testify/require"

	"researchengine/internal/state"
)

func TestCheckRawResults_InsufficientRecommendsStrategies(t *testing.T) {
	c := NewThresholdChecker()
	result := c.CheckRawResults([]state.SearchResult{
		{Domain: "acme.com", Content: "short"},
	})
	require.False(t, result.Sufficient)
	require.NotEmpty(t, result.RecommendedStrategies)
}

func TestCheckRawResults_SufficientWithDiverseRichResults(t *testing.T) {
	c := NewThresholdChecker()
	var results []state.SearchResult
	domains := []string{"acme.com", "news.example", "reuters.com", "bloomberg.com", "sec.gov"}
	for _, d := range domains {
		results = append(results, state.SearchResult{
			Domain:  d,
			Content: richSection("Acme Corp reported strong revenue growth and expanding market share", 20),
		})
	}
	result := c.CheckRawResults(results)
	require.True(t, result.Sufficient)
	require.Empty(t, result.RecommendedStrategies)
}

func TestCheckResearchData_MissingCriticalSections(t *testing.T) {
	c := NewThresholdChecker()
	result := c.CheckResearchData(map[string]string{
		"products": richSection("Acme sells widgets and gadgets across several product lines", 20),
	}, true)
	require.False(t, result.Sufficient)
	require.Contains(t, result.MissingCritical, "financial")
	require.Contains(t, result.MissingCritical, "market")
	require.Contains(t, result.MissingCritical, "company_info")
}

func TestCheckResearchData_SufficientWithAllCriticalSections(t *testing.T) {
	c := NewThresholdChecker()
	rich := richSection("Acme Corp reported strong revenue growth and expanding market share", 20)
	result := c.CheckResearchData(map[string]string{
		"financial":    rich,
		"market":       rich,
		"company_info": rich,
		"competitive":  rich,
		"products":     rich,
		"strategy":     rich,
	}, true)
	require.True(t, result.Sufficient)
	require.Empty(t, result.MissingCritical)
}
