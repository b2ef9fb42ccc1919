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
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"researchengine/internal/agentcore"
	"researchengine/internal/obslog"
	"researchengine/internal/providers/base"
	"researchengine/internal/providers/llm"
	"researchengine/internal/router"
	"researchengine/internal/state"
)

// Researcher generates a query plan via the LLM, fans out the queries
// to the search provider tier, and returns every result it received;
// duplicate URLs are dropped when state.Apply merges the update.
// Unlike most specialists it is not a BaseSpecialist: its job is to
// produce search_results, not to consume them.
type Researcher struct {
	LLMRouter llm.Completer
	Fetcher   *router.Router
	MaxQueries int
	Log       *obslog.Logger
}

// NewResearcher builds the Researcher node.
func NewResearcher(llmRouter llm.Completer, fetcher *router.Router) agentcore.Node {
	r := &Researcher{LLMRouter: llmRouter, Fetcher: fetcher, MaxQueries: 5, Log: obslog.New(NameResearcher)}
	return r.Run
}

func (r *Researcher) Run(ctx context.Context, snapshot *state.WorkflowState) (state.PartialUpdate, error) {
	queries, err := r.generateQueries(ctx, snapshot.Company)
	if err != nil || len(queries) == 0 {
		r.Log.ErrorWithCode(NameResearcher, "", "query generation failed", 0, err, nil)
		return agentcore.EmptyResult(NameResearcher, "query generation failed"), nil
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([][]base.ResultItem, len(queries))
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			resp, err := r.Fetcher.Fetch(gctx, base.CapabilitySearch, &base.Request{Query: q, MaxResults: 10})
			if err != nil {
				r.Log.Warn(NameResearcher, "", "search query failed", map[string]interface{}{"query": q, "error": err.Error()})
				return nil // partial-failure semantics: one failed query doesn't fail the node
			}
			results[i] = resp.Items
			return nil
		})
	}
	_ = g.Wait() // errors are swallowed per query above, so g.Wait() always returns nil

	var searchResults []state.SearchResult
	for _, items := range results {
		for _, item := range items {
			searchResults = append(searchResults, state.SearchResult{
				URL:      item.URL,
				Title:    item.Title,
				Content:  item.Snippet,
				Domain:   domainOf(item.URL),
				Provider: item.Source,
			})
		}
	}

	if len(searchResults) == 0 {
		return agentcore.EmptyResult(NameResearcher, "no_data"), nil
	}

	sources := make([]state.Source, 0, len(searchResults))
	for _, sr := range searchResults {
		sources = append(sources, state.Source{SearchResult: sr, QualityTier: state.QualityTierUnknown, RetrievedAt: time.Now().UTC()})
	}

	output := state.AgentOutput{
		AgentName: NameResearcher,
		StructuredPayload: map[string]interface{}{
			"queries": queries,
		},
		Confidence: 0.8,
	}

	return state.PartialUpdate{
		SearchResults: searchResults,
		Sources:       sources,
		AgentOutput:   &output,
	}, nil
}

func (r *Researcher) generateQueries(ctx context.Context, company string) ([]string, error) {
	prompt := fmt.Sprintf(
		"Generate %d distinct web search queries to research the company %q: cover "+
			"general overview, recent news, financials, and competitors. Reply as a "+
			"newline-separated list, one query per line, no numbering.", r.MaxQueries, company)

	resp, _, err := r.LLMRouter.RouteRequest(ctx, llm.CompletionRequest{Prompt: prompt, MaxTokens: 300, Temperature: 0.4})
	if err != nil {
		return nil, err
	}

	var queries []string
	for _, line := range strings.Split(resp.Content, "\n") {
		q := strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) >= r.MaxQueries {
			break
		}
	}
	if len(queries) == 0 {
		queries = []string{company}
	}
	return queries, nil
}

func domainOf(rawURL string) string {
	rest := strings.TrimPrefix(rawURL, "https://")
	rest = strings.TrimPrefix(rest, "http://")
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
