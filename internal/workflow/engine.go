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

package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"researchengine/internal/agentcore"
	"researchengine/internal/agents"
	"researchengine/internal/config"
	"researchengine/internal/obslog"
	"researchengine/internal/providers/llm"
	"researchengine/internal/quality"
	"researchengine/internal/router"
	"researchengine/internal/state"
)

// defaultDeadline is the cumulative wall-clock budget for one run,
// bounding the iteration loop alongside max_iterations, per spec.md
// §4.1 ("Bound the loop by both max_iterations and a cumulative
// deadline").
const defaultDeadline = 300 * time.Second

// Result is the workflow's public contract: run(company_name, depth,
// config) → {report, state, cost, quality}.
type Result struct {
	Report  string
	State   *state.WorkflowState
	Cost    float64
	Quality *quality.Report
}

// Engine builds and executes the research workflow's directed state
// graph.
type Engine struct {
	cfg     *config.Config
	llm     llm.Completer
	fetcher *router.Router
	gate    *quality.Gate
	checker *quality.ThresholdChecker
	log     *obslog.Logger
}

// New builds an Engine. llmRouter may be a bare *llm.Router or a
// cost.CostTrackingRouter wrapping one — anything satisfying llm.Completer.
func New(cfg *config.Config, llmRouter llm.Completer, fetcher *router.Router) *Engine {
	return &Engine{
		cfg:     cfg,
		llm:     llmRouter,
		fetcher: fetcher,
		gate:    quality.NewGate(),
		checker: quality.NewThresholdChecker(),
		log:     obslog.New("workflow"),
	}
}

// Run executes one research pass for company at the given depth.
func (e *Engine) Run(ctx context.Context, company string, depth Depth) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultDeadline)
	defer cancel()
	ctx = llm.WithCompany(ctx, company)

	snapshot := state.New(company)

	researcher := agents.NewResearcher(e.llm, e.fetcher)
	for {
		update, err := researcher(ctx, snapshot)
		if err != nil {
			return nil, fmt.Errorf("workflow: researcher node: %w", err)
		}
		state.Apply(snapshot, update)

		if raw := e.checker.CheckRawResults(snapshot.SearchResults); !raw.Sufficient {
			e.log.Warn("workflow", snapshot.RunID, "raw search results below sufficiency threshold", map[string]interface{}{
				"source_count": raw.SourceCount, "unique_domains": raw.UniqueDomains, "retry_strategies": raw.RecommendedStrategies,
			})
		}

		if err := e.runSpecialists(ctx, snapshot, depth); err != nil {
			return nil, fmt.Errorf("workflow: specialist fan-out: %w", err)
		}

		gateResult := e.gate.Evaluate(sectionsForGate(snapshot))
		state.Apply(snapshot, state.PartialUpdate{QualitySet: true, QualityScore: gateResult.QualityScore})

		state.Apply(snapshot, state.PartialUpdate{IterationCount: snapshot.IterationCount + 1})
		decision := shouldContinueResearch(snapshot, gateResult, e.cfg.QualityThreshold, e.cfg.MaxIterations)

		if decision == edgeFinish {
			if !gateResult.CanGenerate {
				return e.blockedResult(snapshot, gateResult), nil
			}
			break
		}

		if ctx.Err() != nil {
			break
		}
		e.log.Info("workflow", snapshot.RunID, "iterating", map[string]interface{}{
			"iteration": snapshot.IterationCount, "quality_score": snapshot.QualityScore,
		})
	}

	return e.synthesizeAndScore(ctx, snapshot)
}

// runSpecialists fans out the specialist roster in parallel after
// search, per spec.md §4.1's "comprehensive workflow additionally fans
// out specialists... in parallel after search". Quick depth runs the
// core roster (analyst, financial, market, competitor scout); standard
// adds the brand auditor, social media, sales intelligence and product
// specialists; comprehensive also adds the multilingual search generator.
func (e *Engine) runSpecialists(ctx context.Context, snapshot *state.WorkflowState, depth Depth) error {
	nodes := []agentcore.Node{
		agents.NewAnalyst(e.llm),
		agents.NewFinancial(e.llm, e.fetcher),
		agents.NewMarket(e.llm, e.fetcher),
		agents.NewCompetitorScout(e.llm, e.fetcher),
	}
	if depth == DepthComprehensive || depth == DepthStandard {
		nodes = append(nodes,
			agents.NewBrandAuditor(e.llm),
			agents.NewSocialMedia(e.llm),
			agents.NewSalesIntelligence(e.llm),
			agents.NewProduct(e.llm),
		)
	}
	if depth == DepthComprehensive {
		nodes = append(nodes, agents.NewMultilingualSearchGenerator(e.llm))
	}

	g, gctx := errgroup.WithContext(ctx)
	updates := make([]state.PartialUpdate, len(nodes))
	for i, n := range nodes {
		i, n := i, n
		g.Go(func() error {
			update, err := n(gctx, state.Snapshot(snapshot))
			if err != nil {
				return err
			}
			updates[i] = update
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, u := range updates {
		state.Apply(snapshot, u)
	}
	return nil
}

// synthesizeAndScore runs the fan-in synthesis stage (Synthesiser,
// Investment Analyst, Logic Critic) and the Stage-2 post-generation
// analyser, once research has cleared the pre-generation gate.
func (e *Engine) synthesizeAndScore(ctx context.Context, snapshot *state.WorkflowState) (*Result, error) {
	for _, n := range []agentcore.Node{
		agents.NewSynthesiser(e.llm),
		agents.NewInvestmentAnalyst(e.llm),
		agents.NewLogicCritic(e.llm),
	} {
		update, err := n(ctx, snapshot)
		if err != nil {
			return nil, fmt.Errorf("workflow: synthesis stage: %w", err)
		}
		state.Apply(snapshot, update)
	}

	report := snapshot.AgentOutputs[agents.NameSynthesiser].NarrativeAnalysis
	analyzer := quality.NewAnalyzer(len(snapshot.Sources))
	qualityReport := analyzer.Analyze(report)

	return &Result{
		Report:  report,
		State:   snapshot,
		Cost:    snapshot.TotalCost,
		Quality: &qualityReport,
	}, nil
}

// blockedResult is returned when the pre-generation gate never clears:
// per spec.md §4.6, the orchestrator must not invoke the synthesiser
// and instead emits a placeholder report listing the gate's
// improvements.
func (e *Engine) blockedResult(snapshot *state.WorkflowState, gate quality.GateResult) *Result {
	report := fmt.Sprintf("# %s — research incomplete\n\nThis report could not be generated: %s\n\n## Suggested improvements\n", snapshot.Company, gate.Summary)
	for _, imp := range gate.Improvements {
		report += fmt.Sprintf("- %s\n", imp)
	}
	return &Result{
		Report: report,
		State:  snapshot,
		Cost:   snapshot.TotalCost,
		Quality: &quality.Report{
			OverallScore: gate.QualityScore,
			Level:        "blocked",
			Publishable:  false,
		},
	}
}

// RunBatch executes Run for each company, capping concurrency at
// maxWorkers.
func (e *Engine) RunBatch(ctx context.Context, companies []string, depth Depth, maxWorkers int) map[string]*Result {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	results := make(map[string]*Result, len(companies))
	sem := make(chan struct{}, maxWorkers)
	var mu sync.Mutex
	var wg errgroup.Group

	for _, company := range companies {
		company := company
		wg.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := e.Run(ctx, company, depth)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.log.ErrorWithCode("workflow", "", "company run failed", 0, err, map[string]interface{}{"company": company})
				results[company] = &Result{State: state.New(company)}
				return nil
			}
			results[company] = res
			return nil
		})
	}
	_ = wg.Wait()
	return results
}
