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

// Package main is the research engine's command-line entry point,
// grounded on the teacher's cmd/orchestrator flag-parsing style:
// one required, mutually exclusive selector flag plus a handful of
// run-shaping options, exiting with the documented codes rather than
// panicking on bad input.
//
// Usage:
//
//	research --company "Microsoft" --depth standard --output ./reports
//	research --company "Acme Corp" --depth comprehensive --no-quality-check
//
// Environment Variables:
//
//	ANTHROPIC_API_KEY, OPENAI_API_KEY, GOOGLE_API_KEY, BEDROCK_REGION - LLM providers
//	TAVILY_API_KEY, NEWSAPI_API_KEY, SEC_EDGAR_API_KEY - search/news/financial providers
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"researchengine/internal/config"
	"researchengine/internal/cost"
	"researchengine/internal/obslog"
	"researchengine/internal/providers/llm"
	"researchengine/internal/router"
	"researchengine/internal/workflow"
)

// Exit codes per spec.md §6: 0 success, 2 bad argument, 3 no provider
// available, 4 all workflows failed.
const (
	exitOK          = 0
	exitBadArgument = 2
	exitNoProvider  = 3
	exitAllFailed   = 4
)

type runMetrics struct {
	QualityScore   float64  `json:"quality_score"`
	TotalCost      float64  `json:"total_cost"`
	Tokens         struct {
		Input  int `json:"input"`
		Output int `json:"output"`
	} `json:"tokens"`
	DurationSeconds float64  `json:"duration_seconds"`
	AgentsExecuted  []string `json:"agents_executed"`
	SourcesCount    int      `json:"sources_count"`
	Errors          []string `json:"errors"`
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("research", flag.ContinueOnError)
	var (
		company         string
		profile         string
		market          string
		depth           string
		outputDir       string
		configPath      string
		verbose         bool
		dryRun          bool
		noQualityCheck  bool
		qualityThresh   float64
		maxWorkers      int
	)
	fs.StringVar(&company, "company", "", "company name to research (mutually exclusive with --profile/--market)")
	fs.StringVar(&profile, "profile", "", "YAML profile describing a single company (mutually exclusive)")
	fs.StringVar(&market, "market", "", "directory of company profiles to research as a batch (mutually exclusive)")
	fs.StringVar(&depth, "depth", "standard", "research depth: quick|standard|comprehensive")
	fs.StringVar(&outputDir, "output", "", "output directory (overrides config)")
	fs.StringVar(&configPath, "config", "", "path to YAML config file")
	fs.BoolVar(&verbose, "verbose", false, "verbose logging")
	fs.BoolVar(&dryRun, "dry-run", false, "validate configuration and exit without researching")
	fs.BoolVar(&noQualityCheck, "no-quality-check", false, "skip the post-generation quality gate when deciding iteration")
	fs.Float64Var(&qualityThresh, "quality-threshold", 0, "override config.quality_threshold")
	fs.IntVar(&maxWorkers, "max-workers", 0, "override config.max_workers for --market batches")
	fs.Bool("use-graph", true, "reserved: the engine always executes the typed state graph")
	fs.Bool("compare", false, "reserved: emit a cross-company comparison when researching a market batch")
	showConfig := fs.Bool("show-config", false, "print the resolved configuration and exit")

	if err := fs.Parse(args); err != nil {
		return exitBadArgument
	}

	selected := 0
	for _, v := range []string{company, profile, market} {
		if v != "" {
			selected++
		}
	}
	if selected != 1 {
		fmt.Fprintln(os.Stderr, "research: exactly one of --company, --profile, --market is required")
		return exitBadArgument
	}
	var d workflow.Depth
	switch depth {
	case "quick":
		d = workflow.DepthQuick
	case "standard":
		d = workflow.DepthStandard
	case "comprehensive":
		d = workflow.DepthComprehensive
	default:
		fmt.Fprintf(os.Stderr, "research: unknown --depth %q\n", depth)
		return exitBadArgument
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "research: loading config: %v\n", err)
		return exitBadArgument
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if qualityThresh > 0 {
		cfg.QualityThreshold = qualityThresh
	}
	if maxWorkers > 0 {
		cfg.MaxWorkers = maxWorkers
	}
	if noQualityCheck {
		// Disabling the quality gate means the iteration loop always
		// finishes after the first pass: a zero threshold is always
		// met by should_continue_research.
		cfg.QualityThreshold = 0
	}

	if *showConfig {
		redacted := *cfg
		if redacted.APIKeys != nil {
			redacted.APIKeys = make(map[string]string, len(cfg.APIKeys))
			for k := range cfg.APIKeys {
				redacted.APIKeys[k] = "<set>"
			}
		}
		out, _ := json.MarshalIndent(redacted, "", "  ")
		fmt.Println(string(out))
		return exitOK
	}

	log := obslog.New("cmd/research")
	if dryRun {
		fmt.Println("research: configuration OK (dry run, no providers contacted)")
		return exitOK
	}

	bootstrapResult, err := llm.BootstrapFromEnv(nil)
	if err != nil || bootstrapResult == nil || len(bootstrapResult.ProvidersBootstrapped) == 0 {
		fmt.Fprintln(os.Stderr, "research: no LLM provider available from environment")
		return exitNoProvider
	}
	llmRouter := llm.NewRouterFromConfig(llm.RouterConfig{Registry: bootstrapResult.Registry})

	costSvc := newCostService(log)
	trackedRouter := cost.NewCostTrackingRouter(llmRouter, costSvc, nil)

	fetcher := router.BootstrapFromEnv(router.BootstrapConfig{
		APIKeys: cfg.APIKeys,
		Log:     obslog.New("router"),
		Timeout: 20 * time.Second,
	}).WithCostLedger(costSvc)

	engine := workflow.New(cfg, trackedRouter, fetcher)

	switch {
	case company != "":
		return runSingle(log, engine, cfg, company, d, verbose)
	case profile != "":
		name, perr := companyNameFromProfile(profile)
		if perr != nil {
			fmt.Fprintf(os.Stderr, "research: %v\n", perr)
			return exitBadArgument
		}
		return runSingle(log, engine, cfg, name, d, verbose)
	default:
		return runMarket(log, engine, cfg, market, d, verbose)
	}
}

func runSingle(log *obslog.Logger, engine *workflow.Engine, cfg *config.Config, company string, d workflow.Depth, verbose bool) int {
	ctx := context.Background()
	start := time.Now()
	result, err := engine.Run(ctx, company, d)
	if err != nil {
		fmt.Fprintf(os.Stderr, "research: %s: %v\n", company, err)
		return exitAllFailed
	}
	if verbose {
		log.Info("cmd/research", result.State.RunID, "run complete", map[string]interface{}{
			"company": company, "quality": result.Quality.OverallScore, "cost": result.Cost,
		})
	}
	if err := writeReport(cfg.OutputDir, company, result, time.Since(start)); err != nil {
		fmt.Fprintf(os.Stderr, "research: writing report: %v\n", err)
		return exitAllFailed
	}
	return exitOK
}

func runMarket(log *obslog.Logger, engine *workflow.Engine, cfg *config.Config, dir string, d workflow.Depth, verbose bool) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "research: reading --market directory: %v\n", err)
		return exitBadArgument
	}
	var companies []string
	for _, e := range entries {
		if e.IsDir() || !(strings.HasSuffix(e.Name(), ".yaml") || strings.HasSuffix(e.Name(), ".yml")) {
			continue
		}
		name, err := companyNameFromProfile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		companies = append(companies, name)
	}
	if len(companies) == 0 {
		fmt.Fprintf(os.Stderr, "research: no company profiles found in %s\n", dir)
		return exitBadArgument
	}

	ctx := context.Background()
	results := engine.RunBatch(ctx, companies, d, cfg.MaxWorkers)

	stamp := time.Now().UTC().Format("20060102T150405Z")
	batchDir := filepath.Join(cfg.OutputDir, "batch", stamp)
	if err := os.MkdirAll(batchDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "research: %v\n", err)
		return exitAllFailed
	}

	succeeded := 0
	summary := make(map[string]interface{}, len(results))
	for company, res := range results {
		if err := writeReport(cfg.OutputDir, company, res, 0); err != nil {
			log.Warn("cmd/research", "", "writing report failed", map[string]interface{}{"company": company, "error": err.Error()})
			continue
		}
		quality := 0.0
		publishable := false
		if res.Quality != nil {
			quality = res.Quality.OverallScore
			publishable = res.Quality.Publishable
		}
		summary[company] = map[string]interface{}{"quality_score": quality, "publishable": publishable, "cost": res.Cost}
		if publishable {
			succeeded++
		}
	}
	summaryJSON, _ := json.MarshalIndent(summary, "", "  ")
	if err := os.WriteFile(filepath.Join(batchDir, "summary.json"), summaryJSON, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "research: %v\n", err)
	}
	if verbose {
		log.Info("cmd/research", "", "batch complete", map[string]interface{}{"companies": len(companies), "publishable": succeeded})
	}
	if succeeded == 0 {
		return exitAllFailed
	}
	return exitOK
}

// writeReport emits the per-run artefact layout of spec.md §6:
// outputs/research/<company_slug>/00_full_report.md + metrics.json +
// extracted_data.json.
func writeReport(outputDir, company string, result *workflow.Result, duration time.Duration) error {
	slug := slugify(company)
	dir := filepath.Join(outputDir, "research", slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "00_full_report.md"), []byte(result.Report), 0o644); err != nil {
		return err
	}

	m := runMetrics{DurationSeconds: duration.Seconds()}
	if result.Quality != nil {
		m.QualityScore = result.Quality.OverallScore
	}
	m.TotalCost = result.Cost
	if result.State != nil {
		m.Tokens.Input = result.State.TotalTokens.Input
		m.Tokens.Output = result.State.TotalTokens.Output
		m.SourcesCount = len(result.State.Sources)
		m.Errors = result.State.Errors
		for name := range result.State.AgentOutputs {
			m.AgentsExecuted = append(m.AgentsExecuted, name)
		}
	}
	metricsJSON, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "metrics.json"), metricsJSON, 0o644); err != nil {
		return err
	}

	extracted := map[string]interface{}{}
	if result.State != nil {
		for name, out := range result.State.AgentOutputs {
			extracted[name] = out.StructuredPayload
		}
	}
	extractedJSON, err := json.MarshalIndent(extracted, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "extracted_data.json"), extractedJSON, 0o644)
}

func slugify(company string) string {
	s := strings.ToLower(strings.TrimSpace(company))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// newCostService connects the cost ledger to Postgres when DATABASE_URL
// is set; otherwise it falls back to an in-memory repository so the CLI
// runs standalone for local research passes.
func newCostService(log *obslog.Logger) *cost.Service {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Warn("cmd/research", "", "DATABASE_URL not set, using in-memory cost ledger", nil)
		return cost.NewService(cost.NewMemoryRepository(), nil)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.ErrorWithCode("cmd/research", "", "postgres open failed, using in-memory cost ledger", 0, err, nil)
		return cost.NewService(cost.NewMemoryRepository(), nil)
	}
	return cost.NewService(cost.NewPostgresRepository(db), nil)
}

// companyNameFromProfile reads the "company_name" key out of a YAML
// profile file; profiles are otherwise opaque to the CLI, which only
// needs the name to invoke the orchestrator.
func companyNameFromProfile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading profile %s: %w", path, err)
	}
	var doc struct {
		CompanyName string `yaml:"company_name"`
		Company     string `yaml:"company"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if doc.CompanyName != "" {
		return doc.CompanyName, nil
	}
	if doc.Company != "" {
		return doc.Company, nil
	}
	return "", fmt.Errorf("profile %s has neither company_name nor company", path)
}
