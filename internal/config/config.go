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

// Package config loads the research engine's run configuration from a
// YAML file with ${VAR}/${VAR:-default} environment expansion, layered
// with hardcoded defaults and environment-variable overrides for API
// keys, following the same env-expansion idiom as the connector layer.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SearchStrategy selects how the provider router orders providers.
type SearchStrategy string

const (
	SearchStrategyFreeFirst    SearchStrategy = "free_first"
	SearchStrategyPremiumFirst SearchStrategy = "premium_first"
	SearchStrategyAuto         SearchStrategy = "auto"
)

// AgentOverride holds one agent's token/temperature overrides; Config
// keys them by agent name (e.g. "financial").
type AgentOverride struct {
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
}

// Config is the research engine's run configuration, per spec.md §6's
// "recognised options" list.
type Config struct {
	LLMModel       string  `yaml:"llm_model"`
	LLMTemperature float64 `yaml:"llm_temperature"`
	LLMMaxTokens   int     `yaml:"llm_max_tokens"`

	NumSearchQueries int            `yaml:"num_search_queries"`
	MaxSearchResults int            `yaml:"max_search_results"`
	SearchStrategy   SearchStrategy `yaml:"search_strategy"`

	QualityThreshold float64 `yaml:"quality_threshold"`
	MaxIterations    int     `yaml:"max_iterations"`

	AgentOverrides map[string]AgentOverride `yaml:"agent_overrides,omitempty"`

	OutputDir     string   `yaml:"output_dir"`
	ReportFormats []string `yaml:"report_formats"`

	MaxWorkers        int `yaml:"max_workers"`
	TimeoutPerCompany int `yaml:"timeout_per_company_seconds"`

	EnableCache bool   `yaml:"enable_cache"`
	CacheDir    string `yaml:"cache_dir"`

	// APIKeys is populated from environment variables, never from the
	// YAML file, so secrets never land on disk via this struct.
	APIKeys map[string]string `yaml:"-"`
}

// Default returns the engine's hardcoded defaults.
func Default() *Config {
	return &Config{
		LLMModel:         "claude-sonnet-4",
		LLMTemperature:   0.3,
		LLMMaxTokens:     2000,
		NumSearchQueries: 5,
		MaxSearchResults: 10,
		SearchStrategy:   SearchStrategyAuto,
		QualityThreshold: 70,
		MaxIterations:    2,
		OutputDir:        "./reports",
		ReportFormats:    []string{"markdown"},
		MaxWorkers:       4,
		TimeoutPerCompany: 300,
		EnableCache:      true,
		CacheDir:         "./cache",
		APIKeys:          loadAPIKeysFromEnv(),
	}
}

var envVarRegex = regexp.MustCompile(`\$\{[A-Za-z_][A-Za-z0-9_]*(?::-[^}]*)?\}`)

// expandEnvVars resolves ${VAR} and ${VAR:-default} references in raw
// YAML text before it's parsed.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		inner := match[2 : len(match)-1]
		name, defaultVal := inner, ""
		if idx := strings.Index(inner, ":-"); idx != -1 {
			name, defaultVal = inner[:idx], inner[idx+2:]
		}
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})
}

// Load reads a YAML config file at path, expands environment
// references, and merges it over Default(). A missing file is not an
// error: Load returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := expandEnvVars(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.APIKeys = loadAPIKeysFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the workflow engine relies on.
func (c *Config) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("config: max_iterations must be >= 1, got %d", c.MaxIterations)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return fmt.Errorf("config: quality_threshold must be in [0,100], got %g", c.QualityThreshold)
	}
	switch c.SearchStrategy {
	case SearchStrategyFreeFirst, SearchStrategyPremiumFirst, SearchStrategyAuto, "":
	default:
		return fmt.Errorf("config: unknown search_strategy %q", c.SearchStrategy)
	}
	return nil
}

// AgentMaxTokens resolves a per-agent max_tokens override, falling
// back to LLMMaxTokens when unset.
func (c *Config) AgentMaxTokens(agent string) int {
	if o, ok := c.AgentOverrides[agent]; ok && o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return c.LLMMaxTokens
}

// AgentTemperature resolves a per-agent temperature override, falling
// back to LLMTemperature when unset.
func (c *Config) AgentTemperature(agent string) float64 {
	if o, ok := c.AgentOverrides[agent]; ok && o.Temperature > 0 {
		return o.Temperature
	}
	return c.LLMTemperature
}

// knownAPIKeyEnvVars maps provider name to the environment variable
// holding its API key.
var knownAPIKeyEnvVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"bedrock":   "AWS_BEDROCK_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"tavily":    "TAVILY_API_KEY",
	"newsapi":   "NEWSAPI_API_KEY",
	"sec_edgar": "SEC_EDGAR_API_KEY",
}

func loadAPIKeysFromEnv() map[string]string {
	keys := make(map[string]string, len(knownAPIKeyEnvVars))
	for provider, envVar := range knownAPIKeyEnvVars {
		if v := os.Getenv(envVar); v != "" {
			keys[provider] = v
		}
	}
	return keys
}

// ParseBool is a small env-var helper used by callers (e.g. CLI flag
// defaults) that need a tolerant boolean parse.
func ParseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return v
}
