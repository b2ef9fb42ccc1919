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

package router

import (
	"context"
	"time"

	"researchengine/internal/obslog"
	"researchengine/internal/providers/base"
	"researchengine/internal/providers/financial"
	"researchengine/internal/providers/news"
	"researchengine/internal/providers/search"
)

// defaultBaseURLs gives each capability tier's provider a sane default
// endpoint when the config doesn't override it, matching the
// well-known API each provider's client already targets.
var defaultBaseURLs = map[base.Capability]string{
	base.CapabilitySearch:    "https://api.tavily.com/search",
	base.CapabilityNews:      "https://newsapi.org/v2/everything",
	base.CapabilityFinancial: "https://data.sec.gov/api/xbrl",
}

// BootstrapConfig carries the pieces BootstrapFromEnv needs from the
// caller's already-loaded configuration, mirroring the shape of
// internal/providers/llm.BootstrapConfig for the non-LLM tiers.
type BootstrapConfig struct {
	APIKeys map[string]string // provider name -> key, e.g. "tavily" -> key
	Log     *obslog.Logger
	Timeout time.Duration
}

// BootstrapFromEnv builds a Router with one provider registered per
// capability tier for which an API key is present, following the same
// "only wire what's configured" idiom as
// internal/providers/llm.BootstrapFromEnv.
func BootstrapFromEnv(cfg BootstrapConfig) *Router {
	log := cfg.Log
	if log == nil {
		log = obslog.New("router")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	r := New(log)

	registerIfConfigured(r, cfg, base.CapabilitySearch, "tavily", func() base.Provider { return search.New(nil) })
	registerIfConfigured(r, cfg, base.CapabilityNews, "newsapi", func() base.Provider { return news.New(nil) })
	registerIfConfigured(r, cfg, base.CapabilityFinancial, "sec_edgar", func() base.Provider { return financial.New(nil) })

	return r
}

func registerIfConfigured(r *Router, cfg BootstrapConfig, capability base.Capability, keyName string, build func() base.Provider) {
	apiKey, ok := cfg.APIKeys[keyName]
	if !ok || apiKey == "" {
		return
	}
	provider := build()
	providerCfg := &base.ProviderConfig{
		Name:        keyName,
		BaseURL:     defaultBaseURLs[capability],
		Credentials: map[string]string{"api_key": apiKey},
		Timeout:     cfg.Timeout,
	}
	if err := provider.Connect(context.Background(), providerCfg); err != nil {
		r.log.Warn("router", "", "provider bootstrap failed, skipping", map[string]interface{}{
			"capability": string(capability), "provider": keyName, "error": err.Error(),
		})
		return
	}
	r.Register(capability, provider, 0, 0)
}
