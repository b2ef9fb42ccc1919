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

// Package router implements the provider router: a single facade in
// front of the LLM, search, news, and financial provider tiers that
// applies per-provider daily quota checks before dispatch and falls back
// to the next-priority provider on 429/5xx/timeout/quota-exhausted
// errors. It is the consolidated successor of the teacher's
// LLM-only router, generalized across all four capability tiers.
package router

import (
	"context"
	"fmt"
	"sync"
	"time"

	"researchengine/internal/cost"
	"researchengine/internal/obslog"
	"researchengine/internal/providers/base"
	"researchengine/internal/providers/llm"
)

// entry pairs a capability provider with its routing priority (lower
// runs first) and daily quota.
type entry struct {
	provider base.Provider
	priority int
	quota    int
}

// Router dispatches Fetch calls to search/news/financial providers by
// priority with quota-aware fallback. LLM completions are routed
// separately (internal/providers/llm.Router, decorated by
// internal/cost.CostTrackingRouter); this facade only covers the
// search/news/financial tiers, recording their usage through the same
// cost ledger when one is wired.
type Router struct {
	mu    sync.Mutex
	pools map[base.Capability][]entry
	usage map[string]*dailyCounter

	ledger *cost.Service
	log    *obslog.Logger
}

type dailyCounter struct {
	day   string
	count int
}

// New creates an empty Router. Use Register to add tier providers and
// WithCostLedger to wire the cost ledger.
func New(log *obslog.Logger) *Router {
	if log == nil {
		log = obslog.New("router")
	}
	return &Router{
		pools: make(map[base.Capability][]entry),
		usage: make(map[string]*dailyCounter),
		log:   log,
	}
}

// WithCostLedger wires the cost/budget service used to record
// non-LLM provider calls (LLM usage is recorded by the llm router
// itself).
func (r *Router) WithCostLedger(svc *cost.Service) *Router {
	r.ledger = svc
	return r
}

// Register adds a provider to a capability tier's fallback chain.
// priority orders providers within a tier (lower runs first); quota is
// the max successful Fetch calls per UTC calendar day for this
// provider, 0 = unbounded.
func (r *Router) Register(capability base.Capability, provider base.Provider, priority, quota int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pool := r.pools[capability]
	pool = append(pool, entry{provider: provider, priority: priority, quota: quota})
	for i := len(pool) - 1; i > 0 && pool[i].priority < pool[i-1].priority; i-- {
		pool[i], pool[i-1] = pool[i-1], pool[i]
	}
	r.pools[capability] = pool
}

// Fetch dispatches req to the first available, quota-permitted
// provider in capability's priority chain, falling back to the next on
// retryable failure.
func (r *Router) Fetch(ctx context.Context, capability base.Capability, req *base.Request) (*base.Response, error) {
	r.mu.Lock()
	pool := append([]entry(nil), r.pools[capability]...)
	r.mu.Unlock()

	if len(pool) == 0 {
		return nil, fmt.Errorf("router: no providers registered for capability %q", capability)
	}

	var lastErr error
	for _, e := range pool {
		if e.quota > 0 && !r.allow(e.provider.Name(), e.quota) {
			r.log.Warn(string(capability), "", "provider quota exhausted, trying next", map[string]interface{}{"provider": e.provider.Name()})
			continue
		}

		resp, err := e.provider.Fetch(ctx, req)
		if err == nil {
			r.recordUsage(ctx, capability, e.provider.Name())
			return resp, nil
		}

		lastErr = err
		var pErr *base.ProviderError
		if !asProviderError(err, &pErr) || !pErr.Retryable {
			return nil, err
		}
		r.log.Warn(string(capability), "", "provider failed, falling back", map[string]interface{}{
			"provider": e.provider.Name(), "error": err.Error(),
		})
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("router: all providers for capability %q exhausted quota", capability)
	}
	return nil, lastErr
}

func asProviderError(err error, target **base.ProviderError) bool {
	pe, ok := err.(*base.ProviderError)
	if ok {
		*target = pe
	}
	return ok
}

func (r *Router) allow(name string, quota int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	today := time.Now().UTC().Format("2006-01-02")
	c, ok := r.usage[name]
	if !ok || c.day != today {
		c = &dailyCounter{day: today}
		r.usage[name] = c
	}
	return c.count < quota
}

func (r *Router) recordUsage(ctx context.Context, capability base.Capability, name string) {
	r.mu.Lock()
	today := time.Now().UTC().Format("2006-01-02")
	c, ok := r.usage[name]
	if !ok || c.day != today {
		c = &dailyCounter{day: today}
		r.usage[name] = c
	}
	c.count++
	r.mu.Unlock()

	if r.ledger == nil {
		return
	}
	go func() {
		record := &cost.UsageRecord{
			RequestID:   fmt.Sprintf("%s-%d", name, time.Now().UnixNano()),
			Timestamp:   time.Now().UTC(),
			Company:     llm.CompanyFromContext(ctx),
			Provider:    name,
			RequestType: string(capability),
		}
		if err := r.ledger.RecordUsage(context.Background(), record); err != nil {
			r.log.Warn(string(capability), "", "failed to record provider usage", map[string]interface{}{"error": err.Error()})
		}
	}()
}

// ProviderStatus reports the tier-by-tier health used by CLI/API
// status surfaces.
func (r *Router) ProviderStatus(ctx context.Context) map[base.Capability][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := make(map[base.Capability][]string)
	for capability, pool := range r.pools {
		for _, e := range pool {
			status[capability] = append(status[capability], e.provider.Name())
		}
	}
	return status
}
