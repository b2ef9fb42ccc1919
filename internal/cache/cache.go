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
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
)

// Backend is the durable storage contract the Cache drives. The only
// implementation today is PostgresStore, but the interface keeps the
// Cache's locking and gap-detection logic independent of the backend.
type Backend interface {
	HasCompanyData(ctx context.Context, key string) (bool, error)
	GetCompanyData(ctx context.Context, key string) (*CompanyRecord, error)
	StoreSection(ctx context.Context, key, company, section, content string, sources []string) error
	StoreFullResearch(ctx context.Context, key, company string, sections map[string]CachedSection) error
	MarkURL(ctx context.Context, key, company, url string, useful bool) error
	Statistics(ctx context.Context) (Statistics, error)
}

// Cache is the company-keyed research cache: never-delete, per-section
// merge, a URL registry, and a per-company lock serialising writes
// while reads stay lock-free (spec.md §4.7).
type Cache struct {
	backend   Backend
	existence *existenceCache
	locks     sync.Map // normalised key -> *sync.Mutex
}

// New builds a Cache over backend. redisClient may be nil, in which
// case HasCompanyData always falls through to the backend.
func New(backend Backend, redisClient *redis.Client) *Cache {
	return &Cache{backend: backend, existence: newExistenceCache(redisClient)}
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	m, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// HasCompanyData reports whether any cached data exists for company,
// consulting the Redis existence cache before the durable backend.
func (c *Cache) HasCompanyData(ctx context.Context, company string) (bool, error) {
	key := NormalizeKey(company)
	if known, exists := c.existence.get(ctx, key); known {
		return exists, nil
	}
	exists, err := c.backend.HasCompanyData(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache: has_company_data(%s): %w", company, err)
	}
	c.existence.set(ctx, key, exists)
	return exists, nil
}

// GetCompanyData returns the full cached record for company, or nil
// if none exists. Reads are lock-free: a concurrent writer may be
// mid-merge, but each section's content is only ever replaced
// atomically by the backend's upsert, never partially written.
func (c *Cache) GetCompanyData(ctx context.Context, company string) (*CompanyRecord, error) {
	rec, err := c.backend.GetCompanyData(ctx, NormalizeKey(company))
	if err != nil {
		return nil, fmt.Errorf("cache: get_company_data(%s): %w", company, err)
	}
	return rec, nil
}

// IdentifyGaps returns the required sections missing from company's
// cached record (all of them, if no record exists yet).
func (c *Cache) IdentifyGaps(ctx context.Context, company string) ([]string, error) {
	rec, err := c.GetCompanyData(ctx, company)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return append([]string(nil), requiredSections...), nil
	}
	return IdentifyGaps(rec), nil
}

// StoreSection writes one section under a per-company lock, then
// marks the company as existing in the existence cache so the next
// HasCompanyData call observes the write.
func (c *Cache) StoreSection(ctx context.Context, company, section, content string, sources []string) error {
	key := NormalizeKey(company)
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := c.backend.StoreSection(ctx, key, company, section, content, sources); err != nil {
		return fmt.Errorf("cache: store_section(%s, %s): %w", company, section, err)
	}
	c.existence.set(ctx, key, true)
	return nil
}

// StoreFullResearch writes many sections at once under one lock
// acquisition, avoiding lock churn versus calling StoreSection in a loop.
func (c *Cache) StoreFullResearch(ctx context.Context, company string, sections map[string]CachedSection) error {
	key := NormalizeKey(company)
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := c.backend.StoreFullResearch(ctx, key, company, sections); err != nil {
		return fmt.Errorf("cache: store_full_research(%s): %w", company, err)
	}
	c.existence.set(ctx, key, true)
	return nil
}

// MarkURL records a URL as useful or useless for company, so the
// researcher's provider fan-out can skip known-useless URLs on future runs.
func (c *Cache) MarkURL(ctx context.Context, company, url string, useful bool) error {
	key := NormalizeKey(company)
	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if err := c.backend.MarkURL(ctx, key, company, url, useful); err != nil {
		return fmt.Errorf("cache: mark_url(%s, %s): %w", company, url, err)
	}
	return nil
}

// ShouldResearch decides whether fresh research is warranted for
// company (optionally scoped to one section), and why.
func (c *Cache) ShouldResearch(ctx context.Context, company, section string) (bool, string, error) {
	rec, err := c.GetCompanyData(ctx, company)
	if err != nil {
		return false, "", err
	}
	if rec == nil {
		return true, "no cached data for company", nil
	}
	if section != "" {
		sec, ok := rec.Sections[section]
		if !ok || sec.Content == "" {
			return true, fmt.Sprintf("section %q not yet cached", section), nil
		}
		return false, fmt.Sprintf("section %q already cached", section), nil
	}
	gaps := IdentifyGaps(rec)
	if len(gaps) > 0 {
		return true, fmt.Sprintf("missing sections: %v", gaps), nil
	}
	return false, "cached data is complete", nil
}

// GetStatistics summarises the cache's contents.
func (c *Cache) GetStatistics(ctx context.Context) (Statistics, error) {
	stats, err := c.backend.Statistics(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("cache: get_statistics: %w", err)
	}
	return stats, nil
}
