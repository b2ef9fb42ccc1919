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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the durable backend for the company cache: one row
// per normalised company key, sections and the URL registry stored as
// JSON columns. Never-delete is enforced by StoreSection/
// StoreFullResearch only ever merging into the existing row, never
// replacing it wholesale.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB. Schema
// (company_cache: key PK, company, sections JSONB, url_registry JSONB,
// created_at, updated_at) is assumed migrated separately, following
// the teacher's convention of connectors owning connections, not schema.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) get(ctx context.Context, key string) (*CompanyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT company, sections, url_registry, created_at, updated_at FROM company_cache WHERE key = $1`, key)

	var rec CompanyRecord
	var sectionsRaw, urlsRaw []byte
	err := row.Scan(&rec.Company, &sectionsRaw, &urlsRaw, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache: query company_cache: %w", err)
	}

	rec.Sections = map[string]CachedSection{}
	if len(sectionsRaw) > 0 {
		if err := json.Unmarshal(sectionsRaw, &rec.Sections); err != nil {
			return nil, fmt.Errorf("cache: decode sections: %w", err)
		}
	}
	rec.URLRegistry = map[string]bool{}
	if len(urlsRaw) > 0 {
		if err := json.Unmarshal(urlsRaw, &rec.URLRegistry); err != nil {
			return nil, fmt.Errorf("cache: decode url_registry: %w", err)
		}
	}
	return &rec, nil
}

// HasCompanyData reports whether any record exists for key.
func (s *PostgresStore) HasCompanyData(ctx context.Context, key string) (bool, error) {
	rec, err := s.get(ctx, key)
	return rec != nil, err
}

// GetCompanyData returns the full record for key, or nil if none exists.
func (s *PostgresStore) GetCompanyData(ctx context.Context, key string) (*CompanyRecord, error) {
	return s.get(ctx, key)
}

// upsert merges sections and urls into the existing row for
// (key, company), creating it if absent. Never deletes an existing
// section or URL entry — callers only ever add or overwrite keys
// within the maps they pass.
func (s *PostgresStore) upsert(ctx context.Context, key, company string, sections map[string]CachedSection, urls map[string]bool) error {
	existing, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if existing == nil {
		existing = &CompanyRecord{Company: company, Sections: map[string]CachedSection{}, URLRegistry: map[string]bool{}, CreatedAt: now}
	}
	for name, sec := range sections {
		existing.Sections[name] = sec
	}
	for url, useful := range urls {
		existing.URLRegistry[url] = useful
	}
	existing.UpdatedAt = now

	sectionsJSON, err := json.Marshal(existing.Sections)
	if err != nil {
		return fmt.Errorf("cache: encode sections: %w", err)
	}
	urlsJSON, err := json.Marshal(existing.URLRegistry)
	if err != nil {
		return fmt.Errorf("cache: encode url_registry: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO company_cache (key, company, sections, url_registry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (key) DO UPDATE SET
			sections = $3, url_registry = $4, updated_at = $6`,
		key, company, sectionsJSON, urlsJSON, existing.CreatedAt, existing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("cache: upsert company_cache: %w", err)
	}
	return nil
}

// StoreSection writes a single section, replacing any prior content
// for that section name (per-section replace, never a full-record delete).
func (s *PostgresStore) StoreSection(ctx context.Context, key, company, section, content string, sources []string) error {
	sec := CachedSection{Content: content, Sources: sources, StoredAt: time.Now().UTC()}
	return s.upsert(ctx, key, company, map[string]CachedSection{section: sec}, nil)
}

// StoreFullResearch writes many sections at once.
func (s *PostgresStore) StoreFullResearch(ctx context.Context, key, company string, sections map[string]CachedSection) error {
	return s.upsert(ctx, key, company, sections, nil)
}

// MarkURL records whether url was useful for company, preventing
// future re-fetches of URLs already known to be useless.
func (s *PostgresStore) MarkURL(ctx context.Context, key, company, url string, useful bool) error {
	return s.upsert(ctx, key, company, nil, map[string]bool{url: useful})
}

// Statistics aggregates counts across all cached companies.
func (s *PostgresStore) Statistics(ctx context.Context) (Statistics, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT sections, url_registry FROM company_cache`)
	if err != nil {
		return Statistics{}, fmt.Errorf("cache: query statistics: %w", err)
	}
	defer func() { _ = rows.Close() }()

	stats := Statistics{ByCompleteness: map[string]int{}}
	for rows.Next() {
		var sectionsRaw, urlsRaw []byte
		if err := rows.Scan(&sectionsRaw, &urlsRaw); err != nil {
			return Statistics{}, fmt.Errorf("cache: scan statistics row: %w", err)
		}
		var sections map[string]CachedSection
		_ = json.Unmarshal(sectionsRaw, &sections)
		var urls map[string]bool
		_ = json.Unmarshal(urlsRaw, &urls)

		stats.TotalCompanies++
		stats.TotalSections += len(sections)
		stats.TotalURLs += len(urls)
		level := Completeness(&CompanyRecord{Sections: sections})
		stats.ByCompleteness[string(level)]++
	}
	if err := rows.Err(); err != nil {
		return Statistics{}, fmt.Errorf("cache: iterate statistics: %w", err)
	}
	return stats, nil
}
