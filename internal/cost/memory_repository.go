// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package cost

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is a process-local Repository used when no database is
// configured, so the research engine's cost ledger can run standalone for
// local demos without requiring Postgres.
type MemoryRepository struct {
	mu sync.RWMutex

	budgets    map[string]*Budget
	records    []UsageRecord
	aggregates map[string]*UsageAggregate
	alerts     []BudgetAlert
	nextUsageID int64
	nextAlertID int64
}

// NewMemoryRepository creates a new in-memory cost repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		budgets:    make(map[string]*Budget),
		aggregates: make(map[string]*UsageAggregate),
	}
}

func (m *MemoryRepository) CreateBudget(ctx context.Context, budget *Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.budgets[budget.ID]; exists {
		return ErrBudgetExists
	}
	cp := *budget
	m.budgets[budget.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetBudget(ctx context.Context, id string) (*Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.budgets[id]
	if !ok {
		return nil, ErrBudgetNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *MemoryRepository) UpdateBudget(ctx context.Context, budget *Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.budgets[budget.ID]; !exists {
		return ErrBudgetNotFound
	}
	cp := *budget
	m.budgets[budget.ID] = &cp
	return nil
}

func (m *MemoryRepository) DeleteBudget(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.budgets[id]; !exists {
		return ErrBudgetNotFound
	}
	delete(m.budgets, id)
	return nil
}

func (m *MemoryRepository) ListBudgets(ctx context.Context, opts ListBudgetsOptions) ([]Budget, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Budget
	for _, b := range m.budgets {
		if opts.Scope != "" && b.Scope != opts.Scope {
			continue
		}
		if opts.ScopeID != "" && b.ScopeID != opts.ScopeID {
			continue
		}
		if opts.Enabled != nil && b.Enabled != *opts.Enabled {
			continue
		}
		matched = append(matched, *b)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end], total, nil
}

func (m *MemoryRepository) GetBudgetsForScope(ctx context.Context, scope BudgetScope, scopeID string) ([]Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Budget
	for _, b := range m.budgets {
		if !b.Enabled || b.Scope != scope {
			continue
		}
		if b.ScopeID != "" && b.ScopeID != scopeID {
			continue
		}
		result = append(result, *b)
	}
	return result, nil
}

func (m *MemoryRepository) SaveUsage(ctx context.Context, record *UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextUsageID++
	record.ID = m.nextUsageID
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	m.records = append(m.records, *record)
	return nil
}

func (m *MemoryRepository) GetUsageForPeriod(ctx context.Context, scope BudgetScope, scopeID string, periodStart time.Time) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, r := range m.records {
		if r.Timestamp.Before(periodStart) {
			continue
		}
		switch scope {
		case ScopeProvider:
			if r.Provider != scopeID {
				continue
			}
		case ScopeCompany:
			if r.Company != scopeID {
				continue
			}
		case ScopeGlobal:
			// no filter
		}
		total += r.CostUSD
	}
	return total, nil
}

func (m *MemoryRepository) GetUsageSummary(ctx context.Context, opts UsageQueryOptions) (*UsageSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := &UsageSummary{Period: opts.Period}
	for _, r := range m.records {
		if !matchesUsageFilter(r, opts) {
			continue
		}
		summary.TotalCostUSD += r.CostUSD
		summary.TotalTokensIn += r.TokensIn
		summary.TotalTokensOut += r.TokensOut
		summary.TotalRequests++
		if summary.PeriodStart.IsZero() || r.Timestamp.Before(summary.PeriodStart) {
			summary.PeriodStart = r.Timestamp
		}
		if r.Timestamp.After(summary.PeriodEnd) {
			summary.PeriodEnd = r.Timestamp
		}
	}
	if summary.TotalRequests > 0 {
		summary.AverageCostPerRequest = summary.TotalCostUSD / float64(summary.TotalRequests)
	}
	return summary, nil
}

func (m *MemoryRepository) GetUsageBreakdown(ctx context.Context, groupBy string, opts UsageQueryOptions) (*UsageBreakdown, error) {
	if groupBy != "provider" && groupBy != "model" && groupBy != "company" {
		return nil, ErrInvalidGroupBy
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make(map[string]*UsageBreakdownItem)
	var totalCost float64
	for _, r := range m.records {
		if !matchesUsageFilter(r, opts) {
			continue
		}
		var key string
		switch groupBy {
		case "provider":
			key = r.Provider
		case "model":
			key = r.Model
		case "company":
			key = r.Company
		}
		if key == "" {
			key = "unknown"
		}
		item, ok := items[key]
		if !ok {
			item = &UsageBreakdownItem{GroupBy: groupBy, GroupValue: key}
			items[key] = item
		}
		item.CostUSD += r.CostUSD
		item.TokensIn += r.TokensIn
		item.TokensOut += r.TokensOut
		item.RequestCount++
		totalCost += r.CostUSD
	}

	breakdown := &UsageBreakdown{
		GroupBy:      groupBy,
		TotalCostUSD: totalCost,
		StartTime:    opts.StartTime,
		EndTime:      opts.EndTime,
		Period:       opts.Period,
	}
	for _, item := range items {
		if totalCost > 0 {
			item.Percentage = (item.CostUSD / totalCost) * 100
		}
		breakdown.Items = append(breakdown.Items, *item)
	}
	sort.Slice(breakdown.Items, func(i, j int) bool { return breakdown.Items[i].CostUSD > breakdown.Items[j].CostUSD })

	return breakdown, nil
}

func (m *MemoryRepository) ListUsageRecords(ctx context.Context, opts UsageQueryOptions) ([]UsageRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []UsageRecord
	for _, r := range m.records {
		if matchesUsageFilter(r, opts) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.After(matched[j].Timestamp) })

	total := len(matched)
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	return matched[offset:end], total, nil
}

func matchesUsageFilter(r UsageRecord, opts UsageQueryOptions) bool {
	if opts.Company != "" && r.Company != opts.Company {
		return false
	}
	if opts.Provider != "" && r.Provider != opts.Provider {
		return false
	}
	if opts.Model != "" && r.Model != opts.Model {
		return false
	}
	if !opts.StartTime.IsZero() && r.Timestamp.Before(opts.StartTime) {
		return false
	}
	if !opts.EndTime.IsZero() && !r.Timestamp.Before(opts.EndTime) {
		return false
	}
	return true
}

func (m *MemoryRepository) UpdateAggregate(ctx context.Context, agg *UsageAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := agg.Scope + ":" + agg.ScopeID + ":" + string(agg.Period) + ":" + agg.PeriodStart.String()
	existing, ok := m.aggregates[key]
	if !ok {
		cp := *agg
		cp.UpdatedAt = time.Now().UTC()
		m.aggregates[key] = &cp
		return nil
	}
	existing.TotalCostUSD += agg.TotalCostUSD
	existing.TotalTokensIn += agg.TotalTokensIn
	existing.TotalTokensOut += agg.TotalTokensOut
	existing.RequestCount += agg.RequestCount
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepository) GetAggregate(ctx context.Context, scope, scopeID string, period AggregatePeriod, periodStart time.Time) (*UsageAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := scope + ":" + scopeID + ":" + string(period) + ":" + periodStart.String()
	agg, ok := m.aggregates[key]
	if !ok {
		return nil, nil
	}
	cp := *agg
	return &cp, nil
}

func (m *MemoryRepository) ListAggregates(ctx context.Context, scope, scopeID string, period AggregatePeriod, startTime, endTime time.Time) ([]UsageAggregate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []UsageAggregate
	for _, agg := range m.aggregates {
		if agg.Scope != scope || agg.ScopeID != scopeID || agg.Period != period {
			continue
		}
		if agg.PeriodStart.Before(startTime) || !agg.PeriodStart.Before(endTime) {
			continue
		}
		result = append(result, *agg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PeriodStart.Before(result[j].PeriodStart) })
	return result, nil
}

func (m *MemoryRepository) SaveAlert(ctx context.Context, alert *BudgetAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextAlertID++
	alert.ID = m.nextAlertID
	alert.CreatedAt = time.Now().UTC()
	m.alerts = append(m.alerts, *alert)
	return nil
}

func (m *MemoryRepository) GetUnacknowledgedAlerts(ctx context.Context, budgetID string) ([]BudgetAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []BudgetAlert
	for _, a := range m.alerts {
		if a.BudgetID == budgetID && !a.Acknowledged {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *MemoryRepository) AcknowledgeAlert(ctx context.Context, alertID int64, acknowledgedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.alerts {
		if m.alerts[i].ID == alertID {
			m.alerts[i].Acknowledged = true
			m.alerts[i].AcknowledgedBy = acknowledgedBy
			now := time.Now().UTC()
			m.alerts[i].AcknowledgedAt = &now
			return nil
		}
	}
	return ErrInvalidInput
}

func (m *MemoryRepository) GetRecentAlerts(ctx context.Context, budgetID string, limit int) ([]BudgetAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}
	var result []BudgetAlert
	for i := len(m.alerts) - 1; i >= 0 && len(result) < limit; i-- {
		if m.alerts[i].BudgetID == budgetID {
			result = append(result, m.alerts[i])
		}
	}
	return result, nil
}

// Ping always succeeds; there is no backing connection to check.
func (m *MemoryRepository) Ping(ctx context.Context) error {
	return nil
}
