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

package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is the Store implementation backing async task/batch
// tracking, following the same database/sql + lib/pq connection
// pattern as connectors/postgres/connector.go: the caller owns the
// *sql.DB, this type only issues statements against it.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB. Schema (tasks:
// id PK, company, depth, status, result JSONB, error, created_at,
// updated_at, completed_at; batches: id PK, companies JSONB, status,
// task_ids JSONB, summary JSONB, created_at, updated_at) is assumed
// migrated separately.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) SaveTask(ctx context.Context, t *Task) error {
	resultJSON, err := json.Marshal(t.Result)
	if err != nil {
		return fmt.Errorf("taskstore: encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, company, depth, status, result, error, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Company, t.Depth, t.Status, resultJSON, t.Error, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("taskstore: save_task(%s): %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, company, depth, status, result, error, created_at, updated_at, completed_at
		FROM tasks WHERE id = $1`, id)

	var t Task
	var resultRaw []byte
	err := row.Scan(&t.ID, &t.Company, &t.Depth, &t.Status, &resultRaw, &t.Error, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: get_task(%s): %w", id, err)
	}
	if len(resultRaw) > 0 {
		if err := json.Unmarshal(resultRaw, &t.Result); err != nil {
			return nil, fmt.Errorf("taskstore: decode result: %w", err)
		}
	}
	return &t, nil
}

func (s *PostgresStore) UpdateTask(ctx context.Context, t *Task) error {
	resultJSON, err := json.Marshal(t.Result)
	if err != nil {
		return fmt.Errorf("taskstore: encode result: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = $2, result = $3, error = $4, updated_at = $5, completed_at = $6
		WHERE id = $1`, t.ID, t.Status, resultJSON, t.Error, t.UpdatedAt, t.CompletedAt)
	if err != nil {
		return fmt.Errorf("taskstore: update_task(%s): %w", t.ID, err)
	}
	return requireRowsAffected(res, "update_task", t.ID)
}

func (s *PostgresStore) DeleteTask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("taskstore: delete_task(%s): %w", id, err)
	}
	return requireRowsAffected(res, "delete_task", id)
}

func (s *PostgresStore) ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error) {
	query := `SELECT id, company, depth, status, result, error, created_at, updated_at, completed_at FROM tasks WHERE 1=1`
	var args []interface{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Company != "" {
		args = append(args, filter.Company)
		query += fmt.Sprintf(" AND company = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("taskstore: list_tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*Task
	for rows.Next() {
		var t Task
		var resultRaw []byte
		if err := rows.Scan(&t.ID, &t.Company, &t.Depth, &t.Status, &resultRaw, &t.Error, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("taskstore: scan task row: %w", err)
		}
		if len(resultRaw) > 0 {
			_ = json.Unmarshal(resultRaw, &t.Result)
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

func (s *PostgresStore) CountTasks(ctx context.Context, status Status) (int, error) {
	query := `SELECT count(*) FROM tasks`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("taskstore: count_tasks: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) SaveBatch(ctx context.Context, b *Batch) error {
	companiesJSON, _ := json.Marshal(b.Companies)
	taskIDsJSON, _ := json.Marshal(b.TaskIDs)
	summaryJSON, err := json.Marshal(b.Summary)
	if err != nil {
		return fmt.Errorf("taskstore: encode batch summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO batches (id, companies, status, task_ids, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, companiesJSON, b.Status, taskIDsJSON, summaryJSON, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("taskstore: save_batch(%s): %w", b.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*Batch, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, companies, status, task_ids, summary, created_at, updated_at FROM batches WHERE id = $1`, id)

	var b Batch
	var companiesRaw, taskIDsRaw, summaryRaw []byte
	err := row.Scan(&b.ID, &companiesRaw, &b.Status, &taskIDsRaw, &summaryRaw, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("taskstore: get_batch(%s): %w", id, err)
	}
	_ = json.Unmarshal(companiesRaw, &b.Companies)
	_ = json.Unmarshal(taskIDsRaw, &b.TaskIDs)
	if len(summaryRaw) > 0 {
		_ = json.Unmarshal(summaryRaw, &b.Summary)
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBatch(ctx context.Context, b *Batch) error {
	taskIDsJSON, _ := json.Marshal(b.TaskIDs)
	summaryJSON, err := json.Marshal(b.Summary)
	if err != nil {
		return fmt.Errorf("taskstore: encode batch summary: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE batches SET status = $2, task_ids = $3, summary = $4, updated_at = $5 WHERE id = $1`,
		b.ID, b.Status, taskIDsJSON, summaryJSON, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("taskstore: update_batch(%s): %w", b.ID, err)
	}
	return requireRowsAffected(res, "update_batch", b.ID)
}

func (s *PostgresStore) CleanupOldTasks(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("taskstore: cleanup_old_tasks: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("taskstore: cleanup_old_tasks rows affected: %w", err)
	}
	return int(affected), nil
}

func requireRowsAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("taskstore: %s(%s) rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("taskstore: %s(%s): %w", op, id, sql.ErrNoRows)
	}
	return nil
}
