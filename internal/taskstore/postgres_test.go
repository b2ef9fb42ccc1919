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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestPostgresStore_SaveAndGetTask(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	task := &Task{ID: "task-1", Company: "Acme", Depth: "quick", Status: StatusPending, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(1, 1))
	store := NewPostgresStore(db)
	require.NoError(t, store.SaveTask(context.Background(), task))

	mock.ExpectQuery("SELECT id, company, depth, status, result, error, created_at, updated_at, completed_at FROM tasks").
		WithArgs("task-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "company", "depth", "status", "result", "error", "created_at", "updated_at", "completed_at"}).
			AddRow("task-1", "Acme", "quick", string(StatusPending), []byte(`{}`), "", now, now, nil))

	got, err := store.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Acme", got.Company)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetTask_NotFoundReturnsNil(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, company, depth, status, result, error, created_at, updated_at, completed_at FROM tasks").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "company", "depth", "status", "result", "error", "created_at", "updated_at", "completed_at"}))

	store := NewPostgresStore(db)
	got, err := store.GetTask(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPostgresStore_UpdateTask_NoRowsIsError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE tasks SET").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresStore(db)
	err = store.UpdateTask(context.Background(), &Task{ID: "missing", Status: StatusFailed, UpdatedAt: time.Now()})
	require.Error(t, err)
}

func TestPostgresStore_CountTasks_WithStatusFilter(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM tasks WHERE status = \\$1").
		WithArgs(string(StatusCompleted)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	store := NewPostgresStore(db)
	n, err := store.CountTasks(context.Background(), StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestPostgresStore_CleanupOldTasks_ReturnsAffectedCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM tasks WHERE created_at").WillReturnResult(sqlmock.NewResult(0, 7))

	store := NewPostgresStore(db)
	n, err := store.CleanupOldTasks(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestPostgresStore_SaveAndGetBatch(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	batch := &Batch{ID: "batch-1", Companies: []string{"Acme", "Globex"}, Status: StatusRunning, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec("INSERT INTO batches").WillReturnResult(sqlmock.NewResult(1, 1))
	store := NewPostgresStore(db)
	require.NoError(t, store.SaveBatch(context.Background(), batch))

	mock.ExpectQuery("SELECT id, companies, status, task_ids, summary, created_at, updated_at FROM batches").
		WithArgs("batch-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "companies", "status", "task_ids", "summary", "created_at", "updated_at"}).
			AddRow("batch-1", []byte(`["Acme","Globex"]`), string(StatusRunning), []byte(`[]`), []byte(`{}`), now, now))

	got, err := store.GetBatch(context.Background(), "batch-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, []string{"Acme", "Globex"}, got.Companies)
}
