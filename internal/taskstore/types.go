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

// Package taskstore implements the pluggable, backend-agnostic task
// store spec.md §6 requires for async API execution: single-company
// research tasks and multi-company batches, both trackable by status
// and prunable by age.
package taskstore

import (
	"context"
	"time"
)

// Status is a task or batch's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is one async run_research invocation.
type Task struct {
	ID          string                 `json:"id"`
	Company     string                 `json:"company"`
	Depth       string                 `json:"depth"`
	Status      Status                 `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// Batch is one research_batch invocation spanning many companies.
type Batch struct {
	ID         string                 `json:"id"`
	Companies  []string               `json:"companies"`
	Status     Status                 `json:"status"`
	TaskIDs    []string               `json:"task_ids,omitempty"`
	Summary    map[string]interface{} `json:"summary,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// ListFilter narrows ListTasks; zero values mean "no filter" on that
// dimension. Limit <= 0 means unbounded.
type ListFilter struct {
	Status  Status
	Company string
	Limit   int
	Offset  int
}

// Store is the pluggable task-store contract. PostgresStore is the
// only implementation here, but callers (the CLI, the API shim)
// depend on this interface, not the concrete type.
type Store interface {
	SaveTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error
	ListTasks(ctx context.Context, filter ListFilter) ([]*Task, error)
	CountTasks(ctx context.Context, status Status) (int, error)

	SaveBatch(ctx context.Context, b *Batch) error
	GetBatch(ctx context.Context, id string) (*Batch, error)
	UpdateBatch(ctx context.Context, b *Batch) error

	CleanupOldTasks(ctx context.Context, olderThan time.Duration) (int, error)
}
