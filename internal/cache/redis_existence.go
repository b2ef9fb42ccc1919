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
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// existenceTTL bounds how long a HasCompanyData answer is trusted
// before falling back to the durable store, matching the router's
// news-cache idiom (spec.md §4.5 "30 minute TTL") applied here to
// existence checks instead of provider responses.
const existenceTTL = 30 * time.Minute

// existenceCache is a read-through Redis layer in front of a Backend's
// HasCompanyData, avoiding a Postgres round trip when Cache.HasCompanyData
// is asked about a company it has answered for recently. ShouldResearch
// and GetCompanyData do not consult it.
type existenceCache struct {
	client *redis.Client
}

func newExistenceCache(client *redis.Client) *existenceCache {
	return &existenceCache{client: client}
}

func (e *existenceCache) get(ctx context.Context, key string) (known bool, exists bool) {
	if e == nil || e.client == nil {
		return false, false
	}
	val, err := e.client.Get(ctx, existenceRedisKey(key)).Result()
	if errors.Is(err, redis.Nil) || err != nil {
		return false, false
	}
	return true, val == "1"
}

func (e *existenceCache) set(ctx context.Context, key string, exists bool) {
	if e == nil || e.client == nil {
		return
	}
	val := "0"
	if exists {
		val = "1"
	}
	_ = e.client.Set(ctx, existenceRedisKey(key), val, existenceTTL).Err()
}

func existenceRedisKey(key string) string {
	return "research_cache:exists:" + key
}
