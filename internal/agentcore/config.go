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

package agentcore

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RosterFile is the on-disk shape of the specialist agent roster,
// adapted from the teacher's Kubernetes-style apiVersion/kind config
// format but scoped to one domain (company research) instead of the
// teacher's per-domain template directory.
type RosterFile struct {
	APIVersion string       `yaml:"apiVersion"`
	Kind       string       `yaml:"kind"`
	Metadata   RosterMeta   `yaml:"metadata"`
	Agents     []AgentSpec  `yaml:"agents"`
}

// RosterMeta identifies the roster document.
type RosterMeta struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// AgentSpec configures one specialist's LLM call shape; PromptFile
// points at a template asset loaded separately (kept out of YAML so
// prompts can be long-form markdown).
type AgentSpec struct {
	Name            string  `yaml:"name"`
	PromptFile      string  `yaml:"prompt_file"`
	MaxTokens       int     `yaml:"max_tokens"`
	Temperature     float64 `yaml:"temperature"`
	MaxSources      int     `yaml:"max_sources"`
	ContentTruncate int     `yaml:"content_truncate"`
}

// LoadRoster parses a roster YAML file from disk.
func LoadRoster(path string) (*RosterFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	return ParseRoster(data)
}

// ParseRoster parses roster YAML from bytes.
func ParseRoster(data []byte) (*RosterFile, error) {
	var r RosterFile
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if err := ValidateRoster(&r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ValidateRoster checks required fields are present.
func ValidateRoster(r *RosterFile) error {
	if r.Metadata.Name == "" {
		return fmt.Errorf("roster: metadata.name is required")
	}
	if len(r.Agents) == 0 {
		return fmt.Errorf("roster: at least one agent is required")
	}
	seen := make(map[string]bool, len(r.Agents))
	for i, a := range r.Agents {
		if a.Name == "" {
			return fmt.Errorf("roster: agents[%d].name is required", i)
		}
		if seen[a.Name] {
			return fmt.Errorf("roster: duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
		if a.MaxTokens <= 0 {
			return fmt.Errorf("roster: agents[%d] (%s): max_tokens must be positive", i, a.Name)
		}
	}
	return nil
}

// Get returns the AgentSpec named name, or false if absent.
func (r *RosterFile) Get(name string) (AgentSpec, bool) {
	for _, a := range r.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return AgentSpec{}, false
}
