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
	"regexp"
	"strconv"
	"strings"
)

// Parser offers the extraction helpers every base-specialist agent
// uses to pull structured fields out of an LLM's free-text response,
// tolerant of heading variation and missing sections.
type Parser struct {
	text string
}

// NewParser wraps response for extraction.
func NewParser(response string) *Parser {
	return &Parser{text: response}
}

var headingRE = regexp.MustCompile(`(?im)^#{0,3}\s*([A-Za-z][A-Za-z0-9 /&-]{2,60}):?\s*$`)

// ExtractSection returns the body text following a heading whose text
// contains header (case-insensitive), up to the next heading or
// maxLen bytes, whichever comes first.
func (p *Parser) ExtractSection(header string, maxLen int) string {
	lines := strings.Split(p.text, "\n")
	headerLower := strings.ToLower(header)

	start := -1
	for i, line := range lines {
		if headingRE.MatchString(line) && strings.Contains(strings.ToLower(line), headerLower) {
			start = i + 1
			break
		}
	}
	if start == -1 {
		return ""
	}

	var body []string
	for i := start; i < len(lines); i++ {
		if headingRE.MatchString(lines[i]) {
			break
		}
		body = append(body, lines[i])
	}

	out := strings.TrimSpace(strings.Join(body, "\n"))
	if maxLen > 0 && len(out) > maxLen {
		out = out[:maxLen]
	}
	return out
}

var bulletRE = regexp.MustCompile(`^\s*[-*•]\s+(.+)$`)

// ExtractListItems collects bullet-list items from the section whose
// heading contains sectionKeyword, up to max items, dropping any item
// shorter than minLength bytes.
func (p *Parser) ExtractListItems(sectionKeyword string, max, minLength int) []string {
	section := p.ExtractSection(sectionKeyword, 0)
	if section == "" {
		// fall back to scanning the whole text for bullets near the keyword
		section = p.text
	}

	var items []string
	for _, line := range strings.Split(section, "\n") {
		m := bulletRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := strings.TrimSpace(m[1])
		if len(item) < minLength {
			continue
		}
		items = append(items, item)
		if max > 0 && len(items) >= max {
			break
		}
	}
	return items
}

var scoreRE = regexp.MustCompile(`(?i)score\s*[:=]?\s*(\d{1,3}(?:\.\d+)?)`)

// ExtractScore finds a "<label> score: N" pattern near label and
// returns N, or default if not found or out of [0,100] range.
func (p *Parser) ExtractScore(label string, def float64) float64 {
	labelIdx := strings.Index(strings.ToLower(p.text), strings.ToLower(label))
	search := p.text
	if labelIdx >= 0 {
		end := labelIdx + 200
		if end > len(p.text) {
			end = len(p.text)
		}
		search = p.text[labelIdx:end]
	}

	m := scoreRE.FindStringSubmatch(search)
	if m == nil {
		return def
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 || v > 100 {
		return def
	}
	return v
}

var keywordListRE = regexp.MustCompile(`[,;]\s*`)

// ExtractKeywordList finds the line introduced by keyword (e.g.
// "Technologies:") and splits its comma/semicolon-separated values.
func (p *Parser) ExtractKeywordList(keyword string, max int) []string {
	for _, line := range strings.Split(p.text, "\n") {
		idx := strings.Index(strings.ToLower(line), strings.ToLower(keyword))
		if idx == -1 {
			continue
		}
		rest := line[idx+len(keyword):]
		rest = strings.TrimLeft(rest, ": \t")
		if rest == "" {
			continue
		}
		parts := keywordListRE.Split(rest, -1)
		var out []string
		for _, part := range parts {
			v := strings.TrimSpace(part)
			if v == "" {
				continue
			}
			out = append(out, v)
			if max > 0 && len(out) >= max {
				break
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}
