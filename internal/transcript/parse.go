package transcript

import (
	"encoding/json"
	"regexp"
	"strings"
)

// AnalysisSections are the expected sections of a deal analysis document.
var AnalysisSections = []string{
	"opportunity_snapshot",
	"problem_impact",
	"current_desired_state",
	"buying_dynamics",
	"solution_fit",
	"proof_next_actions",
}

// SectionMissing marks a section the uploaded document did not provide.
const SectionMissing = "Unknown / Not provided"

var sectionPatterns = map[string]*regexp.Regexp{
	"opportunity_snapshot":  regexp.MustCompile(`(?i)opportunity\s*snapshot|company\s*overview`),
	"problem_impact":        regexp.MustCompile(`(?i)problem\s*(?:&|and)?\s*impact|business\s*impact`),
	"current_desired_state": regexp.MustCompile(`(?i)current\s*(?:&|and)?\s*desired\s*state|current\s*state`),
	"buying_dynamics":       regexp.MustCompile(`(?i)buying\s*dynamics|stakeholders|decision\s*process`),
	"solution_fit":          regexp.MustCompile(`(?i)solution\s*fit|product\s*fit`),
	"proof_next_actions":    regexp.MustCompile(`(?i)proof\s*(?:&|and)?\s*next\s*(?:actions|steps)|next\s*steps`),
}

var (
	headerRe = regexp.MustCompile(`^#{1,3}\s+(.+)$`)
	fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?\\s*```")
)

// ExtractClientName extracts the client name from a transcript filename
// like "acme-2024-01-notes.md": the segment before the first dash. Files
// without a .md extension or a dash yield "".
func ExtractClientName(filename string) string {
	if !strings.HasSuffix(strings.ToLower(filename), ".md") {
		return ""
	}
	name, rest, found := strings.Cut(filename, "-")
	if !found || rest == "" || name == "" {
		return ""
	}
	return name
}

// ParseAnalysisDoc parses an uploaded deal analysis into its section map.
// JSON documents (optionally fenced in a markdown code block) are tried
// first; otherwise sections are extracted by markdown headers. Missing
// sections get the SectionMissing placeholder.
func ParseAnalysisDoc(content string) map[string]string {
	if sections, ok := tryParseJSON(content); ok {
		return sections
	}
	return parseMarkdownSections(content)
}

func tryParseJSON(text string) (map[string]string, bool) {
	candidate := strings.TrimSpace(text)
	if m := fencedRe.FindStringSubmatch(text); m != nil {
		candidate = m[1]
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		return nil, false
	}

	// Tolerate a nested {"deal_analysis": {...}} wrapper.
	if nested, ok := raw["deal_analysis"]; ok {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(nested, &inner); err == nil {
			raw = inner
		}
	}

	found := false
	for _, section := range AnalysisSections {
		if _, ok := raw[section]; ok {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}

	result := make(map[string]string, len(AnalysisSections))
	for _, section := range AnalysisSections {
		value, ok := raw[section]
		if !ok {
			result[section] = SectionMissing
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err == nil {
			result[section] = s
		} else {
			result[section] = string(value)
		}
	}
	return result, true
}

func parseMarkdownSections(text string) map[string]string {
	lines := strings.Split(text, "\n")

	type headerPos struct {
		line    int
		section string
	}
	var headers []headerPos

	for i, line := range lines {
		m := headerRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		for section, pattern := range sectionPatterns {
			if pattern.MatchString(m[1]) {
				headers = append(headers, headerPos{line: i, section: section})
				break
			}
		}
	}

	result := make(map[string]string, len(AnalysisSections))
	for idx, h := range headers {
		end := len(lines)
		if idx+1 < len(headers) {
			end = headers[idx+1].line
		}
		content := strings.TrimSpace(strings.Join(lines[h.line+1:end], "\n"))
		if content != "" {
			result[h.section] = content
		}
	}

	for _, section := range AnalysisSections {
		if _, ok := result[section]; !ok {
			result[section] = SectionMissing
		}
	}
	return result
}

// MissingSections lists the sections a parsed document did not provide,
// in declaration order.
func MissingSections(sections map[string]string) []string {
	var missing []string
	for _, section := range AnalysisSections {
		if sections[section] == SectionMissing {
			missing = append(missing, section)
		}
	}
	return missing
}
