// Package textscan derives descriptive metadata from plain-text sample
// files: the heading line, paragraph and word counts, and bracketed
// citation markers such as [26][27].
package textscan

import (
	"regexp"
	"strconv"
	"strings"
)

var citationRe = regexp.MustCompile(`\[(\d+)\]`)

// Result holds the output of scanning a sample file.
type Result struct {
	Heading    string `json:"heading"`
	Paragraphs int    `json:"paragraphs"`
	Words      int    `json:"words"`
	Citations  []int  `json:"citations"`
}

// Scan extracts heading, paragraph/word counts, and citation markers from
// raw prose. The heading is the first non-empty line; paragraphs are runs
// of non-empty lines separated by blank lines.
func Scan(data []byte) *Result {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")

	return &Result{
		Heading:    firstLine(text),
		Paragraphs: countParagraphs(text),
		Words:      len(strings.Fields(citationRe.ReplaceAllString(text, ""))),
		Citations:  extractCitations(text),
	}
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func countParagraphs(text string) int {
	count := 0
	inParagraph := false
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			inParagraph = false
			continue
		}
		if !inParagraph {
			count++
			inParagraph = true
		}
	}
	return count
}

// extractCitations returns deduplicated citation numbers in order of first
// appearance.
func extractCitations(text string) []int {
	matches := citationRe.FindAllStringSubmatch(text, -1)
	seen := make(map[int]struct{}, len(matches))
	var out []int
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
