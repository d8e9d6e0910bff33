package generator

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")

// ParseSections 解析模型输出：优先 JSON，其次按行切分。
func ParseSections(raw string) (Sections, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Sections{}, errors.New("model returned empty content")
	}

	candidate := text
	if m := fencedJSON.FindStringSubmatch(text); len(m) == 2 {
		candidate = m[1]
	} else if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		candidate = text[i : j+1]
	}
	var s Sections
	if err := json.Unmarshal([]byte(candidate), &s); err == nil && !s.empty() {
		return s.trimmed(), nil
	}

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	switch n := len(lines); {
	case n == 1:
		s = Sections{Hook: lines[0]}
	case n <= 3:
		s = Sections{Hook: lines[0], Insight: strings.Join(lines[1:n-1], "\n"), CTA: lines[n-1]}
	default:
		end := min(4, n-1)
		s = Sections{
			Hook:     lines[0],
			Insight:  strings.Join(lines[1:end], "\n"),
			Takeaway: strings.Join(lines[end:n-1], "\n"),
			CTA:      lines[n-1],
		}
	}
	return s.trimmed(), nil
}

func (s Sections) trimmed() Sections {
	return Sections{
		Hook:     strings.TrimSpace(s.Hook),
		Insight:  strings.TrimSpace(s.Insight),
		Takeaway: strings.TrimSpace(s.Takeaway),
		CTA:      strings.TrimSpace(s.CTA),
	}
}

// Body joins the non-empty sections with blank lines.
func (s Sections) Body() string {
	var parts []string
	for _, p := range []string{s.Hook, s.Insight, s.Takeaway, s.CTA} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Attribution renders the trailing source list.
func Attribution(urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nSources:")
	for _, u := range urls {
		sb.WriteString("\n• ")
		sb.WriteString(u)
	}
	return sb.String()
}

// Compose builds the final post text.
func Compose(s Sections, urls []string) string {
	return s.Body() + Attribution(urls)
}

// Fit shortens content to at most max characters. The body is cut at a word
// boundary so the attribution survives whenever it fits on its own.
func Fit(s Sections, urls []string, max int) (string, bool) {
	full := Compose(s, urls)
	if max <= 0 || utf8.RuneCountInString(full) <= max {
		return full, false
	}
	attr := Attribution(urls)
	budget := max - utf8.RuneCountInString(attr)
	if budget < 40 {
		return TruncateAtWord(full, max), true
	}
	return TruncateAtWord(s.Body(), budget) + attr, true
}

// TruncateAtWord cuts text to at most max characters, preferring the last word
// boundary, and marks the cut with an ellipsis.
func TruncateAtWord(text string, max int) string {
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	if max <= 1 {
		return string([]rune(text)[:max])
	}
	runes := []rune(text)[:max-1]
	cut := len(runes)
	for i := len(runes) - 1; i > len(runes)/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace) + "…"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
