// Package compress shrinks long memory content into a short digest.
package compress

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultBudget is the digest size in bytes used when none is given.
	DefaultBudget = 280
	// Marker terminates a digest that had to be cut.
	Marker = "…"
)

// Block is a paragraph or heading section of the original text.
type Block struct {
	Text      string
	StartLine int
	EndLine   int
}

// Blocks splits text on heading lines and blank-line gaps.
func Blocks(text string) []Block {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	var blocks []Block
	var current []string
	startLine := 1

	flush := func(endLine int) {
		if len(current) == 0 {
			return
		}
		t := strings.TrimSpace(strings.Join(current, "\n"))
		if t != "" {
			blocks = append(blocks, Block{Text: t, StartLine: startLine, EndLine: endLine})
		}
		current = nil
	}

	for i, line := range lines {
		lineNum := i + 1
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "#") && len(current) > 0 {
			flush(lineNum - 1)
		}
		if trimmed == "" {
			flush(lineNum - 1)
			continue
		}
		if len(current) == 0 {
			startLine = lineNum
		}
		current = append(current, line)
	}
	flush(len(lines))

	return blocks
}

// LeadSentence returns the first sentence of s, or s itself when it has no
// sentence terminator.
func LeadSentence(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	for i, r := range s {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + utf8.RuneLen(r)
		if end == len(s) || s[end] == ' ' {
			return s[:end]
		}
	}
	return s
}

// Digest reduces text to at most budget bytes by keeping the lead sentence of
// each block in order. Text already within budget is returned unchanged.
func Digest(text string, budget int) string {
	if budget <= 0 {
		budget = DefaultBudget
	}
	text = strings.TrimSpace(text)
	if len(text) <= budget {
		return text
	}

	var b strings.Builder
	for _, blk := range Blocks(text) {
		lead := LeadSentence(blk.Text)
		sep := 0
		if b.Len() > 0 {
			sep = 1
		}
		if b.Len()+sep+len(lead) > budget {
			if b.Len() == 0 {
				return truncate(lead, budget)
			}
			return truncate(b.String(), budget)
		}
		if sep == 1 {
			b.WriteByte('\n')
		}
		b.WriteString(lead)
	}
	return b.String()
}

// truncate cuts s on a rune boundary so the result, marker included, fits in
// budget bytes.
func truncate(s string, budget int) string {
	limit := budget - len(Marker)
	if limit <= 0 {
		return Marker
	}
	if len(s) <= limit {
		return s + Marker
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], " \n") + Marker
}

// Ratio is len(compressed)/len(original), or 1 for empty input.
func Ratio(original, compressed string) float64 {
	if len(original) == 0 {
		return 1
	}
	return float64(len(compressed)) / float64(len(original))
}
