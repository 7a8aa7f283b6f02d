// Package extract turns a free-form English or Chinese sentence into a task
// name, a priority and an optional due date.
//
// Extraction runs in a fixed order: priority keywords first, then date tokens,
// then name cleanup. Each stage collects the spans it recognises and rebuilds
// the leftover text once, so later stages only see what earlier stages left.
package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/amirbrooks/tasker-today/internal/model"
)

type Parsed struct {
	Name     string
	Priority model.Priority
	Due      *time.Time
}

// DueString formats the due date for storage, or "" when there is none.
func (p Parsed) DueString() string {
	if p.Due == nil {
		return ""
	}
	return p.Due.Format(model.DateLayout)
}

// Parse extracts priority, due date and name from text. Relative dates are
// resolved against the calendar day of now.
func Parse(text string, now time.Time) (Parsed, error) {
	if strings.TrimSpace(text) == "" {
		return Parsed{}, model.NewParseError(model.CodeEmptyInput, "input is empty; cannot parse task")
	}
	priority, leftover := ExtractPriority(text)
	due, leftover := ExtractDueDate(leftover, now)
	name := Clean(leftover)
	if name == "" {
		return Parsed{}, model.NewParseError(model.CodeNoName, "failed to extract a task name; please provide a clearer description")
	}
	return Parsed{Name: name, Priority: priority, Due: due}, nil
}

// Validate checks a parsed result before a task is built from it.
func Validate(p Parsed, now time.Time) error {
	if strings.TrimSpace(p.Name) == "" {
		return model.NewValidationError(model.CodeEmptyName, "task name cannot be empty")
	}
	if p.Due != nil && p.Due.Before(StartOfDay(now)) {
		return model.NewValidationError(model.CodeDueInPast, "due date %s is in the past; please provide a future date", p.DueString())
	}
	return nil
}

var (
	punctRe = regexp.MustCompile(`[,，.。!！?？]`)
	spaceRe = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// Clean drops sentence punctuation, collapses whitespace runs and trims.
func Clean(text string) string {
	s := punctRe.ReplaceAllString(text, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// span is a half-open byte range of recognised text.
type span struct {
	start, end int
}

func (s span) len() int { return s.end - s.start }

// removeSpans rebuilds text without the given spans. Spans may arrive in any
// order and may overlap.
func removeSpans(text string, spans []span) string {
	if len(spans) == 0 {
		return text
	}
	sorted := append([]span(nil), spans...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })
	var b strings.Builder
	pos := 0
	for _, s := range sorted {
		if s.start > pos {
			b.WriteString(text[pos:s.start])
		}
		if s.end > pos {
			pos = s.end
		}
	}
	if pos < len(text) {
		b.WriteString(text[pos:])
	}
	return b.String()
}

// aliasPattern compiles a keyword into a matcher. ASCII keywords match
// case-insensitively on word boundaries and tolerate any run of spaces between
// words; other keywords match as literal substrings.
func aliasPattern(alias string) *regexp.Regexp {
	if !isASCII(alias) {
		return regexp.MustCompile(regexp.QuoteMeta(alias))
	}
	words := strings.Fields(alias)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)\b` + strings.Join(words, `\s+`) + `\b`)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// leftmostLongest picks the earliest match, preferring the longer one when two
// start at the same position.
func leftmostLongest(a, b span) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	return a.len() > b.len()
}
