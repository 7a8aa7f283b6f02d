package extract

import (
	"regexp"
	"sort"

	"github.com/amirbrooks/tasker-today/internal/model"
)

type priorityAlias struct {
	alias string
	value model.Priority
	re    *regexp.Regexp
}

var priorityTable = compilePriorities([]priorityAlias{
	{alias: "high", value: model.PriorityHigh},
	{alias: "urgent", value: model.PriorityHigh},
	{alias: "important", value: model.PriorityHigh},
	{alias: "high priority", value: model.PriorityHigh},
	{alias: "高", value: model.PriorityHigh},
	{alias: "高优先", value: model.PriorityHigh},
	{alias: "medium", value: model.PriorityMedium},
	{alias: "normal", value: model.PriorityMedium},
	{alias: "medium priority", value: model.PriorityMedium},
	{alias: "normal priority", value: model.PriorityMedium},
	{alias: "中", value: model.PriorityMedium},
	{alias: "low", value: model.PriorityLow},
	{alias: "low priority", value: model.PriorityLow},
	{alias: "低", value: model.PriorityLow},
	{alias: "低优先", value: model.PriorityLow},
})

func compilePriorities(table []priorityAlias) []priorityAlias {
	for i := range table {
		table[i].re = aliasPattern(table[i].alias)
	}
	return table
}

type priorityMatch struct {
	span
	value model.Priority
}

// ExtractPriority strips every priority keyword from text. When keywords of
// different priorities appear together the most severe one wins; with no
// keyword the priority is medium.
func ExtractPriority(text string) (model.Priority, string) {
	var matches []priorityMatch
	for _, a := range priorityTable {
		for _, loc := range a.re.FindAllStringIndex(text, -1) {
			matches = append(matches, priorityMatch{span: span{loc[0], loc[1]}, value: a.value})
		}
	}
	if len(matches) == 0 {
		return model.PriorityMedium, text
	}
	sort.SliceStable(matches, func(i, j int) bool { return leftmostLongest(matches[i].span, matches[j].span) })

	found := model.Priority("")
	var spans []span
	end := 0
	for _, m := range matches {
		// "高优先" already covers the "高" inside it.
		if m.start < end {
			continue
		}
		spans = append(spans, m.span)
		end = m.end
		if m.value.Severity() > found.Severity() {
			found = m.value
		}
	}
	return found, removeSpans(text, spans)
}
