package extract

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

var numericDatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`),
	regexp.MustCompile(`\b\d{4}/\d{1,2}/\d{1,2}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
}

// numericDateLayouts are tried in order for every numeric token. Day-first is
// tried before month-first, so 5/6/2026 reads as 5 June.
var numericDateLayouts = []string{
	"2006-1-2",
	"2006/1/2",
	"2/1/2006",
	"1/2/2006",
	"1/2/06",
}

type relativeAlias struct {
	alias  string
	offset int
	re     *regexp.Regexp
}

var relativeTable = compileRelatives([]relativeAlias{
	{alias: "today", offset: 0},
	{alias: "今天", offset: 0},
	{alias: "tomorrow", offset: 1},
	{alias: "明天", offset: 1},
	{alias: "day after tomorrow", offset: 2},
	{alias: "后天", offset: 2},
	{alias: "next week", offset: 7},
	{alias: "下周", offset: 7},
})

func compileRelatives(table []relativeAlias) []relativeAlias {
	for i := range table {
		table[i].re = aliasPattern(table[i].alias)
	}
	return table
}

const englishWeekdays = `monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun`

var (
	nextWeekdayEN = regexp.MustCompile(`(?i)\bnext\s+(` + englishWeekdays + `)\b`)
	nextWeekdayZH = regexp.MustCompile(`下(?:周|星期)([一二三四五六日天])`)
	weekdayEN     = regexp.MustCompile(`(?i)\b(` + englishWeekdays + `)\b`)
	weekdayZH     = regexp.MustCompile(`(?:周|星期)([一二三四五六日天])`)
)

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"mon":       time.Monday,
	"tuesday":   time.Tuesday,
	"tue":       time.Tuesday,
	"tues":      time.Tuesday,
	"wednesday": time.Wednesday,
	"wed":       time.Wednesday,
	"thursday":  time.Thursday,
	"thu":       time.Thursday,
	"thur":      time.Thursday,
	"thurs":     time.Thursday,
	"friday":    time.Friday,
	"fri":       time.Friday,
	"saturday":  time.Saturday,
	"sat":       time.Saturday,
	"sunday":    time.Sunday,
	"sun":       time.Sunday,
	"一":         time.Monday,
	"二":         time.Tuesday,
	"三":         time.Wednesday,
	"四":         time.Thursday,
	"五":         time.Friday,
	"六":         time.Saturday,
	"日":         time.Sunday,
	"天":         time.Sunday,
}

// ExtractDueDate finds the first date expression in text, trying numeric
// dates, relative keywords, "next <weekday>" and bare weekdays in that order.
// The matched token is removed from the returned text. Dates are midnight in
// now's location.
func ExtractDueDate(text string, now time.Time) (*time.Time, string) {
	today := StartOfDay(now)

	if d, s, ok := findNumericDate(text, today.Location()); ok {
		return &d, removeSpans(text, []span{s})
	}
	if offset, s, ok := findRelative(text); ok {
		d := today.AddDate(0, 0, offset)
		return &d, removeSpans(text, []span{s})
	}
	if wd, s, ok := findWeekday(text, nextWeekdayEN, nextWeekdayZH); ok {
		d := today.AddDate(0, 0, daysUntil(today.Weekday(), wd, true))
		return &d, removeSpans(text, []span{s})
	}
	if wd, s, ok := findWeekday(text, weekdayEN, weekdayZH); ok {
		d := today.AddDate(0, 0, daysUntil(today.Weekday(), wd, false))
		return &d, removeSpans(text, []span{s})
	}
	return nil, text
}

// ParseNumericDate reads a single numeric date token using the layout list.
func ParseNumericDate(token string, loc *time.Location) (time.Time, bool) {
	for _, layout := range numericDateLayouts {
		if d, err := time.ParseInLocation(layout, token, loc); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func findNumericDate(text string, loc *time.Location) (time.Time, span, bool) {
	for _, re := range numericDatePatterns {
		for _, m := range re.FindAllStringIndex(text, -1) {
			if d, ok := ParseNumericDate(text[m[0]:m[1]], loc); ok {
				return d, span{m[0], m[1]}, true
			}
		}
	}
	return time.Time{}, span{}, false
}

func findRelative(text string) (int, span, bool) {
	var best span
	offset := 0
	found := false
	for _, a := range relativeTable {
		for _, m := range a.re.FindAllStringIndex(text, -1) {
			s := span{m[0], m[1]}
			// 下周一 is next Monday; leave it for the weekday stage.
			if a.alias == "下周" && followedByWeekday(text, s.end) {
				continue
			}
			if !found || leftmostLongest(s, best) {
				best, offset, found = s, a.offset, true
			}
		}
	}
	return offset, best, found
}

func followedByWeekday(text string, pos int) bool {
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return strings.ContainsRune("一二三四五六日天", r)
}

func findWeekday(text string, patterns ...*regexp.Regexp) (time.Weekday, span, bool) {
	var best span
	var wd time.Weekday
	found := false
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			s := span{m[0], m[1]}
			name := strings.ToLower(text[m[2]:m[3]])
			day, ok := weekdayNames[name]
			if !ok {
				continue
			}
			if !found || leftmostLongest(s, best) {
				best, wd, found = s, day, true
			}
		}
	}
	return wd, best, found
}

// daysUntil counts days from today to the target weekday. A strict lookup
// never returns 0 and rolls a same-day match forward a full week.
func daysUntil(today, target time.Weekday, strict bool) int {
	days := (int(target) - int(today) + 7) % 7
	if strict && days == 0 {
		days = 7
	}
	return days
}
