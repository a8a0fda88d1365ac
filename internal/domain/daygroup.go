package domain

import "time"

const dayKeyFormat = "2006-01-02"

// DayGroup is one calendar day's slice of a thread, used at render time.
type DayGroup struct {
	Key      string // YYYY-MM-DD
	Day      time.Time
	Messages []Message
}

// GroupByDay buckets messages by calendar day, preserving the order of the
// input within each bucket and ordering the buckets by first appearance.
// It is a pure function: the input is never mutated and repeated calls with
// the same input produce identical groups. Callers group at render time only;
// the sorted flat thread stays the canonical representation.
func GroupByDay(messages []Message) []DayGroup {
	var groups []DayGroup
	index := make(map[string]int)

	for _, m := range messages {
		key := m.SentAt.Format(dayKeyFormat)
		i, ok := index[key]
		if !ok {
			day, _ := time.ParseInLocation(dayKeyFormat, key, m.SentAt.Location())
			groups = append(groups, DayGroup{Key: key, Day: day})
			i = len(groups) - 1
			index[key] = i
		}
		groups[i].Messages = append(groups[i].Messages, m)
	}

	return groups
}

// DayLabel renders a day header relative to now: "Today", "Yesterday", or a
// full "Monday, January 2" date for anything older.
func DayLabel(day, now time.Time) string {
	y1, m1, d1 := day.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return "Today"
	}

	y2, m2, d2 = now.AddDate(0, 0, -1).Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return "Yesterday"
	}

	return day.Format("Monday, January 2")
}
