package database

import "time"

// currentStreak считает серию чтения по календарным датам (UTC): подряд
// идущие даты с хотя бы одним прочитанным днем. Серия не рвется, пока
// сегодняшнее чтение еще впереди: последнее чтение вчера дает живую серию.
func currentStreak(dates []time.Time, now time.Time) int {
	if len(dates) == 0 {
		return 0
	}

	read := make(map[time.Time]bool, len(dates))
	for _, d := range dates {
		read[dayOf(d)] = true
	}

	cursor := dayOf(now)
	if !read[cursor] {
		cursor = cursor.AddDate(0, 0, -1)
		if !read[cursor] {
			return 0
		}
	}

	streak := 0
	for read[cursor] {
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}
	return streak
}

// dayOf нормализует момент к календарной дате в UTC.
func dayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
