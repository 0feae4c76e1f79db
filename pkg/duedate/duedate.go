// Package duedate holds the calendar arithmetic shared by every loan view.
//
// All values are calendar dates: times are truncated to midnight UTC before
// any comparison, so the hour a loan was recorded never shifts a due date.
package duedate

import "time"

// OverdueMarker is the presentation value for any loan past its due date.
const OverdueMarker = -1

// Date truncates t to its calendar date in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DueDate returns loanDate plus days calendar days.
func DueDate(loanDate time.Time, days int) time.Time {
	return Date(loanDate).AddDate(0, 0, days)
}

// DaysBetween counts whole calendar days from a to b (negative when b precedes a).
func DaysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}

// RemainingDays is (due - today) + 1. The due date itself counts as one
// remaining day; the result is negative once the loan is overdue.
func RemainingDays(due, today time.Time) int {
	return DaysBetween(today, due) + 1
}

// Overdue reports whether today is past the due date.
func Overdue(due, today time.Time) bool {
	return Date(today).After(Date(due))
}

// Display clamps a remaining-days value for presentation.
func Display(remaining int) int {
	if remaining < 0 {
		return OverdueMarker
	}
	return remaining
}
