// Package datepolicy decides whether a calendar date is admissible for
// creating, filtering, or cancelling an allocation relative to "today".
//
// Policies are values: they hold the reference day and nothing else, so the
// same inputs always give the same answer.
package datepolicy

import (
	"time"

	id "fleetbook/pkg/domain"
	dErrors "fleetbook/pkg/domain-errors"
)

// InvalidFormatMessage is returned for any date that is not strict YYYY-MM-DD.
const InvalidFormatMessage = "Invalid date format. The date must be in 'YYYY-MM-DD' format."

// Policy evaluates dates against a fixed reference day.
type Policy struct {
	today id.Date
}

// New returns a policy anchored at today.
func New(today id.Date) Policy {
	return Policy{today: today}
}

// ForTime anchors a policy at the calendar day of t in loc.
func ForTime(t time.Time, loc *time.Location) Policy {
	if loc == nil {
		loc = time.UTC
	}
	return New(id.DateOf(t.In(loc)))
}

// Today returns the reference day.
func (p Policy) Today() id.Date { return p.today }

// IsFutureDate reports whether d is strictly after today.
func (p Policy) IsFutureDate(d id.Date) bool {
	return d.After(p.today)
}

// IsPastOrToday reports whether d is today or earlier.
func (p Policy) IsPastOrToday(d id.Date) bool {
	return !d.After(p.today)
}

// IsToday reports whether d is the reference day.
func (p Policy) IsToday(d id.Date) bool {
	return d == p.today
}

// ValidateFormat parses s as strict YYYY-MM-DD. Failures carry CodeInvalidDate.
func ValidateFormat(s string) (id.Date, error) {
	d, err := id.ParseDate(s)
	if err != nil {
		return id.Date{}, dErrors.Wrap(err, dErrors.CodeInvalidDate, InvalidFormatMessage)
	}
	return d, nil
}

// CheckCreation enforces strictly-future dating for new allocations.
func (p Policy) CheckCreation(d id.Date) error {
	switch {
	case d.Before(p.today):
		return dErrors.New(dErrors.CodePastOrTodayDate, "You cannot set the allocation date for past dates.")
	case p.IsToday(d):
		return dErrors.New(dErrors.CodePastOrTodayDate, "You must create the allocation before the allocation date.")
	}
	return nil
}

// CheckDeletion rejects cancelling an allocation on or after its date.
func (p Policy) CheckDeletion(d id.Date) error {
	switch {
	case d.Before(p.today):
		return dErrors.New(dErrors.CodePastDate, "You cannot delete allocations that are in the past.")
	case p.IsToday(d):
		return dErrors.New(dErrors.CodeSameDayDeletion, "You must delete the allocation before the allocation date.")
	}
	return nil
}
