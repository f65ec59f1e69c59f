package circulation

import (
	"errors"
	"time"

	"locallibrary/pkg/models"
)

const (
	LoanPeriod       = 14 * 24 * time.Hour
	RenewalProposal  = 21 * 24 * time.Hour
	MaxRenewalWindow = 28 * 24 * time.Hour
)

// DateError is a rejected renewal or return date. Its message is shown to
// the librarian next to the date field.
type DateError struct {
	Message string
}

func (e *DateError) Error() string { return e.Message }

var (
	ErrRenewalInPast  = &DateError{Message: "Invalid date - renewal in past"}
	ErrRenewalTooFar  = &DateError{Message: "Invalid date - renewal more than 4 weeks ahead"}
	ErrReturnInFuture = &DateError{Message: "Invalid date - return in future"}
)

// ValidateRenewalDate accepts candidate when it lies within
// [today, today+4 weeks] and returns it unchanged.
func ValidateRenewalDate(candidate, today time.Time) (time.Time, error) {
	candidate, today = models.Date(candidate), models.Date(today)
	if candidate.Before(today) {
		return time.Time{}, ErrRenewalInPast
	}
	if candidate.After(today.Add(MaxRenewalWindow)) {
		return time.Time{}, ErrRenewalTooFar
	}
	return candidate, nil
}

// ValidateReturnDate accepts any date that is not after today.
func ValidateReturnDate(candidate, today time.Time) (time.Time, error) {
	candidate, today = models.Date(candidate), models.Date(today)
	if candidate.After(today) {
		return time.Time{}, ErrReturnInFuture
	}
	return candidate, nil
}

func ProposedRenewalDate(today time.Time) time.Time {
	return models.Date(today).Add(RenewalProposal)
}

func DefaultReturnDate(today time.Time) time.Time {
	return models.Date(today)
}

func DueDate(borrowed time.Time) time.Time {
	return models.Date(borrowed).Add(LoanPeriod)
}

// IsDateError tells validation failures apart from storage errors.
func IsDateError(err error) bool {
	var de *DateError
	return errors.As(err, &de)
}
