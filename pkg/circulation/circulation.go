package circulation

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"locallibrary/pkg/catalog"
	"locallibrary/pkg/models"
)

var (
	ErrNotFound     = errors.New("circulation: book instance not found")
	ErrNotAvailable = errors.New("circulation: book instance not available")
)

type Event string

const (
	EventBorrow Event = "borrow"
	EventReturn Event = "return"
)

// transitions lists, per event, the states an instance may be in and the
// state it moves to. Renewal only touches the due date and is not listed.
// maintenance and reserved are set by librarians directly; no event enters them.
var transitions = map[Event]struct {
	from []models.LoanStatus
	to   models.LoanStatus
}{
	EventBorrow: {
		from: []models.LoanStatus{models.StatusAvailable},
		to:   models.StatusOnLoan,
	},
	EventReturn: {
		from: []models.LoanStatus{models.StatusOnLoan, models.StatusAvailable, models.StatusReserved, models.StatusMaintenance},
		to:   models.StatusAvailable,
	},
}

// CanFire reports whether event is allowed from status.
func CanFire(event Event, status models.LoanStatus) bool {
	t, ok := transitions[event]
	if !ok {
		return false
	}
	for _, s := range t.from {
		if s == status {
			return true
		}
	}
	return false
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

func (s *Service) Today() time.Time {
	return models.Date(s.now())
}

func (s *Service) Instance(ctx context.Context, id string) (*models.BookInstance, error) {
	var inst models.BookInstance
	err := s.db.WithContext(ctx).Preload("Book").Preload("Borrower").
		Where("id = ?", id).First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// Borrow lends instanceID of bookID to borrowerID. The status check and the
// status change are one conditional UPDATE, so of several concurrent
// borrowers of the same copy exactly one succeeds; the rest get
// ErrNotAvailable.
func (s *Service) Borrow(ctx context.Context, bookID uint, instanceID string, borrowerID uint) error {
	t := transitions[EventBorrow]
	due := DueDate(s.now())

	res := s.db.WithContext(ctx).Model(&models.BookInstance{}).
		Where("id = ? AND book_id = ? AND status IN ?", instanceID, bookID, t.from).
		Updates(map[string]interface{}{
			"status":      t.to,
			"due_back":    due,
			"borrower_id": borrowerID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var n int64
	if err := s.db.WithContext(ctx).Model(&models.BookInstance{}).
		Where("id = ? AND book_id = ?", instanceID, bookID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrNotAvailable
}

// Renew moves the due date after checking it against the renewal window.
// Status and borrower are left alone.
func (s *Service) Renew(ctx context.Context, instanceID string, date time.Time) error {
	date, err := ValidateRenewalDate(date, s.now())
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.BookInstance{}).
		Where("id = ?", instanceID).
		Update("due_back", date)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Return marks the copy available and clears the borrower. The due date is
// kept; the next Borrow overwrites it.
func (s *Service) Return(ctx context.Context, instanceID string, date time.Time) error {
	if _, err := ValidateReturnDate(date, s.now()); err != nil {
		return err
	}
	t := transitions[EventReturn]
	res := s.db.WithContext(ctx).Model(&models.BookInstance{}).
		Where("id = ? AND status IN ?", instanceID, t.from).
		Updates(map[string]interface{}{
			"status":      t.to,
			"borrower_id": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LoansByBorrower lists the copies borrowerID currently has on loan, soonest
// due first.
func (s *Service) LoansByBorrower(ctx context.Context, borrowerID uint, page int) (catalog.Page[models.BookInstance], error) {
	q := s.db.WithContext(ctx).Model(&models.BookInstance{}).
		Where("borrower_id = ? AND status = ?", borrowerID, models.StatusOnLoan)
	return catalog.Paginate[models.BookInstance](q, page, "due_back ASC, id", "Book")
}

func (s *Service) AllLoans(ctx context.Context, page int) (catalog.Page[models.BookInstance], error) {
	q := s.db.WithContext(ctx).Model(&models.BookInstance{}).
		Where("status = ?", models.StatusOnLoan)
	return catalog.Paginate[models.BookInstance](q, page, "due_back ASC, id", "Book", "Borrower")
}
