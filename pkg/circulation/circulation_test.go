package circulation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"locallibrary/pkg/catalog"
	"locallibrary/pkg/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		panic("failed to connect test database")
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

var fixedNow = time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

func newTestService(db *gorm.DB) *Service {
	s := NewService(db)
	s.now = func() time.Time { return fixedNow }
	return s
}

type fixture struct {
	book     models.Book
	borrower models.User
	other    models.User
}

func seedBook(t *testing.T, db *gorm.DB) fixture {
	author := models.Author{FirstName: "John", LastName: "Smith"}
	require.NoError(t, db.Create(&author).Error)
	language := models.Language{Name: "English"}
	require.NoError(t, db.Create(&language).Error)

	f := fixture{
		book:     models.Book{Title: "Book Title", AuthorID: author.ID, LanguageID: language.ID},
		borrower: models.User{Username: "testuser1", PasswordHash: "x"},
		other:    models.User{Username: "testuser2", PasswordHash: "x"},
	}
	require.NoError(t, db.Omit("Author", "Language").Create(&f.book).Error)
	require.NoError(t, db.Create(&f.borrower).Error)
	require.NoError(t, db.Create(&f.other).Error)
	return f
}

func addInstance(t *testing.T, db *gorm.DB, bookID uint, status models.LoanStatus) models.BookInstance {
	inst := models.BookInstance{BookID: bookID, Imprint: "Unlikely Imprint, 2016", Status: status}
	require.NoError(t, db.Create(&inst).Error)
	return inst
}

func TestValidateRenewalDate(t *testing.T) {
	today := models.Date(fixedNow)

	tests := []struct {
		name     string
		days     int
		expected error
	}{
		{name: "yesterday", days: -1, expected: ErrRenewalInPast},
		{name: "today", days: 0},
		{name: "three weeks", days: 21},
		{name: "four weeks", days: 28},
		{name: "four weeks and a day", days: 29, expected: ErrRenewalTooFar},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateRenewalDate(today.AddDate(0, 0, tt.days), fixedNow)
			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
				assert.True(t, IsDateError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, today.AddDate(0, 0, tt.days), got)
		})
	}
}

func TestValidateReturnDate(t *testing.T) {
	today := models.Date(fixedNow)

	_, err := ValidateReturnDate(today.AddDate(0, 0, 1), fixedNow)
	assert.ErrorIs(t, err, ErrReturnInFuture)

	for _, days := range []int{0, -1, -365} {
		got, err := ValidateReturnDate(today.AddDate(0, 0, days), fixedNow)
		require.NoError(t, err)
		assert.Equal(t, today.AddDate(0, 0, days), got)
	}
}

func TestDefaultDates(t *testing.T) {
	assert.Equal(t, time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC), ProposedRenewalDate(fixedNow))
	assert.Equal(t, time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), DefaultReturnDate(fixedNow))
	assert.Equal(t, time.Date(2024, 5, 24, 0, 0, 0, 0, time.UTC), DueDate(fixedNow))
}

func TestCanFire(t *testing.T) {
	assert.True(t, CanFire(EventBorrow, models.StatusAvailable))
	assert.False(t, CanFire(EventBorrow, models.StatusOnLoan))
	assert.False(t, CanFire(EventBorrow, models.StatusMaintenance))
	assert.False(t, CanFire(EventBorrow, models.StatusReserved))

	for _, s := range []models.LoanStatus{models.StatusMaintenance, models.StatusOnLoan, models.StatusAvailable, models.StatusReserved} {
		assert.True(t, CanFire(EventReturn, s), string(s))
	}
	assert.False(t, CanFire(Event("renew"), models.StatusOnLoan))
}

func TestBorrow(t *testing.T) {
	db := setupTestDB(t)
	f := seedBook(t, db)
	svc := newTestService(db)
	ctx := context.Background()
	inst := addInstance(t, db, f.book.ID, models.StatusAvailable)

	require.NoError(t, svc.Borrow(ctx, f.book.ID, inst.ID, f.borrower.ID))

	loaded, err := svc.Instance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOnLoan, loaded.Status)
	require.NotNil(t, loaded.Borrower)
	assert.Equal(t, "testuser1", loaded.Borrower.Username)
	assert.Equal(t, "2024-05-24", models.FormatDate(loaded.DueBack))

	assert.ErrorIs(t, svc.Borrow(ctx, f.book.ID, inst.ID, f.other.ID), ErrNotAvailable)
}

func TestBorrowRejectsUnavailableCopies(t *testing.T) {
	db := setupTestDB(t)
	f := seedBook(t, db)
	svc := newTestService(db)
	ctx := context.Background()

	for _, status := range []models.LoanStatus{models.StatusMaintenance, models.StatusReserved, models.StatusOnLoan} {
		inst := addInstance(t, db, f.book.ID, status)
		assert.ErrorIs(t, svc.Borrow(ctx, f.book.ID, inst.ID, f.borrower.ID), ErrNotAvailable)

		loaded, err := svc.Instance(ctx, inst.ID)
		require.NoError(t, err)
		assert.Equal(t, status, loaded.Status)
		assert.Nil(t, loaded.BorrowerID)
	}
}

func TestBorrowUnknownInstance(t *testing.T) {
	db := setupTestDB(t)
	f := seedBook(t, db)
	svc := newTestService(db)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Borrow(ctx, f.book.ID, "00000000-0000-0000-0000-000000000000", f.borrower.ID), ErrNotFound)

	inst := addInstance(t, db, f.book.ID, models.StatusAvailable)
	assert.ErrorIs(t, svc.Borrow(ctx, f.book.ID+1, inst.ID, f.borrower.ID), ErrNotFound)
}

func TestConcurrentBorrowSingleWinner(t *testing.T) {
	db := setupTestDB(t)
	f := seedBook(t, db)
	svc := newTestService(db)
	inst := addInstance(t, db, f.book.ID, models.StatusAvailable)

	users := make([]models.User, 8)
	for i := range users {
		users[i] = models.User{Username: fmt.Sprintf("reader%d", i), PasswordHash: "x"}
		require.NoError(t, db.Create(&users[i]).Error)
	}

	var wins, refusals int32
	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			switch err := svc.Borrow(context.Background(), f.book.ID, inst.ID, userID); err {
			case nil:
				atomic.AddInt32(&wins, 1)
			case ErrNotAvailable:
				atomic.AddInt32(&refusals, 1)
			}
		}(u.ID)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(len(users)-1), refusals)
}

func TestRenew(t *testing.T) {
	db := setupTestDB(t)
	f := seedBook(t, db)
	svc := newTestService(db)
	ctx := context.Background()
	inst := addInstance(t, db, f.book.ID, models.StatusAvailable)
	require.NoError(t, svc.Borrow(ctx, f.book.ID, inst.ID, f.borrower.ID))

	today := models.Date(fixedNow)
	err := svc.Renew(ctx, inst.ID, today.AddDate(0, 0, 29))
	assert.ErrorIs(t, err, ErrRenewalTooFar)

	require.NoError(t, svc.Renew(ctx, inst.ID, ProposedRenewalDate(fixedNow)))
	loaded, err := svc.Instance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-31", models.FormatDate(loaded.DueBack))
	assert.Equal(t, models.StatusOnLoan, loaded.Status)
	assert.Equal(t, f.borrower.ID, *loaded.BorrowerID)

	assert.ErrorIs(t, svc.Renew(ctx, "00000000-0000-0000-0000-000000000000", today), ErrNotFound)
}

func TestReturn(t *testing.T) {
	db := setupTestDB(t)
	f := seedBook(t, db)
	svc := newTestService(db)
	ctx := context.Background()
	inst := addInstance(t, db, f.book.ID, models.StatusAvailable)
	require.NoError(t, svc.Borrow(ctx, f.book.ID, inst.ID, f.borrower.ID))

	today := models.Date(fixedNow)
	assert.ErrorIs(t, svc.Return(ctx, inst.ID, today.AddDate(0, 0, 1)), ErrReturnInFuture)

	require.NoError(t, svc.Return(ctx, inst.ID, today))
	loaded, err := svc.Instance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, loaded.Status)
	assert.Nil(t, loaded.BorrowerID)
	assert.Equal(t, "2024-05-24", models.FormatDate(loaded.DueBack))

	// returning twice leaves the copy available
	require.NoError(t, svc.Return(ctx, inst.ID, today))
	loaded, err = svc.Instance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, loaded.Status)

	// an available copy still gets its return date checked
	assert.ErrorIs(t, svc.Return(ctx, inst.ID, today.AddDate(0, 0, 1)), ErrReturnInFuture)
	loaded, err = svc.Instance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, loaded.Status)
	assert.Nil(t, loaded.BorrowerID)
	assert.Equal(t, "2024-05-24", models.FormatDate(loaded.DueBack))

	require.NoError(t, svc.Borrow(ctx, f.book.ID, inst.ID, f.other.ID))
}

func TestReturnFromMaintenance(t *testing.T) {
	db := setupTestDB(t)
	f := seedBook(t, db)
	svc := newTestService(db)
	ctx := context.Background()
	inst := addInstance(t, db, f.book.ID, models.StatusMaintenance)

	require.NoError(t, svc.Return(ctx, inst.ID, models.Date(fixedNow)))
	loaded, err := svc.Instance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAvailable, loaded.Status)

	assert.ErrorIs(t, svc.Return(ctx, "00000000-0000-0000-0000-000000000000", models.Date(fixedNow)), ErrNotFound)
}

func TestLoanListings(t *testing.T) {
	db := setupTestDB(t)
	f := seedBook(t, db)
	svc := newTestService(db)
	ctx := context.Background()

	due := models.Date(fixedNow)
	for i := 0; i < 12; i++ {
		d := due.AddDate(0, 0, 12-i)
		borrower := f.borrower.ID
		if i%3 == 0 {
			borrower = f.other.ID
		}
		inst := models.BookInstance{BookID: f.book.ID, Status: models.StatusOnLoan, DueBack: &d, BorrowerID: &borrower}
		require.NoError(t, db.Create(&inst).Error)
	}
	// available copies with a stale borrower are not loans
	stale := f.borrower.ID
	require.NoError(t, db.Create(&models.BookInstance{BookID: f.book.ID, Status: models.StatusAvailable, BorrowerID: &stale}).Error)

	mine, err := svc.LoansByBorrower(ctx, f.borrower.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(8), mine.TotalElements)
	assert.False(t, mine.IsPaginated)
	for i := 1; i < len(mine.Items); i++ {
		assert.False(t, mine.Items[i].DueBack.Before(*mine.Items[i-1].DueBack))
	}
	for _, inst := range mine.Items {
		assert.Equal(t, f.borrower.ID, *inst.BorrowerID)
		assert.Equal(t, "Book Title", inst.Book.Title)
	}

	all, err := svc.AllLoans(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(12), all.TotalElements)
	assert.True(t, all.IsPaginated)
	assert.Len(t, all.Items, catalog.PageSize)
	require.NotNil(t, all.Items[0].Borrower)

	_, err = svc.AllLoans(ctx, 3)
	assert.ErrorIs(t, err, catalog.ErrPageOutOfRange)

	theirs, err := svc.LoansByBorrower(ctx, f.other.ID, 1)
	require.NoError(t, err)
	assert.Len(t, theirs.Items, 4)
}
