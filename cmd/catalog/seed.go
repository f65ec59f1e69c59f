package main

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"locallibrary/pkg/accounts"
	"locallibrary/pkg/config"
	"locallibrary/pkg/logger"
	"locallibrary/pkg/models"
)

// seedTestData makes a fresh database usable: a librarian account holding
// the circulation capability and one catalogued book with copies on the
// shelf. Running it again changes nothing.
func seedTestData(ctx context.Context, cfg config.Config) {
	if cfg.LibrarianPassword == "" {
		logger.Logger.Warn("LIBRARIAN_PASSWORD not set, skipping librarian account")
	} else {
		seedLibrarian(ctx, cfg.LibrarianEmail, cfg.LibrarianPassword)
	}

	var author models.Author
	err := db.WithContext(ctx).Where("first_name = ? AND last_name = ?", "John", "Smith").First(&author).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		author = models.Author{FirstName: "John", LastName: "Smith"}
		if err := authors.Create(ctx, &author); err != nil {
			logger.Logger.WithError(err).Error("Failed to create test author")
			return
		}
		logger.Logger.Infof("Created test author: %s", author.String())
	} else if err != nil {
		logger.Logger.WithError(err).Error("Failed to look up test author")
		return
	}

	var language models.Language
	if err := db.WithContext(ctx).Where(models.Language{Name: "English"}).FirstOrCreate(&language).Error; err != nil {
		logger.Logger.WithError(err).Error("Failed to create test language")
		return
	}
	var genre models.Genre
	if err := db.WithContext(ctx).Where(models.Genre{Name: "Fantasy"}).FirstOrCreate(&genre).Error; err != nil {
		logger.Logger.WithError(err).Error("Failed to create test genre")
		return
	}

	var count int64
	if err := db.WithContext(ctx).Model(&models.Book{}).Where("title = ?", "Book Title").Count(&count).Error; err != nil {
		logger.Logger.WithError(err).Error("Failed to look up test book")
		return
	}
	if count > 0 {
		logger.Logger.Info("Catalog test data already present")
		return
	}

	book := models.Book{
		Title:      "Book Title",
		Summary:    "My book summary",
		ISBN:       "ABCDEFG",
		AuthorID:   author.ID,
		LanguageID: language.ID,
		Genres:     []models.Genre{{ID: genre.ID}},
	}
	if err := books.Create(ctx, &book); err != nil {
		logger.Logger.WithError(err).Error("Failed to create test book")
		return
	}
	for _, status := range []models.LoanStatus{models.StatusAvailable, models.StatusAvailable, models.StatusMaintenance} {
		inst := models.BookInstance{BookID: book.ID, Imprint: "Unlikely Imprint, 2016", Status: status}
		if err := db.WithContext(ctx).Omit("Book", "Borrower").Create(&inst).Error; err != nil {
			logger.Logger.WithError(err).Error("Failed to create test book instance")
			return
		}
	}
	logger.Logger.Infof("Created test book: %s", book.Title)
}

func seedLibrarian(ctx context.Context, email, password string) {
	user, err := users.CreateUser(ctx, email, email, password)
	if errors.Is(err, accounts.ErrUserExists) {
		var existing models.User
		if err := db.WithContext(ctx).Where("username = ?", email).First(&existing).Error; err != nil {
			logger.Logger.WithError(err).Error("Failed to look up librarian account")
			return
		}
		user = &existing
	} else if err != nil {
		logger.Logger.WithError(err).Error("Failed to create librarian account")
		return
	} else {
		logger.Logger.Infof("Created librarian account: %s", email)
	}

	if err := db.WithContext(ctx).Model(user).Update("is_staff", true).Error; err != nil {
		logger.Logger.WithError(err).Error("Failed to mark librarian as staff")
	}
	if err := users.Grant(ctx, user.ID, accounts.CapabilityMarkReturned); err != nil {
		logger.Logger.WithError(err).Error("Failed to grant librarian capability")
	}
}
