package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"locallibrary/pkg/models"
	"locallibrary/pkg/validation"
)

const MessageInvalidChoice = "Select a valid choice. That choice is not one of the available choices."

type BookRepository struct {
	store[models.Book]
}

func NewBookRepository(db *gorm.DB) *BookRepository {
	return &BookRepository{store[models.Book]{
		db:           db,
		entity:       "Book",
		dependent:    "book instance(s)",
		order:        "title, id",
		listPreloads: []string{"Author"},
		detail: func(q *gorm.DB) *gorm.DB {
			return q.Preload("Author").Preload("Language").
				Preload("Genres", func(db *gorm.DB) *gorm.DB { return db.Order("name, id") }).
				Preload("Instances", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") })
		},
		references: countWhere(&models.BookInstance{}, "book_id"),
	}}
}

// Create inserts the book together with its genre links. book.Genres only
// needs the IDs filled in.
func (r *BookRepository) Create(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		genres, err := resolveReferences(tx, book)
		if err != nil {
			return err
		}
		book.Genres = genres
		return tx.Omit("Genres.*", "Author", "Language", "Instances").Create(book).Error
	})
}

func (r *BookRepository) Update(ctx context.Context, book *models.Book) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		genres, err := resolveReferences(tx, book)
		if err != nil {
			return err
		}
		if err := update(tx, book); err != nil {
			return err
		}
		if err := tx.Model(book).Association("Genres").Replace(genres); err != nil {
			return err
		}
		book.Genres = genres
		return nil
	})
}

func (r *BookRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book models.Book
		if err := tx.First(&book, id).Error; err != nil {
			return notFound(err)
		}
		n, err := r.references(tx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return &InUseError{Entity: r.entity, Dependent: r.dependent, Count: n}
		}
		if err := tx.Model(&book).Association("Genres").Clear(); err != nil {
			return err
		}
		return tx.Delete(&book).Error
	})
}

// resolveReferences checks author, language and genres exist and returns the
// full genre rows. Unknown references come back as field errors.
func resolveReferences(tx *gorm.DB, book *models.Book) ([]models.Genre, error) {
	errs := validation.New()

	if err := exists(tx, &models.Author{}, book.AuthorID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		errs.Add("author", MessageInvalidChoice)
	}
	if err := exists(tx, &models.Language{}, book.LanguageID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		errs.Add("language", MessageInvalidChoice)
	}

	ids := make([]uint, 0, len(book.Genres))
	seen := make(map[uint]bool, len(book.Genres))
	for _, g := range book.Genres {
		if !seen[g.ID] {
			seen[g.ID] = true
			ids = append(ids, g.ID)
		}
	}
	genres := make([]models.Genre, 0, len(ids))
	if len(ids) > 0 {
		if err := tx.Where("id IN ?", ids).Order("name, id").Find(&genres).Error; err != nil {
			return nil, err
		}
		if len(genres) != len(ids) {
			errs.Add("genre", MessageInvalidChoice)
		}
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return genres, nil
}

func exists(tx *gorm.DB, model interface{}, id uint) error {
	if id == 0 {
		return ErrNotFound
	}
	var n int64
	if err := tx.Model(model).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
