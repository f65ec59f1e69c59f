package catalog

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"locallibrary/pkg/models"
)

var (
	ErrNotFound = errors.New("catalog: not found")
	ErrInUse    = errors.New("catalog: in use")
)

// InUseError reports a delete refused because other rows still reference
// the one being deleted.
type InUseError struct {
	Entity    string
	Dependent string
	Count     int64
}

func (e *InUseError) Error() string {
	return fmt.Sprintf("%s cannot be deleted: it is used by %d %s", e.Entity, e.Count, e.Dependent)
}

func (e *InUseError) Unwrap() error { return ErrInUse }

// Repository is the list/get/create/update/delete surface every entity
// of the catalog exposes to the handlers.
type Repository[T any] interface {
	List(ctx context.Context, page int) (Page[T], error)
	Get(ctx context.Context, id uint) (*T, error)
	Create(ctx context.Context, item *T) error
	Update(ctx context.Context, item *T) error
	Delete(ctx context.Context, id uint) error
}

type store[T any] struct {
	db           *gorm.DB
	entity       string
	dependent    string
	order        string
	listPreloads []string
	detail       func(*gorm.DB) *gorm.DB
	references   func(tx *gorm.DB, id uint) (int64, error)
}

func (s *store[T]) List(ctx context.Context, page int) (Page[T], error) {
	return Paginate[T](s.db.WithContext(ctx).Model(new(T)), page, s.order, s.listPreloads...)
}

func (s *store[T]) Get(ctx context.Context, id uint) (*T, error) {
	q := s.db.WithContext(ctx)
	if s.detail != nil {
		q = s.detail(q)
	}
	var item T
	if err := q.First(&item, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

func (s *store[T]) Create(ctx context.Context, item *T) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(item).Error
}

func (s *store[T]) Update(ctx context.Context, item *T) error {
	return update(s.db.WithContext(ctx), item)
}

// Delete removes the row unless references reports books still pointing
// at it. The check and the delete share one transaction.
func (s *store[T]) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item T
		if err := tx.First(&item, id).Error; err != nil {
			return notFound(err)
		}
		if s.references != nil {
			n, err := s.references(tx, id)
			if err != nil {
				return err
			}
			if n > 0 {
				return &InUseError{Entity: s.entity, Dependent: s.dependent, Count: n}
			}
		}
		return tx.Delete(&item).Error
	})
}

func update(tx *gorm.DB, item interface{}) error {
	res := tx.Model(item).Select("*").Omit(clause.Associations, "CreatedAt").Updates(item)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func countWhere(model interface{}, column string) func(tx *gorm.DB, id uint) (int64, error) {
	return func(tx *gorm.DB, id uint) (int64, error) {
		var n int64
		err := tx.Model(model).Where(column+" = ?", id).Count(&n).Error
		return n, err
	}
}

func NewAuthorRepository(db *gorm.DB) Repository[models.Author] {
	return &store[models.Author]{
		db:        db,
		entity:    "Author",
		dependent: "book(s)",
		order:     "last_name, first_name, id",
		detail: func(q *gorm.DB) *gorm.DB {
			return q.Preload("Books", func(db *gorm.DB) *gorm.DB { return db.Order("title, id") })
		},
		references: countWhere(&models.Book{}, "author_id"),
	}
}

func NewGenreRepository(db *gorm.DB) Repository[models.Genre] {
	return &store[models.Genre]{
		db:        db,
		entity:    "Genre",
		dependent: "book(s)",
		order:     "name, id",
		references: func(tx *gorm.DB, id uint) (int64, error) {
			var n int64
			err := tx.Table("book_genres").Where("genre_id = ?", id).Count(&n).Error
			return n, err
		},
	}
}

func NewLanguageRepository(db *gorm.DB) Repository[models.Language] {
	return &store[models.Language]{
		db:         db,
		entity:     "Language",
		dependent:  "book(s)",
		order:      "name, id",
		references: countWhere(&models.Book{}, "language_id"),
	}
}

type Counts struct {
	Books              int64 `json:"numBooks"`
	Instances          int64 `json:"numInstances"`
	InstancesAvailable int64 `json:"numInstancesAvailable"`
	Authors            int64 `json:"numAuthors"`
}

func CountAll(ctx context.Context, db *gorm.DB) (Counts, error) {
	var c Counts
	q := db.WithContext(ctx)
	if err := q.Model(&models.Book{}).Count(&c.Books).Error; err != nil {
		return Counts{}, err
	}
	if err := q.Model(&models.BookInstance{}).Count(&c.Instances).Error; err != nil {
		return Counts{}, err
	}
	if err := q.Model(&models.BookInstance{}).Where("status = ?", models.StatusAvailable).
		Count(&c.InstancesAvailable).Error; err != nil {
		return Counts{}, err
	}
	if err := q.Model(&models.Author{}).Count(&c.Authors).Error; err != nil {
		return Counts{}, err
	}
	return c, nil
}
