package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AuthorNameMaxLength   = 100
	GenreNameMaxLength    = 200
	LanguageNameMaxLength = 200
	BookTitleMaxLength    = 200
	BookSummaryMaxLength  = 1000
	BookISBNMaxLength     = 13
	ImprintMaxLength      = 200
	UsernameMaxLength     = 150
)

// Field labels shared by the forms and the list/detail payloads.
const (
	LabelFirstName   = "first name"
	LabelLastName    = "last name"
	LabelDateOfBirth = "date of birth"
	LabelDateOfDeath = "died"
	LabelISBN        = "ISBN"
	LabelDueBack     = "due back"
	LabelStatus      = "book availability"
)

const DateLayout = "2006-01-02"

type Author struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	FirstName   string     `gorm:"size:100;not null" json:"firstName"`
	LastName    string     `gorm:"size:100;not null" json:"lastName"`
	DateOfBirth *time.Time `gorm:"type:date" json:"dateOfBirth"`
	DateOfDeath *time.Time `gorm:"type:date" json:"dateOfDeath"`
	Books       []Book     `json:"-"`
	CreatedAt   time.Time  `json:"-"`
	UpdatedAt   time.Time  `json:"-"`
}

func (a Author) String() string {
	return fmt.Sprintf("%s, %s", a.LastName, a.FirstName)
}

func (a Author) URL() string {
	return fmt.Sprintf("/catalog/author/%d", a.ID)
}

type Genre struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (g Genre) String() string { return g.Name }

type Language struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (l Language) String() string { return l.Name }

type Book struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Title      string         `gorm:"size:200;not null" json:"title"`
	Summary    string         `gorm:"size:1000" json:"summary"`
	ISBN       string         `gorm:"column:isbn;size:13" json:"isbn"`
	AuthorID   uint           `gorm:"index;not null" json:"authorId"`
	Author     Author         `gorm:"foreignKey:AuthorID" json:"-"`
	LanguageID uint           `gorm:"index;not null" json:"languageId"`
	Language   Language       `gorm:"foreignKey:LanguageID" json:"-"`
	Genres     []Genre        `gorm:"many2many:book_genres;" json:"-"`
	Instances  []BookInstance `json:"-"`
	CreatedAt  time.Time      `json:"-"`
	UpdatedAt  time.Time      `json:"-"`
}

func (b Book) String() string { return b.Title }

func (b Book) URL() string {
	return fmt.Sprintf("/catalog/book/%d", b.ID)
}

// DisplayGenre joins the names of the loaded genres.
func (b Book) DisplayGenre() string {
	names := make([]string, len(b.Genres))
	for i, g := range b.Genres {
		names[i] = g.Name
	}
	return strings.Join(names, ", ")
}

// AvailableInstance returns the id of the first loaded instance that can be
// borrowed, or "" when every copy is out.
func (b Book) AvailableInstance() string {
	for _, inst := range b.Instances {
		if inst.Status == StatusAvailable {
			return inst.ID
		}
	}
	return ""
}

type LoanStatus string

const (
	StatusMaintenance LoanStatus = "m"
	StatusOnLoan      LoanStatus = "o"
	StatusAvailable   LoanStatus = "a"
	StatusReserved    LoanStatus = "r"
)

var statusLabels = map[LoanStatus]string{
	StatusMaintenance: "Maintenance",
	StatusOnLoan:      "On loan",
	StatusAvailable:   "Available",
	StatusReserved:    "Reserved",
}

func (s LoanStatus) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

func (s LoanStatus) Label() string {
	return statusLabels[s]
}

type BookInstance struct {
	ID         string     `gorm:"type:uuid;primaryKey" json:"id"`
	BookID     uint       `gorm:"index;not null" json:"bookId"`
	Book       Book       `gorm:"foreignKey:BookID" json:"-"`
	Imprint    string     `gorm:"size:200" json:"imprint"`
	DueBack    *time.Time `gorm:"type:date;index" json:"dueBack"`
	Status     LoanStatus `gorm:"size:1;not null;default:'m';index" json:"status"`
	BorrowerID *uint      `gorm:"index" json:"borrowerId"`
	Borrower   *User      `gorm:"foreignKey:BorrowerID" json:"-"`
	CreatedAt  time.Time  `json:"-"`
	UpdatedAt  time.Time  `json:"-"`
}

func (bi *BookInstance) BeforeCreate(tx *gorm.DB) error {
	if bi.ID == "" {
		bi.ID = uuid.New().String()
	}
	if bi.Status == "" {
		bi.Status = StatusMaintenance
	}
	return nil
}

// String requires Book to be loaded for the title part.
func (bi BookInstance) String() string {
	return fmt.Sprintf("%s (%s)", bi.ID, bi.Book.Title)
}

func (bi BookInstance) IsOverdue(today time.Time) bool {
	return bi.DueBack != nil && bi.DueBack.Before(Date(today))
}

type User struct {
	ID           uint             `gorm:"primaryKey"`
	Username     string           `gorm:"size:150;uniqueIndex;not null"`
	Email        string           `gorm:"size:254;index"`
	PasswordHash string           `gorm:"not null"`
	IsStaff      bool             `gorm:"not null;default:false"`
	IsSuperuser  bool             `gorm:"not null;default:false"`
	Permissions  []UserPermission `gorm:"foreignKey:UserID"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u User) String() string { return u.Username }

type UserPermission struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   uint   `gorm:"uniqueIndex:idx_user_codename;not null"`
	Codename string `gorm:"size:100;uniqueIndex:idx_user_codename;not null"`
}

// All lists every model for AutoMigrate, in dependency order.
func All() []interface{} {
	return []interface{}{
		&User{}, &UserPermission{},
		&Author{}, &Genre{}, &Language{},
		&Book{}, &BookInstance{},
	}
}

// Date strips the time of day, keeping the calendar date of t in UTC.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func Today() time.Time {
	return Date(time.Now())
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}
