package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"locallibrary/pkg/models"
	"locallibrary/pkg/validation"
)

// CapabilityMarkReturned lets librarians renew loans, mark copies returned
// and see every loan.
const CapabilityMarkReturned = "can_mark_returned"

const (
	MessageUserExists         = "User already exists"
	MessagePasswordsDiffer    = "Passwords must be equal"
	MessageInvalidCredentials = "Please enter a correct username and password."
	MessagePasswordTooLong    = "Ensure this value has at most 72 bytes."
)

// PasswordMaxBytes is the longest password bcrypt accepts.
const PasswordMaxBytes = 72

var (
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrPasswordTooLong    = errors.New("password too long")
)

type RegisterForm struct {
	Email     string `form:"email" json:"email"`
	Password  string `form:"password" json:"-"`
	Password2 string `form:"password2" json:"-"`
}

type Service struct {
	db       *gorm.DB
	cost     int
	validate *validator.Validate
}

func NewService(db *gorm.DB, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{db: db, cost: bcryptCost, validate: validator.New()}
}

// Register creates a member account whose username is the email address.
// Every rule is checked before anything is written; the returned
// validation.FieldErrors carries all failures at once.
func (s *Service) Register(ctx context.Context, form RegisterForm) (*models.User, error) {
	errs := validation.New()

	if form.Email == "" {
		errs.Add("email", validation.MessageRequired)
	} else if err := s.validate.Var(form.Email, "email"); err != nil {
		errs.Add("email", validation.MessageInvalidEmail)
	} else {
		exists, err := s.exists(ctx, form.Email)
		if err != nil {
			return nil, err
		}
		if exists {
			errs.Add("email", MessageUserExists)
		}
	}
	errs.MaxLength("email", form.Email, models.UsernameMaxLength)

	if form.Password == "" {
		errs.Add("password", validation.MessageRequired)
	} else if len(form.Password) > PasswordMaxBytes {
		errs.Add("password", MessagePasswordTooLong)
	} else if form.Password != form.Password2 {
		errs.Add("password", MessagePasswordsDiffer)
	}
	if form.Password2 == "" {
		errs.Add("password2", validation.MessageRequired)
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}

	user, err := s.CreateUser(ctx, form.Email, form.Email, form.Password)
	if errors.Is(err, ErrUserExists) {
		// lost a race with a concurrent registration
		errs.Add("email", MessageUserExists)
		return nil, errs
	}
	return user, err
}

// CreateUser stores a user with a bcrypt hash of password.
func (s *Service) CreateUser(ctx context.Context, username, email, password string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, ErrPasswordTooLong
	}
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{Username: username, Email: email, PasswordHash: string(hash)}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		if exists, lookupErr := s.exists(ctx, username); lookupErr == nil && exists {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Service) exists(ctx context.Context, email string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("username = ? OR email = ?", email, email).
		Count(&n).Error
	return n > 0, err
}

// Authenticate returns the user when password matches its stored hash.
// Unknown usernames and wrong passwords are indistinguishable to callers.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	var user models.User
	err := s.db.WithContext(ctx).Preload("Permissions").
		Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// User loads a user with its permissions.
func (s *Service) User(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Permissions").First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Grant gives userID a capability. Granting twice is a no-op.
func (s *Service) Grant(ctx context.Context, userID uint, capability string) error {
	perm := models.UserPermission{UserID: userID, Codename: capability}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&perm).Error
}

// Can reports whether user holds capability. Anonymous (nil) users hold
// nothing and superusers hold everything. Permissions must be loaded.
func Can(user *models.User, capability string) bool {
	if user == nil {
		return false
	}
	if user.IsSuperuser {
		return true
	}
	for _, p := range user.Permissions {
		if p.Codename == capability {
			return true
		}
	}
	return false
}
