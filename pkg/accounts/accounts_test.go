package accounts

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"locallibrary/pkg/models"
	"locallibrary/pkg/validation"
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

const (
	testEmail    = "email@example.com"
	testPassword = "P@ssw0rd"
)

func countUsers(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	return n
}

func TestRegister(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, bcrypt.MinCost)

	user, err := svc.Register(context.Background(), RegisterForm{
		Email:     testEmail,
		Password:  testPassword,
		Password2: testPassword,
	})
	require.NoError(t, err)
	assert.Equal(t, testEmail, user.Username)
	assert.Equal(t, testEmail, user.Email)
	assert.NotEqual(t, testPassword, user.PasswordHash)
	assert.False(t, user.IsSuperuser)
	assert.Equal(t, int64(1), countUsers(t, db))
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name   string
		form   RegisterForm
		errors map[string]string
	}{
		{
			name:   "passwords differ",
			form:   RegisterForm{Email: testEmail, Password: testPassword, Password2: testPassword + "x"},
			errors: map[string]string{"password": MessagePasswordsDiffer},
		},
		{
			name:   "invalid email",
			form:   RegisterForm{Email: "not-an-email", Password: testPassword, Password2: testPassword},
			errors: map[string]string{"email": validation.MessageInvalidEmail},
		},
		{
			name:   "password longer than bcrypt accepts",
			form:   RegisterForm{Email: testEmail, Password: strings.Repeat("p", 80), Password2: strings.Repeat("p", 80)},
			errors: map[string]string{"password": MessagePasswordTooLong},
		},
		{
			name: "everything wrong",
			form: RegisterForm{Email: "nope", Password: "a", Password2: "b"},
			errors: map[string]string{
				"email":    validation.MessageInvalidEmail,
				"password": MessagePasswordsDiffer,
			},
		},
		{
			name: "empty form",
			form: RegisterForm{},
			errors: map[string]string{
				"email":     validation.MessageRequired,
				"password":  validation.MessageRequired,
				"password2": validation.MessageRequired,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			svc := NewService(db, bcrypt.MinCost)

			_, err := svc.Register(context.Background(), tt.form)
			var errs validation.FieldErrors
			require.True(t, errors.As(err, &errs))
			assert.Len(t, errs, len(tt.errors))
			for field, msg := range tt.errors {
				assert.Equal(t, msg, errs.Get(field), field)
			}
			assert.Equal(t, int64(0), countUsers(t, db))
		})
	}
}

func TestRegisterExistingUser(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, bcrypt.MinCost)
	ctx := context.Background()

	_, err := svc.CreateUser(ctx, testEmail, testEmail, testPassword)
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterForm{Email: testEmail, Password: testPassword, Password2: testPassword + "x"})
	var errs validation.FieldErrors
	require.True(t, errors.As(err, &errs))
	assert.Equal(t, MessageUserExists, errs.Get("email"))
	assert.Equal(t, MessagePasswordsDiffer, errs.Get("password"))
	assert.Equal(t, int64(1), countUsers(t, db))

	_, err = svc.CreateUser(ctx, testEmail, testEmail, testPassword)
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = svc.CreateUser(ctx, "other@example.com", "other@example.com", strings.Repeat("p", PasswordMaxBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
	assert.Equal(t, int64(1), countUsers(t, db))
}

func TestAuthenticate(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, bcrypt.MinCost)
	ctx := context.Background()

	created, err := svc.CreateUser(ctx, "testuser1", "", "1X<ISRUkw+tuK")
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "testuser1", "1X<ISRUkw+tuK")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	for _, tc := range [][2]string{
		{"testuser1", "wrong"},
		{"nobody", "1X<ISRUkw+tuK"},
		{"", ""},
	} {
		_, err := svc.Authenticate(ctx, tc[0], tc[1])
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
}

func TestGrantAndCan(t *testing.T) {
	db := setupTestDB(t)
	svc := NewService(db, bcrypt.MinCost)
	ctx := context.Background()

	member, err := svc.CreateUser(ctx, "testuser1", "", "secret")
	require.NoError(t, err)
	librarian, err := svc.CreateUser(ctx, "testuser2", "", "secret")
	require.NoError(t, err)

	require.NoError(t, svc.Grant(ctx, librarian.ID, CapabilityMarkReturned))
	require.NoError(t, svc.Grant(ctx, librarian.ID, CapabilityMarkReturned))

	loaded, err := svc.User(ctx, librarian.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Permissions, 1)
	assert.True(t, Can(loaded, CapabilityMarkReturned))
	assert.False(t, Can(loaded, "can_delete_everything"))

	loaded, err = svc.User(ctx, member.ID)
	require.NoError(t, err)
	assert.False(t, Can(loaded, CapabilityMarkReturned))

	assert.False(t, Can(nil, CapabilityMarkReturned))
	assert.True(t, Can(&models.User{IsSuperuser: true}, CapabilityMarkReturned))

	_, err = svc.User(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
