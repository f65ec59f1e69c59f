package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"locallibrary/pkg/accounts"
	"locallibrary/pkg/logger"
	"locallibrary/pkg/validation"
)

type credentialsForm struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"-"`
	Next     string `form:"next" json:"next"`
}

func registerForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"title": "Member Registration", "form": accounts.RegisterForm{}})
}

// register creates a member account and logs the new member in.
func register(c *gin.Context) {
	var form accounts.RegisterForm
	if err := c.ShouldBind(&form); err != nil {
		respondInvalid(c, form, validation.FromBinding(err))
		return
	}
	form.Email = strings.TrimSpace(form.Email)

	user, err := users.Register(c.Request.Context(), form)
	var errs validation.FieldErrors
	if errors.As(err, &errs) {
		respondInvalid(c, form, errs)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	logger.Logger.WithField("username", user.Username).Info("Member registered")
	currentSession(c).Login(user.ID)
	commitSession(c)
	c.Redirect(http.StatusFound, "/")
}

func loginForm(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"form": credentialsForm{Next: safeNext(c.Query("next"))}})
}

func login(c *gin.Context) {
	var form credentialsForm
	if err := c.ShouldBind(&form); err != nil {
		respondInvalid(c, form, validation.FromBinding(err))
		return
	}

	user, err := users.Authenticate(c.Request.Context(), strings.TrimSpace(form.Username), form.Password)
	if errors.Is(err, accounts.ErrInvalidCredentials) {
		respondInvalid(c, form, fieldError(validation.NonFieldErrors, accounts.MessageInvalidCredentials))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	currentSession(c).Login(user.ID)
	commitSession(c)

	next := safeNext(form.Next)
	if next == "" {
		next = "/catalog/"
	}
	c.Redirect(http.StatusFound, next)
}

func logout(c *gin.Context) {
	currentSession(c).Logout()
	commitSession(c)
	c.Redirect(http.StatusFound, "/catalog/")
}
