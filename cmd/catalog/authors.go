package main

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"locallibrary/pkg/accounts"
	"locallibrary/pkg/catalog"
	"locallibrary/pkg/models"
	"locallibrary/pkg/validation"
)

// initialDateOfDeath pre-fills the create form.
const initialDateOfDeath = "2020-11-06"

type authorForm struct {
	FirstName   string `form:"first_name" json:"first_name" binding:"required,max=100"`
	LastName    string `form:"last_name" json:"last_name" binding:"required,max=100"`
	DateOfBirth string `form:"date_of_birth" json:"date_of_birth" binding:"omitempty,datetime=2006-01-02"`
	DateOfDeath string `form:"date_of_death" json:"date_of_death" binding:"omitempty,datetime=2006-01-02"`
}

func authorFormFrom(a *models.Author) authorForm {
	return authorForm{
		FirstName:   a.FirstName,
		LastName:    a.LastName,
		DateOfBirth: models.FormatDate(a.DateOfBirth),
		DateOfDeath: models.FormatDate(a.DateOfDeath),
	}
}

// apply copies the form into a. Dates were checked by binding already.
func (f authorForm) apply(a *models.Author) {
	a.FirstName = strings.TrimSpace(f.FirstName)
	a.LastName = strings.TrimSpace(f.LastName)
	a.DateOfBirth = optionalDate(f.DateOfBirth)
	a.DateOfDeath = optionalDate(f.DateOfDeath)
}

func optionalDate(s string) *time.Time {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return nil
	}
	return &d
}

func listAuthors(c *gin.Context) {
	page, err := authors.List(c.Request.Context(), pageParam(c))
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, len(page.Items))
	for i, a := range page.Items {
		items[i] = authorJSON(a)
	}
	body := pageJSON(page, items)
	body["canCreate"] = accounts.Can(currentUser(c), accounts.CapabilityMarkReturned)
	c.JSON(http.StatusOK, body)
}

func getAuthor(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	author, err := authors.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	authorBooks := make([]gin.H, len(author.Books))
	for i, b := range author.Books {
		authorBooks[i] = gin.H{"id": b.ID, "title": b.Title, "summary": b.Summary, "url": b.URL()}
	}
	c.JSON(http.StatusOK, gin.H{
		"author":    authorJSON(*author),
		"books":     authorBooks,
		"canManage": accounts.Can(currentUser(c), accounts.CapabilityMarkReturned),
	})
}

func authorCreateForm(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"form": authorForm{DateOfDeath: initialDateOfDeath}})
}

func createAuthor(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}

	var form authorForm
	if err := c.ShouldBind(&form); err != nil {
		respondInvalid(c, form, validation.FromBinding(err))
		return
	}

	var author models.Author
	form.apply(&author)
	if err := authors.Create(c.Request.Context(), &author); err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, author.URL())
}

func authorUpdateForm(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	author, err := authors.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"author": authorJSON(*author), "form": authorFormFrom(author)})
}

func updateAuthor(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	author, err := authors.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	var form authorForm
	if err := c.ShouldBind(&form); err != nil {
		respondInvalid(c, form, validation.FromBinding(err))
		return
	}

	form.apply(author)
	if err := authors.Update(c.Request.Context(), author); err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, author.URL())
}

func authorDeleteConfirm(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	author, err := authors.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"author": authorJSON(*author)})
}

func deleteAuthor(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	err := authors.Delete(c.Request.Context(), id)
	var inUse *catalog.InUseError
	if errors.As(err, &inUse) {
		author, getErr := authors.Get(c.Request.Context(), id)
		if getErr != nil {
			respondError(c, getErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"author": authorJSON(*author), "error": inUse.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/catalog/authors/")
}
