package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"locallibrary/pkg/accounts"
	"locallibrary/pkg/catalog"
	"locallibrary/pkg/models"
	"locallibrary/pkg/validation"
)

const messageBookNotAvailable = "Book not available"

type bookForm struct {
	Title    string `form:"title" json:"title" binding:"required,max=200"`
	Author   uint   `form:"author" json:"author" binding:"required"`
	Summary  string `form:"summary" json:"summary" binding:"required,max=1000"`
	ISBN     string `form:"isbn" json:"isbn" binding:"required,max=13"`
	Genre    []uint `form:"genre" json:"genre" binding:"required,min=1"`
	Language uint   `form:"language" json:"language" binding:"required"`
}

func bookFormFrom(b *models.Book) bookForm {
	form := bookForm{
		Title:    b.Title,
		Author:   b.AuthorID,
		Summary:  b.Summary,
		ISBN:     b.ISBN,
		Genre:    make([]uint, len(b.Genres)),
		Language: b.LanguageID,
	}
	for i, g := range b.Genres {
		form.Genre[i] = g.ID
	}
	return form
}

func (f bookForm) apply(b *models.Book) {
	b.Title = strings.TrimSpace(f.Title)
	b.AuthorID = f.Author
	b.Summary = strings.TrimSpace(f.Summary)
	b.ISBN = strings.TrimSpace(f.ISBN)
	b.LanguageID = f.Language
	b.Genres = make([]models.Genre, len(f.Genre))
	for i, id := range f.Genre {
		b.Genres[i] = models.Genre{ID: id}
	}
}

// bookChoices lists what the author, language and genre fields accept.
func bookChoices(ctx context.Context) (gin.H, error) {
	var (
		authorRows   []models.Author
		languageRows []models.Language
		genreRows    []models.Genre
	)
	q := db.WithContext(ctx)
	if err := q.Order("last_name, first_name, id").Find(&authorRows).Error; err != nil {
		return nil, err
	}
	if err := q.Order("name, id").Find(&languageRows).Error; err != nil {
		return nil, err
	}
	if err := q.Order("name, id").Find(&genreRows).Error; err != nil {
		return nil, err
	}

	authorChoices := make([]gin.H, len(authorRows))
	for i, a := range authorRows {
		authorChoices[i] = gin.H{"id": a.ID, "name": a.String()}
	}
	languageChoices := make([]gin.H, len(languageRows))
	for i, l := range languageRows {
		languageChoices[i] = gin.H{"id": l.ID, "name": l.Name}
	}
	genreChoices := make([]gin.H, len(genreRows))
	for i, g := range genreRows {
		genreChoices[i] = gin.H{"id": g.ID, "name": g.Name}
	}
	return gin.H{"author": authorChoices, "language": languageChoices, "genre": genreChoices}, nil
}

func bookDetailJSON(b *models.Book) gin.H {
	instances := make([]gin.H, len(b.Instances))
	for i, inst := range b.Instances {
		inst.Book = models.Book{ID: b.ID, Title: b.Title}
		instances[i] = instanceJSON(inst)
	}
	return gin.H{
		"id":        b.ID,
		"title":     b.Title,
		"summary":   b.Summary,
		"isbn":      b.ISBN,
		"author":    authorJSON(b.Author),
		"language":  b.Language.Name,
		"genre":     b.DisplayGenre(),
		"instances": instances,
		"url":       b.URL(),
	}
}

func listBooks(c *gin.Context) {
	page, err := books.List(c.Request.Context(), pageParam(c))
	if err != nil {
		respondError(c, err)
		return
	}

	items := make([]gin.H, len(page.Items))
	for i, b := range page.Items {
		items[i] = bookSummaryJSON(b)
	}
	body := pageJSON(page, items)
	body["canCreate"] = accounts.Can(currentUser(c), accounts.CapabilityMarkReturned)
	c.JSON(http.StatusOK, body)
}

func getBook(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	book, err := books.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{
		"book":      bookDetailJSON(book),
		"canManage": accounts.Can(currentUser(c), accounts.CapabilityMarkReturned),
	}
	if inst := book.AvailableInstance(); inst != "" {
		body["availableInstance"] = inst
		body["borrowUrl"] = "/catalog/borrow/" + c.Param("id")
	} else {
		body["message"] = messageBookNotAvailable
	}
	c.JSON(http.StatusOK, body)
}

func bookCreateForm(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	choices, err := bookChoices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"form": bookForm{Genre: []uint{}}, "choices": choices})
}

func createBook(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}

	var form bookForm
	if err := c.ShouldBind(&form); err != nil {
		respondInvalid(c, form, validation.FromBinding(err))
		return
	}

	var book models.Book
	form.apply(&book)
	if err := books.Create(c.Request.Context(), &book); err != nil {
		var errs validation.FieldErrors
		if errors.As(err, &errs) {
			respondInvalid(c, form, errs)
			return
		}
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, book.URL())
}

func bookUpdateForm(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	book, err := books.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	choices, err := bookChoices(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"book": bookSummaryJSON(*book), "form": bookFormFrom(book), "choices": choices})
}

func updateBook(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	book, err := books.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	var form bookForm
	if err := c.ShouldBind(&form); err != nil {
		respondInvalid(c, form, validation.FromBinding(err))
		return
	}

	form.apply(book)
	if err := books.Update(c.Request.Context(), book); err != nil {
		var errs validation.FieldErrors
		if errors.As(err, &errs) {
			respondInvalid(c, form, errs)
			return
		}
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, book.URL())
}

func bookDeleteConfirm(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}
	book, err := books.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"book": bookSummaryJSON(*book)})
}

func deleteBook(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := idParam(c)
	if !ok {
		return
	}

	err := books.Delete(c.Request.Context(), id)
	var inUse *catalog.InUseError
	if errors.As(err, &inUse) {
		book, getErr := books.Get(c.Request.Context(), id)
		if getErr != nil {
			respondError(c, getErr)
			return
		}
		c.JSON(http.StatusOK, gin.H{"book": bookSummaryJSON(*book), "error": inUse.Error()})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, "/catalog/books/")
}
