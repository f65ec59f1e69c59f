package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"locallibrary/pkg/accounts"
	"locallibrary/pkg/catalog"
	"locallibrary/pkg/models"
	"locallibrary/pkg/validation"
)

// referenceData serves the list/create/update pages shared by languages and
// genres. field is both the form field holding the name and the singular
// used in payload keys.
type referenceData[T any] struct {
	field     string
	listPath  string
	maxLength int
	repo      func() catalog.Repository[T]
	build     func(id uint, name string) T
	toJSON    func(T) gin.H
}

var languageData = referenceData[models.Language]{
	field:     "language",
	listPath:  "/catalog/languages/",
	maxLength: models.LanguageNameMaxLength,
	repo:      func() catalog.Repository[models.Language] { return languages },
	build:     func(id uint, name string) models.Language { return models.Language{ID: id, Name: name} },
	toJSON:    func(l models.Language) gin.H { return gin.H{"id": l.ID, "name": l.Name} },
}

var genreData = referenceData[models.Genre]{
	field:     "genre",
	listPath:  "/catalog/genres/",
	maxLength: models.GenreNameMaxLength,
	repo:      func() catalog.Repository[models.Genre] { return genres },
	build:     func(id uint, name string) models.Genre { return models.Genre{ID: id, Name: name} },
	toJSON:    func(g models.Genre) gin.H { return gin.H{"id": g.ID, "name": g.Name} },
}

func listLanguages(c *gin.Context) { languageData.list(c) }
func createLanguage(c *gin.Context) { languageData.create(c) }
func updateLanguage(c *gin.Context) { languageData.update(c) }
func listGenres(c *gin.Context) { genreData.list(c) }
func createGenre(c *gin.Context) { genreData.create(c) }
func updateGenre(c *gin.Context) { genreData.update(c) }

// list answers the listing page. ?delete=<id> runs the guarded delete first
// and ?update=<id> adds the update form; both need the capability.
func (r referenceData[T]) list(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	body := gin.H{}

	if raw, ok := c.GetQuery("delete"); ok {
		if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			notFound(c)
			return
		}
		err = r.repo().Delete(ctx, uint(id))
		var inUse *catalog.InUseError
		switch {
		case errors.As(err, &inUse):
			body["error"] = inUse.Error()
		case err != nil:
			respondError(c, err)
			return
		default:
			c.Redirect(http.StatusFound, r.listPath)
			return
		}
	}

	if raw, ok := c.GetQuery("update"); ok {
		if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
			return
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			notFound(c)
			return
		}
		item, err := r.repo().Get(ctx, uint(id))
		if err != nil {
			respondError(c, err)
			return
		}
		body["updateForm"] = r.toJSON(*item)
	}

	page, err := r.repo().List(ctx, pageParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	items := make([]gin.H, len(page.Items))
	for i, item := range page.Items {
		items[i] = r.toJSON(item)
	}
	for k, v := range pageJSON(page, items) {
		body[k] = v
	}
	body["canCreate"] = accounts.Can(user, accounts.CapabilityMarkReturned)
	c.JSON(http.StatusOK, body)
}

func (r referenceData[T]) create(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	name, errs := r.bindName(c)
	if !errs.IsEmpty() {
		respondInvalid(c, gin.H{r.field: name}, errs)
		return
	}

	item := r.build(0, name)
	if err := r.repo().Create(c.Request.Context(), &item); err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, r.listPath)
}

func (r referenceData[T]) update(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, err := strconv.ParseUint(c.PostForm("id"), 10, 64)
	if err != nil || id == 0 {
		notFound(c)
		return
	}
	name, errs := r.bindName(c)
	if !errs.IsEmpty() {
		respondInvalid(c, gin.H{"id": id, r.field: name}, errs)
		return
	}

	item := r.build(uint(id), name)
	if err := r.repo().Update(c.Request.Context(), &item); err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, r.listPath)
}

func (r referenceData[T]) bindName(c *gin.Context) (string, validation.FieldErrors) {
	name := strings.TrimSpace(c.PostForm(r.field))
	errs := validation.New()
	errs.Required(r.field, name)
	errs.MaxLength(r.field, name, r.maxLength)
	return name, errs
}
