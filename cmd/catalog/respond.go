package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"locallibrary/pkg/catalog"
	"locallibrary/pkg/circulation"
	"locallibrary/pkg/logger"
	"locallibrary/pkg/models"
	"locallibrary/pkg/validation"
)

// respondError maps package errors onto HTTP statuses. Anything
// unrecognised is logged and answered with 500.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound), errors.Is(err, circulation.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, catalog.ErrPageOutOfRange):
		c.JSON(http.StatusNotFound, gin.H{"error": "Invalid page"})
	default:
		logger.Logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func respondInvalid(c *gin.Context, form interface{}, errs validation.FieldErrors) {
	c.JSON(http.StatusBadRequest, gin.H{
		"form":   form,
		"errors": errs,
	})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
}

// idParam reads the integer :id route parameter. Malformed ids answer 404.
func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		notFound(c)
		return 0, false
	}
	return uint(id), true
}

// instanceParam reads a book instance uuid from :id in canonical form.
func instanceParam(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		notFound(c)
		return "", false
	}
	return id.String(), true
}

func pageParam(c *gin.Context) int {
	return catalog.ParsePage(c.Query("page"))
}

func pageJSON[T any](p catalog.Page[T], items []gin.H) gin.H {
	return gin.H{
		"page":          p.Page,
		"pageSize":      p.PageSize,
		"totalElements": p.TotalElements,
		"totalPages":    p.TotalPages,
		"isPaginated":   p.IsPaginated,
		"items":         items,
	}
}

func authorJSON(a models.Author) gin.H {
	return gin.H{
		"id":          a.ID,
		"firstName":   a.FirstName,
		"lastName":    a.LastName,
		"name":        a.String(),
		"dateOfBirth": models.FormatDate(a.DateOfBirth),
		"dateOfDeath": models.FormatDate(a.DateOfDeath),
		"url":         a.URL(),
	}
}

func bookSummaryJSON(b models.Book) gin.H {
	return gin.H{
		"id":     b.ID,
		"title":  b.Title,
		"author": b.Author.String(),
		"url":    b.URL(),
	}
}

func instanceJSON(inst models.BookInstance) gin.H {
	item := gin.H{
		"id":          inst.ID,
		"imprint":     inst.Imprint,
		"status":      inst.Status,
		"statusLabel": inst.Status.Label(),
		"dueBack":     models.FormatDate(inst.DueBack),
		"isOverdue":   inst.IsOverdue(models.Today()),
		"display":     inst.String(),
	}
	if inst.Book.ID != 0 {
		item["book"] = gin.H{"id": inst.Book.ID, "title": inst.Book.Title, "url": inst.Book.URL()}
	}
	if inst.Borrower != nil {
		item["borrower"] = inst.Borrower.Username
	}
	return item
}
