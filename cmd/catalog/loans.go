package main

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"locallibrary/pkg/accounts"
	"locallibrary/pkg/catalog"
	"locallibrary/pkg/circulation"
	"locallibrary/pkg/logger"
	"locallibrary/pkg/models"
	"locallibrary/pkg/validation"
)

const allBorrowedPath = "/catalog/borrowed/"

type renewForm struct {
	RenewalDate string `form:"renewal_date" json:"renewal_date" binding:"required"`
}

type returnForm struct {
	ReturnDate string `form:"return_date" json:"return_date" binding:"required"`
}

// borrowPage shows the copy a member would get and when it would be due.
func borrowPage(c *gin.Context) {
	if _, ok := requireUser(c); !ok {
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

	body := gin.H{
		"book":    bookSummaryJSON(*book),
		"dueBack": circulation.DueDate(loans.Today()).Format(models.DateLayout),
	}
	if inst := book.AvailableInstance(); inst != "" {
		body["availableInstance"] = inst
	} else {
		body["message"] = messageBookNotAvailable
	}
	c.JSON(http.StatusOK, body)
}

func borrowBook(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	bookID, ok := idParam(c)
	if !ok {
		return
	}
	instanceID, err := uuid.Parse(strings.TrimSpace(c.PostForm("instance")))
	if err != nil {
		notFound(c)
		return
	}

	err = loans.Borrow(c.Request.Context(), bookID, instanceID.String(), user.ID)
	switch {
	case err == nil:
		logger.Logger.WithFields(logrus.Fields{
			"instance": instanceID.String(),
			"userId":   user.ID,
		}).Info("Book instance borrowed")
		c.Redirect(http.StatusFound, "/catalog/borrow/"+instanceID.String()+"/success")
	case errors.Is(err, circulation.ErrNotAvailable):
		c.Redirect(http.StatusFound, "/catalog/borrow/"+instanceID.String()+"/fail")
	default:
		respondError(c, err)
	}
}

// borrowResult serves both the success and the failure page; the route
// decides which one the client sees.
func borrowResult(c *gin.Context) {
	id, ok := instanceParam(c)
	if !ok {
		return
	}
	inst, err := loans.Instance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookInstance": instanceJSON(*inst),
		"borrowed":     strings.HasSuffix(c.FullPath(), "/success"),
	})
}

func renewBookForm(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := instanceParam(c)
	if !ok {
		return
	}
	inst, err := loans.Instance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookInstance": instanceJSON(*inst),
		"form":         renewForm{RenewalDate: circulation.ProposedRenewalDate(loans.Today()).Format(models.DateLayout)},
	})
}

func renewBook(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := instanceParam(c)
	if !ok {
		return
	}
	if _, err := loans.Instance(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	var form renewForm
	if err := c.ShouldBind(&form); err != nil {
		respondInvalid(c, form, validation.FromBinding(err))
		return
	}
	date, err := models.ParseDate(form.RenewalDate)
	if err != nil {
		respondInvalid(c, form, fieldError("renewal_date", validation.MessageInvalidDate))
		return
	}

	err = loans.Renew(c.Request.Context(), id, date)
	if circulation.IsDateError(err) {
		respondInvalid(c, form, fieldError("renewal_date", err.Error()))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, allBorrowedPath)
}

func returnBookForm(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := instanceParam(c)
	if !ok {
		return
	}
	inst, err := loans.Instance(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"bookInstance": instanceJSON(*inst),
		"form":         returnForm{ReturnDate: circulation.DefaultReturnDate(loans.Today()).Format(models.DateLayout)},
	})
}

func returnBook(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	id, ok := instanceParam(c)
	if !ok {
		return
	}
	if _, err := loans.Instance(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	var form returnForm
	if err := c.ShouldBind(&form); err != nil {
		respondInvalid(c, form, validation.FromBinding(err))
		return
	}
	date, err := models.ParseDate(form.ReturnDate)
	if err != nil {
		respondInvalid(c, form, fieldError("return_date", validation.MessageInvalidDate))
		return
	}

	err = loans.Return(c.Request.Context(), id, date)
	if circulation.IsDateError(err) {
		respondInvalid(c, form, fieldError("return_date", err.Error()))
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, allBorrowedPath)
}

func myBooks(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	page, err := loans.LoansByBorrower(c.Request.Context(), user.ID, pageParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanPageJSON(page))
}

func allBorrowed(c *gin.Context) {
	if _, ok := requirePermission(c, accounts.CapabilityMarkReturned); !ok {
		return
	}
	page, err := loans.AllLoans(c.Request.Context(), pageParam(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, loanPageJSON(page))
}

func loanPageJSON(page catalog.Page[models.BookInstance]) gin.H {
	items := make([]gin.H, len(page.Items))
	for i, inst := range page.Items {
		items[i] = instanceJSON(inst)
	}
	return pageJSON(page, items)
}

func fieldError(field, message string) validation.FieldErrors {
	errs := validation.New()
	errs.Add(field, message)
	return errs
}
