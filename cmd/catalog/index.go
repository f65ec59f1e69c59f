package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"locallibrary/pkg/catalog"
)

// index reports catalog totals and how many times this session has seen
// the page before.
func index(c *gin.Context) {
	counts, err := catalog.CountAll(c.Request.Context(), db)
	if err != nil {
		respondError(c, err)
		return
	}

	numVisits := currentSession(c).Visit()
	commitSession(c)

	c.JSON(http.StatusOK, gin.H{
		"numBooks":              counts.Books,
		"numInstances":          counts.Instances,
		"numInstancesAvailable": counts.InstancesAvailable,
		"numAuthors":            counts.Authors,
		"numVisits":             numVisits,
	})
}

func healthCheck(c *gin.Context) {
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database connection failed",
			"error":   err.Error(),
		})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Database ping failed",
			"error":   err.Error(),
		})
		return
	}
	if err := sessions.Store().Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "DOWN",
			"details": "Session store ping failed",
			"error":   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}
