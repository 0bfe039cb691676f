package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/music-miko/t/pkg/logger"
)

const maxEventLimit = 1000

// EventHandler serves the acquisition and error event logs
type EventHandler struct {
	reader *logger.EventReader
}

// NewEventHandler creates a new event handler
func NewEventHandler(logsDir string) *EventHandler {
	return &EventHandler{reader: logger.NewEventReader(logsDir)}
}

// GetEvents handles GET /api/v1/events/:category?limit=&date=YYYY-MM-DD
func (h *EventHandler) GetEvents(c *gin.Context) {
	category := logger.LogCategory(c.Param("category"))
	if !validCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 {
		limit = 100
	}
	if limit > maxEventLimit {
		limit = maxEventLimit
	}

	date := time.Now()
	if dateStr := c.Query("date"); dateStr != "" {
		date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, use YYYY-MM-DD"})
			return
		}
	}

	entries, err := h.reader.Tail(category, date, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"category": category,
		"date":     date.Format("2006-01-02"),
		"count":    len(entries),
		"entries":  entries,
	})
}

func validCategory(category logger.LogCategory) bool {
	for _, c := range logger.Categories {
		if c == category {
			return true
		}
	}
	return false
}
