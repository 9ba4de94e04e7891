// internal/interfaces/http/handlers/progress.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/examprep-backend/internal/domain/progress"
	"github.com/your-org/examprep-backend/internal/interfaces/http/middleware"
)

// ProgressHandler handles practice attempt endpoints
type ProgressHandler struct {
	progressService *progress.Service
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(progressService *progress.Service) *ProgressHandler {
	return &ProgressHandler{
		progressService: progressService,
	}
}

// RecordAttempt stores a completed practice run
func (h *ProgressHandler) RecordAttempt(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	examID, err := strconv.ParseUint(c.Param("exam_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}

	var req progress.RecordAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	attempt, err := h.progressService.RecordAttempt(c.Request.Context(), userID, uint(examID), &req)
	if err != nil {
		switch {
		case errors.Is(err, progress.ErrNotEntitled):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, progress.ErrExamNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, progress.ErrInvalidAttempt):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record attempt"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Attempt recorded successfully",
		"data":    attempt,
	})
}

// ListAttempts returns the caller's attempts for one exam
func (h *ProgressHandler) ListAttempts(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	examID, err := strconv.ParseUint(c.Param("exam_id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}

	attempts, err := h.progressService.ListAttempts(c.Request.Context(), userID, uint(examID))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list attempts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempts})
}

// GetSummaries returns aggregated progress across all attempted exams
func (h *ProgressHandler) GetSummaries(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	summaries, err := h.progressService.Summaries(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load progress"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summaries})
}
