// internal/interfaces/http/handlers/exam.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/examprep-backend/internal/domain/exam"
)

// ExamHandler handles exam catalog endpoints
type ExamHandler struct {
	examService *exam.Service
}

// NewExamHandler creates a new exam handler
func NewExamHandler(examService *exam.Service) *ExamHandler {
	return &ExamHandler{
		examService: examService,
	}
}

// ListExams lists active exams with optional filters
func (h *ExamHandler) ListExams(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	exams, total, err := h.examService.List(exam.ListFilter{
		Category: c.Query("category"),
		Vendor:   c.Query("vendor"),
		Search:   c.Query("search"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list exams"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": exams,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetExam returns one exam by slug
func (h *ExamHandler) GetExam(c *gin.Context) {
	e, err := h.examService.GetBySlug(c.Param("slug"))
	if err != nil {
		if errors.Is(err, exam.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get exam"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": e})
}

// AdminCreateExam creates an exam (admin)
func (h *ExamHandler) AdminCreateExam(c *gin.Context) {
	var e exam.Exam
	if err := c.ShouldBindJSON(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.examService.Create(&e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Exam created successfully",
		"data":    e,
	})
}

// AdminUpdateExam updates an exam (admin)
func (h *ExamHandler) AdminUpdateExam(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	e, err := h.examService.Update(uint(id), updates)
	if err != nil {
		if errors.Is(err, exam.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update exam"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Exam updated successfully",
		"data":    e,
	})
}

// AdminDeleteExam soft-deletes an exam (admin)
func (h *ExamHandler) AdminDeleteExam(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid exam ID"})
		return
	}

	if err := h.examService.Delete(uint(id)); err != nil {
		if errors.Is(err, exam.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Exam not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete exam"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Exam deleted successfully"})
}
