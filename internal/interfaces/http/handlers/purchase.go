// internal/interfaces/http/handlers/purchase.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/exam"
	"github.com/your-org/examprep-backend/internal/domain/purchase"
	"github.com/your-org/examprep-backend/internal/interfaces/http/middleware"
	"github.com/your-org/examprep-backend/internal/pkg/pdf"
)

// PurchaseHandler handles purchase history and receipts
type PurchaseHandler struct {
	store           purchase.Store
	checkoutService *checkout.Service
	examService     *exam.Service
	pdfService      *pdf.Service
}

// NewPurchaseHandler creates a new purchase handler
func NewPurchaseHandler(store purchase.Store, checkoutService *checkout.Service, examService *exam.Service, pdfService *pdf.Service) *PurchaseHandler {
	return &PurchaseHandler{
		store:           store,
		checkoutService: checkoutService,
		examService:     examService,
		pdfService:      pdfService,
	}
}

type entitlementView struct {
	purchase.Entitlement
	ExamTitle string `json:"exam_title,omitempty"`
	ExamSlug  string `json:"exam_slug,omitempty"`
	Active    bool   `json:"active"`
}

// ListPurchases returns the caller's entitlements, decorated with exam info
func (h *PurchaseHandler) ListPurchases(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	ents, err := h.store.EntitlementsByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load purchases"})
		return
	}

	examIDs := make([]uint, 0, len(ents))
	for _, e := range ents {
		examIDs = append(examIDs, e.ExamID)
	}
	exams, err := h.examService.GetByIDs(examIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load purchases"})
		return
	}
	byID := make(map[uint]exam.Exam, len(exams))
	for _, e := range exams {
		byID[e.ID] = e
	}

	now := time.Now().UTC()
	views := make([]entitlementView, 0, len(ents))
	for _, e := range ents {
		view := entitlementView{Entitlement: e, Active: e.IsActive(now)}
		if ex, ok := byID[e.ExamID]; ok {
			view.ExamTitle = ex.Title
			view.ExamSlug = ex.Slug
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{"data": views})
}

// ListSessions returns the caller's checkout sessions, newest first
func (h *PurchaseHandler) ListSessions(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	sessions, err := h.checkoutService.ListSessions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load sessions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sessions})
}

// DownloadReceipt streams a PDF receipt for one completed session
func (h *PurchaseHandler) DownloadReceipt(c *gin.Context) {
	userID, exists := middleware.GetUserIDFromContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	sessionID := c.Param("session_id")
	sess, err := h.checkoutService.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, checkout.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Checkout session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		return
	}

	if sess.UserID == nil || (*sess.UserID != userID && !middleware.IsAdminFromContext(c)) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		return
	}

	buf, err := h.pdfService.GenerateReceipt(sess)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	filename := fmt.Sprintf("receipt-%d.pdf", sess.ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}
