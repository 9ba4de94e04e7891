// internal/interfaces/http/handlers/coupon.go
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/your-org/examprep-backend/internal/domain/coupon"
	"github.com/your-org/examprep-backend/internal/domain/exam"
	"github.com/your-org/examprep-backend/internal/interfaces/http/middleware"
)

// CouponHandler handles coupon validation and admin management
type CouponHandler struct {
	validator   *coupon.Validator
	admin       *coupon.AdminService
	examService *exam.Service
}

// NewCouponHandler creates a new coupon handler
func NewCouponHandler(validator *coupon.Validator, admin *coupon.AdminService, examService *exam.Service) *CouponHandler {
	return &CouponHandler{
		validator:   validator,
		admin:       admin,
		examService: examService,
	}
}

// ValidateCoupon checks a coupon code against the submitted cart. Business
// rejections come back as 200 with valid=false so the storefront can show the
// message inline.
func (h *CouponHandler) ValidateCoupon(c *gin.Context) {
	var req struct {
		Code    string `json:"code" binding:"required"`
		ExamIDs []uint `json:"exam_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	exams, err := h.examService.GetByIDs(req.ExamIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve cart"})
		return
	}

	var subtotal int64
	cartCtx := coupon.CartContext{ExamIDs: req.ExamIDs}
	for _, e := range exams {
		subtotal += e.PriceCents
		cartCtx.Categories = append(cartCtx.Categories, e.Category)
	}

	var userID *uint
	if id, ok := middleware.GetUserIDFromContext(c); ok {
		userID = &id
	}

	result, err := h.validator.Validate(c.Request.Context(), req.Code, subtotal, userID, cartCtx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Coupon validation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// AdminCreateCoupon creates a coupon (admin)
func (h *CouponHandler) AdminCreateCoupon(c *gin.Context) {
	var cp coupon.Coupon
	if err := c.ShouldBindJSON(&cp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request data",
			"details": err.Error(),
		})
		return
	}

	if err := h.admin.Create(&cp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Coupon created successfully",
		"data":    cp,
	})
}

// AdminListCoupons lists all coupons (admin)
func (h *CouponHandler) AdminListCoupons(c *gin.Context) {
	coupons, err := h.admin.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list coupons"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": coupons})
}

// AdminUpdateCoupon updates a coupon (admin)
func (h *CouponHandler) AdminUpdateCoupon(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coupon ID"})
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

	cp, err := h.admin.Update(uint(id), updates)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Coupon not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update coupon"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Coupon updated successfully",
		"data":    cp,
	})
}

// AdminDeleteCoupon soft-deletes a coupon (admin)
func (h *CouponHandler) AdminDeleteCoupon(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid coupon ID"})
		return
	}

	if err := h.admin.Delete(uint(id)); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Coupon not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete coupon"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Coupon deleted successfully"})
}
