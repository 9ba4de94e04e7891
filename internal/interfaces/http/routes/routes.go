// internal/interfaces/http/routes/routes.go
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/your-org/examprep-backend/internal/config"
	"github.com/your-org/examprep-backend/internal/domain/cart"
	"github.com/your-org/examprep-backend/internal/domain/checkout"
	"github.com/your-org/examprep-backend/internal/domain/coupon"
	"github.com/your-org/examprep-backend/internal/domain/exam"
	"github.com/your-org/examprep-backend/internal/domain/payment"
	"github.com/your-org/examprep-backend/internal/domain/progress"
	"github.com/your-org/examprep-backend/internal/domain/purchase"
	"github.com/your-org/examprep-backend/internal/domain/user"
	"github.com/your-org/examprep-backend/internal/interfaces/http/handlers"
	"github.com/your-org/examprep-backend/internal/interfaces/http/middleware"
	"github.com/your-org/examprep-backend/internal/pkg/auth"
	"github.com/your-org/examprep-backend/internal/pkg/email"
	"github.com/your-org/examprep-backend/internal/pkg/logger"
	"github.com/your-org/examprep-backend/internal/pkg/pdf"
	"gorm.io/gorm"
)

// SetupRoutes wires all services and registers every API route. Services are
// constructed once here and shared by the handlers.
func SetupRoutes(rg *gin.RouterGroup, db *gorm.DB, redisClient *redis.Client, cfg *config.Config) {
	log := logger.New(cfg)

	// Shared services
	jwtManager := auth.NewJWTManager(cfg)
	passwordManager := auth.NewPasswordManager(cfg)
	userService := user.NewService(db, jwtManager, passwordManager, cfg)
	examService := exam.NewService(db, cfg)

	couponStore := coupon.NewStore(db)
	couponValidator := coupon.NewValidator(couponStore, log)
	couponAdmin := coupon.NewAdminService(db)

	stripeProvider := payment.NewStripeProvider(cfg)
	paymentStore := payment.NewStore(db)

	checkoutStore := checkout.NewStore(db)
	purchaseStore := purchase.NewStore(db)

	cartService := cart.NewService(redisClient, examService, purchaseStore, cfg)
	checkoutService := checkout.NewService(checkoutStore, stripeProvider, examService, couponValidator, cfg, log)

	emailService := email.NewService(cfg, log)
	reconciler := purchase.NewReconciler(purchaseStore, checkoutStore, emailService, cfg, log)
	verifier := purchase.NewVerifier(stripeProvider, reconciler, purchaseStore, paymentStore, couponValidator, log)

	pdfService := pdf.NewService(cfg)
	progressService := progress.NewService(db, purchaseStore, examService)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService, cartService)
	examHandler := handlers.NewExamHandler(examService)
	cartHandler := handlers.NewCartHandler(cartService)
	couponHandler := handlers.NewCouponHandler(couponValidator, couponAdmin, examService)
	checkoutHandler := handlers.NewCheckoutHandler(checkoutService, verifier, cartService)
	paymentHandler := handlers.NewPaymentHandler(verifier)
	webhookHandler := handlers.NewWebhookHandler(stripeProvider, reconciler, checkoutService, paymentStore, log)
	purchaseHandler := handlers.NewPurchaseHandler(purchaseStore, checkoutService, examService, pdfService)
	progressHandler := handlers.NewProgressHandler(progressService)

	// Auth
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.RefreshToken)

		protected := authGroup.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			protected.POST("/logout", authHandler.Logout)
			protected.GET("/profile", authHandler.GetProfile)
			protected.PUT("/profile", authHandler.UpdateProfile)
			protected.PUT("/password", authHandler.ChangePassword)
		}
	}

	// Exam catalog (public)
	exams := rg.Group("/exams")
	{
		exams.GET("", examHandler.ListExams)
		exams.GET("/:slug", examHandler.GetExam)
	}

	// Cart (user or guest via X-Guest-ID)
	cartGroup := rg.Group("/cart")
	cartGroup.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		cartGroup.GET("", cartHandler.GetCart)
		cartGroup.POST("/items", cartHandler.AddToCart)
		cartGroup.DELETE("/items/:exam_id", cartHandler.RemoveFromCart)
		cartGroup.DELETE("", cartHandler.ClearCart)
	}

	// Coupons
	coupons := rg.Group("/coupons")
	coupons.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		coupons.POST("/validate", couponHandler.ValidateCoupon)
	}

	// Checkout (guests allowed; entitlements require an account)
	checkoutGroup := rg.Group("/checkout")
	checkoutGroup.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		checkoutGroup.POST("/sessions", checkoutHandler.CreateSession)
		checkoutGroup.GET("/sessions/:session_id", checkoutHandler.GetSession)
		checkoutGroup.POST("/sessions/:session_id/verify", checkoutHandler.VerifySession)
	}

	// Payment status
	payments := rg.Group("/payments")
	payments.Use(middleware.OptionalAuthMiddleware(cfg))
	{
		payments.GET("/:payment_intent_id/status", paymentHandler.GetPaymentStatus)
	}

	// Webhooks (authenticated by signature, not JWT)
	webhooks := rg.Group("/webhooks")
	{
		webhooks.POST("/stripe", webhookHandler.HandleStripeWebhook)
	}

	// Purchases
	purchases := rg.Group("/purchases")
	purchases.Use(middleware.AuthMiddleware(cfg))
	{
		purchases.GET("", purchaseHandler.ListPurchases)
		purchases.GET("/sessions", purchaseHandler.ListSessions)
		purchases.GET("/sessions/:session_id/receipt", purchaseHandler.DownloadReceipt)
	}

	// Progress
	progressGroup := rg.Group("/progress")
	progressGroup.Use(middleware.AuthMiddleware(cfg))
	{
		progressGroup.GET("", progressHandler.GetSummaries)
		progressGroup.GET("/exams/:exam_id/attempts", progressHandler.ListAttempts)
		progressGroup.POST("/exams/:exam_id/attempts", progressHandler.RecordAttempt)
	}

	// Admin
	admin := rg.Group("/admin")
	admin.Use(middleware.AuthMiddleware(cfg))
	admin.Use(middleware.AdminMiddleware())
	{
		adminExams := admin.Group("/exams")
		{
			adminExams.POST("", examHandler.AdminCreateExam)
			adminExams.PUT("/:id", examHandler.AdminUpdateExam)
			adminExams.DELETE("/:id", examHandler.AdminDeleteExam)
		}

		adminCoupons := admin.Group("/coupons")
		{
			adminCoupons.GET("", couponHandler.AdminListCoupons)
			adminCoupons.POST("", couponHandler.AdminCreateCoupon)
			adminCoupons.PUT("/:id", couponHandler.AdminUpdateCoupon)
			adminCoupons.DELETE("/:id", couponHandler.AdminDeleteCoupon)
		}
	}
}
