package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/examly/examly-backend/internal/config"
	"github.com/examly/examly-backend/internal/handler"
	"github.com/examly/examly-backend/internal/middleware"
	"github.com/examly/examly-backend/internal/model"
	"github.com/examly/examly-backend/internal/response"
	"github.com/examly/examly-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Course   *handler.CourseHandler
	Question *handler.QuestionHandler
	Exam     *handler.ExamHandler
	Attempt  *handler.AttemptHandler
	Review   *handler.ReviewHandler
	Results  *handler.ResultsHandler
	WS       *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// Restrict to the configured origin list when set; otherwise allow
	// all so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

	// Uploaded answer images, cached aggressively (immutable paths).
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// ─── Auth (public, rate limited) ───────────────────────────────────
	authLimiter := middleware.NewRateLimiter(30, time.Minute)
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
		auth.GET("/me", middleware.RequireAuth(authService), handlers.Auth.Me)
	}

	// ─── Shared (any authenticated user) ───────────────────────────────
	api := router.Group("/api/v1")
	api.Use(middleware.RequireAuth(authService))
	{
		api.GET("/courses", handlers.Course.List)
		api.GET("/courses/:id", handlers.Course.Get)

		// Ownership is enforced in the service: students read only their
		// own attempts, instructors read any.
		api.GET("/attempts/:id/review", handlers.Results.AttemptReview)
	}

	// ─── Student ───────────────────────────────────────────────────────
	studentAPI := router.Group("/api/v1")
	studentAPI.Use(middleware.RequireAuth(authService), middleware.RequireRole(model.RoleStudent))
	{
		studentAPI.GET("/courses/mine", handlers.Course.ListMine)
		studentAPI.POST("/courses/:id/enroll", handlers.Course.RequestEnrollment)

		studentAPI.GET("/exams/available", handlers.Exam.GetAvailable)
		studentAPI.POST("/exams/:id/attempt", handlers.Attempt.Start)

		studentAPI.GET("/attempts/active", handlers.Attempt.Active)
		studentAPI.PUT("/attempts/:id/answers", handlers.Attempt.Autosave)
		studentAPI.POST("/attempts/:id/answers/:questionId/image", handlers.Attempt.UploadImageAnswer)
		studentAPI.POST("/attempts/:id/submit", handlers.Attempt.Submit)
		studentAPI.POST("/attempts/:id/review-request", handlers.Attempt.RequestReview)

		studentAPI.GET("/grades", handlers.Results.MyGrades)
	}

	// ─── Instructor (professor or admin) ───────────────────────────────
	instructorAPI := router.Group("/api/v1")
	instructorAPI.Use(middleware.RequireAuth(authService), middleware.RequireInstructor())
	{
		instructorAPI.POST("/courses", handlers.Course.Create)
		instructorAPI.GET("/courses/:id/students", handlers.Course.ListStudents)
		instructorAPI.GET("/courses/:id/enrollment-requests", handlers.Course.ListEnrollmentRequests)
		instructorAPI.POST("/courses/:id/enrollment-requests/:studentId/approve", handlers.Course.ApproveEnrollment)
		instructorAPI.POST("/courses/:id/enrollment-requests/:studentId/reject", handlers.Course.RejectEnrollment)

		instructorAPI.POST("/courses/:id/questions", handlers.Question.Create)
		instructorAPI.GET("/courses/:id/questions", handlers.Question.ListByCourse)
		instructorAPI.DELETE("/questions/:id", handlers.Question.Delete)

		instructorAPI.POST("/exams", handlers.Exam.Create)
		instructorAPI.GET("/courses/:id/exams", handlers.Exam.ListByCourse)
		instructorAPI.GET("/exams/:id", handlers.Exam.Get)
		instructorAPI.PATCH("/exams/:id", handlers.Exam.Update)
		instructorAPI.DELETE("/exams/:id", handlers.Exam.Delete)
		instructorAPI.PUT("/exams/:id/questions", handlers.Exam.SetQuestions)
		instructorAPI.POST("/exams/:id/publish", handlers.Exam.Publish)
		instructorAPI.GET("/exams/:id/results", handlers.Results.ExamResults)

		instructorAPI.GET("/students/:id/review", handlers.Results.StudentReview)
		instructorAPI.POST("/attempts/:id/review-response", handlers.Review.Respond)
		instructorAPI.POST("/attempts/:id/grade", handlers.Review.Grade)
	}

	// ─── WebSocket (query-param auth) ──────────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/attempts/:id/clock", handlers.WS.AttemptClockStream)
	}

	return router
}
