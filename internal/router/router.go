package router

import (
	"github.com/gin-gonic/gin"
	adminctrl "github.com/lshigami/examcore/internal/controller/admin"
	userctrl "github.com/lshigami/examcore/internal/controller/user"
	"github.com/lshigami/examcore/internal/middleware"
)

// RegisterRoutes mounts the API under /api/v1. Every route requires a bearer token.
func RegisterRoutes(
	router *gin.Engine,
	auth *middleware.Authenticator,
	attemptCtrl *userctrl.ExamAttemptController,
	adminExamCtrl *adminctrl.AdminExamController,
) {
	api := router.Group("/api/v1", auth.RequireAuth(), middleware.NoStore())
	{
		api.GET("/exams/:exam_id/start", attemptCtrl.StartExam)
		api.PUT("/exams/:exam_id/progress", attemptCtrl.SaveProgress)
		api.POST("/exams/:exam_id/submit", attemptCtrl.SubmitExam)

		api.GET("/attempts/history", attemptCtrl.GetMyAttempts)
		api.GET("/attempts/:attempt_id", attemptCtrl.GetAttemptDetails)
	}

	adminAPI := router.Group("/api/v1/admin", auth.RequireAuth(), middleware.RequireStaff(), middleware.NoStore())
	{
		adminAPI.POST("/exams", adminExamCtrl.CreateExam)
		adminAPI.POST("/exams/:exam_id/publish", adminExamCtrl.PublishExam)
		adminAPI.GET("/exams/:exam_id/attempts", adminExamCtrl.GetExamAttempts)
	}
}
