package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/examcore/internal/controller"
	"github.com/lshigami/examcore/internal/dto"
	"github.com/lshigami/examcore/internal/service"
	"github.com/rs/zerolog/log"
)

type AdminExamController struct {
	adminExamService service.AdminExamService
	attemptService   service.ExamAttemptService
}

func NewAdminExamController(adminExamService service.AdminExamService, attemptService service.ExamAttemptService) *AdminExamController {
	return &AdminExamController{adminExamService: adminExamService, attemptService: attemptService}
}

// CreateExam godoc
// @Summary (Admin) Create an exam with its questions
// @Description The exam is created as DRAFT. Every question needs positive marks and at least one correct option.
// @Tags Admin - Exams
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param exam_data body dto.CreateExamRequest true "Exam and questions"
// @Success 201 {object} dto.ExamResponse "Exam created successfully"
// @Failure 400 {object} dto.ErrorResponse "Invalid input data"
// @Failure 403 {object} dto.ErrorResponse "Staff role required"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /admin/exams [post]
func (c *AdminExamController) CreateExam(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	var req dto.CreateExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("Admin CreateExam: Failed to bind JSON")
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	resp, err := c.adminExamService.CreateExam(ctx.Request.Context(), p, req)
	if err != nil {
		controller.WriteError(ctx, err, "Failed to create exam")
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

// PublishExam godoc
// @Summary (Admin) Publish a draft exam
// @Tags Admin - Exams
// @Produce json
// @Security BearerAuth
// @Param exam_id path string true "Exam ID"
// @Success 200 {object} dto.ExamResponse
// @Failure 400 {object} dto.ErrorResponse "Exam is not a draft"
// @Failure 404 {object} dto.ErrorResponse "Exam not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /admin/exams/{exam_id}/publish [post]
func (c *AdminExamController) PublishExam(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	resp, err := c.adminExamService.PublishExam(ctx.Request.Context(), p, ctx.Param("exam_id"))
	if err != nil {
		controller.WriteError(ctx, err, "Failed to publish exam")
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetExamAttempts godoc
// @Summary (Admin) List every attempt of an exam
// @Tags Admin - Exams
// @Produce json
// @Security BearerAuth
// @Param exam_id path string true "Exam ID"
// @Success 200 {array} dto.AttemptSummaryDTO
// @Failure 404 {object} dto.ErrorResponse "Exam not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /admin/exams/{exam_id}/attempts [get]
func (c *AdminExamController) GetExamAttempts(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	attempts, err := c.attemptService.ListExamAttempts(ctx.Request.Context(), p, ctx.Param("exam_id"))
	if err != nil {
		controller.WriteError(ctx, err, "Failed to list exam attempts")
		return
	}
	ctx.JSON(http.StatusOK, attempts)
}
