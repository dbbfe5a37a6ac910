package user

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/examcore/internal/controller"
	"github.com/lshigami/examcore/internal/dto"
	"github.com/lshigami/examcore/internal/service"
	"github.com/rs/zerolog/log"
)

type ExamAttemptController struct {
	attemptService service.ExamAttemptService
}

func NewExamAttemptController(attemptService service.ExamAttemptService) *ExamAttemptController {
	return &ExamAttemptController{attemptService: attemptService}
}

// StartExam godoc
// @Summary Start or resume an exam attempt
// @Description Returns the attempt id, the questions without answer keys and the server-side timer. Calling it again while an attempt is open resumes that attempt.
// @Tags Exams - Attempts
// @Produce json
// @Security BearerAuth
// @Param exam_id path string true "Exam ID"
// @Success 200 {object} dto.StartExamResponse
// @Failure 400 {object} dto.ErrorResponse "Exam not published or not open yet"
// @Failure 404 {object} dto.ErrorResponse "Exam not found"
// @Failure 409 {object} dto.ErrorResponse "Maximum attempts reached"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /exams/{exam_id}/start [get]
func (c *ExamAttemptController) StartExam(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	resp, err := c.attemptService.Start(ctx.Request.Context(), p, ctx.Param("exam_id"))
	if err != nil {
		controller.WriteError(ctx, err, "Failed to start exam")
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// SaveProgress godoc
// @Summary Autosave answers of the open attempt
// @Description Stores the latest answer per question. Does nothing when no attempt is open.
// @Tags Exams - Attempts
// @Accept json
// @Security BearerAuth
// @Param exam_id path string true "Exam ID"
// @Param progress body dto.SaveProgressRequest true "Answers so far"
// @Success 204
// @Failure 400 {object} dto.ErrorResponse "Invalid request body"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /exams/{exam_id}/progress [put]
func (c *ExamAttemptController) SaveProgress(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	var req dto.SaveProgressRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("SaveProgress: Failed to bind JSON")
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}
	if err := c.attemptService.SaveProgress(ctx.Request.Context(), p, ctx.Param("exam_id"), req); err != nil {
		controller.WriteError(ctx, err, "Failed to save progress")
		return
	}
	ctx.Status(http.StatusNoContent)
}

// SubmitExam godoc
// @Summary Submit the exam
// @Description Scores the attempt and returns the result immediately. Per-answer explanations are generated in the background. Repeating a submit returns the stored result.
// @Tags Exams - Attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param exam_id path string true "Exam ID"
// @Param submission body dto.SubmitExamRequest true "Attempt id, answers and telemetry"
// @Success 200 {object} dto.SubmitExamResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid request body"
// @Failure 404 {object} dto.ErrorResponse "Exam or attempt not found"
// @Failure 409 {object} dto.ErrorResponse "Maximum attempts reached"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /exams/{exam_id}/submit [post]
func (c *ExamAttemptController) SubmitExam(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	var req dto.SubmitExamRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("SubmitExam: Failed to bind JSON")
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	examID := ctx.Param("exam_id")
	log.Info().Str("examID", examID).Str("userID", p.UserID).Str("attemptID", req.AttemptID).Int("answerCount", len(req.Answers)).Msg("Received exam submission")

	resp, err := c.attemptService.Submit(ctx.Request.Context(), p, examID, req)
	if err != nil {
		controller.WriteError(ctx, err, "Failed to submit exam")
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetAttemptDetails godoc
// @Summary Get one attempt with per-answer results
// @Description Available to the attempt owner and to staff of the same organization.
// @Tags Exams - Attempts
// @Produce json
// @Security BearerAuth
// @Param attempt_id path string true "Attempt ID"
// @Success 200 {object} dto.AttemptDetailResponse
// @Failure 403 {object} dto.ErrorResponse "Attempt belongs to another user"
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /attempts/{attempt_id} [get]
func (c *ExamAttemptController) GetAttemptDetails(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	resp, err := c.attemptService.GetAttemptDetails(ctx.Request.Context(), p, ctx.Param("attempt_id"))
	if err != nil {
		controller.WriteError(ctx, err, "Failed to load attempt")
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetMyAttempts godoc
// @Summary List my finished attempts
// @Tags Exams - Attempts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.AttemptSummaryDTO
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /attempts/history [get]
func (c *ExamAttemptController) GetMyAttempts(ctx *gin.Context) {
	p, ok := controller.Principal(ctx)
	if !ok {
		return
	}
	attempts, err := c.attemptService.ListMyAttempts(ctx.Request.Context(), p)
	if err != nil {
		controller.WriteError(ctx, err, "Failed to list attempts")
		return
	}
	ctx.JSON(http.StatusOK, attempts)
}
