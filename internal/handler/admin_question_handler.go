package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/response"
	"github.com/peakprep/peakprep-backend/internal/service"
	"github.com/peakprep/peakprep-backend/internal/validator"
)

// AdminQuestionHandler handles question bank administration.
type AdminQuestionHandler struct {
	questionService *service.QuestionService
	ingestService   *service.IngestService
}

// NewAdminQuestionHandler creates a new AdminQuestionHandler. ingestService
// may be nil when no OpenAI key is configured.
func NewAdminQuestionHandler(questionService *service.QuestionService, ingestService *service.IngestService) *AdminQuestionHandler {
	return &AdminQuestionHandler{
		questionService: questionService,
		ingestService:   ingestService,
	}
}

// ListQuestions godoc
// GET /api/v1/admin/questions?test_type=SHSAT&page=1&per_page=10
func (h *AdminQuestionHandler) ListQuestions(c *gin.Context) {
	testType := model.TestType(c.Query("test_type"))
	if testType == "" {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"test_type": "test_type is required"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "10"))

	questions, pagination, err := h.questionService.List(c.Request.Context(), testType, page, perPage)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"questions": questions}, pagination)
}

// GetQuestion godoc
// GET /api/v1/admin/questions/:question_id
func (h *AdminQuestionHandler) GetQuestion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	question, err := h.questionService.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrQuestionNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"question": question})
}

// CreateQuestion godoc
// POST /api/v1/admin/questions
func (h *AdminQuestionHandler) CreateQuestion(c *gin.Context) {
	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	question, err := h.questionService.Create(c.Request.Context(), &req)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"question": question})
}

// UpdateQuestion godoc
// PUT /api/v1/admin/questions/:question_id
func (h *AdminQuestionHandler) UpdateQuestion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CreateQuestionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.questionService.Update(c.Request.Context(), id, &req); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// DeleteQuestion godoc
// DELETE /api/v1/admin/questions/:question_id
func (h *AdminQuestionHandler) DeleteQuestion(c *gin.Context) {
	id, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), id); err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// IngestQuestions godoc
// POST /api/v1/admin/questions/ingest
// Extracts structured questions from raw prep material via the OpenAI API
// and persists them.
func (h *AdminQuestionHandler) IngestQuestions(c *gin.Context) {
	if h.ingestService == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrGenerationFailed)
		return
	}

	var req model.IngestQuestionsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	questions, err := h.ingestService.Ingest(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrGenerationFailed) {
			response.Fail(c, http.StatusUnprocessableEntity, response.ErrGenerationFailed)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"questions": questions,
		"count":     len(questions),
	})
}
