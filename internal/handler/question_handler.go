package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/peakprep/peakprep-backend/internal/model"
	"github.com/peakprep/peakprep-backend/internal/response"
	"github.com/peakprep/peakprep-backend/internal/service"
)

// QuestionHandler handles the student-facing question catalog endpoints.
type QuestionHandler struct {
	questionService *service.QuestionService
}

// NewQuestionHandler creates a new QuestionHandler.
func NewQuestionHandler(questionService *service.QuestionService) *QuestionHandler {
	return &QuestionHandler{questionService: questionService}
}

// GetQuestions godoc
// GET /api/v1/student/questions?test_type=SHSAT&subject=Math&topic=...&difficulty=...&count=10
// Returns a random sample of questions with grading fields stripped, for
// practice outside a tracked session.
func (h *QuestionHandler) GetQuestions(c *gin.Context) {
	testType := model.TestType(c.Query("test_type"))
	if testType == "" {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"test_type": "test_type is required"})
		return
	}

	count, _ := strconv.Atoi(c.DefaultQuery("count", "10"))

	questions, err := h.questionService.Fetch(c.Request.Context(), testType,
		c.Query("subject"), c.Query("topic"), model.Difficulty(c.Query("difficulty")), count)
	if err != nil {
		if errors.Is(err, service.ErrNoQuestions) {
			response.Fail(c, http.StatusNotFound, response.ErrNoQuestions)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"questions": questions})
}

// GetTopics godoc
// GET /api/v1/student/topics?test_type=SHSAT&subject=Math
// Returns distinct topics with question counts. Served from the Redis cache
// when warm.
func (h *QuestionHandler) GetTopics(c *gin.Context) {
	testType := model.TestType(c.Query("test_type"))
	if testType == "" {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation,
			map[string]string{"test_type": "test_type is required"})
		return
	}

	topics, err := h.questionService.Topics(c.Request.Context(), testType, c.Query("subject"))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if topics == nil {
		topics = []model.TopicCount{}
	}

	response.Success(c, http.StatusOK, gin.H{"topics": topics})
}
