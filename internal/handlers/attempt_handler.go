package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/prepstack/attempt-service/internal/models"
	"github.com/prepstack/attempt-service/internal/repositories"
	"github.com/prepstack/attempt-service/internal/services"
	"github.com/prepstack/attempt-service/internal/utils"
)

type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	proctorService services.ProctorService
	analyticsSvc   services.AnalyticsService
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	proctorService services.ProctorService,
	analyticsSvc services.AnalyticsService,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		proctorService: proctorService,
		analyticsSvc:   analyticsSvc,
	}
}

// StartAttempt starts a new test attempt
// @Summary Start test attempt
// @Description Starts a new bound, timed attempt for a test series
// @Tags attempts
// @Accept json
// @Produce json
// @Param attempt body services.StartAttemptRequest true "Start attempt data"
// @Success 201 {object} services.StartAttemptResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	h.LogRequest(c, "Starting test attempt")

	var req services.StartAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, attempt)
}

// SaveProgress saves a partial response batch
// @Summary Save attempt progress
// @Description Merges a response batch into the attempt under optimistic concurrency
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param progress body services.SaveProgressRequest true "Progress data"
// @Success 200 {object} services.SaveProgressResponse
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /attempts/{id}/progress [put]
func (h *AttemptHandler) SaveProgress(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Saving attempt progress", "attempt_id", id)

	var req services.SaveProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	saved, err := h.attemptService.Save(c.Request.Context(), id, req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, saved)
}

// SubmitAttempt submits and grades an attempt
// @Summary Submit test attempt
// @Description Applies a final response batch, grades the attempt, and returns the result
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param attempt body services.SubmitAttemptRequest true "Final responses"
// @Success 200 {object} services.SubmitAttemptResult
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /attempts/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Submitting test attempt", "attempt_id", id)

	var req services.SubmitAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	result, err := h.attemptService.Submit(c.Request.Context(), id, req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ResumeAttempt resumes an interrupted attempt
// @Summary Resume test attempt
// @Description Restores the saved state of an in-progress attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.ResumeAttemptResponse
// @Failure 404 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /attempts/{id}/resume [post]
func (h *AttemptHandler) ResumeAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Resuming test attempt", "attempt_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Resume(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ReviewAttempt returns the graded breakdown
// @Summary Review graded attempt
// @Description Returns the per-question breakdown and analytics of a graded attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param language query string false "Translation language" default(en)
// @Success 200 {object} services.ReviewResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/review [get]
func (h *AttemptHandler) ReviewAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	language := strings.TrimSpace(c.Query("language"))
	if language == "" {
		language = models.DefaultLanguage
	}

	h.LogRequest(c, "Reviewing attempt", "attempt_id", id, "language", language)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	review, err := h.attemptService.Review(c.Request.Context(), id, userID, language)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, review)
}

// LogCheatEvent records an anti-cheat violation
// @Summary Report cheating event
// @Description Records a proctoring violation and applies the escalation thresholds
// @Tags attempts
// @Accept json
// @Produce json
// @Param id path uint true "Attempt ID"
// @Param event body services.CheatEventRequest true "Violation data"
// @Success 200 {object} services.CheatEventResult
// @Failure 400 {object} ErrorResponse
// @Failure 410 {object} ErrorResponse
// @Router /attempts/{id}/cheat-events [post]
func (h *AttemptHandler) LogCheatEvent(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.CheatEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Recording cheating event", "attempt_id", id, "type", req.Type)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	result, err := h.proctorService.LogEvent(c.Request.Context(), id, req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTimeRemaining returns the server-computed attempt clock
// @Summary Get time remaining
// @Description Returns the authoritative remaining seconds for an attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.TimeRemainingResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id}/time-remaining [get]
func (h *AttemptHandler) GetTimeRemaining(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	remaining, err := h.attemptService.GetTimeRemaining(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, remaining)
}

// HandleTimeout submits an expired attempt
// @Summary Handle attempt timeout
// @Description Auto-submits an attempt whose deadline has passed, grading the saved responses
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.SubmitAttemptResult
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /attempts/{id}/timeout [post]
func (h *AttemptHandler) HandleTimeout(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Handling attempt timeout", "attempt_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	result, err := h.attemptService.HandleTimeout(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAttempt retrieves an attempt summary
// @Summary Get attempt
// @Description Retrieves an attempt summary; students see only their own
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptSummary
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /attempts/{id} [get]
func (h *AttemptHandler) GetAttempt(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting attempt", "attempt_id", id)

	requester, err := GetUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	attempt, err := h.attemptService.GetByID(c.Request.Context(), id, requester)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetAttemptAnalytics returns analytics for a graded attempt
// @Summary Get attempt analytics
// @Description Returns accuracy, difficulty, subject, and pacing breakdowns
// @Tags attempts
// @Produce json
// @Param id path uint true "Attempt ID"
// @Success 200 {object} services.AttemptAnalytics
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /attempts/{id}/analytics [get]
func (h *AttemptHandler) GetAttemptAnalytics(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting attempt analytics", "attempt_id", id)

	requester, err := GetUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	analytics, err := h.analyticsSvc.Generate(c.Request.Context(), id, requester)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, analytics)
}

// ListAttempts lists attempts with filters
// @Summary List attempts
// @Description Lists attempts with optional filtering; students see only their own
// @Tags attempts
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(10)
// @Param status query string false "Attempt status"
// @Param series_id query uint false "Series ID"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	h.LogRequest(c, "Listing attempts")

	requester, err := GetUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	filters := h.parseAttemptFilters(c)
	attempts, total, err := h.attemptService.List(c.Request.Context(), filters, requester)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, paginatedResponse(attempts, total, filters.Limit, filters.Offset))
}

func (h *AttemptHandler) parseAttemptFilters(c *gin.Context) repositories.AttemptFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.AttemptFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if status := c.Query("status"); status != "" {
		attemptStatus := models.AttemptStatus(status)
		filters.Status = &attemptStatus
	}

	if seriesID := uint(h.parseIntQuery(c, "series_id", 0)); seriesID != 0 {
		filters.SeriesID = &seriesID
	}

	if studentID := strings.TrimSpace(c.Query("student_id")); studentID != "" {
		filters.StudentID = &studentID
	}

	return filters
}
