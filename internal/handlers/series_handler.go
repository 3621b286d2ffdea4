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

type SeriesHandler struct {
	BaseHandler
	seriesService services.SeriesService
}

func NewSeriesHandler(seriesService services.SeriesService, logger utils.Logger) *SeriesHandler {
	return &SeriesHandler{
		BaseHandler:   NewBaseHandler(logger),
		seriesService: seriesService,
	}
}

// GetSeries retrieves a test series
// @Summary Get test series
// @Description Retrieves a series definition with its sections
// @Tags series
// @Produce json
// @Param id path uint true "Series ID"
// @Success 200 {object} models.TestSeries
// @Failure 404 {object} ErrorResponse
// @Router /series/{id} [get]
func (h *SeriesHandler) GetSeries(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting series", "series_id", id)

	series, err := h.seriesService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, series)
}

// ListSeries lists test series with filters
// @Summary List test series
// @Description Lists series with optional mode, creator, and search filters
// @Tags series
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param size query int false "Page size" default(10)
// @Param mode query string false "Series mode"
// @Param query query string false "Title search"
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} ErrorResponse
// @Router /series [get]
func (h *SeriesHandler) ListSeries(c *gin.Context) {
	h.LogRequest(c, "Listing series")

	filters := h.parseSeriesFilters(c)
	series, total, err := h.seriesService.List(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, paginatedResponse(series, total, filters.Limit, filters.Offset))
}

// GetSeriesStats retrieves aggregate attempt statistics
// @Summary Get series statistics
// @Description Aggregate attempt outcomes for a series; creators and staff only
// @Tags series
// @Produce json
// @Param id path uint true "Series ID"
// @Success 200 {object} repositories.AttemptStats
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /series/{id}/stats [get]
func (h *SeriesHandler) GetSeriesStats(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting series stats", "series_id", id)

	requester, err := GetUserFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return
	}

	stats, err := h.seriesService.GetStats(c.Request.Context(), id, requester)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *SeriesHandler) parseSeriesFilters(c *gin.Context) repositories.SeriesFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.SeriesFilters{
		Query:     strings.TrimSpace(c.Query("query")),
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}

	if mode := c.Query("mode"); mode != "" {
		seriesMode := models.SeriesMode(mode)
		filters.Mode = &seriesMode
	}

	if creator := strings.TrimSpace(c.Query("created_by")); creator != "" {
		filters.CreatedBy = &creator
	}

	return filters
}
