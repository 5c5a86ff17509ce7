package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/errs"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/models"
)

const dateOnlyLayout = "2006-01-02"

// ActivityHandler serves the audit log.
type ActivityHandler struct {
	activities *activity.Service
}

// NewActivityHandler constructs an ActivityHandler.
func NewActivityHandler(activities *activity.Service) *ActivityHandler {
	return &ActivityHandler{activities: activities}
}

// List queries activities with filters, sorting and pagination.
func (h *ActivityHandler) List(c *gin.Context) {
	filters, errFilters := activityFilters(c)
	if errFilters != nil {
		envelope.Error(c, errFilters)
		return
	}
	page, errPage := queryInt(c, "page", 1)
	if errPage != nil {
		envelope.Error(c, errPage)
		return
	}
	limit, errLimit := queryInt(c, "limit", 0)
	if errLimit != nil {
		envelope.Error(c, errLimit)
		return
	}

	result, errQuery := h.activities.Query(c.Request.Context(), filters, activity.Page{
		Page:      page,
		Limit:     limit,
		SortBy:    strings.TrimSpace(c.Query("sortBy")),
		SortOrder: strings.TrimSpace(c.Query("sortOrder")),
	})
	if errQuery != nil {
		envelope.Error(c, errQuery)
		return
	}
	envelope.Page(c, newActivityViews(result.Items), envelope.Meta{
		Page:       result.Pagination.Page,
		Limit:      result.Pagination.Limit,
		Total:      result.Pagination.Total,
		TotalPages: result.Pagination.TotalPages,
	})
}

// Stats aggregates one user's activity over the trailing window.
func (h *ActivityHandler) Stats(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("userId"))
	if userID == "" {
		envelope.Error(c, errs.Validation("", errs.FieldError{Field: "userId", Message: "is required"}))
		return
	}
	days, errDays := queryInt(c, "days", activity.DefaultStatsWindowDays)
	if errDays != nil {
		envelope.Error(c, errDays)
		return
	}
	stats, errStats := h.activities.UserStats(c.Request.Context(), userID, days)
	if errStats != nil {
		envelope.Error(c, errStats)
		return
	}
	envelope.OK(c, stats)
}

func activityFilters(c *gin.Context) (activity.Filters, error) {
	filters := activity.Filters{
		UserID: strings.TrimSpace(c.Query("userId")),
		Search: strings.TrimSpace(c.Query("search")),
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		t := models.ActivityType(strings.ToUpper(raw))
		if !t.Valid() {
			return filters, errs.Validation("", errs.FieldError{Field: "type", Message: "unknown activity type"})
		}
		filters.Type = t
	}
	from, errFrom := parseDateParam(c.Query("dateFrom"), false)
	if errFrom != nil {
		return filters, errs.Validation("", errs.FieldError{Field: "dateFrom", Message: "must be an RFC 3339 timestamp or YYYY-MM-DD"})
	}
	to, errTo := parseDateParam(c.Query("dateTo"), true)
	if errTo != nil {
		return filters, errs.Validation("", errs.FieldError{Field: "dateTo", Message: "must be an RFC 3339 timestamp or YYYY-MM-DD"})
	}
	if from != nil && to != nil && from.After(*to) {
		return filters, errs.Validation("", errs.FieldError{Field: "dateFrom", Message: "must not be after dateTo"})
	}
	filters.DateFrom = from
	filters.DateTo = to
	return filters, nil
}

// parseDateParam accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole UTC day.
func parseDateParam(raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, errParse := time.Parse(time.RFC3339Nano, raw); errParse == nil {
		t = t.UTC()
		return &t, nil
	}
	t, errParse := time.Parse(dateOnlyLayout, raw)
	if errParse != nil {
		return nil, errParse
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
