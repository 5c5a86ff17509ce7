package handlers

import (
	"math"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/adminpanel/internal/activity"
	"github.com/router-for-me/adminpanel/internal/http/api/envelope"
	"github.com/router-for-me/adminpanel/internal/models"
	"gorm.io/gorm"
)

const (
	dashboardWindowDays  = 7
	dashboardRecentLimit = 10
)

// DashboardHandler serves the dashboard summary.
type DashboardHandler struct {
	db         *gorm.DB
	activities *activity.Service
	now        func() time.Time
}

// NewDashboardHandler constructs a DashboardHandler.
func NewDashboardHandler(db *gorm.DB, activities *activity.Service) *DashboardHandler {
	return &DashboardHandler{db: db, activities: activities, now: time.Now}
}

// growthPoint is one day of the user growth series.
type growthPoint struct {
	Date  string `json:"date"`
	Users int64  `json:"users"`
}

// typeCount is one activity type bucket.
type typeCount struct {
	Type  models.ActivityType `json:"type"`
	Count int64               `json:"count"`
}

// Stats returns user totals, a 7-day growth series, recent activity and
// 7-day activity counts. Deleted users are excluded from user figures.
func (h *DashboardHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	now := h.now().UTC()
	startOfToday := now.Truncate(24 * time.Hour)
	weekAgo := now.AddDate(0, 0, -dashboardWindowDays)
	seriesStart := startOfToday.AddDate(0, 0, -(dashboardWindowDays - 1))

	users := func() *gorm.DB {
		return h.db.WithContext(ctx).Model(&models.User{}).Where("status <> ?", models.UserStatusDeleted)
	}

	var totalUsers, activeUsers, newUsersToday, previousWeekUsers int64
	if errCount := users().Count(&totalUsers).Error; errCount != nil {
		envelope.Error(c, errCount)
		return
	}
	if errCount := users().Where("last_login >= ?", weekAgo).Count(&activeUsers).Error; errCount != nil {
		envelope.Error(c, errCount)
		return
	}
	if errCount := users().Where("created_at >= ?", startOfToday).Count(&newUsersToday).Error; errCount != nil {
		envelope.Error(c, errCount)
		return
	}
	if errCount := users().Where("created_at < ?", weekAgo).Count(&previousWeekUsers).Error; errCount != nil {
		envelope.Error(c, errCount)
		return
	}

	var created []time.Time
	if errPluck := users().Where("created_at >= ?", seriesStart).Pluck("created_at", &created).Error; errPluck != nil {
		envelope.Error(c, errPluck)
		return
	}
	growth := make([]growthPoint, dashboardWindowDays)
	index := make(map[string]int, dashboardWindowDays)
	for i := 0; i < dashboardWindowDays; i++ {
		day := seriesStart.AddDate(0, 0, i).Format(dateOnlyLayout)
		growth[i] = growthPoint{Date: day}
		index[day] = i
	}
	for _, t := range created {
		if i, ok := index[t.UTC().Format(dateOnlyLayout)]; ok {
			growth[i].Users++
		}
	}

	growthPercentage := 100.0
	if previousWeekUsers > 0 {
		growthPercentage = float64(totalUsers-previousWeekUsers) / float64(previousWeekUsers) * 100
		growthPercentage = math.Round(growthPercentage*10) / 10
	}

	recent, errRecent := h.activities.Query(ctx, activity.Filters{}, activity.Page{Limit: dashboardRecentLimit})
	if errRecent != nil {
		envelope.Error(c, errRecent)
		return
	}
	byType, errByType := h.activities.CountByType(ctx, activity.Filters{DateFrom: &weekAgo})
	if errByType != nil {
		envelope.Error(c, errByType)
		return
	}
	activityStats := make([]typeCount, 0, len(byType))
	for t, count := range byType {
		activityStats = append(activityStats, typeCount{Type: t, Count: count})
	}
	sort.Slice(activityStats, func(i, j int) bool { return activityStats[i].Type < activityStats[j].Type })

	trend, errTrend := h.activities.DailyCounts(ctx, dashboardWindowDays)
	if errTrend != nil {
		envelope.Error(c, errTrend)
		return
	}

	envelope.OK(c, gin.H{
		"totalUsers":       totalUsers,
		"activeUsers":      activeUsers,
		"newUsersToday":    newUsersToday,
		"growthPercentage": growthPercentage,
		"userGrowthData":   growth,
		"recentActivities": newActivityViews(recent.Items),
		"activityStats":    activityStats,
		"activityTrend":    trend,
	})
}
