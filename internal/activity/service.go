// Package activity implements the append-only audit log.
package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/router-for-me/adminpanel/internal/db"
	"github.com/router-for-me/adminpanel/internal/metrics"
	"github.com/router-for-me/adminpanel/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// DefaultLimit is the page size used when none is requested.
	DefaultLimit = 20
	// MaxLimit caps the page size.
	MaxLimit = 100
	// DefaultStatsWindowDays is the trailing window for UserStats.
	DefaultStatsWindowDays = 30
	// DefaultRetentionDays is the age after which Cleanup removes entries.
	DefaultRetentionDays = 90
	// DefaultRecentLimit is the size of Recent when none is requested.
	DefaultRecentLimit = 10
)

var (
	// ErrInvalidEntry indicates a missing user, action or unknown type.
	ErrInvalidEntry = errors.New("activity: invalid entry")
	// ErrInvalidSort indicates an unsupported sort field or direction.
	ErrInvalidSort = errors.New("activity: invalid sort")
)

// sortColumns maps API sort fields to columns.
var sortColumns = map[string]string{
	"createdAt": "created_at",
	"type":      "type",
	"action":    "action",
	"userId":    "user_id",
}

// Entry is one event to record.
type Entry struct {
	UserID    string
	Type      models.ActivityType
	Action    string
	Details   any
	IPAddress string
	UserAgent string
}

// Filters narrow a query; all set fields must match.
type Filters struct {
	UserID   string
	Type     models.ActivityType
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
}

// Page selects a slice of the result set.
type Page struct {
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
}

// Pagination describes a returned page.
type Pagination struct {
	Page       int
	Limit      int
	Total      int64
	TotalPages int
}

// Result is a page of activities with their owners preloaded.
type Result struct {
	Items      []models.Activity
	Pagination Pagination
}

// Stats aggregates one user's activity over a trailing window.
type Stats struct {
	ByType     map[models.ActivityType]int64 `json:"byType"`
	DailyCount int                           `json:"dailyCount"`
	TotalCount int64                         `json:"totalCount"`
}

// Service reads and writes the audit log.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService creates an activity service backed by conn.
func NewService(conn *gorm.DB) *Service {
	return &Service{db: conn, now: time.Now}
}

// Record inserts one activity. Details are serialized before the insert;
// a serialization failure aborts the write.
func (s *Service) Record(ctx context.Context, entry Entry) (*models.Activity, error) {
	if strings.TrimSpace(entry.UserID) == "" || strings.TrimSpace(entry.Action) == "" || !entry.Type.Valid() {
		return nil, ErrInvalidEntry
	}

	row := models.Activity{
		ID:        ulid.Make().String(),
		UserID:    entry.UserID,
		Type:      entry.Type,
		Action:    entry.Action,
		CreatedAt: s.now().UTC(),
	}
	if entry.Details != nil {
		payload, errMarshal := json.Marshal(entry.Details)
		if errMarshal != nil {
			return nil, fmt.Errorf("activity: marshal details: %w", errMarshal)
		}
		row.Details = payload
	}
	if entry.IPAddress != "" {
		ip := entry.IPAddress
		row.IPAddress = &ip
	}
	if entry.UserAgent != "" {
		ua := entry.UserAgent
		row.UserAgent = &ua
	}

	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("activity: create: %w", errCreate)
	}
	metrics.ActivitiesRecorded.WithLabelValues(string(row.Type)).Inc()
	return &row, nil
}

// RecordFromRequest records an activity with the requester's address and user agent.
func (s *Service) RecordFromRequest(ctx context.Context, r *http.Request, userID string, activityType models.ActivityType, action string, details any) (*models.Activity, error) {
	return s.Record(ctx, Entry{
		UserID:    userID,
		Type:      activityType,
		Action:    action,
		Details:   details,
		IPAddress: ClientIP(r),
		UserAgent: UserAgent(r),
	})
}

// RecordBestEffort records an activity after a committed mutation.
// Failures are logged and counted but never returned.
func (s *Service) RecordBestEffort(ctx context.Context, r *http.Request, userID string, activityType models.ActivityType, action string, details any) {
	if _, errRecord := s.RecordFromRequest(ctx, r, userID, activityType, action, details); errRecord != nil {
		metrics.ActivityWriteFailures.Inc()
		log.WithError(errRecord).WithFields(log.Fields{
			"user_id": userID,
			"type":    activityType,
			"action":  action,
		}).Warn("activity: audit write failed after committed operation")
	}
}

// NormalizePage applies defaults and clamps the page size to [1, MaxLimit].
func NormalizePage(page Page, defaultLimit int) (Page, error) {
	if page.Page < 1 {
		page.Page = 1
	}
	switch {
	case page.Limit == 0:
		page.Limit = defaultLimit
	case page.Limit < 1:
		page.Limit = 1
	case page.Limit > MaxLimit:
		page.Limit = MaxLimit
	}
	if page.SortBy == "" {
		page.SortBy = "createdAt"
	}
	if _, ok := sortColumns[page.SortBy]; !ok {
		return page, ErrInvalidSort
	}
	page.SortOrder = strings.ToLower(page.SortOrder)
	if page.SortOrder == "" {
		page.SortOrder = "desc"
	}
	if page.SortOrder != "asc" && page.SortOrder != "desc" {
		return page, ErrInvalidSort
	}
	return page, nil
}

// TotalPages returns ceil(total / limit).
func TotalPages(total int64, limit int) int {
	if limit <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(limit) - 1) / int64(limit))
}

func (s *Service) filtered(ctx context.Context, filters Filters) *gorm.DB {
	conn := s.db.WithContext(ctx)
	q := conn.Model(&models.Activity{})
	if filters.UserID != "" {
		q = q.Where("user_id = ?", filters.UserID)
	}
	if filters.Type != "" {
		q = q.Where("type = ?", filters.Type)
	}
	if filters.DateFrom != nil {
		q = q.Where("created_at >= ?", filters.DateFrom.UTC())
	}
	if filters.DateTo != nil {
		q = q.Where("created_at <= ?", filters.DateTo.UTC())
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		q = q.Where(db.CaseInsensitiveLikeExpr(conn, "action"), db.ContainsPattern(conn, search))
	}
	return q
}

// Query returns one page of activities matching filters.
func (s *Service) Query(ctx context.Context, filters Filters, page Page) (Result, error) {
	page, errPage := NormalizePage(page, DefaultLimit)
	if errPage != nil {
		return Result{}, errPage
	}

	var total int64
	if errCount := s.filtered(ctx, filters).Count(&total).Error; errCount != nil {
		return Result{}, fmt.Errorf("activity: count: %w", errCount)
	}

	items := make([]models.Activity, 0, page.Limit)
	column := sortColumns[page.SortBy]
	errFind := s.filtered(ctx, filters).
		Preload("User", func(tx *gorm.DB) *gorm.DB {
			return tx.Select("id", "name", "email", "avatar")
		}).
		Order(column + " " + page.SortOrder).
		Order("id " + page.SortOrder).
		Offset((page.Page - 1) * page.Limit).
		Limit(page.Limit).
		Find(&items).Error
	if errFind != nil {
		return Result{}, fmt.Errorf("activity: query: %w", errFind)
	}

	return Result{
		Items: items,
		Pagination: Pagination{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      total,
			TotalPages: TotalPages(total, page.Limit),
		},
	}, nil
}

// CountByType groups matching activities by type.
func (s *Service) CountByType(ctx context.Context, filters Filters) (map[models.ActivityType]int64, error) {
	// typeCount receives one grouped row.
	type typeCount struct {
		Type  models.ActivityType
		Count int64
	}
	var rows []typeCount
	if errScan := s.filtered(ctx, filters).Select("type, COUNT(*) AS count").Group("type").Scan(&rows).Error; errScan != nil {
		return nil, fmt.Errorf("activity: count by type: %w", errScan)
	}
	out := make(map[models.ActivityType]int64, len(rows))
	for _, row := range rows {
		out[row.Type] = row.Count
	}
	return out, nil
}

// UserStats aggregates userID's activity over the trailing windowDays days.
// DailyCount is the number of distinct UTC calendar days with at least one event.
func (s *Service) UserStats(ctx context.Context, userID string, windowDays int) (Stats, error) {
	if windowDays <= 0 {
		windowDays = DefaultStatsWindowDays
	}
	since := s.now().UTC().AddDate(0, 0, -windowDays)
	filters := Filters{UserID: userID, DateFrom: &since}

	byType, errByType := s.CountByType(ctx, filters)
	if errByType != nil {
		return Stats{}, errByType
	}
	var total int64
	for _, count := range byType {
		total += count
	}

	var stamps []time.Time
	if errPluck := s.filtered(ctx, filters).Pluck("created_at", &stamps).Error; errPluck != nil {
		return Stats{}, fmt.Errorf("activity: user stats days: %w", errPluck)
	}
	days := make(map[string]struct{}, len(stamps))
	for _, stamp := range stamps {
		days[stamp.UTC().Format(time.DateOnly)] = struct{}{}
	}

	return Stats{ByType: byType, DailyCount: len(days), TotalCount: total}, nil
}

// DailyCounts returns the number of events per UTC day over the trailing days, oldest first.
func (s *Service) DailyCounts(ctx context.Context, days int) ([]DayCount, error) {
	if days <= 0 {
		return nil, nil
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	var stamps []time.Time
	if errPluck := s.filtered(ctx, Filters{DateFrom: &since}).Pluck("created_at", &stamps).Error; errPluck != nil {
		return nil, fmt.Errorf("activity: daily counts: %w", errPluck)
	}
	return bucketByDay(stamps, since, days), nil
}

// DayCount is the number of events on one UTC day.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// bucketByDay counts stamps per UTC day starting at since, emitting zero-filled buckets.
func bucketByDay(stamps []time.Time, since time.Time, days int) []DayCount {
	counts := make(map[string]int64, days)
	for _, stamp := range stamps {
		counts[stamp.UTC().Format(time.DateOnly)]++
	}
	out := make([]DayCount, 0, days)
	for i := 0; i < days; i++ {
		key := since.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, DayCount{Date: key, Count: counts[key]})
	}
	return out
}

// Recent returns userID's latest activities, newest first.
func (s *Service) Recent(ctx context.Context, userID string, limit int) ([]models.Activity, error) {
	switch {
	case limit == 0:
		limit = DefaultRecentLimit
	case limit < 1:
		limit = 1
	case limit > MaxLimit:
		limit = MaxLimit
	}
	items := make([]models.Activity, 0, limit)
	if errFind := s.filtered(ctx, Filters{UserID: userID}).
		Order("created_at desc").
		Order("id desc").
		Limit(limit).
		Find(&items).Error; errFind != nil {
		return nil, fmt.Errorf("activity: recent: %w", errFind)
	}
	return items, nil
}

// CountByUser returns the number of activities owned by each of userIDs.
func (s *Service) CountByUser(ctx context.Context, userIDs []string) (map[string]int64, error) {
	out := make(map[string]int64, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	// userCount receives one grouped row.
	type userCount struct {
		UserID string
		Count  int64
	}
	var rows []userCount
	if errScan := s.db.WithContext(ctx).Model(&models.Activity{}).
		Select("user_id, COUNT(*) AS count").
		Where("user_id IN ?", userIDs).
		Group("user_id").
		Scan(&rows).Error; errScan != nil {
		return nil, fmt.Errorf("activity: count by user: %w", errScan)
	}
	for _, row := range rows {
		out[row.UserID] = row.Count
	}
	return out, nil
}

// Cleanup deletes activities older than retentionDays and returns how many were removed.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Activity{})
	if res.Error != nil {
		return 0, fmt.Errorf("activity: cleanup: %w", res.Error)
	}
	metrics.ActivitiesCleaned.Add(float64(res.RowsAffected))
	return res.RowsAffected, nil
}

// SortFields lists the accepted sort fields.
func SortFields() []string {
	out := make([]string, 0, len(sortColumns))
	for field := range sortColumns {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}
