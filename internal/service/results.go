package service

import (
	"github.com/langchou/tesquery/internal/models"
	"github.com/langchou/tesquery/internal/nlq"
)

// DrivingHistory 行驶历史查询结果
type DrivingHistory struct {
	VIN          string                 `json:"vin"`
	TimeFrame    nlq.TimeFrame          `json:"time_frame"`
	SegmentCount int                    `json:"segment_count"`
	Journeys     []models.MergedJourney `json:"journeys"`
}

// WeekBucket 单周里程
type WeekBucket struct {
	WeekStart string  `json:"week_start"` // 该 ISO 周周一，YYYY-MM-DD
	Miles     float64 `json:"miles"`
	Drives    int     `json:"drives"`
}

// WeeklyMileage 按周拆分的里程统计
type WeeklyMileage struct {
	VIN        string        `json:"vin"`
	TimeFrame  nlq.TimeFrame `json:"time_frame"`
	TotalMiles float64       `json:"total_miles"`
	Weeks      []WeekBucket  `json:"weeks"`
}

// LocationMileage 指定地点相关的里程统计
type LocationMileage struct {
	VIN       string        `json:"vin"`
	Location  string        `json:"location"`
	TimeFrame nlq.TimeFrame `json:"time_frame"`
	Miles     float64       `json:"miles"`
	Drives    int           `json:"drives"`
}

// QueryResult 自然语言查询的完整响应
type QueryResult struct {
	Query           string              `json:"query"`
	Operation       models.Operation    `json:"operation"`
	Confidence      float64             `json:"confidence"`
	Executed        bool                `json:"executed"`
	Message         string              `json:"message,omitempty"`
	Suggestions     []string            `json:"suggestions,omitempty"`
	Recommendations []string            `json:"recommendations,omitempty"`
	Metrics         models.QueryMetrics `json:"metrics"`
	Data            interface{}         `json:"data,omitempty"`
	Truncated       bool                `json:"truncated,omitempty"`
}
