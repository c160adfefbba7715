package models

// StopType 停留类型
type StopType string

const (
	StopShort    StopType = "short"    // 短暂停留（< 7 分钟）
	StopCharging StopType = "charging" // 充电停留（电量上升）
	StopExcluded StopType = "excluded" // 排除的停留（不参与合并）
)

// RawDriveSegment 聚合服务返回的单段原始行程
type RawDriveSegment struct {
	ID                 int64    `json:"id"`
	StartedAt          int64    `json:"started_at"` // Unix 秒
	EndedAt            int64    `json:"ended_at"`   // Unix 秒
	StartLocation      string   `json:"starting_location"`
	EndLocation        string   `json:"ending_location"`
	StartSavedLocation *string  `json:"starting_saved_location,omitempty"`
	EndSavedLocation   *string  `json:"ending_saved_location,omitempty"`
	StartOdometer      float64  `json:"starting_odometer"`            // 英里
	EndOdometer        float64  `json:"ending_odometer"`              // 英里
	StartBattery       int      `json:"starting_battery"`             // 0-100
	EndBattery         int      `json:"ending_battery"`               // 0-100
	Distance           float64  `json:"odometer_distance"`            // 英里
	AutopilotDistance  *float64 `json:"autopilot_distance,omitempty"` // 英里，nil 表示未知
	AverageSpeed       *float64 `json:"average_speed,omitempty"`      // 英里/小时
	MaxSpeed           *float64 `json:"max_speed,omitempty"`          // 英里/小时
	EnergyUsed         *float64 `json:"energy_used,omitempty"`        // kWh
}

// DurationMinutes 该段行程的驾驶时长（分钟）
func (s *RawDriveSegment) DurationMinutes() float64 {
	return float64(s.EndedAt-s.StartedAt) / 60.0
}

// StartLabel 起点标签，优先使用保存的位置名
func (s *RawDriveSegment) StartLabel() string {
	if s.StartSavedLocation != nil && *s.StartSavedLocation != "" {
		return *s.StartSavedLocation
	}
	return s.StartLocation
}

// EndLabel 终点标签，优先使用保存的位置名
func (s *RawDriveSegment) EndLabel() string {
	if s.EndSavedLocation != nil && *s.EndSavedLocation != "" {
		return *s.EndSavedLocation
	}
	return s.EndLocation
}

// Stop 合并行程中两段之间的停留
type Stop struct {
	Location        string   `json:"location"`
	DurationMinutes float64  `json:"duration_minutes"`
	Type            StopType `json:"type"`
	StartedAt       int64    `json:"started_at"`
	EndedAt         int64    `json:"ended_at"`
}

// MergedJourney 由一段或多段原始行程合并而成的逻辑行程
type MergedJourney struct {
	ID                string  `json:"id"`
	SegmentIDs        []int64 `json:"segment_ids"` // 按开始时间升序
	StartedAt         int64   `json:"started_at"`
	EndedAt           int64   `json:"ended_at"`
	StartLocation     string  `json:"start_location"`
	EndLocation       string  `json:"end_location"`
	StartBattery      int     `json:"start_battery"`
	EndBattery        int     `json:"end_battery"`
	TotalDistance     float64 `json:"total_distance"`  // 英里
	TotalMinutes      float64 `json:"total_minutes"`   // 含停留
	DrivingMinutes    float64 `json:"driving_minutes"` // 仅驾驶时间
	Stops             []Stop  `json:"stops"`
	AutopilotDistance float64 `json:"autopilot_distance"` // 英里
	AutopilotPercent  float64 `json:"autopilot_percent"`
	EnergyConsumed    int     `json:"energy_consumed"` // 电量百分比差，代理耗电量
	AverageSpeed      float64 `json:"average_speed"`   // 英里/小时
	MaxSpeed          float64 `json:"max_speed"`       // 英里/小时
}

// BatteryConsumption 行程耗电统计
type BatteryConsumption struct {
	PercentageUsed     int      `json:"percentage_used"` // 可能为负（窗口内电量上升），按原样保留
	EstimatedKWhUsed   float64  `json:"estimated_kwh_used"`
	EfficiencyMiPerKWh *float64 `json:"efficiency_miles_per_kwh,omitempty"`
}

// FSDStats 自动驾驶统计
type FSDStats struct {
	TotalAutopilotMiles float64 `json:"total_autopilot_miles"`
	FSDPercentage       float64 `json:"fsd_percentage"`
	AutopilotAvailable  bool    `json:"autopilot_available"`
	Note                string  `json:"note,omitempty"`
}

// JourneyAnalysis 最近一次合并行程的分析报告
type JourneyAnalysis struct {
	Journey MergedJourney      `json:"journey"`
	Battery BatteryConsumption `json:"battery"`
	FSD     FSDStats           `json:"fsd"`
	Summary string             `json:"summary"`
}
