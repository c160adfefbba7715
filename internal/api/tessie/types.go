package tessie

import (
	"time"

	"github.com/langchou/tesquery/internal/models"
)

// Vehicle 车辆基础信息
type Vehicle struct {
	VIN         string  `json:"vin"`
	DisplayName string  `json:"display_name"`
	State       string  `json:"state"` // online, asleep, offline
	Model       string  `json:"car_type,omitempty"`
	TrimBadging string  `json:"trim_badging,omitempty"`
	Odometer    float64 `json:"odometer,omitempty"` // 英里
}

// vehiclesResponse 车辆列表响应
type vehiclesResponse struct {
	Results []vehicleResult `json:"results"`
}

type vehicleResult struct {
	VIN       string        `json:"vin"`
	LastState *VehicleState `json:"last_state,omitempty"`
}

// drivesResponse 行程列表响应，行程段直接解码为核心模型
type drivesResponse struct {
	Results []models.RawDriveSegment `json:"results"`
}

// VehicleState 车辆状态快照（聚合服务透传的 Tesla 数据子集）
type VehicleState struct {
	VIN          string        `json:"vin,omitempty"`
	DisplayName  string        `json:"display_name"`
	State        string        `json:"state"` // online, asleep, offline
	ChargeState  *ChargeState  `json:"charge_state,omitempty"`
	DriveState   *DriveState   `json:"drive_state,omitempty"`
	ClimateState *ClimateState `json:"climate_state,omitempty"`
	CarState     *CarState     `json:"vehicle_state,omitempty"`
}

// ChargeState 充电状态
type ChargeState struct {
	BatteryLevel   int     `json:"battery_level"`
	BatteryRange   float64 `json:"battery_range"`  // 英里
	ChargingState  string  `json:"charging_state"` // Disconnected, Stopped, Charging, Complete
	ChargerPower   int     `json:"charger_power"`  // kW
	ChargeLimitSoc int     `json:"charge_limit_soc"`
	MinutesToFull  float64 `json:"minutes_to_full_charge"`
	Timestamp      int64   `json:"timestamp"`
}

// DriveState 驾驶状态
type DriveState struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Heading    int     `json:"heading"`
	Speed      *int    `json:"speed,omitempty"`       // 英里/小时，nil 表示停止
	ShiftState *string `json:"shift_state,omitempty"` // D, R, P, N
	Power      int     `json:"power"`                 // kW
	Timestamp  int64   `json:"timestamp"`
}

// ClimateState 空调状态
type ClimateState struct {
	InsideTemp  float64 `json:"inside_temp"`  // 摄氏度
	OutsideTemp float64 `json:"outside_temp"` // 摄氏度
	IsClimateOn bool    `json:"is_climate_on"`
}

// CarState 车身状态
type CarState struct {
	Odometer   float64 `json:"odometer"` // 英里
	Locked     bool    `json:"locked"`
	SentryMode bool    `json:"sentry_mode"`
	CarVersion string  `json:"car_version,omitempty"`
}

// BatteryHealth 电池健康数据
type BatteryHealth struct {
	MaxRange         float64 `json:"max_range"` // 英里
	Capacity         float64 `json:"capacity"`  // kWh
	OriginalCapacity float64 `json:"original_capacity,omitempty"`
	DegradationPct   float64 `json:"degradation_percent,omitempty"`
}

// ParseTimestamp 解析聚合服务的毫秒时间戳
func ParseTimestamp(ts int64) time.Time {
	return time.UnixMilli(ts)
}
