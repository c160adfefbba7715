package models

// Operation 查询操作枚举
type Operation string

const (
	OpAnalyzeLatestDrive     Operation = "analyze_latest_drive"
	OpGetWeeklyMileage       Operation = "get_weekly_mileage"
	OpGetDrivingHistory      Operation = "get_driving_history"
	OpGetMileageAtLocation   Operation = "get_mileage_at_location"
	OpGetVehicleCurrentState Operation = "get_vehicle_current_state"
	OpGetVehicles            Operation = "get_vehicles"
	OpUnknown                Operation = "unknown"
)

// Params 操作参数
type Params map[string]interface{}

// Clone 复制参数表
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ParsedQuery 自然语言解析结果
type ParsedQuery struct {
	Operation  Operation `json:"operation"`
	Params     Params    `json:"params"`
	Confidence float64   `json:"confidence"` // [0,1]，低于 0.5 视为无法理解
}

// QueryMetrics 查询成本估算
type QueryMetrics struct {
	EstimatedSizeKB  float64  `json:"estimated_size_kb"`
	ComplexityScore  float64  `json:"complexity_score"`
	APICallsRequired int      `json:"api_calls_required"`
	Suggestions      []string `json:"suggestions"`
}

// OptimizedQuery 参数改写结果
type OptimizedQuery struct {
	IsOptimized         bool     `json:"is_optimized"`
	OriginalComplexity  float64  `json:"original_complexity"`
	OptimizedComplexity float64  `json:"optimized_complexity"`
	Recommendations     []string `json:"recommendations"`
	Params              Params   `json:"params"`
}
