package nlq

import (
	"fmt"
	"math"
	"time"

	"github.com/langchou/tesquery/internal/models"
)

// 硬性上限，镜像 AnalyzeQuery 的加价规则
const (
	maxHistoryLimit    = 50
	maxRangeDays       = 30
	chunkDays          = 30
	longRangeDays      = 90
	maxAnalyzeDaysBack = 14
	defaultDaysBack    = 7
)

// queryCost 单个操作的基础成本
type queryCost struct {
	complexity float64
	sizeKB     float64
	apiCalls   int
}

// 成本模型是纯数据：按操作查表，而不是分支链
var baseCosts = map[models.Operation]queryCost{
	models.OpGetDrivingHistory:      {complexity: 30, sizeKB: 15, apiCalls: 1},
	models.OpGetWeeklyMileage:       {complexity: 35, sizeKB: 10, apiCalls: 1},
	models.OpGetVehicleCurrentState: {complexity: 5, sizeKB: 2, apiCalls: 1},
	models.OpAnalyzeLatestDrive:     {complexity: 40, sizeKB: 25, apiCalls: 1}, // 含合并+分析成本
}

// 未知操作的保守默认值
var defaultCost = queryCost{complexity: 10, sizeKB: 5, apiCalls: 1}

// AnalyzeQuery 估算一次操作的响应大小、复杂度与上游调用次数，
// 并给出人类可读的优化建议。estimatedResultCount 用于放大响应体积估算。
func AnalyzeQuery(op models.Operation, params models.Params, estimatedResultCount int) models.QueryMetrics {
	cost, ok := baseCosts[op]
	if !ok {
		cost = defaultCost
	}

	m := models.QueryMetrics{
		EstimatedSizeKB:  cost.sizeKB,
		ComplexityScore:  cost.complexity,
		APICallsRequired: cost.apiCalls,
		Suggestions:      []string{},
	}
	if estimatedResultCount > 1 {
		m.EstimatedSizeKB *= float64(estimatedResultCount)
	}

	switch op {
	case models.OpGetDrivingHistory:
		if limit, ok := paramInt(params, "limit"); ok && limit > 100 {
			m.ComplexityScore += 10
			m.Suggestions = append(m.Suggestions,
				fmt.Sprintf("limit of %d is high; consider 50 or less to keep responses small", limit))
		}
		if days, ok := rangeDays(params); ok && days > longRangeDays {
			m.ComplexityScore += 20
			m.APICallsRequired = int(math.Ceil(days / float64(chunkDays))) // 按月分块
			m.Suggestions = append(m.Suggestions,
				fmt.Sprintf("date range of %.0f days requires %d chunked API calls; consider a narrower range", days, m.APICallsRequired))
		}

	case models.OpGetWeeklyMileage:
		if days, ok := rangeDays(params); ok && days > float64(maxRangeDays) {
			m.ComplexityScore += 15
			m.Suggestions = append(m.Suggestions,
				fmt.Sprintf("range of %.0f days is long for a mileage breakdown; 30 days or less is cheaper", days))
		}

	case models.OpGetVehicleCurrentState:
		if useCache, ok := paramBool(params, "use_cache"); ok && !useCache {
			m.ComplexityScore += 5
			m.Suggestions = append(m.Suggestions,
				"caching disabled; enable use_cache to avoid waking the vehicle API")
		}

	case models.OpAnalyzeLatestDrive:
		if daysBack, ok := paramInt(params, "days_back"); ok && daysBack > defaultDaysBack {
			m.ComplexityScore += 10
			m.Suggestions = append(m.Suggestions,
				fmt.Sprintf("days_back of %d fetches more segments than needed; 7 is usually enough to find the latest drive", daysBack))
		}
	}

	return m
}

// OptimizeForMCP 在派发前改写参数，保证结果体量可控：
// 历史查询限流到 50 条并在超过 30 天时标记分块；
// 周里程范围截断到 30 天；当前状态强制走缓存；
// 行程分析的 days_back 缺失或超过 14 时钳到 7。
func OptimizeForMCP(op models.Operation, params models.Params) models.OptimizedQuery {
	original := AnalyzeQuery(op, params, 1)

	optimized := params.Clone()
	var recommendations []string

	switch op {
	case models.OpGetDrivingHistory:
		limit, ok := paramInt(optimized, "limit")
		if !ok || limit > maxHistoryLimit {
			optimized["limit"] = maxHistoryLimit
			recommendations = append(recommendations,
				fmt.Sprintf("capped result limit to %d", maxHistoryLimit))
		}
		if days, ok := rangeDays(optimized); ok && days > float64(maxRangeDays) {
			optimized["chunked"] = true
			recommendations = append(recommendations,
				"date span exceeds 30 days; responses will be fetched in chunks")
		}

	case models.OpGetWeeklyMileage:
		if days, ok := rangeDays(optimized); ok && days > float64(maxRangeDays) {
			start, _ := paramTime(optimized, "start_date")
			optimized["end_date"] = start.AddDate(0, 0, maxRangeDays).Format(time.RFC3339)
			recommendations = append(recommendations,
				fmt.Sprintf("shortened date range to %d days", maxRangeDays))
		}

	case models.OpGetVehicleCurrentState:
		if useCache, ok := paramBool(optimized, "use_cache"); !ok || !useCache {
			optimized["use_cache"] = true
			recommendations = append(recommendations, "enabled response caching")
		}

	case models.OpAnalyzeLatestDrive:
		daysBack, ok := paramInt(optimized, "days_back")
		if !ok || daysBack > maxAnalyzeDaysBack {
			optimized["days_back"] = defaultDaysBack
			recommendations = append(recommendations,
				fmt.Sprintf("clamped days_back to %d", defaultDaysBack))
		}
	}

	after := AnalyzeQuery(op, optimized, 1)
	if recommendations == nil {
		recommendations = []string{}
	}

	return models.OptimizedQuery{
		IsOptimized:         after.ComplexityScore < original.ComplexityScore,
		OriginalComplexity:  original.ComplexityScore,
		OptimizedComplexity: after.ComplexityScore,
		Recommendations:     recommendations,
		Params:              optimized,
	}
}

// rangeDays 根据 start_date / end_date 参数计算跨度天数
func rangeDays(params models.Params) (float64, bool) {
	start, ok := paramTime(params, "start_date")
	if !ok {
		return 0, false
	}
	end, ok := paramTime(params, "end_date")
	if !ok {
		return 0, false
	}
	return end.Sub(start).Hours() / 24, true
}

// paramInt 读取整型参数，兼容 JSON 解码产生的 float64
func paramInt(params models.Params, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func paramBool(params models.Params, key string) (bool, bool) {
	v, ok := params[key].(bool)
	return v, ok
}

func paramTime(params models.Params, key string) (time.Time, bool) {
	switch v := params[key].(type) {
	case time.Time:
		return v, true
	case string:
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	default:
		return time.Time{}, false
	}
}

// ParamInt 供派发层读取参数
func ParamInt(params models.Params, key string) (int, bool) { return paramInt(params, key) }

// ParamBool 供派发层读取参数
func ParamBool(params models.Params, key string) (bool, bool) { return paramBool(params, key) }

// ParamTime 供派发层读取参数
func ParamTime(params models.Params, key string) (time.Time, bool) { return paramTime(params, key) }

// ParamString 供派发层读取参数
func ParamString(params models.Params, key string) (string, bool) {
	s, ok := params[key].(string)
	return s, ok
}
