package nlq

import (
	"testing"
	"time"

	"github.com/langchou/tesquery/internal/models"
)

func dateRange(days int) models.Params {
	end := testNow
	start := end.AddDate(0, 0, -days)
	return models.Params{
		"start_date": start.Format(time.RFC3339),
		"end_date":   end.Format(time.RFC3339),
	}
}

func TestAnalyzeQueryBaseCosts(t *testing.T) {
	tests := []struct {
		op             models.Operation
		wantComplexity float64
		wantSizeKB     float64
	}{
		{models.OpGetDrivingHistory, 30, 15},
		{models.OpGetWeeklyMileage, 35, 10},
		{models.OpGetVehicleCurrentState, 5, 2},
		{models.OpAnalyzeLatestDrive, 40, 25},
		{models.OpGetVehicles, 10, 5}, // 未建模操作走保守默认值
	}
	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			m := AnalyzeQuery(tt.op, models.Params{}, 1)
			if m.ComplexityScore != tt.wantComplexity {
				t.Errorf("complexity = %v, want %v", m.ComplexityScore, tt.wantComplexity)
			}
			if m.EstimatedSizeKB != tt.wantSizeKB {
				t.Errorf("size = %v KB, want %v", m.EstimatedSizeKB, tt.wantSizeKB)
			}
			if m.APICallsRequired != 1 {
				t.Errorf("api calls = %d, want 1", m.APICallsRequired)
			}
		})
	}
}

func TestAnalyzeQueryHistorySurcharges(t *testing.T) {
	params := dateRange(120)
	params["limit"] = 200

	m := AnalyzeQuery(models.OpGetDrivingHistory, params, 1)

	// 30 基础 + 10 超限 limit + 20 超长范围
	if m.ComplexityScore != 60 {
		t.Errorf("complexity = %v, want 60", m.ComplexityScore)
	}
	// 120 天按 30 天分块 → 4 次调用
	if m.APICallsRequired != 4 {
		t.Errorf("api calls = %d, want ceil(120/30) = 4", m.APICallsRequired)
	}
	if len(m.Suggestions) != 2 {
		t.Errorf("suggestions = %v, want 2 entries", m.Suggestions)
	}
}

func TestAnalyzeQueryWeeklyLongRange(t *testing.T) {
	m := AnalyzeQuery(models.OpGetWeeklyMileage, dateRange(45), 1)
	if m.ComplexityScore != 50 {
		t.Errorf("complexity = %v, want 35+15", m.ComplexityScore)
	}
	if len(m.Suggestions) == 0 {
		t.Error("want a suggestion for ranges over 30 days")
	}
}

func TestAnalyzeQueryStateCacheDisabled(t *testing.T) {
	m := AnalyzeQuery(models.OpGetVehicleCurrentState, models.Params{"use_cache": false}, 1)
	if m.ComplexityScore != 10 {
		t.Errorf("complexity = %v, want 5+5", m.ComplexityScore)
	}
	if len(m.Suggestions) == 0 {
		t.Error("want a suggestion when caching is disabled")
	}
}

func TestAnalyzeQueryAnalyzeDaysBack(t *testing.T) {
	m := AnalyzeQuery(models.OpAnalyzeLatestDrive, models.Params{"days_back": 30}, 1)
	if m.ComplexityScore != 50 {
		t.Errorf("complexity = %v, want 40+10", m.ComplexityScore)
	}
}

func TestAnalyzeQueryResultCountScalesSize(t *testing.T) {
	m := AnalyzeQuery(models.OpGetDrivingHistory, models.Params{}, 10)
	if m.EstimatedSizeKB != 150 {
		t.Errorf("size = %v KB, want 150 for 10 results", m.EstimatedSizeKB)
	}
}

func TestOptimizeHistoryCapsLimit(t *testing.T) {
	params := dateRange(45)
	params["limit"] = 500

	opt := OptimizeForMCP(models.OpGetDrivingHistory, params)

	if limit, _ := ParamInt(opt.Params, "limit"); limit != 50 {
		t.Errorf("limit = %d, want capped to 50", limit)
	}
	if chunked, _ := ParamBool(opt.Params, "chunked"); !chunked {
		t.Error("chunked = false, want true for spans over 30 days")
	}
	if !opt.IsOptimized {
		t.Errorf("IsOptimized = false, complexity %v -> %v", opt.OriginalComplexity, opt.OptimizedComplexity)
	}
	// 原参数不被修改
	if params["limit"] != 500 {
		t.Errorf("original params mutated: %v", params)
	}
}

func TestOptimizeWeeklyCapsRange(t *testing.T) {
	opt := OptimizeForMCP(models.OpGetWeeklyMileage, dateRange(90))

	days, ok := rangeDays(opt.Params)
	if !ok {
		t.Fatal("optimized params lost the date range")
	}
	if days > 30 {
		t.Errorf("range = %v days, want <= 30", days)
	}
	if opt.OptimizedComplexity >= opt.OriginalComplexity {
		t.Errorf("complexity did not drop: %v -> %v", opt.OriginalComplexity, opt.OptimizedComplexity)
	}
}

func TestOptimizeStateForcesCache(t *testing.T) {
	opt := OptimizeForMCP(models.OpGetVehicleCurrentState, models.Params{"use_cache": false})

	if useCache, _ := ParamBool(opt.Params, "use_cache"); !useCache {
		t.Error("use_cache = false, want forced true")
	}
	if !opt.IsOptimized {
		t.Error("IsOptimized = false, want true (cache surcharge removed)")
	}
}

func TestOptimizeAnalyzeClampsDaysBack(t *testing.T) {
	tests := []struct {
		name   string
		params models.Params
		want   int
	}{
		{"absent", models.Params{}, 7},
		{"above 14", models.Params{"days_back": 60}, 7},
		{"within range", models.Params{"days_back": 10}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := OptimizeForMCP(models.OpAnalyzeLatestDrive, tt.params)
			if got, _ := ParamInt(opt.Params, "days_back"); got != tt.want {
				t.Errorf("days_back = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOptimizeNoChangeNotMarkedOptimized(t *testing.T) {
	opt := OptimizeForMCP(models.OpGetVehicles, models.Params{})
	if opt.IsOptimized {
		t.Error("IsOptimized = true for untouched query, want false")
	}
	if opt.OriginalComplexity != opt.OptimizedComplexity {
		t.Errorf("complexity changed: %v -> %v", opt.OriginalComplexity, opt.OptimizedComplexity)
	}
}
