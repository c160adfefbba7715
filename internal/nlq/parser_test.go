package nlq

import (
	"testing"

	"github.com/langchou/tesquery/internal/models"
)

func TestParseAnalyzeLatestDrive(t *testing.T) {
	tests := []struct {
		text         string
		wantDaysBack int
	}{
		{"analyze my latest drive", 7},
		{"how long was my last trip", 7},
		{"show battery details for my recent drive", 7},
		{"analyze the trip I took yesterday, my last drive", 2},
		{"analyze my latest drive today", 1},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			q := ParseNaturalLanguage(tt.text, testNow)
			if q.Operation != models.OpAnalyzeLatestDrive {
				t.Fatalf("operation = %q, want analyze_latest_drive", q.Operation)
			}
			if q.Confidence != 0.95 {
				t.Errorf("confidence = %v, want 0.95", q.Confidence)
			}
			if daysBack, _ := ParamInt(q.Params, "days_back"); daysBack != tt.wantDaysBack {
				t.Errorf("days_back = %d, want %d", daysBack, tt.wantDaysBack)
			}
		})
	}
}

func TestParsePostDriveCompletion(t *testing.T) {
	q := ParseNaturalLanguage("I just finished driving, how long did it take", testNow)
	if q.Operation != models.OpAnalyzeLatestDrive {
		t.Fatalf("operation = %q, want analyze_latest_drive", q.Operation)
	}
	if q.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", q.Confidence)
	}
	if daysBack, _ := ParamInt(q.Params, "days_back"); daysBack != 1 {
		t.Errorf("days_back = %d, want 1", daysBack)
	}
}

func TestParseWeeklyMileage(t *testing.T) {
	q := ParseNaturalLanguage("how many miles did I drive this month", testNow)
	if q.Operation != models.OpGetWeeklyMileage {
		t.Fatalf("operation = %q, want get_weekly_mileage", q.Operation)
	}
	if q.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", q.Confidence)
	}
	if _, ok := ParamTime(q.Params, "start_date"); !ok {
		t.Error("start_date missing or not RFC3339")
	}
	if _, ok := ParamTime(q.Params, "end_date"); !ok {
		t.Error("end_date missing or not RFC3339")
	}
}

func TestParseWeeklyMileageWithBreakdown(t *testing.T) {
	q := ParseNaturalLanguage("mileage for last month on a weekly basis", testNow)
	if q.Operation != models.OpGetWeeklyMileage {
		t.Fatalf("operation = %q, want get_weekly_mileage", q.Operation)
	}
	if q.Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95 with breakdown phrase", q.Confidence)
	}
}

func TestParseDrivingHistory(t *testing.T) {
	q := ParseNaturalLanguage("show my driving history", testNow)
	if q.Operation != models.OpGetDrivingHistory {
		t.Fatalf("operation = %q, want get_driving_history", q.Operation)
	}
	if q.Confidence != 0.8 {
		t.Errorf("confidence = %v, want 0.8", q.Confidence)
	}
	if limit, _ := ParamInt(q.Params, "limit"); limit != 50 {
		t.Errorf("limit = %d, want fixed 50", limit)
	}
}

func TestParseLocation(t *testing.T) {
	q := ParseNaturalLanguage("where did I go most often", testNow)
	if q.Operation != models.OpGetMileageAtLocation {
		t.Fatalf("operation = %q, want get_mileage_at_location", q.Operation)
	}
	if q.Confidence != 0.6 {
		t.Errorf("confidence = %v, want 0.6 (lowest, needs entity extraction)", q.Confidence)
	}
}

func TestParseCurrentState(t *testing.T) {
	q := ParseNaturalLanguage("what is the vehicle status", testNow)
	if q.Operation != models.OpGetVehicleCurrentState {
		t.Fatalf("operation = %q, want get_vehicle_current_state", q.Operation)
	}
	if useCache, _ := ParamBool(q.Params, "use_cache"); !useCache {
		t.Error("use_cache = false, want true")
	}
}

func TestParseVehicleList(t *testing.T) {
	q := ParseNaturalLanguage("Show me all my vehicles", testNow)
	if q.Operation != models.OpGetVehicles {
		t.Fatalf("operation = %q, want get_vehicles", q.Operation)
	}
	if q.Confidence < 0.8 {
		t.Errorf("confidence = %v, want >= 0.8", q.Confidence)
	}
}

func TestParseUnknown(t *testing.T) {
	q := ParseNaturalLanguage("asdkj random text", testNow)
	if q.Operation != models.OpUnknown {
		t.Fatalf("operation = %q, want unknown", q.Operation)
	}
	if q.Confidence != 0.0 {
		t.Errorf("confidence = %v, want 0.0", q.Confidence)
	}
	if len(q.Params) != 0 {
		t.Errorf("params = %v, want empty", q.Params)
	}
}

func TestParseFirstMatchWins(t *testing.T) {
	// 同时含「最近行程分析」和「历史」关键词时，排在前面的匹配器胜出
	q := ParseNaturalLanguage("analyze my latest drive from my driving history", testNow)
	if q.Operation != models.OpAnalyzeLatestDrive {
		t.Errorf("operation = %q, want analyze_latest_drive (first matcher wins)", q.Operation)
	}
}
