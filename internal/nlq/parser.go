package nlq

import (
	"strings"
	"time"

	"github.com/langchou/tesquery/internal/models"
)

// intentMatcher 意图匹配器：match 命中即用 build 生成结果，
// 按列表顺序求值，先命中者胜出（优先级列表，不是投票）。
type intentMatcher struct {
	name  string
	match func(text string) bool
	build func(text string, now time.Time) models.ParsedQuery
}

// ParseNaturalLanguage 把自由文本映射为操作 + 参数 + 置信度。
// 置信度是匹配器固定给出的常量，不按匹配强度计算；
// 低于 0.5 的结果调用方必须按「无法理解」处理。
func ParseNaturalLanguage(text string, now time.Time) models.ParsedQuery {
	lower := strings.ToLower(text)
	for _, m := range intentMatchers {
		if m.match(lower) {
			return m.build(lower, now)
		}
	}
	return models.ParsedQuery{
		Operation:  models.OpUnknown,
		Params:     models.Params{},
		Confidence: 0.0,
	}
}

var intentMatchers = []intentMatcher{
	{
		// 最近行程分析：需要「最近」+「行程」+「分析」三类词同时出现
		name: "analyze_latest",
		match: func(t string) bool {
			return containsAny(t, "latest", "last", "recent") &&
				containsAny(t, "drive", "trip") &&
				containsAny(t, "analyze", "detail", "how long", "battery", "fsd", "duration")
		},
		build: func(t string, now time.Time) models.ParsedQuery {
			daysBack := 7
			if strings.Contains(t, "yesterday") {
				daysBack = 2
			} else if strings.Contains(t, "today") {
				daysBack = 1
			}
			return models.ParsedQuery{
				Operation:  models.OpAnalyzeLatestDrive,
				Params:     models.Params{"days_back": daysBack},
				Confidence: 0.95,
			}
		},
	},
	{
		// 刚结束的行程：完成类词 + 分析类词
		name: "post_drive",
		match: func(t string) bool {
			return containsAny(t, "finish", "completed", "just drove") &&
				containsAny(t, "analyze", "detail", "how long", "battery", "fsd", "duration")
		},
		build: func(t string, now time.Time) models.ParsedQuery {
			return models.ParsedQuery{
				Operation:  models.OpAnalyzeLatestDrive,
				Params:     models.Params{"days_back": 1},
				Confidence: 0.9,
			}
		},
	},
	{
		// 周/月里程
		name: "weekly_mileage",
		match: func(t string) bool {
			return containsAny(t, "week", "month") && containsAny(t, "mile", "driv")
		},
		build: func(t string, now time.Time) models.ParsedQuery {
			confidence := 0.9
			if containsAny(t, "week by week", "weekly breakdown", "break", "basis") {
				confidence = 0.95
			}
			tf := ExtractTimeFrame(t, now)
			return models.ParsedQuery{
				Operation: models.OpGetWeeklyMileage,
				Params: models.Params{
					"start_date": tf.StartISO(),
					"end_date":   tf.EndISO(),
				},
				Confidence: confidence,
			}
		},
	},
	{
		// 行驶历史
		name: "driving_history",
		match: func(t string) bool {
			return strings.Contains(t, "driv") && containsAny(t, "history", "trip")
		},
		build: func(t string, now time.Time) models.ParsedQuery {
			tf := ExtractTimeFrame(t, now)
			return models.ParsedQuery{
				Operation: models.OpGetDrivingHistory,
				Params: models.Params{
					"start_date": tf.StartISO(),
					"end_date":   tf.EndISO(),
					"limit":      50,
				},
				Confidence: 0.8,
			}
		},
	},
	{
		// 地点里程：置信度最低，实体抽取留给下游
		name: "location",
		match: func(t string) bool {
			return containsAny(t, "location", "place", "where")
		},
		build: func(t string, now time.Time) models.ParsedQuery {
			tf := ExtractTimeFrame(t, now)
			return models.ParsedQuery{
				Operation: models.OpGetMileageAtLocation,
				Params: models.Params{
					"start_date": tf.StartISO(),
					"end_date":   tf.EndISO(),
				},
				Confidence: 0.6,
			}
		},
	},
	{
		// 当前状态
		name: "current_state",
		match: func(t string) bool {
			return containsAny(t, "current", "now", "status")
		},
		build: func(t string, now time.Time) models.ParsedQuery {
			return models.ParsedQuery{
				Operation:  models.OpGetVehicleCurrentState,
				Params:     models.Params{"use_cache": true},
				Confidence: 0.8,
			}
		},
	},
	{
		// 车辆列表
		name: "vehicle_list",
		match: func(t string) bool {
			return strings.Contains(t, "vehicle") && containsAny(t, "list", "all")
		},
		build: func(t string, now time.Time) models.ParsedQuery {
			return models.ParsedQuery{
				Operation:  models.OpGetVehicles,
				Params:     models.Params{},
				Confidence: 0.8,
			}
		},
	},
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
