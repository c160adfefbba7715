package nlq

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeFrame 绝对时间范围
type TimeFrame struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// StartISO 起点的 ISO-8601 表示
func (tf TimeFrame) StartISO() string { return tf.Start.Format(time.RFC3339) }

// EndISO 终点的 ISO-8601 表示
func (tf TimeFrame) EndISO() string { return tf.End.Format(time.RFC3339) }

var lastNDaysRe = regexp.MustCompile(`last\s+(\d+)\s+days?`)

// ExtractTimeFrame 把相对时间短语解析为绝对时间范围。
// 匹配顺序即优先级：更具体的短语先于泛化短语检查，
// 全部不匹配时默认最近 30 天。now 由调用方注入以便测试。
func ExtractTimeFrame(text string, now time.Time) TimeFrame {
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "last month") || strings.Contains(lower, "previous month"):
		firstOfThis := startOfMonth(now)
		return TimeFrame{
			Start: firstOfThis.AddDate(0, -1, 0),
			End:   endOfDay(firstOfThis.AddDate(0, 0, -1)),
		}

	case strings.Contains(lower, "this month") || strings.Contains(lower, "current month"):
		return TimeFrame{Start: startOfMonth(now), End: now}

	case strings.Contains(lower, "last week") || strings.Contains(lower, "previous week"):
		return TimeFrame{Start: startOfDay(now.AddDate(0, 0, -7)), End: now}

	case strings.Contains(lower, "this week"):
		// 周一为一周起点；周日回退到 6 天前的周一
		offset := (int(now.Weekday()) + 6) % 7
		return TimeFrame{Start: startOfDay(now.AddDate(0, 0, -offset)), End: now}

	case lastNDaysRe.MatchString(lower):
		n, _ := strconv.Atoi(lastNDaysRe.FindStringSubmatch(lower)[1])
		return TimeFrame{Start: startOfDay(now.AddDate(0, 0, -n)), End: now}

	case strings.Contains(lower, "today"):
		return TimeFrame{Start: startOfDay(now), End: now}

	case strings.Contains(lower, "yesterday"):
		y := now.AddDate(0, 0, -1)
		return TimeFrame{Start: startOfDay(y), End: endOfDay(y)}

	default:
		return TimeFrame{Start: startOfDay(now.AddDate(0, 0, -30)), End: now}
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999e6, t.Location())
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
