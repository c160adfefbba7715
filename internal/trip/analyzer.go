package trip

import (
	"fmt"
	"strings"

	"github.com/langchou/tesquery/internal/models"
)

// DefaultPackKWh 默认标称电池容量（kWh），可通过配置覆盖
const DefaultPackKWh = 75.0

// AnalyzeLatestJourney 对最近一次合并出行计算耗电与自动驾驶统计。
// 空输入返回 (nil, nil)，表示「无数据」而非错误。
func AnalyzeLatestJourney(segments []models.RawDriveSegment, packKWh float64) (*models.JourneyAnalysis, error) {
	journeys, err := MergeDrives(segments)
	if err != nil {
		return nil, err
	}
	if len(journeys) == 0 {
		return nil, nil
	}
	if packKWh <= 0 {
		packKWh = DefaultPackKWh
	}

	// 出行列表按开始时间升序，最后一个即最近
	latest := journeys[len(journeys)-1]

	analysis := &models.JourneyAnalysis{
		Journey: latest,
		Battery: analyzeBattery(latest, latest.TotalDistance, packKWh),
		FSD:     analyzeFSD(latest, collectSegments(segments, latest.SegmentIDs)),
	}
	analysis.Summary = buildSummary(analysis)

	return analysis, nil
}

// analyzeBattery 耗电统计。percentage_used 可能为负（窗口内电量上升），
// 按原样保留，不做钳制。
func analyzeBattery(j models.MergedJourney, distance, packKWh float64) models.BatteryConsumption {
	used := j.StartBattery - j.EndBattery
	b := models.BatteryConsumption{
		PercentageUsed:   used,
		EstimatedKWhUsed: float64(used) / 100.0 * packKWh,
	}
	if b.EstimatedKWhUsed > 0 {
		eff := distance / b.EstimatedKWhUsed
		b.EfficiencyMiPerKWh = &eff
	}
	return b
}

// analyzeFSD 自动驾驶统计。任一组成段上报过自动驾驶里程才视为数据可用，
// 不可用时给出说明而不是报错。
func analyzeFSD(j models.MergedJourney, segments []models.RawDriveSegment) models.FSDStats {
	stats := models.FSDStats{
		TotalAutopilotMiles: j.AutopilotDistance,
	}
	for i := range segments {
		if segments[i].AutopilotDistance != nil {
			stats.AutopilotAvailable = true
			break
		}
	}
	if !stats.AutopilotAvailable {
		stats.Note = "autopilot distance not reported by the data source for this journey"
		return stats
	}
	if j.TotalDistance > 0 {
		stats.FSDPercentage = j.AutopilotDistance / j.TotalDistance * 100
	}
	return stats
}

// collectSegments 挑出属于该出行的原始段
func collectSegments(segments []models.RawDriveSegment, ids []int64) []models.RawDriveSegment {
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]models.RawDriveSegment, 0, len(ids))
	for i := range segments {
		if _, ok := want[segments[i].ID]; ok {
			out = append(out, segments[i])
		}
	}
	return out
}

// buildSummary 生成可读摘要。内容固定提及总里程、耗电百分比、
// 自动驾驶占比（或不可用）以及停留次数与类型。
func buildSummary(a *models.JourneyAnalysis) string {
	j := a.Journey

	var sb strings.Builder
	fmt.Fprintf(&sb, "Journey from %s to %s: %.1f miles in %.0f minutes (%.0f minutes driving)",
		j.StartLocation, j.EndLocation, j.TotalDistance, j.TotalMinutes, j.DrivingMinutes)
	fmt.Fprintf(&sb, ", battery %d%% -> %d%% (%d%% used, ~%.1f kWh)",
		j.StartBattery, j.EndBattery, a.Battery.PercentageUsed, a.Battery.EstimatedKWhUsed)
	if a.Battery.EfficiencyMiPerKWh != nil {
		fmt.Fprintf(&sb, ", %.1f mi/kWh", *a.Battery.EfficiencyMiPerKWh)
	}

	if a.FSD.AutopilotAvailable {
		fmt.Fprintf(&sb, ". Autopilot covered %.1f miles (%.0f%% of the journey)",
			a.FSD.TotalAutopilotMiles, a.FSD.FSDPercentage)
	} else {
		sb.WriteString(". Autopilot data unavailable")
	}

	if len(j.Stops) == 0 {
		sb.WriteString(". Non-stop.")
	} else {
		counts := make(map[models.StopType]int)
		for _, s := range j.Stops {
			counts[s.Type]++
		}
		fmt.Fprintf(&sb, ". %d stop(s)", len(j.Stops))
		if counts[models.StopCharging] > 0 {
			fmt.Fprintf(&sb, ", %d charging", counts[models.StopCharging])
		}
		if counts[models.StopShort] > 0 {
			fmt.Fprintf(&sb, ", %d short", counts[models.StopShort])
		}
		sb.WriteString(".")
	}

	return sb.String()
}
