package trip

import (
	"fmt"
	"sort"

	"github.com/langchou/tesquery/internal/models"
)

// 相邻两段间隔小于该值（分钟）时视为同一次出行中的短暂停留
const shortStopThresholdMinutes = 7.0

// ValidateSegments 校验原始行程段。时间戳缺失、时间倒置或距离为负
// 均视为非法输入，返回包装了 ErrInvalidInput 的错误。
func ValidateSegments(segments []models.RawDriveSegment) error {
	for _, seg := range segments {
		if seg.StartedAt == 0 || seg.EndedAt == 0 {
			return fmt.Errorf("%w: segment %d missing timestamps", models.ErrInvalidInput, seg.ID)
		}
		if seg.EndedAt < seg.StartedAt {
			return fmt.Errorf("%w: segment %d ends before it starts", models.ErrInvalidInput, seg.ID)
		}
		if seg.Distance < 0 {
			return fmt.Errorf("%w: segment %d has negative distance", models.ErrInvalidInput, seg.ID)
		}
	}
	return nil
}

// shouldMerge 判断相邻两段是否合并为同一次出行。
// 规则一：间隔小于 7 分钟，不论电量变化，停留类型为 short。
// 规则二：下一段起始电量高于上一段结束电量（间隔中发生过充电），
// 不论间隔多长，停留类型为 charging。
// 两条都不满足时不合并。
func shouldMerge(prev, next *models.RawDriveSegment) (models.StopType, bool) {
	gapMinutes := float64(next.StartedAt-prev.EndedAt) / 60.0
	if gapMinutes < shortStopThresholdMinutes {
		return models.StopShort, true
	}
	if next.StartBattery > prev.EndBattery {
		return models.StopCharging, true
	}
	return "", false
}

// MergeDrives 将原始行程段合并为逻辑出行。
// 输入顺序不限：处理前必定先按开始时间升序排序（同刻按 ID），
// 这是合并正确性的前提而不是优化。空输入返回空结果。
func MergeDrives(segments []models.RawDriveSegment) ([]models.MergedJourney, error) {
	if err := ValidateSegments(segments); err != nil {
		return nil, err
	}
	if len(segments) == 0 {
		return []models.MergedJourney{}, nil
	}

	sorted := make([]models.RawDriveSegment, len(segments))
	copy(sorted, segments)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartedAt != sorted[j].StartedAt {
			return sorted[i].StartedAt < sorted[j].StartedAt
		}
		return sorted[i].ID < sorted[j].ID
	})

	journeys := make([]models.MergedJourney, 0, len(sorted))
	group := []models.RawDriveSegment{sorted[0]}
	for i := 1; i < len(sorted); i++ {
		prev := &group[len(group)-1]
		next := &sorted[i]
		if _, ok := shouldMerge(prev, next); ok {
			group = append(group, sorted[i])
			continue
		}
		// 边界闭合：不合并的间隔不会生成 Stop
		journeys = append(journeys, createMergedJourney(group))
		group = []models.RawDriveSegment{sorted[i]}
	}
	journeys = append(journeys, createMergedJourney(group))

	return journeys, nil
}

// createMergedJourney 将已知两两相邻可合并的一组段聚合为一次出行，
// 同一遍中生成停留列表（每对相邻段一个）。
func createMergedJourney(group []models.RawDriveSegment) models.MergedJourney {
	first := group[0]
	last := group[len(group)-1]

	j := models.MergedJourney{
		ID:            fmt.Sprintf("journey-%d", first.ID),
		SegmentIDs:    make([]int64, 0, len(group)),
		StartedAt:     first.StartedAt,
		EndedAt:       last.EndedAt,
		StartLocation: first.StartLabel(),
		EndLocation:   last.EndLabel(),
		StartBattery:  first.StartBattery,
		EndBattery:    last.EndBattery,
		TotalMinutes:  float64(last.EndedAt-first.StartedAt) / 60.0,
		Stops:         make([]models.Stop, 0, len(group)-1),
	}

	for i := range group {
		seg := &group[i]
		j.SegmentIDs = append(j.SegmentIDs, seg.ID)
		j.TotalDistance += seg.Distance
		j.DrivingMinutes += seg.DurationMinutes()
		if seg.AutopilotDistance != nil {
			j.AutopilotDistance += *seg.AutopilotDistance
		}
		if seg.MaxSpeed != nil && *seg.MaxSpeed > j.MaxSpeed {
			j.MaxSpeed = *seg.MaxSpeed
		}

		if i == 0 {
			continue
		}
		prev := &group[i-1]
		stopType, _ := shouldMerge(prev, seg)
		j.Stops = append(j.Stops, models.Stop{
			Location:        prev.EndLabel(),
			DurationMinutes: float64(seg.StartedAt-prev.EndedAt) / 60.0,
			Type:            stopType,
			StartedAt:       prev.EndedAt,
			EndedAt:         seg.StartedAt,
		})
	}

	j.EnergyConsumed = j.StartBattery - j.EndBattery
	if j.TotalDistance > 0 {
		j.AutopilotPercent = j.AutopilotDistance / j.TotalDistance * 100
	}
	if j.DrivingMinutes > 0 {
		j.AverageSpeed = j.TotalDistance / (j.DrivingMinutes / 60.0)
	}

	return j
}
