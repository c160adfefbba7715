package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tesquery/internal/api/tessie"
	"github.com/langchou/tesquery/internal/cache"
	"github.com/langchou/tesquery/internal/config"
	"github.com/langchou/tesquery/internal/models"
	"github.com/langchou/tesquery/internal/nlq"
	"github.com/langchou/tesquery/internal/state"
	"github.com/langchou/tesquery/internal/trip"
	"github.com/langchou/tesquery/pkg/ws"
)

// TelemetryClient 上游聚合服务接口
type TelemetryClient interface {
	ListVehicles(ctx context.Context) ([]tessie.Vehicle, error)
	GetDrives(ctx context.Context, vin string, from, to time.Time, limit int) ([]models.RawDriveSegment, error)
	GetState(ctx context.Context, vin string) (*tessie.VehicleState, error)
	GetBatteryHealth(ctx context.Context, vin string) (*tessie.BatteryHealth, error)
}

// Dispatcher 把解析后的操作派发到上游服务与核心分析逻辑
type Dispatcher struct {
	cfg    *config.Config
	logger *zap.Logger
	client TelemetryClient
	cache  *cache.Cache
	states *state.Manager
	wsHub  *ws.Hub // 可为 nil（MCP 模式无 WebSocket）

	now func() time.Time
}

// NewDispatcher 创建派发器
func NewDispatcher(
	cfg *config.Config,
	logger *zap.Logger,
	client TelemetryClient,
	responseCache *cache.Cache,
	wsHub *ws.Hub,
) *Dispatcher {
	d := &Dispatcher{
		cfg:    cfg,
		logger: logger,
		client: client,
		cache:  responseCache,
		wsHub:  wsHub,
		now:    time.Now,
	}
	d.states = state.NewManager(d.onStateChange)
	return d
}

// States 状态管理器（HTTP 层读取用）
func (d *Dispatcher) States() *state.Manager { return d.states }

// onStateChange 状态变化时记录并广播
func (d *Dispatcher) onStateChange(vin, from, to string) {
	d.logger.Info("Vehicle state changed",
		zap.String("vin", vin),
		zap.String("from", from),
		zap.String("to", to))

	if d.wsHub != nil {
		if machine, ok := d.states.Get(vin); ok {
			d.wsHub.BroadcastStateUpdate(vin, machine.GetSnapshot())
		}
	}
}

// Execute 执行一个结构化操作
func (d *Dispatcher) Execute(ctx context.Context, op models.Operation, params models.Params) (interface{}, error) {
	switch op {
	case models.OpGetVehicles:
		return d.getVehicles(ctx)
	case models.OpGetVehicleCurrentState:
		return d.getCurrentState(ctx, params)
	case models.OpGetDrivingHistory:
		return d.getDrivingHistory(ctx, params)
	case models.OpGetWeeklyMileage:
		return d.getWeeklyMileage(ctx, params)
	case models.OpGetMileageAtLocation:
		return d.getMileageAtLocation(ctx, params)
	case models.OpAnalyzeLatestDrive:
		return d.analyzeLatestDrive(ctx, params)
	default:
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownOperation, op)
	}
}

// HandleQuery 自然语言查询的完整链路：解析 → 置信度门控 → 参数优化 → 派发。
// 置信度低于 0.5 时不执行任何操作，只返回示例说法。
func (d *Dispatcher) HandleQuery(ctx context.Context, text string) (*QueryResult, error) {
	now := d.now()
	parsed := nlq.ParseNaturalLanguage(text, now)

	result := &QueryResult{
		Query:      text,
		Operation:  parsed.Operation,
		Confidence: parsed.Confidence,
	}

	if parsed.Confidence < 0.5 {
		result.Message = "could not understand the query"
		result.Suggestions = []string{
			"analyze my latest drive",
			"how many miles did I drive last week",
			"show my driving history",
			"what is the current vehicle status",
			"show me all my vehicles",
		}
		d.logger.Info("Query below confidence threshold",
			zap.String("query", text),
			zap.Float64("confidence", parsed.Confidence))
		return result, nil
	}

	optimized := nlq.OptimizeForMCP(parsed.Operation, parsed.Params)
	result.Recommendations = optimized.Recommendations
	result.Metrics = nlq.AnalyzeQuery(parsed.Operation, optimized.Params, 1)

	params := optimized.Params
	// 地点意图没有实体抽取，把原始问题透传给下游做子串匹配
	if parsed.Operation == models.OpGetMileageAtLocation {
		if _, ok := nlq.ParamString(params, "location"); !ok {
			params["location"] = text
		}
	}

	data, err := d.Execute(ctx, parsed.Operation, params)
	switch {
	case errors.Is(err, models.ErrNoData):
		result.Executed = true
		result.Message = err.Error()
	case err != nil:
		return nil, err
	default:
		result.Executed = true
		result.Data, result.Truncated = d.truncate(data)
	}

	return result, nil
}

func (d *Dispatcher) getVehicles(ctx context.Context) (interface{}, error) {
	const cacheKey = "vehicles"
	if cached, ok := d.cache.Get(cacheKey); ok {
		return cached, nil
	}

	vehicles, err := d.client.ListVehicles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}

	d.cache.Set(cacheKey, vehicles)
	return vehicles, nil
}

func (d *Dispatcher) getCurrentState(ctx context.Context, params models.Params) (interface{}, error) {
	vin := d.resolveVIN(params)
	if vin == "" {
		return nil, fmt.Errorf("%w: no VIN given and DEFAULT_VIN not configured", models.ErrInvalidInput)
	}

	cacheKey := "state:" + vin
	if useCache, ok := nlq.ParamBool(params, "use_cache"); !ok || useCache {
		if cached, ok := d.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	raw, err := d.client.GetState(ctx, vin)
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}

	snapshot := d.applyState(vin, raw)
	d.cache.Set(cacheKey, snapshot)
	return snapshot, nil
}

// applyState 把聚合服务的快照灌入状态机并广播
func (d *Dispatcher) applyState(vin string, raw *tessie.VehicleState) *state.Snapshot {
	machine := d.states.GetOrCreate(vin, "")

	var shift *string
	chargingState := ""
	if raw.DriveState != nil {
		shift = raw.DriveState.ShiftState
	}
	if raw.ChargeState != nil {
		chargingState = raw.ChargeState.ChargingState
	}
	machine.Observe(raw.State == "online", raw.State == "asleep", shift, chargingState)

	machine.UpdateSnapshot(func(s *state.Snapshot) {
		s.ChargingState = chargingState
		s.ShiftState = shift
		// 数据时间取上游快照里最新的毫秒时间戳，缺失时落到本地时间
		var ts int64
		if raw.ChargeState != nil {
			s.BatteryLevel = raw.ChargeState.BatteryLevel
			s.RangeMiles = raw.ChargeState.BatteryRange
			s.ChargerPower = raw.ChargeState.ChargerPower
			if raw.ChargeState.Timestamp > ts {
				ts = raw.ChargeState.Timestamp
			}
		}
		if raw.DriveState != nil {
			s.Speed = raw.DriveState.Speed
			if raw.DriveState.Timestamp > ts {
				ts = raw.DriveState.Timestamp
			}
		}
		if ts > 0 {
			s.UpdatedAt = tessie.ParseTimestamp(ts)
		} else {
			s.UpdatedAt = d.now()
		}
		if raw.CarState != nil {
			s.Odometer = raw.CarState.Odometer
			s.Locked = raw.CarState.Locked
			s.SentryMode = raw.CarState.SentryMode
		}
		if raw.ClimateState != nil {
			inside, outside := raw.ClimateState.InsideTemp, raw.ClimateState.OutsideTemp
			s.InsideTemp = &inside
			s.OutsideTemp = &outside
		}
	})

	snapshot := machine.GetSnapshot()
	if d.wsHub != nil {
		d.wsHub.BroadcastStateUpdate(vin, snapshot)
	}
	return snapshot
}

// GetBatteryHealth 电池健康数据（容量、衰减），结果缓存
func (d *Dispatcher) GetBatteryHealth(ctx context.Context, vin string) (*tessie.BatteryHealth, error) {
	if vin == "" {
		vin = d.cfg.DefaultVIN
	}
	if vin == "" {
		return nil, fmt.Errorf("%w: no VIN given and DEFAULT_VIN not configured", models.ErrInvalidInput)
	}

	cacheKey := "battery:" + vin
	if cached, ok := d.cache.Get(cacheKey); ok {
		return cached.(*tessie.BatteryHealth), nil
	}

	health, err := d.client.GetBatteryHealth(ctx, vin)
	if err != nil {
		return nil, fmt.Errorf("get battery health: %w", err)
	}

	d.cache.Set(cacheKey, health)
	return health, nil
}

func (d *Dispatcher) getDrivingHistory(ctx context.Context, params models.Params) (interface{}, error) {
	vin := d.resolveVIN(params)
	if vin == "" {
		return nil, fmt.Errorf("%w: no VIN given and DEFAULT_VIN not configured", models.ErrInvalidInput)
	}

	tf := d.timeFrame(params)
	limit, ok := nlq.ParamInt(params, "limit")
	if !ok {
		limit = 50
	}

	segments, err := d.fetchSegments(ctx, vin, tf, limit, params)
	if err != nil {
		return nil, err
	}

	journeys, err := trip.MergeDrives(segments)
	if err != nil {
		return nil, err
	}

	return &DrivingHistory{
		VIN:          vin,
		TimeFrame:    tf,
		SegmentCount: len(segments),
		Journeys:     journeys,
	}, nil
}

func (d *Dispatcher) getWeeklyMileage(ctx context.Context, params models.Params) (interface{}, error) {
	vin := d.resolveVIN(params)
	if vin == "" {
		return nil, fmt.Errorf("%w: no VIN given and DEFAULT_VIN not configured", models.ErrInvalidInput)
	}

	tf := d.timeFrame(params)
	segments, err := d.fetchSegments(ctx, vin, tf, 0, params)
	if err != nil {
		return nil, err
	}

	// 按 ISO 周分桶
	buckets := make(map[string]*WeekBucket)
	total := 0.0
	for i := range segments {
		seg := &segments[i]
		monday := isoWeekStart(time.Unix(seg.StartedAt, 0).UTC())
		key := monday.Format("2006-01-02")
		b, ok := buckets[key]
		if !ok {
			b = &WeekBucket{WeekStart: key}
			buckets[key] = b
		}
		b.Miles += seg.Distance
		b.Drives++
		total += seg.Distance
	}

	weeks := make([]WeekBucket, 0, len(buckets))
	for _, b := range buckets {
		weeks = append(weeks, *b)
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].WeekStart < weeks[j].WeekStart })

	return &WeeklyMileage{
		VIN:        vin,
		TimeFrame:  tf,
		TotalMiles: total,
		Weeks:      weeks,
	}, nil
}

func (d *Dispatcher) getMileageAtLocation(ctx context.Context, params models.Params) (interface{}, error) {
	vin := d.resolveVIN(params)
	if vin == "" {
		return nil, fmt.Errorf("%w: no VIN given and DEFAULT_VIN not configured", models.ErrInvalidInput)
	}

	location, _ := nlq.ParamString(params, "location")
	tf := d.timeFrame(params)
	segments, err := d.fetchSegments(ctx, vin, tf, 0, params)
	if err != nil {
		return nil, err
	}

	result := &LocationMileage{VIN: vin, Location: location, TimeFrame: tf}
	needle := strings.ToLower(location)
	for i := range segments {
		seg := &segments[i]
		if needle == "" || matchesLocation(seg, needle) {
			result.Miles += seg.Distance
			result.Drives++
		}
	}

	return result, nil
}

func (d *Dispatcher) analyzeLatestDrive(ctx context.Context, params models.Params) (interface{}, error) {
	vin := d.resolveVIN(params)
	if vin == "" {
		return nil, fmt.Errorf("%w: no VIN given and DEFAULT_VIN not configured", models.ErrInvalidInput)
	}

	daysBack, ok := nlq.ParamInt(params, "days_back")
	if !ok || daysBack <= 0 {
		daysBack = 7
	}
	now := d.now()
	tf := nlq.TimeFrame{Start: now.AddDate(0, 0, -daysBack), End: now}

	segments, err := d.client.GetDrives(ctx, vin, tf.Start, tf.End, 0)
	if err != nil {
		return nil, fmt.Errorf("get drives: %w", err)
	}

	analysis, err := trip.AnalyzeLatestJourney(segments, d.cfg.NominalPackKWh)
	if err != nil {
		return nil, err
	}
	if analysis == nil {
		return nil, fmt.Errorf("%w: no drives recorded in the last %d days", models.ErrNoData, daysBack)
	}

	d.logger.Info("Analyzed latest journey",
		zap.String("vin", vin),
		zap.String("journey_id", analysis.Journey.ID),
		zap.Float64("miles", analysis.Journey.TotalDistance),
		zap.Int("stops", len(analysis.Journey.Stops)))

	return analysis, nil
}

// fetchSegments 拉取时间窗内的行程段；chunked 标记存在时按 30 天分块请求
func (d *Dispatcher) fetchSegments(ctx context.Context, vin string, tf nlq.TimeFrame, limit int, params models.Params) ([]models.RawDriveSegment, error) {
	chunked, _ := nlq.ParamBool(params, "chunked")
	if !chunked {
		segments, err := d.client.GetDrives(ctx, vin, tf.Start, tf.End, limit)
		if err != nil {
			return nil, fmt.Errorf("get drives: %w", err)
		}
		return segments, nil
	}

	var all []models.RawDriveSegment
	for from := tf.Start; from.Before(tf.End); from = from.AddDate(0, 0, 30) {
		to := from.AddDate(0, 0, 30)
		if to.After(tf.End) {
			to = tf.End
		}
		segments, err := d.client.GetDrives(ctx, vin, from, to, 0)
		if err != nil {
			return nil, fmt.Errorf("get drives chunk %s: %w", from.Format("2006-01-02"), err)
		}
		all = append(all, segments...)
		if limit > 0 && len(all) >= limit {
			all = all[:limit]
			break
		}
	}
	return all, nil
}

// truncate 超出配置体积时对列表字段减半，直到响应可控
func (d *Dispatcher) truncate(data interface{}) (interface{}, bool) {
	maxBytes := d.cfg.MaxResponseKB * 1024
	if maxBytes <= 0 {
		return data, false
	}

	truncated := false
	for {
		encoded, err := json.Marshal(data)
		if err != nil || len(encoded) <= maxBytes {
			return data, truncated
		}

		switch v := data.(type) {
		case *DrivingHistory:
			if len(v.Journeys) <= 1 {
				return data, truncated
			}
			// 保留较新的一半
			v.Journeys = v.Journeys[len(v.Journeys)/2:]
		case *WeeklyMileage:
			if len(v.Weeks) <= 1 {
				return data, truncated
			}
			v.Weeks = v.Weeks[len(v.Weeks)/2:]
		default:
			return data, truncated
		}
		truncated = true
	}
}

// timeFrame 从参数还原时间范围，缺省取最近 30 天
func (d *Dispatcher) timeFrame(params models.Params) nlq.TimeFrame {
	now := d.now()
	tf := nlq.TimeFrame{Start: now.AddDate(0, 0, -30), End: now}
	if start, ok := nlq.ParamTime(params, "start_date"); ok {
		tf.Start = start
	}
	if end, ok := nlq.ParamTime(params, "end_date"); ok {
		tf.End = end
	}
	return tf
}

func (d *Dispatcher) resolveVIN(params models.Params) string {
	if vin, ok := nlq.ParamString(params, "vin"); ok && vin != "" {
		return vin
	}
	return d.cfg.DefaultVIN
}

// matchesLocation 标签与查询互为子串即命中。
// location 参数可能是下游透传的整句提问，所以两个方向都要查。
func matchesLocation(seg *models.RawDriveSegment, needle string) bool {
	for _, label := range []string{seg.StartLabel(), seg.EndLabel(), seg.StartLocation, seg.EndLocation} {
		if label == "" {
			continue
		}
		lower := strings.ToLower(label)
		if strings.Contains(lower, needle) || strings.Contains(needle, lower) {
			return true
		}
	}
	return false
}

// isoWeekStart 返回所在 ISO 周的周一零点
func isoWeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := t.AddDate(0, 0, -offset)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, t.Location())
}
