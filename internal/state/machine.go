package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 车辆状态常量
const (
	StateParked   = "parked"
	StateDriving  = "driving"
	StateCharging = "charging"
	StateAsleep   = "asleep"
	StateOffline  = "offline"
)

// 事件常量
const (
	EventStartDriving  = "start_driving"
	EventStopDriving   = "stop_driving"
	EventStartCharging = "start_charging"
	EventStopCharging  = "stop_charging"
	EventFallAsleep    = "fall_asleep"
	EventWakeUp        = "wake_up"
	EventGoOffline     = "go_offline"
)

// Snapshot 派发层可见的车辆状态
type Snapshot struct {
	VIN           string    `json:"vin"`
	CurrentState  string    `json:"state"`
	Since         time.Time `json:"since"`
	UpdatedAt     time.Time `json:"updated_at"` // 数据源时间戳
	BatteryLevel  int       `json:"battery_level"`
	RangeMiles    float64   `json:"range_miles"`
	Odometer      float64   `json:"odometer"`
	Speed         *int      `json:"speed"`
	ShiftState    *string   `json:"shift_state"`
	ChargingState string    `json:"charging_state"`
	ChargerPower  int       `json:"charger_power"`
	InsideTemp    *float64  `json:"inside_temp"`
	OutsideTemp   *float64  `json:"outside_temp"`
	Locked        bool      `json:"locked"`
	SentryMode    bool      `json:"sentry_mode"`
}

// Machine 单辆车的状态机
type Machine struct {
	mu            sync.RWMutex
	vin           string
	fsm           *fsm.FSM
	snapshot      *Snapshot
	onStateChange func(vin string, from, to string)
}

// NewMachine 创建状态机
func NewMachine(vin string, initialState string, onStateChange func(vin string, from, to string)) *Machine {
	if initialState == "" {
		initialState = StateOffline
	}

	m := &Machine{
		vin:           vin,
		onStateChange: onStateChange,
		snapshot: &Snapshot{
			VIN:          vin,
			CurrentState: initialState,
			Since:        time.Now(),
		},
	}

	m.fsm = fsm.NewFSM(
		initialState,
		fsm.Events{
			{Name: EventWakeUp, Src: []string{StateOffline, StateAsleep}, Dst: StateParked},

			// 从 parked 状态
			{Name: EventStartDriving, Src: []string{StateParked}, Dst: StateDriving},
			{Name: EventStartCharging, Src: []string{StateParked}, Dst: StateCharging},
			{Name: EventFallAsleep, Src: []string{StateParked}, Dst: StateAsleep},
			{Name: EventGoOffline, Src: []string{StateParked, StateAsleep}, Dst: StateOffline},

			// 从 driving / charging 回到 parked
			{Name: EventStopDriving, Src: []string{StateDriving}, Dst: StateParked},
			{Name: EventStopCharging, Src: []string{StateCharging}, Dst: StateParked},
		},
		fsm.Callbacks{},
	)

	return m
}

// notify 状态变化回调。必须在锁外调用：回调方（广播、日志）
// 会回读状态机，锁内触发会自死锁。
func (m *Machine) notify(from, to string) {
	if m.onStateChange != nil && from != to {
		m.onStateChange(m.vin, from, to)
	}
}

// CurrentState 获取当前状态
func (m *Machine) CurrentState() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fsm.Current()
}

// GetSnapshot 获取完整状态副本
func (m *Machine) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap := *m.snapshot
	snap.CurrentState = m.fsm.Current()
	return &snap
}

// UpdateSnapshot 更新状态数据
func (m *Machine) UpdateSnapshot(update func(s *Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	update(m.snapshot)
}

// Trigger 触发事件
func (m *Machine) Trigger(event string) error {
	m.mu.Lock()
	from := m.fsm.Current()
	if err := m.fsm.Event(context.Background(), event); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	to := m.fsm.Current()
	m.snapshot.CurrentState = to
	m.snapshot.Since = time.Now()
	m.mu.Unlock()

	m.notify(from, to)
	return nil
}

// Observe 根据聚合服务的最新快照推导并触发状态事件。
// online 且挡位在 D/R/N 视为行驶中；充电中状态来自 charging_state；
// 其余 online 视为驻车。不合法的转换会被静默忽略（例如 driving -> charging
// 需要经过 parked，下一次观察会补齐）。
func (m *Machine) Observe(online bool, asleep bool, shiftState *string, chargingState string) {
	switch {
	case !online && !asleep:
		m.tryTrigger(EventGoOffline)
	case asleep:
		m.tryTrigger(EventStopDriving)
		m.tryTrigger(EventStopCharging)
		m.tryTrigger(EventFallAsleep)
	default:
		m.tryTrigger(EventWakeUp)
		driving := shiftState != nil && (*shiftState == "D" || *shiftState == "R" || *shiftState == "N")
		charging := chargingState == "Charging" || chargingState == "Starting"
		switch {
		case driving:
			m.tryTrigger(EventStopCharging)
			m.tryTrigger(EventStartDriving)
		case charging:
			m.tryTrigger(EventStopDriving)
			m.tryTrigger(EventStartCharging)
		default:
			m.tryTrigger(EventStopDriving)
			m.tryTrigger(EventStopCharging)
		}
	}
}

// tryTrigger 仅在转换合法时触发
func (m *Machine) tryTrigger(event string) {
	m.mu.Lock()
	if !m.fsm.Can(event) {
		m.mu.Unlock()
		return
	}
	from := m.fsm.Current()
	if err := m.fsm.Event(context.Background(), event); err != nil {
		m.mu.Unlock()
		return
	}
	to := m.fsm.Current()
	m.snapshot.CurrentState = to
	m.snapshot.Since = time.Now()
	m.mu.Unlock()

	m.notify(from, to)
}

// Manager 状态机管理器，按 VIN 维护
type Manager struct {
	mu       sync.RWMutex
	machines map[string]*Machine
	onChange func(vin string, from, to string)
}

// NewManager 创建管理器
func NewManager(onChange func(vin string, from, to string)) *Manager {
	return &Manager{
		machines: make(map[string]*Machine),
		onChange: onChange,
	}
}

// GetOrCreate 获取或创建状态机
func (m *Manager) GetOrCreate(vin string, initialState string) *Machine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if machine, ok := m.machines[vin]; ok {
		return machine
	}

	machine := NewMachine(vin, initialState, m.onChange)
	m.machines[vin] = machine
	return machine
}

// Get 获取状态机
func (m *Manager) Get(vin string) (*Machine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	machine, ok := m.machines[vin]
	return machine, ok
}

// GetAllSnapshots 获取所有车辆状态
func (m *Manager) GetAllSnapshots() map[string]*Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshots := make(map[string]*Snapshot)
	for vin, machine := range m.machines {
		snapshots[vin] = machine.GetSnapshot()
	}
	return snapshots
}
