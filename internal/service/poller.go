package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/tesquery/internal/state"
)

// Poller 后台轮询车辆状态，驱动状态机与 WebSocket 推送。
// 车辆休眠或离线时降低频率，避免无意义的请求把车吵醒。
type Poller struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
	vin        string
	interval   time.Duration
	asleepIvl  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPoller 创建轮询器
func NewPoller(dispatcher *Dispatcher, logger *zap.Logger, vin string) *Poller {
	return &Poller{
		dispatcher: dispatcher,
		logger:     logger,
		vin:        vin,
		interval:   dispatcher.cfg.PollInterval,
		asleepIvl:  dispatcher.cfg.PollIntervalAsleep,
		stopCh:     make(chan struct{}),
	}
}

// Start 启动轮询
func (p *Poller) Start(ctx context.Context) {
	if p.vin == "" {
		p.logger.Warn("DEFAULT_VIN not configured, state polling disabled")
		return
	}

	p.wg.Add(1)
	go p.loop(ctx)
	p.logger.Info("State poller started",
		zap.String("vin", p.vin),
		zap.Duration("interval", p.interval))
}

// Stop 停止轮询并等待退出
func (p *Poller) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()

	p.poll(ctx)
	timer := time.NewTimer(p.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-timer.C:
			p.poll(ctx)
			timer.Reset(p.nextInterval())
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	raw, err := p.dispatcher.client.GetState(ctx, p.vin)
	if err != nil {
		p.logger.Warn("State poll failed", zap.String("vin", p.vin), zap.Error(err))
		return
	}

	snapshot := p.dispatcher.applyState(p.vin, raw)
	p.dispatcher.cache.Set("state:"+p.vin, snapshot)
}

// nextInterval 休眠 / 离线时放慢节奏
func (p *Poller) nextInterval() time.Duration {
	if machine, ok := p.dispatcher.states.Get(p.vin); ok {
		switch machine.CurrentState() {
		case state.StateAsleep, state.StateOffline:
			return p.asleepIvl
		}
	}
	return p.interval
}
