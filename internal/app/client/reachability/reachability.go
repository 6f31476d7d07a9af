package reachability

import (
	"context"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"
)

// Prober проверка доступности сервера
type Prober interface {
	HealthCheck(ctx context.Context) error
}

// Monitor признак "сеть есть" на основе проверки /health сервера.
// Используется только как подсказка, стоит ли пробовать синхронизацию сейчас.
type Monitor struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger

	mu     gosync.RWMutex
	online bool
	subs   map[chan bool]struct{}
}

func New(prober Prober, interval time.Duration, log *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		timeout:  min(5*time.Second, interval),
		log:      log.With(slog.String("component", "reachability")),
		subs:     make(map[chan bool]struct{}),
	}
}

// Online текущее состояние
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Probe одна проверка с обновлением состояния
func (m *Monitor) Probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.prober.HealthCheck(probeCtx)
	if err != nil && ctx.Err() != nil {
		return m.Online()
	}
	if err != nil {
		m.log.Debug("Сервер недоступен", "error", err)
	}
	m.set(err == nil)
	return err == nil
}

// Run проверяет сервер с интервалом до отмены ctx
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Subscribe сначала отдает текущее состояние, затем каждое изменение.
// Медленный подписчик получает только последнее значение.
func (m *Monitor) Subscribe(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)

	m.mu.Lock()
	ch <- m.online
	m.subs[ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.subs, ch)
		close(ch)
		m.mu.Unlock()
	}()

	return ch
}

func (m *Monitor) set(online bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.online == online {
		return
	}
	m.online = online

	if online {
		m.log.Info("Сервер доступен")
	} else {
		m.log.Warn("Сервер недоступен, работаем офлайн")
	}

	for ch := range m.subs {
		select {
		case <-ch:
		default:
		}
		ch <- online
	}
}
