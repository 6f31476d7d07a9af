package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	gosync "sync"
	"time"

	"golang.org/x/exp/slog"

	"loanbook/internal/domain/sync"
)

const (
	DefaultMaxBackoff = 5 * time.Hour
	// DefaultMaxImmediateAttempts после стольких неудачных прогонов
	// разовая работа снимается
	DefaultMaxImmediateAttempts = 10
)

var ErrStopped = errors.New("планировщик остановлен")

// State состояние работы
type State string

const (
	StateEnqueued  State = "enqueued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateRetrying  State = "retrying"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// WorkStatus снимок состояния работы
type WorkStatus struct {
	Name        string       `json:"name"`
	State       State        `json:"state"`
	Attempt     int          `json:"attempt"`
	LastOutcome sync.Outcome `json:"last_outcome"`
	NextRunAt   time.Time    `json:"next_run_at"`
}

// Network источник ограничения "нужна сеть"
type Network interface {
	Online() bool
	Subscribe(ctx context.Context) <-chan bool
}

// Options настройки менеджера
type Options struct {
	MaxBackoff           time.Duration
	MaxImmediateAttempts int
}

// Manager фоновый планировщик внутри процесса: уникальные по имени работы,
// периодический запуск с окном flex, экспоненциальная задержка повтора,
// ожидание сети и отмена.
type Manager struct {
	network Network
	opts    Options
	log     *slog.Logger

	mu        gosync.Mutex
	works     map[string]*work
	observers map[string]map[chan WorkStatus]struct{}
	last      map[string]WorkStatus
	stopped   bool
	wg        gosync.WaitGroup

	rnd   func(n int64) int64
	sleep func(ctx context.Context, d time.Duration) bool
}

type work struct {
	name     string
	periodic bool
	interval time.Duration
	flex     time.Duration
	backoff  time.Duration
	network  bool
	job      sync.Job
	ctx      context.Context
	cancel   context.CancelFunc
	running  bool
	// pending работа ждет очередного прогона, новый запрос в него и попадет
	pending bool
	// rerun запрос на немедленный запуск пришел, когда прогон уже начался
	rerun bool
}

var _ sync.Scheduler = (*Manager)(nil)

func New(network Network, opts Options, log *slog.Logger) *Manager {
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.MaxImmediateAttempts <= 0 {
		opts.MaxImmediateAttempts = DefaultMaxImmediateAttempts
	}
	return &Manager{
		network:   network,
		opts:      opts,
		log:       log.With(slog.String("component", "scheduler")),
		works:     make(map[string]*work),
		observers: make(map[string]map[chan WorkStatus]struct{}),
		last:      make(map[string]WorkStatus),
		rnd:       rand.Int63n,
		sleep:     sleepContext,
	}
}

// SchedulePeriodic регистрирует периодическую работу. Если работа с таким
// именем уже есть, она остается как есть (политика KEEP).
func (m *Manager) SchedulePeriodic(name string, req sync.PeriodicWork, job sync.Job) error {
	if req.Interval <= 0 {
		return fmt.Errorf("интервал должен быть положительным: %s", req.Interval)
	}
	if req.Flex < 0 || req.Flex > req.Interval {
		req.Flex = req.Interval
	}

	w := &work{
		name:     name,
		periodic: true,
		interval: req.Interval,
		flex:     req.Flex,
		backoff:  req.BackoffBase,
		network:  req.RequiresNetwork,
		job:      job,
	}
	return m.enqueue(w, m.periodDelay(w))
}

// ScheduleImmediate запускает работу как можно скорее. Если работа уже
// ждет запуска, запрос схлопывается. Если прогон начался, после него будет
// еще один, даже если работа как раз завершается.
func (m *Manager) ScheduleImmediate(name string, req sync.ImmediateWork, job sync.Job) error {
	m.mu.Lock()
	if w, ok := m.works[name]; ok && !w.periodic {
		if !w.pending {
			w.rerun = true
		}
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	return m.enqueue(&work{
		name:    name,
		backoff: req.BackoffBase,
		network: req.RequiresNetwork,
		job:     job,
	}, 0)
}

func (m *Manager) enqueue(w *work, delay time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if _, ok := m.works[w.name]; ok {
		m.log.Debug("Работа уже запланирована", "name", w.name)
		return nil
	}
	if w.backoff <= 0 {
		w.backoff = sync.DefaultBackoffBase
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.pending = true
	m.works[w.name] = w
	m.publishLocked(WorkStatus{Name: w.name, State: StateEnqueued, NextRunAt: time.Now().Add(delay)})

	m.wg.Add(1)
	go m.loop(w, delay)

	m.log.Info("Работа запланирована", "name", w.name, "periodic", w.periodic, "delay", delay)
	return nil
}

// Cancel снимает работу и отменяет ее текущий прогон
func (m *Manager) Cancel(name string) {
	m.mu.Lock()
	w, ok := m.works[name]
	if ok {
		delete(m.works, name)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	w.cancel()
	m.log.Info("Работа отменена", "name", name)
}

// Scheduled запланирована ли работа
func (m *Manager) Scheduled(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.works[name]
	return ok
}

// Count число активных работ
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.works)
}

// Status последнее известное состояние работы
func (m *Manager) Status(name string) (WorkStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.last[name]
	return st, ok
}

// ObserveStatus поток состояний работы. Первым приходит последнее известное
// состояние, если оно есть. Канал закрывается при отмене ctx.
func (m *Manager) ObserveStatus(ctx context.Context, name string) <-chan WorkStatus {
	ch := make(chan WorkStatus, 16)

	m.mu.Lock()
	if st, ok := m.last[name]; ok {
		ch <- st
	}
	if m.observers[name] == nil {
		m.observers[name] = make(map[chan WorkStatus]struct{})
	}
	m.observers[name][ch] = struct{}{}
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		delete(m.observers[name], ch)
		close(ch)
		m.mu.Unlock()
	}()

	return ch
}

// Shutdown отменяет все работы и ждет завершения их горутин
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.stopped = true
	works := m.works
	m.works = make(map[string]*work)
	m.mu.Unlock()

	for _, w := range works {
		w.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) loop(w *work, delay time.Duration) {
	defer m.wg.Done()
	defer m.finish(w)

	attempt := 0
	for {
		if !m.sleep(w.ctx, delay) {
			return
		}
		if w.network && !m.waitNetwork(w.ctx) {
			return
		}

		m.setRunning(w, true)
		m.publish(WorkStatus{Name: w.name, State: StateRunning, Attempt: attempt + 1})

		outcome := m.run(w)

		rerun := m.setRunning(w, false)
		if w.ctx.Err() != nil {
			return
		}

		if outcome == sync.OutcomeSuccess {
			attempt = 0
			if !w.periodic && !rerun && m.retire(w) {
				m.publish(WorkStatus{Name: w.name, State: StateSucceeded, Attempt: 1, LastOutcome: outcome})
				return
			}
			delay = 0
			if w.periodic {
				delay = m.periodDelay(w)
			}
			m.rearm(w)
			m.publish(WorkStatus{Name: w.name, State: StateSucceeded, Attempt: 1, LastOutcome: outcome, NextRunAt: time.Now().Add(delay)})
			continue
		}

		attempt++
		if !w.periodic && attempt >= m.opts.MaxImmediateAttempts {
			if m.retire(w) {
				m.log.Warn("Работа снята после исчерпания попыток", "name", w.name, "attempts", attempt)
				m.publish(WorkStatus{Name: w.name, State: StateFailed, Attempt: attempt, LastOutcome: outcome})
				return
			}
			// пришел новый запрос: начинаем с чистого счетчика попыток
			attempt = 0
			m.rearm(w)
			delay = 0
			continue
		}
		delay = m.backoffDelay(w, attempt)
		m.rearm(w)
		m.log.Info("Прогон не удался, повтор с задержкой",
			"name", w.name,
			"outcome", outcome,
			"attempt", attempt,
			"delay", delay,
		)
		m.publish(WorkStatus{
			Name:        w.name,
			State:       StateRetrying,
			Attempt:     attempt,
			LastOutcome: outcome,
			NextRunAt:   time.Now().Add(delay),
		})
	}
}

// run выполняет работу; паника считается неудачным прогоном
func (m *Manager) run(w *work) (outcome sync.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Паника в фоновой работе", "name", w.name, "panic", r)
			outcome = sync.OutcomeFailure
		}
	}()
	return w.job(w.ctx)
}

func (m *Manager) finish(w *work) {
	m.mu.Lock()
	if cur, ok := m.works[w.name]; ok && cur == w {
		delete(m.works, w.name)
	}
	m.mu.Unlock()

	if w.ctx.Err() != nil {
		m.publish(WorkStatus{Name: w.name, State: StateCancelled})
	}
	w.cancel()
}

func (m *Manager) setRunning(w *work, running bool) (rerun bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.running = running
	if running {
		w.pending = false
	}
	rerun = w.rerun
	if !running {
		w.rerun = false
	}
	return rerun
}

// rearm работа снова ждет прогона
func (m *Manager) rearm(w *work) {
	m.mu.Lock()
	w.pending = true
	m.mu.Unlock()
}

// retire снимает завершенную разовую работу. Если запрос успел прийти после
// прогона, работа остается и возвращается false.
func (m *Manager) retire(w *work) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w.rerun {
		w.rerun = false
		return false
	}
	if cur, ok := m.works[w.name]; ok && cur == w {
		delete(m.works, w.name)
	}
	return true
}

// waitNetwork ждет появления сети
func (m *Manager) waitNetwork(ctx context.Context) bool {
	if m.network == nil || m.network.Online() {
		return true
	}

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for online := range m.network.Subscribe(subCtx) {
		if online {
			return true
		}
	}
	return false
}

// periodDelay interval минус случайная часть окна flex
func (m *Manager) periodDelay(w *work) time.Duration {
	base := w.interval - w.flex
	if w.flex <= 0 {
		return w.interval
	}
	return base + time.Duration(m.rnd(int64(w.flex)+1))
}

// backoffDelay base * 2^(attempt-1), не больше MaxBackoff
func (m *Manager) backoffDelay(w *work, attempt int) time.Duration {
	d := w.backoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= m.opts.MaxBackoff {
			return m.opts.MaxBackoff
		}
	}
	return min(d, m.opts.MaxBackoff)
}

func (m *Manager) publish(st WorkStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishLocked(st)
}

func (m *Manager) publishLocked(st WorkStatus) {
	m.last[st.Name] = st
	for ch := range m.observers[st.Name] {
		select {
		case ch <- st:
		default:
			m.log.Debug("Наблюдатель не успевает, состояние пропущено", "name", st.Name)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
