// Package tick содержит однопоточный цикл тиков хоста. Всё состояние
// наложений меняется только на горутине цикла: сетевые горутины передают
// действия через Post, а отложенные задачи планируются через After.
package tick

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/annel0/overlay-sync/internal/logging"
)

// ErrStopped возвращается Post после остановки цикла.
var ErrStopped = errors.New("tick loop stopped")

// DefaultInboxSize задаёт ёмкость очереди действий от сетевых горутин
const DefaultInboxSize = 1024

type task struct {
	due uint64
	fn  func()
}

// Loop цикл тиков с частотой rateHz.
//
// Порядок внутри одного тика: номер тика увеличивается, затем выполняются
// действия, пришедшие через Post, затем созревшие задачи After, затем хуки OnTick.
type Loop struct {
	rateHz int
	tick   atomic.Uint64

	inbox   chan func()
	pending []func()
	tasks   []task
	hooks   []func(tick uint64)

	stop     chan struct{}
	stopOnce sync.Once

	logger *logging.Logger
}

// NewLoop создаёт цикл. rateHz < 1 заменяется на 20.
func NewLoop(rateHz int) *Loop {
	if rateHz < 1 {
		rateHz = 20
	}
	return &Loop{
		rateHz: rateHz,
		inbox:  make(chan func(), DefaultInboxSize),
		stop:   make(chan struct{}),
		logger: logging.GetTickLogger(),
	}
}

// RateHz возвращает частоту тиков
func (l *Loop) RateHz() int {
	return l.rateHz
}

// Interval возвращает длительность одного тика
func (l *Loop) Interval() time.Duration {
	return time.Second / time.Duration(l.rateHz)
}

// Tick возвращает номер последнего выполненного тика (безопасно с любой горутины)
func (l *Loop) Tick() uint64 {
	return l.tick.Load()
}

// After планирует fn на тик Tick()+ticks. Значения меньше 1 считаются за 1:
// задача никогда не выполняется в том же тике, где запланирована.
// Вызывать только с горутины цикла.
func (l *Loop) After(ticks int, fn func()) {
	if ticks < 1 {
		ticks = 1
	}
	l.tasks = append(l.tasks, task{due: l.tick.Load() + uint64(ticks), fn: fn})
}

// OnTick регистрирует хук, выполняемый в конце каждого тика.
// Вызывать до Run или с горутины цикла.
func (l *Loop) OnTick(fn func(tick uint64)) {
	l.hooks = append(l.hooks, fn)
}

// Post передаёт fn на выполнение в начале следующего тика.
// Безопасно с любой горутины. Блокируется, пока очередь заполнена.
func (l *Loop) Post(ctx context.Context, fn func()) error {
	select {
	case <-l.stop:
		return ErrStopped
	default:
	}

	select {
	case l.inbox <- fn:
		return nil
	case <-l.stop:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending возвращает количество запланированных, но не выполненных задач After
func (l *Loop) Pending() int {
	return len(l.tasks)
}

// Step выполняет один тик и возвращает его номер.
// Run вызывает его по таймеру; тесты и реплеи вызывают напрямую.
func (l *Loop) Step() uint64 {
	l.drainInbox()
	now := l.tick.Add(1)

	actions := l.pending
	l.pending = nil
	for _, fn := range actions {
		fn()
	}

	l.runDue(now)

	for _, hook := range l.hooks {
		hook(now)
	}
	return now
}

func (l *Loop) drainInbox() {
	for {
		select {
		case fn := <-l.inbox:
			l.pending = append(l.pending, fn)
		default:
			return
		}
	}
}

// runDue выполняет задачи с due <= now в порядке планирования.
// Задачи, запланированные во время выполнения, попадают в следующие тики.
func (l *Loop) runDue(now uint64) {
	if len(l.tasks) == 0 {
		return
	}

	var due []task
	rest := l.tasks[:0:0]
	for _, t := range l.tasks {
		if t.due <= now {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	l.tasks = rest

	for _, t := range due {
		t.fn()
	}
}

// Run крутит цикл до отмены ctx или вызова Stop.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.Interval())
	defer ticker.Stop()

	l.logger.Info("Цикл тиков запущен: %d Гц", l.rateHz)
	defer l.logger.Info("Цикл тиков остановлен на тике %d", l.tick.Load())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			return nil
		case fn := <-l.inbox:
			l.pending = append(l.pending, fn)
		case <-ticker.C:
			started := time.Now()
			n := l.Step()
			if elapsed := time.Since(started); elapsed > l.Interval() {
				l.logger.Warn("Тик %d занял %v (бюджет %v)", n, elapsed, l.Interval())
			}
		}
	}
}

// Stop останавливает Run. Повторные вызовы безопасны.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
