package session

import (
	"context"
	"sync"
	"time"

	"github.com/annel0/overlay-sync/internal/eventbus"
	"github.com/annel0/overlay-sync/internal/logging"
)

// publishTimeout ограничивает одну публикацию в шину
const publishTimeout = 5 * time.Second

// Publisher выносит публикацию событий из горутины тиков: события
// складываются в очередь и отправляются в шину отдельной горутиной
// в порядке поступления. При переполненной очереди событие отбрасывается.
type Publisher struct {
	bus    eventbus.EventBus
	queue  chan *eventbus.Envelope
	wg     sync.WaitGroup
	once   sync.Once
	logger *logging.Logger
}

// NewPublisher создаёт и запускает публикатор с очередью size
func NewPublisher(bus eventbus.EventBus, size int) *Publisher {
	if size < 1 {
		size = 1
	}
	p := &Publisher{
		bus:    bus,
		queue:  make(chan *eventbus.Envelope, size),
		logger: logging.GetSessionLogger(),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Publish ставит событие в очередь. Не блокируется.
func (p *Publisher) Publish(eventType, correlationID string, payload any) {
	ev, err := eventbus.NewEnvelope(eventbus.Source, eventType, payload)
	if err != nil {
		p.logger.Error("Событие %s не создано: %v", eventType, err)
		return
	}
	ev.CorrelationID = correlationID

	select {
	case p.queue <- ev:
	default:
		p.logger.Warn("Очередь событий заполнена, %s отброшено", eventType)
	}
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		if err := p.bus.Publish(ctx, ev); err != nil {
			p.logger.Warn("Публикация %s не удалась: %v", ev.EventType, err)
		}
		cancel()
	}
}

// Close дожидается отправки уже поставленных событий
func (p *Publisher) Close() {
	p.once.Do(func() {
		close(p.queue)
		p.wg.Wait()
	})
}
