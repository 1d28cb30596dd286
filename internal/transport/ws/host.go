// Package ws — WebSocket-транспорт зрителей. Host реализует overlay.Network:
// пакеты копятся по зрителям в течение тика и в конце тика уходят одним
// кадром BATCH на зрителя, в порядке отправки.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/annel0/overlay-sync/internal/logging"
	"github.com/annel0/overlay-sync/internal/overlay"
	"github.com/annel0/overlay-sync/internal/protocol"
	"github.com/annel0/overlay-sync/internal/session"
	"github.com/annel0/overlay-sync/internal/tick"
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
	"github.com/annel0/overlay-sync/internal/world/block"
)

// DefaultQueueSize задаёт ёмкость очереди кадров одного соединения
const DefaultQueueSize = 64

// Options настройки хоста
type Options struct {
	// DefaultWorld задаёт мир для клиентов, не указавших его в HELLO
	DefaultWorld world.Ref
	// CompressThreshold: кадры больше этого размера сжимаются zstd (0 отключает сжатие)
	CompressThreshold int
	// QueueSize задаёт ёмкость очереди кадров соединения
	QueueSize int
	// Metrics может быть nil
	Metrics *Metrics
}

// client одно соединение зрителя
type client struct {
	viewer      overlay.ViewerID // задаётся в горутине тиков при подключении
	conn        *websocket.Conn
	out         chan frame
	compression bool

	ctx    context.Context
	cancel context.CancelFunc
}

// send кладёт кадр в очередь записи без блокировки
func (c *client) send(f frame) bool {
	select {
	case c.out <- f:
		return true
	case <-c.ctx.Done():
		return true
	default:
		return false
	}
}

// Host связывает соединения зрителей с менеджером сессий и циклом тиков.
type Host struct {
	loop    *tick.Loop
	store   *world.Store
	manager *session.Manager
	codec   *frameCodec
	opts    Options

	upgrader websocket.Upgrader

	// Только горутина тиков
	clients  map[overlay.ViewerID]*client
	outgoing map[overlay.ViewerID][]protocol.Packet

	mu      sync.Mutex
	sockets map[*client]struct{}

	metrics *Metrics
	logger  *logging.Logger
}

// NewHost создаёт хост и подписывает отправку кадров на конец каждого тика.
// Менеджер сессий подключается через SetManager.
func NewHost(loop *tick.Loop, store *world.Store, opts Options) (*Host, error) {
	codec, err := newFrameCodec(opts.CompressThreshold)
	if err != nil {
		return nil, err
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.DefaultWorld == "" {
		opts.DefaultWorld = "overworld"
	}

	h := &Host{
		loop:  loop,
		store: store,
		codec: codec,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[overlay.ViewerID]*client),
		outgoing: make(map[overlay.ViewerID][]protocol.Packet),
		sockets:  make(map[*client]struct{}),
		metrics:  opts.Metrics,
		logger:   logging.GetNetworkLogger(),
	}
	loop.OnTick(h.flush)
	return h, nil
}

// SetManager подключает менеджер сессий
func (h *Host) SetManager(m *session.Manager) {
	h.manager = m
}

// SendOverride реализует overlay.Network
func (h *Host) SendOverride(viewer overlay.ViewerID, pos vec.Vec3, id block.BlockID, layer world.Layer) {
	h.queue(viewer, protocol.UpdateBlock(pos, uint16(id), uint8(layer)))
}

// SendTagPayload реализует overlay.Network
func (h *Host) SendTagPayload(viewer overlay.ViewerID, pos vec.Vec3, tag overlay.StructureTag) {
	h.queue(viewer, protocol.BlockActorData(pos, tag))
}

// SendResync реализует overlay.Network: настоящее состояние обоих слоёв
// в каждой позиции берётся из хранилища мира зрителя.
func (h *Host) SendResync(viewer overlay.ViewerID, positions []vec.Vec3) {
	if _, ok := h.clients[viewer]; !ok {
		return
	}
	ref := h.manager.CurrentWorld(viewer)
	for _, pos := range positions {
		for layer := world.LayerBase; layer < world.MaxLayers; layer++ {
			id := h.store.Block(ref, pos, layer)
			h.queue(viewer, protocol.UpdateBlock(pos, uint16(id), uint8(layer)))
		}
	}
}

func (h *Host) queue(viewer overlay.ViewerID, p protocol.Packet) {
	if _, ok := h.clients[viewer]; !ok {
		return
	}
	h.outgoing[viewer] = append(h.outgoing[viewer], p)
}

// flush отправляет накопленные за тик пакеты: один BATCH на зрителя.
func (h *Host) flush(n uint64) {
	for viewer, packets := range h.outgoing {
		delete(h.outgoing, viewer)

		c, ok := h.clients[viewer]
		if !ok || len(packets) == 0 {
			continue
		}
		f, err := h.codec.encode(protocol.NewBatch(n, packets), c.compression)
		if errors.Is(err, errCodecClosed) {
			return
		}
		if err != nil {
			h.logger.Error("BATCH для %s не закодирован: %v", viewer, err)
			continue
		}
		h.deliver(c, f)
	}
}

// deliver ставит кадр в очередь; переполненная очередь закрывает соединение,
// иначе клиент молча разошёлся бы с сервером.
func (h *Host) deliver(c *client, f frame) {
	if c.send(f) {
		h.metrics.frameSent(f)
		return
	}
	h.metrics.slowConsumer()
	h.logger.Warn("Очередь зрителя %s переполнена, соединение закрывается", c.viewer)
	c.cancel()
}

// sendError отправляет ERROR зрителю (горутина тиков)
func (h *Host) sendError(viewer overlay.ViewerID, code, message string) {
	c, ok := h.clients[viewer]
	if !ok {
		return
	}
	f, err := h.codec.encode(protocol.NewError(code, message), false)
	if err != nil {
		return
	}
	h.deliver(c, f)
}

// apply выполняет действие клиента в горутине тиков
func (h *Host) apply(viewer overlay.ViewerID, act protocol.ActMsg) {
	if !h.manager.IsConnected(viewer) {
		return
	}

	switch act.Kind {
	case protocol.ActStart:
		if _, err := h.manager.StartSession(viewer); err != nil {
			h.sendError(viewer, protocol.ErrCodeInternal, err.Error())
		}
		return
	case protocol.ActEnd:
		h.manager.EndSession(viewer)
		return
	case protocol.ActToggle:
		if _, err := h.manager.ToggleSession(viewer); err != nil {
			h.sendError(viewer, protocol.ErrCodeInternal, err.Error())
		}
		return
	case protocol.ActWorld:
		if err := h.manager.SetWorld(viewer, world.Ref(act.World)); err != nil {
			h.sendError(viewer, protocol.ErrCodeWorldUnknown, err.Error())
		}
		return
	}

	if act.Pos != nil && !h.inBounds(*act.Pos) {
		rng := h.store.Range()
		h.sendError(viewer, protocol.ErrCodeBadRequest,
			fmt.Sprintf("pos %v outside world bounds (y in [%d, %d))", *act.Pos, rng.Min, rng.Max))
		return
	}

	s, ok := h.manager.Session(viewer)
	if !ok {
		h.sendError(viewer, protocol.ErrCodeNoSession, "no build session, send start first")
		return
	}

	switch act.Kind {
	case protocol.ActPos1:
		s.SetPos1(*act.Pos)
	case protocol.ActPos2:
		s.SetPos2(*act.Pos)
	case protocol.ActPreviewBlock:
		id, ok := block.ByName(act.Block)
		if !ok {
			h.sendError(viewer, protocol.ErrCodeBadRequest, "unknown block "+act.Block)
			return
		}
		s.SetPreviewBlock(id)
	case protocol.ActUse:
		s.Use(*act.Eye, *act.Dir, act.Pos)
	}
}

// inBounds проверяет, что позиция от клиента лежит в границах мира:
// X и Z в диапазоне ключей слотов, Y в вертикальном диапазоне хранилища.
func (h *Host) inBounds(pos vec.Vec3) bool {
	return vec.InMortonRange(pos) && h.store.Range().Contains(pos.Y)
}

// register добавляет зрителя в горутине тиков
func (h *Host) register(c *client, ref world.Ref) (protocol.WelcomeMsg, error) {
	viewer, err := h.manager.Connect(ref)
	if err != nil {
		return protocol.WelcomeMsg{}, err
	}
	c.viewer = viewer
	h.clients[viewer] = c
	h.metrics.connected()

	rng := h.store.Range()
	return protocol.NewWelcome(string(viewer), string(ref), h.loop.RateHz(), rng.Min, rng.Max), nil
}

// unregister убирает зрителя в горутине тиков
func (h *Host) unregister(c *client) {
	if c.viewer == "" {
		return
	}
	if h.clients[c.viewer] != c {
		return
	}
	h.manager.Disconnect(c.viewer)
	delete(h.clients, c.viewer)
	delete(h.outgoing, c.viewer)
	h.metrics.disconnected()
}

// Close закрывает все соединения и освобождает кодек zstd.
// Кадры, которые горутина тиков кодирует после Close, отбрасываются.
func (h *Host) Close() {
	h.mu.Lock()
	for c := range h.sockets {
		c.cancel()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
	h.mu.Unlock()
	h.codec.close()
}

func (h *Host) track(c *client) {
	h.mu.Lock()
	h.sockets[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Host) untrack(c *client) {
	h.mu.Lock()
	delete(h.sockets, c)
	h.mu.Unlock()
}
