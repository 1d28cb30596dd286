package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/annel0/overlay-sync/internal/logging"
	"github.com/annel0/overlay-sync/internal/protocol"
	"github.com/annel0/overlay-sync/internal/session"
	"github.com/annel0/overlay-sync/internal/world"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	readTimeout      = 60 * time.Second
	pingInterval     = 25 * time.Second
	maxMessageSize   = 64 * 1024
)

// errJoinTimeout цикл тиков не ответил на подключение
var errJoinTimeout = errors.New("join timed out")

// Handler возвращает HTTP-обработчик WebSocket-подключений зрителей.
func (h *Host) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxMessageSize)

		hello, err := readHello(conn)
		if err != nil {
			h.logger.Debug("Рукопожатие с %s не удалось: %v", r.RemoteAddr, err)
			closeWith(conn, websocket.ClosePolicyViolation, err.Error())
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		c := &client{
			conn:        conn,
			out:         make(chan frame, h.opts.QueueSize),
			compression: hello.Compression,
			ctx:         ctx,
			cancel:      cancel,
		}
		h.track(c)
		defer h.untrack(c)

		ref := world.Ref(hello.World)
		if ref == "" {
			ref = h.opts.DefaultWorld
		}
		welcome, err := h.join(c, ref)
		if err != nil {
			code := protocol.ErrCodeInternal
			if errors.Is(err, session.ErrUnknownWorld) {
				code = protocol.ErrCodeWorldUnknown
			}
			_ = writeJSON(conn, protocol.NewError(code, err.Error()))
			closeWith(conn, websocket.CloseNormalClosure, err.Error())
			return
		}
		defer h.leave(c)

		if err := writeJSON(conn, welcome); err != nil {
			return
		}
		h.logger.Info("Клиент %s (%s) подключён как %s", hello.ClientName, r.RemoteAddr, welcome.ViewerID)

		go h.writeLoop(c)
		h.readLoop(c)
		cancel()
	}
}

// join регистрирует зрителя в горутине тиков и ждёт результата
func (h *Host) join(c *client, ref world.Ref) (protocol.WelcomeMsg, error) {
	type result struct {
		welcome protocol.WelcomeMsg
		err     error
	}
	resp := make(chan result, 1)

	ctx, cancel := context.WithTimeout(c.ctx, handshakeTimeout)
	defer cancel()

	err := h.loop.Post(ctx, func() {
		if c.ctx.Err() != nil {
			resp <- result{err: c.ctx.Err()}
			return
		}
		welcome, err := h.register(c, ref)
		resp <- result{welcome: welcome, err: err}
	})
	if err != nil {
		return protocol.WelcomeMsg{}, err
	}

	select {
	case res := <-resp:
		return res.welcome, res.err
	case <-ctx.Done():
		// Регистрация могла всё же пройти: снимаем её в горутине тиков
		c.cancel()
		_ = h.loop.Post(context.Background(), func() { h.unregister(c) })
		return protocol.WelcomeMsg{}, errJoinTimeout
	}
}

// leave снимает регистрацию зрителя в горутине тиков
func (h *Host) leave(c *client) {
	if err := h.loop.Post(context.Background(), func() { h.unregister(c) }); err != nil {
		h.logger.Debug("Отключение не передано циклу тиков: %v", err)
	}
}

// writeLoop пишет кадры из очереди и пингует клиента
func (h *Host) writeLoop(c *client) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.Close()
			return
		case f := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			kind := websocket.TextMessage
			if f.binary {
				kind = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(kind, f.data); err != nil {
				c.cancel()
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				c.cancel()
				return
			}
		}
	}
}

// readLoop читает ACT и передаёт их циклу тиков
func (h *Host) readLoop(c *client) {
	_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		act, err := protocol.DecodeAct(msg)
		if err != nil {
			logging.LogProtocolError(h.logger, string(c.viewer), err, msg)
			if f, encErr := h.codec.encode(protocol.NewError(protocol.ErrCodeBadRequest, err.Error()), false); encErr == nil {
				c.send(f)
			}
			continue
		}

		if err := h.loop.Post(c.ctx, func() { h.apply(c.viewer, act) }); err != nil {
			return
		}
	}
}

func readHello(conn *websocket.Conn) (protocol.HelloMsg, error) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.HelloMsg{}, err
	}
	return protocol.DecodeHello(msg)
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}
