package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// errCodecClosed возвращается кодеком после close
var errCodecClosed = errors.New("frame codec closed")

// frame готовый к записи кадр WebSocket
type frame struct {
	binary bool
	data   []byte
}

// frameCodec кодирует сообщения в кадры: JSON текстом, а крупные кадры
// для клиентов с поддержкой сжатия — zstd в бинарном кадре.
type frameCodec struct {
	threshold int

	mu           sync.RWMutex
	closed       bool
	compressor   *zstd.Encoder
	decompressor *zstd.Decoder
}

func newFrameCodec(threshold int) (*frameCodec, error) {
	compressor, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	decompressor, err := zstd.NewReader(nil)
	if err != nil {
		compressor.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &frameCodec{threshold: threshold, compressor: compressor, decompressor: decompressor}, nil
}

// encode сериализует v. threshold <= 0 отключает сжатие.
func (c *frameCodec) encode(v any, compression bool) (frame, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return frame{}, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return frame{}, errCodecClosed
	}
	if !compression || c.threshold <= 0 || len(data) <= c.threshold {
		return frame{data: data}, nil
	}
	return frame{binary: true, data: c.compressor.EncodeAll(data, make([]byte, 0, len(data)/4))}, nil
}

// decode возвращает JSON кадра (бинарные кадры распаковываются)
func (c *frameCodec) decode(f frame) ([]byte, error) {
	if !f.binary {
		return f.data, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, errCodecClosed
	}
	data, err := c.decompressor.DecodeAll(f.data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decode: %w", err)
	}
	return data, nil
}

// close освобождает горутины zstd. Повторный вызов ничего не делает.
func (c *frameCodec) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.compressor.Close()
	c.decompressor.Close()
}
