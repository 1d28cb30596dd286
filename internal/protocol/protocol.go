// Package protocol описывает JSON-сообщения между хостом и клиентом.
//
// Клиент начинает с HELLO, хост отвечает WELCOME с ID зрителя. Дальше
// клиент шлёт ACT, а хост раз в тик отправляет каждому зрителю один BATCH
// с подменами блоков и структурными данными.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Version версия протокола; сообщения другой версии отклоняются
const Version = "1.0"

// Типы сообщений
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeAct     = "ACT"
	TypeBatch   = "BATCH"
	TypeError   = "ERROR"
)

var (
	// ErrBadVersion версия протокола сообщения не совпадает с Version
	ErrBadVersion = errors.New("protocol: bad protocol_version")
	// ErrUnexpectedType тип сообщения не тот, что ожидался
	ErrUnexpectedType = errors.New("protocol: unexpected message type")
	// ErrBadAct действие не прошло проверку
	ErrBadAct = errors.New("protocol: bad act")
)

// BaseMessage позволяет маршрутизировать JSON по типу.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

// DecodeBase читает только тип и версию сообщения
func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

// decode разбирает сообщение ожидаемого типа с проверкой версии
func decode(b []byte, wantType string, v any) error {
	base, err := DecodeBase(b)
	if err != nil {
		return fmt.Errorf("decode %s: %w", wantType, err)
	}
	if base.Type != wantType {
		return fmt.Errorf("%w: got %q, want %q", ErrUnexpectedType, base.Type, wantType)
	}
	if base.ProtocolVersion != Version {
		return fmt.Errorf("%w: %q", ErrBadVersion, base.ProtocolVersion)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", wantType, err)
	}
	return nil
}
