package protocol

import (
	"fmt"

	"github.com/annel0/overlay-sync/internal/overlay"
	"github.com/annel0/overlay-sync/internal/vec"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name,omitempty"`
	World           string `json:"world,omitempty"`
	// Compression клиент умеет принимать BATCH, сжатый zstd (бинарный кадр)
	Compression bool `json:"compression,omitempty"`
}

// DecodeHello разбирает HELLO
func DecodeHello(b []byte) (HelloMsg, error) {
	var m HelloMsg
	err := decode(b, TypeHello, &m)
	return m, err
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ViewerID        string `json:"viewer_id"`
	World           string `json:"world"`
	TickRateHz      int    `json:"tick_rate_hz"`
	MinY            int    `json:"min_y"`
	MaxY            int    `json:"max_y"`
}

// NewWelcome заполняет служебные поля WELCOME
func NewWelcome(viewerID, world string, tickRateHz, minY, maxY int) WelcomeMsg {
	return WelcomeMsg{
		Type:            TypeWelcome,
		ProtocolVersion: Version,
		ViewerID:        viewerID,
		World:           world,
		TickRateHz:      tickRateHz,
		MinY:            minY,
		MaxY:            maxY,
	}
}

// Виды действий ACT
const (
	ActPos1         = "pos1"          // первый угол выделения (pos)
	ActPos2         = "pos2"          // второй угол выделения (pos)
	ActPreviewBlock = "preview_block" // блок превью (block)
	ActUse          = "use"           // выбор второго угла взглядом (eye, dir, pos — запасная цель)
	ActStart        = "start"         // начать сессию строительства
	ActEnd          = "end"           // закончить сессию
	ActToggle       = "toggle"        // начать или закончить
	ActWorld        = "world"         // перейти в мир (world)
)

// ACT (client -> server)
type ActMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Kind            string         `json:"kind"`
	Pos             *vec.Vec3      `json:"pos,omitempty"`
	Block           string         `json:"block,omitempty"`
	Eye             *vec.Vec3Float `json:"eye,omitempty"`
	Dir             *vec.Vec3Float `json:"dir,omitempty"`
	World           string         `json:"world,omitempty"`
}

// DecodeAct разбирает и проверяет ACT
func DecodeAct(b []byte) (ActMsg, error) {
	var m ActMsg
	if err := decode(b, TypeAct, &m); err != nil {
		return m, err
	}
	return m, m.Validate()
}

// Validate проверяет, что у действия есть обязательные поля, а координаты
// лежат в диапазоне vec.InMortonRange. Границы Y мира проверяет хост.
func (a ActMsg) Validate() error {
	switch a.Kind {
	case ActPos1, ActPos2:
		if a.Pos == nil {
			return fmt.Errorf("%w: %s requires pos", ErrBadAct, a.Kind)
		}
		if !vec.InMortonRange(*a.Pos) {
			return fmt.Errorf("%w: %s pos %v out of range", ErrBadAct, a.Kind, *a.Pos)
		}
	case ActPreviewBlock:
		if a.Block == "" {
			return fmt.Errorf("%w: %s requires block", ErrBadAct, a.Kind)
		}
	case ActUse:
		if a.Eye == nil || a.Dir == nil {
			return fmt.Errorf("%w: %s requires eye and dir", ErrBadAct, a.Kind)
		}
		if a.Pos != nil && !vec.InMortonRange(*a.Pos) {
			return fmt.Errorf("%w: %s pos %v out of range", ErrBadAct, a.Kind, *a.Pos)
		}
	case ActWorld:
		if a.World == "" {
			return fmt.Errorf("%w: %s requires world", ErrBadAct, a.Kind)
		}
	case ActStart, ActEnd, ActToggle:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrBadAct, a.Kind)
	}
	return nil
}

// Виды пакетов внутри BATCH
const (
	PacketUpdateBlock    = "update_block"
	PacketBlockActorData = "block_actor_data"
)

// Packet одна подмена блока или структурные данные блока-якоря
type Packet struct {
	Kind  string                `json:"kind"`
	Pos   vec.Vec3              `json:"pos"`
	Block uint16                `json:"block"`
	Layer uint8                 `json:"layer,omitempty"`
	Tag   *overlay.StructureTag `json:"tag,omitempty"`
}

// UpdateBlock создаёт пакет подмены блока на слое layer
func UpdateBlock(pos vec.Vec3, id uint16, layer uint8) Packet {
	return Packet{Kind: PacketUpdateBlock, Pos: pos, Block: id, Layer: layer}
}

// BlockActorData создаёт пакет структурных данных
func BlockActorData(pos vec.Vec3, tag overlay.StructureTag) Packet {
	return Packet{Kind: PacketBlockActorData, Pos: pos, Tag: &tag}
}

// BATCH (server -> client): все пакеты зрителю за один тик в порядке отправки
type BatchMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Tick            uint64   `json:"tick"`
	Packets         []Packet `json:"packets"`
}

// NewBatch создаёт BATCH
func NewBatch(tick uint64, packets []Packet) BatchMsg {
	return BatchMsg{Type: TypeBatch, ProtocolVersion: Version, Tick: tick, Packets: packets}
}

// Коды ошибок ERROR
const (
	ErrCodeBadRequest   = "E_BAD_REQUEST"
	ErrCodeWorldUnknown = "E_WORLD_NOT_FOUND"
	ErrCodeNoSession    = "E_NO_SESSION"
	ErrCodeInternal     = "E_INTERNAL"
)

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

// NewError создаёт ERROR
func NewError(code, message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, Code: code, Message: message}
}
