package overlay

import (
	"errors"
	"fmt"
	"math"

	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world/block"
)

var (
	// ErrInvalidExtent возвращается при попытке задать размер рамки с компонентой
	// меньше 1 или больше math.MaxInt32.
	ErrInvalidExtent = errors.New("marker extent components must be in [1, MaxInt32]")
	// ErrInvalidOffset возвращается, если смещение не помещается в int32 данных якоря.
	ErrInvalidOffset = errors.New("marker offset components must fit in int32")
)

// StructureTag структурные данные блока-якоря, по которым клиент
// рисует рамку: смещение от якоря и размер коробки.
type StructureTag struct {
	ShowBoundingBox  byte  `json:"showBoundingBox"`
	XStructureOffset int32 `json:"xStructureOffset"`
	YStructureOffset int32 `json:"yStructureOffset"`
	ZStructureOffset int32 `json:"zStructureOffset"`
	XStructureSize   int32 `json:"xStructureSize"`
	YStructureSize   int32 `json:"yStructureSize"`
	ZStructureSize   int32 `json:"zStructureSize"`
}

// Offset возвращает смещение рамки относительно якоря
func (t StructureTag) Offset() vec.Vec3 {
	return vec.Vec3{X: int(t.XStructureOffset), Y: int(t.YStructureOffset), Z: int(t.ZStructureOffset)}
}

// Size возвращает размер рамки
func (t StructureTag) Size() vec.Vec3 {
	return vec.Vec3{X: int(t.XStructureSize), Y: int(t.YStructureSize), Z: int(t.ZStructureSize)}
}

// MarkerRecord одна рамка, показанная одному зрителю: блок-якорь в Pos
// и данные смещения/размера. Принадлежит ровно одной паре (зритель, Selection).
type MarkerRecord struct {
	// Pos: настоящая позиция блока-якоря в мире
	Pos vec.Vec3

	networkID block.BlockID
	tag       StructureTag
	offset    vec.Vec3
	size      vec.Vec3
}

// NewMarkerRecord создаёт запись с нулевым смещением и размером (1, 1, 1)
func NewMarkerRecord() *MarkerRecord {
	m := &MarkerRecord{
		networkID: block.StructureBlockID,
		tag:       StructureTag{ShowBoundingBox: 1},
	}
	_ = m.SetOffset(vec.Vec3{})
	_ = m.SetSize(vec.One)
	return m
}

// NetworkID возвращает общий для всех рамок ID блока-якоря
func (m *MarkerRecord) NetworkID() block.BlockID {
	return m.networkID
}

// Tag возвращает копию структурных данных
func (m *MarkerRecord) Tag() StructureTag {
	return m.tag
}

// Offset возвращает смещение рамки
func (m *MarkerRecord) Offset() vec.Vec3 {
	return m.offset
}

// Size возвращает размер рамки
func (m *MarkerRecord) Size() vec.Vec3 {
	return m.size
}

// SetOffset задаёт смещение и записывает его в данные.
// Смещение вне int32 отклоняется, запись при этом не меняется.
func (m *MarkerRecord) SetOffset(offset vec.Vec3) error {
	if !fitsInt32(offset.X) || !fitsInt32(offset.Y) || !fitsInt32(offset.Z) {
		return fmt.Errorf("%w: got %v", ErrInvalidOffset, offset)
	}
	m.offset = offset
	m.tag.XStructureOffset = int32(offset.X)
	m.tag.YStructureOffset = int32(offset.Y)
	m.tag.ZStructureOffset = int32(offset.Z)
	return nil
}

// SetSize задаёт размер и записывает его в данные.
// Компоненты меньше 1 или больше math.MaxInt32 отклоняются, запись при этом не меняется.
func (m *MarkerRecord) SetSize(size vec.Vec3) error {
	if size.X < 1 || size.Y < 1 || size.Z < 1 || !fitsInt32(size.X) || !fitsInt32(size.Y) || !fitsInt32(size.Z) {
		return fmt.Errorf("%w: got %v", ErrInvalidExtent, size)
	}
	m.size = size
	m.tag.XStructureSize = int32(size.X)
	m.tag.YStructureSize = int32(size.Y)
	m.tag.ZStructureSize = int32(size.Z)
	return nil
}

func fitsInt32(v int) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}
