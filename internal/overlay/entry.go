package overlay

import (
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
	"github.com/annel0/overlay-sync/internal/world/block"
)

// Overlay блок слоя надстройки для записи превью: либо свой, либо
// подсветка по умолчанию, которую задаёт BlockPreview.
type Overlay struct {
	id     block.BlockID
	custom bool
}

// DefaultOverlay использует подсветку BlockPreview по умолчанию
func DefaultOverlay() Overlay {
	return Overlay{}
}

// CustomOverlay использует указанный блок
func CustomOverlay(id block.BlockID) Overlay {
	return Overlay{id: id, custom: true}
}

// Custom возвращает свой блок, если он задан
func (o Overlay) Custom() (block.BlockID, bool) {
	return o.id, o.custom
}

// Resolve возвращает блок для отправки клиенту
func (o Overlay) Resolve(fallback block.BlockID) block.BlockID {
	if o.custom {
		return o.id
	}
	return fallback
}

// PreviewEntry одна клетка превью. Значение неизменяемо после создания.
type PreviewEntry struct {
	world   world.Ref
	pos     vec.Vec3
	block   block.BlockID
	overlay Overlay
}

// NewPreviewEntry создаёт клетку превью: block подменяет основной слой,
// overlay слой надстройки.
func NewPreviewEntry(ref world.Ref, pos vec.Vec3, id block.BlockID, overlay Overlay) PreviewEntry {
	return PreviewEntry{world: ref, pos: pos, block: id, overlay: overlay}
}

func (e PreviewEntry) World() world.Ref     { return e.world }
func (e PreviewEntry) Pos() vec.Vec3        { return e.pos }
func (e PreviewEntry) Block() block.BlockID { return e.block }
func (e PreviewEntry) Overlay() Overlay     { return e.overlay }
