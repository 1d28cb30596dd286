package session

import (
	"github.com/annel0/overlay-sync/internal/eventbus"
	"github.com/annel0/overlay-sync/internal/overlay"
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world/block"
)

// BuildSession режим строительства одного зрителя: выделение двумя точками
// и превью блока, заполняющего выделенную область.
type BuildSession struct {
	viewer       overlay.ViewerID
	manager      *Manager
	selection    *overlay.Selection
	previewBlock block.BlockID // AirBlockID — превью не показывается
}

func newBuildSession(viewer overlay.ViewerID, m *Manager) *BuildSession {
	return &BuildSession{viewer: viewer, manager: m}
}

// Viewer возвращает зрителя сессии
func (s *BuildSession) Viewer() overlay.ViewerID {
	return s.viewer
}

// Selection возвращает текущее выделение (nil, пока не выбрана ни одна точка)
func (s *BuildSession) Selection() *overlay.Selection {
	return s.selection
}

// PreviewBlock возвращает блок превью
func (s *BuildSession) PreviewBlock() block.BlockID {
	return s.previewBlock
}

// SetPos1 задаёт первый угол. Первая выбранная точка создаёт выделение из одного блока.
func (s *BuildSession) SetPos1(pos vec.Vec3) {
	if s.selection == nil {
		s.selection = s.manager.newSelection(pos.ToFloat(), pos.ToFloat())
	} else {
		s.selection.Pos1 = pos.ToFloat()
	}
	s.send()
}

// SetPos2 задаёт второй угол
func (s *BuildSession) SetPos2(pos vec.Vec3) {
	if s.selection == nil {
		s.selection = s.manager.newSelection(pos.ToFloat(), pos.ToFloat())
	} else {
		s.selection.Pos2 = pos.ToFloat()
	}
	s.send()
}

// SetSelection заменяет выделение целиком (nil убирает его).
func (s *BuildSession) SetSelection(selection *overlay.Selection) {
	if s.selection != nil {
		s.selection.RestoreFrom(s.viewer)
	}
	s.selection = selection
	s.send()
}

// SetPreviewBlock задаёт блок превью. Непригодные для установки блоки
// сохраняются, но превью для них не показывается.
func (s *BuildSession) SetPreviewBlock(id block.BlockID) {
	s.previewBlock = id
	s.send()
}

// Use выбирает второй угол по взгляду зрителя: сначала ищется клетка
// показанного превью на луче eye+t·dir, иначе берётся fallback (блок под
// прицелом, найденный клиентом). Возвращает false, если цели нет.
func (s *BuildSession) Use(eye, dir vec.Vec3Float, fallback *vec.Vec3) bool {
	pos, ok := PickPreviewTarget(eye, dir, s.manager.preview.PreviewPositions(s.viewer), MaxPickDistance)
	if !ok {
		if fallback == nil {
			return false
		}
		pos = *fallback
	}
	s.SetPos2(pos)
	return true
}

// send перерисовывает наложения сессии: превью очищается, рамка
// отправляется заново и, если задан пригодный блок, превью заполняет область.
func (s *BuildSession) send() {
	m := s.manager
	m.preview.Clear(s.viewer)

	if s.selection == nil {
		return
	}

	s.selection.SendTo(s.viewer)
	minPos, maxPos := s.selection.Min(), s.selection.Max()
	m.publish(eventbus.EventSelectionChanged, s.viewer, eventbus.SessionEvent{Min: &minPos, Max: &maxPos})

	if s.previewBlock == block.AirBlockID || !s.previewBlock.Placeable() {
		return
	}

	// Оси сравниваются с лимитом до умножения: Volume насыщается на огромных областях
	size, limit := s.selection.Size(), m.maxPreviewVolume
	if size.X > limit || size.Y > limit || size.Z > limit || size.Volume() > limit {
		m.logger.Warn("Превью области %v для %s превышает лимит %d блоков, показана только рамка",
			size, s.viewer, limit)
		return
	}
	volume := size.Volume()

	ref := m.CurrentWorld(s.viewer)
	overlayBlock := overlay.CustomOverlay(m.previewOverlay)
	entries := make([]overlay.PreviewEntry, 0, volume)
	for x := minPos.X; x <= maxPos.X; x++ {
		for y := minPos.Y; y <= maxPos.Y; y++ {
			for z := minPos.Z; z <= maxPos.Z; z++ {
				entries = append(entries, overlay.NewPreviewEntry(ref, vec.Vec3{X: x, Y: y, Z: z}, s.previewBlock, overlayBlock))
			}
		}
	}
	m.preview.Show(s.viewer, entries...)
	m.publish(eventbus.EventPreviewChanged, s.viewer, eventbus.SessionEvent{Block: s.previewBlock.Name(), Cells: len(entries)})
}

// Close убирает рамку и превью зрителя
func (s *BuildSession) Close() {
	if s.selection != nil {
		s.selection.RestoreFrom(s.viewer)
	}
	s.manager.preview.Clear(s.viewer)
}
