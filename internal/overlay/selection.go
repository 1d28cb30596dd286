package overlay

import (
	"sort"

	"github.com/annel0/overlay-sync/internal/logging"
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
)

// Selection показывает зрителям рамку выровненной по осям области Pos1–Pos2
// через блок-якорь со структурными данными.
//
// У каждого зрителя не больше одной записи на Selection. Повторный SendTo
// сначала восстанавливает прежний якорь (освобождая его слот), затем
// выделяет слот заново, поэтому смена углов не оставляет утечек.
//
// Изменение Pos1/Pos2 само по себе зрителей не обновляет: вызывающий
// должен повторить SendTo для каждого из Viewers().
type Selection struct {
	Pos1 vec.Vec3Float
	Pos2 vec.Vec3Float

	slots   *SlotRegistry
	network Network
	records map[ViewerID]*MarkerRecord

	logger *logging.Logger
}

// NewSelection создаёт выделение с углами pos1 и pos2.
// Слоты якорей берутся из общего для всех выделений реестра slots.
func NewSelection(pos1, pos2 vec.Vec3Float, slots *SlotRegistry, network Network) *Selection {
	return &Selection{
		Pos1:    pos1,
		Pos2:    pos2,
		slots:   slots,
		network: network,
		records: make(map[ViewerID]*MarkerRecord),
		logger:  logging.GetOverlayLogger(),
	}
}

// Min возвращает минимальный угол области (покомпонентно, округлён вниз)
func (s *Selection) Min() vec.Vec3 {
	return s.Pos1.Min(s.Pos2).Floor()
}

// Max возвращает максимальный угол области (покомпонентно, округлён вниз)
func (s *Selection) Max() vec.Vec3 {
	return s.Pos1.Max(s.Pos2).Floor()
}

// Size возвращает размер области в блоках
func (s *Selection) Size() vec.Vec3 {
	return s.Max().Sub(s.Min()).Add(vec.One)
}

// SendTo показывает рамку зрителю (или обновляет уже показанную).
func (s *Selection) SendTo(viewer ViewerID) {
	data, exists := s.records[viewer]
	if exists {
		s.RestoreFrom(viewer)
	} else {
		data = NewMarkerRecord()
	}

	minPos := s.Min()
	maxPos := s.Max()

	// Якорь занимает свободный слот колонки, а смещение по Y возвращает
	// рамку к настоящему минимальному углу.
	y := s.slots.Allocate(viewer, minPos.X, minPos.Z)
	err := data.SetSize(maxPos.Sub(minPos).Add(vec.One))
	if err == nil {
		err = data.SetOffset(vec.Vec3{X: 0, Y: minPos.Y - y, Z: 0})
	}
	if err != nil {
		s.slots.Release(viewer, minPos.X, y, minPos.Z)
		s.logger.Error("Рамка для зрителя %s не отправлена: %v", viewer, err)
		return
	}
	data.Pos = vec.Vec3{X: minPos.X, Y: y, Z: minPos.Z}

	s.network.SendOverride(viewer, data.Pos, data.NetworkID(), world.LayerBase)
	s.network.SendTagPayload(viewer, data.Pos, data.Tag())
	s.slots.metrics.sent(packetOverride, 1)
	s.slots.metrics.sent(packetTag, 1)

	s.records[viewer] = data
	s.slots.metrics.markerShown()
	s.logger.Trace("Рамка %v..%v показана зрителю %s, якорь %v", minPos, maxPos, viewer, data.Pos)
}

// RestoreFrom убирает рамку зрителя: возвращает настоящий блок на месте
// якоря и освобождает слот. Ничего не делает, если рамка не показана.
func (s *Selection) RestoreFrom(viewer ViewerID) {
	data, exists := s.records[viewer]
	if !exists {
		return
	}

	pos := data.Pos
	s.network.SendResync(viewer, []vec.Vec3{pos})
	s.slots.metrics.sent(packetResync, 1)

	s.slots.Release(viewer, pos.X, pos.Y, pos.Z)
	delete(s.records, viewer)
	s.slots.metrics.markerRestored()
}

// HasViewer сообщает, показана ли рамка зрителю
func (s *Selection) HasViewer(viewer ViewerID) bool {
	_, exists := s.records[viewer]
	return exists
}

// Viewers возвращает снимок зрителей с показанной рамкой (в порядке ID)
func (s *Selection) Viewers() []ViewerID {
	viewers := make([]ViewerID, 0, len(s.records))
	for viewer := range s.records {
		viewers = append(viewers, viewer)
	}
	sort.Slice(viewers, func(i, j int) bool { return viewers[i] < viewers[j] })
	return viewers
}

// Record возвращает копию записи зрителя
func (s *Selection) Record(viewer ViewerID) (MarkerRecord, bool) {
	data, exists := s.records[viewer]
	if !exists {
		return MarkerRecord{}, false
	}
	return *data, true
}

// RestoreFromAll убирает рамку у всех зрителей
func (s *Selection) RestoreFromAll() {
	for _, viewer := range s.Viewers() {
		s.RestoreFrom(viewer)
	}
}

// Refresh повторно отправляет рамку всем текущим зрителям (после смены углов)
func (s *Selection) Refresh() {
	for _, viewer := range s.Viewers() {
		s.SendTo(viewer)
	}
}
