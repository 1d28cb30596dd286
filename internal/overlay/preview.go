package overlay

import (
	"github.com/annel0/overlay-sync/internal/logging"
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
	"github.com/annel0/overlay-sync/internal/world/block"
)

// BlockPreview показывает зрителю временное превью блоков:
//   - основной слой подменяется блоком, который будет поставлен;
//   - на слой надстройки кладётся подсветка (своя или по умолчанию);
//   - отправка откладывается на один тик.
//
// Хост, получив от клиента взаимодействие с блоком, в этом же тике сам
// отправляет пакеты пересинхронизации вокруг позиции. Отправленная в том же
// тике подмена была бы ими перезаписана, поэтому превью уходит тиком позже
// и оказывается последним записавшим.
//
// Пример:
//
//	preview := overlay.NewBlockPreview(network, loop, viewers, block.StainedGlassLightBlueBlockID)
//	preview.Show(viewer,
//		overlay.NewPreviewEntry(ref, pos1, block.StoneBlockID, overlay.DefaultOverlay()),
//		overlay.NewPreviewEntry(ref, pos2, block.StoneBlockID, overlay.DefaultOverlay()),
//	)
//	// позже
//	preview.Clear(viewer)
type BlockPreview struct {
	network        Network
	scheduler      Scheduler
	viewers        Viewers
	defaultOverlay block.BlockID

	lastPreview map[ViewerID][]vec.Vec3     // Показанные позиции
	pending     map[ViewerID][]PreviewEntry // Ожидают отправки
	scheduled   map[ViewerID]bool           // Отправка уже запланирована

	metrics *Metrics
	logger  *logging.Logger
}

// NewBlockPreview создаёт превью. defaultOverlay кладётся на слой надстройки
// для записей без своего блока.
func NewBlockPreview(network Network, scheduler Scheduler, viewers Viewers, defaultOverlay block.BlockID) *BlockPreview {
	return &BlockPreview{
		network:        network,
		scheduler:      scheduler,
		viewers:        viewers,
		defaultOverlay: defaultOverlay,
		lastPreview:    make(map[ViewerID][]vec.Vec3),
		pending:        make(map[ViewerID][]PreviewEntry),
		scheduled:      make(map[ViewerID]bool),
		logger:         logging.GetOverlayLogger(),
	}
}

// SetMetrics подключает метрики (nil отключает)
func (p *BlockPreview) SetMetrics(m *Metrics) {
	p.metrics = m
}

// PreviewPositions возвращает позиции превью, видимые зрителю сейчас.
// Используется для собственного ray-cast (клик по воздуху в превью).
func (p *BlockPreview) PreviewPositions(viewer ViewerID) []vec.Vec3 {
	positions := p.lastPreview[viewer]
	if len(positions) == 0 {
		return nil
	}
	out := make([]vec.Vec3, len(positions))
	copy(out, positions)
	return out
}

// HasPending сообщает, ждёт ли зритель отложенной отправки
func (p *BlockPreview) HasPending(viewer ViewerID) bool {
	return len(p.pending[viewer]) > 0
}

// Clear убирает показанное превью зрителя: очищает слой надстройки,
// возвращает настоящие блоки основного слоя и забывает позиции.
// Ожидающие отправки записи тоже отбрасываются.
func (p *BlockPreview) Clear(viewer ViewerID) {
	delete(p.pending, viewer)

	positions := p.lastPreview[viewer]
	if len(positions) == 0 {
		return
	}

	for _, pos := range positions {
		p.network.SendOverride(viewer, pos, block.AirBlockID, world.LayerOverlay)
	}
	p.network.SendResync(viewer, positions)
	p.metrics.sent(packetOverride, len(positions))
	p.metrics.sent(packetResync, 1)

	delete(p.lastPreview, viewer)
	p.logger.Trace("Превью зрителя %s очищено (%d позиций)", viewer, len(positions))
}

// Show показывает превью зрителю.
//
// Сначала синхронно убирается прежнее превью. Пустой список только очищает.
// Иначе записи становятся ожидающими (заменяя прежние ожидающие), а отправка
// планируется через один тик, если ещё не запланирована. Повторный Show до
// этого тика лишь заменяет записи: уйдёт только последний набор.
func (p *BlockPreview) Show(viewer ViewerID, entries ...PreviewEntry) {
	p.Clear(viewer)

	if len(entries) == 0 {
		return
	}

	pending := make([]PreviewEntry, len(entries))
	copy(pending, entries)
	p.pending[viewer] = pending

	if p.scheduled[viewer] {
		return
	}
	p.scheduled[viewer] = true
	p.scheduler.After(1, func() { p.flushDeferred(viewer) })
}

// Forget удаляет всё состояние зрителя без сетевых пакетов.
// Вызывается при отключении, когда соединения уже нет.
// Флаг запланированной отправки снимет сама отложенная задача.
func (p *BlockPreview) Forget(viewer ViewerID) {
	delete(p.pending, viewer)
	delete(p.lastPreview, viewer)
}

// flushDeferred выполняется через тик после Show
func (p *BlockPreview) flushDeferred(viewer ViewerID) {
	delete(p.scheduled, viewer)

	entries, ok := p.pending[viewer]
	if !ok {
		p.metrics.flush(flushCleared)
		return
	}
	delete(p.pending, viewer)

	if !p.viewers.IsConnected(viewer) {
		p.metrics.flush(flushDisconnected)
		return
	}

	p.flush(viewer, entries)
}

// flush отправляет записи зрителю. Записи из другого мира (зритель сменил мир
// за время ожидания) молча отбрасываются.
func (p *BlockPreview) flush(viewer ViewerID, entries []PreviewEntry) {
	current := p.viewers.CurrentWorld(viewer)
	positions := make([]vec.Vec3, 0, len(entries))

	for _, entry := range entries {
		if entry.World() != current {
			continue
		}
		pos := entry.Pos()
		positions = append(positions, pos)

		p.network.SendOverride(viewer, pos, entry.Block(), world.LayerBase)
		p.network.SendOverride(viewer, pos, entry.Overlay().Resolve(p.defaultOverlay), world.LayerOverlay)
	}

	p.metrics.dropped(len(entries) - len(positions))
	if len(positions) == 0 {
		p.metrics.flush(flushEmpty)
		return
	}

	p.lastPreview[viewer] = positions
	p.metrics.sent(packetOverride, 2*len(positions))
	p.metrics.flush(flushRendered)
	p.logger.Trace("Превью зрителя %s отправлено (%d позиций)", viewer, len(positions))
}
