// Package session управляет подключёнными зрителями и их сессиями
// строительства. Manager владеет реестром слотов и превью блоков и сам
// отвечает на вопросы overlay.Viewers.
//
// Все методы вызываются из горутины тиков (через tick.Loop.Post).
package session

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/annel0/overlay-sync/internal/eventbus"
	"github.com/annel0/overlay-sync/internal/logging"
	"github.com/annel0/overlay-sync/internal/overlay"
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
	"github.com/annel0/overlay-sync/internal/world/block"
)

var (
	// ErrUnknownViewer зритель не подключён
	ErrUnknownViewer = errors.New("session: unknown viewer")
	// ErrUnknownWorld запрошенного мира нет на хосте
	ErrUnknownWorld = errors.New("session: unknown world")
)

// DefaultMaxPreviewVolume лимит клеток превью, если он не задан в Options
const DefaultMaxPreviewVolume = 4096

// Options настройки менеджера
type Options struct {
	// DefaultOverlay кладётся на слой надстройки для записей без своей подсветки
	DefaultOverlay block.BlockID
	// PreviewOverlay подсветка превью сессий строительства
	PreviewOverlay block.BlockID
	// MaxPreviewVolume ограничивает число клеток превью (0 — DefaultMaxPreviewVolume)
	MaxPreviewVolume int
	// Worlds допустимые миры (пусто — любые)
	Worlds []world.Ref
	// Metrics подключается к реестру слотов и превью (может быть nil)
	Metrics *overlay.Metrics
}

// Manager хранит зрителей, их миры и сессии строительства.
type Manager struct {
	network overlay.Network
	slots   *overlay.SlotRegistry
	preview *overlay.BlockPreview

	viewers  map[overlay.ViewerID]world.Ref
	sessions map[overlay.ViewerID]*BuildSession
	worlds   map[world.Ref]struct{}

	previewOverlay   block.BlockID
	maxPreviewVolume int

	publisher *Publisher
	logger    *logging.Logger
}

// NewManager создаёт менеджер для мира с вертикальным диапазоном rng.
func NewManager(network overlay.Network, scheduler overlay.Scheduler, rng world.Range, opts Options) *Manager {
	m := &Manager{
		network:          network,
		slots:            overlay.NewSlotRegistry(rng),
		viewers:          make(map[overlay.ViewerID]world.Ref),
		sessions:         make(map[overlay.ViewerID]*BuildSession),
		worlds:           make(map[world.Ref]struct{}),
		previewOverlay:   opts.PreviewOverlay,
		maxPreviewVolume: opts.MaxPreviewVolume,
		logger:           logging.GetSessionLogger(),
	}
	if m.maxPreviewVolume <= 0 {
		m.maxPreviewVolume = DefaultMaxPreviewVolume
	}
	if m.previewOverlay == block.AirBlockID {
		m.previewOverlay = block.StainedGlassLightBlueBlockID
	}
	defaultOverlay := opts.DefaultOverlay
	if defaultOverlay == block.AirBlockID {
		defaultOverlay = block.StainedGlassLightBlueBlockID
	}
	for _, ref := range opts.Worlds {
		m.worlds[ref] = struct{}{}
	}

	m.preview = overlay.NewBlockPreview(network, scheduler, m, defaultOverlay)
	m.slots.SetMetrics(opts.Metrics)
	m.preview.SetMetrics(opts.Metrics)
	return m
}

// SetPublisher подключает публикацию событий жизненного цикла (nil отключает)
func (m *Manager) SetPublisher(p *Publisher) {
	m.publisher = p
}

// Preview возвращает превью блоков
func (m *Manager) Preview() *overlay.BlockPreview {
	return m.preview
}

// Slots возвращает реестр слотов якорей
func (m *Manager) Slots() *overlay.SlotRegistry {
	return m.slots
}

// newSelection создаёт выделение на общем реестре слотов менеджера
func (m *Manager) newSelection(pos1, pos2 vec.Vec3Float) *overlay.Selection {
	return overlay.NewSelection(pos1, pos2, m.slots, m.network)
}

// NewSelection создаёт выделение, которое можно передать в BuildSession.SetSelection
func (m *Manager) NewSelection(pos1, pos2 vec.Vec3) *overlay.Selection {
	return m.newSelection(pos1.ToFloat(), pos2.ToFloat())
}

func (m *Manager) knownWorld(ref world.Ref) bool {
	if len(m.worlds) == 0 {
		return true
	}
	_, ok := m.worlds[ref]
	return ok
}

// Connect регистрирует нового зрителя в мире ref и возвращает его ID.
func (m *Manager) Connect(ref world.Ref) (overlay.ViewerID, error) {
	if !m.knownWorld(ref) {
		return "", ErrUnknownWorld
	}
	viewer := overlay.ViewerID(uuid.NewString())
	m.viewers[viewer] = ref
	m.logger.Info("Зритель %s подключён к миру %s", viewer, ref)
	m.publish(eventbus.EventViewerConnected, viewer, eventbus.SessionEvent{World: string(ref)})
	return viewer, nil
}

// Disconnect закрывает сессию зрителя и забывает его состояние.
// Превью сбрасывается через Forget: очищать клиент уже незачем.
func (m *Manager) Disconnect(viewer overlay.ViewerID) {
	if _, ok := m.viewers[viewer]; !ok {
		return
	}
	if s, ok := m.sessions[viewer]; ok {
		if s.selection != nil {
			// Слот освобождается; пакет восстановления уходит в закрытое соединение
			s.selection.RestoreFrom(viewer)
		}
		delete(m.sessions, viewer)
	}
	m.preview.Forget(viewer)
	delete(m.viewers, viewer)

	m.logger.Info("Зритель %s отключён", viewer)
	m.publish(eventbus.EventViewerDisconnected, viewer, eventbus.SessionEvent{})
}

// IsConnected реализует overlay.Viewers
func (m *Manager) IsConnected(viewer overlay.ViewerID) bool {
	_, ok := m.viewers[viewer]
	return ok
}

// CurrentWorld реализует overlay.Viewers
func (m *Manager) CurrentWorld(viewer overlay.ViewerID) world.Ref {
	return m.viewers[viewer]
}

// SetWorld переводит зрителя в другой мир. Координаты выделения в новом
// мире не имеют смысла, поэтому рамка и превью убираются, а выделение сбрасывается.
func (m *Manager) SetWorld(viewer overlay.ViewerID, ref world.Ref) error {
	current, ok := m.viewers[viewer]
	if !ok {
		return ErrUnknownViewer
	}
	if !m.knownWorld(ref) {
		return ErrUnknownWorld
	}
	if current == ref {
		return nil
	}

	if s, ok := m.sessions[viewer]; ok {
		s.Close()
		s.selection = nil
	}
	m.viewers[viewer] = ref
	m.logger.Debug("Зритель %s перешёл в мир %s", viewer, ref)
	return nil
}

// Viewers возвращает подключённых зрителей в порядке ID
func (m *Manager) Viewers() []overlay.ViewerID {
	out := make([]overlay.ViewerID, 0, len(m.viewers))
	for v := range m.viewers {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Session возвращает сессию строительства зрителя
func (m *Manager) Session(viewer overlay.ViewerID) (*BuildSession, bool) {
	s, ok := m.sessions[viewer]
	return s, ok
}

// StartSession начинает сессию строительства (или возвращает текущую)
func (m *Manager) StartSession(viewer overlay.ViewerID) (*BuildSession, error) {
	if !m.IsConnected(viewer) {
		return nil, ErrUnknownViewer
	}
	if s, ok := m.sessions[viewer]; ok {
		return s, nil
	}
	s := newBuildSession(viewer, m)
	m.sessions[viewer] = s
	m.logger.Debug("Сессия строительства %s начата", viewer)
	m.publish(eventbus.EventSessionStarted, viewer, eventbus.SessionEvent{})
	return s, nil
}

// EndSession закрывает сессию строительства. Возвращает false, если её не было.
func (m *Manager) EndSession(viewer overlay.ViewerID) bool {
	s, ok := m.sessions[viewer]
	if !ok {
		return false
	}
	s.Close()
	delete(m.sessions, viewer)
	m.logger.Debug("Сессия строительства %s закрыта", viewer)
	m.publish(eventbus.EventSessionEnded, viewer, eventbus.SessionEvent{})
	return true
}

// ToggleSession начинает сессию, если её нет, иначе закрывает.
// Возвращает true, если сессия после вызова активна.
func (m *Manager) ToggleSession(viewer overlay.ViewerID) (bool, error) {
	if m.EndSession(viewer) {
		return false, nil
	}
	if _, err := m.StartSession(viewer); err != nil {
		return false, err
	}
	return true, nil
}

// CloseAll закрывает все сессии строительства (при остановке хоста)
func (m *Manager) CloseAll() {
	for viewer, s := range m.sessions {
		s.Close()
		delete(m.sessions, viewer)
	}
}

func (m *Manager) publish(eventType string, viewer overlay.ViewerID, payload eventbus.SessionEvent) {
	if m.publisher == nil {
		return
	}
	payload.Viewer = string(viewer)
	if payload.World == "" {
		payload.World = string(m.viewers[viewer])
	}
	m.publisher.Publish(eventType, string(viewer), payload)
}
