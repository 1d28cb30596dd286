package session

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/overlay-sync/internal/eventbus"
	"github.com/annel0/overlay-sync/internal/overlay"
	"github.com/annel0/overlay-sync/internal/tick"
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
	"github.com/annel0/overlay-sync/internal/world/block"
)

type override struct {
	pos   vec.Vec3
	block block.BlockID
	layer world.Layer
}

// recordingNetwork запоминает пакеты по зрителям
type recordingNetwork struct {
	overrides map[overlay.ViewerID][]override
	tags      map[overlay.ViewerID][]overlay.StructureTag
	resyncs   map[overlay.ViewerID][][]vec.Vec3
}

func newRecordingNetwork() *recordingNetwork {
	return &recordingNetwork{
		overrides: make(map[overlay.ViewerID][]override),
		tags:      make(map[overlay.ViewerID][]overlay.StructureTag),
		resyncs:   make(map[overlay.ViewerID][][]vec.Vec3),
	}
}

func (n *recordingNetwork) SendOverride(viewer overlay.ViewerID, pos vec.Vec3, id block.BlockID, layer world.Layer) {
	n.overrides[viewer] = append(n.overrides[viewer], override{pos, id, layer})
}

func (n *recordingNetwork) SendTagPayload(viewer overlay.ViewerID, _ vec.Vec3, tag overlay.StructureTag) {
	n.tags[viewer] = append(n.tags[viewer], tag)
}

func (n *recordingNetwork) SendResync(viewer overlay.ViewerID, positions []vec.Vec3) {
	n.resyncs[viewer] = append(n.resyncs[viewer], append([]vec.Vec3(nil), positions...))
}

func (n *recordingNetwork) reset() {
	*n = *newRecordingNetwork()
}

func (n *recordingNetwork) onLayer(viewer overlay.ViewerID, layer world.Layer) []override {
	var out []override
	for _, o := range n.overrides[viewer] {
		if o.layer == layer {
			out = append(out, o)
		}
	}
	return out
}

func newTestManager(t *testing.T, opts Options) (*Manager, *recordingNetwork, *tick.Loop) {
	t.Helper()
	network := newRecordingNetwork()
	loop := tick.NewLoop(20)
	if opts.Worlds == nil {
		opts.Worlds = []world.Ref{"overworld", "nether"}
	}
	return NewManager(network, loop, world.DefaultRange, opts), network, loop
}

func TestManager_ConnectAssignsUniqueIDs(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})

	a, err := m.Connect("overworld")
	require.NoError(t, err)
	b, err := m.Connect("overworld")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.True(t, m.IsConnected(a))
	assert.Equal(t, world.Ref("overworld"), m.CurrentWorld(a))
	assert.Len(t, m.Viewers(), 2)

	_, err = m.Connect("the_end")
	assert.ErrorIs(t, err, ErrUnknownWorld)
}

func TestManager_ToggleSession(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	viewer, _ := m.Connect("overworld")

	active, err := m.ToggleSession(viewer)
	require.NoError(t, err)
	assert.True(t, active)
	_, ok := m.Session(viewer)
	assert.True(t, ok)

	active, err = m.ToggleSession(viewer)
	require.NoError(t, err)
	assert.False(t, active)
	_, ok = m.Session(viewer)
	assert.False(t, ok)

	_, err = m.StartSession("nobody")
	assert.ErrorIs(t, err, ErrUnknownViewer)
}

func TestBuildSession_FirstPointCreatesSingleBlockSelection(t *testing.T) {
	m, network, _ := newTestManager(t, Options{})
	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)

	s.SetPos1(vec.Vec3{X: 4, Y: 70, Z: -3})

	require.NotNil(t, s.Selection())
	assert.Equal(t, vec.Vec3{X: 1, Y: 1, Z: 1}, s.Selection().Size())
	require.Len(t, network.tags[viewer], 1)
	assert.Equal(t, vec.Vec3{X: 1, Y: 1, Z: 1}, network.tags[viewer][0].Size())

	s.SetPos2(vec.Vec3{X: 6, Y: 71, Z: -3})
	assert.Equal(t, vec.Vec3{X: 3, Y: 2, Z: 1}, s.Selection().Size())
	assert.Equal(t, 1, m.Slots().Len(viewer), "повторная отправка не держит лишних слотов")
}

func TestBuildSession_PreviewFillsSelectionOnNextTick(t *testing.T) {
	m, network, loop := newTestManager(t, Options{})
	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)

	s.SetPos1(vec.Vec3{X: 0, Y: 64, Z: 0})
	s.SetPos2(vec.Vec3{X: 1, Y: 65, Z: 1})
	s.SetPreviewBlock(block.StoneBlockID)

	assert.Empty(t, network.onLayer(viewer, world.LayerOverlay), "превью уходит тиком позже")

	loop.Step()

	overlays := network.onLayer(viewer, world.LayerOverlay)
	require.Len(t, overlays, 8)
	for _, o := range overlays {
		assert.Equal(t, block.StainedGlassLightBlueBlockID, o.block)
	}
	assert.Len(t, m.Preview().PreviewPositions(viewer), 8)
}

func TestBuildSession_UnplaceableBlockShowsOnlyMarker(t *testing.T) {
	m, network, loop := newTestManager(t, Options{})
	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)

	s.SetPreviewBlock(block.StructureBlockID)
	s.SetPos1(vec.Vec3{})
	loop.Step()

	assert.Empty(t, network.onLayer(viewer, world.LayerOverlay))
	assert.Len(t, network.tags[viewer], 1)
	assert.False(t, m.Preview().HasPending(viewer))
}

func TestBuildSession_PreviewVolumeCap(t *testing.T) {
	m, network, loop := newTestManager(t, Options{MaxPreviewVolume: 8})
	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)

	s.SetPreviewBlock(block.PlanksBlockID)
	s.SetPos1(vec.Vec3{})
	s.SetPos2(vec.Vec3{X: 2, Y: 2, Z: 2})
	loop.Step()

	assert.Empty(t, m.Preview().PreviewPositions(viewer), "27 клеток больше лимита")
	assert.NotEmpty(t, network.tags[viewer], "рамка всё равно показана")
}

func TestBuildSession_HugeSelectionDoesNotOverflowPreview(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts Options
		pos2 vec.Vec3
	}{
		// Объём переполнял бы int в отрицательное значение
		{"negative wrap", Options{MaxPreviewVolume: 4096}, vec.Vec3{X: 2, Y: 1 << 62, Z: 0}},
		// Объём переполнял бы int ровно в 0
		{"zero wrap", Options{}, vec.Vec3{X: 1<<32 - 1, Y: 1<<32 - 1, Z: 0}},
		// Каждая ось в пределах int32, но клеток слишком много
		{"large box", Options{}, vec.Vec3{X: 1 << 20, Y: 1 << 20, Z: 1 << 20}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, network, loop := newTestManager(t, tc.opts)
			viewer, _ := m.Connect("overworld")
			s, _ := m.StartSession(viewer)

			s.SetPreviewBlock(block.StoneBlockID)
			s.SetPos1(vec.Vec3{})
			assert.NotPanics(t, func() { s.SetPos2(tc.pos2) })
			loop.Step()

			assert.Empty(t, m.Preview().PreviewPositions(viewer))
			assert.False(t, m.Preview().HasPending(viewer))
			assert.Empty(t, network.onLayer(viewer, world.LayerOverlay))
			// В данные якоря не попадает усечённый размер
			for _, tag := range network.tags[viewer] {
				size := tag.Size()
				assert.True(t, size == vec.One || size == s.Selection().Size(), "размер рамки %v", size)
			}
		})
	}
}

func TestBuildSession_CloseRestoresEverything(t *testing.T) {
	m, network, loop := newTestManager(t, Options{})
	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)

	s.SetPreviewBlock(block.StoneBlockID)
	s.SetPos1(vec.Vec3{})
	loop.Step()
	network.reset()

	require.True(t, m.EndSession(viewer))

	assert.Equal(t, 0, m.Slots().Viewers())
	assert.Empty(t, m.Preview().PreviewPositions(viewer))
	// Восстановление якоря рамки и ресинк очищенного превью
	assert.Len(t, network.resyncs[viewer], 2)
	assert.Len(t, network.onLayer(viewer, world.LayerOverlay), 1)
}

func TestBuildSession_SetSelectionReplacesMarker(t *testing.T) {
	m, network, _ := newTestManager(t, Options{})
	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)
	s.SetPos1(vec.Vec3{X: 10, Y: 10, Z: 10})
	network.reset()

	s.SetSelection(m.NewSelection(vec.Vec3{}, vec.Vec3{X: 1, Y: 1, Z: 1}))

	require.Len(t, network.resyncs[viewer], 1)
	assert.Equal(t, 10, network.resyncs[viewer][0][0].X)
	assert.Equal(t, vec.Vec3{X: 2, Y: 2, Z: 2}, s.Selection().Size())
	assert.Equal(t, 1, m.Slots().Len(viewer))

	s.SetSelection(nil)
	assert.Nil(t, s.Selection())
	assert.Equal(t, 0, m.Slots().Len(viewer))
}

func TestBuildSession_UsePicksPreviewCell(t *testing.T) {
	m, _, loop := newTestManager(t, Options{})
	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)

	s.SetPreviewBlock(block.StoneBlockID)
	s.SetPos1(vec.Vec3{X: 0, Y: 64, Z: 0})
	s.SetPos2(vec.Vec3{X: 4, Y: 64, Z: 0})
	loop.Step()

	// Смотрим вдоль оси X с высоты центра клеток
	ok := s.Use(vec.Vec3Float{X: -3, Y: 64.5, Z: 0.5}, vec.Vec3Float{X: 1}, nil)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3{X: 0, Y: 64, Z: 0}, s.Selection().Max())

	// Мимо превью и без запасной цели
	assert.False(t, s.Use(vec.Vec3Float{X: -3, Y: 90, Z: 0.5}, vec.Vec3Float{X: 1}, nil))

	fallback := vec.Vec3{X: 7, Y: 64, Z: 7}
	assert.True(t, s.Use(vec.Vec3Float{X: -3, Y: 90, Z: 0.5}, vec.Vec3Float{X: 1}, &fallback))
	assert.Equal(t, fallback, s.Selection().Max())
}

func TestManager_DisconnectReleasesState(t *testing.T) {
	m, network, loop := newTestManager(t, Options{})
	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)
	s.SetPreviewBlock(block.StoneBlockID)
	s.SetPos1(vec.Vec3{})

	m.Disconnect(viewer)
	network.reset()
	loop.Step()

	assert.False(t, m.IsConnected(viewer))
	assert.Equal(t, 0, m.Slots().Viewers())
	assert.Empty(t, network.overrides[viewer], "отложенная отправка не доходит до отключённого")
	_, ok := m.Session(viewer)
	assert.False(t, ok)
}

func TestManager_SetWorldDropsSelection(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)
	s.SetPos1(vec.Vec3{})

	require.NoError(t, m.SetWorld(viewer, "nether"))
	assert.Equal(t, world.Ref("nether"), m.CurrentWorld(viewer))
	assert.Nil(t, s.Selection())
	assert.Equal(t, 0, m.Slots().Viewers())

	assert.ErrorIs(t, m.SetWorld(viewer, "the_end"), ErrUnknownWorld)
	assert.ErrorIs(t, m.SetWorld("nobody", "nether"), ErrUnknownViewer)
}

func TestManager_CloseAll(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	for i := 0; i < 3; i++ {
		viewer, _ := m.Connect("overworld")
		s, _ := m.StartSession(viewer)
		s.SetPos1(vec.Vec3{X: i})
	}

	m.CloseAll()
	assert.Equal(t, 0, m.Slots().Viewers())
	for _, viewer := range m.Viewers() {
		_, ok := m.Session(viewer)
		assert.False(t, ok)
	}
}

func TestManager_PublishesLifecycleEvents(t *testing.T) {
	bus := eventbus.NewMemoryBus(64)
	var mu sync.Mutex
	var types []string
	_, err := bus.Subscribe(context.Background(), eventbus.Filter{}, func(_ context.Context, ev *eventbus.Envelope) {
		mu.Lock()
		types = append(types, ev.EventType)
		mu.Unlock()
	})
	require.NoError(t, err)

	publisher := NewPublisher(bus, 64)
	m, _, _ := newTestManager(t, Options{})
	m.SetPublisher(publisher)

	viewer, _ := m.Connect("overworld")
	s, _ := m.StartSession(viewer)
	s.SetPos1(vec.Vec3{})
	m.EndSession(viewer)
	m.Disconnect(viewer)

	publisher.Close()
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		eventbus.EventViewerConnected,
		eventbus.EventSessionStarted,
		eventbus.EventSelectionChanged,
		eventbus.EventSessionEnded,
		eventbus.EventViewerDisconnected,
	}, types)
}
