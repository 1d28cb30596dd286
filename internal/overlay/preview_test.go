package overlay

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
	"github.com/annel0/overlay-sync/internal/world/block"
)

func newTestPreview(viewers ...ViewerID) (*BlockPreview, *fakeNetwork, *fakeScheduler, *fakeViewers) {
	network := &fakeNetwork{}
	scheduler := &fakeScheduler{}
	v := newFakeViewers(viewers...)
	return NewBlockPreview(network, scheduler, v, block.StainedGlassLightBlueBlockID), network, scheduler, v
}

var (
	posA = vec.Vec3{X: 1, Y: 64, Z: 1}
	posB = vec.Vec3{X: 2, Y: 64, Z: 1}
)

func TestBlockPreview_ShowDefersOneTick(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice")

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	assert.Empty(t, network.packets, "в тике вызова ничего не отправляется")
	assert.True(t, preview.HasPending("alice"))

	scheduler.Advance()

	require.Len(t, network.packets, 2)
	assert.Equal(t, sentPacket{kind: "override", viewer: "alice", pos: posA, block: block.StoneBlockID, layer: world.LayerBase}, network.packets[0])
	assert.Equal(t, sentPacket{kind: "override", viewer: "alice", pos: posA, block: block.StainedGlassLightBlueBlockID, layer: world.LayerOverlay}, network.packets[1])
	assert.Equal(t, []vec.Vec3{posA}, preview.PreviewPositions("alice"))
	assert.False(t, preview.HasPending("alice"))
}

func TestBlockPreview_CustomOverlay(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice")

	preview.Show("alice", NewPreviewEntry("overworld", posA, block.PlanksBlockID, CustomOverlay(block.GlassBlockID)))
	scheduler.Advance()

	overlays := network.ofKind("override")
	require.Len(t, overlays, 2)
	assert.Equal(t, block.GlassBlockID, overlays[1].block)
	assert.Equal(t, world.LayerOverlay, overlays[1].layer)
}

func TestBlockPreview_SecondShowCoalesces(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice")

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	preview.Show("alice", entriesAt("overworld", block.DirtBlockID, posB)...)
	assert.Equal(t, 1, scheduler.pending(), "вторая отправка не планируется")

	scheduler.Advance()

	require.Len(t, network.packets, 2)
	for _, p := range network.packets {
		assert.Equal(t, posB, p.pos, "отправляется только последний набор")
	}
	assert.Equal(t, block.DirtBlockID, network.packets[0].block)
	assert.Equal(t, []vec.Vec3{posB}, preview.PreviewPositions("alice"))

	// Следующий тик уже ничего не делает
	network.reset()
	scheduler.Advance()
	assert.Empty(t, network.packets)
}

func TestBlockPreview_ClearBeforeFlushDiscardsPending(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice")

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	preview.Clear("alice")
	scheduler.Advance()

	assert.Empty(t, network.packets)
	assert.Empty(t, preview.PreviewPositions("alice"))
	assert.Empty(t, preview.scheduled, "флаг планирования должен сниматься")
}

func TestBlockPreview_ShowReplacesVisiblePreview(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice")

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	scheduler.Advance()
	network.reset()

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posB)...)

	// Прежнее превью убрано синхронно, до отложенной отправки
	require.Len(t, network.packets, 2)
	assert.Equal(t, sentPacket{kind: "override", viewer: "alice", pos: posA, block: block.AirBlockID, layer: world.LayerOverlay}, network.packets[0])
	assert.Equal(t, sentPacket{kind: "resync", viewer: "alice", positions: []vec.Vec3{posA}}, network.packets[1])
	assert.Empty(t, preview.PreviewPositions("alice"))

	scheduler.Advance()
	assert.Equal(t, []vec.Vec3{posB}, preview.PreviewPositions("alice"))
}

func TestBlockPreview_ClearRestores(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice")

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA, posB)...)
	scheduler.Advance()
	network.reset()

	preview.Clear("alice")

	require.Len(t, network.packets, 3)
	assert.Equal(t, block.AirBlockID, network.packets[0].block)
	assert.Equal(t, world.LayerOverlay, network.packets[1].layer)
	assert.Equal(t, []vec.Vec3{posA, posB}, network.packets[2].positions)
	assert.Empty(t, preview.lastPreview)

	// Повторная очистка — no-op
	network.reset()
	preview.Clear("alice")
	assert.Empty(t, network.packets)
}

func TestBlockPreview_EmptyShowOnlyClears(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice")

	preview.Show("alice")
	assert.Equal(t, 0, scheduler.pending())
	assert.Empty(t, network.packets)
}

func TestBlockPreview_DisconnectBeforeFlush(t *testing.T) {
	preview, network, scheduler, viewers := newTestPreview("alice")

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	delete(viewers.connected, "alice")
	scheduler.Advance()

	assert.Empty(t, network.packets, "отключённому зрителю ничего не отправляется")
	assert.False(t, preview.HasPending("alice"))
	assert.Empty(t, preview.PreviewPositions("alice"))
}

func TestBlockPreview_WorldChangeDropsEntries(t *testing.T) {
	preview, network, scheduler, viewers := newTestPreview("alice")

	entries := append(
		entriesAt("overworld", block.StoneBlockID, posA),
		entriesAt("nether", block.StoneBlockID, posB)...,
	)
	preview.Show("alice", entries...)
	viewers.connected["alice"] = "nether"
	scheduler.Advance()

	require.Len(t, network.packets, 2)
	assert.Equal(t, posB, network.packets[0].pos)
	assert.Equal(t, []vec.Vec3{posB}, preview.PreviewPositions("alice"))
}

func TestBlockPreview_AllEntriesDroppedKeepsNothing(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice")

	preview.Show("alice", entriesAt("nether", block.StoneBlockID, posA)...)
	scheduler.Advance()

	assert.Empty(t, network.packets)
	assert.Empty(t, preview.lastPreview)
}

func TestBlockPreview_ViewersAreIndependent(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice", "bob")

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	preview.Show("bob", entriesAt("overworld", block.DirtBlockID, posB)...)
	scheduler.Advance()

	assert.Len(t, network.packets, 4)
	preview.Clear("alice")
	assert.Equal(t, []vec.Vec3{posB}, preview.PreviewPositions("bob"))
}

func TestBlockPreview_ForgetSendsNothing(t *testing.T) {
	preview, network, scheduler, _ := newTestPreview("alice")

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	scheduler.Advance()
	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posB)...)
	network.reset()

	preview.Forget("alice")
	scheduler.Advance()

	assert.Empty(t, network.packets)
	assert.Empty(t, preview.lastPreview)
	assert.Empty(t, preview.pending)
	assert.Empty(t, preview.scheduled)
}

func TestBlockPreview_PositionsAreCopied(t *testing.T) {
	preview, _, scheduler, _ := newTestPreview("alice")

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	scheduler.Advance()

	positions := preview.PreviewPositions("alice")
	positions[0] = vec.Vec3{}
	assert.Equal(t, []vec.Vec3{posA}, preview.PreviewPositions("alice"))
}

func TestBlockPreview_Metrics(t *testing.T) {
	preview, _, scheduler, viewers := newTestPreview("alice")
	m := NewMetrics(prometheus.NewRegistry())
	preview.SetMetrics(m)

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	scheduler.Advance()

	preview.Show("alice", entriesAt("overworld", block.StoneBlockID, posA)...)
	delete(viewers.connected, "alice")
	scheduler.Advance()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues(flushRendered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues(flushDisconnected)))
	// 2 подмены при показе + 1 очистка надстройки при повторном Show
	assert.Equal(t, 3.0, testutil.ToFloat64(m.packets.WithLabelValues(packetOverride)))
}
