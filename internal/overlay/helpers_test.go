package overlay

import (
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
	"github.com/annel0/overlay-sync/internal/world/block"
)

// sentPacket один вызов Network, записанный fakeNetwork
type sentPacket struct {
	kind      string // override | tag | resync
	viewer    ViewerID
	pos       vec.Vec3
	block     block.BlockID
	layer     world.Layer
	tag       StructureTag
	positions []vec.Vec3
}

type fakeNetwork struct {
	packets []sentPacket
}

func (n *fakeNetwork) SendOverride(viewer ViewerID, pos vec.Vec3, id block.BlockID, layer world.Layer) {
	n.packets = append(n.packets, sentPacket{kind: "override", viewer: viewer, pos: pos, block: id, layer: layer})
}

func (n *fakeNetwork) SendTagPayload(viewer ViewerID, pos vec.Vec3, tag StructureTag) {
	n.packets = append(n.packets, sentPacket{kind: "tag", viewer: viewer, pos: pos, tag: tag})
}

func (n *fakeNetwork) SendResync(viewer ViewerID, positions []vec.Vec3) {
	cp := make([]vec.Vec3, len(positions))
	copy(cp, positions)
	n.packets = append(n.packets, sentPacket{kind: "resync", viewer: viewer, positions: cp})
}

func (n *fakeNetwork) reset() {
	n.packets = nil
}

func (n *fakeNetwork) ofKind(kind string) []sentPacket {
	var out []sentPacket
	for _, p := range n.packets {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// fakeScheduler копит задачи и выполняет их по Advance
type fakeScheduler struct {
	tick  int
	tasks []scheduledTask
}

type scheduledTask struct {
	due int
	fn  func()
}

func (s *fakeScheduler) After(ticks int, fn func()) {
	s.tasks = append(s.tasks, scheduledTask{due: s.tick + ticks, fn: fn})
}

// Advance продвигает время на один тик и выполняет созревшие задачи
func (s *fakeScheduler) Advance() {
	s.tick++
	var rest []scheduledTask
	var due []scheduledTask
	for _, t := range s.tasks {
		if t.due <= s.tick {
			due = append(due, t)
		} else {
			rest = append(rest, t)
		}
	}
	s.tasks = rest
	for _, t := range due {
		t.fn()
	}
}

func (s *fakeScheduler) pending() int {
	return len(s.tasks)
}

type fakeViewers struct {
	connected map[ViewerID]world.Ref
}

func newFakeViewers(viewers ...ViewerID) *fakeViewers {
	v := &fakeViewers{connected: make(map[ViewerID]world.Ref)}
	for _, id := range viewers {
		v.connected[id] = "overworld"
	}
	return v
}

func (v *fakeViewers) IsConnected(viewer ViewerID) bool {
	_, ok := v.connected[viewer]
	return ok
}

func (v *fakeViewers) CurrentWorld(viewer ViewerID) world.Ref {
	return v.connected[viewer]
}

func entriesAt(ref world.Ref, id block.BlockID, positions ...vec.Vec3) []PreviewEntry {
	out := make([]PreviewEntry, 0, len(positions))
	for _, pos := range positions {
		out = append(out, NewPreviewEntry(ref, pos, id, DefaultOverlay()))
	}
	return out
}
