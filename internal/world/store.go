package world

import (
	"sync"

	"github.com/annel0/overlay-sync/internal/util"
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world/block"
)

// Константы генерации рельефа
const (
	surfaceBase      = 60   // Средняя высота поверхности
	surfaceAmplitude = 24   // Разброс высоты поверхности
	noiseScale       = 0.03 // Сглаженность ландшафта
	dirtDepth        = 3    // Толщина слоя земли под травой
)

// Store авторитетное состояние блоков для нескольких миров.
// Блоки, которые никто не менял, вычисляются генератором на лету,
// явные изменения хранятся поверх.
type Store struct {
	mu      sync.RWMutex
	rng     Range
	noise   *util.Noise
	worlds  map[Ref]struct{}
	changes map[Ref]map[vec.Vec3]block.BlockID
}

// NewStore создаёт хранилище с указанным вертикальным диапазоном и сидом рельефа
func NewStore(r Range, seed int64, refs ...Ref) *Store {
	s := &Store{
		rng:     r,
		noise:   util.NewNoise(seed),
		worlds:  make(map[Ref]struct{}, len(refs)),
		changes: make(map[Ref]map[vec.Vec3]block.BlockID),
	}
	for _, ref := range refs {
		s.worlds[ref] = struct{}{}
	}
	return s
}

// Range возвращает вертикальный диапазон миров хранилища
func (s *Store) Range() Range {
	return s.rng
}

// HasWorld проверяет, что мир зарегистрирован
func (s *Store) HasWorld(ref Ref) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.worlds[ref]
	return ok
}

// Worlds возвращает зарегистрированные миры
func (s *Store) Worlds() []Ref {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]Ref, 0, len(s.worlds))
	for ref := range s.worlds {
		refs = append(refs, ref)
	}
	return refs
}

// Block возвращает настоящий блок основного слоя в позиции.
// Слой надстройки в хранилище всегда пуст (воздух).
func (s *Store) Block(ref Ref, pos vec.Vec3, layer Layer) block.BlockID {
	if layer != LayerBase || !s.rng.Contains(pos.Y) {
		return block.AirBlockID
	}

	s.mu.RLock()
	if changes, ok := s.changes[ref]; ok {
		if id, ok := changes[pos]; ok {
			s.mu.RUnlock()
			return id
		}
	}
	s.mu.RUnlock()

	return s.generate(pos)
}

// SetBlock записывает изменение основного слоя
func (s *Store) SetBlock(ref Ref, pos vec.Vec3, id block.BlockID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.worlds[ref] = struct{}{}
	changes, ok := s.changes[ref]
	if !ok {
		changes = make(map[vec.Vec3]block.BlockID)
		s.changes[ref] = changes
	}
	changes[pos] = id
}

// SurfaceY возвращает высоту верхнего твёрдого блока колонки
func (s *Store) SurfaceY(x, z int) int {
	height := s.noise.Noise2D(float64(x)*noiseScale, float64(z)*noiseScale)
	y := surfaceBase + int(float64(surfaceAmplitude)*(height-0.5)*2)
	if y < s.rng.Min {
		return s.rng.Min
	}
	if y >= s.rng.Max {
		return s.rng.Max - 1
	}
	return y
}

// generate вычисляет блок рельефа по умолчанию
func (s *Store) generate(pos vec.Vec3) block.BlockID {
	surface := s.SurfaceY(pos.X, pos.Z)
	switch {
	case pos.Y > surface:
		return block.AirBlockID
	case pos.Y == surface:
		return block.GrassBlockID
	case pos.Y > surface-dirtDepth:
		return block.DirtBlockID
	default:
		return block.StoneBlockID
	}
}
