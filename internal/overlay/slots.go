package overlay

import (
	"github.com/annel0/overlay-sync/internal/logging"
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
)

// SlotRegistry выделяет каждому зрителю свободную высоту якоря в колонке (x, z),
// чтобы блоки-якоря разных рамок одного зрителя не совпадали.
// Зрители независимы: у каждого свой набор занятых ключей.
//
// Реестр — явный объект владельца (менеджера сессий), а не глобальное состояние.
type SlotRegistry struct {
	rng     world.Range
	used    map[ViewerID]map[uint64]struct{}
	metrics *Metrics
	logger  *logging.Logger
}

// NewSlotRegistry создаёт реестр для мира с вертикальным диапазоном r
func NewSlotRegistry(r world.Range) *SlotRegistry {
	return &SlotRegistry{
		rng:    r,
		used:   make(map[ViewerID]map[uint64]struct{}),
		logger: logging.GetOverlayLogger(),
	}
}

// SetMetrics подключает метрики (nil отключает)
func (s *SlotRegistry) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Range возвращает вертикальный диапазон реестра
func (s *SlotRegistry) Range() world.Range {
	return s.rng
}

// Allocate возвращает наименьший свободный y в [Min, Max) для колонки (x, z)
// и помечает его занятым.
//
// Если вся колонка занята, возвращается Max, и ключ (x, Max, z) тоже помечается,
// чтобы последующий Release оставался согласованным. Это деградация, а не ошибка:
// рамка может наложиться на другую, но система продолжает работать.
func (s *SlotRegistry) Allocate(viewer ViewerID, x, z int) int {
	keys, ok := s.used[viewer]
	if !ok {
		keys = make(map[uint64]struct{})
		s.used[viewer] = keys
	}

	for y := s.rng.Min; y < s.rng.Max; y++ {
		key := vec.Morton3D(x, y, z)
		if _, taken := keys[key]; !taken {
			keys[key] = struct{}{}
			s.metrics.slotAllocated()
			return y
		}
	}

	keys[vec.Morton3D(x, s.rng.Max, z)] = struct{}{}
	s.metrics.slotFallback()
	s.logger.Warn("Колонка (%d, %d) зрителя %s заполнена, используется резервный y=%d", x, z, viewer, s.rng.Max)
	return s.rng.Max
}

// Release освобождает ключ (x, y, z). Освобождение незанятого ключа ничего не делает.
// Когда у зрителя не остаётся занятых ключей, его запись удаляется целиком.
func (s *SlotRegistry) Release(viewer ViewerID, x, y, z int) {
	keys, ok := s.used[viewer]
	if !ok {
		return
	}

	key := vec.Morton3D(x, y, z)
	if _, held := keys[key]; held {
		delete(keys, key)
		s.metrics.slotReleased()
	}
	if len(keys) == 0 {
		delete(s.used, viewer)
	}
}

// Holds сообщает, занят ли ключ (x, y, z) у зрителя
func (s *SlotRegistry) Holds(viewer ViewerID, x, y, z int) bool {
	_, held := s.used[viewer][vec.Morton3D(x, y, z)]
	return held
}

// Len возвращает количество занятых ключей зрителя
func (s *SlotRegistry) Len(viewer ViewerID) int {
	return len(s.used[viewer])
}

// Viewers возвращает количество зрителей с хотя бы одним занятым ключом
func (s *SlotRegistry) Viewers() int {
	return len(s.used)
}
