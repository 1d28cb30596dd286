package overlay

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/annel0/overlay-sync/internal/world"
)

func TestSlotRegistry_AllocatesLowestFree(t *testing.T) {
	slots := NewSlotRegistry(world.Range{Min: -4, Max: 4})

	assert.Equal(t, -4, slots.Allocate("alice", 0, 0))
	assert.Equal(t, -3, slots.Allocate("alice", 0, 0))
	// Другая колонка и другой зритель независимы
	assert.Equal(t, -4, slots.Allocate("alice", 1, 0))
	assert.Equal(t, -4, slots.Allocate("bob", 0, 0))

	// Освобождённый слот выдаётся снова первым
	slots.Release("alice", 0, -4, 0)
	assert.Equal(t, -4, slots.Allocate("alice", 0, 0))
}

func TestSlotRegistry_DistinctUntilExhausted(t *testing.T) {
	r := world.Range{Min: 0, Max: 8}
	slots := NewSlotRegistry(r)

	seen := make(map[int]bool)
	for i := 0; i < r.Height(); i++ {
		y := slots.Allocate("alice", 5, -5)
		assert.False(t, seen[y], "y=%d выдан дважды", y)
		assert.True(t, r.Contains(y))
		seen[y] = true
	}

	// Колонка заполнена: резервное значение, стабильное при повторах
	assert.Equal(t, r.Max, slots.Allocate("alice", 5, -5))
	assert.Equal(t, r.Max, slots.Allocate("alice", 5, -5))
	assert.True(t, slots.Holds("alice", 5, r.Max, -5))
	assert.Equal(t, r.Height()+1, slots.Len("alice"))
}

func TestSlotRegistry_ReleaseIsSafe(t *testing.T) {
	slots := NewSlotRegistry(world.DefaultRange)

	// Освобождение у незнакомого зрителя и незанятого ключа — no-op
	slots.Release("ghost", 0, 0, 0)
	assert.Equal(t, 0, slots.Viewers())

	y := slots.Allocate("alice", 2, 3)
	slots.Release("alice", 2, y+1, 3)
	assert.Equal(t, 1, slots.Len("alice"))

	slots.Release("alice", 2, y, 3)
	assert.Equal(t, 0, slots.Len("alice"))
	assert.Equal(t, 0, slots.Viewers(), "пустая запись зрителя должна удаляться")
	_, kept := slots.used["alice"]
	assert.False(t, kept)
}

func TestSlotRegistry_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	slots := NewSlotRegistry(world.Range{Min: 0, Max: 1})
	slots.SetMetrics(m)

	y := slots.Allocate("alice", 0, 0)
	fallback := slots.Allocate("alice", 0, 0)
	slots.Release("alice", 0, y, 0)
	slots.Release("alice", 0, fallback, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.slotsAllocated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.slotFallbacks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.slotsReleased))
}

func TestSlotRegistry_SentinelKeyIsShared(t *testing.T) {
	r := world.Range{Min: 0, Max: 1}
	slots := NewSlotRegistry(r)

	assert.Equal(t, 0, slots.Allocate("alice", 0, 0))
	assert.Equal(t, r.Max, slots.Allocate("alice", 0, 0))
	assert.Equal(t, r.Max, slots.Allocate("alice", 0, 0))

	// Обе резервные выдачи держат один ключ: одно освобождение снимает его
	slots.Release("alice", 0, r.Max, 0)
	assert.False(t, slots.Holds("alice", 0, r.Max, 0))
	assert.Equal(t, 1, slots.Len("alice"))

	// У другой колонки свой резервный ключ
	assert.Equal(t, 0, slots.Allocate("alice", 1, 0))
	assert.Equal(t, r.Max, slots.Allocate("alice", 1, 0))
	assert.True(t, slots.Holds("alice", 1, r.Max, 0))
	assert.False(t, slots.Holds("alice", 0, r.Max, 0))
}
