// Package overlay отрисовывает временные, видимые только одному зрителю
// наложения поверх общего мира, не меняя авторитетное состояние:
//
//   - BlockPreview — «призрак» блоков, которые игрок собирается поставить;
//   - Selection — рамка (bounding box) выделенной области через блок-якорь
//     со структурными данными.
//
// Все операции выполняются в горутине тиков хоста и не требуют блокировок.
// Владелец обязан вызвать очистку (BlockPreview.Clear/Forget и
// Selection.RestoreFrom/RestoreFromAll) при отключении зрителя, иначе
// записи в картах и занятые слоты останутся навсегда.
package overlay

import (
	"github.com/annel0/overlay-sync/internal/vec"
	"github.com/annel0/overlay-sync/internal/world"
	"github.com/annel0/overlay-sync/internal/world/block"
)

// ViewerID непрозрачный идентификатор сессии клиента.
// Выдаётся при подключении и больше никогда не переиспользуется.
type ViewerID string

// Network канал отправки пакетов конкретному зрителю.
// Все методы fire-and-forget: подтверждений нет.
type Network interface {
	// SendOverride подменяет блок в позиции только для этого зрителя
	SendOverride(viewer ViewerID, pos vec.Vec3, id block.BlockID, layer world.Layer)
	// SendTagPayload отправляет структурные данные блока-якоря
	SendTagPayload(viewer ViewerID, pos vec.Vec3, tag StructureTag)
	// SendResync отправляет настоящее состояние мира в указанных позициях
	SendResync(viewer ViewerID, positions []vec.Vec3)
}

// Scheduler откладывает выполнение на тик-поток хоста.
type Scheduler interface {
	// After выполняет fn один раз, в горутине тиков, через ticks тиков
	After(ticks int, fn func())
}

// Viewers сообщает о состоянии подключённых зрителей.
type Viewers interface {
	IsConnected(viewer ViewerID) bool
	CurrentWorld(viewer ViewerID) world.Ref
}
