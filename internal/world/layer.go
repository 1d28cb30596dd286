package world

// Layer определяет слой данных блока в одной позиции.
// Клиент отрисовывает оба слоя независимо:
//
// 0 – LayerBase: основной (твёрдый) блок;
// 1 – LayerOverlay: полупрозрачная надстройка поверх основного блока
// (в клиенте это слой жидкости).
type Layer uint8

const (
	LayerBase Layer = iota
	LayerOverlay

	MaxLayers // всегда последний: количество слоев
)

func (l Layer) String() string {
	switch l {
	case LayerBase:
		return "base"
	case LayerOverlay:
		return "overlay"
	default:
		return "unknown"
	}
}
