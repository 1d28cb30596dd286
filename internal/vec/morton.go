package vec

// mortonBits разрядность каждой оси в ключе Morton.
// 3*21 = 63 бита, ключ помещается в uint64.
const mortonBits = 21

// mortonBias переводит знаковую координату в беззнаковую (offset binary),
// чтобы отрицательные Y/X/Z тоже давали уникальные ключи.
const mortonBias = 1 << (mortonBits - 1)

// MortonRange допустимый диапазон координат для Morton3D: [-MortonRange, MortonRange).
const MortonRange = mortonBias

// InMortonRange сообщает, лежат ли все компоненты v в [-MortonRange, MortonRange).
func InMortonRange(v Vec3) bool {
	return inAxisRange(v.X) && inAxisRange(v.Y) && inAxisRange(v.Z)
}

func inAxisRange(c int) bool {
	return c >= -MortonRange && c < MortonRange
}

// Morton3D кодирует (x, y, z) в один ключ Z-order, чередуя биты осей.
// Для координат в пределах [-MortonRange, MortonRange) разные тройки
// всегда дают разные ключи; вне диапазона ключи повторяются, поэтому
// координаты от клиентов проверяются через InMortonRange до вызова.
func Morton3D(x, y, z int) uint64 {
	return spread(uint64(x+mortonBias)) | spread(uint64(y+mortonBias))<<1 | spread(uint64(z+mortonBias))<<2
}

// spread раздвигает младшие 21 бит так, что между ними остаются по два нулевых бита.
func spread(v uint64) uint64 {
	v &= 0x1fffff
	v = (v | v<<32) & 0x1f00000000ffff
	v = (v | v<<16) & 0x1f0000ff0000ff
	v = (v | v<<8) & 0x100f00f00f00f00f
	v = (v | v<<4) & 0x10c30c30c30c30c3
	v = (v | v<<2) & 0x1249249249249249
	return v
}
