package world

// Ref идентифицирует один из параллельных миров хоста.
// Координаты сравнимы только внутри одного Ref.
type Ref string

// Range допустимый вертикальный диапазон мира [Min, Max).
type Range struct {
	Min int `yaml:"min_y"`
	Max int `yaml:"max_y"`
}

// DefaultRange совпадает с высотой мира клиента по умолчанию.
var DefaultRange = Range{Min: -64, Max: 320}

// Contains проверяет, что y лежит в [Min, Max)
func (r Range) Contains(y int) bool {
	return y >= r.Min && y < r.Max
}

// Height возвращает количество допустимых уровней
func (r Range) Height() int {
	if r.Max <= r.Min {
		return 0
	}
	return r.Max - r.Min
}
