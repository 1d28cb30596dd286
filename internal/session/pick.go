package session

import (
	"math"

	"github.com/annel0/overlay-sync/internal/vec"
)

// MaxPickDistance дальность выбора цели взглядом, в блоках
const MaxPickDistance = 20.0

// pickRadiusSq квадрат радиуса попадания луча в центр клетки
const pickRadiusSq = 0.75 * 0.75

// PickPreviewTarget находит ближайшую к глазу клетку из positions, центр
// которой лежит не дальше 0.75 от луча eye+t·dir при 0 < t <= maxDistance.
// Превью видно только клиенту, поэтому обычный поиск блока под прицелом его не находит.
func PickPreviewTarget(eye, dir vec.Vec3Float, positions []vec.Vec3, maxDistance float64) (vec.Vec3, bool) {
	if len(positions) == 0 {
		return vec.Vec3{}, false
	}

	length := math.Sqrt(dir.X*dir.X + dir.Y*dir.Y + dir.Z*dir.Z)
	if length <= 0 {
		return vec.Vec3{}, false
	}
	dx, dy, dz := dir.X/length, dir.Y/length, dir.Z/length

	var best vec.Vec3
	bestT := math.Inf(1)
	found := false

	for _, pos := range positions {
		cx := float64(pos.X) + 0.5 - eye.X
		cy := float64(pos.Y) + 0.5 - eye.Y
		cz := float64(pos.Z) + 0.5 - eye.Z

		t := cx*dx + cy*dy + cz*dz
		if t <= 0 || t > maxDistance {
			continue
		}

		ox, oy, oz := cx-dx*t, cy-dy*t, cz-dz*t
		if ox*ox+oy*oy+oz*oz > pickRadiusSq {
			continue
		}

		if t < bestT {
			bestT = t
			best = pos
			found = true
		}
	}
	return best, found
}
