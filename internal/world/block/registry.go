package block

import "sort"

// BlockID представляет сетевой идентификатор типа блока
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1
	GrassBlockID                // 2
	DirtBlockID                 // 3
	SandBlockID                 // 4
	GlassBlockID                // 5

	// Декоративные блоки (начиная с 100)
	StainedGlassLightBlueBlockID BlockID = 100 // Подсветка превью по умолчанию
	PlanksBlockID                BlockID = 101

	// Служебные блоки (начиная с 1000)
	StructureBlockID BlockID = 1000 // Якорь рамки выделения
)

// Properties описывает статические свойства типа блока
type Properties struct {
	Name        string
	Placeable   bool // Может ли игрок поставить блок (и, значит, увидеть его превью)
	Translucent bool
}

var registry = make(map[BlockID]Properties)

func init() {
	Register(AirBlockID, Properties{Name: "air", Translucent: true})
	Register(StoneBlockID, Properties{Name: "stone", Placeable: true})
	Register(GrassBlockID, Properties{Name: "grass", Placeable: true})
	Register(DirtBlockID, Properties{Name: "dirt", Placeable: true})
	Register(SandBlockID, Properties{Name: "sand", Placeable: true})
	Register(GlassBlockID, Properties{Name: "glass", Placeable: true, Translucent: true})
	Register(StainedGlassLightBlueBlockID, Properties{Name: "light_blue_stained_glass", Placeable: true, Translucent: true})
	Register(PlanksBlockID, Properties{Name: "planks", Placeable: true})
	Register(StructureBlockID, Properties{Name: "structure_block"})
}

// Register добавляет свойства блока в регистр
func Register(id BlockID, props Properties) {
	registry[id] = props
}

// Get возвращает свойства для указанного ID
func Get(id BlockID) (Properties, bool) {
	props, exists := registry[id]
	return props, exists
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func IsValidBlockID(id BlockID) bool {
	_, exists := registry[id]
	return exists
}

// Placeable сообщает, можно ли поставить блок. Неизвестные ID не ставятся.
func (id BlockID) Placeable() bool {
	props, exists := registry[id]
	return exists && props.Placeable
}

// Name возвращает имя блока или "unknown"
func (id BlockID) Name() string {
	if props, exists := registry[id]; exists {
		return props.Name
	}
	return "unknown"
}

// ByName ищет блок по имени
func ByName(name string) (BlockID, bool) {
	for id, props := range registry {
		if props.Name == name {
			return id, true
		}
	}
	return AirBlockID, false
}

// All возвращает все зарегистрированные ID по возрастанию
func All() []BlockID {
	ids := make([]BlockID, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
