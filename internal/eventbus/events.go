package eventbus

import "github.com/annel0/overlay-sync/internal/vec"

// Source имя сервиса в конвертах
const Source = "overlay-sync"

// Типы событий жизненного цикла наложений
const (
	EventViewerConnected    = "overlay.viewer.connected"
	EventViewerDisconnected = "overlay.viewer.disconnected"
	EventSessionStarted     = "overlay.session.started"
	EventSessionEnded       = "overlay.session.ended"
	EventSelectionChanged   = "overlay.session.selection"
	EventPreviewChanged     = "overlay.session.preview"
)

// SessionEvent полезная нагрузка событий overlay.*
type SessionEvent struct {
	Viewer string    `json:"viewer"`
	World  string    `json:"world,omitempty"`
	Min    *vec.Vec3 `json:"min,omitempty"`
	Max    *vec.Vec3 `json:"max,omitempty"`
	Block  string    `json:"block,omitempty"`
	Cells  int       `json:"cells,omitempty"`
}
