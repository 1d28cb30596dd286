package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/annel0/overlay-sync/internal/world"
	"github.com/annel0/overlay-sync/internal/world/block"
)

// ErrNoConfig возвращается Load, когда путь не задан ни аргументом, ни через OVERLAY_CONFIG.
var ErrNoConfig = errors.New("config path not set")

// Config корневая структура конфигурации приложения.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	World    WorldConfig    `yaml:"world"`
	Overlay  OverlayConfig  `yaml:"overlay"`
	EventBus EventBusConfig `yaml:"eventbus"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	WSPort      int `yaml:"ws_port"`
	MetricsPort int `yaml:"metrics_port"`
	TickRateHz  int `yaml:"tick_rate_hz"`
	// Порог в байтах, начиная с которого пакет кадра сжимается zstd
	CompressThreshold int `yaml:"compress_threshold"`
}

type WorldConfig struct {
	Range  world.Range `yaml:",inline"`
	Seed   int64       `yaml:"seed"`
	Worlds []string    `yaml:"worlds"`
}

type OverlayConfig struct {
	// Блок слоя надстройки для записей превью без своего блока
	DefaultOverlayBlock string `yaml:"default_overlay_block"`
	// Максимальный объём выделения, для которого строится превью (0 — 4096)
	MaxPreviewVolume int `yaml:"max_preview_volume"`
}

type EventBusConfig struct {
	URL       string `yaml:"url"` // пусто — in-memory шина
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			TickRateHz:        20,
			CompressThreshold: 4096,
		},
		World: WorldConfig{
			Range:  world.DefaultRange,
			Seed:   12345,
			Worlds: []string{"overworld"},
		},
		Overlay: OverlayConfig{
			DefaultOverlayBlock: "light_blue_stained_glass",
			MaxPreviewVolume:    4096,
		},
		EventBus: EventBusConfig{
			Stream:    "OVERLAY",
			Retention: 24,
			Buffer:    1024,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// GetWSPort возвращает порт WebSocket с поддержкой fallback значений
func (s *ServerConfig) GetWSPort() int {
	return getPortWithEnvFallback(s.WSPort, "OVERLAY_WS_PORT", 7780)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "OVERLAY_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// DefaultOverlayBlockID разрешает имя блока надстройки по умолчанию
func (o *OverlayConfig) DefaultOverlayBlockID() (block.BlockID, error) {
	id, ok := block.ByName(o.DefaultOverlayBlock)
	if !ok {
		return block.AirBlockID, fmt.Errorf("unknown default_overlay_block %q", o.DefaultOverlayBlock)
	}
	return id, nil
}

// WorldRefs возвращает миры в виде world.Ref
func (w *WorldConfig) WorldRefs() []world.Ref {
	refs := make([]world.Ref, 0, len(w.Worlds))
	for _, name := range w.Worlds {
		refs = append(refs, world.Ref(name))
	}
	return refs
}

// Validate проверяет согласованность значений
func (c *Config) Validate() error {
	if c.World.Range.Height() <= 0 {
		return fmt.Errorf("world: max_y (%d) must be greater than min_y (%d)", c.World.Range.Max, c.World.Range.Min)
	}
	if len(c.World.Worlds) == 0 {
		return errors.New("world: at least one world is required")
	}
	if c.Server.TickRateHz <= 0 {
		return fmt.Errorf("server: tick_rate_hz must be positive, got %d", c.Server.TickRateHz)
	}
	if c.Overlay.MaxPreviewVolume < 0 {
		return fmt.Errorf("overlay: max_preview_volume must not be negative, got %d", c.Overlay.MaxPreviewVolume)
	}
	if _, err := c.Overlay.DefaultOverlayBlockID(); err != nil {
		return fmt.Errorf("overlay: %w", err)
	}
	return nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV OVERLAY_CONFIG, иначе возвращает ErrNoConfig.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("OVERLAY_CONFIG")
		if path == "" {
			return nil, ErrNoConfig
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data)
}

// Parse разбирает YAML поверх значений по умолчанию и проверяет результат
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
