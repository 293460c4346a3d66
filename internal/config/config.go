package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config структура конфигурации.
type Config struct {
	Logger    LogConf        `toml:"logger"`    // Logger - конфигурация регистратора.
	WebSocket WebSocketConf  `toml:"websocket"` // WebSocket - входящий сервер.
	OSC       OSCConf        `toml:"osc"`       // OSC - адрес получателя.
	Bridge    BridgeConf     `toml:"bridge"`    // Bridge - параметры моста.
	Mappings  map[string]int `toml:"mappings"`  // Mappings - тег -> канал.
	Metrics   MetricsConf    `toml:"metrics"`   // Metrics - prometheus endpoint.
	MQTT      MQTTConf       `toml:"mqtt"`      // MQTT - публикация статуса.
}

// LogConf структура конфигурации.
type LogConf struct {
	Level  string `toml:"log-level"` // Level - уровень логирования.
	Format string `toml:"format"`    // Format - text или json.
}

// WebSocketConf holds the ingress server settings.
type WebSocketConf struct {
	Port         int      `toml:"port"`
	Path         string   `toml:"path"`
	MaxFrameSize int64    `toml:"max-frame-size"`
	MaxQueue     int      `toml:"max-queue"`
	PingInterval Duration `toml:"ping-interval"`
	PingTimeout  Duration `toml:"ping-timeout"`
	CloseTimeout Duration `toml:"close-timeout"`
}

// OSCConf is the UDP destination.
type OSCConf struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// BridgeConf holds fail-safe settings.
type BridgeConf struct {
	TimeoutSeconds int `toml:"timeout-seconds"`
}

// MetricsConf configures the prometheus endpoint. Empty Listen disables it.
type MetricsConf struct {
	Listen string `toml:"listen"`
}

// MQTTConf структура конфигурации.
type MQTTConf struct {
	Enabled     bool     `toml:"enabled"`
	ClientID    string   `toml:"clientID"`     // ClientID - имя клиента.
	Host        string   `toml:"server"`       // Host - адрес MQTT сервера.
	Port        string   `toml:"port"`         // Port - порт MQTT сервера.
	User        string   `toml:"user"`         // User - логин для подключения к MQTT серверу.
	Password    string   `toml:"password"`     // Password - пароль для подключения к MQTT серверу.
	Qos         byte     `toml:"qos"`          // Qos - качество обслуживания.
	TopicPrefix string   `toml:"topic-prefix"` // TopicPrefix - префикс топика статуса.
	Interval    Duration `toml:"interval"`     // Interval - период публикации.
}

// Duration decodes TOML strings like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration written when no file exists.
func Default() Config {
	return Config{
		Logger: LogConf{Level: "info", Format: "text"},
		WebSocket: WebSocketConf{
			Port:         3031,
			Path:         "/haptic",
			MaxFrameSize: 1 << 20,
			MaxQueue:     1000,
			PingInterval: Duration{60 * time.Second},
			PingTimeout:  Duration{30 * time.Second},
			CloseTimeout: Duration{30 * time.Second},
		},
		OSC:      OSCConf{Host: "127.0.0.1", Port: 8000},
		Bridge:   BridgeConf{TimeoutSeconds: 3},
		Mappings: map[string]int{"a": 0, "b": 1, "c": 3},
		MQTT: MQTTConf{
			ClientID:    "ws2osc",
			Port:        "1883",
			TopicPrefix: "ws2osc",
			Interval:    Duration{10 * time.Second},
		},
	}
}

// NewConfig конструктор.
func NewConfig(path string) (*Config, error) {
	// default values
	cfg := Default()
	// Таблица тегов из файла заменяет значения по умолчанию, а не дополняет их.
	cfg.Mappings = nil
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return &cfg, err
	}
	if cfg.Mappings == nil {
		cfg.Mappings = map[string]int{}
	}
	if err := cfg.Validate(); err != nil {
		return &cfg, err
	}
	return &cfg, nil
}

// Validate checks every value the bridge relies on.
func (c *Config) Validate() error {
	var errs []error
	if err := ValidatePort(c.WebSocket.Port); err != nil {
		errs = append(errs, fmt.Errorf("websocket: %w", err))
	}
	if c.WebSocket.Path == "" || c.WebSocket.Path[0] != '/' {
		errs = append(errs, fmt.Errorf("websocket: path %q must start with '/'", c.WebSocket.Path))
	}
	if c.WebSocket.MaxFrameSize <= 0 {
		errs = append(errs, errors.New("websocket: max-frame-size must be positive"))
	}
	if c.WebSocket.MaxQueue <= 0 {
		errs = append(errs, errors.New("websocket: max-queue must be positive"))
	}
	if c.WebSocket.PingInterval.Duration <= 0 || c.WebSocket.PingTimeout.Duration <= 0 {
		errs = append(errs, errors.New("websocket: ping-interval and ping-timeout must be positive"))
	}
	if err := ValidateTarget(c.OSC.Host, c.OSC.Port); err != nil {
		errs = append(errs, fmt.Errorf("osc: %w", err))
	}
	if err := ValidateTimeout(c.Bridge.TimeoutSeconds); err != nil {
		errs = append(errs, fmt.Errorf("bridge: %w", err))
	}
	for tag, ch := range c.Mappings {
		if err := ValidateMapping(tag, ch); err != nil {
			errs = append(errs, fmt.Errorf("mappings: %w", err))
		}
	}
	return errors.Join(errs...)
}
