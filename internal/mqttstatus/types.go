package mqttstatus

import (
	"time"

	"ws2osc/internal/bridge"
	"ws2osc/internal/config"
)

type MQTTConf struct {
	ClientID    string        // ClientID - уникальное имя клиента для брокеров.
	Schema      string        // Schema - тип подключения.
	Host        string        // Host - адрес MQTT сервера.
	Port        string        // Port - порт MQTT сервера.
	User        string        // User - логин для подключения к MQTT серверу.
	Password    string        // Password - пароль для подключения к MQTT серверу.
	Qos         byte          // Qos - качество обслуживания.
	TopicPrefix string        // TopicPrefix - префикс топика статуса.
	Interval    time.Duration // Interval - период публикации.
}

// ConvertConfig преобразует структуры.
func ConvertConfig(cfg config.MQTTConf) MQTTConf {
	return MQTTConf{
		ClientID:    cfg.ClientID,
		Schema:      "tcp",
		Host:        cfg.Host,
		Port:        cfg.Port,
		User:        cfg.User,
		Password:    cfg.Password,
		Qos:         cfg.Qos,
		TopicPrefix: cfg.TopicPrefix,
		Interval:    cfg.Interval.Duration,
	}
}

// StatusSource is implemented by *bridge.Bridge.
type StatusSource interface {
	Status() bridge.Status
}

// Payload is the retained status document.
type Payload struct {
	bridge.Status
	Timestamp time.Time `json:"timestamp"`
}
