// Package mqttstatus publishes bridge status snapshots to an MQTT broker.
package mqttstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdlog "log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"ws2osc/internal/bridge"
	"ws2osc/internal/logger"
)

// Publisher структура клиента MQTT.
type Publisher struct {
	log       logger.Logger
	cfgClient MQTTConf
	source    StatusSource
	client    mqtt.Client
	opts      *mqtt.ClientOptions
	newClient func(*mqtt.ClientOptions) mqtt.Client
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPublisher конструктор.
func NewPublisher(log logger.Logger, cfgClient MQTTConf, source StatusSource) *Publisher {
	if cfgClient.Interval <= 0 {
		cfgClient.Interval = 10 * time.Second
	}
	return &Publisher{
		log:       log,
		cfgClient: cfgClient,
		source:    source,
		newClient: mqtt.NewClient,
		now:       time.Now,
	}
}

// Topic returns the retained status topic.
func (p *Publisher) Topic() string {
	return strings.TrimSuffix(p.cfgClient.TopicPrefix, "/") + "/status"
}

// Start connects to the broker and publishes the status every Interval until Stop.
func (p *Publisher) Start(ctx context.Context) error {
	if p.log.GetLevel() == "debug" {
		mqtt.ERROR = stdlog.New(p.entry().WriterLevel(logrus.ErrorLevel), "", 0)
		mqtt.CRITICAL = stdlog.New(p.entry().WriterLevel(logrus.ErrorLevel), "", 0)
		mqtt.WARN = stdlog.New(p.entry().WriterLevel(logrus.WarnLevel), "", 0)
	}

	offline, err := p.encode(bridge.Status{})
	if err != nil {
		return err
	}

	p.opts = mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%s", p.cfgClient.Schema, p.cfgClient.Host, p.cfgClient.Port)).
		SetUsername(p.cfgClient.User).
		SetPassword(p.cfgClient.Password).
		SetOnConnectHandler(p.connectHandler).
		SetConnectionLostHandler(p.connectLostHandler).
		SetClientID(p.cfgClient.ClientID).
		SetOrderMatters(false).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetWill(p.Topic(), string(offline), p.cfgClient.Qos, true)

	p.client = p.newClient(p.opts)

	token := p.client.Connect()
	select {
	case <-token.Done():
		if token.Error() != nil {
			return token.Error()
		}
	case <-ctx.Done():
		return errors.New("context canceled")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.loop(loopCtx)

	p.entry().Infof("publishing status to %s every %s", p.Topic(), p.cfgClient.Interval)
	return nil
}

// Stop publishes a final "not running" snapshot and disconnects.
func (p *Publisher) Stop() error {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
	}
	if p.client == nil || !p.client.IsConnected() {
		return nil
	}

	st := p.source.Status()
	st.Running = false
	st.Clients = 0
	token := p.publish(st)
	if token != nil && !token.WaitTimeout(time.Second) {
		p.entry().Warn("final status publish timed out")
	}
	p.client.Disconnect(500)
	return nil
}

func (p *Publisher) loop(ctx context.Context) {
	defer p.wg.Done()

	t := time.NewTicker(p.cfgClient.Interval)
	defer t.Stop()

	p.publish(p.source.Status())
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.publish(p.source.Status())
		}
	}
}

func (p *Publisher) publish(st bridge.Status) mqtt.Token {
	msg, err := p.encode(st)
	if err != nil {
		p.entry().Errorf("status encode: %v", err)
		return nil
	}

	topic := p.Topic()
	token := p.client.Publish(topic, p.cfgClient.Qos, true, msg)
	go func() {
		<-token.Done()
		if token.Error() != nil {
			p.entry().Errorf("error publish topic %s. %v", topic, token.Error())
			return
		}
		p.entry().Debugf("status published to %s", topic)
	}()
	return token
}

func (p *Publisher) encode(st bridge.Status) ([]byte, error) {
	return json.Marshal(Payload{Status: st, Timestamp: p.now().UTC()})
}

func (p *Publisher) connectHandler(_ mqtt.Client) {
	p.entry().Info("client connected to server")
}

func (p *Publisher) connectLostHandler(_ mqtt.Client, err error) {
	p.entry().Errorf("server connect lost: %v", err)
}

func (p *Publisher) entry() *logger.Log {
	return p.log.With(logger.Fields{"module": "mqtt"})
}
