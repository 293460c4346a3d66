// Package bridge forwards tagged intensities from WebSocket clients to OSC
// channels and drives active channels back to zero after input silence.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ws2osc/internal/config"
	"ws2osc/internal/haptic"
	"ws2osc/internal/ingress"
	"ws2osc/internal/logger"
	"ws2osc/internal/metrics"
	"ws2osc/internal/osc"
	"ws2osc/internal/parser"
	"ws2osc/internal/watchdog"
)

var ErrAlreadyRunning = errors.New("bridge is already running")

// Resolver maps a tag to its channel. Lookups must be side-effect free.
type Resolver interface {
	Channel(tag string) (haptic.Channel, bool)
}

// Store is the configuration collaborator: the resolver plus the administrative
// state the bridge reads and mutates.
type Store interface {
	Resolver
	Mappings() map[string]haptic.Channel
	AddMapping(tag string, ch haptic.Channel) error
	RemoveMapping(tag string) bool
	Target() config.Target
	SetTarget(t config.Target) error
	Timeout() int
	SetTimeout(seconds int) error
	Save() error
	Reload() error
}

// Bridge is the orchestrator. It owns the last-values table, the watchdog,
// the OSC sender and the ingress server.
type Bridge struct {
	store   Store
	logger  logger.Logger
	metrics *metrics.Metrics
	sender  *osc.Sender
	server  *ingress.Server
	dog     *watchdog.Watchdog

	lifecycleMu sync.Mutex
	running     atomic.Bool

	// mu serializes the data path: reading and updating lastValues, arming the
	// watchdog and sending.
	mu         sync.Mutex
	active     bool
	lastValues map[haptic.Channel]float64
}

// New builds a stopped bridge. The OSC handle is opened right away so the
// sender is ready before the first Start.
func New(store Store, wsCfg ingress.Config, log logger.Logger, m *metrics.Metrics) (*Bridge, error) {
	b := &Bridge{
		store:      store,
		logger:     log,
		metrics:    m,
		sender:     osc.NewSender(log, m),
		lastValues: make(map[haptic.Channel]float64),
	}

	dog, err := watchdog.New(seconds(store.Timeout()), b.expire)
	if err != nil {
		return nil, fmt.Errorf("create watchdog: %w", err)
	}
	b.dog = dog

	server, err := ingress.NewServer(wsCfg, b.HandleCommands, log, m)
	if err != nil {
		return nil, fmt.Errorf("create websocket server: %w", err)
	}
	b.server = server

	if err := b.sender.UpdateTarget(store.Target()); err != nil {
		b.log().Warnf("OSC sender not ready: %v", err)
	}
	return b, nil
}

// Start opens the ingress server. The watchdog stays idle until the first
// frame with a nonzero value.
func (b *Bridge) Start() error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.running.Load() {
		return ErrAlreadyRunning
	}

	b.log().Info("starting WebSocket to OSC bridge")
	if !b.sender.IsReady() {
		if err := b.sender.UpdateTarget(b.store.Target()); err != nil {
			b.log().Warnf("OSC sender not ready: %v", err)
		}
	}

	b.mu.Lock()
	b.active = true
	b.mu.Unlock()

	if err := b.server.Start(); err != nil {
		b.mu.Lock()
		b.active = false
		b.mu.Unlock()
		return fmt.Errorf("start bridge: %w", err)
	}

	b.running.Store(true)
	return nil
}

// Stop cancels the watchdog, closes the ingress server and its connections,
// zeroes every channel still holding a nonzero value and releases the OSC handle.
func (b *Bridge) Stop(ctx context.Context) error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if !b.running.Load() {
		return nil
	}
	b.log().Info("stopping WebSocket to OSC bridge")

	b.mu.Lock()
	b.active = false
	b.dog.Cancel()
	b.mu.Unlock()

	err := b.server.Stop(ctx)
	if err != nil {
		b.log().Errorf("websocket server shutdown: %v", err)
	}
	b.dog.Wait()

	b.mu.Lock()
	var zeros haptic.ChannelValues
	for ch, v := range b.lastValues {
		if v != 0 {
			zeros.Set(ch, 0)
		}
	}
	b.lastValues = make(map[haptic.Channel]float64)
	if len(zeros) > 0 {
		b.log().Infof("sending final zero to %d channel(s)", len(zeros))
		if !b.sender.SendMany(zeros) {
			b.log().Error("final zero send failed for some channels")
		}
	}
	b.mu.Unlock()

	b.sender.Close()
	b.running.Store(false)
	return err
}

// HandleIncoming parses one raw frame and forwards it.
func (b *Bridge) HandleIncoming(frame string) error {
	cmds, diags := parser.Parse(frame)
	for _, d := range diags {
		b.metrics.Dropped(parser.Reason(d))
		b.log().Warnf("dropped command: %v", d)
	}
	if len(cmds) == 0 {
		return nil
	}
	return b.HandleCommands(cmds)
}

// HandleCommands resolves tags, records the values, rearms the watchdog when any
// value is nonzero and sends the resolved set. Unknown tags are logged and skipped.
func (b *Bridge) HandleCommands(cmds parser.Commands) error {
	var values haptic.ChannelValues
	for _, cmd := range cmds {
		ch, ok := b.store.Channel(cmd.Tag)
		if !ok {
			b.metrics.UnknownTag()
			b.log().Warnf("unknown tag %q", cmd.Tag)
			continue
		}
		values.Set(ch, cmd.Value)
		b.log().Debugf("mapping %s -> channel %02d = %v", cmd.Tag, int(ch), cmd.Value)
	}
	if len(values) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		b.log().Debug("bridge stopped, frame dropped")
		return nil
	}

	for _, v := range values {
		b.lastValues[v.Channel] = v.Value
	}
	if values.AnyNonZero() {
		b.dog.Arm()
	}

	if !b.sender.SendMany(values) {
		return fmt.Errorf("OSC send failed for %v", values)
	}
	return nil
}

// expire runs on the watchdog goroutine.
func (b *Bridge) expire(d watchdog.Deadline) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dog.Claim(d) {
		return
	}

	zeros := make(haptic.ChannelValues, 0, len(b.lastValues))
	for ch := range b.lastValues {
		zeros.Set(ch, 0)
	}
	b.lastValues = make(map[haptic.Channel]float64)

	b.metrics.Failsafe()
	b.log().Infof("input timeout, zeroing %d channel(s)", len(zeros))
	if !b.sender.SendMany(zeros) {
		b.log().Error("fail-safe zero send failed for some channels")
	}
}

func (b *Bridge) log() *logger.Log {
	return b.logger.With(logger.Fields{"module": "bridge"})
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
