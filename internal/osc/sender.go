// Package osc sends channel intensities as OSC messages over UDP.
package osc

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/hypebeast/go-osc/osc"

	"ws2osc/internal/config"
	"ws2osc/internal/haptic"
	"ws2osc/internal/logger"
	"ws2osc/internal/metrics"
)

// Sender owns the single UDP egress handle of a bridge.
type Sender struct {
	logger  logger.Logger
	metrics *metrics.Metrics

	// mu is held for reading by every send and for writing while the handle is replaced.
	mu     sync.RWMutex
	handle atomic.Pointer[handle]
}

type handle struct {
	conn   *net.UDPConn
	addr   *net.UDPAddr
	target config.Target
}

// NewSender returns a Sender without a handle; call UpdateTarget to open one.
func NewSender(log logger.Logger, m *metrics.Metrics) *Sender {
	return &Sender{logger: log, metrics: m}
}

// UpdateTarget closes the current handle and opens a new one for target.
// UDP has no handshake, so success only means the socket was created.
func (s *Sender) UpdateTarget(target config.Target) error {
	if err := config.ValidateTarget(target.Host, target.Port); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeLocked()

	addr, err := net.ResolveUDPAddr("udp", target.String())
	if err != nil {
		s.log().Errorf("failed to resolve OSC target %s: %v", target, err)
		return fmt.Errorf("resolve OSC target %s: %w", target, err)
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		s.log().Errorf("failed to open OSC socket: %v", err)
		return fmt.Errorf("open OSC socket: %w", err)
	}

	s.handle.Store(&handle{conn: conn, addr: addr, target: target})
	s.log().Infof("OSC target set to %s", target)
	return nil
}

// Close releases the handle. Sends fail until UpdateTarget succeeds again.
func (s *Sender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Sender) closeLocked() {
	h := s.handle.Swap(nil)
	if h == nil {
		return
	}
	if err := h.conn.Close(); err != nil {
		s.log().Warnf("closing OSC socket: %v", err)
	}
	s.log().Debugf("OSC handle for %s closed", h.target)
}

// IsReady reports whether a send handle exists. It never waits for in-flight sends.
func (s *Sender) IsReady() bool {
	return s.handle.Load() != nil
}

// Target returns the destination of the current handle.
func (s *Sender) Target() (config.Target, bool) {
	h := s.handle.Load()
	if h == nil {
		return config.Target{}, false
	}
	return h.target, true
}

// Send transmits one value. Invalid channels and socket errors are logged and
// reported as false; out-of-range values are clamped.
func (s *Sender) Send(ch haptic.Channel, value float64) bool {
	ok := s.send(ch, value)
	s.metrics.Send(ok)
	return ok
}

func (s *Sender) send(ch haptic.Channel, value float64) bool {
	if err := ch.Validate(); err != nil {
		s.log().Errorf("invalid channel: %v", err)
		return false
	}

	if v, inRange := haptic.Clamp(value); !inRange {
		s.log().Warnf("value %v for channel %02d clamped to %v", value, int(ch), v)
		value = v
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.handle.Load()
	if h == nil {
		s.log().Warn("OSC sender has no open handle")
		return false
	}

	msg := osc.NewMessage(ch.Address(), float32(value))
	data, err := msg.MarshalBinary()
	if err != nil {
		s.log().Errorf("failed to encode OSC message %s: %v", msg.Address, err)
		return false
	}

	if _, err := h.conn.WriteToUDP(data, h.addr); err != nil {
		s.log().Errorf("OSC send to %s failed: %v", h.target, err)
		return false
	}

	s.log().Debugf("OSC send: %s = %v", msg.Address, value)
	return true
}

// SendMany sends every value and reports whether all of them succeeded.
// A failing channel does not stop the others.
func (s *Sender) SendMany(values haptic.ChannelValues) bool {
	success := true
	for _, v := range values {
		if !s.Send(v.Channel, v.Value) {
			success = false
		}
	}
	return success
}

func (s *Sender) log() *logger.Log {
	return s.logger.With(logger.Fields{"module": "osc"})
}
