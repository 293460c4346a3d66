package bridge

import (
	"errors"
	"fmt"

	"ws2osc/internal/config"
	"ws2osc/internal/haptic"
)

var ErrUnknownTag = errors.New("unknown tag")

// Status is a point-in-time snapshot. Building it never waits on the data path.
type Status struct {
	Running        bool                      `json:"running"`
	Clients        int                       `json:"clients"`
	OSCReady       bool                      `json:"osc_ready"`
	Target         config.Target             `json:"osc_target"`
	Mappings       map[string]haptic.Channel `json:"mappings"`
	TimeoutSeconds int                       `json:"timeout_seconds"`
}

func (b *Bridge) Status() Status {
	return Status{
		Running:        b.running.Load(),
		Clients:        b.server.ClientCount(),
		OSCReady:       b.sender.IsReady(),
		Target:         b.store.Target(),
		Mappings:       b.store.Mappings(),
		TimeoutSeconds: b.store.Timeout(),
	}
}

// UpdateTarget reopens the OSC handle for host:port and records the new target.
// If the new handle cannot be created the previous target is restored. After
// Stop only the target is recorded; Start opens the handle for it.
func (b *Bridge) UpdateTarget(host string, port int) error {
	target := config.Target{Host: host, Port: port}
	if err := config.ValidateTarget(host, port); err != nil {
		return err
	}

	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	if b.handleReleased() {
		if err := b.store.SetTarget(target); err != nil {
			return err
		}
		b.log().Infof("OSC target recorded as %s, applied on start", target)
		return nil
	}

	previous := b.store.Target()
	if err := b.applyTarget(target, previous); err != nil {
		return fmt.Errorf("update OSC target: %w", err)
	}
	if err := b.store.SetTarget(target); err != nil {
		return err
	}
	b.log().Infof("OSC target updated to %s", target)
	return nil
}

// handleReleased reports whether Stop closed the OSC handle. Callers hold lifecycleMu.
func (b *Bridge) handleReleased() bool {
	return !b.running.Load() && !b.sender.IsReady()
}

// applyTarget points the sender at target, falling back to previous on failure.
func (b *Bridge) applyTarget(target, previous config.Target) error {
	err := b.sender.UpdateTarget(target)
	if err == nil {
		return nil
	}
	if rerr := b.sender.UpdateTarget(previous); rerr != nil {
		b.log().Errorf("restoring OSC target %s: %v", previous, rerr)
	}
	return err
}

// UpdateTargetAddr accepts "host:port".
func (b *Bridge) UpdateTargetAddr(addr string) error {
	t, err := config.ParseTarget(addr)
	if err != nil {
		return err
	}
	return b.UpdateTarget(t.Host, t.Port)
}

func (b *Bridge) AddMapping(tag string, ch haptic.Channel) error {
	if err := b.store.AddMapping(tag, ch); err != nil {
		return fmt.Errorf("add mapping: %w", err)
	}
	b.log().Infof("mapping added: %s -> channel %02d", tag, int(ch))
	return nil
}

func (b *Bridge) RemoveMapping(tag string) error {
	if !b.store.RemoveMapping(tag) {
		return fmt.Errorf("remove mapping: %w: %q", ErrUnknownTag, tag)
	}
	b.log().Infof("mapping removed: %s", tag)
	return nil
}

// SetTimeout changes the fail-safe timeout. A pending deadline keeps its expiry.
func (b *Bridge) SetTimeout(secs int) error {
	if err := b.store.SetTimeout(secs); err != nil {
		return fmt.Errorf("set timeout: %w", err)
	}
	if err := b.dog.SetTimeout(seconds(secs)); err != nil {
		return fmt.Errorf("set timeout: %w", err)
	}
	b.log().Infof("fail-safe timeout set to %ds", secs)
	return nil
}

func (b *Bridge) SaveConfig() error {
	if err := b.store.Save(); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	b.log().Info("configuration saved")
	return nil
}

// ReloadConfig re-reads the store and applies the target and timeout it holds.
// A target the sender cannot open is not applied: the previous one stays in
// effect and the rest of the reload is kept.
func (b *Bridge) ReloadConfig() error {
	b.lifecycleMu.Lock()
	defer b.lifecycleMu.Unlock()

	before := b.store.Target()
	if err := b.store.Reload(); err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	if err := b.dog.SetTimeout(seconds(b.store.Timeout())); err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	after := b.store.Target()
	if b.handleReleased() || (after == before && b.sender.IsReady()) {
		b.log().Info("configuration reloaded")
		return nil
	}
	if err := b.applyTarget(after, before); err != nil {
		if serr := b.store.SetTarget(before); serr != nil {
			b.log().Errorf("restoring OSC target %s: %v", before, serr)
		}
		return fmt.Errorf("reload config: OSC target %s not applied, keeping %s: %w", after, before, err)
	}
	b.log().Info("configuration reloaded")
	return nil
}
