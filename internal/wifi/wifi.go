// Package wifi keeps the device online: a periodic monitor that, when
// disconnected, scans for the configured networks and joins the highest
// priority one currently visible. It never touches the session
// controller; an in-flight session rides out connectivity loss through
// its own failure paths.
package wifi

import (
	"context"
	log "log/slog"
	"sort"
	"time"
)

type NetKind string

const (
	KindHome     NetKind = "home"
	KindFallback NetKind = "fallback"
)

// Preference is one configured network. Static, read-only at runtime.
type Preference struct {
	SSID     string
	Priority int // higher wins
	Kind     NetKind
}

// Netctl is the OS-level interface the monitor drives. Its decision
// policy lives here; the commands it issues do not.
type Netctl interface {
	Status(ctx context.Context) (connected bool, ssid string, err error)
	Scan(ctx context.Context) ([]string, error)
	Connect(ctx context.Context, ssid string) error
}

type Monitor struct {
	prefs    []Preference // sorted by priority, highest first
	net      Netctl
	interval time.Duration
}

func NewMonitor(prefs []Preference, net Netctl, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	sorted := append([]Preference(nil), prefs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	return &Monitor{prefs: sorted, net: net, interval: interval}
}

func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.tick(ctx)
		}
	}
}

// tick checks connectivity and attempts one failover. Failures retry
// on the next tick; the tick is already coarse, so no backoff.
func (m *Monitor) tick(ctx context.Context) {
	connected, ssid, err := m.net.Status(ctx)
	if err != nil {
		log.Error("wifi: status check failed", "err", err)
		return
	}
	if connected {
		log.Debug("wifi: connected", "ssid", ssid)
		return
	}

	visible, err := m.net.Scan(ctx)
	if err != nil {
		log.Error("wifi: scan failed", "err", err)
		return
	}

	seen := make(map[string]bool, len(visible))
	for _, s := range visible {
		seen[s] = true
	}

	for _, p := range m.prefs {
		if !seen[p.SSID] {
			continue
		}
		log.Info("wifi: attempting connection", "ssid", p.SSID, "kind", p.Kind, "priority", p.Priority)
		if err := m.net.Connect(ctx, p.SSID); err != nil {
			log.Warn("wifi: connect failed, will retry next tick", "ssid", p.SSID, "err", err)
		}
		return
	}

	log.Warn("wifi: no configured network visible", "visible", len(visible))
}
