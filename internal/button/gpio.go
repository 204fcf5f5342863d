package button

import (
	"bytes"
	"context"
	"fmt"
	log "log/slog"
	"os"
	"time"
)

// GPIO polls a sysfs-exported pin and emits debounced edges. The pin is
// wired active-low with a pull-up, like the original necklace hardware:
// value 0 means pressed.
type GPIO struct {
	pin      int
	poll     time.Duration
	debounce time.Duration
	out      chan<- Edge
}

func NewGPIO(pin int, poll, debounce time.Duration, out chan<- Edge) *GPIO {
	if poll <= 0 {
		poll = 10 * time.Millisecond
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &GPIO{pin: pin, poll: poll, debounce: debounce, out: out}
}

func (g *GPIO) valuePath() string {
	return fmt.Sprintf("/sys/class/gpio/gpio%d/value", g.pin)
}

// Export makes the pin readable. Already-exported pins are fine.
func (g *GPIO) Export() error {
	if _, err := os.Stat(g.valuePath()); err == nil {
		return nil
	}
	if err := os.WriteFile("/sys/class/gpio/export", fmt.Appendf(nil, "%d", g.pin), 0o644); err != nil {
		return fmt.Errorf("export gpio%d: %w", g.pin, err)
	}
	return os.WriteFile(fmt.Sprintf("/sys/class/gpio/gpio%d/direction", g.pin), []byte("in"), 0o644)
}

// Run samples the pin until ctx is cancelled. Level changes inside the
// debounce window after the last emitted edge are ignored.
func (g *GPIO) Run(ctx context.Context) {
	t := time.NewTicker(g.poll)
	defer t.Stop()

	var (
		pressed  bool
		lastEdge time.Time
	)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			raw, err := os.ReadFile(g.valuePath())
			if err != nil {
				log.Error("button: read gpio", "pin", g.pin, "err", err)
				return
			}
			down := bytes.HasPrefix(bytes.TrimSpace(raw), []byte("0"))
			if down == pressed {
				continue
			}
			if now.Sub(lastEdge) < g.debounce {
				continue
			}
			pressed = down
			lastEdge = now
			kind := Release
			if down {
				kind = Press
			}
			Emit(g.out, Edge{Kind: kind, At: now})
		}
	}
}
