// Package alarm runs the background loop that turns due alarms into
// spoken announcements. It never touches the audio device; the session
// controller delivers from the queue when Idle.
package alarm

import (
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/hotaka0908/raspi-voice/internal/announce"
	"github.com/hotaka0908/raspi-voice/internal/store"
)

type Scheduler struct {
	store    *store.Store
	queue    *announce.Queue
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(st *store.Store, q *announce.Queue, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Scheduler{store: st, queue: q, interval: interval, now: time.Now}
}

// Run ticks until ctx is cancelled, finishing the current tick first.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	// startup pass: any alarm that came due while the process was down
	// fires once, immediately.
	s.tick()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	due, err := s.store.FireDue(s.now())
	if err != nil {
		// store unavailable: skip this tick, never crash the loop
		log.Error("alarm: fire check failed", "err", err)
		return
	}
	for _, a := range due {
		log.Info("alarm: fired", "id", a.ID, "label", a.Label, "fire_at", a.FireAt)
		s.queue.Add(announce.Announcement{
			Origin:    announce.OriginAlarm,
			Text:      spokenText(a),
			CreatedAt: s.now(),
		})
	}
}

func spokenText(a store.Alarm) string {
	if a.Label != "" {
		return fmt.Sprintf("アラームの時間です。%s。", a.Label)
	}
	return "アラームの時間です。"
}
