// Package announce carries spoken requests from the background loops to
// the session controller. Multiple producers append, the controller is
// the sole consumer and only drains while Idle.
package announce

import (
	log "log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Origin int

const (
	OriginAlarm Origin = iota
	OriginMessage
)

func (o Origin) String() string {
	if o == OriginAlarm {
		return "alarm"
	}
	return "message"
}

// priority ordering hint: alarms outrank messages.
func (o Origin) priority() int {
	if o == OriginAlarm {
		return 1
	}
	return 0
}

// Announcement is one pending spoken delivery. Text payloads are
// synthesized by the controller; Audio payloads play as-is.
type Announcement struct {
	ID        string
	Origin    Origin
	Text      string
	Audio     []byte
	CreatedAt time.Time
}

type Queue struct {
	mu     sync.Mutex
	items  []Announcement
	maxAge time.Duration
}

// NewQueue builds a queue that discards entries older than maxAge at
// pop time. maxAge <= 0 disables staleness.
func NewQueue(maxAge time.Duration) *Queue {
	return &Queue{maxAge: maxAge}
}

func (q *Queue) Add(a Announcement) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, a)
	sort.SliceStable(q.items, func(i, j int) bool {
		if q.items[i].Origin.priority() != q.items[j].Origin.priority() {
			return q.items[i].Origin.priority() > q.items[j].Origin.priority()
		}
		return q.items[i].CreatedAt.Before(q.items[j].CreatedAt)
	})

	log.Debug("announce: queued", "id", a.ID, "origin", a.Origin, "pending", len(q.items))
}

// Pop returns the next fresh announcement in priority order. Stale
// entries encountered on the way are discarded with a log line, never
// silently.
func (q *Queue) Pop(now time.Time) (Announcement, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) > 0 {
		a := q.items[0]
		q.items = q.items[1:]
		if q.maxAge > 0 && now.Sub(a.CreatedAt) > q.maxAge {
			log.Warn("announce: discarding stale entry",
				"id", a.ID, "origin", a.Origin, "age", now.Sub(a.CreatedAt))
			continue
		}
		return a, true
	}
	return Announcement{}, false
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
