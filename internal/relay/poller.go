package relay

import (
	"context"
	log "log/slog"
	"time"

	"github.com/hotaka0908/raspi-voice/internal/announce"
	"github.com/hotaka0908/raspi-voice/pkg/audioconv"
)

// Puller is the slice of the relay client the poller needs.
type Puller interface {
	Pull(ctx context.Context) ([]Inbound, error)
}

// ProcessedSet is the durable dedupe set (implemented by the store).
type ProcessedSet interface {
	SeenMessage(id string) (bool, error)
	MarkProcessed(id string, seenAt time.Time) error
}

// Transcriber converts message audio to text, for context and logs
// only; playback uses the original audio.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// Poller is the background loop that drains the remote mailbox into
// the announcement queue, exactly once per message id.
type Poller struct {
	client   Puller
	seen     ProcessedSet
	speech   Transcriber
	queue    *announce.Queue
	unread   *Unread
	interval time.Duration
	now      func() time.Time
}

func NewPoller(client Puller, seen ProcessedSet, speech Transcriber, q *announce.Queue, unread *Unread, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	return &Poller{
		client:   client,
		seen:     seen,
		speech:   speech,
		queue:    q,
		unread:   unread,
		interval: interval,
		now:      time.Now,
	}
}

func (p *Poller) Run(ctx context.Context) {
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	msgs, err := p.client.Pull(ctx)
	if err != nil {
		log.Error("relay: pull failed", "err", err)
		return
	}

	for _, m := range msgs {
		seen, err := p.seen.SeenMessage(m.ID)
		if err != nil {
			// store unavailable: skip the rest of this tick
			log.Error("relay: processed-set lookup failed", "err", err)
			return
		}
		if seen {
			continue
		}
		p.deliver(ctx, m)
	}
}

func (p *Poller) deliver(ctx context.Context, m Inbound) {
	wav, err := audioconv.ToWAV(m.Audio)
	if err != nil {
		// undecodable payloads are dropped loudly and marked so they
		// don't wedge the mailbox
		log.Error("relay: undecodable message audio", "id", m.ID, "from", m.From, "err", err)
		if err := p.seen.MarkProcessed(m.ID, p.now()); err != nil {
			log.Error("relay: mark processed failed", "id", m.ID, "err", err)
		}
		return
	}

	transcript := ""
	if p.speech != nil {
		if text, err := p.speech.Transcribe(ctx, wav); err != nil {
			log.Warn("relay: transcription for context failed", "id", m.ID, "err", err)
		} else {
			transcript = text
		}
	}

	log.Info("relay: new voice message", "id", m.ID, "from", m.From, "text", transcript)

	p.queue.Add(announce.Announcement{
		Origin:    announce.OriginMessage,
		Text:      transcript,
		Audio:     wav,
		CreatedAt: p.now(),
	})

	// marked only after the enqueue: a crash in between re-delivers
	// instead of dropping
	if err := p.seen.MarkProcessed(m.ID, p.now()); err != nil {
		log.Error("relay: mark processed failed", "id", m.ID, "err", err)
		return
	}
	p.unread.Add(1)
}
