// Package session owns the push-to-talk state machine. One goroutine
// runs the whole pipeline: capture, transcribe, route, respond. Button
// edges arrive on a channel; everything the controller calls out to is
// an injected interface.
package session

import (
	"context"
	log "log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hotaka0908/raspi-voice/internal/announce"
	"github.com/hotaka0908/raspi-voice/internal/audio"
	"github.com/hotaka0908/raspi-voice/internal/button"
	"github.com/hotaka0908/raspi-voice/internal/fault"
	"github.com/hotaka0908/raspi-voice/internal/intent"
)

type State int

const (
	Idle State = iota
	Capturing
	Transcribing
	Routing
	Responding
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Capturing:
		return "capturing"
	case Transcribing:
		return "transcribing"
	case Routing:
		return "routing"
	case Responding:
		return "responding"
	}
	return "unknown"
}

// Session is one press-to-reply exchange, kept for logging.
type Session struct {
	ID         string
	StartedAt  time.Time
	Transcript string
	Intent     intent.Category
	ReplyText  string
}

// Gateway is the slice of the audio gateway the controller drives.
type Gateway interface {
	StartCapture(maxHold time.Duration) (audio.Capture, error)
	Play(wav []byte) (audio.Playback, error)
}

// Speech converts between audio and text.
type Speech interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Dispatcher classifies a transcript and runs the matching handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, transcript string) (intent.Result, intent.Reply, error)
}

// Cues plays the short non-speech earcons.
type Cues interface {
	Listening()
	Failure()
}

type Config struct {
	MinHold         time.Duration // shorter recordings are accidental taps
	MaxHold         time.Duration // stuck-button guard
	ProviderTimeout time.Duration
	IdleTick        time.Duration // announcement drain interval
}

type Controller struct {
	gw       Gateway
	speech   Speech
	dispatch Dispatcher
	cues     Cues
	queue    *announce.Queue
	cfg      Config
	now      func() time.Time

	mu    sync.Mutex
	state State
}

func NewController(gw Gateway, sp Speech, d Dispatcher, cues Cues, q *announce.Queue, cfg Config) *Controller {
	if cfg.MinHold <= 0 {
		cfg.MinHold = 300 * time.Millisecond
	}
	if cfg.MaxHold <= 0 {
		cfg.MaxHold = 30 * time.Second
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 60 * time.Second
	}
	if cfg.IdleTick <= 0 {
		cfg.IdleTick = 500 * time.Millisecond
	}
	return &Controller{
		gw:       gw,
		speech:   sp,
		dispatch: d,
		cues:     cues,
		queue:    q,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	log.Debug("session: state", "state", s)
}

// Run consumes button edges until ctx is cancelled. Announcements are
// drained only between sessions, while the controller sits Idle.
func (c *Controller) Run(ctx context.Context, edges <-chan button.Edge) {
	ticker := time.NewTicker(c.cfg.IdleTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-edges:
			if e.Kind != button.Press {
				log.Debug("session: ignoring idle release")
				continue
			}
			c.runSession(ctx, edges)
		case <-ticker.C:
			c.drainAnnouncements(ctx, edges)
		}
	}
}

// runSession executes one full exchange, then chains into the next one
// while barge-in presses keep arriving.
func (c *Controller) runSession(ctx context.Context, edges <-chan button.Edge) {
	for {
		barge := c.session(ctx, edges)
		c.setState(Idle)
		if barge == nil || ctx.Err() != nil {
			return
		}
		log.Info("session: barge-in, starting next session")
	}
}

// session runs the pipeline for one press. It returns a non-nil edge
// when playback was interrupted by a new press.
func (c *Controller) session(ctx context.Context, edges <-chan button.Edge) *button.Edge {
	s := Session{ID: uuid.NewString(), StartedAt: c.now()}
	log.Info("session: started", "id", s.ID)

	wav, dur, ok := c.record(ctx, edges)
	if !ok {
		return nil
	}
	if dur < c.cfg.MinHold || len(wav) == 0 {
		log.Debug("session: recording too short, discarded", "id", s.ID, "held", dur)
		return nil
	}

	c.setState(Transcribing)
	transcript, err := c.transcribe(ctx, wav)
	if err != nil {
		return c.fail(ctx, edges, err)
	}
	if transcript == "" {
		log.Debug("session: empty transcript, discarded", "id", s.ID)
		return nil
	}
	s.Transcript = transcript
	log.Info("session: transcript", "id", s.ID, "text", transcript)

	c.setState(Routing)
	dctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
	res, reply, err := c.dispatch.Dispatch(dctx, transcript)
	cancel()
	s.Intent = res.Category
	if err != nil {
		log.Error("session: handler failed",
			"id", s.ID, "category", res.Category, "kind", fault.KindOf(err), "err", err)
		return c.fail(ctx, edges, err)
	}
	s.ReplyText = reply.Text

	replyAudio := reply.Audio
	if replyAudio == nil {
		replyAudio, err = c.synthesize(ctx, reply.Text)
		if err != nil {
			return c.fail(ctx, edges, err)
		}
	}

	log.Info("session: responding", "id", s.ID, "category", s.Intent)
	return c.respond(ctx, edges, replyAudio)
}

// record captures audio between press and release.
func (c *Controller) record(ctx context.Context, edges <-chan button.Edge) ([]byte, time.Duration, bool) {
	c.setState(Capturing)
	c.cues.Listening()

	rec, err := c.gw.StartCapture(c.cfg.MaxHold)
	if err != nil {
		log.Error("session: capture failed to start", "err", err)
		c.cues.Failure()
		return nil, 0, false
	}

	guard := time.NewTimer(c.cfg.MaxHold + time.Second)
	defer guard.Stop()
	for {
		select {
		case <-ctx.Done():
			rec.Stop()
			return nil, 0, false
		case <-guard.C:
			log.Warn("session: button held past max, forcing stop")
		case e := <-edges:
			if e.Kind == button.Press {
				log.Debug("session: press while already capturing, ignored")
				continue
			}
		}

		wav, dur, err := rec.Stop()
		if err != nil {
			log.Error("session: capture failed", "err", err)
			c.cues.Failure()
			return nil, 0, false
		}
		return wav, dur, true
	}
}

// transcribe calls the provider, retrying once on a transient failure.
// Each attempt gets its own timeout, so a first attempt that died by
// deadline does not poison the retry.
func (c *Controller) transcribe(ctx context.Context, wav []byte) (string, error) {
	attempt := func() (string, error) {
		tctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
		defer cancel()
		return c.speech.Transcribe(tctx, wav)
	}

	text, err := attempt()
	if err != nil && fault.Is(err, fault.Transient) && ctx.Err() == nil {
		log.Warn("session: transcription failed, retrying once", "err", err)
		text, err = attempt()
	}
	return text, err
}

func (c *Controller) synthesize(ctx context.Context, text string) ([]byte, error) {
	attempt := func() ([]byte, error) {
		sctx, cancel := context.WithTimeout(ctx, c.cfg.ProviderTimeout)
		defer cancel()
		return c.speech.Synthesize(sctx, text)
	}

	wav, err := attempt()
	if err != nil && fault.Is(err, fault.Transient) && ctx.Err() == nil {
		log.Warn("session: synthesis failed, retrying once", "err", err)
		wav, err = attempt()
	}
	return wav, err
}

// respond plays the reply. A press during playback stops it and is
// reported to the caller; releases are stale and dropped.
func (c *Controller) respond(ctx context.Context, edges <-chan button.Edge, wav []byte) *button.Edge {
	c.drainStale(edges)
	c.setState(Responding)

	p, err := c.gw.Play(wav)
	if err != nil {
		log.Error("session: playback failed", "err", err)
		c.cues.Failure()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			p.Stop()
			return nil
		case <-p.Done():
			return nil
		case e := <-edges:
			if e.Kind != button.Press {
				log.Debug("session: stale release during playback, dropped")
				continue
			}
			p.Stop()
			return &e
		}
	}
}

// fail surfaces a pipeline failure: the attached apology when one
// exists, the failure buzz otherwise. InvalidInput stays silent. An
// apology is regular playback, so it can be barged into as well.
func (c *Controller) fail(ctx context.Context, edges <-chan button.Edge, err error) *button.Edge {
	if fault.Is(err, fault.InvalidInput) {
		log.Debug("session: input rejected, discarded", "err", err)
		return nil
	}
	log.Error("session: failed", "kind", fault.KindOf(err), "err", err)

	say := fault.SayOf(err)
	if say == "" {
		c.cues.Failure()
		return nil
	}
	wav, serr := c.synthesize(ctx, say)
	if serr != nil {
		log.Error("session: could not speak apology", "err", serr)
		c.cues.Failure()
		return nil
	}
	return c.respond(ctx, edges, wav)
}

// drainStale throws away edges queued while the pipeline was busy, so
// an old tap never barges into the response that follows it.
func (c *Controller) drainStale(edges <-chan button.Edge) {
	for {
		select {
		case e := <-edges:
			log.Debug("session: stale edge dropped", "kind", e.Kind)
		default:
			return
		}
	}
}

// drainAnnouncements speaks queued alarms and messages while Idle.
// A barge-in press during one starts a regular session.
func (c *Controller) drainAnnouncements(ctx context.Context, edges <-chan button.Edge) {
	for ctx.Err() == nil {
		a, ok := c.queue.Pop(c.now())
		if !ok {
			c.setState(Idle)
			return
		}
		log.Info("session: announcing", "id", a.ID, "origin", a.Origin)

		wav := a.Audio
		if wav == nil {
			var err error
			wav, err = c.synthesize(ctx, a.Text)
			if err != nil {
				log.Error("session: announcement synthesis failed", "id", a.ID, "err", err)
				continue
			}
		}

		if barge := c.respond(ctx, edges, wav); barge != nil {
			c.runSession(ctx, edges)
			// new announcements may have queued during the session
		}
		c.setState(Idle)
	}
}
