package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hotaka0908/raspi-voice/internal/announce"
	"github.com/hotaka0908/raspi-voice/internal/audio"
	"github.com/hotaka0908/raspi-voice/internal/button"
	"github.com/hotaka0908/raspi-voice/internal/fault"
	"github.com/hotaka0908/raspi-voice/internal/intent"
)

type fakeCapture struct {
	wav []byte
	dur time.Duration
	err error
}

func (c *fakeCapture) Stop() ([]byte, time.Duration, error) { return c.wav, c.dur, c.err }

type fakePlayback struct {
	once    sync.Once
	done    chan struct{}
	stopped bool
}

func newFakePlayback(finished bool) *fakePlayback {
	p := &fakePlayback{done: make(chan struct{})}
	if finished {
		close(p.done)
	}
	return p
}

func (p *fakePlayback) Stop() {
	p.stopped = true
	p.once.Do(func() {
		select {
		case <-p.done:
		default:
			close(p.done)
		}
	})
}

func (p *fakePlayback) Done() <-chan struct{} { return p.done }

type fakeGateway struct {
	capture  *fakeCapture
	playback *fakePlayback
	playCh   chan struct{} // signaled on each Play

	mu     sync.Mutex
	played [][]byte
}

func (g *fakeGateway) StartCapture(time.Duration) (audio.Capture, error) {
	return g.capture, nil
}

func (g *fakeGateway) Play(wav []byte) (audio.Playback, error) {
	g.mu.Lock()
	g.played = append(g.played, wav)
	g.mu.Unlock()
	if g.playCh != nil {
		g.playCh <- struct{}{}
	}
	p := g.playback
	if p == nil {
		p = newFakePlayback(true)
	}
	return p, nil
}

func (g *fakeGateway) playCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.played)
}

type fakeSpeech struct {
	transcript    string
	transcribeErr []error // consumed per call, nil entry = success
	transcribes   int
	synthesized   []string
	synthErr      error
}

func (s *fakeSpeech) Transcribe(context.Context, []byte) (string, error) {
	s.transcribes++
	if len(s.transcribeErr) > 0 {
		err := s.transcribeErr[0]
		s.transcribeErr = s.transcribeErr[1:]
		if err != nil {
			return "", err
		}
	}
	return s.transcript, nil
}

func (s *fakeSpeech) Synthesize(_ context.Context, text string) ([]byte, error) {
	if s.synthErr != nil {
		return nil, s.synthErr
	}
	s.synthesized = append(s.synthesized, text)
	return []byte("wav:" + text), nil
}

type fakeDispatcher struct {
	got   string
	reply intent.Reply
	err   error
	calls int
}

func (d *fakeDispatcher) Dispatch(_ context.Context, transcript string) (intent.Result, intent.Reply, error) {
	d.calls++
	d.got = transcript
	return intent.Result{Category: intent.Chat, Query: transcript}, d.reply, d.err
}

type fakeCues struct {
	listening int
	failures  int
}

func (c *fakeCues) Listening() { c.listening++ }
func (c *fakeCues) Failure()   { c.failures++ }

type fixture struct {
	gw    *fakeGateway
	sp    *fakeSpeech
	disp  *fakeDispatcher
	cues  *fakeCues
	queue *announce.Queue
	ctrl  *Controller
	edges chan button.Edge
}

func newFixture() *fixture {
	f := &fixture{
		gw:    &fakeGateway{capture: &fakeCapture{wav: []byte("rec"), dur: time.Second}},
		sp:    &fakeSpeech{transcript: "こんにちは"},
		disp:  &fakeDispatcher{reply: intent.Reply{Text: "やあ"}},
		cues:  &fakeCues{},
		queue: announce.NewQueue(0),
		edges: make(chan button.Edge, 8),
	}
	f.ctrl = NewController(f.gw, f.sp, f.disp, f.cues, f.queue, Config{
		MinHold: 300 * time.Millisecond,
		MaxHold: 30 * time.Second,
	})
	return f
}

func (f *fixture) release() {
	f.edges <- button.Edge{Kind: button.Release, At: time.Now()}
}

func TestSessionHappyPath(t *testing.T) {
	f := newFixture()
	f.release()

	barge := f.ctrl.session(context.Background(), f.edges)
	assert.Nil(t, barge)

	assert.Equal(t, 1, f.cues.listening)
	assert.Equal(t, 1, f.sp.transcribes)
	assert.Equal(t, "こんにちは", f.disp.got)
	assert.Equal(t, []string{"やあ"}, f.sp.synthesized)
	require.Len(t, f.gw.played, 1)
	assert.Equal(t, []byte("wav:やあ"), f.gw.played[0])
	assert.Zero(t, f.cues.failures)
}

func TestSessionShortTapDiscardedSilently(t *testing.T) {
	f := newFixture()
	f.gw.capture.dur = 100 * time.Millisecond
	f.release()

	barge := f.ctrl.session(context.Background(), f.edges)
	assert.Nil(t, barge)

	assert.Zero(t, f.sp.transcribes, "no provider call for an accidental tap")
	assert.Zero(t, f.disp.calls)
	assert.Empty(t, f.gw.played)
	assert.Zero(t, f.cues.failures, "no audible cue either")
}

func TestSessionEmptyTranscriptDiscarded(t *testing.T) {
	f := newFixture()
	f.sp.transcript = ""
	f.release()

	f.ctrl.session(context.Background(), f.edges)

	assert.Equal(t, 1, f.sp.transcribes)
	assert.Zero(t, f.disp.calls)
	assert.Empty(t, f.gw.played)
}

func TestSessionRetriesTransientTranscription(t *testing.T) {
	f := newFixture()
	f.sp.transcribeErr = []error{fault.Transientf("rate limited"), nil}
	f.release()

	f.ctrl.session(context.Background(), f.edges)

	assert.Equal(t, 2, f.sp.transcribes)
	assert.Equal(t, "こんにちは", f.disp.got)
	require.Len(t, f.gw.played, 1)
}

func TestSessionFailureCueAfterRetryExhausted(t *testing.T) {
	f := newFixture()
	f.sp.transcribeErr = []error{fault.Transientf("down"), fault.Transientf("still down")}
	f.release()

	f.ctrl.session(context.Background(), f.edges)

	assert.Equal(t, 2, f.sp.transcribes)
	assert.Zero(t, f.disp.calls)
	assert.Equal(t, 1, f.cues.failures)
}

// stalledSpeech hangs the first call until its deadline expires, then
// reports whether the retry arrived with a live context.
type stalledSpeech struct {
	transcribes       int
	synthesizes       int
	transcribeRetryOK bool
	synthesizeRetryOK bool
}

func (s *stalledSpeech) Transcribe(ctx context.Context, _ []byte) (string, error) {
	s.transcribes++
	if s.transcribes == 1 {
		<-ctx.Done()
		return "", fault.New(fault.Transient, ctx.Err())
	}
	s.transcribeRetryOK = ctx.Err() == nil
	return "こんにちは", nil
}

func (s *stalledSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.synthesizes++
	if s.synthesizes == 1 {
		<-ctx.Done()
		return nil, fault.New(fault.Transient, ctx.Err())
	}
	s.synthesizeRetryOK = ctx.Err() == nil
	return []byte("wav:" + text), nil
}

func TestRetryGetsFreshTimeout(t *testing.T) {
	sp := &stalledSpeech{}
	c := NewController(&fakeGateway{}, sp, &fakeDispatcher{}, &fakeCues{}, announce.NewQueue(0), Config{
		ProviderTimeout: 50 * time.Millisecond,
	})

	text, err := c.transcribe(context.Background(), []byte("rec"))
	require.NoError(t, err)
	assert.Equal(t, "こんにちは", text)
	assert.Equal(t, 2, sp.transcribes)
	assert.True(t, sp.transcribeRetryOK, "retry ran against an expired deadline")

	wav, err := c.synthesize(context.Background(), "やあ")
	require.NoError(t, err)
	assert.Equal(t, []byte("wav:やあ"), wav)
	assert.Equal(t, 2, sp.synthesizes)
	assert.True(t, sp.synthesizeRetryOK, "retry ran against an expired deadline")
}

func TestSessionSpeaksHandlerApology(t *testing.T) {
	f := newFixture()
	f.disp.err = fault.Spoken(fault.SideEffect, "メールを送信できませんでした。", assert.AnError)
	f.release()

	f.ctrl.session(context.Background(), f.edges)

	assert.Equal(t, []string{"メールを送信できませんでした。"}, f.sp.synthesized)
	require.Len(t, f.gw.played, 1)
	assert.Equal(t, []byte("wav:メールを送信できませんでした。"), f.gw.played[0])
	assert.Zero(t, f.cues.failures)
}

func TestSessionInvalidInputStaysSilent(t *testing.T) {
	f := newFixture()
	f.disp.err = fault.New(fault.InvalidInput, assert.AnError)
	f.release()

	f.ctrl.session(context.Background(), f.edges)

	assert.Empty(t, f.gw.played)
	assert.Zero(t, f.cues.failures)
}

func TestRespondBargeInStopsPlayback(t *testing.T) {
	f := newFixture()
	f.gw.playback = newFakePlayback(false)
	f.gw.playCh = make(chan struct{}, 1)

	go func() {
		<-f.gw.playCh
		f.edges <- button.Edge{Kind: button.Press, At: time.Now()}
	}()

	barge := f.ctrl.respond(context.Background(), f.edges, []byte("reply"))
	require.NotNil(t, barge)
	assert.Equal(t, button.Press, barge.Kind)
	assert.True(t, f.gw.playback.stopped)
}

func TestRespondDropsStaleReleases(t *testing.T) {
	f := newFixture()
	f.gw.playback = newFakePlayback(false)
	f.gw.playCh = make(chan struct{}, 1)

	go func() {
		<-f.gw.playCh
		f.edges <- button.Edge{Kind: button.Release, At: time.Now()}
		f.gw.playback.Stop()
	}()

	barge := f.ctrl.respond(context.Background(), f.edges, []byte("reply"))
	assert.Nil(t, barge)
}

func TestRespondDrainsEdgesQueuedDuringPipeline(t *testing.T) {
	f := newFixture()
	// edges that piled up while transcribing must not barge in
	f.edges <- button.Edge{Kind: button.Press, At: time.Now()}
	f.edges <- button.Edge{Kind: button.Release, At: time.Now()}

	barge := f.ctrl.respond(context.Background(), f.edges, []byte("reply"))
	assert.Nil(t, barge)
	assert.Len(t, f.gw.played, 1)
}

func TestDrainAnnouncementsSynthesizesText(t *testing.T) {
	f := newFixture()
	f.queue.Add(announce.Announcement{Origin: announce.OriginAlarm, Text: "アラームの時間です。"})

	f.ctrl.drainAnnouncements(context.Background(), f.edges)

	assert.Equal(t, []string{"アラームの時間です。"}, f.sp.synthesized)
	require.Len(t, f.gw.played, 1)
	assert.Equal(t, 0, f.queue.Len())
	assert.Equal(t, Idle, f.ctrl.State())
}

func TestDrainAnnouncementsPlaysAudioAsIs(t *testing.T) {
	f := newFixture()
	f.queue.Add(announce.Announcement{Origin: announce.OriginMessage, Audio: []byte("voice")})

	f.ctrl.drainAnnouncements(context.Background(), f.edges)

	assert.Empty(t, f.sp.synthesized)
	require.Len(t, f.gw.played, 1)
	assert.Equal(t, []byte("voice"), f.gw.played[0])
}

func TestDrainAnnouncementsOrdersAlarmFirst(t *testing.T) {
	f := newFixture()
	base := time.Now()
	f.queue.Add(announce.Announcement{Origin: announce.OriginMessage, Audio: []byte("msg"), CreatedAt: base})
	f.queue.Add(announce.Announcement{Origin: announce.OriginAlarm, Audio: []byte("alarm"), CreatedAt: base.Add(time.Second)})

	f.ctrl.drainAnnouncements(context.Background(), f.edges)

	require.Len(t, f.gw.played, 2)
	assert.Equal(t, []byte("alarm"), f.gw.played[0])
	assert.Equal(t, []byte("msg"), f.gw.played[1])
}

func TestRunStartsSessionOnPress(t *testing.T) {
	f := newFixture()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.ctrl.Run(ctx, f.edges)
		close(done)
	}()

	f.edges <- button.Edge{Kind: button.Press, At: time.Now()}
	f.release()

	require.Eventually(t, func() bool {
		return f.gw.playCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
