// Package notify plays the short audible cues: a chirp when listening
// starts and a low buzz on failure. Requires the gateway's speaker to
// be initialized first.
package notify

import (
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/generators"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

type Player struct {
	rate beep.SampleRate
	cue  *beep.Buffer // optional custom listening cue
}

// NewPlayer builds a cue player at the speaker mixer rate. cuePath, if
// non-empty, points at an mp3 played instead of the generated chirp.
func NewPlayer(outRate int, cuePath string) *Player {
	p := &Player{rate: beep.SampleRate(outRate)}
	if cuePath != "" {
		if f, err := os.Open(cuePath); err == nil {
			if streamer, format, err := mp3.Decode(f); err == nil {
				buf := beep.NewBuffer(format)
				buf.Append(streamer)
				streamer.Close()
				p.cue = buf
			} else {
				f.Close()
			}
		}
	}
	return p
}

// Listening plays the capture-start cue and blocks until it finished,
// so the chirp never bleeds into the recording.
func (p *Player) Listening() {
	if p.cue != nil {
		p.play(p.cue.Streamer(0, p.cue.Len()))
		return
	}
	p.tone(880, 120*time.Millisecond)
}

// Failure plays the generic error buzz.
func (p *Player) Failure() {
	p.tone(220, 180*time.Millisecond)
	p.tone(180, 220*time.Millisecond)
}

func (p *Player) tone(freq int, dur time.Duration) {
	tone, err := generators.SinTone(p.rate, freq)
	if err != nil {
		return
	}
	p.play(beep.Take(p.rate.N(dur), tone))
}

func (p *Player) play(s beep.Streamer) {
	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}
