// Package audio is the Audio Gateway: the single exclusively-owned
// capture/playback device. Ownership is arbitrated by the session
// controller; the gateway only enforces that capture and playback never
// overlap.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	beepwav "github.com/faiface/beep/wav"
	"github.com/gordonklaus/portaudio"

	"github.com/hotaka0908/raspi-voice/pkg/audioconv"
)

const frameSize = 1024

// Capture is one in-progress recording, stopped on button release.
type Capture interface {
	// Stop ends the recording and returns it as WAV plus its duration.
	Stop() ([]byte, time.Duration, error)
}

// Playback is one in-progress render of reply audio.
type Playback interface {
	Stop()
	Done() <-chan struct{}
}

type Gateway struct {
	captureRate int
	outRate     beep.SampleRate

	mu        sync.Mutex
	capturing bool
	playing   bool
}

// NewGateway builds a gateway capturing mono int16 at captureRate and
// playing through a speaker mixer running at outRate.
func NewGateway(captureRate, outRate int) *Gateway {
	return &Gateway{
		captureRate: captureRate,
		outRate:     beep.SampleRate(outRate),
	}
}

func (g *Gateway) Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio: %w", err)
	}
	if err := speaker.Init(g.outRate, g.outRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("speaker: %w", err)
	}
	return nil
}

func (g *Gateway) Close() {
	portaudio.Terminate()
}

// StartCapture opens the default input stream and records until Stop,
// or until maxHold of audio has accumulated (stuck-button guard).
func (g *Gateway) StartCapture(maxHold time.Duration) (Capture, error) {
	g.mu.Lock()
	if g.capturing || g.playing {
		g.mu.Unlock()
		return nil, errors.New("audio device busy")
	}
	g.capturing = true
	g.mu.Unlock()

	buf := make([]int16, frameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(g.captureRate), len(buf), buf)
	if err != nil {
		g.release(&g.capturing)
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		g.release(&g.capturing)
		return nil, err
	}

	c := &capture{
		gw:         g,
		stream:     stream,
		buf:        buf,
		rate:       g.captureRate,
		maxSamples: int(float64(g.captureRate) * maxHold.Seconds()),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go c.run()
	return c, nil
}

type capture struct {
	gw         *Gateway
	stream     *portaudio.Stream
	buf        []int16
	rate       int
	maxSamples int

	stop chan struct{}
	done chan struct{}

	pcm []int16
	err error
}

func (c *capture) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		default:
		}
		if err := c.stream.Read(); err != nil {
			c.err = err
			return
		}
		c.pcm = append(c.pcm, c.buf...)
		if c.maxSamples > 0 && len(c.pcm) >= c.maxSamples {
			return
		}
	}
}

func (c *capture) Stop() ([]byte, time.Duration, error) {
	close(c.stop)
	<-c.done
	c.stream.Stop()
	c.stream.Close()
	c.gw.release(&c.gw.capturing)

	if c.err != nil {
		return nil, 0, c.err
	}
	dur := time.Duration(len(c.pcm)) * time.Second / time.Duration(c.rate)
	if len(c.pcm) == 0 {
		return nil, 0, nil
	}
	wav, err := audioconv.EncodeWAV(c.pcm, c.rate)
	if err != nil {
		return nil, dur, err
	}
	return wav, dur, nil
}

// Play decodes WAV reply audio and renders it through the speaker.
func (g *Gateway) Play(wavBytes []byte) (Playback, error) {
	g.mu.Lock()
	if g.capturing || g.playing {
		g.mu.Unlock()
		return nil, errors.New("audio device busy")
	}
	g.playing = true
	g.mu.Unlock()

	streamer, format, err := beepwav.Decode(io.NopCloser(bytes.NewReader(wavBytes)))
	if err != nil {
		g.release(&g.playing)
		return nil, fmt.Errorf("decode wav: %w", err)
	}

	var s beep.Streamer = streamer
	if format.SampleRate != g.outRate {
		s = beep.Resample(4, format.SampleRate, g.outRate, streamer)
	}

	p := &playback{gw: g, done: make(chan struct{})}
	speaker.Play(beep.Seq(s, beep.Callback(p.finish)))
	return p, nil
}

type playback struct {
	gw   *Gateway
	once sync.Once
	done chan struct{}
}

func (p *playback) finish() {
	p.once.Do(func() {
		p.gw.release(&p.gw.playing)
		close(p.done)
	})
}

func (p *playback) Stop() {
	speaker.Clear()
	p.finish()
}

func (p *playback) Done() <-chan struct{} { return p.done }

func (g *Gateway) release(flag *bool) {
	g.mu.Lock()
	*flag = false
	g.mu.Unlock()
}
