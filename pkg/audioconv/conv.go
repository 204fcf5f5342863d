// Package audioconv converts between the audio shapes this system moves
// around: raw int16 capture PCM, WAV payloads for the speech APIs, and
// the compressed formats other devices push over the relay.
package audioconv

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// RelayRate is the rate inbound relay audio is normalized to before
// playback and transcription.
const RelayRate = 16000

// EncodeWAV wraps mono int16 PCM into a WAV container.
func EncodeWAV(pcm []int16, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("empty pcm")
	}

	data := make([]int, len(pcm))
	for i, v := range pcm {
		data[i] = int(v)
	}

	var mem memSeeker
	enc := wav.NewEncoder(&mem, sampleRate, 16, 1, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav close: %w", err)
	}
	return mem.buf, nil
}

// DecodePCM sniffs the container of data (wav, mp3, ogg-vorbis or
// ogg-opus) and returns mono float32 samples plus their sample rate.
func DecodePCM(data []byte) ([]float32, int, error) {
	if len(data) < 4 {
		return nil, 0, errors.New("payload too short")
	}
	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return decodeWAV(data)
	case bytes.HasPrefix(data, []byte("OggS")):
		if pcm, sr, err := decodeOggVorbis(data); err == nil {
			return pcm, sr, nil
		}
		return decodeOggOpus(data)
	default:
		// mp3 has no reliable magic once ID3 tags enter the picture,
		// so it is the fallback.
		return decodeMP3(data)
	}
}

// ToWAV normalizes any supported payload to mono 16 kHz WAV, the shape
// both the player and the transcription API accept.
func ToWAV(data []byte) ([]byte, error) {
	pcm, sr, err := DecodePCM(data)
	if err != nil {
		return nil, err
	}
	if sr != RelayRate {
		pcm = ResampleLinear(pcm, sr, RelayRate)
	}
	return EncodeWAV(Float32ToInt16(pcm), RelayRate)
}

func decodeWAV(data []byte) ([]float32, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || pb.Data == nil {
		if err == nil {
			err = errors.New("empty wav")
		}
		return nil, 0, err
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := intsToFloat32(pb.Data, bd)

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	if ch > 1 {
		x = Downmix(x, ch)
	}
	return x, sr, nil
}

func decodeMP3(data []byte) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, 0, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, 0, err
	}
	// the decoder always outputs interleaved stereo
	x := Downmix(Int16ToFloat32(ints), 2)

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return x, sr, nil
}

func decodeOggVorbis(data []byte) ([]float32, int, error) {
	pcm, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, errors.New("invalid ogg/vorbis stream")
	}
	x := pcm
	if format.Channels > 1 {
		x = Downmix(pcm, format.Channels)
	}
	return x, format.SampleRate, nil
}

func decodeOggOpus(data []byte) ([]float32, int, error) {
	dec, err := popus.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		pcm48 []float32
		buf   = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm48 = append(pcm48, Int16ToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}
	if len(pcm48) == 0 {
		return nil, 0, errors.New("empty opus stream")
	}
	if ch > 1 {
		pcm48 = Downmix(pcm48, ch)
	}
	return pcm48, 48000, nil
}

// Int16ToFloat32 scales samples into [-1, 1].
func Int16ToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

// Float32ToInt16 clamps and scales samples back to int16.
func Float32ToInt16(data []float32) []int16 {
	out := make([]int16, len(data))
	for i, v := range data {
		s := clamp(float64(v), -1.0, 1.0) * 32767.0
		out[i] = int16(s)
	}
	return out
}

func intsToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	nFrames := len(in) / channels
	out := make([]float32, nFrames)
	for i := 0; i < nFrames; i++ {
		sum := 0.0
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += float64(in[base+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// ResampleLinear is a cheap linear resampler, good enough for speech.
func ResampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := 0; i < outN; i++ {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		if i0 >= len(in) {
			out[i] = in[len(in)-1]
			continue
		}
		if i1 >= len(in) {
			out[i] = in[i0]
			continue
		}
		a := float32(src - float64(i0))
		out[i] = in[i0]*(1-a) + in[i1]*a
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// memSeeker is the in-memory io.WriteSeeker the wav encoder needs.
type memSeeker struct {
	buf []byte
	pos int
}

func (m *memSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int
	switch whence {
	case io.SeekStart:
		next = int(offset)
	case io.SeekCurrent:
		next = m.pos + int(offset)
	case io.SeekEnd:
		next = len(m.buf) + int(offset)
	default:
		return 0, errors.New("bad whence")
	}
	if next < 0 {
		return 0, errors.New("negative position")
	}
	m.pos = next
	return int64(next), nil
}
