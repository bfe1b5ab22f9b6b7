package audio_test

import (
	"encoding/binary"
	"slices"
	"testing"

	"github.com/MrWong99/voxcall/pkg/audio"
)

func pcm16(samples ...int16) []byte {
	buf := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
	}
	return buf
}

func samples(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

func TestStereoToMono(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want []int16
	}{
		{name: "average", in: pcm16(100, 200, -100, -200), want: []int16{150, -150}},
		{name: "full scale", in: pcm16(32767, 32767, -32768, -32768), want: []int16{32767, -32768}},
		{name: "partial frame dropped", in: append(pcm16(10, 20), 1, 2), want: []int16{15}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := samples(audio.StereoToMono(tt.in)); !slices.Equal(got, tt.want) {
				t.Errorf("StereoToMono = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResampleMono16(t *testing.T) {
	t.Run("upsample keeps endpoints", func(t *testing.T) {
		got := samples(audio.ResampleMono16(pcm16(1000, 2000), 8000, 16000))
		if want := []int16{1000, 1500, 2000, 2000}; !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
	t.Run("downsample by three", func(t *testing.T) {
		got := samples(audio.ResampleMono16(pcm16(100, 200, 300, 400, 500, 600), 48000, 16000))
		if want := []int16{100, 400}; !slices.Equal(got, want) {
			t.Errorf("got %v, want %v", got, want)
		}
	})
	t.Run("passthrough", func(t *testing.T) {
		in := pcm16(100, 200, 300)
		for _, rates := range [][2]int{{16000, 16000}, {0, 16000}, {16000, 0}, {-1, 8000}} {
			if out := audio.ResampleMono16(in, rates[0], rates[1]); len(out) != len(in) {
				t.Errorf("ResampleMono16(%d->%d) len = %d, want %d", rates[0], rates[1], len(out), len(in))
			}
		}
	})
}

func TestConvertPCM16(t *testing.T) {
	mono16k := audio.Format{SampleRate: 16000, Channels: 1}
	tests := []struct {
		name        string
		in          []byte
		from, to    audio.Format
		wantSamples int
		wantErr     bool
	}{
		{name: "noop", in: pcm16(1, 2, 3, 4), from: mono16k, to: mono16k, wantSamples: 4},
		{name: "twilio rate up", in: make([]byte, 2*800), from: audio.Format{SampleRate: 8000, Channels: 1}, to: mono16k, wantSamples: 1600},
		{name: "stereo 22050 down", in: make([]byte, 4*2205), from: audio.Format{SampleRate: 22050, Channels: 2}, to: mono16k, wantSamples: 1600},
		{name: "odd bytes", in: []byte{1, 2, 3}, from: mono16k, to: mono16k, wantErr: true},
		{name: "stereo target", in: pcm16(1, 2), from: mono16k, to: audio.Format{SampleRate: 16000, Channels: 2}, wantErr: true},
		{name: "surround source", in: pcm16(1, 2, 3, 4, 5, 6), from: audio.Format{SampleRate: 16000, Channels: 6}, to: mono16k, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := audio.ConvertPCM16(tt.in, tt.from, tt.to)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ConvertPCM16 err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := len(out) / 2; !tt.wantErr && got != tt.wantSamples {
				t.Errorf("samples = %d, want %d", got, tt.wantSamples)
			}
		})
	}
}

func TestFormat_String(t *testing.T) {
	for f, want := range map[audio.Format]string{
		{SampleRate: 16000, Channels: 1}: "16000Hz mono",
		{SampleRate: 48000, Channels: 2}: "48000Hz stereo",
		{SampleRate: 8000, Channels: 6}:  "8000Hz 6ch",
	} {
		if got := f.String(); got != want {
			t.Errorf("%#v.String() = %q, want %q", f, got, want)
		}
	}
}
