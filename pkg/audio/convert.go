package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format is the layout of a signed 16-bit little-endian PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// ConvertPCM16 turns mono or stereo PCM into mono PCM at to.SampleRate.
// Input that already matches is returned as is.
func ConvertPCM16(pcm []byte, from, to Format) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: odd byte count %d in 16-bit PCM", len(pcm))
	}
	if to.Channels != 1 {
		return nil, fmt.Errorf("audio: unsupported target %s", to)
	}
	if from.Channels != 1 && from.Channels != 2 {
		return nil, fmt.Errorf("audio: unsupported source %s", from)
	}
	if from.Channels == 2 {
		pcm = StereoToMono(pcm)
	}
	return ResampleMono16(pcm, from.SampleRate, to.SampleRate), nil
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[2*i:]))
}

func putSample(pcm []byte, i int, s int16) {
	binary.LittleEndian.PutUint16(pcm[2*i:], uint16(s))
}

// StereoToMono averages the two channels of every frame. A trailing partial
// frame is dropped.
func StereoToMono(pcm []byte) []byte {
	n := len(pcm) / 4
	out := make([]byte, 2*n)
	for i := range n {
		// The mean of two int16 values always fits in an int16.
		mean := (int32(sampleAt(pcm, 2*i)) + int32(sampleAt(pcm, 2*i+1))) / 2
		putSample(out, i, int16(mean))
	}
	return out
}

// ResampleMono16 converts mono PCM between sample rates by linear
// interpolation. Non-positive or equal rates leave pcm untouched.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	in := len(pcm) / 2
	n := int(int64(in) * int64(dstRate) / int64(srcRate))
	if n == 0 {
		return nil
	}
	out := make([]byte, 2*n)
	step := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * step
		j := int(pos)
		a := float64(sampleAt(pcm, j))
		b := a
		if j+1 < in {
			b = float64(sampleAt(pcm, j+1))
		}
		v := a + (b-a)*(pos-float64(j))
		putSample(out, i, int16(math.Trunc(v)))
	}
	return out
}
