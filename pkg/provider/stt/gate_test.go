package stt_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/voxcall/pkg/audio"
	"github.com/MrWong99/voxcall/pkg/provider/stt"
)

// speechPCM returns a 440 Hz sine wave whose RMS is far above the default
// silence threshold.
func speechPCM(samples int) []byte {
	buf := make([]byte, samples*2)
	for i := range samples {
		v := int16(10_000 * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestSpeechGate_PrepareWAV(t *testing.T) {
	cfg := stt.StreamConfig{Language: "es-MX", SampleRate: 16000, Channels: 1}

	tests := []struct {
		name   string
		gate   stt.SpeechGate
		in     []byte
		wantOK bool
	}{
		{name: "empty", in: nil},
		{name: "too short", in: speechPCM(100)},
		{name: "silence", in: make([]byte, 16_000)},
		{name: "speech", in: speechPCM(8000), wantOK: true},
		{name: "short wav accepted", in: audio.EncodeWAV(speechPCM(100), 16000, 1), wantOK: true},
		{name: "length check disabled", gate: stt.SpeechGate{MinPCMBytes: -1}, in: speechPCM(100), wantOK: true},
		{name: "silence check disabled", gate: stt.SpeechGate{RMSThreshold: -1}, in: make([]byte, 16_000), wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wav, ok := tt.gate.PrepareWAV(tt.in, cfg)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && !audio.IsWAV(wav) {
				t.Error("PrepareWAV returned non-WAV bytes")
			}
		})
	}
}

func TestSpeechGate_WrapsAtConfiguredRate(t *testing.T) {
	wav, ok := stt.SpeechGate{}.PrepareWAV(speechPCM(8000), stt.StreamConfig{SampleRate: 8000, Channels: 1})
	if !ok {
		t.Fatal("PrepareWAV rejected speech")
	}
	info, err := audio.ParseWAV(wav)
	if err != nil {
		t.Fatalf("ParseWAV: %v", err)
	}
	if info.SampleRate != 8000 {
		t.Errorf("SampleRate = %d, want 8000", info.SampleRate)
	}
}
