package audio

import (
	"encoding/binary"
	"errors"
	"math"
)

// WAVHeaderSize is the size of the canonical PCM WAV header written by
// [EncodeWAV].
const WAVHeaderSize = 44

const bitsPerSample = 16

// WAVInfo describes the layout of a parsed RIFF/WAVE buffer.
type WAVInfo struct {
	// DataOffset is the byte offset of the first PCM sample.
	DataOffset int

	SampleRate int
	Channels   int
}

// IsWAV reports whether b starts with a RIFF header.
func IsWAV(b []byte) bool {
	return len(b) >= 4 && string(b[0:4]) == "RIFF"
}

// EncodeWAV wraps 16-bit little-endian PCM in a 44-byte WAV header. A trailing
// odd byte is dropped so that the data chunk holds whole samples. Returns nil
// when pcm holds no complete sample.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	pcm = pcm[:len(pcm)/2*2]
	if len(pcm) == 0 {
		return nil
	}
	if channels <= 0 {
		channels = 1
	}
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, WAVHeaderSize+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)      // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// ParseWAV walks the RIFF chunks of wav and returns the position of the data
// chunk together with the format found in the fmt chunk.
func ParseWAV(wav []byte) (WAVInfo, error) {
	if len(wav) < 12 {
		return WAVInfo{}, errors.New("audio: WAV too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return WAVInfo{}, errors.New("audio: WAV missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return WAVInfo{}, errors.New("audio: WAV missing WAVE identifier")
	}

	var info WAVInfo
	foundFmt := false

	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			if !foundFmt {
				return WAVInfo{}, errors.New("audio: WAV data chunk precedes fmt chunk")
			}
			info.DataOffset = offset + 8
			return info, nil
		}

		// Chunks are word-aligned: pad by 1 if odd size.
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return WAVInfo{}, errors.New("audio: WAV missing data chunk")
}

// PCMPayload returns the sample bytes of b. For WAV input the header is
// skipped; anything else is assumed to be raw PCM already.
func PCMPayload(b []byte) []byte {
	if !IsWAV(b) {
		return b
	}
	info, err := ParseWAV(b)
	if err != nil {
		if len(b) <= WAVHeaderSize {
			return nil
		}
		return b[WAVHeaderSize:]
	}
	return b[info.DataOffset:]
}

// NormalizedRMS returns the root-mean-square energy of 16-bit PCM scaled to
// [0, 1]. WAV input is accepted; its header is ignored. Returns 0 for buffers
// shorter than one sample.
func NormalizedRMS(b []byte) float64 {
	pcm := PCMPayload(b)
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum/float64(n)) / 32768.0
}

// DurationMs returns the playback length of 16-bit PCM in milliseconds.
// Returns 0 for invalid formats.
func DurationMs(pcm []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	return len(pcm) * 1000 / bytesPerSec
}
