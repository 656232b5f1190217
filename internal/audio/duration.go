package audio

import (
	"time"

	"github.com/storycast/storycast/pkg/models"
)

const (
	defaultAssumedBitrateKbps = 128
	defaultPCMSampleRate      = 24000
	pcmBytesPerSample         = 2 // 16-bit mono
)

// EstimateOptions tunes the estimator per call site. Bulk and single-item
// generation use different floors.
type EstimateOptions struct {
	Floor              time.Duration
	AssumedBitrateKbps int
}

// EstimateDuration computes the playback duration of synthesized audio.
// For MP3 the frame header is parsed and is authoritative (a Xing frame
// count when present, else a CBR estimate from the header bitrate); if no
// valid frame is found the assumed bitrate is used. PCM is exact math.
// The result never falls below opts.Floor.
func EstimateDuration(data []byte, format string, sampleRate int, opts EstimateOptions) time.Duration {
	assumed := opts.AssumedBitrateKbps
	if assumed <= 0 {
		assumed = defaultAssumedBitrateKbps
	}

	var d time.Duration
	switch format {
	case models.AudioFormatPCM:
		d = pcmDuration(len(data), sampleRate)
	default:
		if info, ok := parseMP3(data); ok {
			d = info.duration(len(data))
		} else {
			d = bitrateEstimate(len(data), assumed)
		}
	}

	if d < opts.Floor {
		d = opts.Floor
	}
	return d
}

func pcmDuration(byteLen, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		sampleRate = defaultPCMSampleRate
	}
	samples := byteLen / pcmBytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

func bitrateEstimate(byteLen, bitrateKbps int) time.Duration {
	bits := int64(byteLen) * 8
	return time.Duration(bits) * time.Millisecond / time.Duration(bitrateKbps)
}

// --- MP3 frame parsing ---

// Bitrate tables for Layer III, kbps, indexed by the 4-bit bitrate field.
var (
	bitratesV1 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	bitratesV2 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
)

// Sample rate tables in Hz, indexed by the 2-bit sample rate field.
var (
	sampleRatesV1  = [4]int{44100, 48000, 32000, 0}
	sampleRatesV2  = [4]int{22050, 24000, 16000, 0}
	sampleRatesV25 = [4]int{11025, 12000, 8000, 0}
)

type mp3Info struct {
	sampleRate      int
	bitrateKbps     int
	samplesPerFrame int
	xingFrames      int // 0 when no Xing/Info header
	audioStart      int // offset past any ID3v2 tag
}

// duration prefers the Xing frame count (exact for VBR files), else
// estimates from the header bitrate and the audio byte length.
func (i mp3Info) duration(totalLen int) time.Duration {
	if i.xingFrames > 0 {
		samples := int64(i.xingFrames) * int64(i.samplesPerFrame)
		return time.Duration(samples) * time.Second / time.Duration(i.sampleRate)
	}
	return bitrateEstimate(totalLen-i.audioStart, i.bitrateKbps)
}

// parseMP3 skips any ID3v2 tag, finds the first valid Layer III frame header,
// and reads its parameters plus an optional Xing/Info VBR header.
func parseMP3(data []byte) (mp3Info, bool) {
	start := skipID3v2(data)

	for off := start; off+4 <= len(data); off++ {
		if data[off] != 0xFF || data[off+1]&0xE0 != 0xE0 {
			continue
		}
		info, ok := parseFrameHeader(data[off:])
		if !ok {
			continue
		}
		info.audioStart = start
		info.xingFrames = readXingFrames(data[off:], info)
		return info, true
	}
	return mp3Info{}, false
}

// skipID3v2 returns the offset of the first byte after an ID3v2 tag, or 0.
// The tag size is synchsafe: 4 bytes of 7 bits each.
func skipID3v2(data []byte) int {
	if len(data) < 10 || data[0] != 'I' || data[1] != 'D' || data[2] != '3' {
		return 0
	}
	size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
	end := 10 + size
	if end > len(data) {
		return 0
	}
	return end
}

func parseFrameHeader(frame []byte) (mp3Info, bool) {
	if len(frame) < 4 {
		return mp3Info{}, false
	}

	version := frame[1] >> 3 & 0x03 // 00=MPEG2.5, 10=MPEG2, 11=MPEG1
	layer := frame[1] >> 1 & 0x03   // 01=Layer III
	if version == 0x01 || layer != 0x01 {
		return mp3Info{}, false
	}

	bitrateIdx := frame[2] >> 4
	rateIdx := frame[2] >> 2 & 0x03

	var info mp3Info
	switch version {
	case 0x03: // MPEG1
		info.bitrateKbps = bitratesV1[bitrateIdx]
		info.sampleRate = sampleRatesV1[rateIdx]
		info.samplesPerFrame = 1152
	case 0x02: // MPEG2
		info.bitrateKbps = bitratesV2[bitrateIdx]
		info.sampleRate = sampleRatesV2[rateIdx]
		info.samplesPerFrame = 576
	default: // MPEG2.5
		info.bitrateKbps = bitratesV2[bitrateIdx]
		info.sampleRate = sampleRatesV25[rateIdx]
		info.samplesPerFrame = 576
	}

	if info.bitrateKbps == 0 || info.sampleRate == 0 {
		return mp3Info{}, false
	}
	return info, true
}

// readXingFrames returns the frame count from a Xing/Info header in the
// first frame, or 0. The header sits after the side info, whose size depends
// on MPEG version and channel mode.
func readXingFrames(frame []byte, info mp3Info) int {
	mono := frame[3]>>6 == 0x03

	var sideInfo int
	if info.samplesPerFrame == 1152 { // MPEG1
		sideInfo = 32
		if mono {
			sideInfo = 17
		}
	} else { // MPEG2/2.5
		sideInfo = 17
		if mono {
			sideInfo = 9
		}
	}

	off := 4 + sideInfo
	if off+12 > len(frame) {
		return 0
	}
	tag := string(frame[off : off+4])
	if tag != "Xing" && tag != "Info" {
		return 0
	}

	flags := int(frame[off+4])<<24 | int(frame[off+5])<<16 | int(frame[off+6])<<8 | int(frame[off+7])
	if flags&0x01 == 0 { // frame count not present
		return 0
	}
	return int(frame[off+8])<<24 | int(frame[off+9])<<16 | int(frame[off+10])<<8 | int(frame[off+11])
}
