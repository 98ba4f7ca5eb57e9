package ffmpeg

import "time"

// MediaInfo describes a probed clip
type MediaInfo struct {
	Duration   float64 `json:"duration"` // seconds
	Format     string  `json:"format"`   // container format name reported by ffprobe
	Size       int64   `json:"size"`
	Bitrate    int     `json:"bitrate"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
	Channels   int     `json:"channels,omitempty"`
}

// HasAudio reports whether the probe found an audio stream.
func (m *MediaInfo) HasAudio() bool {
	return m.AudioCodec != ""
}

// AudioOptions controls audio extraction. The defaults match what
// speech-to-text services expect: mono, 16 kHz, compressed MP3.
type AudioOptions struct {
	SampleRate  int           `json:"sample_rate"`
	Channels    int           `json:"channels"`
	Bitrate     string        `json:"bitrate"`
	MaxDuration time.Duration `json:"max_duration"`
}

// DefaultAudioOptions returns the extraction settings used for transcription
func DefaultAudioOptions() AudioOptions {
	return AudioOptions{
		SampleRate:  16000,
		Channels:    1,
		Bitrate:     "64k",
		MaxDuration: 2 * time.Minute,
	}
}
