package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ffprobeOutput represents the JSON structure returned by ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		Bitrate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

// Probe extracts container and stream information using ffprobe
func (f *FFmpeg) Probe(ctx context.Context, filePath string) (*MediaInfo, error) {
	args := []string{
		"-v", "quiet",
		"-show_format",
		"-show_streams",
		"-of", "json",
		filePath,
	}

	cmd := exec.CommandContext(ctx, f.ffprobePath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, NewProcessingError("probe", filePath, err, stderr.String())
	}

	return parseProbe(stdout.Bytes(), filePath)
}

func parseProbe(data []byte, filePath string) (*MediaInfo, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, NewProcessingError("probe_parsing", filePath, err, "")
	}

	info := &MediaInfo{}
	if d, err := strconv.ParseFloat(output.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	if size, err := strconv.ParseInt(output.Format.Size, 10, 64); err == nil {
		info.Size = size
	}
	if br, err := strconv.Atoi(output.Format.Bitrate); err == nil {
		info.Bitrate = br
	}
	// format_name is a comma list such as "mov,mp4,m4a,3gp,3g2,mj2"
	info.Format = strings.Split(output.Format.FormatName, ",")[0]

	for _, stream := range output.Streams {
		switch stream.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = stream.CodecName
			info.Width = stream.Width
			info.Height = stream.Height
		case "audio":
			if info.AudioCodec != "" {
				continue
			}
			info.AudioCodec = stream.CodecName
			info.Channels = stream.Channels
			if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
				info.SampleRate = sr
			}
		default:
			continue
		}
		if info.Duration == 0 && stream.Duration != "" {
			if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				info.Duration = d
			}
		}
	}

	if info.Duration <= 0 {
		return nil, NewProcessingError("probe_validation", filePath,
			fmt.Errorf("%w: could not determine duration", ErrInvalidMedia), "")
	}
	return info, nil
}
