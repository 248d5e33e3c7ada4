package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/lmejias/vidsift/pkg/logging"
)

// FFmpegTool implements Tool by shelling out to ffmpeg and ffprobe
type FFmpegTool struct {
	ffmpegPath  string
	ffprobePath string
	logger      *logging.Logger
}

// NewFFmpegTool creates an FFmpegTool. Empty paths default to binaries on $PATH.
func NewFFmpegTool(ffmpegPath, ffprobePath string, logger *logging.Logger) *FFmpegTool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegTool{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		logger:      logger,
	}
}

type probeOutput struct {
	Streams []struct {
		NBFrames   string `json:"nb_frames"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe reads frame count and frame rate from the first video stream
func (t *FFmpegTool) Probe(ctx context.Context, path string) (VideoInfo, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_frames,r_frame_rate",
		"-of", "json",
		path,
	}

	out, err := t.run(ctx, t.ffprobePath, args)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}

	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return VideoInfo{}, fmt.Errorf("failed to parse ffprobe output for %s: %w", path, err)
	}
	if len(probe.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video stream in %s", path)
	}

	fps, err := parseFrameRate(probe.Streams[0].RFrameRate)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("invalid frame rate for %s: %w", path, err)
	}

	frames, err := strconv.Atoi(probe.Streams[0].NBFrames)
	if err != nil {
		return VideoInfo{}, fmt.Errorf("invalid frame count for %s: %w", path, err)
	}

	return VideoInfo{
		FrameCount: frames,
		FPS:        fps,
		Duration:   float64(frames) / fps,
	}, nil
}

// DetectCuts runs ffprobe's scene-change filter and converts the resulting
// cut timestamps into frame ranges spanning the whole video. The threshold is
// on the 0-100 sensitivity scale and mapped onto the filter's 0-1 score.
func (t *FFmpegTool) DetectCuts(ctx context.Context, path string, threshold float64) ([]CutRange, error) {
	info, err := t.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	score := threshold / 100.0
	args := []string{
		"-v", "error",
		"-f", "lavfi",
		"-i", fmt.Sprintf("movie=%s,select=gt(scene\\,%g)", path, score),
		"-show_entries", "frame=pts_time",
		"-of", "csv=p=0",
	}

	out, err := t.run(ctx, t.ffprobePath, args)
	if err != nil {
		return nil, fmt.Errorf("scene detection failed for %s: %w", path, err)
	}

	cutFrames := []int{0}
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSuffix(strings.TrimSpace(line), ",")
		if line == "" {
			continue
		}
		ts, err := strconv.ParseFloat(line, 64)
		if err != nil {
			continue
		}
		frame := int(ts * info.FPS)
		if frame > 0 && frame < info.FrameCount {
			cutFrames = append(cutFrames, frame)
		}
	}
	cutFrames = append(cutFrames, info.FrameCount)

	ranges := make([]CutRange, 0, len(cutFrames)-1)
	for i := 0; i < len(cutFrames)-1; i++ {
		if cutFrames[i+1] > cutFrames[i] {
			ranges = append(ranges, CutRange{StartFrame: cutFrames[i], EndFrame: cutFrames[i+1]})
		}
	}
	return ranges, nil
}

// ExtractRange copies [start, start+duration) into dst without re-encoding
func (t *FFmpegTool) ExtractRange(ctx context.Context, src string, start, duration float64, dst string) error {
	args := []string{
		"-ss", formatSeconds(start),
		"-i", src,
		"-t", formatSeconds(duration),
		"-c", "copy",
		"-avoid_negative_ts", "1",
		"-y",
		dst,
	}
	if _, err := t.run(ctx, t.ffmpegPath, args); err != nil {
		return fmt.Errorf("range extraction failed for %s: %w", src, err)
	}
	return nil
}

// ExtractFrame decodes a single frame by index into dst
func (t *FFmpegTool) ExtractFrame(ctx context.Context, src string, frame int, dst string) error {
	args := []string{
		"-i", src,
		"-vf", fmt.Sprintf("select=eq(n\\,%d)", frame),
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		dst,
	}
	if _, err := t.run(ctx, t.ffmpegPath, args); err != nil {
		return fmt.Errorf("frame extraction failed for %s frame %d: %w", src, frame, err)
	}
	return nil
}

func (t *FFmpegTool) run(ctx context.Context, bin string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if t.logger != nil {
		t.logger.Debug("running media tool", map[string]interface{}{
			"bin":  bin,
			"args": strings.Join(args, " "),
		})
	}

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", bin, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func parseFrameRate(raw string) (float64, error) {
	parts := strings.Split(raw, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("unexpected frame rate %q", raw)
	}
	num, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	den, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	if den == 0 || num == 0 {
		return 0, fmt.Errorf("degenerate frame rate %q", raw)
	}
	return num / den, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
