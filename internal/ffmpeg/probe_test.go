package ffmpeg

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

const sampleProbeReport = `{
    "streams": [
        {
            "index": 0,
            "codec_name": "h264",
            "codec_type": "video",
            "width": 1920,
            "height": 1080,
            "r_frame_rate": "30000/1001",
            "pix_fmt": "yuv420p"
        },
        {
            "index": 1,
            "codec_name": "aac",
            "codec_type": "audio",
            "sample_rate": "48000",
            "channels": 2
        }
    ],
    "format": {
        "filename": "clip.mp4",
        "duration": "5.312000",
        "size": "800219",
        "bit_rate": "1205959"
    }
}`

func TestParseProbeJSON(t *testing.T) {
	meta, err := ParseProbeJSON([]byte(sampleProbeReport))
	if err != nil {
		t.Fatalf("ParseProbeJSON: %v", err)
	}

	if meta.DurationSeconds != 5.312 {
		t.Errorf("DurationSeconds = %v, want 5.312", meta.DurationSeconds)
	}
	if meta.Width != 1920 || meta.Height != 1080 {
		t.Errorf("dimensions = %dx%d, want 1920x1080", meta.Width, meta.Height)
	}
	if meta.Codec != "h264" {
		t.Errorf("Codec = %q, want h264", meta.Codec)
	}
	if math.Abs(meta.FrameRate-29.97) > 0.01 {
		t.Errorf("FrameRate = %v, want ~29.97", meta.FrameRate)
	}
	if meta.BitRate != 1205959 {
		t.Errorf("BitRate = %d, want 1205959", meta.BitRate)
	}
	if meta.SizeBytes != 800219 {
		t.Errorf("SizeBytes = %d, want 800219", meta.SizeBytes)
	}
}

func TestParseProbeJSONAudioOnly(t *testing.T) {
	report := `{"streams":[{"codec_type":"audio","codec_name":"mp3"}],"format":{"duration":"12.5"}}`
	meta, err := ParseProbeJSON([]byte(report))
	if err != nil {
		t.Fatalf("ParseProbeJSON: %v", err)
	}
	if meta.DurationSeconds != 12.5 {
		t.Errorf("DurationSeconds = %v, want 12.5", meta.DurationSeconds)
	}
	if meta.Width != 0 || meta.Codec != "" {
		t.Errorf("audio-only report must leave video fields zero: %+v", meta)
	}
}

func TestParseProbeJSONInvalid(t *testing.T) {
	if _, err := ParseProbeJSON([]byte("not json")); err == nil {
		t.Error("ParseProbeJSON accepted garbage")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{"30/1", 30},
		{"25/1", 25},
		{"0/0", 0},
		{"60", 60},
		{"", 0},
		{"bogus", 0},
	}
	for _, tt := range tests {
		if got := parseFrameRate(tt.raw); got != tt.want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestProbeWithStub(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}

	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\ncat <<'EOF'\n" + sampleProbeReport + "\nEOF\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	p := NewProber(stub, testLogger())
	meta, err := p.Probe(context.Background(), "clip.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if meta.Width != 1920 || meta.DurationSeconds != 5.312 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestProbeFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stub")
	}

	dir := t.TempDir()
	stub := filepath.Join(dir, "ffprobe")
	script := "#!/bin/sh\necho 'clip.mp4: No such file or directory' 1>&2\nexit 1\n"
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	p := NewProber(stub, testLogger())
	_, err := p.Probe(context.Background(), "clip.mp4")
	execErr, ok := err.(*ExecError)
	if !ok {
		t.Fatalf("err = %T (%v), want *ExecError", err, err)
	}
	if execErr.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", execErr.ExitCode)
	}
}
