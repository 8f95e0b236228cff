package config

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Width != def.Width || cfg.FrameRate != def.FrameRate || cfg.StopTimeout != def.StopTimeout {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadIgnoresExtensionlessBinary(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	elf := []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0, 0x01, 0x02}
	if err := os.WriteFile(filepath.Join(dir, "screenrec"), elf, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FrameRate != Default().FrameRate {
		t.Fatalf("frame_rate = %d, want default", cfg.FrameRate)
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("frame_rate: 50\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FrameRate != 50 {
		t.Fatalf("frame_rate = %d, want 50 from %s", cfg.FrameRate, FileName)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rec.yaml")
	data := `width: 1920
height: 1080
frame_rate: 60
codec: nvenc_h264
audio_sources: [default, "tone:440"]
high_watermark: 800ms
stop_timeout: 3s
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SCREENREC_FRAME_RATE", "24")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Width != 1920 || cfg.Height != 1080 || cfg.Codec != "nvenc_h264" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.FrameRate != 24 {
		t.Fatalf("frame_rate = %d, want env override 24", cfg.FrameRate)
	}
	if !slices.Equal(cfg.AudioSources, []string{"default", "tone:440"}) {
		t.Fatalf("audio_sources = %v", cfg.AudioSources)
	}
	if cfg.HighWatermark != 800*time.Millisecond || cfg.StopTimeout != 3*time.Second {
		t.Fatalf("durations = %s %s", cfg.HighWatermark, cfg.StopTimeout)
	}
	if cfg.DropCap != 100*time.Millisecond {
		t.Fatalf("drop_cap = %s, want default", cfg.DropCap)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "screenrec.yaml")
	cfg := Default()
	cfg.Codec = "x264"
	cfg.AudioSources = []string{"pulse:mic"}
	cfg.KillWait = 750 * time.Millisecond

	if err := SaveTo(cfg, path); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Codec != "x264" || got.KillWait != 750*time.Millisecond || !slices.Equal(got.AudioSources, cfg.AudioSources) {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestValidateClamps(t *testing.T) {
	cfg := Default()
	cfg.FrameRate = 1000
	cfg.Width = 641
	cfg.VideoQuality = 0
	cfg.TargetLatency = time.Second
	cfg.StopTimeout = -1
	cfg.LogFormat = "xml"

	errs := cfg.Validate()
	if len(errs) != 6 {
		t.Fatalf("got %d errors, want 6: %v", len(errs), errs)
	}
	if cfg.FrameRate != 240 {
		t.Fatalf("frame_rate = %d, want 240", cfg.FrameRate)
	}
	if cfg.Width != 640 {
		t.Fatalf("width = %d, want 640", cfg.Width)
	}
	if cfg.VideoQuality != Default().VideoQuality {
		t.Fatalf("video_quality = %d", cfg.VideoQuality)
	}
	if cfg.TargetLatency != cfg.HighWatermark {
		t.Fatalf("target_latency = %s, want %s", cfg.TargetLatency, cfg.HighWatermark)
	}
	if cfg.StopTimeout != 10*time.Second {
		t.Fatalf("stop_timeout = %s", cfg.StopTimeout)
	}
}

func TestValidateDefaultsClean(t *testing.T) {
	if errs := Default().Validate(); len(errs) != 0 {
		t.Fatalf("defaults invalid: %v", errs)
	}
}

func TestValidateAudioOnly(t *testing.T) {
	cfg := Default()
	cfg.AudioOnly = true
	cfg.Validate()
	if !slices.Equal(cfg.AudioSources, []string{"default"}) {
		t.Fatalf("audio_sources = %v", cfg.AudioSources)
	}
}
