package codec

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"go2tv.app/screenrec/internal/supervisor"
)

const helperEnv = "SCREENREC_CODEC_HELPER"

const encodersOutput = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V....D h264_qsv             H.264 / AVC (Intel Quick Sync Video acceleration) (codec h264)
 A....D aac                  AAC (Advanced Audio Coding)
`

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) != "" {
		os.Exit(runHelper(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// runHelper pretends to be ffmpeg: it lists encoders and fails every probe
// that uses nvenc.
func runHelper(args []string) int {
	if slices.Contains(args, "-encoders") {
		fmt.Print(encodersOutput)
		return 0
	}
	if slices.Contains(args, "h264_nvenc") {
		fmt.Fprintln(os.Stderr, "Cannot load libcuda.so.1")
		return 1
	}
	return 0
}

func helperSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	return supervisor.New(supervisor.Options{
		Resolver:  supervisor.Resolver{Path: self},
		Env:       []string{helperEnv + "=1"},
		WaitDelay: 2 * time.Second,
	})
}

func TestQualityMapping(t *testing.T) {
	cases := []struct {
		q       int
		crf, qs int
	}{
		{100, 0, 1},
		{1, 50, 31},
		{0, crf(DefaultQuality), qscale(DefaultQuality)},
		{50, 25, 17},
	}
	for _, c := range cases {
		if got := crf(c.q); got != c.crf {
			t.Fatalf("crf(%d) = %d, want %d", c.q, got, c.crf)
		}
		if got := qscale(c.q); got != c.qs {
			t.Fatalf("qscale(%d) = %d, want %d", c.q, got, c.qs)
		}
	}
}

func TestOutputArgs(t *testing.T) {
	got := strings.Join(Software().OutputArgs(Quality{Video: 100, Audio: 50, FrameRate: 30}, true, "out.mp4"), " ")
	want := "-c:v libx264 -preset ultrafast -crf 0 -pix_fmt yuv420p -c:a aac -b:a 192k out.mp4"
	if got != want {
		t.Fatalf("args = %q, want %q", got, want)
	}

	got = strings.Join(xvid().OutputArgs(Quality{Video: 1}, false, "out.avi"), " ")
	if got != "-c:v libxvid -qscale:v 31 -pix_fmt yuv420p out.avi" {
		t.Fatalf("xvid args = %q", got)
	}
	if a := strings.Join(xvid().AudioArgs(100), " "); a != "-c:a libmp3lame -q:a 0" {
		t.Fatalf("mp3 args = %q", a)
	}
}

func TestOutputPath(t *testing.T) {
	if got := xvid().OutputPath("/tmp/rec.mp4"); got != "/tmp/rec.avi" {
		t.Fatalf("OutputPath = %q", got)
	}
	if got := (Preset{Extension: "mkv"}).OutputPath("rec"); got != "rec.mkv" {
		t.Fatalf("OutputPath = %q", got)
	}
}

func TestHardwareCandidates(t *testing.T) {
	linux := hardwareFor("linux", []string{"/dev/dri/renderD128"})
	var names []string
	for _, p := range linux {
		names = append(names, p.Name)
	}
	want := []string{"nvenc_h264", "nvenc_hevc", "vaapi_h264:renderD128", "qsv_h264", "qsv_hevc"}
	if !slices.Equal(names, want) {
		t.Fatalf("linux candidates = %v, want %v", names, want)
	}
	if !slices.Equal(linux[2].GlobalArgs, []string{"-vaapi_device", "/dev/dri/renderD128"}) {
		t.Fatalf("vaapi global args = %v", linux[2].GlobalArgs)
	}
	if got := hardwareFor("darwin", nil); len(got) != 1 || got[0].Encoder != "h264_videotoolbox" {
		t.Fatalf("darwin candidates = %+v", got)
	}
	for _, p := range hardwareFor("windows", nil) {
		if !p.Hardware {
			t.Fatalf("%s not marked hardware", p.Name)
		}
	}
}

func TestLoadCustom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codecs.yaml")
	data := `presets:
  - name: x264
    extension: .mkv
    args: [-c:v, libx264, -crf, "{crf}"]
    audio: opus
  - name: hevc
    args: [-c:v, libx265, -x265-params, "crf={crf}"]
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	custom, err := LoadCustom(path)
	if err != nil {
		t.Fatalf("LoadCustom: %v", err)
	}
	if len(custom) != 2 || custom[1].Encoder != "libx265" {
		t.Fatalf("custom = %+v", custom)
	}

	c := NewCatalog(custom...)
	p, err := c.Lookup("x264")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if p.Extension != ".mkv" || p.Audio != AudioOpus {
		t.Fatalf("custom preset did not shadow builtin: %+v", p)
	}
	n := 0
	for _, q := range c.All() {
		if q.Name == "x264" {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("x264 listed %d times", n)
	}
	if _, err := c.Lookup("nope"); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("Lookup(nope) err = %v", err)
	}
}

func TestLoadCustomRejectsBadAudio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codecs.yaml")
	if err := os.WriteFile(path, []byte("presets:\n  - name: a\n    args: [x]\n    audio: flac\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadCustom(path); err == nil {
		t.Fatal("unknown audio codec accepted")
	}
}

func TestParseEncoders(t *testing.T) {
	got := parseEncoders([]byte(encodersOutput))
	for _, name := range []string{"libx264", "h264_nvenc", "aac"} {
		if _, ok := got[name]; !ok {
			t.Fatalf("%s missing from %v", name, got)
		}
	}
	if _, ok := got["="]; ok {
		t.Fatal("legend parsed as encoder")
	}
}

func TestSelectSkipsFailingProbe(t *testing.T) {
	sup := helperSupervisor(t)
	candidates := []Preset{nvenc("h264"), amf("h264"), qsv("h264")}

	got, reason := Select(context.Background(), sup, candidates, Software())
	if got.Name != "qsv_h264" || reason != "" {
		t.Fatalf("Select = %s (%s), want qsv_h264", got.Name, reason)
	}
	if sup.Registry().Len() != 0 {
		t.Fatalf("probe processes left registered: %d", sup.Registry().Len())
	}
}

func TestSelectFallback(t *testing.T) {
	sup := helperSupervisor(t)
	got, reason := Select(context.Background(), sup, []Preset{nvenc("h264")}, Software())
	if got.Name != "x264" || reason != "all_hardware_probes_failed" {
		t.Fatalf("Select = %s (%s)", got.Name, reason)
	}

	missing := supervisor.New(supervisor.Options{Resolver: supervisor.Resolver{Path: filepath.Join(t.TempDir(), "ffmpeg")}})
	if _, reason := Select(context.Background(), missing, []Preset{nvenc("h264")}, Software()); reason != "ffmpeg_not_found" {
		t.Fatalf("reason = %q, want ffmpeg_not_found", reason)
	}
}
