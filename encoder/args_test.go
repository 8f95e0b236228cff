package encoder

import (
	"strings"
	"testing"
)

func TestBuildArgs(t *testing.T) {
	opts, err := normalizeOptions(&Options{
		Video:       VideoOptions{Width: 1920, Height: 1080, FrameRate: 25, Format: PixelFormatBGRA, ScaleWidth: 1279, ScaleHeight: 719},
		Audio:       &AudioOptions{SampleRate: 44100, Channels: 2},
		OutputArgs:  []string{"-c:v", "libx264", "out.mp4"},
		GlobalArgs:  []string{"-vaapi_device", "/dev/dri/renderD128"},
		VideoFilter: "format=nv12,hwupload",
	})
	if err != nil {
		t.Fatalf("normalizeOptions: %v", err)
	}

	got := strings.Join(buildArgs(opts, "unix:/tmp/v.sock", "unix:/tmp/a.sock"), " ")
	for _, want := range []string{
		"-thread_queue_size 512 -framerate 25 -f rawvideo -pix_fmt bgra -video_size 1920x1080 -i unix:/tmp/v.sock",
		"-thread_queue_size 512 -f s16le -acodec pcm_s16le -ar 44100 -ac 2 -i unix:/tmp/a.sock",
		"-map 0:v:0 -map 1:a:0",
		"-vf scale=1280:720,format=nv12,hwupload",
		"-hide_banner -y -vaapi_device /dev/dri/renderD128 -thread_queue_size",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("args %q missing %q", got, want)
		}
	}
	if !strings.HasSuffix(got, "-c:v libx264 out.mp4") {
		t.Fatalf("output args must come last: %q", got)
	}
	if strings.Index(got, "a.sock") > strings.Index(got, "libx264") {
		t.Fatalf("inputs must precede output args: %q", got)
	}
}

func TestBuildAudioOnlyArgs(t *testing.T) {
	got := strings.Join(buildAudioOnlyArgs(AudioOptions{SampleRate: 48000, Channels: 1}, []string{"out.wav"}), " ")
	if !strings.Contains(got, "-f s16le -acodec pcm_s16le -ar 48000 -ac 1 -i pipe:0 -vn out.wav") {
		t.Fatalf("args = %q", got)
	}
}

func TestNormalizeOptions(t *testing.T) {
	if _, err := normalizeOptions(&Options{Video: VideoOptions{Width: 641, Height: 360}, OutputArgs: []string{"x"}}); err == nil {
		t.Fatal("odd nv12 width accepted")
	}
	if _, err := normalizeOptions(&Options{Video: VideoOptions{Width: 640, Height: 360}}); err == nil {
		t.Fatal("missing output args accepted")
	}

	opts, err := normalizeOptions(&Options{
		Video:      VideoOptions{Width: 640, Height: 360, FrameRate: 1000},
		Audio:      &AudioOptions{},
		OutputArgs: []string{"x"},
	})
	if err != nil {
		t.Fatalf("normalizeOptions: %v", err)
	}
	if opts.Video.Format != PixelFormatNV12 {
		t.Fatalf("format = %v, want nv12", opts.Video.Format)
	}
	if opts.Video.FrameRate != 240 {
		t.Fatalf("fps = %d, want 240", opts.Video.FrameRate)
	}
	if opts.Audio.SampleRate != 48000 || opts.Audio.Channels != 2 {
		t.Fatalf("audio = %+v, want 48000/2", *opts.Audio)
	}
	if opts.ConnectTimeout != defaultConnectTimeout || opts.AudioWriteTimeout != defaultAudioWriteTimeout {
		t.Fatalf("timeouts not defaulted: %+v", opts)
	}
}

func TestFrameSize(t *testing.T) {
	if got := PixelFormatNV12.FrameSize(640, 360); got != 345600 {
		t.Fatalf("nv12 = %d, want 345600", got)
	}
	if got := PixelFormatBGRA.FrameSize(640, 360); got != 921600 {
		t.Fatalf("bgra = %d, want 921600", got)
	}
}
