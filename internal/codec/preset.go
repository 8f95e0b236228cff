// Package codec describes the output encodings a recording can use: the
// ffmpeg encoder, its arguments at a given quality, the container extension
// and the matching audio codec.
package codec

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Audio codec names understood by Preset.AudioArgs.
const (
	AudioAAC  = "aac"
	AudioMP3  = "mp3"
	AudioOpus = "opus"
	AudioNone = "none"
)

// DefaultQuality is used when a quality outside 1..100 is requested.
const DefaultQuality = 70

// Preset is one output encoding. Args may reference {quality}, {crf},
// {qscale} and {fps}; they are expanded by OutputArgs.
type Preset struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Encoder     string   `yaml:"encoder"`
	Hardware    bool     `yaml:"hardware"`
	Extension   string   `yaml:"extension"`
	GlobalArgs  []string `yaml:"global_args"`
	VideoFilter string   `yaml:"video_filter"`
	Args        []string `yaml:"args"`
	Audio       string   `yaml:"audio"`
}

// Quality holds the user-facing 1..100 quality knobs.
type Quality struct {
	Video     int
	Audio     int
	FrameRate int
}

func clampQuality(q int) int {
	if q < 1 || q > 100 {
		return DefaultQuality
	}
	return q
}

// crf maps quality onto the 0..51 scale shared by x264, nvenc -cq and the
// constant-QP modes. Higher quality means a lower value.
func crf(q int) int {
	return (100 - clampQuality(q)) * 51 / 100
}

// qscale maps quality onto the 1..31 MPEG-4 scale.
func qscale(q int) int {
	return 31 - (clampQuality(q)-1)*30/99
}

func (p Preset) expand(q Quality) []string {
	r := strings.NewReplacer(
		"{quality}", strconv.Itoa(clampQuality(q.Video)),
		"{crf}", strconv.Itoa(crf(q.Video)),
		"{qscale}", strconv.Itoa(qscale(q.Video)),
		"{fps}", strconv.Itoa(q.FrameRate),
	)
	out := make([]string, len(p.Args))
	for i, a := range p.Args {
		out[i] = r.Replace(a)
	}
	return out
}

// AudioArgs returns the audio codec arguments for the preset at the given
// 1..100 quality. An empty result means the output carries no audio.
func (p Preset) AudioArgs(quality int) []string {
	q := clampQuality(quality)
	switch p.Audio {
	case AudioNone:
		return []string{"-an"}
	case AudioMP3:
		// libmp3lame VBR: 0 is best, 9 worst.
		return []string{"-c:a", "libmp3lame", "-q:a", strconv.Itoa(9 - (q-1)*9/99)}
	case AudioOpus:
		return []string{"-c:a", "libopus", "-b:a", fmt.Sprintf("%dk", 32+q*224/100)}
	default:
		return []string{"-c:a", "aac", "-b:a", fmt.Sprintf("%dk", audioBitrate(q))}
	}
}

func audioBitrate(q int) int {
	kbps := 64 + q*256/100
	return kbps - kbps%32
}

// OutputArgs returns everything that follows the inputs: video codec
// arguments, audio arguments when withAudio is set and the destination.
func (p Preset) OutputArgs(q Quality, withAudio bool, output string) []string {
	args := p.expand(q)
	if withAudio {
		args = append(args, p.AudioArgs(q.Audio)...)
	}
	return append(args, output)
}

// OutputPath replaces the extension of name with the preset's.
func (p Preset) OutputPath(name string) string {
	ext := p.Extension
	if ext == "" {
		ext = ".mp4"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}

func (p Preset) validate() error {
	if p.Name == "" {
		return fmt.Errorf("preset without name")
	}
	if len(p.Args) == 0 {
		return fmt.Errorf("preset %q: no args", p.Name)
	}
	switch p.Audio {
	case "", AudioAAC, AudioMP3, AudioOpus, AudioNone:
	default:
		return fmt.Errorf("preset %q: unknown audio codec %q", p.Name, p.Audio)
	}
	return nil
}

// Software is the fallback used when no hardware encoder works.
func Software() Preset {
	return Preset{
		Name:        "x264",
		Description: "H.264 (libx264)",
		Encoder:     "libx264",
		Extension:   ".mp4",
		Args: []string{
			"-c:v", "libx264",
			"-preset", "ultrafast",
			"-crf", "{crf}",
			"-pix_fmt", "yuv420p",
		},
		Audio: AudioAAC,
	}
}

func xvid() Preset {
	return Preset{
		Name:        "xvid",
		Description: "MPEG-4 Part 2 (libxvid)",
		Encoder:     "libxvid",
		Extension:   ".avi",
		Args:        []string{"-c:v", "libxvid", "-qscale:v", "{qscale}", "-pix_fmt", "yuv420p"},
		Audio:       AudioMP3,
	}
}

func nvenc(codec string) Preset {
	return Preset{
		Name:        "nvenc_" + codec,
		Description: strings.ToUpper(codec) + " (NVIDIA NVENC)",
		Encoder:     codec + "_nvenc",
		Hardware:    true,
		Extension:   ".mp4",
		VideoFilter: "format=yuv420p",
		Args:        []string{"-c:v", codec + "_nvenc", "-preset", "p4", "-rc", "vbr", "-cq", "{crf}", "-b:v", "0"},
		Audio:       AudioAAC,
	}
}

func amf(codec string) Preset {
	return Preset{
		Name:        "amf_" + codec,
		Description: strings.ToUpper(codec) + " (AMD AMF)",
		Encoder:     codec + "_amf",
		Hardware:    true,
		Extension:   ".mp4",
		VideoFilter: "format=yuv420p",
		Args:        []string{"-c:v", codec + "_amf", "-rc", "cqp", "-qp_i", "{crf}", "-qp_p", "{crf}"},
		Audio:       AudioAAC,
	}
}

func qsv(codec string) Preset {
	return Preset{
		Name:        "qsv_" + codec,
		Description: strings.ToUpper(codec) + " (Intel Quick Sync)",
		Encoder:     codec + "_qsv",
		Hardware:    true,
		Extension:   ".mp4",
		VideoFilter: "format=nv12",
		Args:        []string{"-c:v", codec + "_qsv", "-global_quality", "{crf}"},
		Audio:       AudioAAC,
	}
}

func vaapi(device string) Preset {
	return Preset{
		Name:        "vaapi_h264:" + filepath.Base(device),
		Description: fmt.Sprintf("H.264 (VAAPI %s)", device),
		Encoder:     "h264_vaapi",
		Hardware:    true,
		Extension:   ".mp4",
		GlobalArgs:  []string{"-vaapi_device", device},
		VideoFilter: "format=nv12,hwupload",
		Args:        []string{"-c:v", "h264_vaapi", "-qp", "{crf}"},
		Audio:       AudioAAC,
	}
}

func videotoolbox() Preset {
	return Preset{
		Name:        "videotoolbox_h264",
		Description: "H.264 (VideoToolbox)",
		Encoder:     "h264_videotoolbox",
		Hardware:    true,
		Extension:   ".mp4",
		VideoFilter: "format=yuv420p",
		Args:        []string{"-c:v", "h264_videotoolbox", "-q:v", "{quality}"},
		Audio:       AudioAAC,
	}
}

// Hardware returns the hardware presets worth probing on this platform, in
// order of preference.
func Hardware() []Preset {
	return hardwareFor(runtime.GOOS, renderDevices())
}

func renderDevices() []string {
	devices, err := filepath.Glob("/dev/dri/renderD*")
	if err != nil {
		return nil
	}
	return devices
}

func hardwareFor(goos string, devices []string) []Preset {
	switch goos {
	case "darwin":
		return []Preset{videotoolbox()}
	case "windows":
		return []Preset{
			nvenc("h264"), nvenc("hevc"),
			amf("h264"), amf("hevc"),
			qsv("h264"), qsv("hevc"),
		}
	default:
		candidates := []Preset{nvenc("h264"), nvenc("hevc")}
		for _, dev := range devices {
			candidates = append(candidates, vaapi(dev))
		}
		return append(candidates, qsv("h264"), qsv("hevc"))
	}
}

// Builtin lists every preset that ships with the recorder.
func Builtin() []Preset {
	return append([]Preset{Software(), xvid()}, Hardware()...)
}
