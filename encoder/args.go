package encoder

import (
	"fmt"
	"strconv"
	"strings"

	"go2tv.app/screenrec/internal/logging"
)

func globalArgs() []string {
	args := []string{"-hide_banner", "-y"}
	if logging.DebugEnabled() {
		args = append(args, "-loglevel", "debug")
	}
	return args
}

func videoInputArgs(v VideoOptions, queue int, url string) []string {
	return []string{
		"-thread_queue_size", strconv.Itoa(queue),
		"-framerate", strconv.Itoa(v.FrameRate),
		"-f", "rawvideo",
		"-pix_fmt", v.Format.String(),
		"-video_size", fmt.Sprintf("%dx%d", v.Width, v.Height),
		"-i", url,
	}
}

func audioInputArgs(a AudioOptions, queue int, url string) []string {
	return []string{
		"-thread_queue_size", strconv.Itoa(queue),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(a.SampleRate),
		"-ac", strconv.Itoa(a.Channels),
		"-i", url,
	}
}

// buildArgs assembles the full command line for a video (plus optional
// audio) recording. audioURL is ignored when opts.Audio is nil.
func buildArgs(opts *Options, videoURL, audioURL string) []string {
	args := append(globalArgs(), opts.GlobalArgs...)
	args = append(args, videoInputArgs(opts.Video, opts.ThreadQueueSize, videoURL)...)
	if opts.Audio != nil {
		args = append(args, audioInputArgs(*opts.Audio, opts.ThreadQueueSize, audioURL)...)
		args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	} else {
		args = append(args, "-map", "0:v:0")
	}

	args = append(args, "-r", strconv.Itoa(opts.Video.FrameRate))
	if vf := videoFilter(opts); vf != "" {
		args = append(args, "-vf", vf)
	}
	return append(args, opts.OutputArgs...)
}

func videoFilter(opts *Options) string {
	var chain []string
	if opts.Video.ScaleWidth > 0 && opts.Video.ScaleHeight > 0 {
		chain = append(chain, fmt.Sprintf("scale=%d:%d", opts.Video.ScaleWidth, opts.Video.ScaleHeight))
	}
	if opts.VideoFilter != "" {
		chain = append(chain, opts.VideoFilter)
	}
	return strings.Join(chain, ",")
}

// buildAudioOnlyArgs reads PCM from stdin and drops any video stream.
func buildAudioOnlyArgs(a AudioOptions, outputArgs []string) []string {
	args := globalArgs()
	args = append(args,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(a.SampleRate),
		"-ac", strconv.Itoa(a.Channels),
		"-i", "pipe:0",
		"-vn",
	)
	return append(args, outputArgs...)
}
