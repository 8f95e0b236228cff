package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"go2tv.app/screenrec/audio"
	"go2tv.app/screenrec/encoder"
	"go2tv.app/screenrec/internal/codec"
	"go2tv.app/screenrec/internal/logging"
	"go2tv.app/screenrec/internal/pipe"
	"go2tv.app/screenrec/internal/portal"
	"go2tv.app/screenrec/internal/supervisor"
	"go2tv.app/screenrec/record"
	"go2tv.app/screenrec/video"
)

var log = logging.L("cli")

var recordFlags struct {
	output    string
	duration  time.Duration
	codec     string
	fps       int
	size      string
	audio     []string
	audioOnly bool
	static    bool
	ffmpeg    string
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record the test pattern and the configured audio sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRecordFlags(cmd); err != nil {
			return err
		}
		cfg.Validate()
		return runRecord(cmd.Context())
	},
}

func init() {
	f := recordCmd.Flags()
	f.StringVarP(&recordFlags.output, "output", "o", "", "output file")
	f.DurationVarP(&recordFlags.duration, "duration", "d", 0, "stop after this long (0 records until interrupted)")
	f.StringVar(&recordFlags.codec, "codec", "", "codec preset name or \"auto\"")
	f.IntVar(&recordFlags.fps, "fps", 0, "frame rate")
	f.StringVar(&recordFlags.size, "size", "", "frame size as WIDTHxHEIGHT")
	f.StringSliceVar(&recordFlags.audio, "audio", nil, "audio sources to mix: default, tone:<hz>, <demuxer>:<device>")
	f.BoolVar(&recordFlags.audioOnly, "audio-only", false, "record audio only")
	f.BoolVar(&recordFlags.static, "static", false, "draw the pattern once and repeat it")
	f.StringVar(&recordFlags.ffmpeg, "ffmpeg", "", "path to the ffmpeg executable")
}

func applyRecordFlags(cmd *cobra.Command) error {
	f := cmd.Flags()
	if f.Changed("output") {
		cfg.Output = recordFlags.output
	}
	if f.Changed("codec") {
		cfg.Codec = recordFlags.codec
	}
	if f.Changed("fps") {
		cfg.FrameRate = recordFlags.fps
	}
	if f.Changed("audio") {
		cfg.AudioSources = recordFlags.audio
	}
	if f.Changed("audio-only") {
		cfg.AudioOnly = recordFlags.audioOnly
	}
	if f.Changed("ffmpeg") {
		cfg.FFmpegPath = recordFlags.ffmpeg
	}
	if f.Changed("size") {
		w, h, err := parseSize(recordFlags.size)
		if err != nil {
			return err
		}
		cfg.Width, cfg.Height = w, h
	}
	return nil
}

func parseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("size %q: want WIDTHxHEIGHT", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, err)
	}
	return w, h, nil
}

func newSupervisor(reg *supervisor.Registry) *supervisor.Supervisor {
	return supervisor.New(supervisor.Options{
		Resolver: supervisor.Resolver{Path: cfg.FFmpegPath, Dir: cfg.FFmpegDir},
		Registry: reg,
	})
}

func loadCatalog() (*codec.Catalog, error) {
	if cfg.CodecsFile == "" {
		return codec.NewCatalog(), nil
	}
	custom, err := codec.LoadCustom(cfg.CodecsFile)
	if err != nil {
		return nil, err
	}
	return codec.NewCatalog(custom...), nil
}

func choosePreset(ctx context.Context, sup *supervisor.Supervisor) (codec.Preset, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return codec.Preset{}, err
	}
	if cfg.Codec != codec.NameAuto {
		return catalog.Lookup(cfg.Codec)
	}
	preset, reason := codec.Select(ctx, sup, codec.Hardware(), codec.Software())
	if reason != "" {
		log.Info("using software encoder", "reason", reason)
	}
	return preset, nil
}

func buildSources(sup *supervisor.Supervisor) ([]audio.Source, error) {
	var sources []audio.Source
	for _, spec := range cfg.AudioSources {
		src, err := parseSource(sup, spec)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func parseSource(sup *supervisor.Supervisor, spec string) (audio.Source, error) {
	if spec == "default" {
		return audio.NewDeviceSource(sup, audio.DeviceOptions{})
	}
	kind, rest, ok := strings.Cut(spec, ":")
	if !ok {
		return nil, fmt.Errorf("audio source %q: want default, tone:<hz> or <demuxer>:<device>", spec)
	}
	if kind == "tone" {
		freq, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return nil, fmt.Errorf("audio source %q: %w", spec, err)
		}
		return audio.NewToneSource(audio.DefaultRate, 2, freq), nil
	}
	return audio.NewDeviceSource(sup, audio.DeviceOptions{InputFormat: kind, Device: rest})
}

func outputPath(p codec.Preset) string {
	if filepath.Ext(cfg.Output) != "" {
		return cfg.Output
	}
	return p.OutputPath(cfg.Output)
}

// sweepOrphans only matches encoder executables reading one of our channels.
func sweepOrphans(ctx context.Context, sup *supervisor.Supervisor) {
	bin, err := sup.Executable()
	if err != nil {
		return
	}
	n, err := supervisor.SweepOrphans(ctx, supervisor.SweepOptions{
		Marker:  pipe.Marker(pipe.DefaultPrefix),
		ExeName: supervisor.ExeName(bin),
	})
	if err != nil {
		log.Warn("orphan sweep failed", logging.KeyError, err)
	} else if n > 0 {
		log.Info("killed orphaned encoders", "count", n)
	}
}

func runRecord(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := supervisor.NewRegistry()
	defer reg.GuardPanic(cfg.KillWait)
	defer func() {
		if n := reg.KillAll(cfg.KillWait); n > 0 {
			log.Warn("killed leftover encoder processes", "count", n)
		}
	}()
	sup := newSupervisor(reg)

	if cfg.SweepOrphans {
		sweepOrphans(ctx, sup)
	}

	preset, err := choosePreset(ctx, sup)
	if err != nil {
		return err
	}

	sources, err := buildSources(sup)
	if err != nil {
		return err
	}
	var mixer *audio.Mixer
	if len(sources) > 0 {
		mixer, err = audio.NewMixer(sources, &audio.MixerOptions{
			HighWatermark: cfg.HighWatermark,
			TargetLatency: cfg.TargetLatency,
			DropCap:       cfg.DropCap,
		})
		if err != nil {
			return err
		}
	}

	opts := record.Options{
		FrameRate: cfg.FrameRate,
		Duration:  recordFlags.duration,
	}
	if mixer != nil {
		opts.Audio = mixer
	}
	if cfg.InhibitIdle {
		opts.Inhibit = portal.InhibitIdle
	}

	// The encoder is shut down by Close; an interrupt only ends the
	// recording loop.
	encCtx := context.WithoutCancel(ctx)
	quality := codec.Quality{Video: cfg.VideoQuality, Audio: cfg.AudioQuality, FrameRate: cfg.FrameRate}
	out := outputPath(preset)

	if cfg.AudioOnly {
		if mixer == nil {
			return errors.New("audio-only recording without audio sources")
		}
		f := mixer.Format()
		aw, err := encoder.NewAudioWriter(encCtx, sup, encoder.AudioWriterOptions{
			Audio:       encoder.AudioOptions{SampleRate: f.SampleRate, Channels: f.Channels},
			OutputArgs:  append(preset.AudioArgs(cfg.AudioQuality), out),
			StopTimeout: cfg.StopTimeout,
			KillWait:    cfg.KillWait,
		})
		if err != nil {
			return err
		}
		opts.AudioSink = aw
	} else {
		format, err := encoder.ParsePixelFormat(cfg.PixelFormat)
		if err != nil {
			return err
		}
		pattern, err := video.NewPattern(video.PatternOptions{
			Width:  cfg.Width,
			Height: cfg.Height,
			Format: format,
			Static: recordFlags.static,
		})
		if err != nil {
			return err
		}

		encOpts := &encoder.Options{
			Video: encoder.VideoOptions{
				Width:       cfg.Width,
				Height:      cfg.Height,
				FrameRate:   cfg.FrameRate,
				Format:      format,
				ScaleWidth:  cfg.ScaleWidth,
				ScaleHeight: cfg.ScaleHeight,
			},
			OutputArgs:        preset.OutputArgs(quality, mixer != nil, out),
			GlobalArgs:        preset.GlobalArgs,
			VideoFilter:       preset.VideoFilter,
			ConnectTimeout:    cfg.ConnectTimeout,
			AudioWriteTimeout: cfg.AudioWriteTimeout,
			DrainTimeout:      cfg.DrainTimeout,
			StopTimeout:       cfg.StopTimeout,
			KillWait:          cfg.KillWait,
		}
		if mixer != nil {
			f := mixer.Format()
			encOpts.Audio = &encoder.AudioOptions{SampleRate: f.SampleRate, Channels: f.Channels}
		}
		w, err := encoder.New(encCtx, sup, encOpts)
		if err != nil {
			return err
		}
		opts.Video = pattern
		opts.Sink = w
	}

	rec, err := record.New(opts)
	if err != nil {
		return errors.Join(err, closeSink(opts))
	}

	log.Info("recording", "output", out, "codec", preset.Name, "hardware", preset.Hardware)
	if err := rec.Run(ctx); err != nil {
		return err
	}
	st := rec.Stats()
	fmt.Printf("wrote %s: %d frames (%d repeated), %d audio bytes in %s\n",
		out, st.Frames, st.Repeats, st.AudioBytes, st.Elapsed.Round(time.Millisecond))
	return nil
}

func closeSink(opts record.Options) error {
	var c io.Closer = opts.AudioSink
	if opts.Sink != nil {
		c = opts.Sink
	}
	if c == nil {
		return nil
	}
	return c.Close()
}
