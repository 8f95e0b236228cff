package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

var validPixelFormats = map[string]bool{
	"nv12":  true,
	"bgra":  true,
	"rgb32": true,
}

// Validate checks the config for invalid values and returns all errors found.
// Values that would break the pipeline (zero sizes, out of range rates and
// qualities, non-positive timeouts) are clamped to safe defaults; the
// remaining errors are logged as warnings.
func (c *Config) Validate() []error {
	var errs []error
	def := Default()

	if c.Width < 16 || c.Height < 16 {
		errs = append(errs, fmt.Errorf("video size %dx%d is below minimum 16x16, using %dx%d", c.Width, c.Height, def.Width, def.Height))
		c.Width, c.Height = def.Width, def.Height
	}
	if strings.EqualFold(c.PixelFormat, "nv12") && (c.Width%2 != 0 || c.Height%2 != 0) {
		errs = append(errs, fmt.Errorf("nv12 needs even dimensions, rounding %dx%d down", c.Width, c.Height))
		c.Width &^= 1
		c.Height &^= 1
	}

	if c.FrameRate < 1 {
		errs = append(errs, fmt.Errorf("frame_rate %d is below minimum 1, clamping", c.FrameRate))
		c.FrameRate = 1
	} else if c.FrameRate > 240 {
		errs = append(errs, fmt.Errorf("frame_rate %d exceeds maximum 240, clamping", c.FrameRate))
		c.FrameRate = 240
	}

	if c.PixelFormat == "" {
		c.PixelFormat = def.PixelFormat
	} else if !validPixelFormats[strings.ToLower(c.PixelFormat)] {
		errs = append(errs, fmt.Errorf("pixel_format %q is not valid (use nv12 or bgra), using %s", c.PixelFormat, def.PixelFormat))
		c.PixelFormat = def.PixelFormat
	}

	if c.ScaleWidth < 0 || c.ScaleHeight < 0 || (c.ScaleWidth == 0) != (c.ScaleHeight == 0) {
		errs = append(errs, fmt.Errorf("scale %dx%d is not valid, disabling", c.ScaleWidth, c.ScaleHeight))
		c.ScaleWidth, c.ScaleHeight = 0, 0
	}

	c.VideoQuality = clampQuality("video_quality", c.VideoQuality, def.VideoQuality, &errs)
	c.AudioQuality = clampQuality("audio_quality", c.AudioQuality, def.AudioQuality, &errs)

	if c.Codec == "" {
		c.Codec = def.Codec
	}
	if strings.TrimSpace(c.Output) == "" {
		errs = append(errs, fmt.Errorf("output is empty, using %q", def.Output))
		c.Output = def.Output
	}
	if c.AudioOnly && len(c.AudioSources) == 0 {
		errs = append(errs, fmt.Errorf("audio_only without audio_sources, adding %q", "default"))
		c.AudioSources = []string{"default"}
	}

	clampDuration("high_watermark", &c.HighWatermark, def.HighWatermark, &errs)
	clampDuration("target_latency", &c.TargetLatency, def.TargetLatency, &errs)
	clampDuration("drop_cap", &c.DropCap, def.DropCap, &errs)
	if c.TargetLatency > c.HighWatermark {
		errs = append(errs, fmt.Errorf("target_latency %s exceeds high_watermark %s, clamping", c.TargetLatency, c.HighWatermark))
		c.TargetLatency = c.HighWatermark
	}

	clampDuration("connect_timeout", &c.ConnectTimeout, def.ConnectTimeout, &errs)
	clampDuration("audio_write_timeout", &c.AudioWriteTimeout, def.AudioWriteTimeout, &errs)
	clampDuration("drain_timeout", &c.DrainTimeout, def.DrainTimeout, &errs)
	clampDuration("stop_timeout", &c.StopTimeout, def.StopTimeout, &errs)
	clampDuration("kill_wait", &c.KillWait, def.KillWait, &errs)

	if c.LogLevel != "" && !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Errorf("log_level %q is not valid (use debug, info, warn, error)", c.LogLevel))
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("log_format %q is not valid (use text or json)", c.LogFormat))
	}

	for _, err := range errs {
		slog.Warn("config validation", "error", err)
	}
	return errs
}

func clampQuality(name string, q, def int, errs *[]error) int {
	if q >= 1 && q <= 100 {
		return q
	}
	*errs = append(*errs, fmt.Errorf("%s %d is outside 1..100, using %d", name, q, def))
	return def
}

func clampDuration(name string, d *time.Duration, def time.Duration, errs *[]error) {
	if *d > 0 {
		return
	}
	*errs = append(*errs, fmt.Errorf("%s %s is not positive, using %s", name, *d, def))
	*d = def
}
