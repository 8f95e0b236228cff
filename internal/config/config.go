package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "screenrec.yaml"

type Config struct {
	FFmpegPath string `mapstructure:"ffmpeg_path"`
	FFmpegDir  string `mapstructure:"ffmpeg_dir"`

	Output      string `mapstructure:"output"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	FrameRate   int    `mapstructure:"frame_rate"`
	PixelFormat string `mapstructure:"pixel_format"`
	ScaleWidth  int    `mapstructure:"scale_width"`
	ScaleHeight int    `mapstructure:"scale_height"`

	Codec        string `mapstructure:"codec"`
	CodecsFile   string `mapstructure:"codecs_file"`
	VideoQuality int    `mapstructure:"video_quality"`
	AudioQuality int    `mapstructure:"audio_quality"`

	// AudioSources lists inputs to mix: "default", "tone:<hz>" or
	// "<demuxer>:<device>" such as "pulse:alsa_input.usb-mic".
	AudioSources []string `mapstructure:"audio_sources"`
	AudioOnly    bool     `mapstructure:"audio_only"`

	HighWatermark time.Duration `mapstructure:"high_watermark"`
	TargetLatency time.Duration `mapstructure:"target_latency"`
	DropCap       time.Duration `mapstructure:"drop_cap"`

	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	AudioWriteTimeout time.Duration `mapstructure:"audio_write_timeout"`
	DrainTimeout      time.Duration `mapstructure:"drain_timeout"`
	StopTimeout       time.Duration `mapstructure:"stop_timeout"`
	KillWait          time.Duration `mapstructure:"kill_wait"`

	InhibitIdle  bool `mapstructure:"inhibit_idle"`
	SweepOrphans bool `mapstructure:"sweep_orphans"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

func Default() *Config {
	return &Config{
		Output:            "recording.mp4",
		Width:             1280,
		Height:            720,
		FrameRate:         30,
		PixelFormat:       "nv12",
		Codec:             "auto",
		VideoQuality:      70,
		AudioQuality:      50,
		HighWatermark:     600 * time.Millisecond,
		TargetLatency:     500 * time.Millisecond,
		DropCap:           100 * time.Millisecond,
		ConnectTimeout:    5 * time.Second,
		AudioWriteTimeout: time.Second,
		DrainTimeout:      5 * time.Second,
		StopTimeout:       10 * time.Second,
		KillWait:          2 * time.Second,
		InhibitIdle:       true,
		SweepOrphans:      true,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

func newViper(cfg *Config) *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("SCREENREC")
	v.AutomaticEnv()
	set(cfg, v.SetDefault)
	return v
}

// set feeds every field to fn. It backs both defaults (so AutomaticEnv can
// see every key) and Save. Durations are written as strings like "500ms".
func set(c *Config, fn func(string, any)) {
	fn("ffmpeg_path", c.FFmpegPath)
	fn("ffmpeg_dir", c.FFmpegDir)
	fn("output", c.Output)
	fn("width", c.Width)
	fn("height", c.Height)
	fn("frame_rate", c.FrameRate)
	fn("pixel_format", c.PixelFormat)
	fn("scale_width", c.ScaleWidth)
	fn("scale_height", c.ScaleHeight)
	fn("codec", c.Codec)
	fn("codecs_file", c.CodecsFile)
	fn("video_quality", c.VideoQuality)
	fn("audio_quality", c.AudioQuality)
	fn("audio_sources", c.AudioSources)
	fn("audio_only", c.AudioOnly)
	fn("high_watermark", c.HighWatermark.String())
	fn("target_latency", c.TargetLatency.String())
	fn("drop_cap", c.DropCap.String())
	fn("connect_timeout", c.ConnectTimeout.String())
	fn("audio_write_timeout", c.AudioWriteTimeout.String())
	fn("drain_timeout", c.DrainTimeout.String())
	fn("stop_timeout", c.StopTimeout.String())
	fn("kill_wait", c.KillWait.String())
	fn("inhibit_idle", c.InhibitIdle)
	fn("sweep_orphans", c.SweepOrphans)
	fn("log_level", c.LogLevel)
	fn("log_format", c.LogFormat)
	fn("log_file", c.LogFile)
}

// Load reads cfgFile, or screenrec.yaml from the config directory or the
// working directory when cfgFile is empty. A missing default file is not an
// error. SCREENREC_* environment variables override file values.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := newViper(cfg)

	if cfgFile == "" {
		cfgFile = findDefault()
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// findDefault returns the first existing FileName in the config directory or
// the working directory. The full name is checked so an extensionless
// "screenrec" (the binary itself) is never read as config.
func findDefault() string {
	var dirs []string
	if dir, err := Dir(); err == nil {
		dirs = append(dirs, dir)
	}
	dirs = append(dirs, ".")
	for _, dir := range dirs {
		path := filepath.Join(dir, FileName)
		if fi, err := os.Stat(path); err == nil && fi.Mode().IsRegular() {
			return path
		}
	}
	return ""
}

// Save writes cfg to the default location.
func Save(cfg *Config) error {
	return SaveTo(cfg, "")
}

// SaveTo writes cfg as YAML to cfgFile, or to the default location when
// cfgFile is empty.
func SaveTo(cfg *Config, cfgFile string) error {
	v := viper.New()
	set(cfg, v.Set)

	cfgPath := cfgFile
	if cfgPath == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		cfgPath = filepath.Join(dir, FileName)
	}
	if dir := filepath.Dir(cfgPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return v.WriteConfigAs(cfgPath)
}

// Dir is the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "screenrec"), nil
}
