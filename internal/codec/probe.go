package codec

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go2tv.app/screenrec/internal/logging"
	"go2tv.app/screenrec/internal/supervisor"
)

var log = logging.L("codec")

// ProbeTimeout bounds each ffmpeg invocation made while probing.
const ProbeTimeout = 5 * time.Second

var errProbeTimeout = errors.New("probe timed out")

func run(ctx context.Context, sup *supervisor.Supervisor, label string, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	var out bytes.Buffer
	p, err := sup.Start(ctx, supervisor.StartOptions{Args: args, Label: label, Stdout: &out})
	if err != nil {
		return nil, err
	}
	select {
	case <-p.Done():
	case <-ctx.Done():
		p.Kill(time.Second)
		return nil, fmt.Errorf("%s: %w after %s", label, errProbeTimeout, ProbeTimeout)
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Available lists the encoders compiled into ffmpeg.
func Available(ctx context.Context, sup *supervisor.Supervisor) (map[string]struct{}, error) {
	out, err := run(ctx, sup, "ffmpeg-encoders", []string{"-hide_banner", "-encoders"})
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders: %w", err)
	}
	return parseEncoders(out), nil
}

func parseEncoders(out []byte) map[string]struct{} {
	encoders := make(map[string]struct{})
	sc := bufio.NewScanner(bytes.NewReader(out))
	listing := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !listing {
			// The legend ends with a "------" separator.
			listing = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = struct{}{}
	}
	return encoders
}

// Probe encodes a short synthetic clip with the preset and reports whether
// ffmpeg accepted it.
func Probe(ctx context.Context, sup *supervisor.Supervisor, p Preset) error {
	args := []string{"-v", "error", "-nostdin"}
	args = append(args, p.GlobalArgs...)
	args = append(args,
		"-f", "lavfi",
		"-i", "color=c=black:s=1280x720:r=30:d=0.5",
		"-an",
		"-frames:v", "8",
		"-r", "30",
	)
	if strings.TrimSpace(p.VideoFilter) != "" {
		args = append(args, "-vf", p.VideoFilter)
	}
	args = append(args, p.expand(Quality{Video: DefaultQuality, FrameRate: 30})...)
	args = append(args, "-f", "null", "-")

	_, err := run(ctx, sup, "probe:"+p.Name, args)
	return err
}

// Select returns the first candidate that is listed by ffmpeg and passes a
// probe, or fallback when none does. The second result names why the
// fallback was used and is empty otherwise.
func Select(ctx context.Context, sup *supervisor.Supervisor, candidates []Preset, fallback Preset) (Preset, string) {
	if len(candidates) == 0 {
		return fallback, "no_hardware_candidates"
	}
	if _, err := sup.Executable(); err != nil {
		log.Debug("encoder probe skipped", logging.KeyError, err)
		return fallback, "ffmpeg_not_found"
	}

	available, err := Available(ctx, sup)
	if err != nil {
		log.Debug("encoder list unavailable", logging.KeyError, err)
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return fallback, "cancelled"
		}
		if len(available) > 0 {
			if _, ok := available[c.Encoder]; !ok {
				log.Debug("encoder probe skipped", "preset", c.Name, "reason", "not_in_encoder_list")
				continue
			}
		}
		if err := Probe(ctx, sup, c); err != nil {
			log.Debug("encoder probe failed", "preset", c.Name, logging.KeyError, err)
			continue
		}
		log.Info("encoder selected", "preset", c.Name, "hardware", c.Hardware)
		return c, ""
	}
	log.Info("encoder selected", "preset", fallback.Name, "hardware", fallback.Hardware, "reason", "all_hardware_probes_failed")
	return fallback, "all_hardware_probes_failed"
}
