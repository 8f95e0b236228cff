package supervisor

import (
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultTailLines = 32

// Progress is the last status line the encoder printed.
type Progress struct {
	Frame int64
	FPS   float64
	Time  time.Duration
	Speed float64
}

// LogSink consumes the encoder's stderr. Lines (ffmpeg terminates status
// updates with '\r') are forwarded to the debug log and an optional extra
// writer, the most recent ones are kept for error reports and status lines
// are parsed into Progress.
type LogSink struct {
	label  string
	logger *slog.Logger
	extra  io.Writer

	mu       sync.Mutex
	partial  []byte
	tail     []string
	maxTail  int
	progress Progress
	lines    int
}

func newLogSink(label string, logger *slog.Logger, extra io.Writer) *LogSink {
	return &LogSink{label: label, logger: logger, extra: extra, maxTail: defaultTailLines}
}

func (s *LogSink) Write(p []byte) (int, error) {
	if s.extra != nil {
		_, _ = s.extra.Write(p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.partial = append(s.partial, p...)
	for {
		i := indexLineEnd(s.partial)
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(s.partial[:i]))
		s.partial = s.partial[i+1:]
		if line != "" {
			s.lineLocked(line)
		}
	}
	return len(p), nil
}

func indexLineEnd(b []byte) int {
	for i, c := range b {
		if c == '\n' || c == '\r' {
			return i
		}
	}
	return -1
}

func (s *LogSink) lineLocked(line string) {
	s.lines++
	if len(s.tail) == s.maxTail {
		copy(s.tail, s.tail[1:])
		s.tail = s.tail[:len(s.tail)-1]
	}
	s.tail = append(s.tail, line)

	if p, ok := parseProgress(line); ok {
		s.progress = p
		return
	}
	if s.logger != nil {
		s.logger.Debug("encoder output", "label", s.label, "line", line)
	}
}

// Tail returns the most recent stderr lines joined by newlines.
func (s *LogSink) Tail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := strings.Join(s.tail, "\n")
	if len(s.partial) > 0 {
		if out != "" {
			out += "\n"
		}
		out += strings.TrimSpace(string(s.partial))
	}
	return out
}

// Progress returns the last parsed status line.
func (s *LogSink) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Lines reports how many non-empty lines were seen.
func (s *LogSink) Lines() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lines
}

// parseProgress understands lines such as
// "frame=  120 fps= 30 q=23.0 size=  512kB time=00:00:04.00 bitrate= 1048.6kbits/s speed=1.00x".
func parseProgress(line string) (Progress, bool) {
	if !strings.HasPrefix(line, "frame=") && !strings.HasPrefix(line, "size=") {
		return Progress{}, false
	}

	var p Progress
	found := false
	for strings.Contains(line, "= ") {
		line = strings.ReplaceAll(line, "= ", "=")
	}
	fields := strings.Fields(line)
	for _, f := range fields {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		switch k {
		case "frame":
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				p.Frame = n
				found = true
			}
		case "fps":
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				p.FPS = n
			}
		case "time":
			if d, ok := parseClock(v); ok {
				p.Time = d
				found = true
			}
		case "speed":
			if n, err := strconv.ParseFloat(strings.TrimSuffix(v, "x"), 64); err == nil {
				p.Speed = n
			}
		}
	}
	return p, found
}

// parseClock parses HH:MM:SS.ss.
func parseClock(v string) (time.Duration, bool) {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.ParseFloat(parts[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute
	return d + time.Duration(sec*float64(time.Second)), true
}

func tailString(input string, max int) string {
	if input == "" {
		return "no encoder stderr output"
	}
	if max <= 0 || len(input) <= max {
		return input
	}
	return input[len(input)-max:]
}
