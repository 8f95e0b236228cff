package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"go2tv.app/screenrec/internal/logging"
)

// SweepOptions select leftover encoder processes.
type SweepOptions struct {
	// Marker must appear in the command line, normally the channel prefix.
	Marker string
	// ExeName, when set, must match the executable base name (without
	// extension, case-insensitive).
	ExeName string
	// IncludeAttached also kills matches whose parent is still alive.
	IncludeAttached bool
}

// SweepOrphans kills encoder processes left behind by an earlier run that
// died before it could clean up. It returns the number of processes killed.
func SweepOrphans(ctx context.Context, opts SweepOptions) (int, error) {
	if opts.Marker == "" {
		return 0, nil
	}

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return 0, err
	}

	self := int32(os.Getpid())
	killed := 0
	for _, proc := range procs {
		if proc.Pid == self {
			continue
		}
		if !sweepMatch(ctx, proc, opts) {
			continue
		}
		if err := proc.KillWithContext(ctx); err != nil {
			log.Warn("orphan kill failed", logging.KeyPID, proc.Pid, "error", err)
			continue
		}
		killed++
		log.Info("killed orphaned encoder", logging.KeyPID, proc.Pid)
	}
	return killed, nil
}

func sweepMatch(ctx context.Context, proc *process.Process, opts SweepOptions) bool {
	cmdline, err := proc.CmdlineWithContext(ctx)
	if err != nil || !strings.Contains(cmdline, opts.Marker) {
		return false
	}

	if opts.ExeName != "" {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			return false
		}
		if !strings.EqualFold(ExeName(name), ExeName(opts.ExeName)) {
			return false
		}
	}

	if opts.IncludeAttached {
		return true
	}
	return orphaned(ctx, proc)
}

// ExeName is the base name of an executable path without its extension.
func ExeName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func orphaned(ctx context.Context, proc *process.Process) bool {
	ppid, err := proc.PpidWithContext(ctx)
	if err != nil {
		return false
	}
	if ppid <= 1 {
		return true
	}
	alive, err := process.PidExistsWithContext(ctx, ppid)
	return err == nil && !alive
}
