package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const helperEnv = "SCREENREC_SUPERVISOR_HELPER"

// TestMain turns the test binary into a fake encoder when helperEnv is set.
func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(runHelper(mode))
	}
	os.Exit(m.Run())
}

func runHelper(mode string) int {
	switch {
	case mode == "wait-q":
		fmt.Fprintln(os.Stderr, "frame=   10 fps= 25 q=23.0 size=     256kB time=00:00:00.40 bitrate=5000.0kbits/s speed=1.00x")
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			if strings.TrimSpace(sc.Text()) == "q" {
				return 0
			}
		}
		return 0
	case strings.HasPrefix(mode, "exit="):
		code, _ := strconv.Atoi(strings.TrimPrefix(mode, "exit="))
		fmt.Fprintln(os.Stderr, "Conversion failed!")
		return code
	case mode == "sleep":
		time.Sleep(time.Minute)
		return 0
	}
	return 2
}

func newHelperSupervisor(t *testing.T, mode string, reg *Registry) *Supervisor {
	t.Helper()
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	return New(Options{
		Resolver:  Resolver{Path: self},
		Registry:  reg,
		Env:       []string{helperEnv + "=" + mode},
		WaitDelay: 2 * time.Second,
	})
}

func TestGracefulStop(t *testing.T) {
	reg := NewRegistry()
	s := newHelperSupervisor(t, "wait-q", reg)

	p, err := s.Start(context.Background(), StartOptions{Label: "test"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("registry len = %d, want 1", reg.Len())
	}

	if err := s.GracefulStop(p); err != nil {
		t.Fatalf("GracefulStop: %v", err)
	}
	if !p.Wait(5 * time.Second) {
		t.Fatal("process did not exit after graceful stop")
	}
	if p.State() != StateExited {
		t.Fatalf("state = %v, want exited", p.State())
	}
	if p.ExitCode() != 0 {
		t.Fatalf("exit code = %d, want 0", p.ExitCode())
	}
	if p.Err() != nil {
		t.Fatalf("Err = %v, want nil", p.Err())
	}
	if reg.Len() != 0 {
		t.Fatalf("registry len = %d after exit, want 0", reg.Len())
	}
	if got := p.Logs().Progress().Frame; got != 10 {
		t.Fatalf("progress frame = %d, want 10", got)
	}

	// A second stop is a no-op.
	if err := s.GracefulStop(p); err != nil {
		t.Fatalf("second GracefulStop: %v", err)
	}
}

func TestCrashReportsExitCode(t *testing.T) {
	reg := NewRegistry()
	s := newHelperSupervisor(t, "exit=3", reg)

	p, err := s.Start(context.Background(), StartOptions{Label: "crash"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !p.Wait(5 * time.Second) {
		t.Fatal("process did not exit")
	}
	if p.State() != StateCrashed {
		t.Fatalf("state = %v, want crashed", p.State())
	}
	if p.ExitCode() != 3 {
		t.Fatalf("exit code = %d, want 3", p.ExitCode())
	}
	if err := p.Err(); err == nil || !strings.Contains(err.Error(), "Conversion failed!") {
		t.Fatalf("Err = %v, want stderr tail", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry len = %d, want 0", reg.Len())
	}
}

func TestKillAll(t *testing.T) {
	reg := NewRegistry()
	s := newHelperSupervisor(t, "sleep", reg)

	var procs []*Process
	for i := 0; i < 3; i++ {
		p, err := s.Start(context.Background(), StartOptions{Label: "sleeper"})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		procs = append(procs, p)
	}

	if n := reg.KillAll(5 * time.Second); n != 3 {
		t.Fatalf("KillAll = %d, want 3", n)
	}
	if reg.Len() != 0 {
		t.Fatalf("registry len = %d, want 0", reg.Len())
	}
	for _, p := range procs {
		if !p.Exited() {
			t.Fatalf("pid %d still running", p.PID())
		}
		if p.State() != StateKilled {
			t.Fatalf("state = %v, want killed", p.State())
		}
	}
}

func TestKillAllRacesNaturalExit(t *testing.T) {
	reg := NewRegistry()
	s := newHelperSupervisor(t, "exit=0", reg)

	var wg sync.WaitGroup
	var procs []*Process
	for i := 0; i < 4; i++ {
		p, err := s.Start(context.Background(), StartOptions{})
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		procs = append(procs, p)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		reg.KillAll(5 * time.Second)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("KillAll deadlocked")
	}
	if reg.Len() != 0 {
		t.Fatalf("registry len = %d, want 0", reg.Len())
	}
	for _, p := range procs {
		p.Wait(5 * time.Second)
		if st := p.State(); st != StateExited && st != StateKilled {
			t.Fatalf("pid %d state = %v, want exited or killed", p.PID(), st)
		}
	}
}

func TestCleanExitRacingKillIsNotKilled(t *testing.T) {
	self, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	cmd := exec.Command(self)
	cmd.Env = append(os.Environ(), helperEnv+"=exit=0")
	err = cmd.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Kill was requested but the process had already finished with status 0.
	p := &Process{label: "raced", cmd: cmd, done: make(chan struct{})}
	p.killed.Store(true)
	p.finish(err)

	if p.State() != StateExited {
		t.Fatalf("state = %v, want exited", p.State())
	}
	if p.Killed() {
		t.Fatal("Killed() = true for a clean exit")
	}
	if p.Err() != nil {
		t.Fatalf("Err() = %v, want nil", p.Err())
	}
}

func TestContextCancelStopsProcess(t *testing.T) {
	s := newHelperSupervisor(t, "wait-q", nil)
	ctx, cancel := context.WithCancel(context.Background())

	p, err := s.Start(ctx, StartOptions{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
	if !p.Wait(5 * time.Second) {
		t.Fatal("process did not exit after cancel")
	}
	if p.State() != StateExited {
		t.Fatalf("state = %v, want exited", p.State())
	}
}

func TestStartCancelledContext(t *testing.T) {
	s := newHelperSupervisor(t, "wait-q", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Start(ctx, StartOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if s.Registry().Len() != 0 {
		t.Fatalf("registry len = %d, want 0", s.Registry().Len())
	}
}

func TestStartSpawnFailure(t *testing.T) {
	dir := t.TempDir()
	path := dir + string(os.PathSeparator) + "not-a-binary"
	if err := os.WriteFile(path, []byte("garbage"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s := New(Options{Resolver: Resolver{Path: path}})
	_, err := s.Start(context.Background(), StartOptions{})
	if !errors.Is(err, ErrProcessSpawn) {
		t.Fatalf("err = %v, want ErrProcessSpawn", err)
	}
	if s.Registry().Len() != 0 {
		t.Fatalf("registry len = %d, want 0", s.Registry().Len())
	}
}

func TestResolveNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	r := Resolver{Dir: t.TempDir(), Name: "definitely-not-an-encoder"}
	if _, err := r.Resolve(); !errors.Is(err, ErrEncoderNotFound) {
		t.Fatalf("err = %v, want ErrEncoderNotFound", err)
	}

	r = Resolver{Path: "/nonexistent/ffmpeg"}
	if _, err := r.Resolve(); !errors.Is(err, ErrEncoderNotFound) {
		t.Fatalf("err = %v, want ErrEncoderNotFound", err)
	}
}

func TestSweepOrphansAttached(t *testing.T) {
	reg := NewRegistry()
	s := newHelperSupervisor(t, "sleep", reg)

	marker := fmt.Sprintf("screenrec-sweep-%d", time.Now().UnixNano())
	p, err := s.Start(context.Background(), StartOptions{Args: []string{marker}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Kill(time.Second)

	// Without IncludeAttached the live child is not an orphan.
	n, err := SweepOrphans(context.Background(), SweepOptions{Marker: marker})
	if err != nil {
		t.Fatalf("SweepOrphans: %v", err)
	}
	if n != 0 {
		t.Fatalf("killed %d, want 0", n)
	}

	n, err = SweepOrphans(context.Background(), SweepOptions{Marker: marker, IncludeAttached: true})
	if err != nil {
		t.Fatalf("SweepOrphans: %v", err)
	}
	if n != 1 {
		t.Fatalf("killed %d, want 1", n)
	}
	if !p.Wait(5 * time.Second) {
		t.Fatal("swept process still running")
	}
}

func TestSweepOrphansSkipsOtherExecutables(t *testing.T) {
	reg := NewRegistry()
	s := newHelperSupervisor(t, "sleep", reg)

	marker := fmt.Sprintf("screenrec-notes-%d", time.Now().UnixNano())
	p, err := s.Start(context.Background(), StartOptions{Args: []string{marker}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Kill(time.Second)

	opts := SweepOptions{Marker: marker, ExeName: DefaultExecutable, IncludeAttached: true}
	n, err := SweepOrphans(context.Background(), opts)
	if err != nil {
		t.Fatalf("SweepOrphans: %v", err)
	}
	if n != 0 {
		t.Fatalf("killed %d, want 0", n)
	}
	if p.Exited() {
		t.Fatal("process with another executable name was killed")
	}

	self, err := s.Executable()
	if err != nil {
		t.Fatalf("Executable: %v", err)
	}
	opts.ExeName = ExeName(self)
	if n, err = SweepOrphans(context.Background(), opts); err != nil || n != 1 {
		t.Fatalf("SweepOrphans = %d, %v, want 1", n, err)
	}
}
