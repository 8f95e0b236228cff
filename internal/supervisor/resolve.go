package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// DefaultExecutable is the encoder looked up when no name is configured.
const DefaultExecutable = "ffmpeg"

// Resolver locates the encoder executable. Candidates are tried in order:
// Path, Dir/Name, the directory holding the running binary, then PATH.
type Resolver struct {
	Path string
	Dir  string
	Name string
}

// Resolve returns an absolute path to the encoder or ErrEncoderNotFound.
func (r Resolver) Resolve() (string, error) {
	name := r.Name
	if name == "" {
		name = DefaultExecutable
	}
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		name += ".exe"
	}

	if r.Path != "" {
		if isExecutable(r.Path) {
			return r.Path, nil
		}
		return "", fmt.Errorf("%w: %s", ErrEncoderNotFound, r.Path)
	}

	var candidates []string
	if r.Dir != "" {
		candidates = append(candidates, filepath.Join(r.Dir, name))
	}
	if self, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(self), name))
	}
	for _, c := range candidates {
		if isExecutable(c) {
			return c, nil
		}
	}

	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrEncoderNotFound, name)
	}
	return p, nil
}

func isExecutable(path string) bool {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return st.Mode().Perm()&0o111 != 0
}
