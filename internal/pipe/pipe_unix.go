//go:build !windows

package pipe

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func listen(name string, _ int) (net.Listener, string, func(), error) {
	path := filepath.Join(os.TempDir(), name+".sock")
	_ = os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, "", nil, err
	}
	cleanup := func() { _ = os.Remove(path) }
	return ln, "unix:" + path, cleanup, nil
}

// Marker is the path every channel created with prefix starts with. It only
// appears in the command line of a process reading one of those channels.
func Marker(prefix string) string {
	return filepath.Join(os.TempDir(), prefix+"-")
}

func tuneConn(conn net.Conn, bufSize int) {
	if bufSize <= 0 {
		return
	}
	if uc, ok := conn.(*net.UnixConn); ok {
		_ = uc.SetWriteBuffer(bufSize)
	}
}

// Dial opens the client side of a channel URL.
func Dial(url string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", strings.TrimPrefix(url, "unix:"), timeout)
}
