//go:build windows

package pipe

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

func listen(name string, bufSize int) (net.Listener, string, func(), error) {
	path := `\\.\pipe\` + name
	cfg := &winio.PipeConfig{
		InputBufferSize:  4096,
		OutputBufferSize: int32(bufSize),
	}
	ln, err := winio.ListenPipe(path, cfg)
	if err != nil {
		return nil, "", nil, err
	}
	return ln, path, nil, nil
}

// Marker is the path every channel created with prefix starts with.
func Marker(prefix string) string {
	return `\\.\pipe\` + prefix + "-"
}

func tuneConn(net.Conn, int) {}

// Dial opens the client side of a channel URL.
func Dial(url string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(url, &timeout)
}
