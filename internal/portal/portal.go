// Package portal talks to xdg-desktop-portal over the session bus. The
// recorder uses it to keep the desktop from idling or suspending while a
// recording runs.
package portal

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

const (
	ObjectName        = "org.freedesktop.portal.Desktop"
	ObjectPath        = dbus.ObjectPath("/org/freedesktop/portal/desktop")
	CallBaseName      = "org.freedesktop.portal"
	PropertiesGetName = "org.freedesktop.DBus.Properties.Get"
)

// Client issues portal calls. The zero value is not usable; see Connect.
type Client struct {
	object func(path dbus.ObjectPath) dbus.BusObject
}

// Connect opens the shared session bus connection.
func Connect() (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("session bus: %w", err)
	}
	return &Client{object: func(path dbus.ObjectPath) dbus.BusObject {
		return conn.Object(ObjectName, path)
	}}, nil
}

func (c *Client) call(path dbus.ObjectPath, method string, args ...any) (*dbus.Call, error) {
	call := c.object(path).Call(method, 0, args...)
	return call, call.Err
}

func (c *Client) getUint32Property(iface, property string) (uint32, error) {
	call, err := c.call(ObjectPath, PropertiesGetName, iface, property)
	if err != nil {
		return 0, err
	}

	var value dbus.Variant
	if err := call.Store(&value); err != nil {
		return 0, err
	}
	result, ok := value.Value().(uint32)
	if !ok {
		return 0, fmt.Errorf("property %s returned unexpected type %T", property, value.Value())
	}
	return result, nil
}

func handleToken() dbus.Variant {
	return FromString("screenrec" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
