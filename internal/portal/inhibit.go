package portal

import (
	"fmt"
	"io"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	inhibitInterface   = CallBaseName + ".Inhibit"
	inhibitCallName    = inhibitInterface + ".Inhibit"
	requestCloseMethod = CallBaseName + ".Request.Close"
)

// InhibitFlags select what the session must not do.
type InhibitFlags uint32

const (
	InhibitSuspend  InhibitFlags = 4
	InhibitIdleFlag InhibitFlags = 8
)

// Inhibition is an active inhibitor. Close lifts it.
type Inhibition struct {
	client *Client
	handle dbus.ObjectPath
	once   sync.Once
	err    error
}

// Handle is the portal request object backing the inhibitor.
func (i *Inhibition) Handle() dbus.ObjectPath { return i.handle }

func (i *Inhibition) Close() error {
	i.once.Do(func() {
		_, i.err = i.client.call(i.handle, requestCloseMethod)
	})
	return i.err
}

// InhibitVersion reports the Inhibit portal interface version.
func (c *Client) InhibitVersion() (uint32, error) {
	return c.getUint32Property(inhibitInterface, "version")
}

// Inhibit asks the session to refrain from the actions in flags until the
// returned Inhibition is closed.
func (c *Client) Inhibit(reason string, flags InhibitFlags) (*Inhibition, error) {
	options := map[string]dbus.Variant{
		"handle_token": handleToken(),
		"reason":       FromString(reason),
	}
	call, err := c.call(ObjectPath, inhibitCallName, "", uint32(flags), options)
	if err != nil {
		return nil, fmt.Errorf("inhibit: %w", err)
	}

	var handle dbus.ObjectPath
	if err := call.Store(&handle); err != nil {
		return nil, fmt.Errorf("inhibit response: %w", err)
	}
	return &Inhibition{client: c, handle: handle}, nil
}

// InhibitIdle connects to the session bus and blocks idling and suspend.
func InhibitIdle(reason string) (io.Closer, error) {
	c, err := Connect()
	if err != nil {
		return nil, err
	}
	return c.Inhibit(reason, InhibitIdleFlag|InhibitSuspend)
}
