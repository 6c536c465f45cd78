// Package speaker connects the Bluetooth speaker through BlueZ on the system
// D-Bus, the same calls bluetoothctl makes.
package speaker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Link connects and disconnects the speaker.
type Link interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

const (
	bluezService     = "org.bluez"
	deviceConnect    = "org.bluez.Device1.Connect"
	deviceDisconnect = "org.bluez.Device1.Disconnect"
)

var (
	// ErrBadAddress is returned for addresses that are not XX:XX:XX:XX:XX:XX.
	ErrBadAddress = errors.New("invalid bluetooth address")

	addressPattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)
)

// DevicePath returns the BlueZ object path of address on adapter.
func DevicePath(adapter, address string) (dbus.ObjectPath, error) {
	if !addressPattern.MatchString(address) {
		return "", fmt.Errorf("%w: %q", ErrBadAddress, address)
	}
	dev := "dev_" + strings.ToUpper(strings.ReplaceAll(address, ":", "_"))
	return dbus.ObjectPath("/org/bluez/" + adapter + "/" + dev), nil
}

// BlueZ is a Link backed by the system bus.
type BlueZ struct {
	conn *dbus.Conn
	path dbus.ObjectPath
}

// NewBlueZ opens the system bus for the speaker at address.
func NewBlueZ(adapter, address string) (*BlueZ, error) {
	path, err := DevicePath(adapter, address)
	if err != nil {
		return nil, err
	}

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	return &BlueZ{conn: conn, path: path}, nil
}

// Connect asks BlueZ to connect the speaker's profiles.
func (b *BlueZ) Connect(ctx context.Context) error {
	return b.call(ctx, deviceConnect)
}

// Disconnect asks BlueZ to drop the speaker.
func (b *BlueZ) Disconnect(ctx context.Context) error {
	return b.call(ctx, deviceDisconnect)
}

// Close releases the bus connection.
func (b *BlueZ) Close() error {
	return b.conn.Close()
}

func (b *BlueZ) call(ctx context.Context, method string) error {
	obj := b.conn.Object(bluezService, b.path)
	if err := obj.CallWithContext(ctx, method, 0).Err; err != nil {
		return fmt.Errorf("%s %s: %w", method, b.path, err)
	}
	return nil
}

// Fake records link calls for tests.
type Fake struct {
	mu            sync.Mutex
	Connects      int
	Disconnects   int
	ConnectErr    error
	DisconnectErr error
}

// Connect implements Link.
func (f *Fake) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Connects++
	return f.ConnectErr
}

// Disconnect implements Link.
func (f *Fake) Disconnect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Disconnects++
	return f.DisconnectErr
}
