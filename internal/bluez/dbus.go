package bluez

import (
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBus     = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	deviceIface  = "org.bluez.Device1"
)

// deviceCache reaches BlueZ's object tree directly for the two operations the
// bluetooth package does not expose: the Connected property and RemoveDevice.
type deviceCache struct {
	adapterID string
}

func (c deviceCache) connected(addr string) (bool, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return false, fmt.Errorf("dbus system bus: %w", err)
	}
	v, err := conn.Object(bluezBus, devicePath(c.adapterID, addr)).GetProperty(deviceIface + ".Connected")
	if err != nil {
		return false, fmt.Errorf("get %s connected: %w", addr, err)
	}
	connected, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("get %s connected: unexpected type %s", addr, v.Signature())
	}
	return connected, nil
}

func (c deviceCache) remove(addr string) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("dbus system bus: %w", err)
	}
	call := conn.Object(bluezBus, adapterPath(c.adapterID)).
		Call(adapterIface+".RemoveDevice", 0, devicePath(c.adapterID, addr))
	if call.Err != nil {
		return fmt.Errorf("remove device %s: %w", addr, call.Err)
	}
	return nil
}

func adapterPath(adapterID string) dbus.ObjectPath {
	return dbus.ObjectPath("/org/bluez/" + adapterID)
}

// devicePath maps AA:BB:CC:DD:EE:FF to /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func devicePath(adapterID, addr string) dbus.ObjectPath {
	mac := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(addr), ":", "_"))
	return adapterPath(adapterID) + dbus.ObjectPath("/dev_"+mac)
}
