package device

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/projectdiscovery/arp-presence/pkg/arpcache"
)

var (
	// ErrUnknownType is returned for devices that are neither mac nor ip.
	ErrUnknownType = errors.New("unknown device type")
	// ErrInvalidAddress is returned when the address does not match the device type.
	ErrInvalidAddress = errors.New("invalid device address")
)

// Type is how a device is detected
type Type string

const (
	// TypeMAC devices are looked up by hardware address in the ARP cache.
	TypeMAC Type = "mac"
	// TypeIP devices are probed with a TCP connection to host:port.
	TypeIP Type = "ip"
)

// Device is a monitored device.
type Device struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Type    Type   `yaml:"type"`
	Address string `yaml:"address"`
}

// String returns the device name, falling back to its id.
func (d Device) String() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Validate checks the device type and that the address fits it. Hardware
// addresses are normalized in place.
func (d *Device) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("device %q: missing id", d.Name)
	}

	switch Type(strings.ToLower(string(d.Type))) {
	case TypeMAC:
		addr, err := arpcache.NormalizeAddress(d.Address)
		if err != nil {
			return fmt.Errorf("device %s: %w: %q", d, ErrInvalidAddress, d.Address)
		}
		d.Type = TypeMAC
		d.Address = addr
	case TypeIP:
		host, port, err := net.SplitHostPort(d.Address)
		if err != nil || host == "" {
			return fmt.Errorf("device %s: %w: %q is not host:port", d, ErrInvalidAddress, d.Address)
		}
		if n, err := strconv.Atoi(port); err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("device %s: %w: bad port %q", d, ErrInvalidAddress, port)
		}
		d.Type = TypeIP
	default:
		return fmt.Errorf("device %s: %w: %q", d, ErrUnknownType, d.Type)
	}
	return nil
}

// Status is the reported state of a device
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
	StatusDisabled Status = "Disabled"
)

// State is the tracked presence of a device.
type State struct {
	Active     bool      `json:"active"`
	Status     Status    `json:"status"`
	LastSeenAt time.Time `json:"last_seen_at,omitempty"`
	// Retry is the number of misses left before the device goes inactive.
	Retry int `json:"retry"`
}

// Transition is a status change of a device.
type Transition struct {
	Device Device
	From   Status
	To     Status
}
