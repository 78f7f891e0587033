package device

import (
	"fmt"

	"github.com/projectdiscovery/arp-presence/pkg/arpcache"
	sliceutil "github.com/projectdiscovery/utils/slice"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// LocalAddresses returns the normalized hardware addresses of the local
// interfaces. The host never shows up in its own ARP table, so mac devices
// matching one of these will never be seen as active.
func LocalAddresses() ([]string, error) {
	interfaces, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var addrs []string
	for _, iface := range interfaces {
		addr, err := arpcache.NormalizeAddress(iface.HardwareAddr)
		if err != nil {
			// loopback and tunnels have no hardware address
			continue
		}
		addrs = append(addrs, addr)
	}
	return sliceutil.Dedupe(addrs), nil
}
