// Package device tracks the presence state of configured devices.
//
// A device is either identified by its hardware address, in which case it is
// looked up in the ARP presence cache, or by an ip:port pair, in which case a
// TCP connection is attempted. Devices that disappear are only reported as
// inactive after a configurable number of consecutive misses.
package device
