// Package arpcache keeps track of which hardware addresses are present on the
// local network by periodically reading the ARP table of the host (or of a
// router, through any command that dumps it as text).
//
// - The table is fetched by running an external command, one at a time
// - Every line with at least four fields contributes its fourth field as an address
// - Addresses are normalized and stamped with the time they were seen
// - Entries older than the configured timeout are no longer active and get purged
//
// A missed fetch never removes an entry on its own; devices only drop out once
// they have been absent for the whole timeout window.
package arpcache
