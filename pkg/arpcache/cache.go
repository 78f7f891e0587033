package arpcache

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/projectdiscovery/gologger"
)

// DefaultTimeout is the number of minutes an address stays active after it
// was last seen.
const DefaultTimeout = 5

// Options configures a Cache.
type Options struct {
	// Timeout in whole minutes; zero means DefaultTimeout.
	Timeout int
	// Command dumps the ARP table; empty or "none" disables live fetching.
	Command string
	// CommandTimeout bounds a single run of Command.
	CommandTimeout time.Duration
	// Format of the command output.
	Format Format
	// Rebuild clears the cache on every successful fetch instead of letting
	// entries age out, so a device missing from a single dump is dropped.
	Rebuild bool
}

// DefaultOptions returns options for the platform ARP command.
func DefaultOptions() *Options {
	return &Options{
		Timeout:        DefaultTimeout,
		Command:        DefaultCommand(),
		CommandTimeout: DefaultCommandTimeout,
		Format:         FormatText,
	}
}

// Stats describes the outcome of a single refresh.
type Stats struct {
	Fetched bool // the table was read
	Seen    int  // valid addresses merged
	Skipped int  // tokens that were not hardware addresses
	Purged  int  // expired entries removed
	Active  int  // entries left after the purge
}

// Cache is a Store kept current from the output of an ARP table command.
type Cache struct {
	*Store

	fetcher *Fetcher
	parse   ParseFunc
	rebuild bool

	// serializes refreshes and loads
	refreshing sync.Mutex
}

// New creates an empty cache. Nothing is fetched until Refresh is called.
func New(options *Options) (*Cache, error) {
	if options == nil {
		options = DefaultOptions()
	}

	timeout := options.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if timeout < 0 {
		return nil, fmt.Errorf("invalid timeout %d: must be a positive number of minutes", timeout)
	}

	fetcher, err := NewFetcher(options.Command, options.CommandTimeout)
	if err != nil {
		return nil, err
	}

	parse, err := ParserFor(options.Format)
	if err != nil {
		return nil, err
	}

	return &Cache{
		Store:   NewStore(time.Duration(timeout) * time.Minute),
		fetcher: fetcher,
		parse:   parse,
		rebuild: options.Rebuild,
	}, nil
}

// Fetching reports whether the cache reads a live table.
func (c *Cache) Fetching() bool {
	return c.fetcher.Enabled()
}

// Refresh fetches the table, records every address in it as seen now and
// purges expired entries. A failed or skipped fetch only purges.
func (c *Cache) Refresh(ctx context.Context) Stats {
	c.refreshing.Lock()
	defer c.refreshing.Unlock()

	text, ok := c.fetcher.Fetch(ctx)
	if !ok {
		c.mutex.Lock()
		purged := c.purgeExpiredLocked()
		active := len(c.entries)
		c.mutex.Unlock()

		c.logPurged(purged)
		return Stats{Purged: len(purged), Active: active}
	}

	return c.merge(text)
}

// Load reads a pre-captured table from r instead of running the command,
// then purges expired entries like Refresh.
func (c *Cache) Load(r io.Reader) (Stats, error) {
	text, err := io.ReadAll(r)
	if err != nil {
		return Stats{}, fmt.Errorf("could not read table: %w", err)
	}

	c.refreshing.Lock()
	defer c.refreshing.Unlock()

	return c.merge(text), nil
}

func (c *Cache) merge(text []byte) Stats {
	stats := Stats{Fetched: true}
	now := c.now()

	c.mutex.Lock()
	if c.rebuild {
		clear(c.entries)
	}

	for sighting := range c.parse(text, now) {
		addr, err := NormalizeAddress(sighting.Address)
		if err != nil {
			stats.Skipped++
			continue
		}
		c.entries[addr] = sighting.ObservedAt
		stats.Seen++
		gologger.Debug().Msgf("arp: device found: %s", addr)
	}

	purged := c.purgeExpiredLocked()
	stats.Purged = len(purged)
	stats.Active = len(c.entries)
	c.mutex.Unlock()

	c.logPurged(purged)
	return stats
}

func (c *Cache) logPurged(purged []string) {
	for _, addr := range purged {
		gologger.Debug().Msgf("arp: device expired: %s", addr)
	}
}
