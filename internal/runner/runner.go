package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/projectdiscovery/arp-presence/pkg/arpcache"
	"github.com/projectdiscovery/arp-presence/pkg/device"
	"github.com/projectdiscovery/arp-presence/pkg/eventlog"
	"github.com/projectdiscovery/gologger"
	sliceutil "github.com/projectdiscovery/utils/slice"
)

// Runner contains the internal logic of the program
type Runner struct {
	options *Options
	cache   *arpcache.Cache
	tracker *device.Tracker
	events  *eventlog.Writer

	input  io.Reader
	output io.Writer
}

// NewRunner instance
func NewRunner(options *Options) (*Runner, error) {
	cache, err := arpcache.New(options.cacheOptions())
	if err != nil {
		return nil, fmt.Errorf("could not create arp cache: %w", err)
	}

	prober := device.NewTCPProber(options.ProbeTimeout, device.DefaultProbeCacheTTL)

	r := &Runner{
		options: options,
		cache:   cache,
		tracker: device.NewTracker(cache, prober, options.RetryCount),
		input:   os.Stdin,
		output:  os.Stdout,
	}

	if options.Output != "" {
		file, err := os.OpenFile(options.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open output file: %w", err)
		}
		r.events = eventlog.New(file, options.InstanceID, eventlog.Options{})
	}
	return r, nil
}

// Run the instance
func (r *Runner) Run(ctx context.Context) error {
	switch {
	case r.options.ListLocal:
		return r.listLocal()
	case r.options.Stdin:
		return r.loadTable(r.input)
	}
	return r.monitor(ctx)
}

// Close the runner instance
func (r *Runner) Close() {
	r.logTransitions(r.tracker.RemoveAll())
	if r.events != nil {
		if err := r.events.Close(); err != nil {
			gologger.Error().Msgf("could not close output file: %v", err)
		}
	}
}

func (r *Runner) listLocal() error {
	addrs, err := device.LocalAddresses()
	if err != nil {
		return err
	}
	for _, addr := range addrs {
		fmt.Fprintln(r.output, addr)
	}
	return nil
}

// loadTable fills the cache from a pre-captured table and prints the active addresses.
func (r *Runner) loadTable(in io.Reader) error {
	stats, err := r.cache.Load(in)
	if err != nil {
		return err
	}
	gologger.Info().Msgf("loaded %d addresses (%d tokens skipped)", stats.Seen, stats.Skipped)

	for _, entry := range r.cache.Entries() {
		if !r.cache.IsActive(entry.Address) {
			continue
		}
		fmt.Fprintf(r.output, "%s\t%s\n", entry.Address, entry.LastSeen.Format(time.RFC3339))
	}
	return nil
}

func (r *Runner) monitor(ctx context.Context) error {
	gologger.Info().Msgf("[%s] timeout %dm, polling every %s", r.options.InstanceID, r.options.Timeout, r.options.PollInterval)
	if !r.cache.Fetching() {
		gologger.Warning().Msg("arp command disabled, mac devices will never be active")
	}
	if r.options.Rebuild {
		gologger.Warning().Msg("rebuild mode: devices missing from a single arp dump are dropped immediately")
	}

	// grab the current table before the devices are evaluated
	r.refresh(ctx)

	if r.options.DevicesFile != "" {
		cfg, err := LoadConfig(r.options.DevicesFile)
		if err != nil {
			return err
		}
		if err := r.applyConfig(ctx, cfg); err != nil {
			return err
		}

		if !r.options.NoWatch {
			// a reload must not race with Close
			var watching sync.WaitGroup
			defer watching.Wait()

			watching.Add(1)
			go func() {
				defer watching.Done()
				if err := WatchConfig(ctx, r.options.DevicesFile, func(cfg *Config) {
					if err := r.applyConfig(ctx, cfg); err != nil {
						gologger.Error().Msgf("could not apply device file: %v", err)
					}
				}); err != nil {
					gologger.Warning().Msgf("not watching device file: %v", err)
				}
			}()
		}
	}

	ticker := time.NewTicker(r.options.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.refresh(ctx)
			r.logTransitions(r.tracker.Update(ctx))
		}
	}
}

func (r *Runner) refresh(ctx context.Context) {
	stats := r.cache.Refresh(ctx)
	if !stats.Fetched {
		gologger.Verbose().Msgf("arp table not refreshed, %d addresses still active", stats.Active)
		return
	}
	gologger.Verbose().Msgf("arp table refreshed: %d seen, %d expired, %d active", stats.Seen, stats.Purged, stats.Active)
}

func (r *Runner) applyConfig(ctx context.Context, cfg *Config) error {
	r.warnLocalDevices(cfg.Devices)

	transitions, err := r.tracker.Replace(ctx, cfg.Devices)
	r.logTransitions(transitions)
	if err != nil {
		return err
	}
	for _, d := range r.tracker.Devices() {
		state, _ := r.tracker.Get(d.ID)
		gologger.Info().Msgf("device %s (%s %s): %s", d, d.Type, d.Address, state.Status)
	}
	return nil
}

func (r *Runner) warnLocalDevices(devices []device.Device) {
	local, err := device.LocalAddresses()
	if err != nil {
		gologger.Debug().Msgf("could not list local interfaces: %v", err)
		return
	}
	for _, d := range devices {
		if d.Type == device.TypeMAC && sliceutil.Contains(local, d.Address) {
			gologger.Warning().Msgf("device %s is a local interface and will not appear in the arp table", d)
		}
	}
}

func (r *Runner) logTransitions(transitions []device.Transition) {
	for _, tr := range transitions {
		gologger.Info().Msgf("device %s: %s -> %s", tr.Device, tr.From, tr.To)
	}
	if r.events != nil && len(transitions) > 0 {
		r.events.Record(transitions, time.Now())
	}
}
