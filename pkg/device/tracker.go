package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/projectdiscovery/gologger"
	mapsutil "github.com/projectdiscovery/utils/maps"
	syncutil "github.com/projectdiscovery/utils/sync"
)

const (
	DefaultRetryCount  = 5
	DefaultParallelism = 8
)

// PresenceChecker answers whether a hardware address is currently present.
// *arpcache.Cache satisfies it.
type PresenceChecker interface {
	IsActive(address string) bool
}

type tracked struct {
	mu     sync.Mutex
	device Device
	state  State
	// set once the device left the tracker; evaluations in flight are dropped
	removed bool
}

// detach disables the entry and returns the transition to Disabled.
func (e *tracked) detach() Transition {
	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.state.Status
	e.removed = true
	e.state.Active = false
	e.state.Status = StatusDisabled
	return Transition{Device: e.device, From: from, To: StatusDisabled}
}

// Tracker holds the configured devices and their states.
type Tracker struct {
	presence    PresenceChecker
	prober      Prober
	retryCount  int
	parallelism int

	devices *mapsutil.SyncLockMap[string, *tracked]
	now     func() time.Time
}

// NewTracker creates an empty tracker. A device that stops answering stays
// active for retryCount more updates.
func NewTracker(presence PresenceChecker, prober Prober, retryCount int) *Tracker {
	if retryCount < 0 {
		retryCount = 0
	}
	return &Tracker{
		presence:    presence,
		prober:      prober,
		retryCount:  retryCount,
		parallelism: DefaultParallelism,
		devices:     mapsutil.NewSyncLockMap[string, *tracked](),
		now:         time.Now,
	}
}

// Add validates and registers a device, then evaluates it right away.
// Adding an id that is already tracked replaces the device and resets its state.
func (t *Tracker) Add(ctx context.Context, d Device) (State, error) {
	state, _, err := t.add(ctx, d)
	return state, err
}

// add returns the transition of the first evaluation, if any.
func (t *Tracker) add(ctx context.Context, d Device) (State, *Transition, error) {
	if err := d.Validate(); err != nil {
		return State{}, nil, err
	}

	entry := &tracked{
		device: d,
		state:  State{Status: StatusInactive},
	}
	if previous, ok := t.devices.Get(d.ID); ok {
		previous.detach()
	}
	if err := t.devices.Set(d.ID, entry); err != nil {
		return State{}, nil, fmt.Errorf("could not register device %s: %w", d, err)
	}
	gologger.Verbose().Msgf("starting device: %s (%s %s)", d, d.Type, d.Address)

	tr := t.evaluate(ctx, entry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state, tr, nil
}

// Remove stops tracking a device. The returned transition ends in Disabled.
func (t *Tracker) Remove(id string) (Transition, bool) {
	entry, ok := t.devices.Get(id)
	if !ok {
		return Transition{}, false
	}
	t.devices.Delete(id)

	gologger.Verbose().Msgf("stopping device: %s", entry.device)
	return entry.detach(), true
}

// RemoveAll stops every device and returns their transitions sorted by id.
func (t *Tracker) RemoveAll() []Transition {
	var transitions []Transition
	for _, d := range t.Devices() {
		if tr, ok := t.Remove(d.ID); ok {
			transitions = append(transitions, tr)
		}
	}
	return transitions
}

// Replace makes the tracked set equal to devices. Devices whose definition
// did not change keep their state. The returned transitions cover removed
// devices and the first evaluation of added ones.
func (t *Tracker) Replace(ctx context.Context, devices []Device) ([]Transition, error) {
	wanted := make(map[string]Device, len(devices))
	for _, d := range devices {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		wanted[d.ID] = d
	}

	var transitions []Transition
	for _, current := range t.Devices() {
		if d, ok := wanted[current.ID]; ok && d == current {
			delete(wanted, current.ID)
			continue
		}
		if tr, ok := t.Remove(current.ID); ok {
			transitions = append(transitions, tr)
		}
	}

	ids := make([]string, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		_, tr, err := t.add(ctx, wanted[id])
		if err != nil {
			return transitions, err
		}
		if tr != nil {
			transitions = append(transitions, *tr)
		}
	}
	return transitions, nil
}

// Get returns the state of a device.
func (t *Tracker) Get(id string) (State, bool) {
	entry, ok := t.devices.Get(id)
	if !ok {
		return State{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state, true
}

// Devices returns the tracked devices sorted by id.
func (t *Tracker) Devices() []Device {
	var devices []Device
	_ = t.devices.Iterate(func(_ string, entry *tracked) error {
		entry.mu.Lock()
		devices = append(devices, entry.device)
		entry.mu.Unlock()
		return nil
	})
	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// States returns the state of every tracked device keyed by id.
func (t *Tracker) States() map[string]State {
	states := make(map[string]State)
	_ = t.devices.Iterate(func(id string, entry *tracked) error {
		entry.mu.Lock()
		states[id] = entry.state
		entry.mu.Unlock()
		return nil
	})
	return states
}

// Update evaluates every device and returns the status changes, sorted by
// device id.
func (t *Tracker) Update(ctx context.Context) []Transition {
	var entries []*tracked
	_ = t.devices.Iterate(func(_ string, entry *tracked) error {
		entries = append(entries, entry)
		return nil
	})

	var (
		mu          sync.Mutex
		transitions []Transition
	)
	record := func(tr *Transition) {
		if tr == nil {
			return
		}
		mu.Lock()
		transitions = append(transitions, *tr)
		mu.Unlock()
	}

	awg, err := syncutil.New(syncutil.WithSize(t.parallelism))
	if err != nil {
		gologger.Warning().Msgf("could not create waitgroup, updating devices sequentially: %v", err)
		for _, entry := range entries {
			record(t.evaluate(ctx, entry))
		}
	} else {
		for _, entry := range entries {
			if ctx.Err() != nil {
				break
			}
			awg.Add()
			go func(entry *tracked) {
				defer awg.Done()
				record(t.evaluate(ctx, entry))
			}(entry)
		}
		awg.Wait()
	}

	sort.Slice(transitions, func(i, j int) bool {
		return transitions[i].Device.ID < transitions[j].Device.ID
	})
	return transitions
}

// evaluate checks a device and applies the retry rules. It returns a
// transition when the status changed.
func (t *Tracker) evaluate(ctx context.Context, entry *tracked) *Transition {
	entry.mu.Lock()
	d := entry.device
	entry.mu.Unlock()

	active := t.isActive(ctx, d)
	now := t.now()

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.removed {
		return nil
	}

	from := entry.state.Status
	switch {
	case active:
		gologger.Debug().Msgf("device %s is active", d)
		entry.state.Active = true
		entry.state.Status = StatusActive
		entry.state.LastSeenAt = now
		entry.state.Retry = t.retryCount

	// not there, but retries remain
	case entry.state.Retry > 0:
		entry.state.Retry--
		gologger.Debug().Msgf("device %s missing, %d retries left", d, entry.state.Retry)

	default:
		gologger.Debug().Msgf("device %s is not active", d)
		entry.state.Active = false
		entry.state.Status = StatusInactive
		entry.state.Retry = 0
	}

	if from == entry.state.Status {
		return nil
	}
	return &Transition{Device: d, From: from, To: entry.state.Status}
}

func (t *Tracker) isActive(ctx context.Context, d Device) bool {
	switch d.Type {
	case TypeMAC:
		return t.presence != nil && t.presence.IsActive(d.Address)
	case TypeIP:
		return t.prober != nil && t.prober.Reachable(ctx, d.Address)
	}
	return false
}
