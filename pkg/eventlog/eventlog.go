package eventlog

import (
	"encoding/json"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/projectdiscovery/arp-presence/pkg/device"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/utils/batcher"
	envutil "github.com/projectdiscovery/utils/env"
)

const (
	DefaultBatchSize     = 100
	DefaultFlushInterval = 5 * time.Second
)

// Options tune batching. Zero fields are read from ARP_PRESENCE_EVENT_BATCH_SIZE
// and ARP_PRESENCE_EVENT_FLUSH_INTERVAL (seconds), then fall back to the defaults.
type Options struct {
	BatchSize     int
	FlushInterval time.Duration
}

func (o Options) resolve() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = positiveEnv("ARP_PRESENCE_EVENT_BATCH_SIZE", DefaultBatchSize)
	}
	if o.FlushInterval <= 0 {
		seconds := positiveEnv("ARP_PRESENCE_EVENT_FLUSH_INTERVAL", int(DefaultFlushInterval/time.Second))
		o.FlushInterval = time.Duration(seconds) * time.Second
	}
	return o
}

// positiveEnv returns the integer in name, or fallback when it is unset or not positive.
func positiveEnv(name string, fallback int) int {
	if n, err := strconv.Atoi(envutil.GetEnvOrDefault(name, "")); err == nil && n > 0 {
		return n
	}
	return fallback
}

// Event is a device status change as written to the log.
type Event struct {
	Timestamp  time.Time     `json:"timestamp"`
	InstanceID string        `json:"instance_id,omitempty"`
	DeviceID   string        `json:"device_id"`
	Name       string        `json:"name,omitempty"`
	Type       device.Type   `json:"type"`
	Address    string        `json:"address"`
	From       device.Status `json:"from"`
	To         device.Status `json:"to"`
}

// NewEvent builds the log entry for a transition observed at ts.
func NewEvent(instanceID string, tr device.Transition, ts time.Time) Event {
	return Event{
		Timestamp:  ts.UTC(),
		InstanceID: instanceID,
		DeviceID:   tr.Device.ID,
		Name:       tr.Device.Name,
		Type:       tr.Device.Type,
		Address:    tr.Device.Address,
		From:       tr.From,
		To:         tr.To,
	}
}

// Writer appends events to out as JSON lines. Events are buffered and
// written in batches; Close writes whatever is still pending.
type Writer struct {
	instanceID string
	batcher    *batcher.Batcher[Event]

	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder

	// held for reading while appending, so nothing is appended after Stop
	state     sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error
}

// New starts a writer for out. The writer owns out and closes it on Close.
func New(out io.WriteCloser, instanceID string, options Options) *Writer {
	options = options.resolve()
	w := &Writer{
		instanceID: instanceID,
		out:        out,
		enc:        json.NewEncoder(out),
	}

	w.batcher = batcher.New(
		batcher.WithMaxCapacity[Event](options.BatchSize),
		batcher.WithFlushInterval[Event](options.FlushInterval),
		batcher.WithFlushCallback[Event](w.write),
	)

	go w.batcher.Run()

	return w
}

// Record queues the transitions observed at ts. It does nothing once the
// writer is closed.
func (w *Writer) Record(transitions []device.Transition, ts time.Time) {
	w.state.RLock()
	defer w.state.RUnlock()
	if w.closed {
		return
	}

	for _, tr := range transitions {
		w.batcher.Append(NewEvent(w.instanceID, tr, ts))
	}
}

// Close flushes pending events and closes the underlying writer.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		w.state.Lock()
		w.closed = true
		w.state.Unlock()

		w.batcher.Stop()
		w.batcher.WaitDone()

		w.mu.Lock()
		defer w.mu.Unlock()
		w.closeErr = w.out.Close()
	})
	return w.closeErr
}

func (w *Writer) write(events []Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, event := range events {
		if err := w.enc.Encode(event); err != nil {
			gologger.Error().Msgf("could not write %d events: %v", len(events), err)
			return
		}
	}
	gologger.Debug().Msgf("wrote %d events", len(events))
}
