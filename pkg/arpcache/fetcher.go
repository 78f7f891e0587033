package arpcache

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/shlex"
	"github.com/projectdiscovery/gologger"
	fileutil "github.com/projectdiscovery/utils/file"
	osutils "github.com/projectdiscovery/utils/os"
)

// DefaultCommandTimeout bounds a single run of the table command.
const DefaultCommandTimeout = 30 * time.Second

// DisabledCommand turns live fetching off.
const DisabledCommand = "none"

// procARPTable is the kernel neighbor table on Linux. Its rows carry the
// hardware address as the 4th field, same as arp -a.
const procARPTable = "/proc/net/arp"

// DefaultCommand returns the ARP dump command for the current platform
func DefaultCommand() string {
	if osutils.IsOSX() {
		return "/usr/sbin/arp -a"
	}
	// minimal linux images often ship without net-tools
	if osutils.IsLinux() {
		if _, err := exec.LookPath("arp"); err != nil && fileutil.FileExists(procARPTable) {
			return "cat " + procARPTable
		}
	}
	return "arp -a"
}

// Fetcher runs the configured command and returns its standard output.
// At most one command is in flight per Fetcher; callers that find it busy
// skip the fetch instead of waiting for it.
type Fetcher struct {
	args    []string
	timeout time.Duration

	// held for the lifetime of the external process
	running sync.Mutex
}

// NewFetcher splits command shell-style. An empty command or "none"
// returns a disabled fetcher that never runs anything.
func NewFetcher(command string, timeout time.Duration) (*Fetcher, error) {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	f := &Fetcher{timeout: timeout}

	command = strings.TrimSpace(command)
	if command == "" || strings.EqualFold(command, DisabledCommand) {
		return f, nil
	}

	args, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("could not parse command %q: %w", command, err)
	}
	if len(args) == 0 {
		return f, nil
	}
	f.args = args

	gologger.Debug().Msgf("arp: using command %v", f.args)
	return f, nil
}

// Enabled reports whether a command is configured.
func (f *Fetcher) Enabled() bool {
	return len(f.args) > 0
}

// Fetch runs the command and returns its output. The boolean is false when
// fetching is disabled, another fetch is already running, or the command
// failed to start, exited non-zero or timed out.
func (f *Fetcher) Fetch(ctx context.Context) ([]byte, bool) {
	if !f.Enabled() {
		return nil, false
	}

	// the command takes a while; bail if another caller is already running it
	if !f.running.TryLock() {
		gologger.Warning().Msgf("arp: command already in use, skipping fetch")
		return nil, false
	}
	defer f.running.Unlock()

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	gologger.Debug().Msgf("arp: exec %v", f.args)

	cmd := exec.CommandContext(ctx, f.args[0], f.args[1:]...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case ctx.Err() != nil:
			gologger.Verbose().Msgf("arp: command %q aborted: %v", f.args[0], ctx.Err())
		case errors.As(err, &exitErr):
			gologger.Verbose().Msgf("arp: command %q exited with code %d: %s", f.args[0], exitErr.ExitCode(), strings.TrimSpace(string(exitErr.Stderr)))
		default:
			gologger.Verbose().Msgf("arp: could not run command %q: %v", f.args[0], err)
		}
		return nil, false
	}

	return output, true
}
