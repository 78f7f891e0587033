package runner

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/projectdiscovery/arp-presence/pkg/arpcache"
	"github.com/projectdiscovery/arp-presence/pkg/device"
	"github.com/projectdiscovery/arp-presence/pkg/version"
	"github.com/projectdiscovery/goflags"
	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/gologger/formatter"
	"github.com/projectdiscovery/gologger/levels"
	envutil "github.com/projectdiscovery/utils/env"
	"github.com/rs/xid"
)

var (
	CommandEnv     = envutil.GetEnvOrDefault("ARP_PRESENCE_COMMAND", arpcache.DefaultCommand())
	TimeoutEnv     = envutil.GetEnvOrDefault("ARP_PRESENCE_TIMEOUT", strconv.Itoa(arpcache.DefaultTimeout))
	DevicesFileEnv = envutil.GetEnvOrDefault("ARP_PRESENCE_DEVICES", "")
	InstanceIDEnv  = envutil.GetEnvOrDefault("ARP_PRESENCE_ID", "")
)

// Options contains the configuration options for the presence monitor.
type Options struct {
	ConfigFile  string
	DevicesFile string
	InstanceID  string
	Output      string

	Timeout        int
	Command        string
	CommandTimeout time.Duration
	Format         string
	Rebuild        bool

	PollInterval time.Duration
	RetryCount   int
	ProbeTimeout time.Duration
	NoWatch      bool

	Stdin     bool
	ListLocal bool

	Verbose bool
	Debug   bool
	Silent  bool
	NoColor bool
	Version bool
}

// ParseOptions parses the command line flags provided by a user
func ParseOptions() *Options {
	options := &Options{}
	flagSet := goflags.NewFlagSet()

	flagSet.SetDescription(`arp-presence reports which devices are present on the local network by watching the ARP table`)

	defaultTimeout := arpcache.DefaultTimeout
	if val, err := strconv.Atoi(TimeoutEnv); err == nil && val > 0 {
		defaultTimeout = val
	}

	flagSet.CreateGroup("config", "Config",
		flagSet.StringVar(&options.ConfigFile, "config", "", "flag configuration file"),
		flagSet.StringVarP(&options.DevicesFile, "devices", "d", DevicesFileEnv, "device file (yaml)"),
		flagSet.StringVar(&options.InstanceID, "id", InstanceIDEnv, "instance id used in logs (generated when empty)"),
		flagSet.StringVarP(&options.Output, "output", "o", "", "file to append device status changes to (jsonl)"),
	)

	flagSet.CreateGroup("cache", "Cache",
		flagSet.IntVarP(&options.Timeout, "timeout", "t", defaultTimeout, "minutes an address stays active after it was last seen"),
		flagSet.StringVarP(&options.Command, "command", "cmd", CommandEnv, "command dumping the arp table (none to disable)"),
		flagSet.DurationVarP(&options.CommandTimeout, "command-timeout", "ct", arpcache.DefaultCommandTimeout, "maximum time to wait for the arp command"),
		flagSet.StringVarP(&options.Format, "format", "f", string(arpcache.FormatText), "arp command output format (text, json)"),
		flagSet.BoolVar(&options.Rebuild, "rebuild", false, "drop addresses missing from a single successful dump instead of waiting for the timeout"),
		flagSet.BoolVar(&options.Stdin, "stdin", false, "read the arp table from stdin, print active addresses and exit"),
	)

	flagSet.CreateGroup("devices", "Devices",
		flagSet.DurationVarP(&options.PollInterval, "poll-interval", "pi", DefaultPollInterval, "time between refreshes"),
		flagSet.IntVarP(&options.RetryCount, "retry-count", "rc", device.DefaultRetryCount, "missed polls before a device goes inactive"),
		flagSet.DurationVarP(&options.ProbeTimeout, "probe-timeout", "pt", device.DefaultProbeTimeout, "tcp connect timeout for ip devices"),
		flagSet.BoolVarP(&options.NoWatch, "no-watch", "nw", false, "do not reload the device file on change"),
	)

	flagSet.CreateGroup("debug", "Debug",
		flagSet.BoolVarP(&options.ListLocal, "list-local", "ll", false, "list hardware addresses of local interfaces and exit"),
		flagSet.BoolVar(&options.Version, "version", false, "show version of the project"),
		flagSet.BoolVarP(&options.Verbose, "verbose", "v", false, "show verbose output"),
		flagSet.BoolVar(&options.Debug, "debug", false, "show debug output"),
		flagSet.BoolVar(&options.Silent, "silent", false, "show only results"),
		flagSet.BoolVarP(&options.NoColor, "no-color", "nc", false, "disable output content coloring (ANSI escape codes)"),
	)

	if err := flagSet.Parse(); err != nil {
		gologger.Fatal().Msgf("%s\n", err)
	}

	if options.ConfigFile != "" {
		if err := flagSet.MergeConfigFile(options.ConfigFile); err != nil {
			gologger.Fatal().Msgf("could not read config file %s: %s\n", options.ConfigFile, err)
		}
	}

	options.configureOutput()

	if options.Version {
		gologger.Info().Msgf("Current Version: %s\n", version.GetVersion())
		os.Exit(0)
	}

	if options.InstanceID == "" {
		options.InstanceID = xid.New().String()
	}

	if err := options.validate(); err != nil {
		gologger.Fatal().Msgf("Program exiting: %s\n", err)
	}

	return options
}

// configureOutput configures the output on the screen
func (options *Options) configureOutput() {
	if options.Verbose {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelVerbose)
	}
	if options.Debug {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelDebug)
	}
	if options.NoColor {
		gologger.DefaultLogger.SetFormatter(formatter.NewCLI(true))
	}
	if options.Silent {
		gologger.DefaultLogger.SetMaxLevel(levels.LevelSilent)
	}
}

func (options *Options) validate() error {
	if options.Timeout <= 0 {
		return fmt.Errorf("timeout must be a positive number of minutes, got %d", options.Timeout)
	}
	if options.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", options.PollInterval)
	}
	if options.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative, got %d", options.RetryCount)
	}
	if _, err := arpcache.ParserFor(arpcache.Format(options.Format)); err != nil {
		return err
	}
	if options.Stdin && options.ListLocal {
		return fmt.Errorf("-stdin and -list-local cannot be used together")
	}
	return nil
}

// cacheOptions maps the command line onto the cache configuration.
func (options *Options) cacheOptions() *arpcache.Options {
	command := options.Command
	// stdin mode never runs the command
	if options.Stdin {
		command = arpcache.DisabledCommand
	}
	return &arpcache.Options{
		Timeout:        options.Timeout,
		Command:        command,
		CommandTimeout: options.CommandTimeout,
		Format:         arpcache.Format(options.Format),
		Rebuild:        options.Rebuild,
	}
}
