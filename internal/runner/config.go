package runner

import (
	"fmt"
	"os"
	"time"

	"github.com/projectdiscovery/arp-presence/pkg/device"
	fileutil "github.com/projectdiscovery/utils/file"
	"gopkg.in/yaml.v3"
)

// DefaultPollInterval is how often the table is refreshed and devices are updated.
const DefaultPollInterval = 60 * time.Second

// Config is the device file.
//
//	devices:
//	  - name: phone
//	    type: mac
//	    address: 0:2a:43:4:b:51
//	  - name: nas
//	    type: ip
//	    address: 192.168.1.10:445
type Config struct {
	Devices []device.Device `yaml:"devices"`
}

// LoadConfig reads and validates the device file at path.
func LoadConfig(path string) (*Config, error) {
	if !fileutil.FileExists(path) {
		return nil, fmt.Errorf("device file %s does not exist", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read device file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse device file %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid device file %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	seen := make(map[string]struct{}, len(cfg.Devices))
	for i := range cfg.Devices {
		d := &cfg.Devices[i]
		// ids default to the name, then to the address
		if d.ID == "" {
			d.ID = d.Name
		}
		if d.ID == "" {
			d.ID = d.Address
		}
		if err := d.Validate(); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if _, ok := seen[d.ID]; ok {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}
