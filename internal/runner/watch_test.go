package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const phoneDevices = `
devices:
  - name: phone
    type: mac
    address: aa:bb:cc:dd:ee:ff
`

const laptopDevices = `
devices:
  - name: laptop
    type: mac
    address: 66:55:44:33:22:11
`

// startWatch runs WatchConfig on path and returns the reloaded configs.
func startWatch(t *testing.T, path string) <-chan *Config {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	reloaded := make(chan *Config, 16)
	done := make(chan error, 1)
	go func() {
		done <- WatchConfig(ctx, path, func(cfg *Config) { reloaded <- cfg })
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})

	// give the watcher time to register before writing
	time.Sleep(200 * time.Millisecond)
	return reloaded
}

func waitForDevice(t *testing.T, reloaded <-chan *Config, id string) {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if len(cfg.Devices) == 1 && cfg.Devices[0].ID == id {
				return
			}
		case <-timeout:
			t.Fatalf("device file change to %s was not picked up", id)
		}
	}
}

// replaceFile saves content the way editors do: write a sibling, then rename it over path.
func replaceFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := filepath.Join(filepath.Dir(path), ".devices.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o600))
	require.NoError(t, os.Rename(tmp, path))
}

func TestWatchConfigReload(t *testing.T) {
	path := writeDeviceFile(t, "devices: []\n")
	reloaded := startWatch(t, path)

	require.NoError(t, os.WriteFile(path, []byte(phoneDevices), 0o600))
	waitForDevice(t, reloaded, "phone")
}

func TestWatchConfigRenameOver(t *testing.T) {
	path := writeDeviceFile(t, "devices: []\n")
	reloaded := startWatch(t, path)

	replaceFile(t, path, phoneDevices)
	waitForDevice(t, reloaded, "phone")

	// the watch survives the first replacement
	replaceFile(t, path, laptopDevices)
	waitForDevice(t, reloaded, "laptop")

	require.NoError(t, os.WriteFile(path, []byte(phoneDevices), 0o600))
	waitForDevice(t, reloaded, "phone")
}

func TestWatchConfigSettlesBeforeReload(t *testing.T) {
	path := writeDeviceFile(t, "devices: []\n")
	reloaded := startWatch(t, path)

	// truncate, then write in a second step
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(phoneDevices)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case cfg := <-reloaded:
		require.Len(t, cfg.Devices, 1, "the empty intermediate file is not applied")
		assert.Equal(t, "phone", cfg.Devices[0].ID)
	case <-time.After(5 * time.Second):
		t.Fatal("device file change was not picked up")
	}
}

func TestWatchConfigIgnoresOtherFiles(t *testing.T) {
	path := writeDeviceFile(t, "devices: []\n")
	reloaded := startWatch(t, path)

	other := filepath.Join(filepath.Dir(path), "notes.txt")
	require.NoError(t, os.WriteFile(other, []byte("hello"), 0o600))

	select {
	case <-reloaded:
		t.Fatal("unrelated file triggered a reload")
	case <-time.After(3 * reloadDelay):
	}
}

func TestWatchConfigKeepsDevicesOnBadFile(t *testing.T) {
	path := writeDeviceFile(t, "devices: []\n")
	reloaded := startWatch(t, path)

	replaceFile(t, path, "devices: [")
	select {
	case <-reloaded:
		t.Fatal("invalid device file was applied")
	case <-time.After(5 * reloadDelay):
	}

	replaceFile(t, path, phoneDevices)
	waitForDevice(t, reloaded, "phone")
}
