package featureflag

import (
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// keyDelimiter replaces viper's default "." so dotted flag names stay a single key
const keyDelimiter = "::"

// FileClient evaluates flags from a YAML file and reloads it whenever the file changes.
//
// The file format is:
//
//	flags:
//	  platform.use-socket-data-channel:
//	    default: false
//	    contexts:
//	      "connection:3f1c...": true
type FileClient struct {
	*store
	v    *viper.Viper
	path string
}

// NewFileClient loads path and starts watching it for changes
func NewFileClient(path string) (*FileClient, error) {
	if path == "" {
		return nil, fmt.Errorf("feature flag file path is required")
	}

	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	c := &FileClient{store: newStore(), v: v, path: path}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read feature flag file %s: %w", path, err)
	}
	if err := c.load(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if err := c.load(); err != nil {
			slog.Error("Failed to reload feature flags, keeping previous values",
				"path", e.Name,
				"error", err)
			return
		}
		slog.Info("Feature flags reloaded", "path", e.Name)
	})
	v.WatchConfig()

	slog.Info("Feature flags loaded", "path", path)
	return c, nil
}

func (c *FileClient) load() error {
	var flags map[string]definition
	if err := c.v.UnmarshalKey("flags", &flags); err != nil {
		return fmt.Errorf("failed to parse feature flag file %s: %w", c.path, err)
	}
	c.store.replace(flags)
	return nil
}
