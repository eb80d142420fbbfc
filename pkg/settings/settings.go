// Package settings manages persistent user settings for the p4rtctl CLI.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Settings holds persistent user preferences
type Settings struct {
	// DefaultInventory is the inventory file to use when --inventory is not specified
	DefaultInventory string `json:"default_inventory,omitempty"`

	// DefaultDevice is the device to use when --device is not specified
	DefaultDevice string `json:"default_device,omitempty"`

	// RedisAddr enables the shared election id store when set
	RedisAddr string `json:"redis_addr,omitempty"`

	// RedisDB selects the Redis database of the election id store
	RedisDB int `json:"redis_db,omitempty"`
}

// Keys lists the setting names accepted by Set and Get, in display order.
var Keys = []string{"default_inventory", "default_device", "redis_addr", "redis_db"}

// DefaultSettingsPath returns the default path for the settings file
func DefaultSettingsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "p4rt_settings.json"
	}
	return filepath.Join(home, ".p4rt", "settings.json")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path
func LoadFrom(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty settings if file doesn't exist
			return s, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}

	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Set assigns a setting by name. An empty value clears it.
func (s *Settings) Set(key, value string) error {
	switch key {
	case "default_inventory":
		s.DefaultInventory = value
	case "default_device":
		s.DefaultDevice = value
	case "redis_addr":
		s.RedisAddr = value
	case "redis_db":
		if value == "" {
			s.RedisDB = 0
			return nil
		}
		db, err := strconv.Atoi(value)
		if err != nil || db < 0 {
			return fmt.Errorf("redis_db must be a non-negative integer, got %q", value)
		}
		s.RedisDB = db
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// Get returns a setting by name.
func (s *Settings) Get(key string) (string, error) {
	switch key {
	case "default_inventory":
		return s.DefaultInventory, nil
	case "default_device":
		return s.DefaultDevice, nil
	case "redis_addr":
		return s.RedisAddr, nil
	case "redis_db":
		return strconv.Itoa(s.RedisDB), nil
	default:
		return "", fmt.Errorf("unknown setting %q", key)
	}
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{}
}
