package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// SetValue sets a configuration value by key.
// Supported keys:
//   - game_dir, game_id, game_version: string
//   - library_dir: string - library directory name inside the game directory
//   - history_mode: string - move or copy
//   - strict_archive_locations, hooks_enabled: bool
//   - max_concurrent_loads: int
//   - archive_managers: comma separated manager IDs
//   - output_format, log_level: string
func (c *Config) SetValue(key, value string) error {
	switch key {
	case "game_dir":
		c.Game.Dir = value
	case "game_id":
		c.Game.ID = value
	case "game_version":
		c.Game.Version = value
	case "library_dir":
		c.Settings.LibraryDir = value
	case "history_mode":
		c.Settings.HistoryMode = strings.ToLower(value)
	case "strict_archive_locations", "hooks_enabled":
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %s", key, value)
		}
		if key == "hooks_enabled" {
			c.Settings.HooksEnabled = boolVal
		} else {
			c.Settings.StrictArchiveLocations = boolVal
		}
	case "max_concurrent_loads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		c.Settings.MaxConcurrentLoads = n
	case "archive_managers":
		c.Settings.ArchiveManagers = nil
		for _, id := range strings.Split(value, ",") {
			if id = strings.TrimSpace(id); id != "" {
				c.Settings.ArchiveManagers = append(c.Settings.ArchiveManagers, id)
			}
		}
	case "output_format":
		c.Settings.OutputFormat = value
	case "log_level":
		c.Settings.LogLevel = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return c.Validate()
}

// GetValue returns the value of key as a string.
func (c *Config) GetValue(key string) (string, error) {
	switch key {
	case "game_dir":
		return c.Game.Dir, nil
	case "game_id":
		return c.Game.ID, nil
	case "game_version":
		return c.Game.Version, nil
	}
	value, ok := c.ToMap()[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
	return value, nil
}

// ToMap returns the settings keyed by their YAML names.
// This is useful for displaying the configuration.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)

	settingsValue := reflect.ValueOf(c.Settings)
	settingsType := settingsValue.Type()

	for i := 0; i < settingsValue.NumField(); i++ {
		field := settingsType.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		// Handle yaml tags with options (e.g., "archive_managers,omitempty")
		yamlKey := strings.Split(yamlTag, ",")[0]

		fieldValue := settingsValue.Field(i)
		var strValue string

		switch fieldValue.Kind() {
		case reflect.Bool:
			strValue = strconv.FormatBool(fieldValue.Bool())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			strValue = strconv.FormatInt(fieldValue.Int(), 10)
		case reflect.Slice:
			parts := make([]string, 0, fieldValue.Len())
			for j := 0; j < fieldValue.Len(); j++ {
				parts = append(parts, fmt.Sprint(fieldValue.Index(j).Interface()))
			}
			strValue = strings.Join(parts, ",")
		case reflect.String:
			strValue = fieldValue.String()
		default:
			strValue = fmt.Sprintf("%v", fieldValue.Interface())
		}

		result[yamlKey] = strValue
	}

	return result
}
