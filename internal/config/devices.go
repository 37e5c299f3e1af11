package config

import (
	"fmt"
	"strings"

	"keebie/internal/docstore"
	"keebie/internal/layer"
)

// DevicePathPrefix is the symlink prefix created by keebie's udev rules.
const DevicePathPrefix = "/dev/input/keebie"

// DeviceConfig describes one macro device.
type DeviceConfig struct {
	Name string
	// Event is the evdev node to open.
	Event string
	// Udev holds the match rules used to generate the device's udev rule.
	Udev         []string
	InitialLayer string
}

// DeviceConfigFrom decodes a device document. Absent fields take their
// defaults: event /dev/input/keebie<name>, initial layer "default".
func DeviceConfigFrom(name string, doc docstore.Document) (DeviceConfig, ValidationErrors) {
	cfg := DeviceConfig{
		Name:         name,
		Event:        DevicePathPrefix + name,
		InitialLayer: layer.DefaultName,
	}
	var warnings ValidationErrors

	if raw, ok := doc["event"]; ok {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			cfg.Event = strings.TrimSpace(s)
		} else {
			warnings = append(warnings, TypeError(name+".event", "non-empty string"))
		}
	}

	if _, ok := doc["udev"]; ok {
		rules, ok := doc.Strings("udev")
		if !ok {
			warnings = append(warnings, TypeError(name+".udev", "list of strings"))
		}
		cfg.Udev = rules
	}

	if raw, ok := doc["initial_layer"]; ok {
		if s, ok := raw.(string); ok && strings.TrimSpace(s) != "" {
			cfg.InitialLayer = layer.Normalize(s)
		} else {
			warnings = append(warnings, TypeError(name+".initial_layer", "non-empty string"))
		}
	}

	return cfg, warnings
}

// Document renders c as a device document.
func (c DeviceConfig) Document() docstore.Document {
	udev := make([]any, 0, len(c.Udev))
	for _, r := range c.Udev {
		udev = append(udev, r)
	}
	return docstore.Document{
		"event":         c.Event,
		"udev":          udev,
		"initial_layer": c.InitialLayer,
	}
}

// LoadDevices reads every device document in dir. Unreadable documents are
// skipped and reported.
func LoadDevices(dir string) (map[string]DeviceConfig, ValidationErrors) {
	docs := docstore.New(dir, docstore.FormatYAML)
	names, err := docs.Names()
	if err != nil {
		return map[string]DeviceConfig{}, ValidationErrors{{Field: "devices", Message: err.Error()}}
	}

	configs := make(map[string]DeviceConfig, len(names))
	var warnings ValidationErrors
	for _, name := range names {
		doc, err := docs.Load(name)
		if err != nil {
			warnings = append(warnings, ValidationError{Field: name, Message: fmt.Sprintf("skipped: %v", err)})
			continue
		}
		cfg, w := DeviceConfigFrom(name, doc)
		warnings = append(warnings, w...)
		configs[name] = cfg
	}
	return configs, warnings
}
