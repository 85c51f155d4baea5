// Package config implements the §6.5 configuration surface: a YAML
// file of defaults, overridden by command-line flags, following the
// same "yaml.v3 for data, pflag for runtime overrides" split the
// teacher uses (src/deviceid.go loads tocalls.yaml; cmd/direwolf
// parses its flags with pflag).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sidechain-audio/alsaengine/device"
	"github.com/sidechain-audio/alsaengine/format"
)

// File is the on-disk shape of the engine's YAML configuration file.
type File struct {
	Device      string `yaml:"device"`
	Direction   string `yaml:"direction"` // "playback" or "capture"
	RateHz      int    `yaml:"rate_hz"`
	Channels    int    `yaml:"channels"`
	Format      string `yaml:"format"`
	PeriodSize  int    `yaml:"period_size_frames"`
	BufferSize  int    `yaml:"buffer_size_frames"`
	ThresholdFrames int `yaml:"threshold_frames"`
	Safety      float64 `yaml:"safety_seconds"`
	EnableChannelMapEnumeration bool `yaml:"enable_channel_map_enumeration"`
	Slaved      bool   `yaml:"slaved"`
}

// Defaults mirrors a freshly constructed File with the engine's
// built-in fallbacks, used when no config file is given.
func Defaults() File {
	return File{
		Device:          "default",
		Direction:       "playback",
		RateHz:          48000,
		Channels:        2,
		Format:          "S16LE",
		PeriodSize:      1024,
		ThresholdFrames: 1024,
	}
}

// Load reads and parses a YAML config file. A missing path is not an
// error: Defaults() is returned instead, matching deviceid_init's
// tolerance of an absent tocalls.yaml.
func Load(path string) (File, error) {
	f := Defaults()
	if path == "" {
		return f, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// ParseEncoding maps a YAML/flag format name to format.Encoding.
func ParseEncoding(name string) (format.Encoding, error) {
	switch name {
	case "U8":
		return format.EncodingU8, nil
	case "S16LE":
		return format.EncodingS16LE, nil
	case "S24LE":
		return format.EncodingS24LE, nil
	case "S24_32LE":
		return format.EncodingS24_32LE, nil
	case "S32LE":
		return format.EncodingS32LE, nil
	case "F32LE":
		return format.EncodingF32LE, nil
	default:
		return format.EncodingUnknown, fmt.Errorf("config: unknown format %q", name)
	}
}

// ParseDirection maps a YAML/flag direction name to device.Direction.
func ParseDirection(name string) (device.Direction, error) {
	switch name {
	case "playback":
		return device.Playback, nil
	case "capture":
		return device.Capture, nil
	default:
		return 0, fmt.Errorf("config: unknown direction %q", name)
	}
}
