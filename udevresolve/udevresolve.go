// Package udevresolve turns the §6.5 configuration's human-chosen
// "device" string (a substring of a card's USB product name, or an
// already-concrete ALSA node like "hw:1,0") into a concrete device
// node, by enumerating the "sound" subsystem. It generalizes the
// teacher's cgo libudev enumeration in src/cm108.go — which walked
// udev_enumerate/udev_device calls by hand to find a CM108 GPIO
// sibling of a sound card — onto the pure-Go go-udev wrapper, querying
// a USB parent's idVendor/product sysattrs the same way.
package udevresolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jochenvg/go-udev"
)

// ErrNotFound is returned when no sound-subsystem device node matches
// the requested name.
var ErrNotFound = errors.New("udevresolve: no matching sound device")

// Card describes one enumerated ALSA sound-subsystem device node and
// the USB product metadata of its nearest usb_device ancestor, if any
// (mirroring cm108.go's idVendor/idProduct/product sysattr reads).
type Card struct {
	DevNode string
	SysPath string
	Vendor  string
	Product string
}

// Enumerate lists every device node under the "sound" subsystem, the
// Go equivalent of cm108.go's udev_enumerate_add_match_subsystem("sound")
// scan.
func Enumerate() ([]Card, error) {
	u := udev.Udev{}
	e := u.NewEnumerate()
	if err := e.AddMatchSubsystem("sound"); err != nil {
		return nil, fmt.Errorf("udevresolve: add match: %w", err)
	}
	devices, err := e.Devices()
	if err != nil {
		return nil, fmt.Errorf("udevresolve: enumerate: %w", err)
	}

	var out []Card
	for _, d := range devices {
		node := d.Devnode()
		if node == "" {
			continue
		}
		c := Card{DevNode: node, SysPath: d.Syspath()}
		if parent := d.ParentWithSubsystemDevtype("usb", "usb_device"); parent != nil {
			c.Vendor = parent.SysattrValue("idVendor")
			c.Product = parent.SysattrValue("product")
		}
		out = append(out, c)
	}
	return out, nil
}

// Resolve turns a configuration "device" string into a concrete ALSA
// device node (§6.5). A name already shaped like an ALSA PCM
// identifier ("hw:...", "plughw:...", "default", "sysdefault:...") is
// passed through unchanged; anything else is matched case-insensitively
// against each enumerated card's USB product string, same as cm108.go
// hunting for "C-Media" by product name.
func Resolve(name string) (string, error) {
	if looksLikeALSAName(name) {
		return name, nil
	}

	cards, err := Enumerate()
	if err != nil {
		return "", err
	}
	needle := strings.ToLower(name)
	for _, c := range cards {
		if strings.Contains(strings.ToLower(c.Product), needle) {
			return c.DevNode, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

func looksLikeALSAName(name string) bool {
	for _, prefix := range []string{"hw:", "plughw:", "default", "sysdefault:", "dmix:", "dsnoop:"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}
