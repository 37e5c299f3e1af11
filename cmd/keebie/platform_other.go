//go:build !linux

package main

import (
	"errors"

	"keebie/internal/device"
)

var errUnsupported = errors.New("evdev devices are only available on Linux")

var openDevice device.Opener = func(string) (device.Handle, error) {
	return nil, errUnsupported
}

const inputDir = "/dev/input"
