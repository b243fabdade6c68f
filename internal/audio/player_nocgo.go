//go:build nocgo
// +build nocgo

package audio

import "errors"

// Stub for builds without CGO

// OtoDevice is unavailable without CGO.
type OtoDevice struct {
	*deviceCore
}

// NewOtoDevice always fails in nocgo builds.
func NewOtoDevice(format Format, platform *PlatformInfo) (*OtoDevice, error) {
	return nil, errors.New("audio not available in nocgo build")
}

// Format returns the zero format.
func (d *OtoDevice) Format() Format {
	return Format{}
}
