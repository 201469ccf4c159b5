package main

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/spf13/pflag"

	"github.com/pathwatch/pathwatch/pkg/inotify"
)

// maskFlag is a pflag.Value that accumulates an event mask from
// comma-separated event kind names. It may be specified multiple times.
type maskFlag struct {
	// mask is the accumulated event mask.
	mask inotify.Mask
}

// String implements pflag.Value.String.
func (f *maskFlag) String() string {
	if f.mask == 0 {
		return ""
	}
	return f.mask.String()
}

// Set implements pflag.Value.Set.
func (f *maskFlag) Set(value string) error {
	for _, name := range strings.Split(value, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		bit, ok := inotify.NameToMask(name)
		if !ok {
			return errors.Errorf("unknown event kind: %s", name)
		}
		f.mask |= bit
	}
	return nil
}

// Type implements pflag.Value.Type.
func (f *maskFlag) Type() string {
	return "events"
}

// maskFlag must implement pflag.Value.
var _ pflag.Value = &maskFlag{}
