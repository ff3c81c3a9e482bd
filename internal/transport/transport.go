// SPDX-License-Identifier: MIT
package transport

import (
	"errors"

	"micspectrum/internal/analysis"
)

// Sink receives a snapshot after every analysis tick. Publish runs on the
// analysis goroutine: the snapshot is only valid for the duration of the
// call and implementations that hand it to another goroutine must copy it.
// Publish must not block for long.
type Sink interface {
	Publish(snap *analysis.Snapshot) error
	Close() error
}

// Multi fans a snapshot out to several sinks.
type Multi []Sink

// Publish calls every sink and joins their errors.
func (m Multi) Publish(snap *analysis.Snapshot) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Sink = Multi(nil)
