// SPDX-License-Identifier: MIT
package transport

import (
	"time"

	"micspectrum/internal/analysis"
	applog "micspectrum/internal/log"
)

// LoggingSink logs a one-line summary of the spectrum at DEBUG level.
type LoggingSink struct {
	limiter *applog.Limiter
}

// NewLoggingSink creates a sink that logs at most once per interval.
func NewLoggingSink(interval time.Duration) *LoggingSink {
	applog.Infof("Transport: Using LoggingSink (every %s)", interval)
	return &LoggingSink{limiter: applog.NewLimiter(interval)}
}

// Publish logs the loudest displayed bin.
func (ls *LoggingSink) Publish(snap *analysis.Snapshot) error {
	if applog.GetLevel() > applog.LevelDebug {
		return nil
	}
	if ok, _ := ls.limiter.Allow(); !ok {
		return nil
	}

	bin, peak := snap.Peak()
	applog.Debugf("Spectrum #%d: peak bin %d (%.1f Hz) = %.4f, frames=%d dropped=%d",
		snap.Seq, bin, snap.BinFrequency(bin), peak, snap.Frames, snap.Dropped)
	return nil
}

// Close is a no-op for LoggingSink.
func (ls *LoggingSink) Close() error {
	return nil
}

// Ensure LoggingSink satisfies the interface at compile time.
var _ Sink = (*LoggingSink)(nil)
