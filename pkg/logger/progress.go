package logger

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker logs progress of long-running extractions at fixed
// record-count intervals. Large Tally exports can run to millions of
// vouchers, so the interval is count-based rather than time-based: a stalled
// parse should go quiet in the logs, not keep emitting identical lines.
type ProgressTracker struct {
	logger    Logger
	operation string
	interval  int64
	current   int64
	lastLog   int64
	startTime time.Time
	mutex     sync.Mutex
}

// NewProgressTracker creates a tracker that logs every interval records.
// A non-positive interval defaults to 5000 (the ledger-stream default).
func NewProgressTracker(operation string, interval int64, log Logger) *ProgressTracker {
	if log == nil {
		log = GetGlobalLogger()
	}
	if interval <= 0 {
		interval = 5000
	}

	tracker := &ProgressTracker{
		logger:    log.WithComponent("progress"),
		operation: operation,
		interval:  interval,
		startTime: time.Now(),
	}

	tracker.logger.WithField("operation", operation).Debug("Starting operation")
	return tracker
}

// Increment advances the counter by one record
func (p *ProgressTracker) Increment() {
	p.Add(1)
}

// Add advances the counter by delta records
func (p *ProgressTracker) Add(delta int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += delta
	if p.current-p.lastLog >= p.interval {
		p.logProgress()
		p.lastLog = p.current
	}
}

// Count returns the number of records processed so far
func (p *ProgressTracker) Count() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.current
}

// Complete logs final statistics for the operation
func (p *ProgressTracker) Complete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	duration := time.Since(p.startTime)
	p.logger.WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"duration":  duration.String(),
		"rate":      fmt.Sprintf("%.0f/sec", rate(p.current, duration)),
	}).Info("Operation completed")
}

// CompleteWithError logs final statistics when the operation failed partway
func (p *ProgressTracker) CompleteWithError(err error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	duration := time.Since(p.startTime)
	p.logger.WithError(err).WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"duration":  duration.String(),
	}).Error("Operation failed")
}

func (p *ProgressTracker) logProgress() {
	duration := time.Since(p.startTime)
	p.logger.WithFields(Fields{
		"operation": p.operation,
		"processed": p.current,
		"rate":      fmt.Sprintf("%.0f/sec", rate(p.current, duration)),
	}).Info("Progress update")
}

func rate(count int64, duration time.Duration) float64 {
	if duration.Seconds() <= 0 {
		return 0
	}
	return float64(count) / duration.Seconds()
}

// TimedOperation executes fn and logs its duration and outcome
func TimedOperation(operation string, log Logger, fn func() error) error {
	if log == nil {
		log = GetGlobalLogger()
	}
	start := time.Now()

	err := fn()

	fields := Fields{
		"operation": operation,
		"duration":  time.Since(start).String(),
	}
	if err != nil {
		log.WithError(err).WithFields(fields).Error("Operation failed")
	} else {
		log.WithFields(fields).Info("Operation completed")
	}

	return err
}
