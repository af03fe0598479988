// Package errs holds the error taxonomy shared by the ingest job and the
// query service, plus small wrapping helpers that keep errors.Is working.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamFetch is a network or API failure from Reddit or the market data provider.
	ErrUpstreamFetch = errors.New("upstream fetch failed")
	// ErrScoring means the sentiment scorer was unavailable or rejected the input.
	ErrScoring = errors.New("sentiment scoring failed")
	// ErrTimestampParse is absorbed by the caller; the timestamp becomes NULL.
	ErrTimestampParse = errors.New("timestamp parse failed")
	// ErrStorageCommit marks a rolled back ingest transaction.
	ErrStorageCommit = errors.New("storage commit failed")
	// ErrJobRunning is returned when another ingest run holds the job lock.
	ErrJobRunning = errors.New("ingest job already running")
	// ErrCommentCycle rejects a parent link that would make a comment its own ancestor.
	ErrCommentCycle = errors.New("comment parent would create a cycle")
	ErrNotFound     = errors.New("not found")
)

// Wrap adds context and preserves the error chain (errors.Is/As works).
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf adds formatted context and preserves the error chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// Mark tags err with a taxonomy sentinel so both are matchable with errors.Is.
func Mark(err error, kind error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}
