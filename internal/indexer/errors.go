package indexer

import (
	"errors"
	"fmt"

	"github.com/steemit/hivemind-indexer/internal/steem"
	"github.com/steemit/hivemind-indexer/pkg/normalize"
)

// PolicyError is a community validation failure. The post is still indexed.
type PolicyError struct {
	Author   string
	Permlink string
	Reason   string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s/%s: %s", e.Author, e.Permlink, e.Reason)
}

// NotFoundError reports data that should exist but does not
type NotFoundError struct {
	What string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Key)
}

// ReentrancyError is returned when votes are touched during a flush. The
// caller must stop.
type ReentrancyError struct {
	Op string
}

func (e *ReentrancyError) Error() string {
	return fmt.Sprintf("%s called while a vote flush is in progress", e.Op)
}

// StoreError wraps a failed store call. The whole operation may be retried.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// IsSkippable reports whether the error concerns a single operation and
// processing may continue with the next one.
func IsSkippable(err error) bool {
	var (
		policy   *PolicyError
		notFound *NotFoundError
		format   *normalize.FormatError
		decode   *steem.DecodeError
	)
	return errors.As(err, &policy) ||
		errors.As(err, &notFound) ||
		errors.As(err, &format) ||
		errors.As(err, &decode)
}
