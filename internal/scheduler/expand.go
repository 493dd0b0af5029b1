package scheduler

import (
	"fmt"

	"pingflow/internal/domain"
)

// Expand lists the URLs a task invokes, in order and with duplicates kept.
// The target is round-tripped through its stored encoding so a malformed
// batch is caught here rather than skipped.
func Expand(t domain.Task) ([]string, error) {
	target, err := domain.DecodeTarget(t.Target.Encode())
	if err != nil {
		return nil, fmt.Errorf("expand task %s: %w", t.ID, err)
	}
	urls := target.URLs()
	if len(urls) == 0 {
		return nil, fmt.Errorf("expand task %s: %w: no targets", t.ID, domain.ErrMalformedTarget)
	}
	return urls, nil
}
