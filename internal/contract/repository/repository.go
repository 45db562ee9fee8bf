package repository

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/procurely/contracting-api/internal/contract"
)

// Repository is the revisioned persistence contract. Save and Insert perform
// compare-and-swap writes keyed on the document's rev token; Get reports
// tombstoned and foreign documents as errors rather than decoding them.
type Repository interface {
	// Get loads a contract by id. Returns contract.ErrNotFound for unknown
	// ids and documents of a foreign doc type, contract.ErrArchived for
	// tombstoned legacy documents.
	Get(ctx context.Context, id string) (*contract.Contract, error)

	// Insert stores a brand-new contract, sealing its first revision (the
	// diff against an empty snapshot). Fails with contract.ErrConflict if
	// the id already exists.
	Insert(ctx context.Context, c *contract.Contract, author string) error

	// Save persists a mutated contract. src is the plain projection
	// captured at request entry; an empty diff against it is a successful
	// no-op that writes nothing. On a non-empty diff a revision is
	// appended, dateModified is bumped strictly monotonically and the
	// write is CAS-guarded on the rev token the contract was loaded with.
	Save(ctx context.Context, c *contract.Contract, src map[string]any, author string) error

	// List enumerates minimal listing records ordered by
	// (dateModified, id) in the requested direction.
	List(ctx context.Context, opts ListOptions) ([]ListItem, error)
}

// ListOptions control one page of the listing/feed engine.
type ListOptions struct {
	// Offset excludes records at or before (after, when descending) the
	// given modification time. Nil starts at the natural beginning of the
	// requested direction.
	Offset     *time.Time
	Limit      int
	Descending bool
	// Mode filters the test partition: "" excludes test contracts,
	// "test" selects only them, "_all_" disables the filter.
	Mode string
	// OptFields are extra view fields added to each record.
	OptFields []string
}

// ListItem is one minimal listing record: {id, dateModified} plus any
// requested opt fields.
type ListItem struct {
	ID           string
	DateModified time.Time
	Fields       map[string]any
}

// NewRevToken mints the next concurrency token after prev. Tokens are
// "<n>-<hex>" with a strictly increasing sequence number, so conflicting
// writers can never mint the same token.
func NewRevToken(prev string) string {
	n := 0
	if i := strings.IndexByte(prev, '-'); i > 0 {
		n, _ = strconv.Atoi(prev[:i])
	}
	return strconv.Itoa(n+1) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// BumpDateModified returns the next watermark value: now, unless the clock
// has not advanced past prev, in which case prev is nudged by one millisecond
// (the store's timestamp granularity) to keep the watermark strictly
// increasing.
func BumpDateModified(prev, now time.Time) time.Time {
	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(prev) {
		return prev.Add(time.Millisecond)
	}
	return now
}

// seal computes the revision for a pending save and mutates c accordingly.
// Returns false when the diff is empty and nothing must be written.
func seal(c *contract.Contract, src map[string]any, author string, now time.Time) bool {
	plain := contract.Project(c, nil, contract.PurposePlain, "")
	patch := contract.Diff(src, plain)
	if len(patch) == 0 {
		return false
	}
	date := now.UTC().Truncate(time.Millisecond)
	c.Revisions = append(c.Revisions, contract.Revision{
		Author:  author,
		Date:    &date,
		Changes: patch,
		Rev:     c.Rev,
	})
	c.DateModified = BumpDateModified(c.DateModified, now)
	return true
}
