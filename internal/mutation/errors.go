// ABOUTME: Errors specific to user-initiated writes
// ABOUTME: PartialArchiveError marks an archive that was written but whose original survived

package mutation

import (
	"errors"
	"fmt"

	"github.com/2389/para-sync/internal/entity"
)

var (
	// ErrUnknownType is returned for an entity type outside the seven families.
	ErrUnknownType = errors.New("unknown entity type")
	// ErrMissingID is returned when update, delete or archive get no id.
	ErrMissingID = errors.New("id is required")
)

// PartialArchiveError reports that the archive record was written but the
// original could not be deleted. Both now exist; the caller should prompt
// for reconciliation rather than retry blindly.
type PartialArchiveError struct {
	ArchiveID  string
	OriginalID string
	Type       entity.Type
	Err        error
}

func (e *PartialArchiveError) Error() string {
	return fmt.Sprintf("archived %s %s as %s but failed to delete original: %v",
		e.Type, e.OriginalID, e.ArchiveID, e.Err)
}

func (e *PartialArchiveError) Unwrap() error { return e.Err }

// IsPartialArchive reports whether err is a PartialArchiveError.
func IsPartialArchive(err error) bool {
	var pe *PartialArchiveError
	return errors.As(err, &pe)
}
