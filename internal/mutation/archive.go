// ABOUTME: Archive composite operation: snapshot the live entity, then delete it
// ABOUTME: The archive record is written first so a failure never loses data

package mutation

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/2389/para-sync/internal/entity"
)

// ArchiveItem moves the live entity id of type t into archives with the
// given reason.
//
// The archive record is written before the original is deleted. If that
// write fails the original is untouched and the error is returned as is.
// If the delete fails afterwards, the archive record is returned together
// with a *PartialArchiveError.
func (g *Gateway) ArchiveItem(ctx context.Context, id string, t entity.Type, reason string) (*entity.Entity, error) {
	if !t.Valid() || t == entity.TypeArchive {
		return nil, fmt.Errorf("archive %q: %w", t, ErrUnknownType)
	}
	if id == "" {
		return nil, fmt.Errorf("archive %s: %w", t, ErrMissingID)
	}
	c := t.Collection()

	live, err := g.get(ctx, c, id)
	if err != nil {
		return nil, fmt.Errorf("archive %s %s: %w", t, id, err)
	}

	record, err := g.Create(ctx, entity.Archives, archiveRecord(live, t, reason))
	if err != nil {
		return nil, fmt.Errorf("archive %s %s: %w", t, id, err)
	}

	if err := g.Delete(ctx, c, id); err != nil {
		g.logger.Error("archive left original in place",
			"type", t,
			"id", id,
			"archive_id", record.ID,
			"error", err)
		return record, &PartialArchiveError{
			ArchiveID:  record.ID,
			OriginalID: id,
			Type:       t,
			Err:        err,
		}
	}

	g.logger.Info("item archived", "type", t, "id", id, "archive_id", record.ID)
	return record, nil
}

// archiveRecord snapshots live. Columns without a home on an archive row
// are kept in Extra next to the original's own extra columns.
func archiveRecord(live *entity.Entity, t entity.Type, reason string) *entity.Entity {
	extra := maps.Clone(live.Extra)
	if extra == nil {
		extra = make(map[string]any)
	}
	keep := func(k, v string) {
		if v != "" {
			extra[k] = v
		}
	}
	keep("status", live.Status)
	keep("priority", live.Priority)
	keep(entity.FieldProjectID, live.ProjectID)
	keep(entity.FieldAreaID, live.AreaID)
	keep(entity.FieldGoalID, live.GoalID)
	if live.DueDate != nil {
		extra["due_date"] = live.DueDate.UTC().Format(time.RFC3339)
	}
	extra["original_created_at"] = live.CreatedAt.UTC().Format(time.RFC3339Nano)

	return &entity.Entity{
		Title:        live.Title,
		Description:  live.Description,
		Reason:       reason,
		OriginalID:   live.ID,
		OriginalType: t,
		Extra:        extra,
	}
}
