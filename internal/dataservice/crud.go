// ABOUTME: Write API of the facade: generic and per-family create/update/delete
// ABOUTME: Every call goes through the mutation gateway bound to the current user

package dataservice

import (
	"context"

	"github.com/2389/para-sync/internal/entity"
)

// Create inserts e into c for the bound user.
func (s *Service) Create(ctx context.Context, c entity.Collection, e *entity.Entity) (*entity.Entity, error) {
	g, err := s.session()
	if err != nil {
		return nil, err
	}
	return g.Create(ctx, c, e)
}

// Update patches row id of c.
func (s *Service) Update(ctx context.Context, c entity.Collection, id string, p entity.Patch) (*entity.Entity, error) {
	g, err := s.session()
	if err != nil {
		return nil, err
	}
	return g.Update(ctx, c, id, p)
}

// Delete removes row id of c.
func (s *Service) Delete(ctx context.Context, c entity.Collection, id string) error {
	g, err := s.session()
	if err != nil {
		return err
	}
	return g.Delete(ctx, c, id)
}

// ArchiveItem snapshots the entity into archives, then deletes it. See
// mutation.Gateway.ArchiveItem for the failure modes.
func (s *Service) ArchiveItem(ctx context.Context, id string, t entity.Type, reason string) (*entity.Entity, error) {
	g, err := s.session()
	if err != nil {
		return nil, err
	}
	return g.ArchiveItem(ctx, id, t, reason)
}

// CreateArea creates an area for the bound user.
func (s *Service) CreateArea(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	return s.Create(ctx, entity.Areas, e)
}

// UpdateArea patches area id.
func (s *Service) UpdateArea(ctx context.Context, id string, p entity.Patch) (*entity.Entity, error) {
	return s.Update(ctx, entity.Areas, id, p)
}

// DeleteArea removes area id.
func (s *Service) DeleteArea(ctx context.Context, id string) error {
	return s.Delete(ctx, entity.Areas, id)
}

// CreateProject creates a project for the bound user.
func (s *Service) CreateProject(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	return s.Create(ctx, entity.Projects, e)
}

// UpdateProject patches project id.
func (s *Service) UpdateProject(ctx context.Context, id string, p entity.Patch) (*entity.Entity, error) {
	return s.Update(ctx, entity.Projects, id, p)
}

// DeleteProject removes project id.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	return s.Delete(ctx, entity.Projects, id)
}

// CreateTask creates a task for the bound user.
func (s *Service) CreateTask(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	return s.Create(ctx, entity.Tasks, e)
}

// UpdateTask patches task id.
func (s *Service) UpdateTask(ctx context.Context, id string, p entity.Patch) (*entity.Entity, error) {
	return s.Update(ctx, entity.Tasks, id, p)
}

// DeleteTask removes task id.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return s.Delete(ctx, entity.Tasks, id)
}

// CreateResource creates a resource for the bound user.
func (s *Service) CreateResource(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	return s.Create(ctx, entity.Resources, e)
}

// UpdateResource patches resource id.
func (s *Service) UpdateResource(ctx context.Context, id string, p entity.Patch) (*entity.Entity, error) {
	return s.Update(ctx, entity.Resources, id, p)
}

// DeleteResource removes resource id.
func (s *Service) DeleteResource(ctx context.Context, id string) error {
	return s.Delete(ctx, entity.Resources, id)
}

// CreateArchive creates an archive for the bound user.
func (s *Service) CreateArchive(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	return s.Create(ctx, entity.Archives, e)
}

// UpdateArchive patches archive id.
func (s *Service) UpdateArchive(ctx context.Context, id string, p entity.Patch) (*entity.Entity, error) {
	return s.Update(ctx, entity.Archives, id, p)
}

// DeleteArchive removes archive id.
func (s *Service) DeleteArchive(ctx context.Context, id string) error {
	return s.Delete(ctx, entity.Archives, id)
}

// CreateGoal creates a goal for the bound user.
func (s *Service) CreateGoal(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	return s.Create(ctx, entity.Goals, e)
}

// UpdateGoal patches goal id.
func (s *Service) UpdateGoal(ctx context.Context, id string, p entity.Patch) (*entity.Entity, error) {
	return s.Update(ctx, entity.Goals, id, p)
}

// DeleteGoal removes goal id.
func (s *Service) DeleteGoal(ctx context.Context, id string) error {
	return s.Delete(ctx, entity.Goals, id)
}

// CreateHabit creates a habit for the bound user.
func (s *Service) CreateHabit(ctx context.Context, e *entity.Entity) (*entity.Entity, error) {
	return s.Create(ctx, entity.Habits, e)
}

// UpdateHabit patches habit id.
func (s *Service) UpdateHabit(ctx context.Context, id string, p entity.Patch) (*entity.Entity, error) {
	return s.Update(ctx, entity.Habits, id, p)
}

// DeleteHabit removes habit id.
func (s *Service) DeleteHabit(ctx context.Context, id string) error {
	return s.Delete(ctx, entity.Habits, id)
}
