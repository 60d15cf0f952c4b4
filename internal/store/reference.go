package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/nidhogg/faculty-map/internal/world"
)

// LoadReference reads teachers, departments and class schedules.
// Rows come back in their stored position so first-match lookups stay stable.
func (s *Store) LoadReference(ctx context.Context) (*world.ReferenceData, error) {
	ref := &world.ReferenceData{}

	rows, err := s.db.Query(ctx, `SELECT id, name, lat, lng FROM teachers ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	ref.Agents, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (world.Agent, error) {
		var a world.Agent
		err := row.Scan(&a.ID, &a.Name, &a.Location.Lat, &a.Location.Lng)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan teachers: %w", err)
	}

	rows, err = s.db.Query(ctx, `SELECT name, lat, lng FROM departments ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	ref.Zones, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (world.Zone, error) {
		var z world.Zone
		err := row.Scan(&z.Name, &z.Location.Lat, &z.Location.Lng)
		return z, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan departments: %w", err)
	}

	rows, err = s.db.Query(ctx, `SELECT teacher_id, weekday, hour, department FROM class_schedule ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list class schedule: %w", err)
	}
	ref.Schedule, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (world.ScheduleEntry, error) {
		var (
			e       world.ScheduleEntry
			weekday int16
			hour    int16
		)
		err := row.Scan(&e.AgentID, &weekday, &hour, &e.Department)
		e.Day = time.Weekday(weekday)
		e.Hour = int(hour)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan class schedule: %w", err)
	}

	if err := ref.Validate(); err != nil {
		return nil, fmt.Errorf("reference data in postgres: %w", err)
	}
	s.logger.Info("reference data loaded from postgres",
		zap.Int("teachers", len(ref.Agents)),
		zap.Int("departments", len(ref.Zones)),
		zap.Int("classes", len(ref.Schedule)))
	return ref, nil
}

// ImportReference replaces all reference tables with ref in one transaction.
func (s *Store) ImportReference(ctx context.Context, ref *world.ReferenceData) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `TRUNCATE class_schedule, departments, teachers`); err != nil {
		return fmt.Errorf("truncate reference tables: %w", err)
	}

	batch := &pgx.Batch{}
	for i, a := range ref.Agents {
		batch.Queue(`INSERT INTO teachers (id, name, lat, lng, position) VALUES ($1, $2, $3, $4, $5)`,
			a.ID, a.Name, a.Location.Lat, a.Location.Lng, i)
	}
	for i, z := range ref.Zones {
		batch.Queue(`INSERT INTO departments (name, lat, lng, position) VALUES ($1, $2, $3, $4)`,
			z.Name, z.Location.Lat, z.Location.Lng, i)
	}
	for _, e := range ref.Schedule {
		batch.Queue(`INSERT INTO class_schedule (teacher_id, weekday, hour, department) VALUES ($1, $2, $3, $4)`,
			e.AgentID, int16(e.Day), int16(e.Hour), e.Department)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert reference rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	s.logger.Info("reference data imported",
		zap.Int("teachers", len(ref.Agents)),
		zap.Int("departments", len(ref.Zones)),
		zap.Int("classes", len(ref.Schedule)))
	return nil
}
