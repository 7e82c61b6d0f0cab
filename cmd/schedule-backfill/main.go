package main

import (
	"context"
	"time"

	"dealdesk_backend/internal/adapters"
	"dealdesk_backend/internal/calendar"
	"dealdesk_backend/internal/events"
	"dealdesk_backend/internal/opportunities/repository"
	"dealdesk_backend/internal/opportunities/scheduling"
	"dealdesk_backend/platform/config"
	"dealdesk_backend/platform/db"
	"dealdesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Recomputes the call schedule of every live opportunity. Run after changing
// checkpoint or cadence rules so stored next-call flags match the new logic.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting schedule backfill")

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	repo := repository.New(pool)
	schedulingSvc := scheduling.New(repo, eventBus, log)

	calendarModule := calendar.NewModule(pool, nil, log)
	schedulingSvc.SetCalendarSource(adapters.NewCalendarScheduleSource(calendarModule.Service()))

	const batchSize = 100
	const delayBetweenBatches = 200 * time.Millisecond

	var processed int
	var succeeded int

	cursorID := uuid.Nil

	for {
		ids, err := listOpportunities(ctx, pool, batchSize, cursorID)
		if err != nil {
			log.Error("failed to list opportunities", "error", err)
			break
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			processed++
			cursorID = id

			if err := schedulingSvc.ProcessScheduleRecalculation(ctx, id); err != nil {
				log.Error("failed to recalculate schedule", "opportunityId", id, "error", err)
				continue
			}
			succeeded++
		}

		time.Sleep(delayBetweenBatches)
	}

	eventBus.Wait()
	log.Info("schedule backfill completed", "processed", processed, "updated", succeeded)
}

func listOpportunities(ctx context.Context, pool *pgxpool.Pool, limit int, cursorID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := pool.Query(ctx, `
    SELECT id
    FROM opportunities
    WHERE deleted_at IS NULL
      AND id > $1
    ORDER BY id ASC
    LIMIT $2
  `, cursorID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
