package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/placescout/scoutengine/internal/domain"
	"go.uber.org/zap"
)

// TaskRepository provides get/save/list access to PlaceExtractionTask,
// scoped to one UnitOfWork's transaction.
type TaskRepository struct {
	tx  execer
	log *zap.Logger
}

func (r *TaskRepository) Get(ctx context.Context, id domain.ID) (domain.PlaceExtractionTask, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT id, campaign_id, geoname_id, geoname_name, search_seed, status, attempts,
		       last_error, started_at, completed_at
		FROM place_extraction_tasks WHERE id = $1`, string(id))
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.PlaceExtractionTask{}, domain.NewNotFoundError("task not found: " + string(id))
	}
	return t, err
}

// Save upserts a task by id.
func (r *TaskRepository) Save(ctx context.Context, t domain.PlaceExtractionTask) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO place_extraction_tasks
			(id, campaign_id, geoname_id, geoname_name, search_seed, status, attempts,
			 last_error, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			last_error = EXCLUDED.last_error,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at`,
		string(t.ID), string(t.CampaignID), t.GeonameID, t.GeonameName, t.SearchSeed,
		string(t.Status), t.Attempts, nullStr(t.LastError), t.StartedAt, t.CompletedAt)
	return err
}

// PendingTasksOf returns the PENDING tasks of campaignID. IN_PROGRESS tasks
// are not included; on resume the caller reconciles them to PENDING before
// a run reads this list.
func (r *TaskRepository) PendingTasksOf(ctx context.Context, campaignID domain.ID) ([]domain.PlaceExtractionTask, error) {
	return r.listByCampaignAndStatus(ctx, campaignID, string(domain.TaskPending))
}

// TasksOf returns every task belonging to campaignID.
func (r *TaskRepository) TasksOf(ctx context.Context, campaignID domain.ID) ([]domain.PlaceExtractionTask, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, campaign_id, geoname_id, geoname_name, search_seed, status, attempts,
		       last_error, started_at, completed_at
		FROM place_extraction_tasks WHERE campaign_id = $1 ORDER BY id`, string(campaignID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

// InProgressTasksOf returns every IN_PROGRESS task of campaignID, used by
// CampaignService.Resume to reconcile crash-left-over state back to
// PENDING (spec.md §9 open question).
func (r *TaskRepository) InProgressTasksOf(ctx context.Context, campaignID domain.ID) ([]domain.PlaceExtractionTask, error) {
	return r.listByCampaignAndStatus(ctx, campaignID, string(domain.TaskInProgress))
}

func (r *TaskRepository) listByCampaignAndStatus(ctx context.Context, campaignID domain.ID, status string) ([]domain.PlaceExtractionTask, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, campaign_id, geoname_id, geoname_name, search_seed, status, attempts,
		       last_error, started_at, completed_at
		FROM place_extraction_tasks WHERE campaign_id = $1 AND status = $2 ORDER BY id`,
		string(campaignID), status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]domain.PlaceExtractionTask, error) {
	var out []domain.PlaceExtractionTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row rowScanner) (domain.PlaceExtractionTask, error) {
	var t domain.PlaceExtractionTask
	var campaignID, status string
	var lastError sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&t.ID, &campaignID, &t.GeonameID, &t.GeonameName, &t.SearchSeed, &status,
		&t.Attempts, &lastError, &startedAt, &completedAt)
	if err != nil {
		return domain.PlaceExtractionTask{}, err
	}
	t.CampaignID = domain.ID(campaignID)
	t.Status = domain.TaskStatus(status)
	t.LastError = lastError.String
	if startedAt.Valid {
		v := startedAt.Time
		t.StartedAt = &v
	}
	if completedAt.Valid {
		v := completedAt.Time
		t.CompletedAt = &v
	}
	return t, nil
}
