package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/placescout/scoutengine/internal/domain"
	"go.uber.org/zap"
)

// execer is satisfied by *sql.Tx and *sql.DB, letting repositories run the
// same SQL from inside a UnitOfWork or from a read-side service.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// CampaignRepository provides get/save/list access to the Campaign
// aggregate, scoped to one UnitOfWork's transaction.
type CampaignRepository struct {
	tx  execer
	log *zap.Logger
}

func (r *CampaignRepository) Get(ctx context.Context, id domain.ID) (domain.Campaign, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT id, title, activity, country_code, admin1_code, admin2_code, city_geoname_id,
		       location_name, iso_language, locale, max_results, min_rating, min_population,
		       max_bots, total_tasks, completed_tasks, failed_tasks, created_at, started_at,
		       completed_at, status
		FROM campaigns WHERE id = $1`, string(id))
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Campaign{}, domain.NewNotFoundError("campaign not found: " + string(id))
	}
	return c, err
}

// Save upserts a campaign by id.
func (r *CampaignRepository) Save(ctx context.Context, c domain.Campaign) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO campaigns (id, title, activity, country_code, admin1_code, admin2_code,
			city_geoname_id, location_name, iso_language, locale, max_results, min_rating,
			min_population, max_bots, total_tasks, completed_tasks, failed_tasks, created_at,
			started_at, completed_at, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			total_tasks = EXCLUDED.total_tasks,
			completed_tasks = EXCLUDED.completed_tasks,
			failed_tasks = EXCLUDED.failed_tasks,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			status = EXCLUDED.status`,
		string(c.ID), c.Title, c.Activity, c.CountryCode, nullStr(c.Admin1Code), nullStr(c.Admin2Code),
		nullInt64(c.CityGeonameID), c.LocationName, nullStr(c.ISOLanguage), nullStr(c.Locale),
		c.MaxResults, c.MinRating, nullInt64(c.MinPopulation), c.MaxBots, c.TotalTasks,
		c.CompletedTasks, c.FailedTasks, c.CreatedAt, c.StartedAt, c.CompletedAt, string(c.Status))
	return err
}

// List returns every campaign, most recent first.
func (r *CampaignRepository) List(ctx context.Context) ([]domain.Campaign, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT id, title, activity, country_code, admin1_code, admin2_code, city_geoname_id,
		       location_name, iso_language, locale, max_results, min_rating, min_population,
		       max_bots, total_tasks, completed_tasks, failed_tasks, created_at, started_at,
		       completed_at, status
		FROM campaigns ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (domain.Campaign, error) {
	var c domain.Campaign
	var admin1, admin2, isoLang, locale sql.NullString
	var cityGeonameID, minPopulation sql.NullInt64
	var startedAt, completedAt sql.NullTime
	var status string

	err := row.Scan(&c.ID, &c.Title, &c.Activity, &c.CountryCode, &admin1, &admin2, &cityGeonameID,
		&c.LocationName, &isoLang, &locale, &c.MaxResults, &c.MinRating, &minPopulation,
		&c.MaxBots, &c.TotalTasks, &c.CompletedTasks, &c.FailedTasks, &c.CreatedAt, &startedAt,
		&completedAt, &status)
	if err != nil {
		return domain.Campaign{}, err
	}

	c.Admin1Code = admin1.String
	c.Admin2Code = admin2.String
	c.ISOLanguage = isoLang.String
	c.Locale = locale.String
	c.CityGeonameID = cityGeonameID.Int64
	c.MinPopulation = minPopulation.Int64
	c.Status = domain.CampaignStatus(status)
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return c, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
