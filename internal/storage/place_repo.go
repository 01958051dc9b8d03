package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/placescout/scoutengine/internal/domain"
	"go.uber.org/zap"
)

// PlaceRepository provides get/save/list access to ExtractedPlace and its
// child ExtractedPlaceReview rows.
type PlaceRepository struct {
	tx  execer
	log *zap.Logger
}

func (r *PlaceRepository) Get(ctx context.Context, id domain.ID) (domain.ExtractedPlace, error) {
	row := r.tx.QueryRowContext(ctx, `
		SELECT id, fingerprint, name, address, city, category, rating, review_count, phone,
		       website, lat, lng, source_task_id, extracted_at
		FROM extracted_places WHERE id = $1`, string(id))
	p, err := scanPlace(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExtractedPlace{}, domain.NewNotFoundError("place not found: " + string(id))
	}
	return p, err
}

// Save inserts a place, folding duplicates on the fingerprint uniqueness
// constraint per spec.md §3 ("duplicates are folded on write"). Returns
// (inserted=false, nil) when the fingerprint already existed.
func (r *PlaceRepository) Save(ctx context.Context, p domain.ExtractedPlace) (inserted bool, err error) {
	res, err := r.tx.ExecContext(ctx, `
		INSERT INTO extracted_places
			(id, fingerprint, name, address, city, category, rating, review_count, phone,
			 website, lat, lng, source_task_id, extracted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (fingerprint) DO NOTHING`,
		string(p.ID), p.Fingerprint, p.Name, p.Address, nullStr(p.City), nullStr(p.Category),
		p.Rating, p.ReviewCount, nullStr(p.Phone), nullStr(p.Website),
		coordField(p.Coordinates, true), coordField(p.Coordinates, false),
		string(p.SourceTaskID), p.ExtractedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	for _, review := range p.Reviews {
		if _, err := r.tx.ExecContext(ctx, `
			INSERT INTO extracted_place_reviews (id, place_id, author, rating, text, posted_at)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			string(review.ID), string(p.ID), review.Author, review.Rating, review.Text, review.PostedAt); err != nil {
			return true, err
		}
	}
	return true, nil
}

// PlacesOf returns every place extracted by any task belonging to
// campaignID, joining through place_extraction_tasks since a place only
// stores its SourceTaskID directly.
func (r *PlaceRepository) PlacesOf(ctx context.Context, campaignID domain.ID) ([]domain.ExtractedPlace, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT p.id, p.fingerprint, p.name, p.address, p.city, p.category, p.rating,
		       p.review_count, p.phone, p.website, p.lat, p.lng, p.source_task_id, p.extracted_at
		FROM extracted_places p
		JOIN place_extraction_tasks t ON t.id = p.source_task_id
		WHERE t.campaign_id = $1
		ORDER BY p.extracted_at`, string(campaignID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ExtractedPlace
	for rows.Next() {
		p, err := scanPlace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPlace(row rowScanner) (domain.ExtractedPlace, error) {
	var p domain.ExtractedPlace
	var city, category, phone, website sql.NullString
	var rating sql.NullFloat64
	var reviewCount sql.NullInt64
	var lat, lng sql.NullFloat64
	var sourceTaskID string

	err := row.Scan(&p.ID, &p.Fingerprint, &p.Name, &p.Address, &city, &category, &rating,
		&reviewCount, &phone, &website, &lat, &lng, &sourceTaskID, &p.ExtractedAt)
	if err != nil {
		return domain.ExtractedPlace{}, err
	}

	p.City = city.String
	p.Category = category.String
	p.Phone = phone.String
	p.Website = website.String
	p.SourceTaskID = domain.ID(sourceTaskID)
	if rating.Valid {
		v := rating.Float64
		p.Rating = &v
	}
	if reviewCount.Valid {
		v := int(reviewCount.Int64)
		p.ReviewCount = &v
	}
	if lat.Valid && lng.Valid {
		p.Coordinates = &domain.Coordinates{Lat: lat.Float64, Lng: lng.Float64}
	}
	return p, nil
}

func coordField(c *domain.Coordinates, lat bool) interface{} {
	if c == nil {
		return nil
	}
	if lat {
		return c.Lat
	}
	return c.Lng
}
