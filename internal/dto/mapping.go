package dto

import (
	"encoding/base64"

	"github.com/placescout/scoutengine/internal/domain"
)

// CampaignToWire maps a domain.Campaign to its wire representation.
func CampaignToWire(c domain.Campaign) CampaignWire {
	return CampaignWire{
		ID:             string(c.ID),
		Title:          c.Title,
		Activity:       c.Activity,
		CountryCode:    c.CountryCode,
		Admin1Code:     c.Admin1Code,
		Admin2Code:     c.Admin2Code,
		CityGeonameID:  c.CityGeonameID,
		LocationName:   c.LocationName,
		ISOLanguage:    c.ISOLanguage,
		Locale:         c.Locale,
		MaxResults:     c.MaxResults,
		MinRating:      c.MinRating,
		MinPopulation:  c.MinPopulation,
		MaxBots:        c.MaxBots,
		TotalTasks:     c.TotalTasks,
		CompletedTasks: c.CompletedTasks,
		FailedTasks:    c.FailedTasks,
		CreatedAt:      formatTime(c.CreatedAt),
		StartedAt:      formatTimePtr(c.StartedAt),
		CompletedAt:    formatTimePtr(c.CompletedAt),
		Status:         string(c.Status),
	}
}

// CampaignFromWire is the inverse of CampaignToWire, used by round-trip
// tests and any future import path.
func CampaignFromWire(w CampaignWire) (domain.Campaign, error) {
	startedAt, err := parseTimePtr(w.StartedAt)
	if err != nil {
		return domain.Campaign{}, err
	}
	completedAt, err := parseTimePtr(w.CompletedAt)
	if err != nil {
		return domain.Campaign{}, err
	}
	createdAt, err := parseTime(w.CreatedAt)
	if err != nil {
		return domain.Campaign{}, err
	}
	return domain.Campaign{
		ID:             domain.ID(w.ID),
		Title:          w.Title,
		Activity:       w.Activity,
		CountryCode:    w.CountryCode,
		Admin1Code:     w.Admin1Code,
		Admin2Code:     w.Admin2Code,
		CityGeonameID:  w.CityGeonameID,
		LocationName:   w.LocationName,
		ISOLanguage:    w.ISOLanguage,
		Locale:         w.Locale,
		MaxResults:     w.MaxResults,
		MinRating:      w.MinRating,
		MinPopulation:  w.MinPopulation,
		MaxBots:        w.MaxBots,
		TotalTasks:     w.TotalTasks,
		CompletedTasks: w.CompletedTasks,
		FailedTasks:    w.FailedTasks,
		CreatedAt:      createdAt,
		StartedAt:      startedAt,
		CompletedAt:    completedAt,
		Status:         domain.CampaignStatus(w.Status),
	}, nil
}

// TaskToWire maps a domain.PlaceExtractionTask to its wire representation.
func TaskToWire(t domain.PlaceExtractionTask) TaskWire {
	return TaskWire{
		ID:          string(t.ID),
		CampaignID:  string(t.CampaignID),
		GeonameID:   t.GeonameID,
		GeonameName: t.GeonameName,
		SearchSeed:  t.SearchSeed,
		Status:      string(t.Status),
		Attempts:    t.Attempts,
		LastError:   t.LastError,
		StartedAt:   formatTimePtr(t.StartedAt),
		CompletedAt: formatTimePtr(t.CompletedAt),
	}
}

// PlaceToWire maps a domain.ExtractedPlace to its wire representation.
// Coordinates and reviews are mapped only when present.
func PlaceToWire(p domain.ExtractedPlace) PlaceWire {
	w := PlaceWire{
		ID:           string(p.ID),
		Name:         p.Name,
		Address:      p.Address,
		City:         p.City,
		Category:     p.Category,
		Rating:       p.Rating,
		ReviewCount:  p.ReviewCount,
		Phone:        p.Phone,
		Website:      p.Website,
		SourceTaskID: string(p.SourceTaskID),
		ExtractedAt:  formatTime(p.ExtractedAt),
	}
	if p.Coordinates != nil {
		w.Coordinates = &CoordinatesWire{Lat: p.Coordinates.Lat, Lng: p.Coordinates.Lng}
	}
	for _, r := range p.Reviews {
		w.Reviews = append(w.Reviews, ReviewWire{
			ID:       string(r.ID),
			Author:   r.Author,
			Rating:   r.Rating,
			Text:     r.Text,
			PostedAt: formatTime(r.PostedAt),
		})
	}
	return w
}

// PlaceFromWire is the inverse of PlaceToWire.
func PlaceFromWire(w PlaceWire) (domain.ExtractedPlace, error) {
	extractedAt, err := parseTime(w.ExtractedAt)
	if err != nil {
		return domain.ExtractedPlace{}, err
	}
	p := domain.ExtractedPlace{
		ID:           domain.ID(w.ID),
		Name:         w.Name,
		Address:      w.Address,
		City:         w.City,
		Category:     w.Category,
		Rating:       w.Rating,
		ReviewCount:  w.ReviewCount,
		Phone:        w.Phone,
		Website:      w.Website,
		SourceTaskID: domain.ID(w.SourceTaskID),
		ExtractedAt:  extractedAt,
	}
	p.Fingerprint = domain.Fingerprint(p.SourceTaskID, p.Name, p.Address)
	if w.Coordinates != nil {
		p.Coordinates = &domain.Coordinates{Lat: w.Coordinates.Lat, Lng: w.Coordinates.Lng}
	}
	for _, rw := range w.Reviews {
		postedAt, err := parseTime(rw.PostedAt)
		if err != nil {
			return domain.ExtractedPlace{}, err
		}
		p.Reviews = append(p.Reviews, domain.ExtractedPlaceReview{
			ID:       domain.ID(rw.ID),
			PlaceID:  p.ID,
			Author:   rw.Author,
			Rating:   rw.Rating,
			Text:     rw.Text,
			PostedAt: postedAt,
		})
	}
	return p, nil
}

// EncodeImage base64-encodes a captured screenshot for transport in a
// bot_snapshot message, per spec.md §4.8: "binary images are base64
// encoded... never raw bytes".
func EncodeImage(png []byte) string {
	return base64.StdEncoding.EncodeToString(png)
}
