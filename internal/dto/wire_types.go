// Package dto implements the domain<->wire mapping layer (spec.md §4.11,
// §9): explicit mapper functions per entity, so the wire format is stable
// and testable instead of derived by reflection. Binary fields become
// base64, timestamps become fixed-format ISO text, and enums become their
// string names — never raw bytes or numeric ordinals.
package dto

import "time"

// isoLayout is the fixed timestamp format spec.md §6 requires:
// YYYY-MM-DDTHH:MM:SS(.ffffff)?Z.
const isoLayout = "2006-01-02T15:04:05.000000Z"

// CampaignWire is the wire representation of domain.Campaign.
type CampaignWire struct {
	ID             string  `json:"id"`
	Title          string  `json:"title"`
	Activity       string  `json:"activity"`
	CountryCode    string  `json:"country_code"`
	Admin1Code     string  `json:"admin1_code,omitempty"`
	Admin2Code     string  `json:"admin2_code,omitempty"`
	CityGeonameID  int64   `json:"city_geoname_id,omitempty"`
	LocationName   string  `json:"location_name"`
	ISOLanguage    string  `json:"iso_language,omitempty"`
	Locale         string  `json:"locale,omitempty"`
	MaxResults     int     `json:"max_results"`
	MinRating      float64 `json:"min_rating,omitempty"`
	MinPopulation  int64   `json:"min_population,omitempty"`
	MaxBots        int     `json:"max_bots"`
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	FailedTasks    int     `json:"failed_tasks"`
	CreatedAt      string  `json:"created_at"`
	StartedAt      string  `json:"started_at,omitempty"`
	CompletedAt    string  `json:"completed_at,omitempty"`
	Status         string  `json:"status"`
}

// TaskWire is the wire representation of domain.PlaceExtractionTask.
type TaskWire struct {
	ID          string `json:"id"`
	CampaignID  string `json:"campaign_id"`
	GeonameID   int64  `json:"geoname_id"`
	GeonameName string `json:"geoname_name"`
	SearchSeed  string `json:"search_seed"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	LastError   string `json:"last_error,omitempty"`
	StartedAt   string `json:"started_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// CoordinatesWire is the wire representation of domain.Coordinates.
type CoordinatesWire struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ReviewWire is the wire representation of domain.ExtractedPlaceReview.
type ReviewWire struct {
	ID       string  `json:"id"`
	Author   string  `json:"author"`
	Rating   float64 `json:"rating"`
	Text     string  `json:"text"`
	PostedAt string  `json:"posted_at"`
}

// PlaceWire is the wire representation of domain.ExtractedPlace.
type PlaceWire struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Address      string           `json:"address"`
	City         string           `json:"city,omitempty"`
	Category     string           `json:"category,omitempty"`
	Rating       *float64         `json:"rating,omitempty"`
	ReviewCount  *int             `json:"review_count,omitempty"`
	Phone        string           `json:"phone,omitempty"`
	Website      string           `json:"website,omitempty"`
	Coordinates  *CoordinatesWire `json:"coordinates,omitempty"`
	SourceTaskID string           `json:"source_task_id"`
	ExtractedAt  string           `json:"extracted_at"`
	Reviews      []ReviewWire     `json:"reviews,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(isoLayout)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(isoLayout, s)
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := parseTime(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
