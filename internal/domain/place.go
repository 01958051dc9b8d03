package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Coordinates is an immutable lat/lng pair.
type Coordinates struct {
	Lat float64
	Lng float64
}

// ExtractedPlace is an independent aggregate: a single extracted business
// record. Uniqueness is defined by Fingerprint, computed deterministically
// over (SourceTaskID, Name, Address); duplicates fold on write.
type ExtractedPlace struct {
	ID           ID
	Fingerprint  string
	Name         string
	Address      string
	City         string
	Category     string
	Rating       *float64
	ReviewCount  *int
	Phone        string
	Website      string
	Coordinates  *Coordinates
	SourceTaskID ID
	ExtractedAt  time.Time
	Reviews      []ExtractedPlaceReview
}

// ExtractedPlaceReview is a child of ExtractedPlace, accessed only through
// its owning place.
type ExtractedPlaceReview struct {
	ID       ID
	PlaceID  ID
	Author   string
	Rating   float64
	Text     string
	PostedAt time.Time
}

// Fingerprint computes the deterministic dedup key for a place extracted
// from a given task.
func Fingerprint(sourceTaskID ID, name, address string) string {
	h := sha256.New()
	h.Write([]byte(sourceTaskID))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(address))
	return hex.EncodeToString(h.Sum(nil))
}

// NewExtractedPlace builds a place with its fingerprint pre-computed.
func NewExtractedPlace(sourceTaskID ID, name, address string) ExtractedPlace {
	return ExtractedPlace{
		ID:           NewID(),
		Fingerprint:  Fingerprint(sourceTaskID, name, address),
		Name:         name,
		Address:      address,
		SourceTaskID: sourceTaskID,
		ExtractedAt:  time.Now().UTC(),
	}
}
