// Package models defines the records synchronized between the device and the
// remote store, the queued sync operations, and their persisted envelopes.
package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Conditions describes the environment a catch was made in.
type Conditions struct {
	Weather      string   `json:"weather,omitempty"`
	TemperatureC *float64 `json:"temperatureC,omitempty"`
	WindSpeedKmh *float64 `json:"windSpeedKmh,omitempty"`
	PressureHPa  *float64 `json:"pressureHPa,omitempty"`
	MoonPhase    string   `json:"moonPhase,omitempty"`
	Tide         string   `json:"tide,omitempty"`
}

// Catch is the unit of synchronization.
//
// ID and CreatedAt are set once at creation. UpdatedAt is nil until the first
// mutation. Synced is a projection of "no queued operation for this ID";
// SyncError marks a record whose last push attempt failed.
type Catch struct {
	ID         string      `json:"id"`
	Species    string      `json:"species"`
	WeightKg   float64     `json:"weightKg,omitempty"`
	LengthCm   float64     `json:"lengthCm,omitempty"`
	Latitude   *float64    `json:"latitude,omitempty"`
	Longitude  *float64    `json:"longitude,omitempty"`
	Location   string      `json:"location,omitempty"`
	Bait       string      `json:"bait,omitempty"`
	Method     string      `json:"method,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	PhotoURIs  []string    `json:"photoUris,omitempty"`
	Conditions *Conditions `json:"conditions,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
	Synced    bool       `json:"synced"`
	SyncError bool       `json:"syncError,omitempty"`
}

// EffectiveTime is UpdatedAt when present, else CreatedAt.
func (c Catch) EffectiveTime() time.Time {
	if c.UpdatedAt != nil {
		return *c.UpdatedAt
	}
	return c.CreatedAt
}

// Clone returns a deep copy.
func (c Catch) Clone() Catch {
	out := c
	if c.UpdatedAt != nil {
		t := *c.UpdatedAt
		out.UpdatedAt = &t
	}
	out.Latitude = cloneFloat(c.Latitude)
	out.Longitude = cloneFloat(c.Longitude)
	if c.PhotoURIs != nil {
		out.PhotoURIs = append([]string(nil), c.PhotoURIs...)
	}
	if c.Conditions != nil {
		cond := *c.Conditions
		cond.TemperatureC = cloneFloat(c.Conditions.TemperatureC)
		cond.WindSpeedKmh = cloneFloat(c.Conditions.WindSpeedKmh)
		cond.PressureHPa = cloneFloat(c.Conditions.PressureHPa)
		out.Conditions = &cond
	}
	return out
}

// SameContent reports whether a and b carry the same domain payload and
// timestamps, ignoring the local sync flags.
func SameContent(a, b Catch) bool {
	return contentKey(a) == contentKey(b)
}

func contentKey(c Catch) string {
	n := c.Clone()
	n.Synced, n.SyncError = false, false
	n.CreatedAt = n.CreatedAt.UTC()
	if n.UpdatedAt != nil {
		t := n.UpdatedAt.UTC()
		n.UpdatedAt = &t
	}
	b, err := json.Marshal(n)
	if err != nil {
		return ""
	}
	return string(b)
}

// MatchesSpecies is a case-insensitive exact match; an empty filter matches all.
func (c Catch) MatchesSpecies(species string) bool {
	if species == "" {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(c.Species), strings.TrimSpace(species))
}

// Before reports whether c sorts ahead of o in newest-first order.
// Records created in the same instant are ordered by ID descending.
func (c Catch) Before(o Catch) bool {
	if !c.CreatedAt.Equal(o.CreatedAt) {
		return c.CreatedAt.After(o.CreatedAt)
	}
	return c.ID > o.ID
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
