package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidCatch = errors.New("invalid catch")

// CatchInput is the user-supplied payload for a new catch.
type CatchInput struct {
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

	// CaughtAt backdates the record; zero means now.
	CaughtAt time.Time `json:"caughtAt,omitempty"`
}

func (in CatchInput) Validate() error {
	return validate(in.Species, in.WeightKg, in.LengthCm, in.Latitude, in.Longitude)
}

// ToCatch builds a record with the given identity and creation time.
func (in CatchInput) ToCatch(id string, createdAt time.Time) Catch {
	c := Catch{
		ID:         id,
		Species:    strings.TrimSpace(in.Species),
		WeightKg:   in.WeightKg,
		LengthCm:   in.LengthCm,
		Latitude:   in.Latitude,
		Longitude:  in.Longitude,
		Location:   in.Location,
		Bait:       in.Bait,
		Method:     in.Method,
		Notes:      in.Notes,
		PhotoURIs:  in.PhotoURIs,
		Conditions: in.Conditions,
		CreatedAt:  createdAt,
	}
	return c.Clone()
}

// CatchPatch carries the fields to change; nil fields are left as they are.
type CatchPatch struct {
	Species    *string     `json:"species,omitempty"`
	WeightKg   *float64    `json:"weightKg,omitempty"`
	LengthCm   *float64    `json:"lengthCm,omitempty"`
	Latitude   *float64    `json:"latitude,omitempty"`
	Longitude  *float64    `json:"longitude,omitempty"`
	Location   *string     `json:"location,omitempty"`
	Bait       *string     `json:"bait,omitempty"`
	Method     *string     `json:"method,omitempty"`
	Notes      *string     `json:"notes,omitempty"`
	PhotoURIs  *[]string   `json:"photoUris,omitempty"`
	Conditions *Conditions `json:"conditions,omitempty"`
}

// Apply returns a copy of c with the patch merged in.
func (p CatchPatch) Apply(c Catch) (Catch, error) {
	out := c.Clone()
	if p.Species != nil {
		out.Species = strings.TrimSpace(*p.Species)
	}
	if p.WeightKg != nil {
		out.WeightKg = *p.WeightKg
	}
	if p.LengthCm != nil {
		out.LengthCm = *p.LengthCm
	}
	if p.Latitude != nil {
		out.Latitude = cloneFloat(p.Latitude)
	}
	if p.Longitude != nil {
		out.Longitude = cloneFloat(p.Longitude)
	}
	if p.Location != nil {
		out.Location = *p.Location
	}
	if p.Bait != nil {
		out.Bait = *p.Bait
	}
	if p.Method != nil {
		out.Method = *p.Method
	}
	if p.Notes != nil {
		out.Notes = *p.Notes
	}
	if p.PhotoURIs != nil {
		out.PhotoURIs = append([]string(nil), (*p.PhotoURIs)...)
	}
	if p.Conditions != nil {
		cond := *p.Conditions
		out.Conditions = &cond
		out = out.Clone()
	}
	if err := validate(out.Species, out.WeightKg, out.LengthCm, out.Latitude, out.Longitude); err != nil {
		return c, err
	}
	return out, nil
}

// IsEmpty reports whether the patch changes nothing.
func (p CatchPatch) IsEmpty() bool {
	return p == (CatchPatch{})
}

func validate(species string, weight, length float64, lat, lon *float64) error {
	if strings.TrimSpace(species) == "" {
		return fmt.Errorf("%w: species is required", ErrInvalidCatch)
	}
	if weight < 0 || length < 0 {
		return fmt.Errorf("%w: weight and length must not be negative", ErrInvalidCatch)
	}
	if lat != nil && (*lat < -90 || *lat > 90) {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCatch, *lat)
	}
	if lon != nil && (*lon < -180 || *lon > 180) {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCatch, *lon)
	}
	return nil
}
