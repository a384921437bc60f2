package dmcs

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Status of a DMC partner record.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Coverage kinds stored in dmc_coverage.
const (
	KindCountry     = "country"
	KindDestination = "destination"
	KindCity        = "city"
)

// ErrNotFound indicates the DMC does not exist in the caller's agency.
var ErrNotFound = errors.New("dmc not found")

// DMC is a destination management company partner.
type DMC struct {
	ID                  string    `json:"id"`
	AgencyID            string    `json:"agencyId"`
	Name                string    `json:"name"`
	ContactPerson       string    `json:"contactPerson"`
	Email               string    `json:"email"`
	PhoneNumber         string    `json:"phoneNumber"`
	Designation         string    `json:"designation"`
	Status              Status    `json:"status"`
	PrimaryCountry      string    `json:"primaryCountry"`
	DestinationsCovered []string  `json:"destinationsCovered"`
	Cities              []string  `json:"cities"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Active reports whether the DMC can receive quote requests.
func (d DMC) Active() bool {
	return d.Status == StatusActive
}

// Coverage is a normalised place the DMC serves.
type Coverage struct {
	Kind  string
	Place string
}

// Coverage flattens the DMC's countries, destinations and cities.
func (d DMC) Coverage() []Coverage {
	seen := make(map[Coverage]struct{})
	var out []Coverage
	add := func(kind, raw string) {
		place := normalizePlace(raw)
		if place == "" {
			return
		}
		c := Coverage{Kind: kind, Place: place}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	add(KindCountry, d.PrimaryCountry)
	for _, p := range d.DestinationsCovered {
		add(KindDestination, p)
	}
	for _, p := range d.Cities {
		add(KindCity, p)
	}
	return out
}

// Covers reports whether any coverage place contains any of terms, case-insensitively.
// An empty term list matches every DMC.
func Covers(d DMC, terms []string) bool {
	normalized := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := normalizePlace(t); n != "" {
			normalized = append(normalized, n)
		}
	}
	if len(normalized) == 0 {
		return true
	}
	for _, c := range d.Coverage() {
		for _, term := range normalized {
			if strings.Contains(c.Place, term) {
				return true
			}
		}
	}
	return false
}

// SplitPlaces splits a comma-joined place list.
func SplitPlaces(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizePlace(raw string) string {
	return strings.ToLower(strings.Join(strings.Fields(raw), " "))
}

// PlaceList decodes either a JSON array or a comma-joined string.
type PlaceList []string

// UnmarshalJSON implements json.Unmarshaler.
func (p *PlaceList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		var out []string
		for _, item := range list {
			out = append(out, SplitPlaces(item)...)
		}
		*p = out
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return errors.New("must be a list of places or a comma separated string")
	}
	*p = SplitPlaces(joined)
	return nil
}

// UpsertInput is the payload accepted by create and edit.
type UpsertInput struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name" validate:"required,max=160"`
	ContactPerson       string    `json:"contactPerson" validate:"max=120"`
	Email               string    `json:"email" validate:"omitempty,email"`
	PhoneNumber         string    `json:"phoneNumber" validate:"max=32"`
	Designation         string    `json:"designation" validate:"max=120"`
	Status              Status    `json:"status" validate:"omitempty,oneof=ACTIVE INACTIVE"`
	PrimaryCountry      string    `json:"primaryCountry" validate:"max=120"`
	DestinationsCovered PlaceList `json:"destinationsCovered"`
	Cities              PlaceList `json:"cities"`
}

// StatusInput toggles a DMC's status.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}
