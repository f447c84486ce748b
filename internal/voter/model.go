// Package voter holds the voter record model, the district category
// reference data, and the Postgres voter store.
package voter

import (
	"strings"

	"github.com/kerryhatcher/vote-match/pkg/geocode"
)

// Voter is one registered voter. All registration fields are strings
// end-to-end so leading zeros survive ingestion, storage, and comparison.
// District columns are written only by ingestion; Latitude/Longitude only by
// the reconciler.
type Voter struct {
	RegistrationNumber string
	Status             string
	LastName           string
	FirstName          string
	MiddleName         string
	NameSuffix         string
	BirthYear          string

	StreetNumber    string
	StreetDirection string
	StreetName      string
	StreetType      string
	AptUnit         string
	City            string
	ZipCode         string

	County         string
	CountyPrecinct string

	CongressionalDistrict    string
	StateSenateDistrict      string
	StateHouseDistrict       string
	JudicialDistrict         string
	CountyCommissionDistrict string
	SchoolDistrict           string
	CityCouncilDistrict      string
	WaterBoardDistrict       string
	FireDistrict             string
	Municipality             string
	PSCDistrict              string

	Latitude  *float64
	Longitude *float64
}

// StreetAddress assembles the street line from its components, e.g.
// "123 N Main St Apt 5".
func (v *Voter) StreetAddress() string {
	var parts []string
	for _, p := range []string{v.StreetNumber, v.StreetDirection, v.StreetName, v.StreetType} {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	if apt := strings.TrimSpace(v.AptUnit); apt != "" {
		parts = append(parts, "Apt "+apt)
	}
	return strings.Join(parts, " ")
}

// GeocodeAddress converts the voter to the address view providers consume.
// defaultState fills the state component, which the source rolls do not
// carry.
func (v *Voter) GeocodeAddress(defaultState string) geocode.Address {
	return geocode.Address{
		ID:      v.RegistrationNumber,
		Street:  v.StreetAddress(),
		City:    v.City,
		State:   defaultState,
		ZipCode: v.ZipCode,
	}
}

// HasCoordinate reports whether the reconciler has resolved this voter.
func (v *Voter) HasCoordinate() bool {
	return v.Latitude != nil && v.Longitude != nil
}
