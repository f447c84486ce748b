// Package ingest loads voter registration CSV files into the voter store.
// Every field is read as a string so leading zeros in district and precinct
// identifiers survive end-to-end.
package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/kerryhatcher/vote-match/internal/voter"
)

// requiredHeaders must be present in the source file. Anything else in the
// file that the record struct does not map is ignored.
var requiredHeaders = []string{
	"Voter Registration Number",
	"Last Name",
	"First Name",
	"County",
	"County Precinct",
}

// record mirrors the state voter-file export headers. Columns the pipeline
// does not use (mailing address, voting history) are simply not mapped.
type record struct {
	County             string `csv:"County"`
	RegistrationNumber string `csv:"Voter Registration Number"`
	Status             string `csv:"Status"`
	LastName           string `csv:"Last Name"`
	FirstName          string `csv:"First Name"`
	MiddleName         string `csv:"Middle Name"`
	Suffix             string `csv:"Suffix"`
	BirthYear          string `csv:"Birth Year"`

	StreetNumber    string `csv:"Residence Street Number"`
	StreetDirection string `csv:"Residence Pre Direction"`
	StreetName      string `csv:"Residence Street Name"`
	StreetType      string `csv:"Residence Street Type"`
	AptUnit         string `csv:"Residence Apt Unit Number"`
	City            string `csv:"Residence City"`
	ZipCode         string `csv:"Residence Zipcode"`

	CountyPrecinct string `csv:"County Precinct"`

	CongressionalDistrict    string `csv:"Congressional District"`
	StateSenateDistrict      string `csv:"State Senate District"`
	StateHouseDistrict       string `csv:"State House District"`
	JudicialDistrict         string `csv:"Judicial District"`
	CountyCommissionDistrict string `csv:"County Commission District"`
	SchoolDistrict           string `csv:"School Board District"`
	CityCouncilDistrict      string `csv:"City Council District"`
	WaterBoardDistrict       string `csv:"Water Board District"`
	FireDistrict             string `csv:"Fire District"`
	Municipality             string `csv:"Municipality"`
	PSCDistrict              string `csv:"Public Service Commission District"`
}

func (r *record) toVoter() voter.Voter {
	return voter.Voter{
		RegistrationNumber: strings.TrimSpace(r.RegistrationNumber),
		Status:             r.Status,
		LastName:           r.LastName,
		FirstName:          r.FirstName,
		MiddleName:         r.MiddleName,
		NameSuffix:         r.Suffix,
		BirthYear:          r.BirthYear,

		StreetNumber:    r.StreetNumber,
		StreetDirection: r.StreetDirection,
		StreetName:      r.StreetName,
		StreetType:      r.StreetType,
		AptUnit:         r.AptUnit,
		City:            r.City,
		ZipCode:         r.ZipCode,

		County:         r.County,
		CountyPrecinct: r.CountyPrecinct,

		CongressionalDistrict:    r.CongressionalDistrict,
		StateSenateDistrict:      r.StateSenateDistrict,
		StateHouseDistrict:       r.StateHouseDistrict,
		JudicialDistrict:         r.JudicialDistrict,
		CountyCommissionDistrict: r.CountyCommissionDistrict,
		SchoolDistrict:           r.SchoolDistrict,
		CityCouncilDistrict:      r.CityCouncilDistrict,
		WaterBoardDistrict:       r.WaterBoardDistrict,
		FireDistrict:             r.FireDistrict,
		Municipality:             r.Municipality,
		PSCDistrict:              r.PSCDistrict,
	}
}

// VoterSink is the slice of the voter store ingestion needs.
type VoterSink interface {
	UpsertBatch(ctx context.Context, voters []voter.Voter, chunkSize int) (int64, error)
}

// Stats summarizes one ingestion run.
type Stats struct {
	Rows     int   // data rows read from the file
	Upserted int64 // rows written to the store
	Skipped  int   // rows without a registration number
}

// Ingester streams voter CSV files into the store in chunks, so a file
// larger than memory still loads and a mid-file failure keeps what already
// committed.
type Ingester struct {
	sink      VoterSink
	chunkSize int
}

// NewIngester creates an ingester. chunkSize bounds each upsert batch; zero
// means 1000.
func NewIngester(sink VoterSink, chunkSize int) *Ingester {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	return &Ingester{sink: sink, chunkSize: chunkSize}
}

// IngestFile loads one voter CSV file.
func (ing *Ingester) IngestFile(ctx context.Context, path string) (Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return Stats{}, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return ing.Ingest(ctx, f)
}

// Ingest loads voter rows from r. The header row is validated before any
// write happens.
func (ing *Ingester) Ingest(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	log := zap.L().With(zap.String("component", "ingest"))

	csvReader := csv.NewReader(r)
	dec, err := csvutil.NewDecoder(csvReader)
	if err != nil {
		return stats, eris.Wrap(err, "ingest: read header")
	}
	if err := validateHeader(dec.Header()); err != nil {
		return stats, err
	}

	batch := make([]voter.Voter, 0, ing.chunkSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := ing.sink.UpsertBatch(ctx, batch, ing.chunkSize)
		stats.Upserted += n
		if err != nil {
			return eris.Wrap(err, "ingest: upsert batch")
		}
		batch = batch[:0]
		return nil
	}

	for {
		var rec record
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return stats, eris.Wrapf(err, "ingest: decode row %d", stats.Rows+1)
		}
		stats.Rows++

		v := rec.toVoter()
		if v.RegistrationNumber == "" {
			stats.Skipped++
			continue
		}
		batch = append(batch, v)

		if len(batch) >= ing.chunkSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := flush(); err != nil {
		return stats, err
	}

	log.Info("ingest finished",
		zap.Int("rows", stats.Rows),
		zap.Int64("upserted", stats.Upserted),
		zap.Int("skipped", stats.Skipped),
	)
	return stats, nil
}

func validateHeader(header []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[strings.TrimSpace(h)] = true
	}

	var missing []string
	for _, req := range requiredHeaders {
		if !present[req] {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("ingest: missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
