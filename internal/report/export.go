package report

import (
	"encoding/csv"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

var exportHeader = []string{
	"voter_id",
	"category",
	"registered_value",
	"spatial_district_id",
	"spatial_district_name",
	"verdict",
	"compared_at",
}

func exportRow(a Assignment) []string {
	verdict := "unresolved"
	if a.IsMismatch != nil {
		if *a.IsMismatch {
			verdict = "mismatch"
		} else {
			verdict = "match"
		}
	}

	var spatialID, spatialName string
	if a.SpatialDistrictID != nil {
		spatialID = *a.SpatialDistrictID
	}
	if a.SpatialDistrictName != nil {
		spatialName = *a.SpatialDistrictName
	}

	return []string{
		a.VoterID,
		a.Category,
		a.RegisteredValue,
		spatialID,
		spatialName,
		verdict,
		a.ComparedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes assignments as CSV with a header row.
func WriteCSV(w io.Writer, assignments []Assignment) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, a := range assignments {
		if err := cw.Write(exportRow(a)); err != nil {
			return eris.Wrap(err, "report: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// WriteXLSX writes assignments as a single-sheet workbook.
func WriteXLSX(w io.Writer, assignments []Assignment) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Assignments")
	if err != nil {
		return eris.Wrap(err, "report: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, col := range exportHeader {
		header.AddCell().SetString(col)
	}
	for _, a := range assignments {
		row := sheet.AddRow()
		for _, val := range exportRow(a) {
			row.AddCell().SetString(val)
		}
	}

	return eris.Wrap(f.Write(w), "report: write xlsx")
}
