// Package rows models tokenized spreadsheet rows. Binary file parsing happens
// upstream; this package owns header detection, column-synonym resolution, and
// normalization of the values the reconciliation engines consume.
package rows

import (
	"strconv"
	"strings"
)

// HeadingRow is one data row resolved to canonical columns. ID is nil when the
// cell is absent or not numeric.
type HeadingRow struct {
	ID              *int64
	Name            string
	Families        string
	Definition      string
	Aliases         string
	Category        string
	Companies       string
	RankPoints      string
	HeadingType     string
	Status          string
	ReferenceURL    string
	SourceStatus    string
	SourceTimestamp string
}

// Canonical column keys.
const (
	colID              = "id"
	colName            = "name"
	colFamilies        = "families"
	colDefinition      = "definition"
	colAliases         = "aliases"
	colCategory        = "category"
	colCompanies       = "companies"
	colRankPoints      = "rank_points"
	colHeadingType     = "heading_type"
	colStatus          = "status"
	colReferenceURL    = "reference_url"
	colSourceStatus    = "source_status"
	colSourceTimestamp = "source_timestamp"
)

// synonyms maps normalized header cells to canonical columns. A header row is
// recognized by the presence of any name-column synonym.
var synonyms = map[string]string{
	"id":                  colID,
	"heading id":          colID,
	"classification id":   colID,
	"heading":             colName,
	"headings":            colName,
	"classification":      colName,
	"name":                colName,
	"heading name":        colName,
	"classification name": colName,
	"family":              colFamilies,
	"families":            colFamilies,
	"heading family":      colFamilies,
	"definition":          colDefinition,
	"description":         colDefinition,
	"alias":               colAliases,
	"aliases":             colAliases,
	"category":            colCategory,
	"company":             colCompanies,
	"companies":           colCompanies,
	"rank":                colRankPoints,
	"rank points":         colRankPoints,
	"rankpoints":          colRankPoints,
	"type":                colHeadingType,
	"heading type":        colHeadingType,
	"status":              colStatus,
	"url":                 colReferenceURL,
	"link":                colReferenceURL,
	"reference":           colReferenceURL,
	"reference url":       colReferenceURL,
	"source status":       colSourceStatus,
	"source timestamp":    colSourceTimestamp,
	"source date":         colSourceTimestamp,
}

// positionalOrder is the assumed column layout when no header row is found.
var positionalOrder = []string{
	colID, colName, colFamilies, colDefinition, colAliases, colCategory,
	colCompanies, colRankPoints, colHeadingType, colStatus, colReferenceURL,
}

func normalizeHeaderCell(cell string) string {
	cell = strings.ToLower(strings.TrimSpace(cell))
	cell = strings.Trim(cell, ":*")
	return strings.Join(strings.Fields(cell), " ")
}

// detectHeader returns the column mapping from the first row, and whether the
// first row is a header. The row is a header iff any cell resolves to the name
// column.
func detectHeader(first []string) (map[int]string, bool) {
	mapping := make(map[int]string)
	hasName := false
	for i, cell := range first {
		canonical, ok := synonyms[normalizeHeaderCell(cell)]
		if !ok {
			continue
		}
		if _, taken := mapping[i]; taken {
			continue
		}
		// First synonym wins per canonical column.
		dup := false
		for _, existing := range mapping {
			if existing == canonical {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		mapping[i] = canonical
		if canonical == colName {
			hasName = true
		}
	}
	if !hasName {
		return nil, false
	}
	return mapping, true
}

// Parse turns raw cell rows into HeadingRows. If the first row contains a
// recognized name-column header it is consumed as the header; otherwise every
// row is data and columns are mapped positionally.
func Parse(cells [][]string) []HeadingRow {
	if len(cells) == 0 {
		return nil
	}

	mapping, hasHeader := detectHeader(cells[0])
	data := cells
	if hasHeader {
		data = cells[1:]
	} else {
		mapping = make(map[int]string)
		for i, key := range positionalOrder {
			mapping[i] = key
		}
	}

	out := make([]HeadingRow, 0, len(data))
	for _, raw := range data {
		row := HeadingRow{}
		for i, cell := range raw {
			key, ok := mapping[i]
			if !ok {
				continue
			}
			value := strings.TrimSpace(cell)
			switch key {
			case colID:
				row.ID = parseID(value)
			case colName:
				row.Name = value
			case colFamilies:
				row.Families = value
			case colDefinition:
				row.Definition = value
			case colAliases:
				row.Aliases = value
			case colCategory:
				row.Category = value
			case colCompanies:
				row.Companies = value
			case colRankPoints:
				row.RankPoints = value
			case colHeadingType:
				row.HeadingType = value
			case colStatus:
				row.Status = value
			case colReferenceURL:
				row.ReferenceURL = value
			case colSourceStatus:
				row.SourceStatus = value
			case colSourceTimestamp:
				row.SourceTimestamp = value
			}
		}
		out = append(out, row)
	}
	return out
}

func parseID(value string) *int64 {
	if value == "" {
		return nil
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return nil
	}
	return &id
}

// NormalizeStatus maps a row's status or heading-type cell onto the fixed
// heading status set, case-insensitively. Anything unrecognized falls back to
// fallback.
func NormalizeStatus(raw, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "existing":
		return "existing"
	case "ranked":
		return "ranked"
	case "additional":
		return "additional"
	default:
		return fallback
	}
}
