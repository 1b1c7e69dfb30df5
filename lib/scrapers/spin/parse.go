package spin

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoIdentityLine means the record text never matched the linc/legal/
// title-number line. The record is dropped, never defaulted.
var ErrNoIdentityLine = fmt.Errorf("no identity line in title text")

// TitleRecord is the structured form of one registry detail page. Linc
// and TitleNumber are guaranteed by the grammar; everything else
// degrades to its zero value (or nil for the money fields) on a miss.
type TitleRecord struct {
	Linc             int64    `json:"linc" parquet:"linc"`
	ShortLegal       string   `json:"short_legal" parquet:"short_legal"`
	TitleNumber      string   `json:"title_number" parquet:"title_number"`
	ATSReference     string   `json:"ats_reference" parquet:"ats_reference"`
	Municipality     string   `json:"municipality" parquet:"municipality"`
	ReferenceNumbers []string `json:"reference_numbers" parquet:"reference_numbers,list"`
	Registration     string   `json:"registration" parquet:"registration"`
	RegistrationDate string   `json:"registration_date" parquet:"registration_date"`
	DocumentType     string   `json:"document_type" parquet:"document_type"`
	SwornValue       *int64   `json:"sworn_value" parquet:"sworn_value,optional"`
	Consideration    *int64   `json:"consideration" parquet:"consideration,optional"`
	Condo            bool     `json:"condo" parquet:"condo"`
	RawText          string   `json:"-" parquet:"-"`
}

var (
	// linc (4-3-3 digits), short legal, title number (3-3-3 digits plus
	// an optional suffix), separated by runs of 2+ spaces
	identityRegex  = regexp.MustCompile(`(?m)^\s*(\d{4} \d{3} \d{3}) {2,}(.+?) {2,}(\d{3} \d{3} \d{3}.*?)\s*$`)
	atsRegex       = regexp.MustCompile(`ATS REFERENCE: (\S+)`)
	municipalRegex = regexp.MustCompile(`(?m)MUNICIPALITY: (.*)$`)
	refHeaderRegex = regexp.MustCompile(`REFERENCE NUMBER:?`)
	nonDigit       = regexp.MustCompile(`\D`)
)

var dashSeparator = strings.Repeat("-", 80)

// ParseTitle extracts typed fields from the fixed-format text of a title
// detail page. The identity line is the only hard requirement; optional
// sections fail independently without aborting the rest of the grammar.
func ParseTitle(raw string) (TitleRecord, error) {
	record := TitleRecord{RawText: raw}

	identity := identityRegex.FindStringSubmatch(raw)
	if identity == nil {
		return record, ErrNoIdentityLine
	}
	linc, err := strconv.ParseInt(nonDigit.ReplaceAllString(identity[1], ""), 10, 64)
	if err != nil {
		return record, ErrNoIdentityLine
	}
	record.Linc = linc
	record.ShortLegal = strings.TrimSpace(identity[2])
	record.TitleNumber = strings.TrimSpace(identity[3])

	if m := atsRegex.FindStringSubmatch(raw); m != nil {
		record.ATSReference = m[1]
	}
	if m := municipalRegex.FindStringSubmatch(raw); m != nil {
		record.Municipality = strings.TrimSpace(m[1])
	}

	record.ReferenceNumbers = parseReferenceNumbers(raw)

	registration, ok := transactionBlock(raw)
	if ok {
		record.Registration = strings.TrimSpace(slice(registration, 0, 11))
		record.RegistrationDate = reverseDate(strings.TrimSpace(slice(registration, 15, 25)))
		record.DocumentType = strings.TrimSpace(slice(registration, 27, 46))
		record.SwornValue = parseMoney(slice(registration, 46, 62))
		record.Consideration = parseMoney(slice(registration, 62, 80))
	}

	record.Condo = strings.Contains(raw, "CONDOMINIUM")
	return record, nil
}

// parseReferenceNumbers returns the trimmed, non-empty lines between the
// reference-number header and the next dash separator. An absent block
// degrades to a single empty entry.
func parseReferenceNumbers(raw string) []string {
	loc := refHeaderRegex.FindStringIndex(raw)
	if loc == nil {
		return []string{""}
	}
	rest := raw[loc[1]:]
	end := strings.Index(rest, dashSeparator)
	if end >= 0 {
		rest = rest[:end]
	}

	var refs []string
	for _, line := range strings.Split(rest, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			refs = append(refs, line)
		}
	}
	if len(refs) == 0 {
		return []string{""}
	}
	return refs
}

// transactionBlock returns the first data line after the second dash
// separator, padded so the fixed-width slices below always land.
func transactionBlock(raw string) (string, bool) {
	parts := strings.Split(raw, dashSeparator)
	if len(parts) < 3 {
		return "", false
	}
	for _, line := range strings.Split(parts[2], "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if len(line) < 80 {
			line += strings.Repeat(" ", 80-len(line))
		}
		return line, true
	}
	return "", false
}

func slice(s string, from, to int) string {
	if from >= len(s) {
		return ""
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}

// reverseDate flips dd/mm/yyyy to yyyy-mm-dd; anything else passes
// through untouched rather than guessing.
func reverseDate(d string) string {
	parts := strings.Split(d, "/")
	if len(parts) != 3 {
		return d
	}
	return fmt.Sprintf("%s-%s-%s", parts[2], parts[1], parts[0])
}

// parseMoney strips everything but digits. An empty or non-numeric
// column means "no value stated", which is distinct from zero, hence the
// nil return.
func parseMoney(column string) *int64 {
	digits := nonDigit.ReplaceAllString(column, "")
	if digits == "" {
		return nil
	}
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}
