package normalize

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNoRecords means the export yielded no row with a player identity.
var ErrNoRecords = errors.New("normalize: no records")

// Record is one canonical player row. Stats holds every schema field;
// fields the export lacked are empty strings.
type Record struct {
	Identity string
	Sport    string
	Stats    map[string]string
}

// Values returns the row in Header order.
func (r Record) Values(s Schema) []string {
	out := make([]string, 0, len(s.Fields)+1)
	out = append(out, r.Identity)
	for _, f := range s.Fields {
		out = append(out, r.Stats[f.Name])
	}
	return out
}

var bom = []byte("\xef\xbb\xbf")

// header maps raw column names to indexes: exact first, then folded.
type header struct {
	exact  map[string]int
	folded map[string]int
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func newHeader(cols []string) header {
	h := header{exact: map[string]int{}, folded: map[string]int{}}
	for i, c := range cols {
		if _, dup := h.exact[c]; !dup {
			h.exact[c] = i
		}
		if _, dup := h.folded[fold(c)]; !dup {
			h.folded[fold(c)] = i
		}
	}
	return h
}

// lookup returns the first alias with a non-empty value in row.
func (h header) lookup(row []string, aliases []string) string {
	for _, a := range aliases {
		i, ok := h.exact[a]
		if !ok {
			i, ok = h.folded[fold(a)]
		}
		if !ok || i >= len(row) {
			continue
		}
		if v := strings.TrimSpace(row[i]); v != "" {
			return v
		}
	}
	return ""
}

// Normalize maps a raw CSV export onto the sport's schema. Rows without an
// identity are dropped. A repeated identity replaces the earlier row's
// values but keeps its position.
func Normalize(sport string, raw []byte) ([]Record, error) {
	schema, err := SchemaFor(sport)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(raw, bom)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	cols, err := r.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty export", ErrNoRecords)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := newHeader(cols)

	var records []Record
	pos := map[string]int{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed row is dropped like a row without identity.
			continue
		}
		id := h.lookup(row, IdentityAliases)
		if id == "" {
			continue
		}
		rec := Record{Identity: id, Sport: schema.Sport, Stats: make(map[string]string, len(schema.Fields))}
		for _, f := range schema.Fields {
			rec.Stats[f.Name] = h.lookup(row, f.Aliases)
		}
		if i, seen := pos[id]; seen {
			records[i] = rec
			continue
		}
		pos[id] = len(records)
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s export has no player rows", ErrNoRecords, schema.Sport)
	}
	return records, nil
}

// EncodeCSV renders records as canonical CSV.
func EncodeCSV(s Schema, records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(s.Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec.Values(s)); err != nil {
			return nil, fmt.Errorf("write record %s: %w", rec.Identity, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
