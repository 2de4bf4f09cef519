package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
)

// Historical bar files arrive from several exporters with drifting
// headers, so the loader maps common column namings onto the canonical
// time/open/high/low/close set and tolerates a handful of timestamp
// layouts. Rows that fail numeric or timestamp parsing are dropped and
// counted, never fatal.

var timeAliases = map[string]bool{
	"datetime": true, "timestamp": true, "time": true, "date": true,
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"02-01-2006 15:04",
	"2006-01-02",
}

// LoadBars reads bar rows from r. It returns the bars sorted ascending
// by start time along with the number of rows dropped during parsing.
func LoadBars(r io.Reader) ([]Bar, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	cols, hasHeader := mapColumns(header)
	dropped := 0
	var bars []Bar

	if !hasHeader {
		// Headerless file: assume time,open,high,low,close order.
		cols = columns{ts: 0, open: 1, high: 2, low: 3, clos: 4}
		if b, ok := parseRow(header, cols); ok {
			bars = append(bars, b)
		} else {
			dropped++
		}
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, dropped, err
		}
		if len(row) == 0 {
			continue
		}
		b, ok := parseRow(row, cols)
		if !ok {
			dropped++
			continue
		}
		bars = append(bars, b)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Start.Before(bars[j].Start) })

	if dropped > 0 {
		log.Printf("[WARN] history: dropped %d unparseable rows", dropped)
	}
	return bars, dropped, nil
}

// LoadBarsFile loads a bar CSV from disk, transparently decompressing
// .xz archives.
func LoadBarsFile(path string) ([]Bar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.EqualFold(filepath.Ext(path), ".xz") {
		xr, err := xz.NewReader(f)
		if err != nil {
			return nil, 0, fmt.Errorf("open xz %s: %w", path, err)
		}
		r = xr
	}
	return LoadBars(r)
}

type columns struct {
	ts, open, high, low, clos int
}

// mapColumns resolves header aliases to column indexes. ok is false
// when the first row does not look like a header at all.
func mapColumns(header []string) (columns, bool) {
	cols := columns{ts: -1, open: -1, high: -1, low: -1, clos: -1}
	found := false
	for i, h := range header {
		switch key := strings.ToLower(strings.TrimSpace(h)); {
		case timeAliases[key]:
			cols.ts = i
			found = true
		case key == "open":
			cols.open = i
			found = true
		case key == "high":
			cols.high = i
			found = true
		case key == "low":
			cols.low = i
			found = true
		case key == "close":
			cols.clos = i
			found = true
		}
	}
	return cols, found
}

func parseRow(row []string, cols columns) (Bar, bool) {
	max := cols.ts
	for _, c := range []int{cols.open, cols.high, cols.low, cols.clos} {
		if c > max {
			max = c
		}
	}
	if cols.ts < 0 || cols.open < 0 || cols.high < 0 || cols.low < 0 || cols.clos < 0 || len(row) <= max {
		return Bar{}, false
	}

	ts, ok := parseTime(row[cols.ts])
	if !ok {
		return Bar{}, false
	}

	vals := make([]float64, 4)
	for i, c := range []int{cols.open, cols.high, cols.low, cols.clos} {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[c]), 64)
		if err != nil {
			return Bar{}, false
		}
		vals[i] = v
	}

	return Bar{Start: ts, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3]}, true
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Epoch seconds, a common export format for intraday dumps.
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}
