// Package feed supplies ordered bar streams. The core never fetches,
// aligns or caches data; these sources exist at the boundary.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"barsim/internal/domain"
)

// LoadCSV reads a candle CSV with headers time|timestamp, open, high, low,
// close, volume|vol. Headers are case-insensitive; unknown columns are
// ignored. Rows with missing, unparsable or incoherent price fields (open
// or close outside the low-high range) become void bars: they keep their
// slot in the series but carry no tradable information.
func LoadCSV(path, symbol string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []domain.Bar
	var headers []string
	rowIdx := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := first(row, "time", "timestamp")
		if ts == "" {
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			continue
		}

		bar := domain.Bar{Time: tt, Symbol: symbol, Status: domain.MarketOpen}
		o, okO := parseDec(first(row, "open"))
		h, okH := parseDec(first(row, "high"))
		l, okL := parseDec(first(row, "low"))
		c, okC := parseDec(first(row, "close"))
		v, _ := parseDec(first(row, "volume", "vol"))

		if !okO || !okH || !okL || !okC {
			bar.Status = domain.MarketClosed
		} else {
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume = o, h, l, c, v
			// An open or close outside [low, high] is as untradable as no
			// data at all.
			if !bar.Contains(bar.Open) || !bar.Contains(bar.Close) {
				bar = domain.Bar{Time: tt, Symbol: symbol, Status: domain.MarketClosed}
			}
		}
		out = append(out, bar)
		rowIdx++
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// parseTimeFlexible supports RFC3339 or UNIX seconds.
func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time: %s", s)
}

func parseDec(s string) (decimal.Decimal, bool) {
	if s == "" || strings.EqualFold(s, "nan") {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// first returns the first non-empty value for keys in m.
func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
