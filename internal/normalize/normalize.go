// Package normalize maps raw auction records to canonical rows. It is pure:
// no I/O, no clock, and the same input always yields the same output.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/withObsrvr/auction-ledger/internal/fiscaldata"
	"github.com/withObsrvr/auction-ledger/internal/tables"
)

// Records normalizes raw records in input order. Duplicate natural keys are
// all emitted; last-write-wins is applied when the snapshot is merged.
func Records(raw []fiscaldata.Record) []tables.CanonicalRecord {
	out := make([]tables.CanonicalRecord, 0, len(raw))
	for _, r := range raw {
		out = append(out, Record(r))
	}
	return out
}

// Record normalizes a single raw record. It never fails: malformed numeric
// fields become null and are reported through the data-quality flags.
func Record(r fiscaldata.Record) tables.CanonicalRecord {
	auctionDate := str(r["auction_date"])
	cusip := str(r["cusip"])

	rec := tables.CanonicalRecord{
		AuctionID:    auctionDate + "_" + cusip,
		AuctionDate:  auctionDate,
		CUSIP:        cusip,
		Tenor:        str(r["security_term"]),
		SecurityType: str(r["security_type"]),
		Reopening:    Int(r["reopening"]),
		IssueDate:    optStr(r["issue_date"]),
		MaturityDate: optStr(r["maturity_date"]),

		BidToCover:           Float(r["bid_to_cover_ratio"]),
		HighYield:            Float(r["high_yield"]),
		AvgMedYield:          Float(r["avg_med_yield"]),
		HighDiscntRate:       Float(r["high_discnt_rate"]),
		AvgMedDiscntRate:     Float(r["avg_med_discnt_rate"]),
		HighInvestmentRate:   Float(r["high_investment_rate"]),
		AvgMedInvestmentRate: Float(r["avg_med_investment_rate"]),
		IndirectAccepted:     Float(r["indirect_bidder_accepted"]),
		TotalAccepted:        Float(r["total_accepted"]),
	}

	rec.PctIndirect = pctIndirect(rec.IndirectAccepted, rec.TotalAccepted)
	rec.TailBps, rec.TailMethod, rec.TailKind = tailProxy(rec)

	// A record that cannot be serialized cannot have come from JSON, so the
	// hash is left empty rather than invented.
	rec.RawRecordHash, _ = RecordHash(map[string]any(r))

	rec.DataQualityFlags = Flags(rec)
	return rec
}

// tailProxy applies the fixed priority yield > discount rate > investment
// rate. A family is used only when both of its fields are present; nothing
// is inferred from a single value.
func tailProxy(rec tables.CanonicalRecord) (*float64, string, string) {
	switch {
	case rec.HighYield != nil && rec.AvgMedYield != nil:
		return bps(*rec.HighYield, *rec.AvgMedYield), tables.TailMethodYield, tables.TailKindYield
	case rec.HighDiscntRate != nil && rec.AvgMedDiscntRate != nil:
		return bps(*rec.HighDiscntRate, *rec.AvgMedDiscntRate), tables.TailMethodDiscount, tables.TailKindDiscountRate
	case rec.HighInvestmentRate != nil && rec.AvgMedInvestmentRate != nil:
		return bps(*rec.HighInvestmentRate, *rec.AvgMedInvestmentRate), tables.TailMethodInvestment, tables.TailKindInvestmentRate
	default:
		return nil, tables.TailMethodMissing, tables.TailKindMissing
	}
}

func bps(high, avgMed float64) *float64 {
	v := (high - avgMed) * 100.0
	return &v
}

func pctIndirect(indirect, total *float64) *float64 {
	if indirect == nil || total == nil || *total == 0 {
		return nil
	}
	v := *indirect / *total * 100.0
	return &v
}

// Flags renders the data-quality flags of a normalized record in their fixed
// order, joined by "|". A fully populated record has no flags.
func Flags(rec tables.CanonicalRecord) string {
	var flags []string
	if rec.BidToCover == nil {
		flags = append(flags, tables.FlagMissingBTC)
	}
	if rec.TailBps == nil {
		flags = append(flags, tables.FlagMissingTailProxy)
	}
	if rec.PctIndirect == nil {
		flags = append(flags, tables.FlagMissingPctIndirect)
	}
	return strings.Join(flags, tables.FlagSeparator)
}

// Float coerces a raw field to a number. Absent, empty, non-numeric and
// non-finite inputs all yield nil.
func Float(v any) *float64 {
	var f float64
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if s == "" || isHexFloat(s) {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	case json.Number:
		parsed, err := strconv.ParseFloat(val.String(), 64)
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = val
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// isHexFloat reports whether s is a hexadecimal literal such as "0x1p3" or
// "-0X10". Only decimal notation counts as numeric.
func isHexFloat(s string) bool {
	if s[0] == '+' || s[0] == '-' {
		s = s[1:]
	}
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

// Int coerces the reopening indicator. Anything that is not an integer,
// including "Yes"/"No", yields 0.
func Int(v any) int64 {
	switch val := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0
		}
		return n
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, err := val.Float64()
		if err != nil {
			return 0
		}
		return truncate(f)
	case int:
		return int64(val)
	case int64:
		return val
	case float64:
		return truncate(val)
	default:
		return 0
	}
}

// truncate drops the fraction of a JSON number; non-finite values give 0.
func truncate(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(f)
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func optStr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

// Summary counts normalized rows by tail kind and by data-quality flag.
type Summary struct {
	Rows      int
	TailKinds map[string]int
	Flags     map[string]int
}

// Summarize tallies a normalized batch.
func Summarize(records []tables.CanonicalRecord) Summary {
	s := Summary{
		Rows:      len(records),
		TailKinds: make(map[string]int),
		Flags:     make(map[string]int),
	}
	for _, rec := range records {
		s.TailKinds[rec.TailKind]++
		if rec.DataQualityFlags == "" {
			continue
		}
		for _, flag := range strings.Split(rec.DataQualityFlags, tables.FlagSeparator) {
			s.Flags[flag]++
		}
	}
	return s
}
