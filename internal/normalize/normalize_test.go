package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/auction-ledger/internal/fiscaldata"
	"github.com/withObsrvr/auction-ledger/internal/tables"
)

func loadFixture(t *testing.T) []fiscaldata.Record {
	t.Helper()
	body, err := os.ReadFile("testdata/records.json")
	require.NoError(t, err)
	page, err := fiscaldata.ParsePage(body)
	require.NoError(t, err)
	return page.Data
}

func fmtOpt(v *float64) string {
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%.4f", *v)
}

func render(records []tables.CanonicalRecord) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		fmt.Fprintf(&buf, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.AuctionID, r.Reopening, r.TailKind, r.TailMethod,
			fmtOpt(r.TailBps), fmtOpt(r.PctIndirect), fmtOpt(r.BidToCover),
			r.DataQualityFlags, r.RawRecordHash)
	}
	return buf.Bytes()
}

func TestRecords_Golden(t *testing.T) {
	got := Records(loadFixture(t))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "normalize", render(got))
}

func TestRecords_Deterministic(t *testing.T) {
	raw := loadFixture(t)
	assert.Equal(t, Records(raw), Records(raw))
}

func rec(fields map[string]any) fiscaldata.Record {
	r := fiscaldata.Record{"cusip": "912797GB7", "auction_date": "2024-01-02"}
	for k, v := range fields {
		r[k] = v
	}
	return r
}

func TestRecord_YieldTail(t *testing.T) {
	got := Record(rec(map[string]any{
		"high_yield":          "4.090",
		"avg_med_yield":       "4.040",
		"high_discnt_rate":    "5.000",
		"avg_med_discnt_rate": "4.000",
		"bid_to_cover_ratio":  "2.5",
	}))

	require.NotNil(t, got.TailBps)
	assert.InDelta(t, 5.0, *got.TailBps, 1e-6)
	assert.Equal(t, tables.TailMethodYield, got.TailMethod)
	assert.Equal(t, tables.TailKindYield, got.TailKind)
	assert.Equal(t, "2024-01-02_912797GB7", got.AuctionID)
}

func TestRecord_HexTailFieldsAreMissing(t *testing.T) {
	rec := Record(fiscaldata.Record{
		"cusip":         "91282CJZ5",
		"auction_date":  "2024-01-04",
		"high_yield":    "0x1p3",
		"avg_med_yield": "4.040",
	})
	assert.Nil(t, rec.HighYield)
	assert.Nil(t, rec.TailBps)
	assert.Equal(t, tables.TailKindMissing, rec.TailKind)
}

func TestRecord_MissingTail(t *testing.T) {
	// a half pair of each family is not enough
	got := Record(rec(map[string]any{
		"high_yield":              "4.1",
		"avg_med_discnt_rate":     "5.2",
		"high_investment_rate":    "",
		"avg_med_investment_rate": "5.3",
	}))

	assert.Nil(t, got.TailBps)
	assert.Equal(t, tables.TailMethodMissing, got.TailMethod)
	assert.Equal(t, tables.TailKindMissing, got.TailKind)
	assert.Contains(t, strings.Split(got.DataQualityFlags, "|"), tables.FlagMissingTailProxy)
}

func TestRecord_PctIndirect(t *testing.T) {
	got := Record(rec(map[string]any{"indirect_bidder_accepted": "25", "total_accepted": "100"}))
	require.NotNil(t, got.PctIndirect)
	assert.InDelta(t, 25.0, *got.PctIndirect, 1e-9)

	got = Record(rec(map[string]any{"indirect_bidder_accepted": "25", "total_accepted": "0"}))
	assert.Nil(t, got.PctIndirect)
	assert.Contains(t, got.DataQualityFlags, tables.FlagMissingPctIndirect)

	got = Record(rec(map[string]any{"total_accepted": "100"}))
	assert.Nil(t, got.PctIndirect)
}

func TestFlags_Order(t *testing.T) {
	got := Record(rec(nil))
	assert.Equal(t, "MISSING_BTC|MISSING_TAIL_PROXY|MISSING_PCT_INDIRECT", got.DataQualityFlags)

	got = Record(rec(map[string]any{
		"bid_to_cover_ratio":       "2.1",
		"high_yield":               "4.1",
		"avg_med_yield":            "4.0",
		"indirect_bidder_accepted": "1",
		"total_accepted":           "2",
	}))
	assert.Equal(t, "", got.DataQualityFlags)
}

func TestFloat(t *testing.T) {
	tests := []struct {
		in   any
		want *float64
	}{
		{nil, nil},
		{"", nil},
		{"   ", nil},
		{"null", nil},
		{"abc", nil},
		{"NaN", nil},
		{"Inf", nil},
		{true, nil},
		{"0x1p3", nil},
		{"-0X10", nil},
		{"+0x1.8p1", nil},
		{"0", ptr(0)},
		{"-0.5", ptr(-0.5)},
		{"1e-3", ptr(0.001)},
		{" 4.25 ", ptr(4.25)},
		{json.Number("4.090"), ptr(4.09)},
		{3.5, ptr(3.5)},
		{int64(7), ptr(7.0)},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			got := Float(tt.in)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-12)
		})
	}
}

func TestInt(t *testing.T) {
	assert.EqualValues(t, 0, Int(nil))
	assert.EqualValues(t, 0, Int(""))
	assert.EqualValues(t, 0, Int("Yes"))
	assert.EqualValues(t, 0, Int("1.0"))
	assert.EqualValues(t, 2, Int(" 2 "))
	assert.EqualValues(t, 1, Int(json.Number("1")))
	assert.EqualValues(t, 3, Int(3.0))
}

func TestRecordHash(t *testing.T) {
	a := map[string]any{"b": "2", "a": "1", "c": nil}
	b := map[string]any{"c": nil, "a": "1", "b": "2"}

	ha, err := RecordHash(a)
	require.NoError(t, err)
	hb, err := RecordHash(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb, "key order does not matter")

	canon, err := CanonicalJSON(a)
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"2","c":null}`, string(canon))

	a["b"] = "3"
	hc, err := RecordHash(a)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}

func TestCanonicalJSON_Escaping(t *testing.T) {
	canon, err := CanonicalJSON(map[string]any{
		"html":  "<a&b>",
		"quote": "say \"hi\"\n",
		"uni":   "Ré\u007f",
		"emoji": "\U0001F600",
		"n":     json.Number("4.090"),
		"f":     4.0,
		"list":  []any{true, false, nil},
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"emoji":"\ud83d\ude00","f":4.0,"html":"<a&b>","list":[true,false,null],"n":4.090,"quote":"say \"hi\"\n","uni":"R\u00e9\u007f"}`,
		string(canon))
}

func TestSummarize(t *testing.T) {
	s := Summarize(Records(loadFixture(t)))
	assert.Equal(t, 5, s.Rows)
	assert.Equal(t, 2, s.TailKinds[tables.TailKindYield])
	assert.Equal(t, 1, s.TailKinds[tables.TailKindMissing])
	assert.Equal(t, 3, s.Flags[tables.FlagMissingPctIndirect])
	assert.Equal(t, 2, s.Flags[tables.FlagMissingBTC])
}

func ptr(v float64) *float64 { return &v }
