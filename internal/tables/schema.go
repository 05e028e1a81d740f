package tables

// Tail kinds name the rate family a tail proxy was derived from.
const (
	TailKindYield          = "yield"
	TailKindDiscountRate   = "discount_rate"
	TailKindInvestmentRate = "investment_rate"
	TailKindMissing        = "missing"
)

// Tail method tags record the exact pair of fields subtracted.
const (
	TailMethodYield      = "proxy_yield_high_minus_avgmed"
	TailMethodDiscount   = "proxy_discnt_high_minus_avgmed"
	TailMethodInvestment = "proxy_investment_high_minus_avgmed"
	TailMethodMissing    = "missing"
)

// Data-quality flags, in the order they appear in a joined flag string.
const (
	FlagMissingBTC         = "MISSING_BTC"
	FlagMissingTailProxy   = "MISSING_TAIL_PROXY"
	FlagMissingPctIndirect = "MISSING_PCT_INDIRECT"
)

// FlagSeparator joins data-quality flags.
const FlagSeparator = "|"

// CanonicalRecord is one normalized auction row in the historical snapshot.
// Pointer fields are nullable; a nil value means the source did not supply a
// usable number and nothing was inferred in its place.
type CanonicalRecord struct {
	// Natural key: auction_date + "_" + cusip
	AuctionID string `parquet:"auction_id" json:"auction_id"`

	AuctionDate  string  `parquet:"auction_date" json:"auction_date"`
	CUSIP        string  `parquet:"cusip" json:"cusip"`
	Tenor        string  `parquet:"tenor" json:"tenor"`
	SecurityType string  `parquet:"security_type" json:"security_type"`
	Reopening    int64   `parquet:"reopening" json:"reopening"`
	IssueDate    *string `parquet:"issue_date,optional" json:"issue_date"`
	MaturityDate *string `parquet:"maturity_date,optional" json:"maturity_date"`

	BidToCover           *float64 `parquet:"bid_to_cover,optional" json:"bid_to_cover"`
	HighYield            *float64 `parquet:"high_yield,optional" json:"high_yield"`
	AvgMedYield          *float64 `parquet:"avg_med_yield,optional" json:"avg_med_yield"`
	HighDiscntRate       *float64 `parquet:"high_discnt_rate,optional" json:"high_discnt_rate"`
	AvgMedDiscntRate     *float64 `parquet:"avg_med_discnt_rate,optional" json:"avg_med_discnt_rate"`
	HighInvestmentRate   *float64 `parquet:"high_investment_rate,optional" json:"high_investment_rate"`
	AvgMedInvestmentRate *float64 `parquet:"avg_med_investment_rate,optional" json:"avg_med_investment_rate"`
	IndirectAccepted     *float64 `parquet:"indirect_bidder_accepted,optional" json:"indirect_bidder_accepted"`
	TotalAccepted        *float64 `parquet:"total_accepted,optional" json:"total_accepted"`

	// Derived metrics
	TailBps     *float64 `parquet:"tail_bps,optional" json:"tail_bps"`
	TailMethod  string   `parquet:"tail_method" json:"tail_method"`
	TailKind    string   `parquet:"tail_kind" json:"tail_kind"`
	PctIndirect *float64 `parquet:"pct_indirect,optional" json:"pct_indirect"`

	// Provenance
	RawRecordHash    string `parquet:"raw_record_hash" json:"raw_record_hash"`
	DataQualityFlags string `parquet:"data_quality_flags" json:"data_quality_flags"`
}

// TableName returns the canonical table name.
func (CanonicalRecord) TableName() string {
	return "auction_history"
}

// ParquetConfig configures parquet output generation.
type ParquetConfig struct {
	Compression string // "snappy" | "zstd" | "none"
}

// DefaultParquetConfig returns sensible defaults.
func DefaultParquetConfig() ParquetConfig {
	return ParquetConfig{
		Compression: "zstd",
	}
}

// SchemaVersion returns the version of the schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"
