package models

// InstrumentType classifies a tracked derivative contract.
type InstrumentType string

const (
	InstrumentFuture InstrumentType = "FUTURE"
	InstrumentCall   InstrumentType = "CALL"
	InstrumentPut    InstrumentType = "PUT"
)

// Instrument is immutable reference data loaded by an external sync job.
// The engine never mutates it.
type Instrument struct {
	Token          string         `json:"token"`
	Symbol         string         `json:"symbol"`
	Underlying     string         `json:"underlying"`
	Exchange       string         `json:"exchange"`
	InstrumentType InstrumentType `json:"instrument_type"`
	StrikePrice    *float64       `json:"strike_price,omitempty"` // nil for futures
	Expiry         string         `json:"expiry,omitempty"`       // e.g. "21JUL2025"
	LotSize        int            `json:"lot_size,omitempty"`
}

// OptionType returns the exchange-style leg code: CE for calls, PE for puts,
// FUT for futures.
func (i Instrument) OptionType() string {
	switch i.InstrumentType {
	case InstrumentCall:
		return "CE"
	case InstrumentPut:
		return "PE"
	default:
		return "FUT"
	}
}

// ExpiryMonth returns the month-year suffix of the expiry ("JUL2025"),
// used to match options against the current futures month.
func (i Instrument) ExpiryMonth() string {
	if len(i.Expiry) >= 7 {
		return i.Expiry[len(i.Expiry)-7:]
	}
	return i.Expiry
}
