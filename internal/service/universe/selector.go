package universe

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rishigupta87/open-ta/internal/domain/models"
	drepo "github.com/rishigupta87/open-ta/internal/domain/repository"
	applogger "github.com/rishigupta87/open-ta/pkg/logger"
)

// PriceHint supplies a reference price for ATM estimation. When absent, the
// selector falls back to the middle of the available strike ladder.
type PriceHint func(underlying string) (float64, bool)

// Selector picks the tracked token universe per underlying: the
// nearest-month future plus the option legs of the strikes closest to the
// reference price.
type Selector struct {
	dir         drepo.InstrumentDirectory
	underlyings []string
	numStrikes  int
	priceHint   PriceHint
	l           *applogger.Logger
}

// Option configures Selector.
type Option func(*Selector)

// WithPriceHint sets the reference-price source.
func WithPriceHint(h PriceHint) Option {
	return func(s *Selector) { s.priceHint = h }
}

// New creates a selector over the instrument directory.
func New(dir drepo.InstrumentDirectory, underlyings []string, numStrikes int, l *applogger.Logger, opts ...Option) *Selector {
	if numStrikes <= 0 {
		numStrikes = 5
	}
	s := &Selector{
		dir:         dir,
		underlyings: underlyings,
		numStrikes:  numStrikes,
		l:           l,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select resolves the full token universe across configured underlyings.
func (s *Selector) Select(_ context.Context) ([]string, error) {
	var tokens []string
	for _, u := range s.underlyings {
		ut, err := s.selectUnderlying(u)
		if err != nil {
			s.l.Warn("universe selection skipped underlying",
				applogger.String("underlying", u),
				applogger.Error(err),
			)
			continue
		}
		tokens = append(tokens, ut...)
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no tokens selected for underlyings %v", s.underlyings)
	}
	return tokens, nil
}

func (s *Selector) selectUnderlying(underlying string) ([]string, error) {
	instruments := s.dir.ListUnderlying(underlying)
	if len(instruments) == 0 {
		return nil, fmt.Errorf("no instruments for %s", underlying)
	}

	fut, ok := nearestFuture(instruments)
	if !ok {
		return nil, fmt.Errorf("no future contract for %s", underlying)
	}

	// Options of the future's month, grouped by strike.
	month := fut.ExpiryMonth()
	byStrike := make(map[float64][]models.Instrument)
	for _, inst := range instruments {
		if inst.InstrumentType == models.InstrumentFuture || inst.StrikePrice == nil {
			continue
		}
		if inst.ExpiryMonth() != month {
			continue
		}
		byStrike[*inst.StrikePrice] = append(byStrike[*inst.StrikePrice], inst)
	}
	if len(byStrike) == 0 {
		return []string{fut.Token}, nil
	}

	strikes := make([]float64, 0, len(byStrike))
	for k := range byStrike {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	center, hinted := 0.0, false
	if s.priceHint != nil {
		center, hinted = s.priceHint(underlying)
	}
	if !hinted {
		// ATM estimate: middle of the available strike ladder.
		center = strikes[len(strikes)/2]
	}

	selected := nearestStrikes(strikes, center, s.numStrikes)

	tokens := []string{fut.Token}
	for _, strike := range selected {
		for _, inst := range byStrike[strike] {
			tokens = append(tokens, inst.Token)
		}
	}

	s.l.Info("universe selected",
		applogger.String("underlying", underlying),
		applogger.String("future", fut.Symbol),
		applogger.Float64("center", center),
		applogger.Int("strikes", len(selected)),
		applogger.Int("tokens", len(tokens)),
	)
	return tokens, nil
}

// nearestStrikes picks n strikes around center: the closest at-or-below
// strike first, then alternating above and below. Result is sorted.
func nearestStrikes(strikes []float64, center float64, n int) []float64 {
	var below, above []float64
	for _, s := range strikes {
		if s <= center {
			below = append(below, s)
		} else {
			above = append(above, s)
		}
	}
	// closest first
	sort.Sort(sort.Reverse(sort.Float64Slice(below)))
	sort.Float64s(above)

	var picked []float64
	bi, ai := 0, 0
	if len(below) > 0 {
		picked = append(picked, below[0])
		bi = 1
	}
	for len(picked) < n {
		switch {
		case ai < len(above):
			picked = append(picked, above[ai])
			ai++
		case bi < len(below):
			picked = append(picked, below[bi])
			bi++
		default:
			sort.Float64s(picked)
			return picked
		}
	}
	sort.Float64s(picked)
	return picked
}

var months = map[string]int{
	"JAN": 1, "FEB": 2, "MAR": 3, "APR": 4, "MAY": 5, "JUN": 6,
	"JUL": 7, "AUG": 8, "SEP": 9, "OCT": 10, "NOV": 11, "DEC": 12,
}

// expiryKey orders expiries like "21JUL2025" chronologically. Unparseable
// expiries sort last.
func expiryKey(expiry string) int {
	e := strings.ToUpper(expiry)
	if len(e) < 7 {
		return 1 << 30
	}
	year, err := strconv.Atoi(e[len(e)-4:])
	if err != nil {
		return 1 << 30
	}
	mon, ok := months[e[len(e)-7:len(e)-4]]
	if !ok {
		return 1 << 30
	}
	day := 0
	if d, err := strconv.Atoi(e[:len(e)-7]); err == nil {
		day = d
	}
	return year*10000 + mon*100 + day
}

// nearestFuture returns the future with the earliest expiry.
func nearestFuture(instruments []models.Instrument) (models.Instrument, bool) {
	var best models.Instrument
	bestKey := 1 << 31
	found := false
	for _, inst := range instruments {
		if inst.InstrumentType != models.InstrumentFuture {
			continue
		}
		if k := expiryKey(inst.Expiry); k < bestKey {
			best, bestKey, found = inst, k, true
		}
	}
	return best, found
}
