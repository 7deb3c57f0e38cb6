// Package router implements the Router (C3): fans a quote request out to
// every registered venue driver in parallel, and picks the venue with the
// best effective output. Grounded on the teacher's
// internal/trading/smart_order_router.go SmartOrderRouter, generalized from
// its many routing strategies down to the spec's single deterministic
// best-effective-output rule.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/solswap/execution-engine/internal/domain"
	"github.com/solswap/execution-engine/internal/engineerr"
	"github.com/solswap/execution-engine/internal/venue"
)

// Router fans out quote requests across every registered venue driver and
// ranks the results.
type Router struct {
	mu      sync.RWMutex
	drivers []venue.Driver // registration order is the final tie-break
}

// New creates a Router with no drivers registered.
func New() *Router {
	return &Router{}
}

// Register adds a venue driver. Registration order is significant: it is
// the Router's last tie-break when two quotes are otherwise equal.
func (r *Router) Register(d venue.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers = append(r.drivers, d)
}

// DriverByName returns the registered driver with the given name, used by
// the Processor to re-acquire the venue a RoutingDecision selected.
func (r *Router) DriverByName(name string) (venue.Driver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.drivers {
		if d.Name() == name {
			return d, true
		}
	}
	return nil, false
}

// Route fetches a quote from every registered driver in parallel and
// returns the best one along with a full routing decision record.
func (r *Router) Route(ctx context.Context, orderID string, pair venue.Pair, amountIn decimal.Decimal) (domain.Quote, domain.RoutingDecision, error) {
	r.mu.RLock()
	drivers := make([]venue.Driver, len(r.drivers))
	copy(drivers, r.drivers)
	r.mu.RUnlock()

	if len(drivers) == 0 {
		return domain.Quote{}, domain.RoutingDecision{}, fmt.Errorf("%w: no venue drivers registered", engineerr.ErrNoQuotes)
	}

	type quoteOrErr struct {
		quote domain.Quote
		err   error
	}

	results := make([]quoteOrErr, len(drivers))
	var wg sync.WaitGroup
	for i, d := range drivers {
		wg.Add(1)
		go func(i int, d venue.Driver) {
			defer wg.Done()
			q, err := d.Quote(ctx, pair, amountIn)
			results[i] = quoteOrErr{quote: q, err: err}
		}(i, d)
	}
	wg.Wait()

	quotes := make([]domain.Quote, 0, len(drivers))
	for _, res := range results {
		if res.err == nil {
			quotes = append(quotes, res.quote)
		}
	}

	if len(quotes) == 0 {
		return domain.Quote{}, domain.RoutingDecision{}, fmt.Errorf("%w: every venue failed to quote", engineerr.ErrNoQuotes)
	}

	best, bestIdx := rank(quotes, drivers)
	rationale, gap := explain(quotes, best, bestIdx)

	decision := domain.RoutingDecision{
		OrderID:     orderID,
		Quotes:      quotes,
		Selected:    best,
		Rationale:   rationale,
		PriceGapPct: gap,
		At:          time.Now().UTC(),
	}

	return best, decision, nil
}

// rank picks the quote with the highest effective output. Ties are broken
// by lower fee rate, then lower price impact, then by the venue's
// registration order in drivers.
func rank(quotes []domain.Quote, drivers []venue.Driver) (domain.Quote, int) {
	registrationOrder := make(map[string]int, len(drivers))
	for i, d := range drivers {
		registrationOrder[d.Name()] = i
	}

	best := quotes[0]
	for _, q := range quotes[1:] {
		if better(q, best, registrationOrder) {
			best = q
		}
	}
	return best, registrationOrder[best.Venue]
}

func better(a, b domain.Quote, registrationOrder map[string]int) bool {
	aOut, bOut := a.EffectiveOutput(), b.EffectiveOutput()
	if !aOut.Equal(bOut) {
		return aOut.GreaterThan(bOut)
	}
	if !a.FeeRate.Equal(b.FeeRate) {
		return a.FeeRate.LessThan(b.FeeRate)
	}
	if !a.PriceImpact.Equal(b.PriceImpact) {
		return a.PriceImpact.LessThan(b.PriceImpact)
	}
	return registrationOrder[a.Venue] < registrationOrder[b.Venue]
}

// explain renders a human-readable rationale enumerating the delta between
// the winning quote and every runner-up, and the overall best-to-worst
// price gap as a percentage.
func explain(quotes []domain.Quote, selected domain.Quote, _ int) (string, decimal.Decimal) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "selected %s (effective output %s)", selected.Venue, selected.EffectiveOutput().StringFixed(8))

	worst := selected.EffectiveOutput()
	for _, q := range quotes {
		if q.Venue == selected.Venue {
			continue
		}
		delta := selected.EffectiveOutput().Sub(q.EffectiveOutput())
		fmt.Fprintf(&sb, "; beat %s by %s", q.Venue, delta.StringFixed(8))
		if q.EffectiveOutput().LessThan(worst) {
			worst = q.EffectiveOutput()
		}
	}

	gap := decimal.Zero
	if selected.EffectiveOutput().IsPositive() {
		gap = selected.EffectiveOutput().Sub(worst).Div(selected.EffectiveOutput()).Mul(decimal.NewFromInt(100))
	}

	return sb.String(), gap
}
