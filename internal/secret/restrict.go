package secret

import (
	"context"
	"net"

	"github.com/hakanai/hakanai/internal/geoip"
	"github.com/hakanai/hakanai/internal/wire"
)

// Decision is the outcome of a single evaluator.
type Decision int

const (
	Allow Decision = iota
	Deny
)

// RequestContext carries the retrieval request's network identity,
// derived by the server from the trusted forwarding header per
// spec.md §6.
type RequestContext struct {
	IP net.IP
}

// Evaluator is one link in the ordered restriction chain: given the
// requester's identity and the record's restriction field, it decides
// ALLOW or DENY. Each evaluator owns exactly one restriction field,
// isolating the geo/ASN lookup dependency from the rest of the engine.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, rc RequestContext, r *wire.Restrictions) (Decision, error)
}

// ErrRestrictionDisabled is returned by an evaluator when its
// restriction type is present on the record but disabled server-wide;
// the engine maps this to 501 NOT_SUPPORTED.
var ErrRestrictionDisabled = disabledErr{}

type disabledErr struct{}

func (disabledErr) Error() string { return "restriction type disabled" }

// ipEvaluator checks RequestContext.IP against Restrictions.AllowedIPs
// (a list of CIDRs). Always enabled: spec.md has no config flag to
// disable IP restrictions.
type ipEvaluator struct{}

func (ipEvaluator) Name() string { return "ip" }

func (ipEvaluator) Evaluate(_ context.Context, rc RequestContext, r *wire.Restrictions) (Decision, error) {
	if r == nil || len(r.AllowedIPs) == 0 {
		return Allow, nil
	}
	for _, cidr := range r.AllowedIPs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(rc.IP) {
			return Allow, nil
		}
	}
	return Deny, nil
}

// countryEvaluator checks the requester's GeoIP country against
// Restrictions.AllowedCountries. Can be statically disabled.
type countryEvaluator struct {
	enabled bool
	db      *geoip.DB
}

func (countryEvaluator) Name() string { return "country" }

func (e countryEvaluator) Evaluate(_ context.Context, rc RequestContext, r *wire.Restrictions) (Decision, error) {
	if r == nil || len(r.AllowedCountries) == 0 {
		return Allow, nil
	}
	if !e.enabled {
		return Deny, ErrRestrictionDisabled
	}

	result, err := e.db.Lookup(rc.IP)
	if err != nil {
		// No configured database: fail closed.
		return Deny, nil
	}
	for _, c := range r.AllowedCountries {
		if c == result.Country {
			return Allow, nil
		}
	}
	return Deny, nil
}

// asnEvaluator checks the requester's GeoIP ASN against
// Restrictions.AllowedASNs. Can be statically disabled.
type asnEvaluator struct {
	enabled bool
	db      *geoip.DB
}

func (asnEvaluator) Name() string { return "asn" }

func (e asnEvaluator) Evaluate(_ context.Context, rc RequestContext, r *wire.Restrictions) (Decision, error) {
	if r == nil || len(r.AllowedASNs) == 0 {
		return Allow, nil
	}
	if !e.enabled {
		return Deny, ErrRestrictionDisabled
	}

	result, err := e.db.Lookup(rc.IP)
	if err != nil {
		return Deny, nil
	}
	for _, asn := range r.AllowedASNs {
		if asn == int64(result.ASN) {
			return Allow, nil
		}
	}
	return Deny, nil
}

// Chain is the ordered list of restriction evaluators run at
// retrieval time, after the passphrase gate.
type Chain struct {
	evaluators []Evaluator
}

// NewChain builds the standard IP/country/ASN chain. countryEnabled
// and asnEnabled mirror the server config options of the same name.
func NewChain(countryEnabled, asnEnabled bool, db *geoip.DB) *Chain {
	return &Chain{evaluators: []Evaluator{
		ipEvaluator{},
		countryEvaluator{enabled: countryEnabled, db: db},
		asnEvaluator{enabled: asnEnabled, db: db},
	}}
}

// Evaluate runs every evaluator in order, short-circuiting on the
// first denial or disabled-restriction error. The returned evaluator
// name identifies which link in the chain produced the decision (or
// the last one run, on an Allow), so the caller can log which gate
// fired without duplicating the chain's own iteration logic.
func (c *Chain) Evaluate(ctx context.Context, rc RequestContext, r *wire.Restrictions) (Decision, string, error) {
	name := ""
	for _, e := range c.evaluators {
		name = e.Name()
		decision, err := e.Evaluate(ctx, rc, r)
		if err != nil {
			return Deny, name, err
		}
		if decision == Deny {
			return Deny, name, nil
		}
	}
	return Allow, name, nil
}
