package secret

import (
	"context"
	"net"
	"testing"

	"github.com/hakanai/hakanai/internal/wire"
)

func TestIPEvaluatorNoRestrictionAllows(t *testing.T) {
	e := ipEvaluator{}
	d, err := e.Evaluate(context.Background(), RequestContext{IP: net.ParseIP("8.8.8.8")}, nil)
	if err != nil || d != Allow {
		t.Fatalf("got decision=%v err=%v, want Allow/nil", d, err)
	}
}

func TestIPEvaluatorMalformedCIDRIsSkippedNotFatal(t *testing.T) {
	e := ipEvaluator{}
	r := &wire.Restrictions{AllowedIPs: []string{"not-a-cidr", "10.0.0.0/8"}}
	d, err := e.Evaluate(context.Background(), RequestContext{IP: net.ParseIP("10.0.0.5")}, r)
	if err != nil || d != Allow {
		t.Fatalf("got decision=%v err=%v, want Allow/nil", d, err)
	}
}

func TestCountryEvaluatorDisabledReturnsRestrictionDisabled(t *testing.T) {
	e := countryEvaluator{enabled: false}
	r := &wire.Restrictions{AllowedCountries: []string{"US"}}
	_, err := e.Evaluate(context.Background(), RequestContext{IP: net.ParseIP("1.2.3.4")}, r)
	if err != ErrRestrictionDisabled {
		t.Fatalf("expected ErrRestrictionDisabled, got %v", err)
	}
}

func TestCountryEvaluatorNoDBFailsClosed(t *testing.T) {
	e := countryEvaluator{enabled: true, db: nil}
	r := &wire.Restrictions{AllowedCountries: []string{"US"}}
	d, err := e.Evaluate(context.Background(), RequestContext{IP: net.ParseIP("1.2.3.4")}, r)
	if err != nil || d != Deny {
		t.Fatalf("got decision=%v err=%v, want Deny/nil (fail closed)", d, err)
	}
}

func TestASNEvaluatorDisabledReturnsRestrictionDisabled(t *testing.T) {
	e := asnEvaluator{enabled: false}
	r := &wire.Restrictions{AllowedASNs: []int64{13335}}
	_, err := e.Evaluate(context.Background(), RequestContext{IP: net.ParseIP("1.2.3.4")}, r)
	if err != ErrRestrictionDisabled {
		t.Fatalf("expected ErrRestrictionDisabled, got %v", err)
	}
}

func TestChainShortCircuitsOnFirstDeny(t *testing.T) {
	c := NewChain(true, true, nil)
	r := &wire.Restrictions{AllowedIPs: []string{"10.0.0.0/8"}}
	d, name, err := c.Evaluate(context.Background(), RequestContext{IP: net.ParseIP("1.2.3.4")}, r)
	if err != nil || d != Deny {
		t.Fatalf("got decision=%v err=%v, want Deny/nil", d, err)
	}
	if name != "ip" {
		t.Fatalf("got evaluator=%q, want %q", name, "ip")
	}
}

func TestChainAllowsWhenNoRestrictionsSet(t *testing.T) {
	c := NewChain(true, true, nil)
	d, _, err := c.Evaluate(context.Background(), RequestContext{IP: net.ParseIP("1.2.3.4")}, nil)
	if err != nil || d != Allow {
		t.Fatalf("got decision=%v err=%v, want Allow/nil", d, err)
	}
}
