package auth

import (
	"net"
	"regexp"

	"github.com/hakanai/hakanai/internal/wire"
)

var (
	countryCodePattern    = regexp.MustCompile(`^[A-Z]{2}$`)
	passphraseHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// ValidateRestrictions structurally checks every field of r: CIDRs
// parse, country codes are two uppercase letters, ASNs are
// non-negative, and the passphrase hash is exactly 64 lowercase hex
// characters. It does not consult server feature flags — that's the
// caller's job (map a disabled-but-present restriction to 501).
func ValidateRestrictions(r *wire.Restrictions) error {
	if r == nil {
		return nil
	}

	for _, cidr := range r.AllowedIPs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return ErrInvalidRestrictions
		}
	}

	for _, code := range r.AllowedCountries {
		if !countryCodePattern.MatchString(code) {
			return ErrInvalidRestrictions
		}
	}

	for _, asn := range r.AllowedASNs {
		if asn < 0 {
			return ErrInvalidRestrictions
		}
	}

	if r.PassphraseHash != "" && !passphraseHashPattern.MatchString(r.PassphraseHash) {
		return ErrInvalidRestrictions
	}

	return nil
}

// ErrInvalidRestrictions is returned by ValidateRestrictions.
var ErrInvalidRestrictions = invalidRestrictionsErr{}

type invalidRestrictionsErr struct{}

func (invalidRestrictionsErr) Error() string { return "invalid restrictions" }
