// Package geoip wraps a MaxMind-format (MMDB) database for the
// country/ASN restriction evaluators. No corpus repo touches GeoIP
// directly; this wraps the standard low-level MMDB reader behind the
// same narrow "open a read-only file, look up an IP" interface every
// other evaluator dependency in this repo uses.
package geoip

import (
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Result is what a successful lookup yields.
type Result struct {
	Country string // ISO-3166 alpha-2, empty if unknown
	ASN     uint32 // 0 if unknown
}

type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

type asnRecord struct {
	AutonomousSystemNumber uint32 `maxminddb:"autonomous_system_number"`
}

// DB wraps an open MMDB file. A nil *DB is valid and every lookup
// fails closed (ErrUnconfigured), matching spec.md's posture that
// restrictions are unsafe without an explicitly configured trust
// boundary and database.
type DB struct {
	reader *maxminddb.Reader
}

// Open loads an MMDB file from path. Pass an empty path to get a nil,
// always-fail-closed DB.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, nil
	}
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, err
	}
	return &DB{reader: reader}, nil
}

// ErrUnconfigured is returned by Lookup when the DB is nil.
var ErrUnconfigured = errUnconfigured{}

type errUnconfigured struct{}

func (errUnconfigured) Error() string { return "geoip: database not configured" }

// Lookup resolves ip to a country code and ASN. A nil receiver always
// returns ErrUnconfigured.
func (d *DB) Lookup(ip net.IP) (Result, error) {
	if d == nil || d.reader == nil {
		return Result{}, ErrUnconfigured
	}

	var result Result

	var country countryRecord
	if err := d.reader.Lookup(ip, &country); err == nil {
		result.Country = country.Country.ISOCode
	}

	var asn asnRecord
	if err := d.reader.Lookup(ip, &asn); err == nil {
		result.ASN = asn.AutonomousSystemNumber
	}

	return result, nil
}

// Close releases the underlying file handle/mmap.
func (d *DB) Close() error {
	if d == nil || d.reader == nil {
		return nil
	}
	return d.reader.Close()
}
