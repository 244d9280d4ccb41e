package selector

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var foldCaser = cases.Fold()

// normalizeHost NFC-normalizes and case-folds a destination hostname
// before pattern matching, so visually or byte-wise distinct forms of the
// same hostname (a concern for the internationalized domain names a SOCKS
// client may present) match identically.
func normalizeHost(host string) string {
	host = strings.TrimSuffix(host, ".")
	host = norm.NFC.String(host)
	return foldCaser.String(host)
}
