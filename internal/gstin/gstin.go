// Package gstin holds GSTIN format utilities shared by the matching levels
// and the ingest-facing store.
package gstin

import (
	"regexp"
	"strings"
)

// stateCodes maps the first two GSTIN digits to the issuing state.
var stateCodes = map[string]string{
	"01": "Jammu & Kashmir", "02": "Himachal Pradesh", "03": "Punjab",
	"04": "Chandigarh", "05": "Uttarakhand", "06": "Haryana",
	"07": "Delhi", "08": "Rajasthan", "09": "Uttar Pradesh",
	"10": "Bihar", "11": "Sikkim", "12": "Arunachal Pradesh",
	"13": "Nagaland", "14": "Manipur", "15": "Mizoram",
	"16": "Tripura", "17": "Meghalaya", "18": "Assam",
	"19": "West Bengal", "20": "Jharkhand", "21": "Odisha",
	"22": "Chhattisgarh", "23": "Madhya Pradesh", "24": "Gujarat",
	"26": "Dadra & Nagar Haveli", "27": "Maharashtra", "29": "Karnataka",
	"30": "Goa", "31": "Lakshadweep", "32": "Kerala",
	"33": "Tamil Nadu", "34": "Puducherry", "35": "Andaman & Nicobar",
	"36": "Telangana", "37": "Andhra Pradesh",
}

var gstinPattern = regexp.MustCompile(`^([0-9]{2})([A-Z]{5}[0-9]{4}[A-Z])([1-9A-Z])(Z)([0-9A-Z])$`)

var nonInvoiceChars = regexp.MustCompile(`[^A-Z0-9\-]`)

// invoice number prefixes stripped before comparison
var invoicePrefixes = []string{"INV-", "INV/", "BILL-", "BILL/", "TAX-", "TAX/"}

// Validate checks GSTIN format: 2-digit state code + 10-char PAN + entity
// digit + 'Z' + check character.
func Validate(gstin string) bool {
	if len(gstin) != 15 {
		return false
	}
	m := gstinPattern.FindStringSubmatch(gstin)
	if m == nil {
		return false
	}
	_, ok := stateCodes[m[1]]
	return ok
}

// PAN extracts the 10-character PAN embedded in a valid GSTIN.
func PAN(gstin string) string {
	if !Validate(gstin) {
		return ""
	}
	return gstin[2:12]
}

// State returns the state name for a valid GSTIN.
func State(gstin string) string {
	if !Validate(gstin) {
		return ""
	}
	return stateCodes[gstin[:2]]
}

const checkChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// CheckDigit computes the check character for a 14-character GSTIN prefix
// using the mod-36 alternating-factor scheme.
func CheckDigit(prefix string) byte {
	factor := 1
	total := 0
	for _, ch := range prefix {
		idx := strings.IndexRune(checkChars, ch)
		if idx < 0 {
			return 0
		}
		idx *= factor
		total += idx/36 + idx%36
		if factor == 1 {
			factor = 2
		} else {
			factor = 1
		}
	}
	return checkChars[(36-total%36)%36]
}

// NormalizeInvoiceNumber canonicalizes an invoice number for matching:
// uppercase, common prefixes removed, special characters stripped, leading
// zeros dropped.
func NormalizeInvoiceNumber(invNo string) string {
	n := strings.ToUpper(strings.TrimSpace(invNo))
	if n == "" {
		return ""
	}
	for _, p := range invoicePrefixes {
		if strings.HasPrefix(n, p) {
			n = n[len(p):]
			break
		}
	}
	n = nonInvoiceChars.ReplaceAllString(n, "")
	n = strings.TrimLeft(n, "0")
	if n == "" {
		return "0"
	}
	return n
}
