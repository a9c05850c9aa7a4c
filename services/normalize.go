package services

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	"leadboard/models"
)

const (
	minPhoneDigits = 5
	maxPhoneDigits = 15
)

// syntheticNamespace scopes the deterministic ids given to records that
// carry no usable identity hint and no upstream id.
var syntheticNamespace = uuid.MustParse("6f1d3c1e-2b4a-4e8e-9a57-3d1f0c5b7a21")

var genericNames = map[string]struct{}{
	"":          {},
	"guest":     {},
	"anonymous": {},
	"unknown":   {},
	"customer":  {},
	"user":      {},
	"n/a":       {},
	"na":        {},
	"null":      {},
	"undefined": {},
}

// Normalizer turns identity hints into comparable keys. All phone and email
// handling in the pipeline goes through it.
type Normalizer struct {
	// DefaultCountryCode replaces a single trunk "0" prefix, e.g. "91".
	DefaultCountryCode string
}

// NewNormalizer creates a Normalizer for the given default country code.
func NewNormalizer(defaultCountryCode string) *Normalizer {
	return &Normalizer{DefaultCountryCode: digitsOnly(defaultCountryCode)}
}

// Phone normalises a phone hint to "+<digits>".
//
//	"919876543210@s.whatsapp.net" -> "+919876543210"
//	"919876543210:12@s.whatsapp.net" -> "+919876543210"
//	"+91 98765-43210 ext. 22" -> "+919876543210"
//	"0044 20 7946 0958" -> "+442079460958"
//	"tel:+919876543210" -> "+919876543210"
//
// It reports false for hints that are not phone numbers at all.
func (n *Normalizer) Phone(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	s = stripScheme(s)

	// Messaging-protocol suffix and multi-device marker.
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	s = stripExtension(s)
	s = strings.TrimSpace(s)

	plus := strings.HasPrefix(s, "+")
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' || r == ' ' || r == '-' || r == '.' || r == '(' || r == ')' || r == '/':
		default:
			return "", false
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, "00"):
		digits = digits[2:]
	case !plus && n.DefaultCountryCode != "" && strings.HasPrefix(digits, "0"):
		digits = n.DefaultCountryCode + digits[1:]
	}

	if len(digits) < minPhoneDigits || len(digits) > maxPhoneDigits {
		return "", false
	}
	return "+" + digits, true
}

// phoneSchemes are URI schemes a phone hint may arrive wrapped in.
var phoneSchemes = []string{"tel:", "sms:", "callto:"}

func stripScheme(s string) string {
	for _, scheme := range phoneSchemes {
		if len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme) {
			return strings.TrimSpace(s[len(scheme):])
		}
	}
	return s
}

func stripExtension(s string) string {
	lower := strings.ToLower(s)
	for _, marker := range []string{";ext=", "ext.", "ext", "#", "x"} {
		if i := strings.Index(lower, marker); i > 0 {
			return s[:i]
		}
	}
	return s
}

// Email lowercases and validates an email hint.
func (n *Normalizer) Email(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return "", false
	}
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.ContainsFunc(s, unicode.IsSpace) {
		return "", false
	}
	return s, true
}

// Identity derives the key a record folds under: phone, then email, then a
// synthetic per-record key so anonymous records never collide.
func (n *Normalizer) Identity(r models.RawRecord) (key string, kind models.IdentityKind, phone, email string) {
	email, hasEmail := n.Email(r.Email)
	if p, ok := n.Phone(r.Phone); ok {
		return "phone:" + p, models.IdentityPhone, p, email
	}
	if hasEmail {
		return "email:" + email, models.IdentityEmail, "", email
	}
	return "anon:" + syntheticID(r), models.IdentitySynthetic, "", ""
}

func syntheticID(r models.RawRecord) string {
	if r.ID != "" {
		return r.AccountID + "/" + string(r.Kind) + "/" + r.ID
	}
	seed := strings.Join([]string{
		r.AccountID, string(r.Kind), r.Phone, r.Email, r.Name,
		r.When().UTC().Format("2006-01-02T15:04:05.999999999Z"),
	}, "\x1f")
	return uuid.NewSHA1(syntheticNamespace, []byte(seed)).String()
}

// IsGenericName reports whether name is a placeholder that a real name may replace.
// A name that is only the phone number also counts.
func (n *Normalizer) IsGenericName(name string) bool {
	trimmed := strings.TrimSpace(name)
	if _, ok := genericNames[strings.ToLower(trimmed)]; ok {
		return true
	}
	if _, ok := n.Phone(trimmed); ok {
		return true
	}
	return false
}

// BestName picks the first non-generic candidate in priority order.
func (n *Normalizer) BestName(r models.RawRecord) string {
	for _, candidate := range []string{r.Name, r.ProfileName} {
		if !n.IsGenericName(candidate) {
			return normaliseText(candidate)
		}
	}
	return ""
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
