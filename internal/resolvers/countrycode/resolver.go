// Package countrycode derives a profile country from the international
// dialing prefix of a contact's phone numbers. Numbers are resolved with the
// libphonenumber metadata; it makes no network calls.
package countrycode

import (
	"context"
	"strings"

	"github.com/nyaruka/phonenumbers"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/palantir/contact-enrichment/internal/enrich"
)

const (
	// Name identifies the resolver in traces and exclusivity rules.
	Name            = "countryCode"
	DefaultPriority = 8
)

// Descriptor returns the engine-facing description of the resolver.
func Descriptor(priority int) *enrich.Resolver {
	if priority == 0 {
		priority = DefaultPriority
	}
	return &enrich.Resolver{
		Name:      Name,
		Priority:  priority,
		Provides:  []enrich.FieldPath{enrich.ProfileCountry},
		DependsOn: enrich.ContactPhoneNumbers,
		Run:       Run,
	}
}

// Run looks the numbers up in order and reports the first match.
func Run(_ context.Context, snapshot enrich.EnrichedData) (enrich.Result, error) {
	for _, p := range snapshot.Contact.PhoneNumbers {
		if country := Lookup(p.Number); country != "" {
			return enrich.Result{Data: &enrich.EnrichedData{
				Profile: enrich.Profile{Country: enrich.Ptr(country)},
			}}, nil
		}
	}
	return enrich.Result{}, nil
}

// Lookup returns the English country name for an international number
// ("+33 ..." or "0033 ..."), or "" when the number is national or its
// calling code is unknown. Numbers under a shared calling code (+1, +7)
// resolve to the region their digits belong to, falling back to the code's
// main country.
func Lookup(number string) string {
	digits := normalize(number)
	if digits == "" {
		return ""
	}
	num, err := phonenumbers.Parse("+"+digits, "")
	if err != nil {
		return ""
	}
	region := phonenumbers.GetRegionCodeForNumber(num)
	if region == "" || region == phonenumbers.UNKNOWN_REGION {
		region = phonenumbers.GetRegionCodeForCountryCode(int(num.GetCountryCode()))
	}
	return countryName(region)
}

func countryName(region string) string {
	if region == "" || region == phonenumbers.UNKNOWN_REGION {
		return ""
	}
	r, err := language.ParseRegion(region)
	if err != nil {
		return ""
	}
	return display.English.Regions().Name(r)
}

func normalize(number string) string {
	s := strings.TrimSpace(number)
	switch {
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasPrefix(s, "00"):
		s = s[2:]
	default:
		return ""
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return ""
		}
	}
	return b.String()
}
