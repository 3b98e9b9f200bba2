package countrycode_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/contact-enrichment/internal/enrich"
	"github.com/palantir/contact-enrichment/internal/resolvers/countrycode"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"+33 6 12 34 56 78", "France"},
		{"0033612345678", "France"},
		{"+1 (415) 555-0100", "United States"},
		{"+353 1 234 5678", "Ireland"},
		{"+352 621 123 456", "Luxembourg"},
		{"+44 20 7946 0000", "United Kingdom"},
		{"+1 416 967 1111", "Canada"},
		{"+1 604 681 2000", "Canada"},
		{"+1 212 736 5000", "United States"},
		{"+7 495 123 4567", "Russia"},
		{"+81 3 1234 5678", "Japan"},
		{"06 12 34 56 78", ""},
		{"+999 123", ""},
		{"+0 123 456", ""},
		{"+33 abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, countrycode.Lookup(tt.in))
		})
	}
}

func TestRun_FirstKnownNumber(t *testing.T) {
	snap := enrich.EnrichedData{Contact: enrich.Contact{PhoneNumbers: []enrich.PhoneNumber{
		{Number: "06 12 34 56 78"},
		{Number: "+49 30 1234567"},
		{Number: "+33 6 12 34 56 78"},
	}}}
	res, err := countrycode.Run(context.Background(), snap)
	require.NoError(t, err)
	require.NotNil(t, res.Data)
	assert.Equal(t, "Germany", *res.Data.Profile.Country)
}

func TestRun_NothingKnown(t *testing.T) {
	res, err := countrycode.Run(context.Background(), enrich.EnrichedData{})
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	assert.Nil(t, res.Error)
}

func TestDescriptor(t *testing.T) {
	d := countrycode.Descriptor(0)
	require.NoError(t, d.Validate())
	assert.Equal(t, countrycode.DefaultPriority, d.Priority)
	assert.Equal(t, 3, countrycode.Descriptor(3).Priority)
}
