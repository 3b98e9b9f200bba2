package enrich_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/palantir/contact-enrichment/internal/enrich"
)

func TestDiffContactScalars(t *testing.T) {
	base := enrich.Contact{FirstName: enrich.Ptr("Alice"), Company: enrich.Ptr("")}
	updated := enrich.Contact{
		FirstName: enrich.Ptr("Alicia"),
		LastName:  enrich.Ptr("Smith"),
		Company:   enrich.Ptr("Acme"),
		Title:     enrich.Ptr(""),
	}

	got := enrich.DiffContact(base, updated)
	want := enrich.Contact{LastName: enrich.Ptr("Smith"), Company: enrich.Ptr("Acme")}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("diff mismatch (-want +got):\n%s", d)
	}
}

func TestDiffListsAreAdditiveOnly(t *testing.T) {
	base := enrich.Contact{
		Emails: []enrich.Email{{Address: "a@example.com", Label: "Work"}, {Address: "b@example.com"}},
	}
	updated := enrich.Contact{
		Emails: []enrich.Email{
			{Address: "b@example.com"},
			{Address: "c@example.com", Label: "Home"},
			{Address: "a@example.com", Label: "Work"},
		},
		PhoneNumbers: []enrich.PhoneNumber{{Number: "+33 1 23 45 67 89"}},
	}

	got := enrich.DiffContact(base, updated)
	assert.Equal(t, []enrich.Email{{Address: "c@example.com", Label: "Home"}}, got.Emails)
	assert.Equal(t, []enrich.PhoneNumber{{Number: "+33 1 23 45 67 89"}}, got.PhoneNumbers)
	for _, e := range got.Emails {
		assert.NotContains(t, base.Emails, e)
	}
	// base untouched
	assert.Len(t, base.Emails, 2)
}

func TestDiffProfile(t *testing.T) {
	base := enrich.Profile{
		Skills:    []string{"go"},
		Positions: []enrich.Position{{Company: "Acme", Title: "Engineer"}},
	}
	updated := enrich.Profile{
		Skills:    []string{"go", "sql"},
		Positions: []enrich.Position{{Company: "Acme", Title: "Engineer"}, {Company: "Globex"}},
		Country:   enrich.Ptr("France"),
		Interests: []string{},
	}

	got := enrich.DiffProfile(base, updated)
	want := enrich.Profile{
		Skills:    []string{"sql"},
		Positions: []enrich.Position{{Company: "Globex"}},
		Country:   enrich.Ptr("France"),
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("diff mismatch (-want +got):\n%s", d)
	}
}

func TestDiffIsIdempotent(t *testing.T) {
	cases := []struct {
		name string
		base enrich.EnrichedData
		out  enrich.EnrichedData
	}{
		{
			name: "empty base",
			out: enrich.EnrichedData{
				Contact: enrich.Contact{Company: enrich.Ptr("Acme"), Emails: []enrich.Email{{Address: "a@example.com"}}},
				Profile: enrich.Profile{Country: enrich.Ptr("France")},
			},
		},
		{
			name: "overlapping lists",
			base: enrich.EnrichedData{
				Contact: enrich.Contact{Emails: []enrich.Email{{Address: "a@example.com"}}},
				Profile: enrich.Profile{Skills: []string{"go"}},
			},
			out: enrich.EnrichedData{
				Contact: enrich.Contact{Emails: []enrich.Email{{Address: "a@example.com"}, {Address: "b@example.com"}}},
				Profile: enrich.Profile{Skills: []string{"go", "rust"}},
			},
		},
		{
			name: "conflicting scalar",
			base: enrich.EnrichedData{Contact: enrich.Contact{Company: enrich.Ptr("Acme")}},
			out:  enrich.EnrichedData{Contact: enrich.Contact{Company: enrich.Ptr("Globex"), Title: enrich.Ptr("CTO")}},
		},
		{
			name: "nothing new",
			base: enrich.EnrichedData{Contact: enrich.Contact{Company: enrich.Ptr("Acme")}},
			out:  enrich.EnrichedData{Contact: enrich.Contact{Company: enrich.Ptr("Acme")}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			merged := enrich.Merge(tc.base, enrich.Diff(tc.base, tc.out))
			again := enrich.Diff(merged, tc.out)
			assert.True(t, again.IsEmpty(), "unexpected diff: %+v", again)
			assert.Empty(t, again.Paths())
		})
	}
}

func TestMergeDoesNotAlias(t *testing.T) {
	dst := enrich.Contact{Emails: []enrich.Email{{Address: "a@example.com"}}}
	src := enrich.Contact{Emails: []enrich.Email{{Address: "b@example.com"}}, Title: enrich.Ptr("CTO")}

	got := enrich.MergeContact(dst, src)
	got.Emails[0].Address = "changed"
	*got.Title = "changed"

	assert.Equal(t, "a@example.com", dst.Emails[0].Address)
	assert.Equal(t, "CTO", *src.Title)
	assert.Len(t, got.Emails, 2)
}

func TestDedupeSocialsBySchemeAndPlatform(t *testing.T) {
	existing := enrich.Contact{Socials: []enrich.Social{{Label: "github", URL: "http://github.com/x"}}}
	candidate := enrich.Contact{Socials: []enrich.Social{
		{Label: "github", URL: "https://github.com/x"},
		{Label: "twitter", URL: "https://x.com/y"},
	}}

	got := enrich.DedupeContact(candidate, existing)
	assert.Equal(t, []enrich.Social{{Label: "twitter", URL: "https://x.com/y"}}, got.Socials)
	assert.Empty(t, got.URLs)
}

func TestDedupeSocialFirstPerPlatformWins(t *testing.T) {
	candidate := enrich.Contact{Socials: []enrich.Social{
		{Label: "linkedin", URL: "https://linkedin.com/in/a"},
		{Label: "LinkedIn", URL: "https://linkedin.com/in/b"},
	}}

	got := enrich.DedupeContact(candidate, enrich.Contact{})
	assert.Equal(t, []enrich.Social{{Label: "linkedin", URL: "https://linkedin.com/in/a"}}, got.Socials)
}

func TestDedupeReclassifiesUnknownPlatforms(t *testing.T) {
	existing := enrich.Contact{URLs: []enrich.URL{{Address: "https://known.example"}}}
	candidate := enrich.Contact{Socials: []enrich.Social{
		{Label: "myblog", URL: "https://blog.example"},
		{Label: "portfolio", URL: "http://known.example"},
		{Label: "github", URL: "https://github.com/alice"},
	}}

	got := enrich.DedupeContact(candidate, existing)
	assert.Equal(t, []enrich.Social{{Label: "github", URL: "https://github.com/alice"}}, got.Socials)
	assert.Equal(t, []enrich.URL{{Address: "https://blog.example"}}, got.URLs)
}

func TestDedupeEmailsPhonesAndURLs(t *testing.T) {
	existing := enrich.Contact{
		Emails:       []enrich.Email{{Address: "Alice@Example.com"}},
		PhoneNumbers: []enrich.PhoneNumber{{Number: "+15550100"}},
		Socials:      []enrich.Social{{Label: "twitter", URL: "https://x.com/alice"}},
	}
	candidate := enrich.Contact{
		Company: enrich.Ptr("Acme"),
		Emails: []enrich.Email{
			{Address: "alice@example.COM", Label: "Work"},
			{Address: "bob@example.com"},
			{Address: "BOB@example.com"},
			{Address: "  "},
		},
		PhoneNumbers: []enrich.PhoneNumber{{Number: "+15550100"}, {Number: "+15550101"}, {Number: "+15550101"}},
		URLs: []enrich.URL{
			{Address: "http://x.com/alice"},
			{Address: "https://site.example"},
			{Address: "http://site.example"},
		},
	}

	got := enrich.DedupeContact(candidate, existing)
	assert.Equal(t, "Acme", *got.Company)
	assert.Equal(t, []enrich.Email{{Address: "bob@example.com"}}, got.Emails)
	assert.Equal(t, []enrich.PhoneNumber{{Number: "+15550101"}}, got.PhoneNumbers)
	assert.Equal(t, []enrich.URL{{Address: "https://site.example"}}, got.URLs)
}

func TestIsSocialPlatform(t *testing.T) {
	assert.True(t, enrich.IsSocialPlatform("github"))
	assert.True(t, enrich.IsSocialPlatform(" LinkedIn "))
	assert.False(t, enrich.IsSocialPlatform("website"))
	assert.False(t, enrich.IsSocialPlatform(""))
}
