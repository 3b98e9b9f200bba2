package enrich

import "strings"

// Email is one address attached to a contact.
type Email struct {
	Address string `json:"address"`
	Label   string `json:"label,omitempty"`
}

// PhoneNumber is one number attached to a contact.
type PhoneNumber struct {
	Number string `json:"number"`
	Label  string `json:"label,omitempty"`
}

// Social is a link to a profile on a known platform. Label is the platform id
// (see IsSocialPlatform).
type Social struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// URL is a generic link that is not tied to a known platform.
type URL struct {
	Address string `json:"address"`
}

// Position is one professional experience entry of a profile.
//
// TempLogoID references a logo asset that is still uploading when the entry
// is produced. The finalizer turns it into LogoID once the upload is known to
// have succeeded.
type Position struct {
	Company    string `json:"company,omitempty"`
	Title      string `json:"title,omitempty"`
	Summary    string `json:"summary,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	LogoID     string `json:"logoId,omitempty"`
	TempLogoID string `json:"tempLogoId,omitempty"`
}

// Education is one school entry of a profile. Logo handling matches Position.
type Education struct {
	School     string `json:"school,omitempty"`
	Degree     string `json:"degree,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	LogoID     string `json:"logoId,omitempty"`
	TempLogoID string `json:"tempLogoId,omitempty"`
}

// Contact holds identifying and reachability fields. Every field is optional:
// nil scalars and empty lists mean "not known".
type Contact struct {
	FirstName    *string       `json:"firstName,omitempty"`
	LastName     *string       `json:"lastName,omitempty"`
	Company      *string       `json:"company,omitempty"`
	Title        *string       `json:"title,omitempty"`
	Emails       []Email       `json:"emails,omitempty"`
	PhoneNumbers []PhoneNumber `json:"phoneNumbers,omitempty"`
	Socials      []Social      `json:"socials,omitempty"`
	URLs         []URL         `json:"urls,omitempty"`
	AvatarID     *string       `json:"avatarId,omitempty"`
	LogoID       *string       `json:"logoId,omitempty"`
	Birthday     *string       `json:"birthday,omitempty"`
}

// Profile holds public and professional attributes linked to a contact.
type Profile struct {
	Headline  *string     `json:"headline,omitempty"`
	Summary   *string     `json:"summary,omitempty"`
	Interests []string    `json:"interests,omitempty"`
	Skills    []string    `json:"skills,omitempty"`
	Positions []Position  `json:"positions,omitempty"`
	Education []Education `json:"education,omitempty"`
	Country   *string     `json:"country,omitempty"`
	City      *string     `json:"city,omitempty"`
	Icons     []string    `json:"icons,omitempty"`
}

// EnrichedData is a snapshot of both sections.
type EnrichedData struct {
	Contact Contact `json:"contact"`
	Profile Profile `json:"profile"`
}

// Clone returns a deep copy.
func (d EnrichedData) Clone() EnrichedData {
	return EnrichedData{Contact: d.Contact.Clone(), Profile: d.Profile.Clone()}
}

// IsEmpty reports whether neither section carries any field.
func (d EnrichedData) IsEmpty() bool {
	return len(contactFields.set(&d.Contact)) == 0 && len(profileFields.set(&d.Profile)) == 0
}

// Clone returns a deep copy.
func (c Contact) Clone() Contact {
	out := c
	out.FirstName = cloneString(c.FirstName)
	out.LastName = cloneString(c.LastName)
	out.Company = cloneString(c.Company)
	out.Title = cloneString(c.Title)
	out.AvatarID = cloneString(c.AvatarID)
	out.LogoID = cloneString(c.LogoID)
	out.Birthday = cloneString(c.Birthday)
	out.Emails = cloneSlice(c.Emails)
	out.PhoneNumbers = cloneSlice(c.PhoneNumbers)
	out.Socials = cloneSlice(c.Socials)
	out.URLs = cloneSlice(c.URLs)
	return out
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := p
	out.Headline = cloneString(p.Headline)
	out.Summary = cloneString(p.Summary)
	out.Country = cloneString(p.Country)
	out.City = cloneString(p.City)
	out.Interests = cloneSlice(p.Interests)
	out.Skills = cloneSlice(p.Skills)
	out.Positions = cloneSlice(p.Positions)
	out.Education = cloneSlice(p.Education)
	out.Icons = cloneSlice(p.Icons)
	return out
}

// Trace maps each filled field to the name of the resolver that supplied it.
type Trace map[FieldPath]string

// Clone returns a copy of the trace.
func (t Trace) Clone() Trace {
	out := make(Trace, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// HasContributor reports whether name supplied at least one field.
func (t Trace) HasContributor(name string) bool {
	for _, v := range t {
		if v == name {
			return true
		}
	}
	return false
}

// EnrichResult is what a run produced: net-new fields only, plus provenance.
type EnrichResult struct {
	Enriched EnrichedData `json:"enriched"`
	Trace    Trace        `json:"trace"`
	// RecordID is the persisted enrichment record, empty when nothing was found.
	RecordID string `json:"recordId,omitempty"`
	Rounds   int    `json:"rounds"`
}

// Ptr returns a pointer to v. Handy for building snapshots.
func Ptr(v string) *string {
	return &v
}

// OptionalString trims v and returns nil when nothing is left. Adapters use it
// to turn blank provider values into "not known".
func OptionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneSlice[E any](in []E) []E {
	if in == nil {
		return nil
	}
	out := make([]E, len(in))
	copy(out, in)
	return out
}
