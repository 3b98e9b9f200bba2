package enrich

import (
	"slices"
	"strings"
)

// Section names.
const (
	SectionContact = "contact"
	SectionProfile = "profile"
)

// FieldPath addresses exactly one field of one section, e.g. "contact.company".
type FieldPath string

// Contact fields.
const (
	ContactFirstName    FieldPath = "contact.firstName"
	ContactLastName     FieldPath = "contact.lastName"
	ContactCompany      FieldPath = "contact.company"
	ContactTitle        FieldPath = "contact.title"
	ContactEmails       FieldPath = "contact.emails"
	ContactPhoneNumbers FieldPath = "contact.phoneNumbers"
	ContactSocials      FieldPath = "contact.socials"
	ContactURLs         FieldPath = "contact.urls"
	ContactAvatarID     FieldPath = "contact.avatarId"
	ContactLogoID       FieldPath = "contact.logoId"
	ContactBirthday     FieldPath = "contact.birthday"
)

// Profile fields.
const (
	ProfileHeadline  FieldPath = "profile.headline"
	ProfileSummary   FieldPath = "profile.summary"
	ProfileInterests FieldPath = "profile.interests"
	ProfileSkills    FieldPath = "profile.skills"
	ProfilePositions FieldPath = "profile.positions"
	ProfileEducation FieldPath = "profile.education"
	ProfileCountry   FieldPath = "profile.country"
	ProfileCity      FieldPath = "profile.city"
	ProfileIcons     FieldPath = "profile.icons"
)

// Path builds a FieldPath from its parts.
func Path(section, key string) FieldPath {
	return FieldPath(section + "." + key)
}

// Section returns the part before the first dot.
func (p FieldPath) Section() string {
	section, _, _ := strings.Cut(string(p), ".")
	return section
}

// Key returns the part after the first dot.
func (p FieldPath) Key() string {
	_, key, _ := strings.Cut(string(p), ".")
	return key
}

// Valid reports whether p names a field of its section's schema.
func (p FieldPath) Valid() bool {
	switch p.Section() {
	case SectionContact:
		_, ok := contactFields.byName[p.Key()]
		return ok
	case SectionProfile:
		_, ok := profileFields.byName[p.Key()]
		return ok
	}
	return false
}

// GetFieldValue looks a field up in the snapshot. It returns nil for unknown
// sections or keys and for unset fields. Scalars are returned as string,
// lists as their typed slice.
func GetFieldValue(d EnrichedData, p FieldPath) any {
	switch p.Section() {
	case SectionContact:
		if f, ok := contactFields.byName[p.Key()]; ok {
			return f.value(&d.Contact)
		}
	case SectionProfile:
		if f, ok := profileFields.byName[p.Key()]; ok {
			return f.value(&d.Profile)
		}
	}
	return nil
}

// ContactFieldNames returns the contact schema in declaration order.
func ContactFieldNames() []string {
	return slices.Clone(contactFields.order)
}

// ProfileFieldNames returns the profile schema in declaration order.
func ProfileFieldNames() []string {
	return slices.Clone(profileFields.order)
}

// fieldOps is the per-field behavior shared by lookup, diff and merge.
type fieldOps[S any] struct {
	value func(*S) any
	isSet func(*S) bool
	// diff writes into out the information upd adds over base.
	diff  func(base, upd, out *S) bool
	merge func(dst, src *S)
	// drop removes from delta what cur already holds.
	drop func(delta, cur *S)
}

type schema[S any] struct {
	order  []string
	byName map[string]fieldOps[S]
}

func newSchema[S any](fields ...namedField[S]) schema[S] {
	s := schema[S]{byName: make(map[string]fieldOps[S], len(fields))}
	for _, f := range fields {
		s.order = append(s.order, f.name)
		s.byName[f.name] = f.ops
	}
	return s
}

// set returns the names of fields that carry a value, in schema order.
func (s schema[S]) set(v *S) []string {
	var out []string
	for _, name := range s.order {
		if s.byName[name].isSet(v) {
			out = append(out, name)
		}
	}
	return out
}

type namedField[S any] struct {
	name string
	ops  fieldOps[S]
}

func scalar[S any](name string, ref func(*S) **string) namedField[S] {
	return namedField[S]{name: name, ops: fieldOps[S]{
		value: func(s *S) any {
			if p := *ref(s); p != nil {
				return *p
			}
			return nil
		},
		isSet: func(s *S) bool {
			return truthy(*ref(s))
		},
		diff: func(base, upd, out *S) bool {
			if truthy(*ref(base)) || !truthy(*ref(upd)) {
				return false
			}
			*ref(out) = cloneString(*ref(upd))
			return true
		},
		merge: func(dst, src *S) {
			if v := *ref(src); truthy(v) {
				*ref(dst) = cloneString(v)
			}
		},
		drop: func(delta, cur *S) {
			if d, c := *ref(delta), *ref(cur); truthy(d) && truthy(c) && *d == *c {
				*ref(delta) = nil
			}
		},
	}}
}

func list[S any, E comparable](name string, ref func(*S) *[]E) namedField[S] {
	return namedField[S]{name: name, ops: fieldOps[S]{
		value: func(s *S) any {
			if v := *ref(s); v != nil {
				return v
			}
			return nil
		},
		isSet: func(s *S) bool {
			return len(*ref(s)) > 0
		},
		diff: func(base, upd, out *S) bool {
			additions := subtract(*ref(upd), *ref(base))
			if len(additions) == 0 {
				return false
			}
			*ref(out) = additions
			return true
		},
		merge: func(dst, src *S) {
			*ref(dst) = union(*ref(dst), *ref(src))
		},
		drop: func(delta, cur *S) {
			*ref(delta) = subtract(*ref(delta), *ref(cur))
		},
	}}
}

func truthy(s *string) bool {
	return s != nil && *s != ""
}

// subtract returns the elements of in that are not equal to any element of base.
func subtract[E comparable](in, base []E) []E {
	var out []E
	for _, v := range in {
		if !slices.Contains(base, v) {
			out = append(out, v)
		}
	}
	return out
}

// union appends the elements of add missing from dst, preserving dst order.
func union[E comparable](dst, add []E) []E {
	out := slices.Clone(dst)
	for _, v := range add {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

var contactFields = newSchema(
	scalar("firstName", func(c *Contact) **string { return &c.FirstName }),
	scalar("lastName", func(c *Contact) **string { return &c.LastName }),
	scalar("company", func(c *Contact) **string { return &c.Company }),
	scalar("title", func(c *Contact) **string { return &c.Title }),
	list("emails", func(c *Contact) *[]Email { return &c.Emails }),
	list("phoneNumbers", func(c *Contact) *[]PhoneNumber { return &c.PhoneNumbers }),
	list("socials", func(c *Contact) *[]Social { return &c.Socials }),
	list("urls", func(c *Contact) *[]URL { return &c.URLs }),
	scalar("avatarId", func(c *Contact) **string { return &c.AvatarID }),
	scalar("logoId", func(c *Contact) **string { return &c.LogoID }),
	scalar("birthday", func(c *Contact) **string { return &c.Birthday }),
)

var profileFields = newSchema(
	scalar("headline", func(p *Profile) **string { return &p.Headline }),
	scalar("summary", func(p *Profile) **string { return &p.Summary }),
	list("interests", func(p *Profile) *[]string { return &p.Interests }),
	list("skills", func(p *Profile) *[]string { return &p.Skills }),
	list("positions", func(p *Profile) *[]Position { return &p.Positions }),
	list("education", func(p *Profile) *[]Education { return &p.Education }),
	scalar("country", func(p *Profile) **string { return &p.Country }),
	scalar("city", func(p *Profile) **string { return &p.City }),
	list("icons", func(p *Profile) *[]string { return &p.Icons }),
)
