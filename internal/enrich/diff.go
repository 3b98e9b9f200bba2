package enrich

// DiffContact returns only the information updated adds over base: scalars
// that base lacks, and list elements base does not already contain. Base
// elements are never removed or reordered.
func DiffContact(base, updated Contact) Contact {
	return diffSection(contactFields, base, updated)
}

// DiffProfile is DiffContact for the profile section.
func DiffProfile(base, updated Profile) Profile {
	return diffSection(profileFields, base, updated)
}

// MergeContact folds src into a copy of dst. Scalars set in src win; list
// elements are appended when dst does not already hold them.
func MergeContact(dst, src Contact) Contact {
	return mergeSection(contactFields, dst.Clone(), src)
}

// MergeProfile is MergeContact for the profile section.
func MergeProfile(dst, src Profile) Profile {
	return mergeSection(profileFields, dst.Clone(), src)
}

// Diff applies DiffContact and DiffProfile to both sections.
func Diff(base, updated EnrichedData) EnrichedData {
	return EnrichedData{
		Contact: DiffContact(base.Contact, updated.Contact),
		Profile: DiffProfile(base.Profile, updated.Profile),
	}
}

// Merge applies MergeContact and MergeProfile to both sections.
func Merge(dst, src EnrichedData) EnrichedData {
	return EnrichedData{
		Contact: MergeContact(dst.Contact, src.Contact),
		Profile: MergeProfile(dst.Profile, src.Profile),
	}
}

// Paths returns the field paths carrying a value in d, contact first.
func (d EnrichedData) Paths() []FieldPath {
	var out []FieldPath
	for _, name := range contactFields.set(&d.Contact) {
		out = append(out, Path(SectionContact, name))
	}
	for _, name := range profileFields.set(&d.Profile) {
		out = append(out, Path(SectionProfile, name))
	}
	return out
}

func diffSection[S any](s schema[S], base, updated S) S {
	var out S
	for _, name := range s.order {
		s.byName[name].diff(&base, &updated, &out)
	}
	return out
}

func mergeSection[S any](s schema[S], dst, src S) S {
	for _, name := range s.order {
		s.byName[name].merge(&dst, &src)
	}
	return dst
}

func dropSection[S any](s schema[S], delta, current S) S {
	for _, name := range s.order {
		s.byName[name].drop(&delta, &current)
	}
	return delta
}
