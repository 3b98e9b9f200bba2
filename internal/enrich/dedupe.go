package enrich

import (
	"strings"
)

var socialPlatforms = map[string]struct{}{
	"behance": {}, "bluesky": {}, "discord": {}, "dribbble": {}, "facebook": {},
	"github": {}, "instagram": {}, "linkedin": {}, "mastodon": {}, "medium": {},
	"pinterest": {}, "reddit": {}, "signal": {}, "skype": {}, "snapchat": {},
	"soundcloud": {}, "spotify": {}, "telegram": {}, "threads": {}, "tiktok": {},
	"twitch": {}, "twitter": {}, "vimeo": {}, "wechat": {}, "whatsapp": {},
	"youtube": {},
}

// IsSocialPlatform reports whether label is a recognized social platform id.
func IsSocialPlatform(label string) bool {
	_, ok := socialPlatforms[normalizeLabel(label)]
	return ok
}

// DedupeContact drops from candidate the list elements that existing (or an
// earlier candidate element) already covers:
//   - emails by lower-cased address
//   - phone numbers by number
//   - socials by platform label, first one wins
//   - urls by address
//
// Socials on an unknown platform are turned into urls. A social or url whose
// link only differs from a known one by its http/https scheme is a duplicate.
// Scalars pass through untouched.
func DedupeContact(candidate, existing Contact) Contact {
	out := candidate.Clone()

	var socials []Social
	urls := out.URLs
	for _, s := range out.Socials {
		if IsSocialPlatform(s.Label) {
			socials = append(socials, s)
			continue
		}
		if strings.TrimSpace(s.URL) != "" {
			urls = append(urls, URL{Address: s.URL})
		}
	}

	links := make(map[string]struct{})
	for _, s := range existing.Socials {
		links[linkKey(s.URL)] = struct{}{}
	}
	for _, u := range existing.URLs {
		links[linkKey(u.Address)] = struct{}{}
	}

	out.Emails = dedupeBy(out.Emails, existing.Emails, func(e Email) string {
		return strings.ToLower(strings.TrimSpace(e.Address))
	})
	out.PhoneNumbers = dedupeBy(out.PhoneNumbers, existing.PhoneNumbers, func(p PhoneNumber) string {
		return p.Number
	})

	socials = dedupeBy(socials, existing.Socials, func(s Social) string {
		return normalizeLabel(s.Label)
	})
	out.Socials = dropLinks(socials, links, func(s Social) string { return s.URL })

	urls = dedupeBy(urls, existing.URLs, func(u URL) string {
		return strings.TrimSpace(u.Address)
	})
	out.URLs = dropLinks(urls, links, func(u URL) string { return u.Address })
	return out
}

// dedupeBy keeps the elements of in whose key is non-empty and not already
// seen in existing or earlier in in.
func dedupeBy[E any](in, existing []E, key func(E) string) []E {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(existing)+len(in))
	for _, e := range existing {
		seen[key(e)] = struct{}{}
	}
	var out []E
	for _, e := range in {
		k := key(e)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// dropLinks removes elements whose link is already known and records the
// links it keeps.
func dropLinks[E any](in []E, known map[string]struct{}, link func(E) string) []E {
	var out []E
	for _, e := range in {
		k := linkKey(link(e))
		if _, ok := known[k]; ok {
			continue
		}
		known[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// linkKey compares links without their http/https scheme.
func linkKey(raw string) string {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "https://"):
		return s[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		return s[len("http://"):]
	}
	return s
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
