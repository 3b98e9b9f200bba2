// Package gemini resolves professional profile fields with a web-grounded
// Gemini model and structured JSON output.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/palantir/contact-enrichment/internal/enrich"
)

const (
	// Name identifies the resolver in traces and exclusivity rules.
	Name            = "gemini"
	DefaultPriority = 10
)

// Config configures a Resolver. APIKey and Model are required.
type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	Priority int

	// RateLimitRPS throttles calls across all runs sharing the resolver. A
	// call that finds no token left asks to be retried in a later round.
	// Set to <=0 to disable.
	RateLimitRPS float64

	// Uploader stores position logos. Nil drops logo urls.
	Uploader enrich.MediaUploader
}

// generateFunc returns the raw JSON text produced for prompt.
type generateFunc func(ctx context.Context, prompt string) (string, error)

// Resolver asks a Gemini model for a person's public profile.
type Resolver struct {
	model    string
	priority int
	limiter  *rate.Limiter
	uploader enrich.MediaUploader
	generate generateFunc
}

// New creates the Gemini client and validates cfg.
func New(ctx context.Context, cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	model := strings.TrimSpace(cfg.Model)
	return newResolver(cfg, func(ctx context.Context, prompt string) (string, error) {
		resp, err := client.Models.GenerateContent(
			ctx,
			model,
			genai.Text(prompt),
			&genai.GenerateContentConfig{
				Tools: []*genai.Tool{
					{GoogleSearch: &genai.GoogleSearch{}},
					{URLContext: &genai.URLContext{}},
				},
				CandidateCount:   1,
				ResponseMIMEType: "application/json",
				ResponseSchema:   outputSchema,
			},
		)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}), nil
}

func newResolver(cfg Config, generate generateFunc) *Resolver {
	r := &Resolver{
		model:    strings.TrimSpace(cfg.Model),
		priority: cfg.Priority,
		uploader: cfg.Uploader,
		generate: generate,
	}
	if r.priority == 0 {
		r.priority = DefaultPriority
	}
	if cfg.RateLimitRPS > 0 {
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}
	return r
}

// Descriptor returns the engine-facing description of the resolver.
func (r *Resolver) Descriptor() *enrich.Resolver {
	return &enrich.Resolver{
		Name:     Name,
		Priority: r.priority,
		Provides: []enrich.FieldPath{
			enrich.ContactCompany,
			enrich.ContactTitle,
			enrich.ContactSocials,
			enrich.ProfileHeadline,
			enrich.ProfileSummary,
			enrich.ProfileSkills,
			enrich.ProfileInterests,
			enrich.ProfilePositions,
			enrich.ProfileCountry,
			enrich.ProfileCity,
		},
		DependsOn: enrich.All{
			enrich.ContactFirstName,
			enrich.ContactLastName,
			enrich.Any{enrich.ContactCompany, enrich.ContactEmails},
		},
		Run: r.Run,
	}
}

type positionSchema struct {
	Company   string `json:"company"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	LogoURL   string `json:"logo_url"`
}

type responseSchema struct {
	Company     string           `json:"company"`
	Title       string           `json:"title"`
	Headline    string           `json:"headline"`
	Summary     string           `json:"summary"`
	Country     string           `json:"country"`
	City        string           `json:"city"`
	LinkedInURL string           `json:"linkedin_url"`
	TwitterURL  string           `json:"twitter_url"`
	GitHubURL   string           `json:"github_url"`
	Skills      []string         `json:"skills"`
	Interests   []string         `json:"interests"`
	Positions   []positionSchema `json:"positions"`
}

var stringList = &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}

var outputSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"company":      {Type: genai.TypeString},
		"title":        {Type: genai.TypeString},
		"headline":     {Type: genai.TypeString},
		"summary":      {Type: genai.TypeString},
		"country":      {Type: genai.TypeString},
		"city":         {Type: genai.TypeString},
		"linkedin_url": {Type: genai.TypeString},
		"twitter_url":  {Type: genai.TypeString},
		"github_url":   {Type: genai.TypeString},
		"skills":       stringList,
		"interests":    stringList,
		"positions": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"company":    {Type: genai.TypeString},
					"title":      {Type: genai.TypeString},
					"summary":    {Type: genai.TypeString},
					"start_date": {Type: genai.TypeString},
					"end_date":   {Type: genai.TypeString},
					"logo_url":   {Type: genai.TypeString},
				},
				Required: []string{"company", "title"},
			},
		},
	},
	Required: []string{"company", "title", "headline", "summary", "country", "city"},
}

// Run asks the model about the person in the snapshot.
func (r *Resolver) Run(ctx context.Context, snapshot enrich.EnrichedData) (enrich.Result, error) {
	if r.limiter != nil && !r.limiter.Allow() {
		return enrich.Result{ShouldRetry: true}, nil
	}

	text, err := r.generate(ctx, buildPrompt(snapshot))
	if err != nil {
		return classify(err)
	}

	var parsed responseSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return enrich.Result{}, fmt.Errorf("gemini: parse structured json: %w", err)
	}
	return r.toResult(ctx, parsed), nil
}

func (r *Resolver) toResult(ctx context.Context, parsed responseSchema) enrich.Result {
	var res enrich.Result
	data := &enrich.EnrichedData{
		Contact: enrich.Contact{
			Company: enrich.OptionalString(parsed.Company),
			Title:   enrich.OptionalString(parsed.Title),
			Socials: socials(parsed),
		},
		Profile: enrich.Profile{
			Headline:  enrich.OptionalString(parsed.Headline),
			Summary:   enrich.OptionalString(parsed.Summary),
			Country:   enrich.OptionalString(parsed.Country),
			City:      enrich.OptionalString(parsed.City),
			Skills:    dedupePreserveOrder(parsed.Skills),
			Interests: dedupePreserveOrder(parsed.Interests),
		},
	}

	logoIDs := make(map[string]string)
	for _, p := range parsed.Positions {
		pos := enrich.Position{
			Company:   strings.TrimSpace(p.Company),
			Title:     strings.TrimSpace(p.Title),
			Summary:   strings.TrimSpace(p.Summary),
			StartDate: strings.TrimSpace(p.StartDate),
			EndDate:   strings.TrimSpace(p.EndDate),
		}
		if pos.Company == "" && pos.Title == "" {
			continue
		}
		if logo := strings.TrimSpace(p.LogoURL); logo != "" && r.uploader != nil {
			id, ok := logoIDs[logo]
			if !ok {
				asset := r.uploader.UploadFromURL(ctx, logo)
				id = asset.ID
				logoIDs[logo] = id
				res.Media = append(res.Media, asset)
			}
			pos.TempLogoID = id
		}
		data.Profile.Positions = append(data.Profile.Positions, pos)
	}

	res.Data = data
	return res
}

func socials(parsed responseSchema) []enrich.Social {
	var out []enrich.Social
	for _, s := range []enrich.Social{
		{Label: "linkedin", URL: parsed.LinkedInURL},
		{Label: "twitter", URL: parsed.TwitterURL},
		{Label: "github", URL: parsed.GitHubURL},
	} {
		s.URL = strings.TrimSpace(s.URL)
		if s.URL != "" {
			out = append(out, s)
		}
	}
	return out
}

func buildPrompt(d enrich.EnrichedData) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(`
You are a data enrichment tool. Given what is known about a person, use web search and URL context to find their public professional profile.

Return ONLY a single JSON object with these keys:
- company, title, headline, summary, country, city (strings)
- linkedin_url, twitter_url, github_url (strings; full profile urls)
- skills, interests (arrays of strings)
- positions (array of {company, title, summary, start_date, end_date, logo_url}; dates as YYYY-MM)

Rules:
- If you cannot find a field, set it to an empty string or an empty array.
- Only report information about this specific person. Do not guess.
- Do not include extra keys.
`))
	b.WriteString("\n\n")
	writeLine(&b, "First name", d.Contact.FirstName)
	writeLine(&b, "Last name", d.Contact.LastName)
	writeLine(&b, "Company", d.Contact.Company)
	writeLine(&b, "Title", d.Contact.Title)
	for _, e := range d.Contact.Emails {
		fmt.Fprintf(&b, "Email: %s\n", e.Address)
	}
	for _, s := range d.Contact.Socials {
		fmt.Fprintf(&b, "Profile (%s): %s\n", s.Label, s.URL)
	}
	return b.String()
}

func writeLine(b *strings.Builder, label string, v *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		fmt.Fprintf(b, "%s: %s\n", label, strings.TrimSpace(*v))
	}
}

// classify turns a client error into a resolver outcome. Quota and server
// failures ask for a retry in a later round; other API failures are reported
// with their status. Anything else is a hard failure of the call.
func classify(err error) (enrich.Result, error) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return enrich.Result{
			Error:       &enrich.APIError{Message: apiErr.Message, HTTPStatusCode: apiErr.Code},
			ShouldRetry: apiErr.Code == 429 || apiErr.Code/100 == 5,
		}, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return enrich.Result{ShouldRetry: true}, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return enrich.Result{ShouldRetry: true}, nil
	}
	return enrich.Result{}, fmt.Errorf("gemini: generate content: %w", err)
}

func dedupePreserveOrder(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
