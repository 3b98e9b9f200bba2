// Package github resolves avatar and public profile fields from the GitHub
// account linked in a contact's socials.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"

	"github.com/palantir/contact-enrichment/internal/enrich"
)

const (
	// Name identifies the resolver in traces and exclusivity rules.
	Name            = "github"
	DefaultPriority = 4

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second
)

// Config configures a Resolver.
type Config struct {
	// Token is optional; anonymous calls get a much lower rate limit.
	Token string
	// BaseURL points the client at another API root (tests, GitHub Enterprise).
	BaseURL  string
	Priority int
	Uploader enrich.MediaUploader
}

// Resolver reads public GitHub user profiles.
type Resolver struct {
	gh       *gh.Client
	priority int
	uploader enrich.MediaUploader
}

// New builds the GitHub client. ctx is only used by the oauth2 transport.
func New(ctx context.Context, cfg Config) (*Resolver, error) {
	var hc *http.Client
	if token := strings.TrimSpace(cfg.Token); token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(ctx, ts)
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = DefaultTimeout

	client := gh.NewClient(hc)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}
		client.BaseURL = u
	}

	r := &Resolver{gh: client, priority: cfg.Priority, uploader: cfg.Uploader}
	if r.priority == 0 {
		r.priority = DefaultPriority
	}
	return r, nil
}

// Descriptor returns the engine-facing description of the resolver.
func (r *Resolver) Descriptor() *enrich.Resolver {
	return &enrich.Resolver{
		Name:     Name,
		Priority: r.priority,
		Provides: []enrich.FieldPath{
			enrich.ContactAvatarID,
			enrich.ContactCompany,
			enrich.ContactURLs,
			enrich.ProfileCity,
			enrich.ProfileSummary,
		},
		DependsOn: enrich.Predicate{Name: "hasGithubSocial", Fn: func(d enrich.EnrichedData) bool {
			return Login(d.Contact) != ""
		}},
		Run: r.Run,
	}
}

// Login returns the GitHub login from the first github social of c.
func Login(c enrich.Contact) string {
	for _, s := range c.Socials {
		if !strings.EqualFold(s.Label, "github") {
			continue
		}
		if login := loginFromURL(s.URL); login != "" {
			return login
		}
	}
	return ""
}

func loginFromURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "github.com" {
		return ""
	}
	login, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	return login
}

// Run fetches the public user profile.
func (r *Resolver) Run(ctx context.Context, snapshot enrich.EnrichedData) (enrich.Result, error) {
	login := Login(snapshot.Contact)
	if login == "" {
		return enrich.Result{}, errors.New("github: no github login in socials")
	}

	user, _, err := r.gh.Users.Get(ctx, login)
	if err != nil {
		return classify(err)
	}

	data := &enrich.EnrichedData{
		Contact: enrich.Contact{
			Company: enrich.OptionalString(strings.TrimPrefix(strings.TrimSpace(user.GetCompany()), "@")),
		},
		Profile: enrich.Profile{
			City:    enrich.OptionalString(user.GetLocation()),
			Summary: enrich.OptionalString(user.GetBio()),
		},
	}
	if blog := strings.TrimSpace(user.GetBlog()); blog != "" {
		data.Contact.URLs = []enrich.URL{{Address: blog}}
	}
	if avatar := strings.TrimSpace(user.GetAvatarURL()); avatar != "" && r.uploader != nil {
		asset := r.uploader.UploadFromURL(ctx, avatar)
		if err := asset.Wait(ctx); err == nil {
			data.Contact.AvatarID = enrich.OptionalString(asset.ID)
		}
	}
	return enrich.Result{Data: data}, nil
}

func classify(err error) (enrich.Result, error) {
	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		return enrich.Result{
			Error:       &enrich.APIError{Message: rateErr.Message, HTTPStatusCode: statusOf(rateErr.Response)},
			ShouldRetry: true,
		}, nil
	}
	var abuseErr *gh.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return enrich.Result{
			Error:       &enrich.APIError{Message: abuseErr.Message, HTTPStatusCode: statusOf(abuseErr.Response)},
			ShouldRetry: true,
		}, nil
	}
	var respErr *gh.ErrorResponse
	if errors.As(err, &respErr) {
		code := statusOf(respErr.Response)
		return enrich.Result{
			Error:       &enrich.APIError{Message: respErr.Message, HTTPStatusCode: code},
			ShouldRetry: code/100 == 5,
		}, nil
	}
	return enrich.Result{}, fmt.Errorf("github: get user: %w", err)
}

func statusOf(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
