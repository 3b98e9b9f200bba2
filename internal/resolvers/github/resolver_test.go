package github_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/contact-enrichment/internal/enrich"
	"github.com/palantir/contact-enrichment/internal/resolvers/github"
)

type fakeUploader struct {
	fail bool
	urls []string
}

func (f *fakeUploader) UploadFromURL(_ context.Context, url string) enrich.PendingAsset {
	f.urls = append(f.urls, url)
	var err error
	if f.fail {
		err = errors.New("fetch failed")
	}
	return enrich.ResolvedAsset("avatar-1", err)
}

func (f *fakeUploader) Upload(context.Context, string, []byte) (string, error) {
	return "", errors.New("not used")
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/jane", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"login":"jane","avatar_url":"https://avatars.test/jane.png","company":"@acme","blog":"https://jane.dev","location":"Paris","bio":"Builds things"}`)
	})
	mux.HandleFunc("/users/ghost", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	mux.HandleFunc("/users/flaky", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = fmt.Fprint(w, `{"message":"bad gateway"}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func withLogin(login string) enrich.EnrichedData {
	return enrich.EnrichedData{Contact: enrich.Contact{
		Socials: []enrich.Social{{Label: "github", URL: "https://github.com/" + login}},
	}}
}

func TestRun_MapsUser(t *testing.T) {
	srv := newServer(t)
	up := &fakeUploader{}
	r, err := github.New(context.Background(), github.Config{BaseURL: srv.URL, Token: "t", Uploader: up})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), withLogin("jane"))
	require.NoError(t, err)
	require.NotNil(t, res.Data)

	c := res.Data.Contact
	assert.Equal(t, "acme", *c.Company)
	assert.Equal(t, "avatar-1", *c.AvatarID)
	assert.Equal(t, []enrich.URL{{Address: "https://jane.dev"}}, c.URLs)
	assert.Equal(t, "Paris", *res.Data.Profile.City)
	assert.Equal(t, "Builds things", *res.Data.Profile.Summary)
	assert.Equal(t, []string{"https://avatars.test/jane.png"}, up.urls)
	assert.Empty(t, res.Media, "avatar is awaited inline")
}

func TestRun_AvatarFailureKeepsOtherFields(t *testing.T) {
	srv := newServer(t)
	r, err := github.New(context.Background(), github.Config{BaseURL: srv.URL, Uploader: &fakeUploader{fail: true}})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), withLogin("jane"))
	require.NoError(t, err)
	assert.Nil(t, res.Data.Contact.AvatarID)
	assert.Equal(t, "acme", *res.Data.Contact.Company)
}

func TestRun_StatusErrors(t *testing.T) {
	srv := newServer(t)
	r, err := github.New(context.Background(), github.Config{BaseURL: srv.URL})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), withLogin("ghost"))
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, http.StatusNotFound, res.Error.HTTPStatusCode)
	assert.False(t, res.ShouldRetry)
	assert.Nil(t, res.Data)

	res, err = r.Run(context.Background(), withLogin("flaky"))
	require.NoError(t, err)
	require.NotNil(t, res.Error)
	assert.Equal(t, http.StatusBadGateway, res.Error.HTTPStatusCode)
	assert.True(t, res.ShouldRetry)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name    string
		socials []enrich.Social
		want    string
	}{
		{name: "plain", socials: []enrich.Social{{Label: "github", URL: "https://github.com/jane"}}, want: "jane"},
		{name: "no scheme", socials: []enrich.Social{{Label: "GitHub", URL: "www.github.com/jane/repo"}}, want: "jane"},
		{name: "other host", socials: []enrich.Social{{Label: "github", URL: "https://gitlab.com/jane"}}},
		{name: "other label", socials: []enrich.Social{{Label: "twitter", URL: "https://github.com/jane"}}},
		{name: "first usable", socials: []enrich.Social{
			{Label: "github", URL: "https://github.com/"},
			{Label: "github", URL: "https://github.com/john"},
		}, want: "john"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, github.Login(enrich.Contact{Socials: tt.socials}))
		})
	}
}

func TestDescriptor(t *testing.T) {
	r, err := github.New(context.Background(), github.Config{})
	require.NoError(t, err)
	d := r.Descriptor()
	require.NoError(t, d.Validate())
	assert.Equal(t, github.DefaultPriority, d.Priority)
	assert.True(t, enrich.Evaluate(withLogin("jane"), d.DependsOn))
	assert.False(t, enrich.Evaluate(enrich.EnrichedData{}, d.DependsOn))
	assert.Equal(t, "custom(hasGithubSocial)", enrich.Describe(d.DependsOn))
}
