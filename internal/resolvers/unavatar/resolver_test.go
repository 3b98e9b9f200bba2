package unavatar_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palantir/contact-enrichment/internal/enrich"
	"github.com/palantir/contact-enrichment/internal/resolvers/unavatar"
)

type recordingUploader struct {
	contentType string
	data        []byte
}

func (u *recordingUploader) UploadFromURL(context.Context, string) enrich.PendingAsset {
	return enrich.ResolvedAsset("", errors.New("not used"))
}

func (u *recordingUploader) Upload(_ context.Context, contentType string, data []byte) (string, error) {
	u.contentType = contentType
	u.data = data
	return "avatar-1", nil
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "false", r.URL.Query().Get("fallback"))
		switch strings.TrimPrefix(r.URL.Path, "/") {
		case "jane@acme.test":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "busy@acme.test":
			w.WriteHeader(http.StatusTooManyRequests)
		case "html@acme.test":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html/>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func emails(addrs ...string) enrich.EnrichedData {
	var d enrich.EnrichedData
	for _, a := range addrs {
		d.Contact.Emails = append(d.Contact.Emails, enrich.Email{Address: a})
	}
	return d
}

func TestRun_FirstEmailWithAvatarWins(t *testing.T) {
	up := &recordingUploader{}
	r, err := unavatar.New(unavatar.Config{BaseURL: newServer(t).URL + "/", Uploader: up})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), emails("missing@acme.test", " Jane@Acme.test "))
	require.NoError(t, err)
	require.NotNil(t, res.Data)
	assert.Equal(t, "avatar-1", *res.Data.Contact.AvatarID)
	assert.Equal(t, "image/png", up.contentType)
	assert.Equal(t, "png-bytes", string(up.data))
}

func TestRun_NotFound(t *testing.T) {
	r, err := unavatar.New(unavatar.Config{BaseURL: newServer(t).URL, Uploader: &recordingUploader{}})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), emails("missing@acme.test", "html@acme.test"))
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	require.NotNil(t, res.Error)
	assert.Equal(t, http.StatusNotFound, res.Error.HTTPStatusCode)
	assert.False(t, res.ShouldRetry)
}

func TestRun_RejectsOversizeAvatar(t *testing.T) {
	up := &recordingUploader{}
	r, err := unavatar.New(unavatar.Config{BaseURL: newServer(t).URL, MaxBytes: 4, Uploader: up})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), emails("jane@acme.test"))
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	require.NotNil(t, res.Error)
	assert.Equal(t, http.StatusRequestEntityTooLarge, res.Error.HTTPStatusCode)
	assert.False(t, res.ShouldRetry)
	assert.Nil(t, up.data, "nothing is stored")
}

func TestRun_ThrottledAsksForRetry(t *testing.T) {
	r, err := unavatar.New(unavatar.Config{BaseURL: newServer(t).URL, Uploader: &recordingUploader{}})
	require.NoError(t, err)

	res, err := r.Run(context.Background(), emails("busy@acme.test", "jane@acme.test"))
	require.NoError(t, err)
	assert.True(t, res.ShouldRetry)
	assert.Equal(t, http.StatusTooManyRequests, res.Error.HTTPStatusCode)
}

func TestNew_RequiresUploader(t *testing.T) {
	_, err := unavatar.New(unavatar.Config{})
	require.Error(t, err)
}

func TestDescriptor(t *testing.T) {
	r, err := unavatar.New(unavatar.Config{Uploader: &recordingUploader{}})
	require.NoError(t, err)
	d := r.Descriptor()
	require.NoError(t, d.Validate())
	assert.Equal(t, unavatar.DefaultPriority, d.Priority)
	assert.Equal(t, []enrich.FieldPath{enrich.ContactAvatarID}, d.Provides)
}
