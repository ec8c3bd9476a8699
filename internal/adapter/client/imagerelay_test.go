package client

import (
	"context"
	"encoding/base64"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay-core/internal/domain/entity"
)

func relayWithTransport(rt roundTripFunc) *ImageRelayProvider {
	p := NewImageRelayProvider("http://relay.test", time.Second)
	p.client = &http.Client{Transport: rt}
	return p
}

func TestImageRelayGenerate(t *testing.T) {
	t.Parallel()
	p := relayWithTransport(func(r *http.Request) (*http.Response, error) {
		assert.Equal(t, "/prompt/a%20red%20fox", r.URL.EscapedPath())
		assert.Equal(t, "flux", r.URL.Query().Get("model"))
		res := httpResponse(200, "\x89PNGbytes")
		res.Header.Set("Content-Type", "image/png")
		return res, nil
	})

	img, err := p.GenerateImage(context.Background(), "a red fox", "flux")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	decoded, err := base64.StdEncoding.DecodeString(img.Base64)
	require.NoError(t, err)
	assert.Equal(t, "\x89PNGbytes", string(decoded))
}

func TestImageRelayEmptyBodyIsNoImage(t *testing.T) {
	t.Parallel()
	p := relayWithTransport(func(r *http.Request) (*http.Response, error) {
		return httpResponse(200, ""), nil
	})

	_, err := p.GenerateImage(context.Background(), "anything", "")
	require.Error(t, err)
	assert.Equal(t, entity.KindNoImage, entity.KindOf(err))
	assert.ErrorIs(t, err, entity.ErrNoImageProduced)
}

func TestImageRelayMissingContentTypeDefaultsJPEG(t *testing.T) {
	t.Parallel()
	p := relayWithTransport(func(r *http.Request) (*http.Response, error) {
		return httpResponse(200, "jpegbytes"), nil
	})

	img, err := p.GenerateImage(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)
}

func TestImageRelayOverloadedStatus(t *testing.T) {
	t.Parallel()
	p := relayWithTransport(func(r *http.Request) (*http.Response, error) {
		return httpResponse(503, "busy"), nil
	})

	_, err := p.GenerateImage(context.Background(), "anything", "")
	require.Error(t, err)
	assert.Equal(t, entity.KindOverloaded, entity.KindOf(err))
}

func TestImageRelayOtherCapabilitiesUnsupported(t *testing.T) {
	t.Parallel()
	p := NewImageRelayProvider("http://relay.test", 0)

	_, _, err := p.Chat(context.Background(), nil, "", entity.ChatOptions{})
	assert.Equal(t, entity.KindUnsupported, entity.KindOf(err))

	_, err = p.Stream(context.Background(), nil, "", entity.ChatOptions{})
	assert.Equal(t, entity.KindUnsupported, entity.KindOf(err))

	_, err = p.Vision(context.Background(), "", nil, "", "")
	assert.Equal(t, entity.KindUnsupported, entity.KindOf(err))

	_, err = p.ListModels(context.Background())
	assert.Equal(t, entity.KindUnsupported, entity.KindOf(err))
}
