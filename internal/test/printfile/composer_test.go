package printfile_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taletoprint-backend/internal/printfile"
)

// sourceImageServer serves a small solid-color PNG standing in for a
// generated HD image.
func sourceImageServer(t *testing.T, width, height int) *httptest.Server {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(buf.Bytes())
	}))
}

func TestCompose_A4Dimensions(t *testing.T) {
	server := sourceImageServer(t, 600, 800)
	defer server.Close()

	composer := printfile.NewComposer()
	file, err := composer.Compose(context.Background(), server.URL, "A4", "TTP-ABC123")
	require.NoError(t, err)

	assert.Equal(t, "TTP-ABC123_A4_print.jpg", file.Filename)
	assert.Equal(t, 2480, file.Width)
	assert.Equal(t, 3508, file.Height)

	decoded, err := jpeg.Decode(bytes.NewReader(file.Data))
	require.NoError(t, err, "output must be a valid JPEG")
	assert.Equal(t, 2480, decoded.Bounds().Dx())
	assert.Equal(t, 3508, decoded.Bounds().Dy())
}

func TestCompose_LandscapeSourceKeepsAspectRatio(t *testing.T) {
	server := sourceImageServer(t, 800, 400)
	defer server.Close()

	composer := printfile.NewComposer()
	file, err := composer.Compose(context.Background(), server.URL, "A4", "TTP-ABC123")
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(file.Data))
	require.NoError(t, err)

	// A landscape source fitted into a portrait canvas leaves white bands
	// above and below; the canvas itself keeps the full print size.
	assert.Equal(t, 2480, decoded.Bounds().Dx())
	assert.Equal(t, 3508, decoded.Bounds().Dy())

	r, g, b, _ := decoded.At(decoded.Bounds().Dx()/2, 10).RGBA()
	assert.True(t, r>>8 > 240 && g>>8 > 240 && b>>8 > 240, "top border should stay white")
}

func TestCompose_UnknownSizeRejected(t *testing.T) {
	composer := printfile.NewComposer()
	_, err := composer.Compose(context.Background(), "http://unused.invalid", "A7", "TTP-ABC123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown print size")
}

func TestCompose_DownloadFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	composer := printfile.NewComposer()
	_, err := composer.Compose(context.Background(), server.URL, "A4", "TTP-ABC123")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestSupportedSizes(t *testing.T) {
	sizes := printfile.SupportedSizes()
	assert.Len(t, sizes, 5)
	assert.Contains(t, sizes, "A4")
	assert.Contains(t, sizes, "50x70")
}
