package media

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLogoFitsLargeImages(t *testing.T) {
	src := &bytes.Buffer{}
	require.NoError(t, jpeg.Encode(src, image.NewRGBA(image.Rect(0, 0, 600, 300)), nil))

	out, err := NormalizeLogo(src, 256)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 256, decoded.Bounds().Dx())
	assert.Equal(t, 128, decoded.Bounds().Dy())
}

func TestNormalizeLogoKeepsSmallImages(t *testing.T) {
	src := &bytes.Buffer{}
	require.NoError(t, png.Encode(src, image.NewRGBA(image.Rect(0, 0, 40, 20))))

	out, err := NormalizeLogo(src, 0)
	require.NoError(t, err)
	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 40, decoded.Bounds().Dx())
}

func TestNormalizeLogoRejectsGarbage(t *testing.T) {
	_, err := NormalizeLogo(strings.NewReader("not an image"), 256)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}
