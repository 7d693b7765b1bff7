package storage

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

func TestDetectImageType(t *testing.T) {
	ct, ext, err := DetectImageType(pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, ".png", ext)

	_, _, err = DetectImageType(nil)
	assert.ErrorIs(t, err, ErrEmpty)
	_, _, err = DetectImageType([]byte("<html><body>hi</body></html>"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, _, err = DetectImageType(make([]byte, MaxImageBytes+1))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestDownloadURL(t *testing.T) {
	got := DownloadURL("demo.appspot.com", "listings/abc.png", "tok")
	assert.Equal(t, "https://firebasestorage.googleapis.com/v0/b/demo.appspot.com/o/listings%2Fabc.png?alt=media&token=tok", got)
}

func TestObjectPath(t *testing.T) {
	s := NewGCSImageStore(nil, "bucket")
	s.newID = func() string { return "fixed" }
	assert.Equal(t, "listings/fixed.jpg", s.objectPath(".jpg"))
}
