package decode

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 3))
	for x := range 4 {
		for y := range 3 {
			img.Set(x, y, color.NRGBA{R: uint8(x * 60), G: uint8(y * 80), B: 10, A: 255})
		}
	}
	return img
}

func newDecoder(t *testing.T) *Auto {
	d, err := New()
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func compress(requireT *require.Assertions, data []byte) []byte {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	requireT.NoError(err)
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func TestDecodeRawBytes(t *testing.T) {
	requireT := require.New(t)
	d := newDecoder(t)

	res, err := d.Decode([]byte("plain payload"))
	requireT.NoError(err)
	requireT.Equal([]byte("plain payload"), res.Data)
	requireT.Nil(res.Image)
	requireT.Empty(res.Format)
}

func TestDecodeZstd(t *testing.T) {
	requireT := require.New(t)
	d := newDecoder(t)

	payload := bytes.Repeat([]byte("tile"), 1024)
	res, err := d.Decode(compress(requireT, payload))
	requireT.NoError(err)
	requireT.Equal(payload, res.Data)
	requireT.Nil(res.Image)
}

func TestDecodeCorruptedZstdFails(t *testing.T) {
	d := newDecoder(t)

	_, err := d.Decode(append([]byte{0x28, 0xb5, 0x2f, 0xfd}, 0xff, 0xff, 0xff))
	require.Error(t, err)
}

func TestDecodeImages(t *testing.T) {
	requireT := require.New(t)
	d := newDecoder(t)
	img := testImage()

	encoders := map[string]func(buf *bytes.Buffer) error{
		"png": func(buf *bytes.Buffer) error {
			return png.Encode(buf, img)
		},
		"bmp": func(buf *bytes.Buffer) error {
			return bmp.Encode(buf, img)
		},
		"tiff": func(buf *bytes.Buffer) error {
			return tiff.Encode(buf, img, nil)
		},
	}

	for format, encode := range encoders {
		buf := &bytes.Buffer{}
		requireT.NoError(encode(buf))

		res, err := d.Decode(buf.Bytes())
		requireT.NoError(err)
		requireT.Equal(format, res.Format)
		requireT.Equal(img.Bounds(), res.Image.Bounds())
	}
}

func TestDecodeCompressedImage(t *testing.T) {
	requireT := require.New(t)
	d := newDecoder(t)

	buf := &bytes.Buffer{}
	requireT.NoError(png.Encode(buf, testImage()))

	res, err := d.Decode(compress(requireT, buf.Bytes()))
	requireT.NoError(err)
	requireT.Equal("png", res.Format)
	requireT.Equal(buf.Bytes(), res.Data)
}

func TestDecodeTruncatedImageFails(t *testing.T) {
	requireT := require.New(t)
	d := newDecoder(t)

	buf := &bytes.Buffer{}
	requireT.NoError(png.Encode(buf, testImage()))

	_, err := d.Decode(buf.Bytes()[:buf.Len()/2])
	requireT.Error(err)
}

func TestRaw(t *testing.T) {
	res, err := Raw.Decode([]byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, res.Data)
}
