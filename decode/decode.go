package decode

import (
	"bytes"
	"image"
	_ "image/gif"  // registers GIF format
	_ "image/jpeg" // registers JPEG format
	_ "image/png"  // registers PNG format

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"  // registers BMP format
	_ "golang.org/x/image/tiff" // registers TIFF format
	_ "golang.org/x/image/webp" // registers WebP format
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Result is the decoded payload.
type Result struct {
	// Data is the payload after decompression.
	Data []byte

	// Image is set if data is a raster image of known format.
	Image image.Image

	// Format is the name of the image format, empty if payload is not an image.
	Format string
}

// Decoder turns fetched bytes into payload.
type Decoder interface {
	Decode(data []byte) (Result, error)
}

// Func adapts function to Decoder interface.
type Func func(data []byte) (Result, error)

// Decode calls f.
func (f Func) Decode(data []byte) (Result, error) {
	return f(data)
}

// Raw returns the bytes untouched.
var Raw = Func(func(data []byte) (Result, error) {
	return Result{Data: data}, nil
})

// New creates decoder detecting zstd compression and raster images.
func New() (*Auto, error) {
	zDec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &Auto{zDec: zDec}, nil
}

// Auto decompresses zstd frames and decodes images of registered formats.
// Payloads of other types are passed through. It is safe for concurrent use.
type Auto struct {
	zDec *zstd.Decoder
}

// Decode decodes the payload.
func (a *Auto) Decode(data []byte) (Result, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		var err error
		data, err = a.zDec.DecodeAll(data, nil)
		if err != nil {
			return Result{}, errors.Wrap(err, "decompressing zstd payload failed")
		}
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	switch {
	case err == nil:
		return Result{Data: data, Image: img, Format: format}, nil
	case errors.Is(err, image.ErrFormat):
		return Result{Data: data}, nil
	default:
		return Result{}, errors.Wrap(err, "decoding image failed")
	}
}

// Close releases decoder resources.
func (a *Auto) Close() {
	a.zDec.Close()
}
