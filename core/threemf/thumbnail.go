package threemf

import (
	"bytes"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/vlog"
	"github.com/FocuswithJustin/threemf/internal/validation"
)

// Thumbnail is a package or part thumbnail image.
type Thumbnail struct {
	MediaType  string // sniffed from content, not taken from the name
	Width      int
	Height     int
	ColorSpace string // "" when the image header could not be decoded
	Size       int64
}

// Kind implements Part.
func (*Thumbnail) Kind() string { return "thumbnail" }

// ThumbnailParser validates thumbnail images. An image whose format cannot
// be identified, or whose colorspace is CMYK, is fatal. An identified image
// that is neither PNG nor JPEG is a recoverable error.
type ThumbnailParser struct{}

// ParsePart implements PartParser.
func (ThumbnailParser) ParsePart(req *PartRequest, part io.Reader) (Part, error) {
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, errors.NewIO("read part", req.Path, err)
	}

	var th *Thumbnail
	err = req.Log.Context("thumbnail", func(l *vlog.Log) error {
		mediaType := validation.DetectMediaTypeBytes(data)
		if mediaType == "" {
			return l.Fatal(ErrInvalidThumbnail, "Thumbnail file type could not be identified", vlog.Page(36))
		}
		th = &Thumbnail{MediaType: mediaType, Size: int64(len(data))}
		if mediaType != validation.MediaTypePNG && mediaType != validation.MediaTypeJPEG {
			l.Error(ErrInvalidThumbnailType, "Thumbnail must be a PNG or JPEG image", vlog.Page(36), "type", mediaType)
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			if errors.Is(err, image.ErrFormat) {
				l.Warning("Thumbnail colorspace could not be determined", "type", mediaType)
				return nil
			}
			l.Error(ErrInvalidThumbnail, "Thumbnail image header is corrupt", "error", err.Error())
			return nil
		}
		th.Width, th.Height = cfg.Width, cfg.Height
		th.ColorSpace = colorSpace(cfg.ColorModel)
		if th.ColorSpace == "CMYK" {
			return l.Fatal(ErrInvalidColorspace, "Thumbnail colorspace must not be CMYK", vlog.Page(36))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return th, nil
}

// colorSpace names the color model reported by an image header.
func colorSpace(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "Indexed"
	}
	switch m {
	case color.CMYKModel:
		return "CMYK"
	case color.GrayModel, color.Gray16Model:
		return "Gray"
	case color.YCbCrModel, color.NYCbCrAModel:
		return "YCbCr"
	case color.RGBAModel, color.RGBA64Model, color.NRGBAModel, color.NRGBA64Model:
		return "RGB"
	default:
		return "Unknown"
	}
}
