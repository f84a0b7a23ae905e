package threemf

import (
	"bytes"
	"image"
	"io"

	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/vlog"
	"github.com/FocuswithJustin/threemf/internal/validation"
)

// Texture is a 2D texture image referenced by a model.
type Texture struct {
	MediaType string
	Width     int
	Height    int
	Size      int64
}

// Kind implements Part.
func (*Texture) Kind() string { return "texture" }

// TextureParser checks texture images. Every problem it finds is
// recoverable.
type TextureParser struct{}

// ParsePart implements PartParser.
func (TextureParser) ParsePart(req *PartRequest, part io.Reader) (Part, error) {
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, errors.NewIO("read part", req.Path, err)
	}

	tex := &Texture{Size: int64(len(data))}
	err = req.Log.Context("texture", func(l *vlog.Log) error {
		tex.MediaType = validation.DetectMediaTypeBytes(data)
		switch tex.MediaType {
		case "":
			l.Error(ErrInvalidTexture, "Texture file type could not be identified")
			return nil
		case validation.MediaTypePNG, validation.MediaTypeJPEG:
		default:
			l.Error(ErrInvalidTexture, "Texture must be a PNG or JPEG image", "type", tex.MediaType)
		}

		if req.ContentType != "" && req.ContentType != tex.MediaType {
			l.Warning("Declared content type does not match texture content",
				"declared", req.ContentType, "detected", tex.MediaType)
		}

		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			l.Error(ErrInvalidTexture, "Texture image header could not be decoded", "error", err.Error())
			return nil
		}
		tex.Width, tex.Height = cfg.Width, cfg.Height
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tex, nil
}
