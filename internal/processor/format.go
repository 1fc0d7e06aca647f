package processor

import (
	"fmt"

	"github.com/disintegration/imaging"
)

// OutputFormat selects the container and quality of generated images.
type OutputFormat struct {
	Format  imaging.Format
	Quality int // JPEG quality, ignored by other formats
}

// ParseOutputFormat resolves a format name such as "jpeg" or "png".
func ParseOutputFormat(name string, quality int) (OutputFormat, error) {
	f, err := imaging.FormatFromExtension(name)
	if err != nil {
		return OutputFormat{}, fmt.Errorf("output format %q: %w", name, err)
	}

	return OutputFormat{Format: f, Quality: quality}, nil
}

// ContentType returns the MIME type of the format.
func (o OutputFormat) ContentType() string {
	switch o.Format {
	case imaging.JPEG:
		return "image/jpeg"
	case imaging.PNG:
		return "image/png"
	case imaging.GIF:
		return "image/gif"
	case imaging.TIFF:
		return "image/tiff"
	case imaging.BMP:
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

func (o OutputFormat) encodeOptions() []imaging.EncodeOption {
	if o.Format == imaging.JPEG && o.Quality > 0 {
		return []imaging.EncodeOption{imaging.JPEGQuality(o.Quality)}
	}
	return nil
}
