package artifacts

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	"bookloom/internal/fileutil"
)

// ImageOptions controls how generated illustrations are stored.
type ImageOptions struct {
	MaxDimension int
	Format       string
	JPEGQuality  int
}

// ImageInfo describes a stored image.
type ImageInfo struct {
	Path         string
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// SaveImage decodes provider image bytes, fits them inside MaxDimension
// without upscaling, re-encodes in the configured format, and writes the
// result atomically to dst.
func SaveImage(data []byte, dst string, opts ImageOptions) (ImageInfo, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("decode image: %w", err)
	}
	bounds := src.Bounds()
	info := ImageInfo{Path: dst, SourceWidth: bounds.Dx(), SourceHeight: bounds.Dy()}

	out := src
	if limit := opts.MaxDimension; limit > 0 && (bounds.Dx() > limit || bounds.Dy() > limit) {
		out = imaging.Fit(src, limit, limit, imaging.Lanczos)
	}

	format, err := imageFormat(opts.Format)
	if err != nil {
		return ImageInfo{}, err
	}
	var encodeOpts []imaging.EncodeOption
	if format == imaging.JPEG && opts.JPEGQuality > 0 {
		encodeOpts = append(encodeOpts, imaging.JPEGQuality(opts.JPEGQuality))
	}

	if err := fileutil.WriteAtomicFunc(dst, 0o644, func(w io.Writer) error {
		return imaging.Encode(w, out, format, encodeOpts...)
	}); err != nil {
		return ImageInfo{}, fmt.Errorf("save image: %w", err)
	}
	b := out.Bounds()
	info.Width, info.Height = b.Dx(), b.Dy()
	return info, nil
}

func imageFormat(name string) (imaging.Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "png":
		return imaging.PNG, nil
	case "jpg", "jpeg":
		return imaging.JPEG, nil
	}
	return 0, fmt.Errorf("unsupported image format %q", name)
}
