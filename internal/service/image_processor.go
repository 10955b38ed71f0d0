package service

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/h2non/bimg"
	"github.com/khangpv/imgprep/internal/models"

	// Formats the stdlib and imaging do not register on their own.
	_ "golang.org/x/image/webp"
)

// DefaultQuality matches the quality every output is encoded with unless
// overridden through configuration.
const DefaultQuality = 85

type ImageProcessor struct {
	quality int
}

func NewImageProcessor(quality int) *ImageProcessor {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	return &ImageProcessor{quality: quality}
}

// Decode turns raw bytes into an image with EXIF orientation applied.
// HEIC/AVIF inputs are transcoded through libvips first since neither the
// stdlib nor imaging understands them.
func (p *ImageProcessor) Decode(data []byte) (image.Image, error) {
	if t := bimg.DetermineImageType(data); t == bimg.HEIF || t == bimg.AVIF {
		converted, err := bimg.NewImage(data).Convert(bimg.JPEG)
		if err != nil {
			return nil, fmt.Errorf("failed to decode heif image: %w", err)
		}
		data = converted
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Render bounds the image by maxDim and encodes it as JPEG. A maxDim of zero
// keeps the original size.
func (p *ImageProcessor) Render(img image.Image, maxDim int) (*bytes.Buffer, int, int, error) {
	width := img.Bounds().Dx()
	height := img.Bounds().Dy()

	newWidth, newHeight := FitDimensions(width, height, maxDim)
	if newWidth != width || newHeight != height {
		img = imaging.Resize(img, newWidth, newHeight, imaging.Lanczos)
	}

	buffer := &bytes.Buffer{}
	if err := jpeg.Encode(buffer, flatten(img), &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to encode image: %w", err)
	}
	return buffer, newWidth, newHeight, nil
}

// ProcessBytes is the one-shot decode+render path used by the HTTP handlers.
func (p *ImageProcessor) ProcessBytes(data []byte, maxDim int) (*bytes.Buffer, int, int, error) {
	img, err := p.Decode(data)
	if err != nil {
		return nil, 0, 0, err
	}
	return p.Render(img, maxDim)
}

// ProcessFile decodes the input once and writes every requested output.
// The first failing output aborts the whole run.
func (p *ImageProcessor) ProcessFile(inputPath string, outputs []models.OutputSpec) error {
	data, err := os.ReadFile(inputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file not found: %s", inputPath)
		}
		return fmt.Errorf("failed to read input: %w", err)
	}

	img, err := p.Decode(data)
	if err != nil {
		return err
	}

	for _, out := range outputs {
		buffer, _, _, err := p.Render(img, out.Height)
		if err != nil {
			return err
		}
		if err := WriteOutput(out.Path, buffer.Bytes()); err != nil {
			return err
		}
	}
	return nil
}

// ValidateImage rejects oversized or undecodable payloads before processing.
func (p *ImageProcessor) ValidateImage(data []byte, maxSize int64) error {
	if int64(len(data)) > maxSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d", len(data), maxSize)
	}
	if _, err := p.Decode(data); err != nil {
		return err
	}
	return nil
}

// WriteOutput writes encoded bytes to path, creating parent directories.
func WriteOutput(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// FitDimensions bounds width and height by maxDim with uniform scaling.
// The larger dimension lands exactly on maxDim; the other is truncated.
// Images already within the bound keep their size; upscaling never happens.
func FitDimensions(width, height, maxDim int) (int, int) {
	if maxDim <= 0 || (width <= maxDim && height <= maxDim) {
		return width, height
	}

	var newWidth, newHeight int
	if width >= height {
		newWidth = maxDim
		newHeight = height * maxDim / width
	} else {
		newWidth = width * maxDim / height
		newHeight = maxDim
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}
	return newWidth, newHeight
}

// flatten composites transparent pixels over white. JPEG has no alpha channel
// and the stdlib encoder would otherwise blend onto black.
func flatten(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}
	background := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}
