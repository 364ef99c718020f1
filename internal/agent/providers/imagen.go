package providers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"

	errx "github.com/lessonforge/server/internal/core/error"
)

// ImagenGenerator renders images with the Gemini API image models.
type ImagenGenerator struct {
	client    *genai.Client
	modelName string
}

func NewImagenGenerator(client *genai.Client, modelName string) *ImagenGenerator {
	return &ImagenGenerator{client: client, modelName: modelName}
}

func (g *ImagenGenerator) Generate(ctx context.Context, prompt, size string) (*Asset, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, errors.New("image prompt required")
	}
	resp, err := g.client.Models.GenerateImages(ctx, g.modelName, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    AspectRatio(size),
		OutputMIMEType: "image/png",
	})
	if err != nil {
		return nil, errx.WrapProvider("imagen", err)
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, errx.EmptyProviderResponse("imagen")
	}
	img := resp.GeneratedImages[0]
	if img.Image == nil || len(img.Image.ImageBytes) == 0 {
		if img.RAIFilteredReason != "" {
			return nil, errx.WrapProvider("imagen", fmt.Errorf("image filtered: %s", img.RAIFilteredReason))
		}
		return nil, errx.EmptyProviderResponse("imagen")
	}
	mime := img.Image.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &Asset{Data: img.Image.ImageBytes, MIMEType: mime}, nil
}

// AspectRatio maps a "WIDTHxHEIGHT" size onto the closest aspect ratio the
// image models accept. Unparseable sizes fall back to square.
func AspectRatio(size string) string {
	w, h, ok := parseSize(size)
	if !ok {
		return "1:1"
	}
	r := float64(w) / float64(h)
	candidates := []struct {
		name  string
		ratio float64
	}{
		{"1:1", 1}, {"3:4", 0.75}, {"4:3", 4.0 / 3}, {"9:16", 9.0 / 16}, {"16:9", 16.0 / 9},
	}
	best, bestDiff := "1:1", -1.0
	for _, c := range candidates {
		d := r - c.ratio
		if d < 0 {
			d = -d
		}
		if bestDiff < 0 || d < bestDiff {
			best, bestDiff = c.name, d
		}
	}
	return best
}

func parseSize(size string) (int, int, bool) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(size)), "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}
