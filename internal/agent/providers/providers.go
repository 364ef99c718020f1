package providers

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/lessonforge/server/internal/agent/graph/parsers"
	"github.com/lessonforge/server/internal/agent/model"
)

// Capability names one kind of generative work an adapter can perform.
type Capability string

const (
	CapabilityTextCompletion      Capability = "text_completion"
	CapabilityStructuredAgent     Capability = "structured_agent"
	CapabilityImageGeneration     Capability = "image_generation"
	CapabilityNarrationGeneration Capability = "narration_generation"
)

// Response is the raw reply of a chat style provider call.
type Response struct {
	Content string
	Usage   *model.TokenUsage
}

// Asset is a generated binary artifact.
type Asset struct {
	Data     []byte
	MIMEType string
}

// StructuredAgent answers a conversation with a JSON document for schema.
// Adapters that support native JSON schema enforcement use it; the payload is
// validated by the caller either way.
type StructuredAgent interface {
	Interact(ctx context.Context, messages []*schema.Message, schema *parsers.StructuredSchema) (*Response, error)
}

type TextCompleter interface {
	Complete(ctx context.Context, messages []*schema.Message) (*Response, error)
}

// ImageGenerator renders one image for prompt. size is "WIDTHxHEIGHT".
type ImageGenerator interface {
	Generate(ctx context.Context, prompt, size string) (*Asset, error)
}

// NarrationGenerator synthesizes speech for text. An empty voice selects the
// adapter default.
type NarrationGenerator interface {
	Generate(ctx context.Context, text, voice string) (*Asset, error)
}

// ExtensionFor maps a MIME type to the file extension used for local artifacts.
func ExtensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".opus"
	case "video/mp4":
		return ".mp4"
	default:
		return ".png"
	}
}
