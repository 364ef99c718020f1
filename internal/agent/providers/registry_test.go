package providers

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lessonforge/server/internal/agent/graph/parsers"
	errx "github.com/lessonforge/server/internal/core/error"
)

type stubAgent struct{ name string }

func (s *stubAgent) Interact(context.Context, []*schema.Message, *parsers.StructuredSchema) (*Response, error) {
	return &Response{Content: s.name}, nil
}

type stubImage struct{}

func (stubImage) Generate(context.Context, string, string) (*Asset, error) {
	return &Asset{Data: []byte{1}, MIMEType: "image/png"}, nil
}

func TestRegistryResolve(t *testing.T) {
	gemini := &stubAgent{name: "gemini"}
	reg, err := NewRegistryBuilder().
		Agent("gemini", gemini).
		Agent("openai", &stubAgent{name: "openai"}).
		Image("openai", stubImage{}).
		Default(CapabilityStructuredAgent, "gemini").
		Build()
	require.NoError(t, err)

	a1, err := reg.ResolveAgent("gemini")
	require.NoError(t, err)
	a2, err := reg.ResolveAgent("gemini")
	require.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Same(t, gemini, a1)

	def, err := ResolveOrDefault[StructuredAgent](reg, CapabilityStructuredAgent, "")
	require.NoError(t, err)
	assert.Same(t, gemini, def)

	_, err = reg.ResolveImage("openai")
	assert.NoError(t, err)
	assert.Equal(t, []string{"gemini", "openai"}, reg.Names(CapabilityStructuredAgent))
}

func TestRegistryUnknownProvider(t *testing.T) {
	reg, err := NewRegistryBuilder().Image("openai", stubImage{}).Build()
	require.NoError(t, err)

	_, err = reg.ResolveNarration("openai")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrUnknownProvider))
	assert.Contains(t, err.Error(), string(CapabilityNarrationGeneration))
	assert.Contains(t, err.Error(), `"openai"`)

	_, err = reg.ResolveText("missing")
	assert.True(t, errors.Is(err, errx.ErrUnknownProvider))

	_, err = ResolveOrDefault[ImageGenerator](reg, CapabilityImageGeneration, "")
	assert.True(t, errors.Is(err, errx.ErrUnknownProvider))
}

func TestRegistryBuildErrors(t *testing.T) {
	_, err := NewRegistryBuilder().
		Agent("gemini", &stubAgent{}).
		Agent("gemini", &stubAgent{}).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	_, err = NewRegistryBuilder().
		Default(CapabilityImageGeneration, "imagen").
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")

	_, err = NewRegistryBuilder().Agent("", &stubAgent{}).Build()
	assert.Error(t, err)
}

func TestRegistryConcurrentResolve(t *testing.T) {
	agent := &stubAgent{name: "gemini"}
	reg, err := NewRegistryBuilder().Agent("gemini", agent).Build()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := reg.ResolveAgent("gemini")
			assert.NoError(t, err)
			assert.Same(t, agent, a)
		}()
	}
	wg.Wait()
}

func TestAspectRatio(t *testing.T) {
	assert.Equal(t, "1:1", AspectRatio("1024x1024"))
	assert.Equal(t, "16:9", AspectRatio("1792x1024"))
	assert.Equal(t, "9:16", AspectRatio("1024x1792"))
	assert.Equal(t, "1:1", AspectRatio("huge"))
}
