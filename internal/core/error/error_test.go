package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     Kind
	}{
		{"empty", EmptyProviderResponse("gemini"), ErrEmptyProviderResponse, KindEmptyProviderResponse},
		{"schema", SchemaValidation("/scenes/0", errors.New("bad")), ErrSchemaValidation, KindSchemaValidation},
		{"unknown", UnknownProvider("image", "midjourney"), ErrUnknownProvider, KindUnknownProvider},
		{"media", MediaAssembly("concat", errors.New("exit 1")), ErrMediaAssembly, KindMediaAssembly},
		{"scene", SceneGeneration(3, errors.New("timeout")), ErrSceneGeneration, KindSceneGeneration},
		{"cancelled", PipelineCancelled(context.Canceled), ErrPipelineCancelled, KindPipelineCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("stage: %w", tt.err)
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.kind, KindOf(wrapped))
			for _, other := range kindSentinels {
				if other != tt.sentinel {
					assert.False(t, errors.Is(wrapped, other))
				}
			}
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := PipelineCancelled(context.DeadlineExceeded)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var ae *AppError
	require.True(t, errors.As(fmt.Errorf("x: %w", err), &ae))
	assert.Equal(t, 499, ae.Status)
}

func TestSchemaValidationField(t *testing.T) {
	err := SchemaValidation("", errors.New("not json"))
	assert.Equal(t, "/", FieldPath(err))
	assert.Contains(t, err.Error(), "at /")

	err = SchemaValidation("/scenes/1/visual/type", errors.New("enum"))
	assert.Equal(t, "/scenes/1/visual/type", FieldPath(fmt.Errorf("wrap: %w", err)))
	assert.Equal(t, "", FieldPath(errors.New("plain")))
}

func TestEmptyProviderResponseMessage(t *testing.T) {
	assert.Contains(t, EmptyProviderResponse("openai").Error(), `"openai"`)
	assert.NotContains(t, EmptyProviderResponse("").Error(), `""`)
}

func TestWrapHelpers(t *testing.T) {
	assert.NoError(t, WrapStorage(nil))
	assert.NoError(t, WrapProvider("gemini", nil))
	assert.NoError(t, WrapRedis(nil))

	assert.Equal(t, KindStorage, KindOf(WrapStorage(errors.New("denied"))))
	assert.Equal(t, KindProvider, KindOf(WrapProvider("gemini", errors.New("429"))))

	var ae *AppError
	require.True(t, errors.As(WrapRedis(redis.Nil), &ae))
	assert.Equal(t, http.StatusNotFound, ae.Status)
	assert.Equal(t, RedisNotFoundMessage, ae.Message)

	require.True(t, errors.As(WrapRedis(errors.New("conn refused")), &ae))
	assert.Equal(t, http.StatusBadGateway, ae.Status)
	assert.Equal(t, KindRedis, ae.Kind)
}
