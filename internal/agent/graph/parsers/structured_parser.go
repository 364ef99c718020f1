package parsers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	errx "github.com/lessonforge/server/internal/core/error"
	logx "github.com/lessonforge/server/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 1 << 20 // 1MiB
	maxErrSnippet = 200
)

var quotedName = regexp.MustCompile(`['"]([^'"]+)['"]`)

// Parse decodes raw against schema and returns the typed value.
// On any failure the zero value is returned together with an *errx.AppError:
// EmptyProviderResponse for a blank payload, SchemaValidation otherwise.
func Parse[T any](raw string, schema *StructuredSchema) (out T, err error) {
	var zero T
	// panic safety
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "structured_parser").Msgf("panic recovered: %v", r)
			out = zero
			err = errx.New(fmt.Errorf("structured parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
		}
	}()

	if schema == nil {
		return zero, errx.New(fmt.Errorf("nil schema"), http.StatusInternalServerError, errx.SystemErrorMessage)
	}
	content := strings.TrimSpace(raw)
	if content == "" {
		return zero, errx.EmptyProviderResponse("")
	}
	if len(content) > maxContentLen {
		return zero, errx.SchemaValidation("/", fmt.Errorf("payload of %d bytes exceeds %d", len(content), maxContentLen))
	}
	content = stripCodeFence(content)

	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return zero, errx.SchemaValidation("/", fmt.Errorf("decode %q: %w", safeSnippet(content), err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return zero, errx.SchemaValidation("/", fmt.Errorf("trailing data after JSON document"))
	}

	compiled, err := schema.compile()
	if err != nil {
		return zero, errx.New(err, http.StatusInternalServerError, errx.SystemErrorMessage)
	}
	if err := compiled.Validate(doc); err != nil {
		field := fieldPath(err)
		logx.Debug().
			Str("component", "structured_parser").
			Str("schema", schema.Name).
			Str("field", field).
			Err(err).
			Msg("payload rejected by schema")
		return zero, errx.SchemaValidation(field, err)
	}

	var v T
	if err := json.Unmarshal([]byte(content), &v); err != nil {
		return zero, errx.SchemaValidation("/", fmt.Errorf("decode into %T: %w", v, err))
	}
	return v, nil
}

// fieldPath names the deepest offending location of a validation error.
// For required/additionalProperties failures the property name is appended.
func fieldPath(err error) string {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return "/"
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	loc := ve.InstanceLocation
	if !strings.HasPrefix(loc, "/") {
		loc = "/" + loc
	}
	kw := ve.KeywordLocation
	if strings.HasSuffix(kw, "/required") || strings.HasSuffix(kw, "/additionalProperties") {
		if m := quotedName.FindStringSubmatch(ve.Message); len(m) == 2 {
			loc = strings.TrimSuffix(loc, "/") + "/" + m[1]
		}
	}
	return loc
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
