package engine

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"itemcore/pkg/schema"
)

// DefaultMaxFileSize bounds individual file payloads when a files property
// declares no explicit maxFileSize.
const DefaultMaxFileSize int64 = 50 << 20

// cursorAnchorAttr marks the transient editor cursor element inside rich
// text; its single placeholder character is excluded from length counting.
const cursorAnchorAttr = "data-cursor-anchor"

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

func builtinDescriptors() []Descriptor {
	return []Descriptor{
		{
			Type:       schema.TypeBoolean,
			JSONType:   "boolean",
			Searchable: true,
		},
		{
			Type:          schema.TypeInteger,
			JSONType:      "number",
			Searchable:    true,
			AllowsMinMax:  true,
			SupportsIndex: true,
			Validate:      validateInteger,
		},
		{
			Type:               schema.TypeNumber,
			JSONType:           "number",
			Searchable:         true,
			AllowsMinMax:       true,
			AllowsDecimalCount: true,
			Validate:           validateNumber,
		},
		{
			Type:               schema.TypeCurrency,
			JSONType:           "object",
			Searchable:         true,
			AllowsMinMax:       true,
			AllowsDecimalCount: true,
			ValidateStructure:  validateCurrencyShape,
		},
		{
			Type:         schema.TypeYear,
			JSONType:     "number",
			Searchable:   true,
			AllowsMinMax: true,
			Validate:     validateInteger,
		},
		{
			Type:                 schema.TypeString,
			JSONType:             "string",
			NullableSentinel:     "",
			Searchable:           true,
			AllowsLength:         true,
			SupportsIndex:        true,
			SupportsAutocomplete: true,
			Validate:             validateString,
		},
		{
			Type:             schema.TypeText,
			JSONType:         "string",
			NullableSentinel: "",
			Searchable:       true,
			AllowsLength:     true,
		},
		{
			Type:              schema.TypeFiles,
			JSONType:          "array",
			ValidateStructure: validateFilesShape,
		},
	}
}

func validateInteger(value any, _ string) schema.InvalidReason {
	f, ok := asFloat(value)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return schema.ReasonInvalidValue
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return schema.ReasonInvalidValue
	}
	return schema.ReasonValid
}

func validateNumber(value any, _ string) schema.InvalidReason {
	f, ok := asFloat(value)
	if !ok || math.IsInf(f, 0) || math.IsNaN(f) {
		return schema.ReasonInvalidValue
	}
	return schema.ReasonValid
}

func validateString(value any, subtype string) schema.InvalidReason {
	s, ok := value.(string)
	if !ok {
		return schema.ReasonInvalidValue
	}
	switch subtype {
	case schema.SubtypeEmail:
		if !emailPattern.MatchString(s) {
			return schema.ReasonInvalidSubtype
		}
	case schema.SubtypeIdentifier:
		if !identifierPattern.MatchString(s) {
			return schema.ReasonInvalidSubtype
		}
	}
	return schema.ReasonValid
}

// validateCurrencyShape checks the {value, currency} composite shape.
func validateCurrencyShape(value any, _ int64) schema.InvalidReason {
	m, ok := value.(map[string]any)
	if !ok {
		return schema.ReasonInvalidValue
	}
	amount, hasAmount := m["value"]
	code, hasCode := m["currency"]
	if !hasAmount || !hasCode || len(m) != 2 {
		return schema.ReasonInvalidValue
	}
	if _, ok := asFloat(amount); !ok {
		return schema.ReasonInvalidValue
	}
	s, ok := code.(string)
	if !ok || len(s) != 3 || strings.ToUpper(s) != s {
		return schema.ReasonInvalidValue
	}
	return schema.ReasonValid
}

// validateFilesShape checks each element of a files array for field presence,
// field types and the per-file size bound.
func validateFilesShape(value any, maxFileSize int64) schema.InvalidReason {
	files, ok := value.([]any)
	if !ok {
		return schema.ReasonInvalidValue
	}
	for _, entry := range files {
		file, ok := entry.(map[string]any)
		if !ok {
			return schema.ReasonInvalidValue
		}
		for _, field := range []string{"id", "name", "type", "url"} {
			s, ok := file[field].(string)
			if !ok || s == "" {
				return schema.ReasonInvalidValue
			}
		}
		size, ok := asFloat(file["size"])
		if !ok || size < 0 {
			return schema.ReasonInvalidValue
		}
		if int64(size) > maxFileSize {
			return schema.ReasonTooLarge
		}
	}
	return schema.ReasonValid
}

// asFloat widens the numeric kinds a decoded document can carry.
func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// decimalCount reports how many digits follow the decimal point in the
// shortest exact rendering of f.
func decimalCount(f float64) int {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s) - i - 1
	}
	return 0
}

// textContentLength counts the rune length of the text content of an HTML
// fragment, the way the rich editor measures it: tags contribute nothing,
// and the transient cursor anchor's placeholder is corrected off.
func textContentLength(html string) int {
	length := 0
	inTag := false
	for _, r := range html {
		switch {
		case inTag:
			if r == '>' {
				inTag = false
			}
		case r == '<':
			inTag = true
		default:
			length++
		}
	}
	if strings.Contains(html, cursorAnchorAttr) {
		length--
	}
	return length
}
