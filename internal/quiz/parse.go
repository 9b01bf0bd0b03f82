package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pavelanni/edumentor/internal/model"
)

// OptionCount is the number of answer options every quiz item carries.
const OptionCount = 4

// ExtractJSONArray returns the substring from the first '[' to the last ']'.
// Surrounding prose and code fences are discarded.
func ExtractJSONArray(raw string) (string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return "", ErrNoJSONArray
	}
	return raw[start : end+1], nil
}

// ParseItems extracts, decodes and validates quiz items from raw model output.
func ParseItems(raw string) ([]model.QuizItem, error) {
	blob, err := ExtractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(blob))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after array", ErrMalformedJSON)
	}

	elems, ok := data.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrNoValidItems)
	}
	items := ValidateItems(elems)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %d elements rejected", ErrNoValidItems, len(elems))
	}
	return items, nil
}

// ValidateItems keeps the elements that form a usable quiz item, in order.
// An element is accepted when it is an object with a scalar "q", an "a" array whose
// first four entries are scalars, and an integer "key" in [0,3]. Options beyond the
// fourth are dropped.
//
// Scalars are strings, numbers and booleans: a null, object or array question or
// option rejects the element. The key may be a JSON integer, an integral float such
// as 2.0, or a numeric string; fractional keys such as 2.7 are rejected, not truncated.
func ValidateItems(elems []any) []model.QuizItem {
	var items []model.QuizItem
	for _, el := range elems {
		item, err := validateItem(el)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items
}

func validateItem(el any) (model.QuizItem, error) {
	obj, ok := el.(map[string]any)
	if !ok {
		return model.QuizItem{}, errors.New("not an object")
	}
	rawQ, okQ := obj["q"]
	rawA, okA := obj["a"]
	rawKey, okKey := obj["key"]
	if !okQ || !okA || !okKey {
		return model.QuizItem{}, errors.New("missing field")
	}

	q, ok := scalarString(rawQ)
	if !ok {
		return model.QuizItem{}, errors.New("question is not a scalar")
	}

	arr, ok := rawA.([]any)
	if !ok || len(arr) < OptionCount {
		return model.QuizItem{}, errors.New("fewer than four options")
	}
	options := make([]string, OptionCount)
	for i := range options {
		s, ok := scalarString(arr[i])
		if !ok {
			return model.QuizItem{}, fmt.Errorf("option %d is not a scalar", i)
		}
		options[i] = s
	}

	key, err := toIndex(rawKey)
	if err != nil {
		return model.QuizItem{}, err
	}
	if key < 0 || key >= OptionCount {
		return model.QuizItem{}, fmt.Errorf("key %d out of range", key)
	}

	return model.QuizItem{Question: q, Options: options, Key: key}, nil
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// toIndex converts a JSON number or a numeric string to an int.
// Fractional values are rejected.
func toIndex(v any) (int, error) {
	var s string
	switch x := v.(type) {
	case json.Number:
		s = x.String()
	case string:
		s = strings.TrimSpace(x)
	default:
		return 0, fmt.Errorf("key has type %T", v)
	}

	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("key %q is not an integer", s)
	}
	return int(f), nil
}
