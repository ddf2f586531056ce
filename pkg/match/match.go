// Package match implements the trigger matching rules: regular-expression
// text patterns, prefixed text commands, and recursive structural matching
// over decoded JSON event payloads. All functions are pure and perform no I/O.
package match

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// ArrayMode selects how sequence patterns are compared by Matches.
type ArrayMode string

const (
	// ArrayAll requires the object sequence to have the same length as the
	// pattern and every element to match pairwise, in order.
	ArrayAll ArrayMode = "all"

	// ArrayContains requires every pattern element to match at least one
	// object element, in any position. Multiple pattern elements may be
	// satisfied by the same object element; see the package tests.
	ArrayContains ArrayMode = "contains"
)

// ErrUnknownArrayMode is returned when a sequence comparison is requested
// with an ArrayMode other than ArrayAll or ArrayContains.
var ErrUnknownArrayMode = errors.New("unknown array match mode")

// Pattern reports whether the regular expression is found anywhere in the
// lower-cased message text. The pattern is compiled on every call so that
// live edits to trigger configuration take effect immediately.
func Pattern(text, pattern string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}
	return re.MatchString(strings.ToLower(text)), nil
}

// Command reports whether the lower-cased message text invokes the given
// command. A match requires either one of the accepted prefixes immediately
// followed by the command string, or, when mustPrefix is false, the text
// starting directly with the command string. The command string itself is
// compared case-sensitively against the lower-cased text.
func Command(text, command string, prefixes []string, mustPrefix bool) bool {
	if command == "" {
		return false
	}
	lowered := strings.ToLower(text)
	for _, prefix := range prefixes {
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(lowered, prefix) && strings.HasPrefix(lowered[len(prefix):], command) {
			return true
		}
	}
	if !mustPrefix && strings.HasPrefix(lowered, command) {
		return true
	}
	return false
}

// Matches reports whether pattern is structurally contained in obj.
//
// Mappings require obj to be a mapping holding every pattern key with a
// recursively matching value. Sequences are compared according to mode.
// Everything else is compared for equality. Both values are expected to be
// the product of encoding/json decoding into interface{}, so numbers are
// float64 on both sides.
func Matches(obj, pattern any, mode ArrayMode) (bool, error) {
	switch want := pattern.(type) {
	case map[string]any:
		got, ok := obj.(map[string]any)
		if !ok {
			return false, nil
		}
		for key, value := range want {
			field, present := got[key]
			if !present {
				return false, nil
			}
			matched, err := Matches(field, value, mode)
			if err != nil {
				return false, err
			}
			if !matched {
				return false, nil
			}
		}
		return true, nil

	case []any:
		got, ok := obj.([]any)
		if !ok {
			return false, nil
		}
		switch mode {
		case ArrayAll:
			if len(got) != len(want) {
				return false, nil
			}
			for i := range want {
				matched, err := Matches(got[i], want[i], mode)
				if err != nil {
					return false, err
				}
				if !matched {
					return false, nil
				}
			}
			return true, nil

		case ArrayContains:
			for _, item := range want {
				found := false
				for _, candidate := range got {
					matched, err := Matches(candidate, item, mode)
					if err != nil {
						return false, err
					}
					if matched {
						found = true
						break
					}
				}
				if !found {
					return false, nil
				}
			}
			return true, nil

		default:
			return false, fmt.Errorf("%w: %q", ErrUnknownArrayMode, mode)
		}

	default:
		return reflect.DeepEqual(obj, pattern), nil
	}
}
