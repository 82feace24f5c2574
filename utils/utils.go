// Package utils turns what people type on a command line into names and values the
// save file understands.
package utils

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tqedit/types"
)

// Smash smashes "funny characters" (anything tricky to type into a command line)
// into '_'.
func Smash(in string) string {
	out := strings.Builder{}
	for _, c := range in {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			out.WriteRune(c)
		} else {
			out.WriteByte('_')
		}
	}
	return out.String()
}

// string matching functions, in strictly increasing order of desperation
var fuzzy = []func(input string, candidate string) bool{
	func(i string, c string) bool { return i == c },
	func(i string, c string) bool { return strings.EqualFold(i, c) },
	func(i string, c string) bool { return Smash(strings.ToUpper(i)) == Smash(strings.ToUpper(c)) },
	func(i string, c string) bool {
		return strings.HasPrefix(Smash(strings.ToUpper(c)), Smash(strings.ToUpper(i)))
	},
	func(i string, c string) bool {
		return strings.Contains(Smash(strings.ToUpper(c)), Smash(strings.ToUpper(i)))
	},
}

// FuzzyMatch picks the one candidate that input means, trying each matcher in turn.
// what names the kind of thing being matched, for the error.
func FuzzyMatch(candidates []string, input string, what string) (string, error) {
	for _, match := range fuzzy {
		matches := []string{}
		for _, c := range candidates {
			if match(input, c) {
				matches = append(matches, c)
			}
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			sort.Strings(matches)
			return "", types.NewError(types.KindAmbiguous, "match", -1,
				fmt.Sprintf("%v could be anything from {%v}", input, strings.Join(matches, ", ")))
		}
		return matches[0], nil
	}
	return "", types.NewError(types.KindNotFound, "match", -1, input+" could not be matched to a "+what)
}

// ParseValue reads text as a value of type t.  Streams are given in hex.
func ParseValue(text string, t types.VarType) (any, error) {
	switch t {
	case types.VT_INT:
		n, err := strconv.ParseInt(text, 0, 32)
		if err != nil {
			return nil, types.WrapError(types.KindEncoding, "parse", errors.Wrapf(err, "%q is not an integer", text))
		}
		return int32(n), nil
	case types.VT_FLOAT:
		f, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, types.WrapError(types.KindEncoding, "parse", errors.Wrapf(err, "%q is not a number", text))
		}
		return float32(f), nil
	case types.VT_STRING, types.VT_UTF16:
		return text, nil
	case types.VT_UID:
		id, err := uuid.Parse(text)
		if err != nil {
			return nil, types.WrapError(types.KindEncoding, "parse", errors.Wrapf(err, "%q is not a uid", text))
		}
		return id, nil
	case types.VT_STREAM:
		b, err := parse_hex(text)
		if err != nil {
			return nil, types.WrapError(types.KindEncoding, "parse", err)
		}
		return b, nil
	}
	return nil, types.NewError(types.KindEncoding, "parse", -1, fmt.Sprintf("can't parse a %v", t))
}

func parse_hex(text string) ([]byte, error) {
	text = strings.TrimPrefix(strings.ReplaceAll(text, " ", ""), "0x")
	if len(text)%2 != 0 {
		return nil, errors.Errorf("odd number of hex digits in %q", text)
	}
	out := make([]byte, len(text)/2)
	for i := range out {
		n, err := strconv.ParseUint(text[2*i:2*i+2], 16, 8)
		if err != nil {
			return nil, errors.Wrapf(err, "bad hex in %q", text)
		}
		out[i] = byte(n)
	}
	return out, nil
}

// FormatValue is the inverse of ParseValue, for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case []byte:
		return fmt.Sprintf("%x", x)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	}
	return fmt.Sprint(v)
}
