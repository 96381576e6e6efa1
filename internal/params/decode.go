// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package params

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// tagName is the struct tag naming the parameter a field decodes from.
const tagName = "param"

var validate = sync.OnceValue(func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get(tagName), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
})

// Decode copies the parameters of s into the fields of the struct pointed to
// by dst and validates the result with its `validate` tags.
//
// Fields are matched by their `param` tag; untagged fields are left alone.
// Values are converted from their string form. A tagged field missing from s,
// or a parameter no field takes, is an error.
func Decode(s *Set, dst any) error {
	var md mapstructure.Metadata
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:              tagName,
		WeaklyTypedInput:     true,
		IgnoreUntaggedFields: true,
		Metadata:             &md,
		Result:               dst,
	})
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}

	if err := dec.Decode(s.Map()); err != nil {
		var de *mapstructure.DecodeError
		if errors.As(err, &de) && de.Name() != "" {
			raw, _ := s.Get(de.Name())
			return &Error{Name: de.Name(), Value: raw, Err: errors.Unwrap(de)}
		}
		return fmt.Errorf("params: %w", err)
	}
	if unused := slices.Sorted(slices.Values(md.Unused)); len(unused) > 0 {
		raw, _ := s.Get(unused[0])
		return &Error{Name: unused[0], Value: raw, Err: errors.New("unknown")}
	}
	if unset := slices.Sorted(slices.Values(md.Unset)); len(unset) > 0 {
		return &Error{Name: unset[0], Err: errors.New("missing")}
	}

	return Validate(s, dst)
}

// Validate runs struct-tag validation on v and reports the first failure as
// an *Error naming the parameter. s supplies the offending raw value and may be nil.
func Validate(s *Set, v any) error {
	err := validate().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	raw, _ := s.Get(fe.Field())
	return &Error{Name: fe.Field(), Value: raw, Err: describe(fe)}
}

func describe(fe validator.FieldError) error {
	switch fe.Tag() {
	case "gt":
		return fmt.Errorf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Errorf("must be at least %s", fe.Param())
	case "lt":
		return fmt.Errorf("must be less than %s", fe.Param())
	case "lte":
		return fmt.Errorf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Errorf("must be one of [%s]", fe.Param())
	case "required":
		return errors.New("required")
	default:
		return fmt.Errorf("failed %q validation", fe.Tag())
	}
}
