package contentbase

import (
	"fmt"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/mitchellh/copystructure"
)

// equalOpts treat nil and empty collections alike, since a value that went
// through JSON may come back with either
var equalOpts = []cmp.Option{
	cmpopts.EquateEmpty(),
	cmp.Exporter(func(reflect.Type) bool { return true }),
}

// DeepEqual reports whether a and b hold the same document value
func DeepEqual(a, b any) bool {
	return cmp.Equal(a, b, equalOpts...)
}

// DeepCopy returns an independent copy of v
func DeepCopy[T any](v *T) (*T, error) {
	if v == nil {
		return nil, nil
	}
	c, err := copystructure.Copy(v)
	if err != nil {
		return nil, fmt.Errorf("failed to copy %T: %w", v, err)
	}
	return c.(*T), nil
}

// ApplyChanges copies every exported field of src that differs from dst onto
// dst and reports whether anything changed. Fields named in ignore are left
// alone. T must be a struct type.
func ApplyChanges[T any](dst, src *T, ignore ...string) (bool, error) {
	if dst == nil || src == nil {
		return false, WithContext(ErrInvalidData, map[string]interface{}{"reason": "nil value"})
	}

	dv := reflect.ValueOf(dst).Elem()
	sv := reflect.ValueOf(src).Elem()
	if dv.Kind() != reflect.Struct {
		return false, WithContext(ErrInvalidData, map[string]interface{}{
			"type":   dv.Type().String(),
			"reason": "ApplyChanges needs a struct",
		})
	}

	skip := make(map[string]bool, len(ignore))
	for _, name := range ignore {
		skip[name] = true
	}

	changed := false
	for i := 0; i < dv.NumField(); i++ {
		field := dv.Type().Field(i)
		if !field.IsExported() || skip[field.Name] {
			continue
		}

		from := sv.Field(i).Interface()
		if DeepEqual(dv.Field(i).Interface(), from) {
			continue
		}

		copied, err := copystructure.Copy(from)
		if err != nil {
			return changed, fmt.Errorf("failed to copy field %s: %w", field.Name, err)
		}
		if copied == nil {
			dv.Field(i).Set(reflect.Zero(field.Type))
		} else {
			dv.Field(i).Set(reflect.ValueOf(copied))
		}
		changed = true
	}
	return changed, nil
}
