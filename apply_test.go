package contentbase

import (
	"errors"
	"testing"
)

type applyDoc struct {
	Name    string
	Tags    []string
	Meta    map[string]string
	Counter int
	hidden  string
}

func TestDeepEqual_EmptyEqualsNil(t *testing.T) {
	a := &applyDoc{Name: "x", Tags: nil, Meta: map[string]string{}}
	b := &applyDoc{Name: "x", Tags: []string{}, Meta: nil}
	if !DeepEqual(a, b) {
		t.Error("nil and empty collections should compare equal")
	}

	b.Tags = []string{"t"}
	if DeepEqual(a, b) {
		t.Error("different tags compared equal")
	}
}

func TestDeepCopy_IsIndependent(t *testing.T) {
	orig := &applyDoc{Name: "x", Tags: []string{"a"}, Meta: map[string]string{"k": "v"}}
	cp, err := DeepCopy(orig)
	if err != nil {
		t.Fatalf("DeepCopy failed: %v", err)
	}

	cp.Tags[0] = "changed"
	cp.Meta["k"] = "changed"
	if orig.Tags[0] != "a" || orig.Meta["k"] != "v" {
		t.Errorf("copy shares memory with original: %+v", orig)
	}

	var nilDoc *applyDoc
	if cp, err := DeepCopy(nilDoc); cp != nil || err != nil {
		t.Errorf("DeepCopy(nil) = (%v, %v)", cp, err)
	}
}

func TestApplyChanges(t *testing.T) {
	dst := &applyDoc{Name: "old", Tags: []string{"a"}, Counter: 5, hidden: "keep"}
	src := &applyDoc{Name: "new", Tags: []string{"a", "b"}, Counter: 9, hidden: "ignored"}

	changed, err := ApplyChanges(dst, src, "Counter")
	if err != nil {
		t.Fatalf("ApplyChanges failed: %v", err)
	}
	if !changed {
		t.Fatal("expected changes")
	}
	if dst.Name != "new" || len(dst.Tags) != 2 {
		t.Errorf("fields not applied: %+v", dst)
	}
	if dst.Counter != 5 {
		t.Errorf("ignored field overwritten: Counter = %d", dst.Counter)
	}
	if dst.hidden != "keep" {
		t.Errorf("unexported field overwritten: %q", dst.hidden)
	}

	src.Tags[0] = "mutated"
	if dst.Tags[0] != "a" {
		t.Error("applied slice shares memory with src")
	}

	changed, err = ApplyChanges(dst, dst, "Counter")
	if err != nil || changed {
		t.Errorf("self apply = (%v, %v), want (false, nil)", changed, err)
	}

	src.Meta = nil
	dst.Meta = map[string]string{"k": "v"}
	if _, err := ApplyChanges(dst, src); err != nil {
		t.Fatalf("ApplyChanges failed: %v", err)
	}
	if dst.Meta != nil {
		t.Errorf("nil field not applied: %v", dst.Meta)
	}
}

func TestApplyChanges_RejectsNonStruct(t *testing.T) {
	a, b := 1, 2
	if _, err := ApplyChanges(&a, &b); !errors.Is(err, ErrInvalidData) {
		t.Errorf("expected ErrInvalidData, got %v", err)
	}
}
