// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifact

import (
	"errors"
	"strings"
	"testing"
)

func TestMakeID(t *testing.T) {
	anchor := Anchor{StartLine: 10, StartCol: 1, EndLine: 25, EndCol: 1}
	id := MakeID(KindModel, "User", "app/models.py", anchor)
	want := "model:User:app/models.py:10-25"
	if id != want {
		t.Errorf("MakeID = %q, want %q", id, want)
	}
}

func TestAnchor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		anchor  Anchor
		wantErr bool
	}{
		{"valid single line", Anchor{StartLine: 5, EndLine: 5}, false},
		{"valid range", Anchor{StartLine: 5, EndLine: 10}, false},
		{"end before start", Anchor{StartLine: 10, EndLine: 5}, true},
		{"zero start line", Anchor{StartLine: 0, EndLine: 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.anchor.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidAnchor) {
				t.Errorf("error %v is not ErrInvalidAnchor", err)
			}
		})
	}
}

func TestAnchor_Overlaps(t *testing.T) {
	a := Anchor{StartLine: 10, EndLine: 20}

	tests := []struct {
		name       string
		start, end int
		want       bool
	}{
		{"fully inside", 12, 15, true},
		{"touches start", 5, 10, true},
		{"touches end", 20, 30, true},
		{"contains anchor", 1, 100, true},
		{"before", 1, 9, false},
		{"after", 21, 30, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("Overlaps(%d, %d) = %v, want %v", tt.start, tt.end, got, tt.want)
			}
		})
	}
}

func TestArtifact_Validate(t *testing.T) {
	valid := New(KindModel, "User", "app/models.py", Anchor{StartLine: 10, EndLine: 25}, ConfidenceCertain)
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid artifact: %v", err)
	}

	t.Run("rejects unknown kind", func(t *testing.T) {
		a := *valid
		a.Kind = "banana"
		if err := a.Validate(); !errors.Is(err, ErrInvalidKind) {
			t.Errorf("error = %v, want ErrInvalidKind", err)
		}
	})

	t.Run("rejects empty name", func(t *testing.T) {
		a := *valid
		a.Name = ""
		if err := a.Validate(); !errors.Is(err, ErrEmptyName) {
			t.Errorf("error = %v, want ErrEmptyName", err)
		}
	})

	t.Run("rejects bad confidence", func(t *testing.T) {
		a := *valid
		a.Confidence = "very sure"
		if err := a.Validate(); !errors.Is(err, ErrInvalidConfidence) {
			t.Errorf("error = %v, want ErrInvalidConfidence", err)
		}
	})

	t.Run("rejects stale id", func(t *testing.T) {
		a := *valid
		a.Anchor.EndLine = 30
		if err := a.Validate(); err == nil {
			t.Error("Validate() = nil, want mismatch error for stale id")
		}
	})

	t.Run("rejects unresolved_ref as artifact kind", func(t *testing.T) {
		a := *valid
		a.Kind = KindUnresolvedRef
		if err := a.Validate(); !errors.Is(err, ErrInvalidKind) {
			t.Errorf("error = %v, want ErrInvalidKind", err)
		}
	})
}

func TestMeta_Text(t *testing.T) {
	m := Meta{Field: &FieldMeta{
		FieldType:    "models.ForeignKey",
		RelatedModel: "Organization",
		Validators:   []string{"validate_slug"},
	}}

	text := m.Text()
	for _, want := range []string{"models.ForeignKey", "Organization", "validate_slug"} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() = %q, missing %q", text, want)
		}
	}
}

func TestMeta_Text_ExtraFallback(t *testing.T) {
	m := Meta{Extra: map[string]string{"note": "unclassified construct"}}
	if !strings.Contains(m.Text(), "unclassified construct") {
		t.Errorf("Text() = %q, missing extra payload", m.Text())
	}
}
