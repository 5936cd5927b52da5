// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package relate

import (
	"testing"

	"github.com/substratelabs/atlas/artifact"
)

func model(name, file string, start, end int) *artifact.Artifact {
	a := artifact.New(artifact.KindModel, name, file,
		artifact.Anchor{StartLine: start, StartCol: 1, EndLine: end, EndCol: 1},
		artifact.ConfidenceCertain)
	a.Meta.Model = &artifact.ModelMeta{Bases: []string{"models.Model"}}
	return a
}

func modelField(name, file string, line int) *artifact.Artifact {
	a := artifact.New(artifact.KindModelField, name, file,
		artifact.Anchor{StartLine: line, StartCol: 5, EndLine: line, EndCol: 40},
		artifact.ConfidenceCertain)
	a.Meta.Field = &artifact.FieldMeta{FieldType: "models.CharField"}
	return a
}

func serializer(name, file, metaModel string, line int) *artifact.Artifact {
	a := artifact.New(artifact.KindSerializer, name, file,
		artifact.Anchor{StartLine: line, StartCol: 1, EndLine: line + 10, EndCol: 1},
		artifact.ConfidenceCertain)
	a.Meta.Serializer = &artifact.SerializerMeta{MetaModel: metaModel}
	return a
}

func viewset(name, file, serializerClass string, line int) *artifact.Artifact {
	a := artifact.New(artifact.KindViewSet, name, file,
		artifact.Anchor{StartLine: line, StartCol: 1, EndLine: line + 10, EndCol: 1},
		artifact.ConfidenceCertain)
	a.Meta.View = &artifact.ViewMeta{SerializerClass: serializerClass}
	return a
}

func urlPattern(route, target, file string, line int, isInclude bool) *artifact.Artifact {
	a := artifact.New(artifact.KindURLPattern, route, file,
		artifact.Anchor{StartLine: line, StartCol: 5, EndLine: line, EndCol: 60},
		artifact.ConfidenceCertain)
	a.Meta.URLPattern = &artifact.URLPatternMeta{Route: route, Target: target, IsInclude: isInclude}
	return a
}

func findRel(rels []*artifact.Relationship, relType artifact.RelType, fromName, toName string) *artifact.Relationship {
	for _, r := range rels {
		if r.Type == relType && r.From.Name == fromName && r.To.Name == toName {
			return r
		}
	}
	return nil
}

func validateAll(t *testing.T, rels []*artifact.Relationship) {
	t.Helper()
	seen := map[string]bool{}
	for _, r := range rels {
		if err := r.Validate(); err != nil {
			t.Errorf("invalid relationship: %v", err)
		}
		if seen[r.ID] {
			t.Errorf("duplicate rel_id %s", r.ID)
		}
		seen[r.ID] = true
	}
}

func TestBuild_DeclaresAndSerializes(t *testing.T) {
	arts := []*artifact.Artifact{
		model("User", "app/models.py", 3, 12),
		modelField("name", "app/models.py", 4),
		modelField("email", "app/models.py", 5),
		serializer("UserSerializer", "app/serializers.py", "User", 5),
	}

	rels := NewBuilder().Build(arts)
	validateAll(t, rels)

	decl := findRel(rels, artifact.RelDeclares, "User", "name")
	if decl == nil {
		t.Fatal("declares edge User -> name missing")
	}
	if decl.Confidence != artifact.ConfidenceCertain {
		t.Errorf("declares confidence = %s", decl.Confidence)
	}

	ser := findRel(rels, artifact.RelSerializesModel, "UserSerializer", "User")
	if ser == nil {
		t.Fatal("serializes_model edge missing")
	}
	if !ser.To.Resolved() || ser.Confidence != artifact.ConfidenceCertain {
		t.Errorf("serializes_model = %+v", ser)
	}
}

func TestBuild_UnresolvedReference(t *testing.T) {
	arts := []*artifact.Artifact{
		serializer("GhostSerializer", "app/serializers.py", "Ghost", 3),
	}

	rels := NewBuilder().Build(arts)
	validateAll(t, rels)

	ghost := findRel(rels, artifact.RelSerializesModel, "GhostSerializer", "Ghost")
	if ghost == nil {
		t.Fatal("unresolved edge missing")
	}
	if ghost.To.Resolved() {
		t.Error("endpoint should be unresolved")
	}
	if ghost.To.Type != artifact.KindUnresolvedRef {
		t.Errorf("endpoint type = %s, want unresolved_ref", ghost.To.Type)
	}
	if ghost.Confidence != artifact.ConfidenceHeuristic {
		t.Errorf("confidence = %s, want heuristic", ghost.Confidence)
	}
	if ghost.To.Key() != "name:Ghost" {
		t.Errorf("endpoint key = %q", ghost.To.Key())
	}
}

func TestBuild_RoutesAndRegisters(t *testing.T) {
	vs := viewset("UserViewSet", "app/views.py", "UserSerializer", 4)
	reg := artifact.New(artifact.KindRouterRegister, "users", "app/urls.py",
		artifact.Anchor{StartLine: 5, StartCol: 1, EndLine: 5, EndCol: 50},
		artifact.ConfidenceCertain)
	reg.Meta.RouterRegister = &artifact.RouterRegisterMeta{Prefix: "users", Handler: "UserViewSet"}

	arts := []*artifact.Artifact{
		vs,
		serializer("UserSerializer", "app/serializers.py", "User", 5),
		urlPattern("api/users/", "UserViewSet", "app/urls.py", 8, false),
		urlPattern("api/", "api.urls", "app/urls.py", 9, true),
		reg,
	}

	rels := NewBuilder().Build(arts)
	validateAll(t, rels)

	route := findRel(rels, artifact.RelRoutesTo, "api/users/", "UserViewSet")
	if route == nil || !route.To.Resolved() || route.Confidence != artifact.ConfidenceCertain {
		t.Fatalf("routes_to = %+v", route)
	}

	inc := findRel(rels, artifact.RelRoutesTo, "api/", "api.urls")
	if inc == nil || inc.To.Resolved() || inc.Confidence != artifact.ConfidenceHeuristic {
		t.Fatalf("include routes_to = %+v", inc)
	}

	registers := findRel(rels, artifact.RelRegisters, "users", "UserViewSet")
	if registers == nil || !registers.To.Resolved() {
		t.Fatalf("registers = %+v", registers)
	}

	uses := findRel(rels, artifact.RelViewUsesSerializer, "UserViewSet", "UserSerializer")
	if uses == nil || uses.Confidence != artifact.ConfidenceCertain {
		t.Fatalf("view_uses_serializer = %+v", uses)
	}
}

func TestBuild_AmbiguousDowngrades(t *testing.T) {
	arts := []*artifact.Artifact{
		model("User", "app_a/models.py", 3, 10),
		model("User", "app_b/models.py", 3, 10),
		serializer("UserSerializer", "app/serializers.py", "User", 5),
	}

	rels := NewBuilder().Build(arts)
	validateAll(t, rels)

	var hits []*artifact.Relationship
	for _, r := range rels {
		if r.Type == artifact.RelSerializesModel {
			hits = append(hits, r)
		}
	}
	if len(hits) != 2 {
		t.Fatalf("got %d serializes_model edges, want 2", len(hits))
	}
	for _, r := range hits {
		if r.Confidence != artifact.ConfidenceProbable {
			t.Errorf("ambiguous edge confidence = %s, want probable", r.Confidence)
		}
	}
}

func TestBuild_MentionsOptIn(t *testing.T) {
	user := model("User", "app/models.py", 3, 12)
	email := modelField("email", "app/models.py", 5)
	ser := serializer("UserSerializer", "app/serializers.py", "User", 5)
	ser.Meta.Serializer.MetaFields = []string{"id", "email"}

	arts := []*artifact.Artifact{user, email, ser}

	for _, r := range NewBuilder().Build(arts) {
		if r.Type == artifact.RelMentionsFieldString {
			t.Fatal("mentions edge emitted while disabled")
		}
	}

	rels := NewBuilder(WithMentions(true)).Build(arts)
	validateAll(t, rels)
	mention := findRel(rels, artifact.RelMentionsFieldString, "UserSerializer", "email")
	if mention == nil {
		t.Fatal("mentions edge missing when enabled")
	}
	if mention.Confidence != artifact.ConfidenceHeuristic {
		t.Errorf("mentions confidence = %s, want heuristic", mention.Confidence)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"UserViewSet", "UserViewSet"},
		{"views.UserViewSet", "UserViewSet"},
		{"UserViewSet.as_view()", "as_view"},
		{`"User"`, "User"},
		{"app.serializers.UserSerializer", "UserSerializer"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
