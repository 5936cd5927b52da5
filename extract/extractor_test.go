// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"context"
	"testing"

	"github.com/substratelabs/atlas/artifact"
)

func extractSource(t *testing.T, relPath, src string) []*artifact.Artifact {
	t.Helper()
	arts, err := NewExtractor().ExtractFile(context.Background(), relPath, []byte(src))
	if err != nil {
		t.Fatalf("ExtractFile failed: %v", err)
	}
	for _, a := range arts {
		if err := a.Validate(); err != nil {
			t.Errorf("invalid artifact %s: %v", a.ID, err)
		}
	}
	return arts
}

func findByKindName(arts []*artifact.Artifact, kind artifact.Kind, name string) *artifact.Artifact {
	for _, a := range arts {
		if a.Kind == kind && a.Name == name {
			return a
		}
	}
	return nil
}

func countKind(arts []*artifact.Artifact, kind artifact.Kind) int {
	n := 0
	for _, a := range arts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

func TestExtract_Models(t *testing.T) {
	src := `from django.db import models
from django.core.validators import MinLengthValidator


class BaseRecord(models.Model):
    created_at = models.DateTimeField(auto_now_add=True)

    class Meta:
        abstract = True


class User(BaseRecord):
    name = models.CharField(max_length=100, validators=[MinLengthValidator(2)])
    team = models.ForeignKey("Team", on_delete=models.CASCADE)

    class Meta:
        db_table = "app_users"
`
	arts := extractSource(t, "app/models.py", src)

	base := findByKindName(arts, artifact.KindModel, "BaseRecord")
	if base == nil {
		t.Fatal("BaseRecord not classified as model")
	}
	if base.Confidence != artifact.ConfidenceCertain {
		t.Errorf("BaseRecord confidence = %s, want certain", base.Confidence)
	}
	if base.Meta.Model == nil || !base.Meta.Model.Abstract {
		t.Errorf("BaseRecord meta = %+v, want abstract", base.Meta.Model)
	}

	user := findByKindName(arts, artifact.KindModel, "User")
	if user == nil {
		t.Fatal("User not classified as model via local inheritance")
	}
	if user.Confidence != artifact.ConfidenceProbable {
		t.Errorf("User confidence = %s, want probable", user.Confidence)
	}
	if user.Meta.Model.DBTable != "app_users" {
		t.Errorf("db_table = %q, want app_users", user.Meta.Model.DBTable)
	}

	name := findByKindName(arts, artifact.KindModelField, "name")
	if name == nil {
		t.Fatal("name field not extracted")
	}
	if name.Meta.Field.FieldType != "models.CharField" {
		t.Errorf("field type = %q", name.Meta.Field.FieldType)
	}
	if len(name.Meta.Field.Validators) != 1 || name.Meta.Field.Validators[0] != "MinLengthValidator(2)" {
		t.Errorf("validators = %v", name.Meta.Field.Validators)
	}
	if name.Meta.Field.Kwargs["max_length"] != "100" {
		t.Errorf("kwargs = %v", name.Meta.Field.Kwargs)
	}

	team := findByKindName(arts, artifact.KindModelField, "team")
	if team == nil || team.Meta.Field.RelatedModel != "Team" {
		t.Fatalf("team field = %+v, want related model Team", team)
	}
}

func TestExtract_Serializers(t *testing.T) {
	src := `from rest_framework import serializers
from .models import User


class UserSerializer(serializers.ModelSerializer):
    email = serializers.EmailField()
    team = TeamSerializer(read_only=True)

    class Meta:
        model = User
        fields = ["id", "email", "team"]

    def validate_email(self, value):
        return value

    def validate(self, attrs):
        return attrs
`
	arts := extractSource(t, "app/serializers.py", src)

	ser := findByKindName(arts, artifact.KindSerializer, "UserSerializer")
	if ser == nil {
		t.Fatal("UserSerializer not classified")
	}
	if ser.Confidence != artifact.ConfidenceCertain {
		t.Errorf("confidence = %s, want certain", ser.Confidence)
	}
	if ser.Meta.Serializer.MetaModel != "User" {
		t.Errorf("meta model = %q, want User", ser.Meta.Serializer.MetaModel)
	}
	if len(ser.Meta.Serializer.MetaFields) != 3 {
		t.Errorf("meta fields = %v", ser.Meta.Serializer.MetaFields)
	}

	email := findByKindName(arts, artifact.KindSerializerField, "email")
	if email == nil || email.Meta.Field.FieldType != "serializers.EmailField" {
		t.Fatalf("email field = %+v", email)
	}
	nested := findByKindName(arts, artifact.KindSerializerField, "team")
	if nested == nil || nested.Meta.Field.RelatedModel != "TeamSerializer" {
		t.Fatalf("nested serializer field = %+v", nested)
	}

	if n := countKind(arts, artifact.KindSerializerValidator); n != 2 {
		t.Errorf("got %d validators, want 2", n)
	}
}

func TestExtract_Views(t *testing.T) {
	src := `from rest_framework import viewsets
from rest_framework.views import APIView


class UserViewSet(viewsets.ModelViewSet):
    queryset = User.objects.all()
    serializer_class = UserSerializer

    def get_serializer_class(self):
        if self.action == "list":
            return UserListSerializer
        return UserSerializer


class HealthView(APIView):
    pass
`
	arts := extractSource(t, "app/views.py", src)

	vs := findByKindName(arts, artifact.KindViewSet, "UserViewSet")
	if vs == nil {
		t.Fatal("UserViewSet not classified")
	}
	meta := vs.Meta.View
	if meta.SerializerClass != "UserSerializer" {
		t.Errorf("serializer_class = %q", meta.SerializerClass)
	}
	if meta.QuerysetModel != "User" {
		t.Errorf("queryset model = %q, want User", meta.QuerysetModel)
	}
	if len(meta.SerializerReturns) != 2 {
		t.Errorf("serializer returns = %v", meta.SerializerReturns)
	}

	if findByKindName(arts, artifact.KindAPIView, "HealthView") == nil {
		t.Error("HealthView not classified as api_view")
	}
}

func TestExtract_URLsAndRouter(t *testing.T) {
	src := `from django.urls import path, include
from rest_framework.routers import DefaultRouter

router = DefaultRouter()
router.register(r"users", UserViewSet, basename="user")

urlpatterns = [
    path("api/users/", UserViewSet.as_view(), name="user-list"),
    path("api/", include("api.urls")),
    include("legacy.urls"),
]
`
	arts := extractSource(t, "app/urls.py", src)

	container := findByKindName(arts, artifact.KindGeneric, "urlpatterns")
	if container == nil {
		t.Fatal("urlpatterns container missing")
	}

	userList := findByKindName(arts, artifact.KindURLPattern, "user-list")
	if userList == nil {
		t.Fatal("user-list pattern missing")
	}
	up := userList.Meta.URLPattern
	if up.Route != "api/users/" || up.Target != "UserViewSet" || up.IsInclude {
		t.Errorf("pattern meta = %+v", up)
	}
	if userList.Confidence != artifact.ConfidenceCertain {
		t.Errorf("confidence = %s, want certain", userList.Confidence)
	}

	inc := findByKindName(arts, artifact.KindURLPattern, "api/")
	if inc == nil {
		t.Fatal("include pattern missing")
	}
	if !inc.Meta.URLPattern.IsInclude || inc.Meta.URLPattern.Target != "api.urls" {
		t.Errorf("include meta = %+v", inc.Meta.URLPattern)
	}

	reg := findByKindName(arts, artifact.KindRouterRegister, "users")
	if reg == nil {
		t.Fatal("router register missing")
	}
	rr := reg.Meta.RouterRegister
	if rr.Handler != "UserViewSet" || rr.Basename != "user" {
		t.Errorf("register meta = %+v", rr)
	}
	if reg.Confidence != artifact.ConfidenceCertain {
		t.Errorf("register confidence = %s, want certain", reg.Confidence)
	}
}

func TestExtract_TasksAdminCache(t *testing.T) {
	src := `from celery import shared_task
from django.contrib import admin
import redis

client = redis.Redis(host="localhost", port=6379)


@shared_task
def send_welcome_email(user_id):
    pass


@admin.register(User)
class UserAdmin(admin.ModelAdmin):
    list_display = ["name"]


admin.site.register(Team, TeamAdmin)
`
	arts := extractSource(t, "app/admin.py", src)

	task := findByKindName(arts, artifact.KindTask, "send_welcome_email")
	if task == nil {
		t.Fatal("task not extracted")
	}
	if task.Confidence != artifact.ConfidenceProbable || task.Meta.Task.Decorator != "shared_task" {
		t.Errorf("task = %+v", task)
	}

	cache := findByKindName(arts, artifact.KindCacheClient, "client")
	if cache == nil {
		t.Fatal("cache client not extracted")
	}
	if cache.Meta.CacheClient.ClassName != "redis.Redis" {
		t.Errorf("cache meta = %+v", cache.Meta.CacheClient)
	}

	viaDec := findByKindName(arts, artifact.KindAdminRegister, "User")
	if viaDec == nil || !viaDec.Meta.AdminRegister.ViaDecorator || viaDec.Meta.AdminRegister.AdminClass != "UserAdmin" {
		t.Fatalf("decorator admin register = %+v", viaDec)
	}

	viaCall := findByKindName(arts, artifact.KindAdminRegister, "Team")
	if viaCall == nil || viaCall.Meta.AdminRegister.AdminClass != "TeamAdmin" {
		t.Fatalf("call admin register = %+v", viaCall)
	}

	// The decorated admin class must not also surface as generic.
	if findByKindName(arts, artifact.KindGeneric, "UserAdmin") != nil {
		t.Error("UserAdmin should not be a generic artifact")
	}
}

func TestExtract_Settings(t *testing.T) {
	src := `INSTALLED_APPS = ["django.contrib.admin", "app"]
DATABASES = {"default": {"ENGINE": "django.db.backends.postgresql"}}
DEBUG = True
CELERY_BROKER_URL = "redis://localhost:6379/0"
local_helper = 1
`
	arts := extractSource(t, "config/settings.py", src)

	apps := findByKindName(arts, artifact.KindSettingsEntry, "INSTALLED_APPS")
	if apps == nil {
		t.Fatal("INSTALLED_APPS missing")
	}
	if apps.Meta.Setting.ValueKind != "list" || len(apps.Meta.Setting.Items) != 2 {
		t.Errorf("INSTALLED_APPS meta = %+v", apps.Meta.Setting)
	}

	dbs := findByKindName(arts, artifact.KindSettingsEntry, "DATABASES")
	if dbs == nil || dbs.Meta.Setting.ValueKind != "dict" {
		t.Fatalf("DATABASES = %+v", dbs)
	}

	broker := findByKindName(arts, artifact.KindSettingsEntry, "CELERY_BROKER_URL")
	if broker == nil || broker.Meta.Setting.Scalar != "redis://localhost:6379/0" {
		t.Fatalf("CELERY_BROKER_URL = %+v", broker)
	}

	if findByKindName(arts, artifact.KindSettingsEntry, "local_helper") != nil {
		t.Error("untracked assignment should not be a settings entry")
	}
}

func TestExtract_Requirements(t *testing.T) {
	src := `# pinned deps
django>=4.2,<5
djangorestframework==3.15.2
celery[redis]~=5.3
-r base.txt

redis
`
	arts := extractSource(t, "requirements.txt", src)

	if n := countKind(arts, artifact.KindRequirement); n != 4 {
		t.Fatalf("got %d requirements, want 4: %+v", n, arts)
	}
	celery := findByKindName(arts, artifact.KindRequirement, "celery")
	if celery == nil || celery.Meta.Requirement.Spec != "celery[redis]~=5.3" {
		t.Fatalf("celery = %+v", celery)
	}
	if dj := findByKindName(arts, artifact.KindRequirement, "django"); dj.Anchor.StartLine != 2 {
		t.Errorf("django anchor line = %d, want 2", dj.Anchor.StartLine)
	}
}

func TestExtract_ParseErrorArtifact(t *testing.T) {
	arts := extractSource(t, "app/broken.py", "class User(models.Model:\n    pass\n")
	if countKind(arts, artifact.KindParseError) == 0 {
		t.Fatal("expected parse_error artifact")
	}
}

func TestExtract_GenericFallback(t *testing.T) {
	arts := extractSource(t, "app/misc.py", "class Widget(SomethingUnknown):\n    pass\n")
	w := findByKindName(arts, artifact.KindGeneric, "Widget")
	if w == nil {
		t.Fatal("Widget should fall back to generic")
	}
	if w.Confidence != artifact.ConfidenceHeuristic {
		t.Errorf("confidence = %s, want heuristic", w.Confidence)
	}
}

func TestExtract_HeuristicAliasFallback(t *testing.T) {
	arts := extractSource(t, "app/models.py", "class User(Model):\n    pass\n")
	u := findByKindName(arts, artifact.KindModel, "User")
	if u == nil {
		t.Fatal("User should classify as model by bare name")
	}
	if u.Confidence != artifact.ConfidenceHeuristic {
		t.Errorf("confidence = %s, want heuristic", u.Confidence)
	}
}

func TestExtract_NonPythonSkipped(t *testing.T) {
	arts := extractSource(t, "README.md", "# readme")
	if len(arts) != 0 {
		t.Errorf("got %d artifacts for non-source file", len(arts))
	}
}
