// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package artifact

import "strings"

// Meta is the kind-specific payload of an artifact, modeled as a tagged
// union: exactly one variant pointer is set for a classified artifact. The
// Extra map is the generic fallback for constructs without a dedicated
// variant, kept for forward compatibility.
type Meta struct {
	Model          *ModelMeta          `json:"model,omitempty"`
	Field          *FieldMeta          `json:"field,omitempty"`
	Serializer     *SerializerMeta     `json:"serializer,omitempty"`
	View           *ViewMeta           `json:"view,omitempty"`
	URLPattern     *URLPatternMeta     `json:"url_pattern,omitempty"`
	RouterRegister *RouterRegisterMeta `json:"router_register,omitempty"`
	Task           *TaskMeta           `json:"task,omitempty"`
	Setting        *SettingMeta        `json:"setting,omitempty"`
	AppConfig      *AppConfigMeta      `json:"app_config,omitempty"`
	CacheClient    *CacheClientMeta    `json:"cache_client,omitempty"`
	AdminRegister  *AdminRegisterMeta  `json:"admin_register,omitempty"`
	ParseError     *ParseErrorMeta     `json:"parse_error,omitempty"`
	Requirement    *RequirementMeta    `json:"requirement,omitempty"`

	// Extra holds payload fields for kinds without a dedicated variant.
	Extra map[string]string `json:"extra,omitempty"`
}

// ModelMeta describes an ORM model class.
type ModelMeta struct {
	// Bases are the base-class tokens as written in source.
	Bases []string `json:"bases"`

	// Abstract is true when Meta.abstract = True was declared.
	Abstract bool `json:"abstract,omitempty"`

	// DBTable is the explicit Meta.db_table value when declared.
	DBTable string `json:"db_table,omitempty"`
}

// FieldMeta describes a declared model or serializer field.
type FieldMeta struct {
	// FieldType is the constructor token, e.g. "models.ForeignKey" or
	// "serializers.CharField".
	FieldType string `json:"field_type"`

	// RelatedModel is the referenced model token for relation-like fields
	// (ForeignKey, OneToOneField, ManyToManyField). Empty otherwise.
	RelatedModel string `json:"related_model,omitempty"`

	// Validators lists validator references passed via validators=[...].
	Validators []string `json:"validators,omitempty"`

	// Kwargs holds the remaining keyword arguments as written.
	Kwargs map[string]string `json:"kwargs,omitempty"`
}

// SerializerMeta describes a serializer class.
type SerializerMeta struct {
	Bases []string `json:"bases"`

	// MetaModel is the token assigned to the inner Meta.model attribute.
	MetaModel string `json:"meta_model,omitempty"`

	// MetaFields is the inner Meta.fields list when declared as literals.
	MetaFields []string `json:"meta_fields,omitempty"`
}

// ViewMeta describes a viewset or API view class.
type ViewMeta struct {
	Bases []string `json:"bases"`

	// SerializerClass is the explicit serializer_class attribute token.
	SerializerClass string `json:"serializer_class,omitempty"`

	// SerializerReturns are tokens returned by get_serializer_class.
	SerializerReturns []string `json:"serializer_returns,omitempty"`

	// QuerysetModel is the model token inferred from a queryset attribute
	// of the form Model.objects...., when present.
	QuerysetModel string `json:"queryset_model,omitempty"`
}

// URLPatternMeta describes one route entry inside a urlpatterns list.
type URLPatternMeta struct {
	// Route is the route string literal, e.g. "api/users/".
	Route string `json:"route"`

	// Target is the second-argument token: a view reference, an as_view()
	// call target, or the include() argument.
	Target string `json:"target,omitempty"`

	// RouteName is the name= keyword value when present.
	RouteName string `json:"route_name,omitempty"`

	// IsInclude is true for include(...) entries.
	IsInclude bool `json:"is_include,omitempty"`
}

// RouterRegisterMeta describes a router.register(prefix, viewset, ...) call.
type RouterRegisterMeta struct {
	Prefix   string `json:"prefix"`
	Handler  string `json:"handler"`
	Basename string `json:"basename,omitempty"`
}

// TaskMeta describes a decorated background-task function.
type TaskMeta struct {
	// Decorator is the matched decorator token, e.g. "shared_task" or
	// "app.task".
	Decorator string `json:"decorator"`
}

// SettingMeta describes one tracked settings-module entry.
type SettingMeta struct {
	// ValueKind is "list", "dict", or "scalar".
	ValueKind string `json:"value_kind"`

	// Items holds list elements or dict keys, best effort.
	Items []string `json:"items,omitempty"`

	// Scalar is the raw scalar text for ValueKind "scalar".
	Scalar string `json:"scalar,omitempty"`
}

// AppConfigMeta describes an AppConfig subclass.
type AppConfigMeta struct {
	Bases []string `json:"bases"`

	// AppName is the name attribute value when declared.
	AppName string `json:"app_name,omitempty"`
}

// CacheClientMeta describes a cache-client instantiation site.
type CacheClientMeta struct {
	// ClassName is the constructor token, e.g. "redis.Redis".
	ClassName string `json:"class_name"`

	// Args are the positional-argument tokens as written.
	Args []string `json:"args,omitempty"`
}

// AdminRegisterMeta describes an admin registration.
type AdminRegisterMeta struct {
	Model      string `json:"model"`
	AdminClass string `json:"admin_class,omitempty"`

	// ViaDecorator is true for @admin.register(Model) class decorators.
	ViaDecorator bool `json:"via_decorator,omitempty"`
}

// ParseErrorMeta carries the syntax-error detail for a parse_error artifact.
type ParseErrorMeta struct {
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
	Col     int    `json:"col,omitempty"`
}

// RequirementMeta describes one dependency-manifest line.
type RequirementMeta struct {
	// Spec is the full requirement line, e.g. "django>=4.2,<5".
	Spec string `json:"spec"`
}

// Text flattens the populated meta variant into a single searchable string.
// It backs the mentions_field_string heuristic and the find_contains query;
// the output is not stable across versions and must not be parsed.
func (m Meta) Text() string {
	var parts []string
	add := func(ss ...string) {
		for _, s := range ss {
			if s != "" {
				parts = append(parts, s)
			}
		}
	}
	switch {
	case m.Model != nil:
		add(m.Model.Bases...)
		add(m.Model.DBTable)
	case m.Field != nil:
		add(m.Field.FieldType, m.Field.RelatedModel)
		add(m.Field.Validators...)
		for k, v := range m.Field.Kwargs {
			add(k, v)
		}
	case m.Serializer != nil:
		add(m.Serializer.Bases...)
		add(m.Serializer.MetaModel)
		add(m.Serializer.MetaFields...)
	case m.View != nil:
		add(m.View.Bases...)
		add(m.View.SerializerClass, m.View.QuerysetModel)
		add(m.View.SerializerReturns...)
	case m.URLPattern != nil:
		add(m.URLPattern.Route, m.URLPattern.Target, m.URLPattern.RouteName)
	case m.RouterRegister != nil:
		add(m.RouterRegister.Prefix, m.RouterRegister.Handler, m.RouterRegister.Basename)
	case m.Task != nil:
		add(m.Task.Decorator)
	case m.Setting != nil:
		add(m.Setting.Scalar)
		add(m.Setting.Items...)
	case m.AppConfig != nil:
		add(m.AppConfig.Bases...)
		add(m.AppConfig.AppName)
	case m.CacheClient != nil:
		add(m.CacheClient.ClassName)
		add(m.CacheClient.Args...)
	case m.AdminRegister != nil:
		add(m.AdminRegister.Model, m.AdminRegister.AdminClass)
	case m.ParseError != nil:
		add(m.ParseError.Message)
	case m.Requirement != nil:
		add(m.Requirement.Spec)
	default:
		for k, v := range m.Extra {
			add(k, v)
		}
	}
	return strings.Join(parts, " ")
}
