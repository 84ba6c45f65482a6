package openapi

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

var timeType = reflect.TypeOf(time.Time{})

// schemaRegistry turns Go values into schemas. Named struct types become
// components referenced by $ref; the same type is only generated once.
type schemaRegistry struct {
	names map[reflect.Type]string
	taken map[string]bool
}

func newSchemaRegistry() *schemaRegistry {
	return &schemaRegistry{
		names: make(map[reflect.Type]string),
		taken: make(map[string]bool),
	}
}

func (r *schemaRegistry) ref(example any, components openapi3.Schemas) *openapi3.SchemaRef {
	if example == nil {
		return openapi3.NewObjectSchema().NewRef()
	}
	return r.fromType(reflect.TypeOf(example), components)
}

func (r *schemaRegistry) fromType(t reflect.Type, components openapi3.Schemas) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.Pointer:
		inner := r.fromType(t.Elem(), components)
		if inner.Ref != "" {
			return &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{inner}, Nullable: true}}
		}
		inner.Value.Nullable = true
		return inner
	case reflect.String:
		return openapi3.NewStringSchema().NewRef()
	case reflect.Bool:
		return openapi3.NewBoolSchema().NewRef()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return openapi3.NewIntegerSchema().NewRef()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return openapi3.NewIntegerSchema().WithMin(0).NewRef()
	case reflect.Float32, reflect.Float64:
		return openapi3.NewFloat64Schema().NewRef()
	case reflect.Slice, reflect.Array:
		schema := openapi3.NewArraySchema()
		schema.Items = r.fromType(t.Elem(), components)
		return schema.NewRef()
	case reflect.Map:
		schema := openapi3.NewObjectSchema()
		schema.AdditionalProperties = openapi3.AdditionalProperties{Schema: r.fromType(t.Elem(), components)}
		return schema.NewRef()
	case reflect.Struct:
		if t == timeType {
			return openapi3.NewDateTimeSchema().NewRef()
		}
		return r.structRef(t, components)
	default:
		return openapi3.NewObjectSchema().NewRef()
	}
}

func (r *schemaRegistry) structRef(t reflect.Type, components openapi3.Schemas) *openapi3.SchemaRef {
	if t.Name() == "" {
		return r.structSchema(t, components).NewRef()
	}

	if name, ok := r.names[t]; ok {
		return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
	}

	name := t.Name()
	for i := 2; r.taken[name]; i++ {
		name = t.Name() + strconv.Itoa(i)
	}
	r.names[t] = name
	r.taken[name] = true

	components[name] = r.structSchema(t, components).NewRef()
	return openapi3.NewSchemaRef("#/components/schemas/"+name, nil)
}

// structSchema follows encoding/json: the json tag names the property, "-"
// hides it, and omitempty makes it optional.
func (r *schemaRegistry) structSchema(t reflect.Type, components openapi3.Schemas) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = field.Name
		}

		prop := r.fromType(field.Type, components)
		if desc := field.Tag.Get("doc"); desc != "" {
			if prop.Ref != "" {
				prop = &openapi3.SchemaRef{Value: &openapi3.Schema{AllOf: openapi3.SchemaRefs{prop}}}
			}
			prop.Value.Description = desc
		}
		schema.WithPropertyRef(name, prop)

		if !strings.Contains(opts, "omitempty") {
			schema.Required = append(schema.Required, name)
		}
	}
	return schema
}
