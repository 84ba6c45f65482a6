package openapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"
)

// Document builds an OpenAPI 3 description of the API as routes are
// registered. It is safe for concurrent use.
type Document struct {
	mu      sync.RWMutex
	spec    *openapi3.T
	schemas *schemaRegistry
}

func New(title, version string) *Document {
	return &Document{
		spec: &openapi3.T{
			OpenAPI: "3.0.3",
			Info: &openapi3.Info{
				Title:   title,
				Version: version,
			},
			Paths: openapi3.NewPaths(),
			Components: &openapi3.Components{
				Schemas:         make(openapi3.Schemas),
				SecuritySchemes: make(openapi3.SecuritySchemes),
			},
		},
		schemas: newSchemaRegistry(),
	}
}

func (d *Document) Description(desc string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spec.Info.Description = desc
	return d
}

func (d *Document) Server(url, description string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spec.Servers = append(d.spec.Servers, &openapi3.Server{URL: url, Description: description})
	return d
}

func (d *Document) Tag(name, description string) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spec.Tags = append(d.spec.Tags, &openapi3.Tag{Name: name, Description: description})
	return d
}

func (d *Document) BearerAuth(name, description string) *Document {
	return d.securityScheme(name, &openapi3.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
		Description:  description,
	})
}

func (d *Document) CookieAuth(name, cookieName, description string) *Document {
	return d.securityScheme(name, &openapi3.SecurityScheme{
		Type:        "apiKey",
		In:          "cookie",
		Name:        cookieName,
		Description: description,
	})
}

func (d *Document) securityScheme(name string, scheme *openapi3.SecurityScheme) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.spec.Components.SecuritySchemes[name] = &openapi3.SecuritySchemeRef{Value: scheme}
	return d
}

// Route starts documenting an operation. Nothing is recorded until Build.
func (d *Document) Route(method, path string) *RouteBuilder {
	return &RouteBuilder{
		doc:       d,
		method:    strings.ToUpper(method),
		path:      echoPathToOpenAPI(path),
		operation: &openapi3.Operation{Responses: openapi3.NewResponses()},
	}
}

func (d *Document) schemaFor(example any) *openapi3.SchemaRef {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.schemas.ref(example, d.spec.Components.Schemas)
}

func (d *Document) addOperation(method, path string, op *openapi3.Operation) {
	d.mu.Lock()
	defer d.mu.Unlock()

	item := d.spec.Paths.Find(path)
	if item == nil {
		item = &openapi3.PathItem{}
		d.spec.Paths.Set(path, item)
	}
	item.SetOperation(method, op)
}

func (d *Document) Spec() *openapi3.T {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.spec
}

// Validate checks the document against the OpenAPI 3 schema rules.
func (d *Document) Validate() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.spec.Validate(context.Background())
}

func (d *Document) JSON() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return json.MarshalIndent(d.spec, "", "  ")
}

func (d *Document) YAML() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	intermediate, err := d.spec.MarshalYAML()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(intermediate)
}

func (d *Document) JSONHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := d.JSON()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render API document")
		}
		return c.JSONBlob(http.StatusOK, data)
	}
}

func (d *Document) YAMLHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		data, err := d.YAML()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to render API document")
		}
		return c.Blob(http.StatusOK, "application/yaml", data)
	}
}

func echoPathToOpenAPI(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if name, ok := strings.CutPrefix(part, ":"); ok {
			parts[i] = "{" + name + "}"
		}
	}
	return strings.Join(parts, "/")
}
