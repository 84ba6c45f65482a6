package openapi

import (
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
)

type RouteBuilder struct {
	doc       *Document
	method    string
	path      string
	operation *openapi3.Operation
}

func (rb *RouteBuilder) Summary(summary string) *RouteBuilder {
	rb.operation.Summary = summary
	return rb
}

func (rb *RouteBuilder) Description(description string) *RouteBuilder {
	rb.operation.Description = description
	return rb
}

func (rb *RouteBuilder) OperationID(id string) *RouteBuilder {
	rb.operation.OperationID = id
	return rb
}

func (rb *RouteBuilder) Tags(tags ...string) *RouteBuilder {
	rb.operation.Tags = append(rb.operation.Tags, tags...)
	return rb
}

// Body documents a required JSON request body shaped like example.
func (rb *RouteBuilder) Body(example any, description string) *RouteBuilder {
	rb.operation.RequestBody = &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchemaRef(rb.doc.schemaFor(example)),
		},
	}
	return rb
}

func (rb *RouteBuilder) CookieParam(name, description string) *RouteBuilder {
	rb.operation.Parameters = append(rb.operation.Parameters, &openapi3.ParameterRef{
		Value: &openapi3.Parameter{
			Name:        name,
			In:          openapi3.ParameterInCookie,
			Description: description,
			Schema:      openapi3.NewStringSchema().NewRef(),
		},
	})
	return rb
}

// Response documents a status code. A nil example means no body.
func (rb *RouteBuilder) Response(status int, example any, description string) *RouteBuilder {
	response := openapi3.NewResponse().WithDescription(description)
	if example != nil {
		response.Content = openapi3.NewContentWithJSONSchemaRef(rb.doc.schemaFor(example))
	}
	rb.operation.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: response})
	return rb
}

// RateLimited adds the 429 response and the X-RateLimit headers.
func (rb *RouteBuilder) RateLimited(example any) *RouteBuilder {
	rb.Response(http.StatusTooManyRequests, example, "Rate limit exceeded")
	ref := rb.operation.Responses.Status(http.StatusTooManyRequests)
	ref.Value.Headers = openapi3.Headers{
		"Retry-After":           integerHeader("Seconds until the next request is allowed"),
		"X-RateLimit-Limit":     integerHeader("Requests allowed per window"),
		"X-RateLimit-Remaining": integerHeader("Requests left in the window"),
	}
	return rb
}

func integerHeader(description string) *openapi3.HeaderRef {
	return &openapi3.HeaderRef{Value: &openapi3.Header{Parameter: openapi3.Parameter{
		Description: description,
		Schema:      openapi3.NewIntegerSchema().NewRef(),
	}}}
}

// Security requires any one of the named schemes.
func (rb *RouteBuilder) Security(schemes ...string) *RouteBuilder {
	if rb.operation.Security == nil {
		rb.operation.Security = openapi3.NewSecurityRequirements()
	}
	for _, scheme := range schemes {
		rb.operation.Security.With(openapi3.NewSecurityRequirement().Authenticate(scheme))
	}
	return rb
}

func (rb *RouteBuilder) Build() {
	rb.doc.addOperation(rb.method, rb.path, rb.operation)
}
