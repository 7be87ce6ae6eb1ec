package api

import (
	_ "embed"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed openapi.yaml
var openAPISpec []byte

// GetSwagger returns the OpenAPI description of the service operations.
// Each call returns a fresh document that the caller may modify.
func GetSwagger() (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(openAPISpec)
	if err != nil {
		return nil, fmt.Errorf("error loading OpenAPI description: %w", err)
	}
	return doc, nil
}
