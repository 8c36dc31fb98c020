package apiv1

import (
	"context"
	"fmt"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

// LoadDocument reads and validates the OpenAPI document served under
// /docs/api/v1.
func LoadDocument(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi document: %w", err)
	}
	return doc, nil
}

// UndocumentedRoutes returns "METHOD /path" for every route in routes
// that the document does not describe. Fiber ":param" segments match
// "{param}".
func UndocumentedRoutes(doc *openapi3.T, routes [][2]string) []string {
	var missing []string
	for _, r := range routes {
		method, path := r[0], toOpenAPIPath(r[1])
		item := doc.Paths.Value(path)
		if item == nil || item.GetOperation(method) == nil {
			missing = append(missing, method+" "+path)
		}
	}
	return missing
}

func toOpenAPIPath(fiberPath string) string {
	parts := strings.Split(fiberPath, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + strings.TrimPrefix(p, ":") + "}"
		}
	}
	return strings.Join(parts, "/")
}
