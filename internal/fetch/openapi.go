package fetch

import (
	"context"
	"fmt"

	"github.com/go-openapi/loads"
	"github.com/go-openapi/spec"
	"github.com/go-openapi/strfmt"
	"github.com/go-openapi/validate"
)

// swaggerPath locates the published OpenAPI 2.0 document inside the
// upstream Kubernetes repository, keyed by release ref.
const swaggerPath = "/kubernetes/kubernetes/%s/api/openapi-spec/swagger.json"

// FetchK8sSwagger downloads the OpenAPI document published for a Kubernetes
// release ref ("v1.31.0", "master") and returns its analyzed form.
func (f *Fetcher) FetchK8sSwagger(ctx context.Context, version string) (*spec.Swagger, error) {
	f.log.Info("fetching Kubernetes OpenAPI document", "version", version)
	data, err := f.get(ctx, f.rawBase+fmt.Sprintf(swaggerPath, version), "")
	if err != nil {
		return nil, err
	}
	doc, err := loads.Analyzed(data, "")
	if err != nil {
		return nil, fmt.Errorf("analyze swagger for %s: %w", version, err)
	}
	return doc.Spec(), nil
}

// LoadOpenAPI reads an OpenAPI 2.0 document from disk, JSON or YAML.
func LoadOpenAPI(path string) (*spec.Swagger, error) {
	doc, err := loads.Spec(path)
	if err != nil {
		return nil, err
	}
	return doc.Spec(), nil
}

// ValidateOpenAPI checks the document at path against the OpenAPI 2.0
// schema with the default format registry.
func ValidateOpenAPI(path string) error {
	doc, err := loads.Spec(path)
	if err != nil {
		return err
	}
	return validate.Spec(doc, strfmt.Default)
}
