// Package api embeds the HTTP bridge's OpenAPI document.
package api

import _ "embed"

// OpenAPISpec is the OpenAPI 3.1 description of the bridge, in YAML.
//
//go:embed openapi.yaml
var OpenAPISpec []byte
