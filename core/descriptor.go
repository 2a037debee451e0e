package core

import (
	"net/http"
	"net/url"
	"strings"
)

type CredentialFieldType string

const (
	CredentialFieldString CredentialFieldType = "string"
	CredentialFieldSecret CredentialFieldType = "secret"
)

// CredentialField describes one operator-entered credential value.
type CredentialField struct {
	Name        string
	DisplayName string
	Type        CredentialFieldType
	Required    bool
	Default     string
	Placeholder string
	Description string
}

func (f CredentialField) Masked() bool {
	return f.Type == CredentialFieldSecret
}

// CredentialDescriptor is the static description of a credential type: its
// fields and the request used to test it.
type CredentialDescriptor struct {
	Name             string
	DisplayName      string
	DocumentationURL string
	Fields           []CredentialField
	Test             RequestSpec
}

func (d CredentialDescriptor) Field(name string) (CredentialField, bool) {
	name = strings.TrimSpace(name)
	for _, field := range d.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return CredentialField{}, false
}

// RequestSpec is a method + base URL + path triple. BaseURL is kept verbatim;
// URL performs the join.
type RequestSpec struct {
	Method  string
	BaseURL string
	Path    string
	Query   url.Values
}

// URL joins BaseURL and Path, dropping one trailing slash from the base so
// both "https://host" and "https://host/" produce the same result.
func (r RequestSpec) URL() string {
	base := strings.TrimSpace(r.BaseURL)
	base = strings.TrimSuffix(base, "/")
	path := strings.TrimSpace(r.Path)
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	joined := base + path
	if len(r.Query) > 0 {
		joined += "?" + r.Query.Encode()
	}
	return joined
}

func (r RequestSpec) HTTPMethod() string {
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		return http.MethodGet
	}
	return method
}
