package model

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const configSchemaURL = "https://posterd.local/schema/config.schema.json"

//go:embed schema/config.schema.json
var configSchemaSource []byte

var configSchema *jsonschema.Schema

func init() {
	if len(configSchemaSource) == 0 {
		panic("variable configSchemaSource is empty")
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource(configSchemaURL, bytes.NewReader(configSchemaSource)); err != nil {
		panic(err)
	}
	configSchema = compiler.MustCompile(configSchemaURL)
}

// ConfigErrorDetail is one schema violation of a configuration document.
type ConfigErrorDetail struct {
	Path    string // server.write_timeout, tool.env.0
	Message string
}

func (d ConfigErrorDetail) Attr(name string) slog.Attr {
	return slog.GroupAttrs(
		name,
		slog.String("path", d.Path),
		slog.String("message", d.Message),
	)
}

func (d ConfigErrorDetail) String() string {
	if d.Path == "" {
		return d.Message
	}
	return d.Path + ": " + d.Message
}

// ConfigError carries every schema violation found in a document.
type ConfigError struct {
	Details []ConfigErrorDetail
}

func (e *ConfigError) Error() string {
	msgs := make([]string, len(e.Details))
	for i, d := range e.Details {
		msgs[i] = d.String()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// ConfigErrDetails returns the violations wrapped in err, nil for any other
// error.
func ConfigErrDetails(err error) []ConfigErrorDetail {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return ce.Details
	}
	return nil
}

// validateDocument checks a decoded YAML document against the config
// schema. The document is round-tripped through JSON so numbers reach the
// validator as json.Number.
func validateDocument(doc any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("converting config to json: %w", err)
	}
	var jdoc any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&jdoc); err != nil {
		return fmt.Errorf("converting config to json: %w", err)
	}

	err = configSchema.Validate(jdoc)
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return &ConfigError{Details: details(ve)}
	}
	return err
}

// validateValue checks an in-memory Config against the schema through its
// YAML encoding.
func validateValue(c Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return validateDocument(doc)
}

func details(ve *jsonschema.ValidationError) []ConfigErrorDetail {
	if len(ve.Causes) == 0 {
		path := strings.ReplaceAll(strings.TrimPrefix(ve.InstanceLocation, "/"), "/", ".")
		return []ConfigErrorDetail{{Path: path, Message: ve.Message}}
	}
	var out []ConfigErrorDetail
	for _, c := range ve.Causes {
		out = append(out, details(c)...)
	}
	return out
}
