package gateway

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/maptoposter/posterd/internal/model"
)

const schemaURL = "https://posterd.local/schema/request.schema.json"

//go:embed schema/request.schema.json
var requestSchema []byte

var (
	schemaOnce     sync.Once
	schemaErr      error
	compiledSchema *jsonschema.Schema
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaURL, bytes.NewReader(requestSchema)); err != nil {
			schemaErr = fmt.Errorf("adding request schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
	})
	return compiledSchema, schemaErr
}

// FieldError is one rejected part of a payload.
type FieldError struct {
	Loc []string `json:"loc"`
	Msg string   `json:"msg"`
}

// ValidationError is returned for payloads that do not match the request
// shape.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid request"
	}
	return fmt.Sprintf("invalid request: %s", e.Fields[0].Msg)
}

// decodeRequest validates body against the request schema and decodes it.
// An empty body is an empty request.
func decodeRequest(body []byte) (model.PosterRequest, error) {
	var req model.PosterRequest
	if len(bytes.TrimSpace(body)) == 0 {
		return req, nil
	}

	sch, err := loadSchema()
	if err != nil {
		return req, err
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return req, &ValidationError{Fields: []FieldError{{Loc: []string{"body"}, Msg: "invalid JSON: " + err.Error()}}}
	}
	if err := sch.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return req, &ValidationError{Fields: fieldErrors(ve)}
		}
		return req, err
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return req, &ValidationError{Fields: []FieldError{{Loc: []string{"body"}, Msg: err.Error()}}}
	}
	return req, nil
}

// fieldErrors flattens the leaves of a schema validation error.
func fieldErrors(ve *jsonschema.ValidationError) []FieldError {
	if len(ve.Causes) == 0 {
		return []FieldError{{Loc: location(ve.InstanceLocation), Msg: ve.Message}}
	}
	var out []FieldError
	for _, c := range ve.Causes {
		out = append(out, fieldErrors(c)...)
	}
	return out
}

func location(pointer string) []string {
	loc := []string{"body"}
	for _, part := range bytes.Split([]byte(pointer), []byte("/")) {
		if len(part) > 0 {
			loc = append(loc, string(part))
		}
	}
	return loc
}
