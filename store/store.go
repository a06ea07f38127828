// Package store provides the mutable record carried through a workflow run.
//
// A State is a threadsafe, type-aware field store. The first write to a field
// pins its concrete Go type; later writes with a different type fail. Fields
// are append/overwrite-only: there is deliberately no delete operation, and
// selected fields can be marked write-once. Every write records provenance
// (which stage and ability produced the value), which feeds the audit trail.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
)

var (
	// ErrNotFound is returned when a field has never been written.
	ErrNotFound = errors.New("field not found")
	// ErrTypeMismatch is returned when a read or write disagrees with the
	// field's pinned type.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrWriteOnce is returned on a second write to a write-once field.
	ErrWriteOnce = errors.New("field is write-once")
	// ErrKindMismatch is returned when a write violates the declared schema.
	ErrKindMismatch = errors.New("schema kind mismatch")
)

// Kind is a coarse, schema-level value classification for declared fields.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindMap    Kind = "map"
	KindList   Kind = "list"
)

// Provenance records which part of the workflow last wrote a field.
type Provenance struct {
	Stage     string    `json:"stage,omitempty"`
	Ability   string    `json:"ability,omitempty"`
	WrittenAt time.Time `json:"written_at"`
	Writes    int       `json:"writes"`
}

type entry struct {
	typ       reflect.Type
	value     any
	writeOnce bool
	prov      Provenance
}

// State is a threadsafe, type-pinned field store for one workflow run.
type State struct {
	mu     sync.RWMutex
	schema map[string]Kind
	data   map[string]entry
}

// New constructs an empty state. schema may be nil; declared fields get
// their writes checked and numerically normalized against the given kind.
func New(schema map[string]Kind) *State {
	s := &State{data: make(map[string]entry)}
	if len(schema) > 0 {
		s.schema = make(map[string]Kind, len(schema))
		for k, v := range schema {
			s.schema[k] = v
		}
	}
	return s
}

// Put stores value under key, pinning its concrete type on first write.
func (s *State) Put(key string, value any) error {
	return s.put(key, value, Provenance{}, false)
}

// PutFrom stores value under key and records the writing stage and ability.
func (s *State) PutFrom(stage, ability, key string, value any) error {
	return s.put(key, value, Provenance{Stage: stage, Ability: ability}, false)
}

// PutOnce stores value under key and marks the field write-once. A second
// write, through any Put variant, fails with ErrWriteOnce.
func (s *State) PutOnce(stage, key string, value any) error {
	return s.put(key, value, Provenance{Stage: stage}, true)
}

func (s *State) put(key string, value any, prov Provenance, once bool) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if value == nil {
		return errors.New("value cannot be nil")
	}

	normalized, err := s.normalize(key, value)
	if err != nil {
		return err
	}
	t := reflect.TypeOf(normalized)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[key]
	if exists {
		if existing.writeOnce {
			return fmt.Errorf("%w: %s", ErrWriteOnce, key)
		}
		if existing.typ != t {
			return fmt.Errorf("%w: field %s was %v, rejected write of %v",
				ErrTypeMismatch, key, existing.typ, t)
		}
		prov.Writes = existing.prov.Writes + 1
	} else {
		prov.Writes = 1
	}
	prov.WrittenAt = time.Now()

	s.data[key] = entry{typ: t, value: normalized, writeOnce: once, prov: prov}
	return nil
}

// normalize coerces numeric JSON shapes onto the declared schema kind, so
// that e.g. a score decoded from an HTTP provider as float64 lands as the
// int the contract declares.
func (s *State) normalize(key string, value any) (any, error) {
	kind, declared := s.schema[key]
	if !declared {
		return value, nil
	}

	switch kind {
	case KindInt:
		switch v := value.(type) {
		case int:
			return v, nil
		case int64:
			return int(v), nil
		case float64:
			if v == float64(int(v)) {
				return int(v), nil
			}
		case json.Number:
			if n, err := v.Int64(); err == nil {
				return int(n), nil
			}
		}
	case KindFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case int:
			return float64(v), nil
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, nil
			}
		}
	case KindString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case KindBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case KindMap:
		if reflect.TypeOf(value).Kind() == reflect.Map {
			return value, nil
		}
	case KindList:
		if reflect.TypeOf(value).Kind() == reflect.Slice {
			return value, nil
		}
	default:
		return value, nil
	}
	return nil, fmt.Errorf("%w: field %s declared %s, got %T", ErrKindMismatch, key, kind, value)
}

// Get retrieves a value of type T for the given key.
func Get[T any](s *State, key string) (T, error) {
	var zero T
	if key == "" {
		return zero, errors.New("key cannot be empty")
	}

	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	want := reflect.TypeOf((*T)(nil)).Elem()
	if want.Kind() == reflect.Interface {
		if result, ok := e.value.(T); ok {
			return result, nil
		}
		return zero, fmt.Errorf("%w: field %s of type %v does not satisfy %v",
			ErrTypeMismatch, key, e.typ, want)
	}

	if e.typ != want {
		return zero, fmt.Errorf("%w: field %s wanted %v, got %v",
			ErrTypeMismatch, key, want, e.typ)
	}

	result, ok := e.value.(T)
	if !ok {
		return zero, fmt.Errorf("type assertion failed: %T cannot be converted to %v", e.value, want)
	}
	return result, nil
}

// GetOrDefault retrieves a value of type T, falling back to defaultValue
// when the field has never been written.
func GetOrDefault[T any](s *State, key string, defaultValue T) (T, error) {
	value, err := Get[T](s, key)
	if errors.Is(err, ErrNotFound) {
		return defaultValue, nil
	}
	return value, err
}

// Has reports whether the field has been written.
func (s *State) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok
}

// Keys returns all written field names, sorted for stable output.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of written fields.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Provenance returns the write provenance for a field.
func (s *State) Provenance(key string) (Provenance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[key]
	if !ok {
		return Provenance{}, false
	}
	return e.prov, true
}

// Snapshot returns a shallow copy of all fields as a plain map, suitable for
// provider payloads and the terminal output.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(s.data))
	for k, e := range s.data {
		out[k] = e.value
	}
	return out
}

// MarshalJSON renders the state as its field snapshot.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// FieldSchema returns a JSON Schema representation of one field's pinned type.
func (s *State) FieldSchema(key string) (interface{}, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}

	s.mu.RLock()
	e, ok := s.data[key]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return TypeToSchema(e.typ), nil
}

// Schema returns a JSON-schema-like document describing every written field.
func (s *State) Schema() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	props := make(map[string]interface{}, len(s.data))
	for k, e := range s.data {
		props[k] = TypeToSchema(e.typ)
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
}

// TypeToSchema converts a reflect.Type to a JSON schema.
func TypeToSchema(t reflect.Type) interface{} {
	instance := reflect.New(t).Interface()
	reflector := jsonschema.Reflector{
		ExpandedStruct:            true,
		DoNotReference:            true,
		AllowAdditionalProperties: false,
	}

	schema := reflector.Reflect(instance)

	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
	}

	var schemaMap map[string]interface{}
	if err := json.Unmarshal(data, &schemaMap); err != nil {
		return map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
	}

	if _, exists := schemaMap["type"]; !exists {
		schemaMap["type"] = "object"
	}
	return schemaMap
}
