package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned when creating a document under a taken id.
	ErrExists = errors.New("document already exists")
	// ErrConflict is returned when a transaction lost a race with a concurrent writer.
	ErrConflict = errors.New("transaction conflict")
)

// Doc is a stored document with its JSON body.
type Doc struct {
	ID        string
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Decode unmarshals the document body into dst.
func (d Doc) Decode(dst any) error {
	if err := json.Unmarshal(d.Data, dst); err != nil {
		return errors.Wrapf(err, "decoding document %s", d.ID)
	}
	return nil
}

// Filter is an equality condition on one top-level field.
type Filter struct {
	Field string
	Value any
}

// Where builds an equality filter.
func Where(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (f Filter) validate() error {
	if !fieldName.MatchString(f.Field) {
		return fmt.Errorf("invalid filter field %q", f.Field)
	}
	return nil
}

// text renders a value the way every backend compares it.
func matchText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// Tx is the set of document operations available inside and outside a transaction.
type Tx interface {
	// Create stores data under id, or under a generated id when id is empty.
	Create(ctx context.Context, collection, id string, data any) (string, error)
	Get(ctx context.Context, collection, id string) (Doc, error)
	// List returns documents in insertion order, optionally filtered.
	List(ctx context.Context, collection string, filters ...Filter) ([]Doc, error)
	// Update merges fields into the top level of the document body.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Store is a collection-scoped document store.
type Store interface {
	Tx
	// RunInTx runs fn atomically. fn may be called more than once when the
	// transaction conflicts with a concurrent writer.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Fields converts a record into a field map suitable for Update.
func Fields(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding fields")
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "encoding fields")
	}
	return m, nil
}

func encode(data any) ([]byte, error) {
	if raw, ok := data.(json.RawMessage); ok {
		return raw, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	if len(b) == 0 || b[0] != '{' {
		return nil, errors.New("document body must be a JSON object")
	}
	return b, nil
}

func merge(body []byte, fields map[string]any) ([]byte, error) {
	doc := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, errors.Wrap(err, "decoding document")
	}
	for k, v := range fields {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding field %s", k)
		}
		doc[k] = b
	}
	return json.Marshal(doc)
}

func matches(body []byte, filters []Filter) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	doc := map[string]any{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return false, errors.Wrap(err, "decoding document")
	}
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || matchText(v) != matchText(f.Value) {
			return false, nil
		}
	}
	return true, nil
}
