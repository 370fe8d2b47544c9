// Package docstore is a small document collection with the query surface the
// school and student helpers need: equality filters, inserts and $set
// updates. Documents are JSON objects; an in-memory and a bbolt backend are
// provided.
package docstore

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// IDField holds the document identifier. InsertOne assigns one when missing.
const IDField = "_id"

// ErrInvalidDocument is returned for documents that cannot be encoded as a
// JSON object.
var ErrInvalidDocument = errors.New("docstore: invalid document")

// Document is a single record.
type Document map[string]any

// ID returns the document identifier or "".
func (d Document) ID() string {
	id, _ := d[IDField].(string)
	return id
}

// Filter selects documents by field equality. A field holding an array
// matches when any element equals the filter value. An empty filter selects
// everything.
type Filter map[string]any

// Update describes a modification applied by UpdateMany.
type Update struct {
	// Set replaces the named top-level fields.
	Set Document
}

// Collection is a set of documents.
type Collection interface {
	// Find returns matching documents in insertion order.
	Find(ctx context.Context, filter Filter) ([]Document, error)
	// InsertOne stores doc and returns its identifier.
	InsertOne(ctx context.Context, doc Document) (string, error)
	// UpdateMany applies update to every matching document and returns how
	// many were modified.
	UpdateMany(ctx context.Context, filter Filter, update Update) (int, error)
	// Close releases the collection's resources.
	Close() error
}

// encode assigns an identifier if needed and returns the JSON form.
func encode(doc Document) (string, []byte, error) {
	out := make(Document, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	id := out.ID()
	if id == "" {
		if _, exists := out[IDField]; exists {
			return "", nil, errors.Wrapf(ErrInvalidDocument, "%s must be a string", IDField)
		}
		id = uuid.NewString()
		out[IDField] = id
	}
	buf, err := json.Marshal(out)
	if err != nil {
		return "", nil, errors.Mark(errors.Wrap(err, "docstore: encode"), ErrInvalidDocument)
	}
	return id, buf, nil
}

func decode(buf []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(buf, &doc); err != nil {
		return nil, errors.Wrap(err, "docstore: decode")
	}
	return doc, nil
}

// normalize puts filter values into the shape decoded documents have so
// that comparisons are independent of the caller's Go types.
func normalize(f Filter) (Filter, error) {
	if len(f) == 0 {
		return nil, nil
	}
	buf, err := json.Marshal(f)
	if err != nil {
		return nil, errors.Wrap(err, "docstore: encode filter")
	}
	var out Filter
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, errors.Wrap(err, "docstore: decode filter")
	}
	return out, nil
}

func matches(doc Document, f Filter) bool {
	for field, want := range f {
		got, ok := doc[field]
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if reflect.DeepEqual(got, want) {
			continue
		}
		arr, isArr := got.([]any)
		if !isArr {
			return false
		}
		found := false
		for _, el := range arr {
			if reflect.DeepEqual(el, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// apply returns the re-encoded document after update, or nil if nothing
// changed.
func apply(doc Document, update Update) ([]byte, error) {
	set, err := normalize(Filter(update.Set))
	if err != nil {
		return nil, err
	}
	changed := false
	for k, v := range set {
		if k == IDField {
			continue
		}
		if cur, ok := doc[k]; ok && reflect.DeepEqual(cur, v) {
			continue
		}
		doc[k] = v
		changed = true
	}
	if !changed {
		return nil, nil
	}
	buf, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "docstore: encode")
	}
	return buf, nil
}
