package batch

import (
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Document is the persistable representation of a batch:
//
//	{ id: <int64>, docs: [ <document>, ... ] }   // uncompressed, ascending timestamps
//	{ id: <int64>, docs: <binary> }              // compressed block
type Document struct {
	ID ID
	// Docs holds the documents of an uncompressed batch.
	Docs []bson.Raw
	// Compressed holds the block of a compressed batch. It is nil for uncompressed batches.
	Compressed []byte
}

// IsCompressed reports whether the document holds a compressed block
func (d Document) IsCompressed() bool {
	return d.Compressed != nil
}

// Bytes encodes the document as BSON
func (d Document) Bytes() ([]byte, error) {
	var docs interface{}
	if d.IsCompressed() {
		docs = bson.Binary{Data: d.Compressed}
	} else if d.Docs == nil {
		docs = bson.A{}
	} else {
		docs = d.Docs
	}
	return bson.Marshal(bson.D{
		{Key: "id", Value: int64(d.ID)},
		{Key: "docs", Value: docs},
	})
}

// DecodeDocument decodes a persisted batch document
func DecodeDocument(data []byte) (Document, error) {
	raw := bson.Raw(data)
	if err := raw.Validate(); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	var d Document

	idVal, err := raw.LookupErr("id")
	if err != nil {
		return Document{}, fmt.Errorf("%w: missing id", ErrInvalidDocument)
	}
	switch idVal.Type {
	case bson.TypeInt64:
		id, _ := idVal.Int64OK()
		d.ID = ID(id)
	case bson.TypeInt32:
		id, _ := idVal.Int32OK()
		d.ID = ID(id)
	default:
		return Document{}, fmt.Errorf("%w: id has type %s", ErrInvalidDocument, idVal.Type)
	}

	docsVal, err := raw.LookupErr("docs")
	if err != nil {
		return Document{}, fmt.Errorf("%w: missing docs", ErrInvalidDocument)
	}
	switch docsVal.Type {
	case bson.TypeBinary:
		_, data, _ := docsVal.BinaryOK()
		d.Compressed = append(make([]byte, 0, len(data)), data...)
	case bson.TypeArray:
		var docs []bson.Raw
		if err := docsVal.Unmarshal(&docs); err != nil {
			return Document{}, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		d.Docs = docs
	default:
		return Document{}, fmt.Errorf("%w: docs has type %s", ErrInvalidDocument, docsVal.Type)
	}
	return d, nil
}

// Expand returns the documents of a persisted batch in stored order, decompressing the block if necessary
func (d Document) Expand() ([]bson.Raw, error) {
	if !d.IsCompressed() {
		return d.Docs, nil
	}
	samples, err := Decompress(d.Compressed)
	if err != nil {
		return nil, err
	}
	docs := make([]bson.Raw, len(samples))
	for i, s := range samples {
		docs[i] = s.Doc
	}
	return docs, nil
}
