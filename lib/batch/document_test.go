package batch

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestEmptyDocumentEncodesArray(t *testing.T) {
	data, err := New(9, testConfig(false)).mustExport(t).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	rv := bson.Raw(data).Lookup("docs")
	if rv.Type != bson.TypeArray {
		t.Errorf("docs of an empty batch has type %s, want array", rv.Type)
	}

	d, err := DecodeDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != 9 || len(d.Docs) != 0 || d.IsCompressed() {
		t.Errorf("decoded %+v", d)
	}
}

func TestDecodeDocumentErrors(t *testing.T) {
	mk := func(d bson.D) []byte {
		data, err := bson.Marshal(d)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte{1, 2, 3}},
		{"missing id", mk(bson.D{{Key: "docs", Value: bson.A{}}})},
		{"string id", mk(bson.D{{Key: "id", Value: "x"}, {Key: "docs", Value: bson.A{}}})},
		{"missing docs", mk(bson.D{{Key: "id", Value: int64(1)}})},
		{"docs of wrong type", mk(bson.D{{Key: "id", Value: int64(1)}, {Key: "docs", Value: "x"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeDocument(tt.data); !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestDecodeDocumentAcceptsInt32ID(t *testing.T) {
	data, _ := bson.Marshal(bson.D{{Key: "id", Value: int32(-4)}, {Key: "docs", Value: bson.A{}}})
	d, err := DecodeDocument(data)
	if err != nil {
		t.Fatal(err)
	}
	if d.ID != -4 {
		t.Errorf("ID = %d, want -4", d.ID)
	}
}

func TestDecompressErrors(t *testing.T) {
	c := NewCompressor(10)
	_, _ = c.Append(mkDoc(t, 1, 1), 1)
	block, _ := c.Finish()

	badVersion := append([]byte(nil), block...)
	badVersion[len(compressorMagic)] = 99

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"wrong magic", []byte("XXXXX")},
		{"wrong version", badVersion},
		{"truncated frame", block[:len(block)-3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decompress(tt.data); !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("expected ErrInvalidDocument, got %v", err)
			}
		})
	}
}

func TestCompressorDeltaEncoding(t *testing.T) {
	c := NewCompressor(0)
	times := []int64{-10_000, 5, 4, 1 << 50, -(1 << 50)}
	for i, ms := range times {
		if _, err := c.Append(mkDoc(t, ms, i), ms); err != nil {
			t.Fatal(err)
		}
	}
	block, err := c.Finish()
	if err != nil {
		t.Fatal(err)
	}

	samples, err := Decompress(block)
	if err != nil {
		t.Fatal(err)
	}
	for i, s := range samples {
		if s.Millis != times[i] {
			t.Errorf("sample %d: millis = %d, want %d", i, s.Millis, times[i])
		}
	}

	if _, err := c.Append(mkDoc(t, 1, 1), 1); !errors.Is(err, ErrCompressorConsumed) {
		t.Errorf("Append after Finish: expected ErrCompressorConsumed, got %v", err)
	}
}

func (b *Batch) mustExport(t *testing.T) Document {
	t.Helper()
	d, err := b.Export()
	if err != nil {
		t.Fatal(err)
	}
	return d
}
