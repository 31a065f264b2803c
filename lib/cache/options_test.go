package cache

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestOptionsFromDocument(t *testing.T) {
	mk := func(d bson.D) bson.Raw {
		data, err := bson.Marshal(d)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	tests := []struct {
		name    string
		doc     bson.Raw
		want    Options
		wantErr bool
	}{
		{
			name: "empty document keeps defaults",
			doc:  mk(bson.D{}),
			want: DefaultOptions(),
		},
		{
			name: "all options",
			doc: mk(bson.D{
				{Key: "compressed", Value: true},
				{Key: "cache_size", Value: int32(4)},
				{Key: "millis_in_batch", Value: int64(60000)},
				{Key: "time_field", Value: "ts"},
				{Key: "backing_name", Value: "raw"},
				{Key: "compressor_capacity", Value: 1000.0},
			}),
			want: Options{
				Compressed:         true,
				CacheSize:          4,
				MillisInBatch:      60000,
				TimeField:          "ts",
				BackingName:        "raw",
				CompressorCapacity: 1000,
			},
		},
		{name: "unknown option", doc: mk(bson.D{{Key: "ttl", Value: 1}}), wantErr: true},
		{name: "wrong type", doc: mk(bson.D{{Key: "compressed", Value: "yes"}}), wantErr: true},
		{name: "fractional size", doc: mk(bson.D{{Key: "cache_size", Value: 1.5}}), wantErr: true},
		{name: "zero size", doc: mk(bson.D{{Key: "cache_size", Value: 0}}), wantErr: true},
		{name: "negative width", doc: mk(bson.D{{Key: "millis_in_batch", Value: -1}}), wantErr: true},
		{name: "empty time field", doc: mk(bson.D{{Key: "time_field", Value: ""}}), wantErr: true},
		{name: "size out of range", doc: mk(bson.D{{Key: "cache_size", Value: int64(1 << 40)}}), wantErr: true},
		{name: "capacity out of range", doc: mk(bson.D{{Key: "compressor_capacity", Value: 1e10}}), wantErr: true},
		{name: "double width beyond 2^53", doc: mk(bson.D{{Key: "millis_in_batch", Value: 1e17}}), wantErr: true},
		{
			name: "wide batch",
			doc:  mk(bson.D{{Key: "millis_in_batch", Value: int64(1 << 40)}}),
			want: func() Options {
				o := DefaultOptions()
				o.MillisInBatch = 1 << 40
				return o
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := OptionsFromDocument(tt.doc)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOptions) {
					t.Fatalf("expected ErrInvalidOptions, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("OptionsFromDocument() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("OptionsFromDocument() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestBackingName(t *testing.T) {
	opts := DefaultOptions()
	if got := opts.Backing("sensors"); got != "sensors_timeseries" {
		t.Errorf("Backing() = %q", got)
	}

	c, err := New("sensors", nil, opts)
	if err != nil {
		t.Fatal(err)
	}
	if c.Options().BackingName != "sensors_timeseries" {
		t.Errorf("BackingName = %q", c.Options().BackingName)
	}

	opts.BackingName = "raw"
	if got := opts.Backing("sensors"); got != "raw" {
		t.Errorf("Backing() = %q", got)
	}
}
