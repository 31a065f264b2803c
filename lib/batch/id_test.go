package batch

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestIDForMillis(t *testing.T) {
	tests := []struct {
		ms    int64
		width int64
		want  ID
	}{
		{0, 1000, 0},
		{999, 1000, 0},
		{1000, 1000, 1},
		{2500, 1000, 2},
		{-1, 1000, -1},
		{-1000, 1000, -1},
		{-1001, 1000, -2},
		{59_999, 60_000, 0},
	}

	for _, tt := range tests {
		got := IDForMillis(tt.ms, tt.width)
		if got != tt.want {
			t.Errorf("IDForMillis(%d, %d) = %d, want %d", tt.ms, tt.width, got, tt.want)
		}
	}
}

func TestIDWindowInvariant(t *testing.T) {
	const width = 750
	for ms := int64(-5000); ms <= 5000; ms += 37 {
		id := IDForMillis(ms, width)
		start, end := id.Start(width).UnixMilli(), id.End(width).UnixMilli()
		if ms < start || ms >= end {
			t.Fatalf("timestamp %d outside of window [%d, %d) of batch %d", ms, start, end, id)
		}
	}
}

func TestIDFor(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 500_000_000, time.UTC)
	if got, want := IDFor(ts, 1000), ID(ts.Unix()); got != want {
		t.Errorf("IDFor() = %d, want %d", got, want)
	}
}

func TestTimeOf(t *testing.T) {
	ts := time.UnixMilli(1_700_000_000_123).UTC()

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
		field   string
		want    time.Time
		wantErr error
	}{
		{"datetime", mk(bson.D{{Key: "_id", Value: bson.NewDateTimeFromTime(ts)}}), "_id", ts, nil},
		{"int64 millis", mk(bson.D{{Key: "ts", Value: ts.UnixMilli()}}), "ts", ts, nil},
		{"int32 millis", mk(bson.D{{Key: "ts", Value: int32(12345)}}), "ts", time.UnixMilli(12345).UTC(), nil},
		{"nested", mk(bson.D{{Key: "meta", Value: bson.D{{Key: "ts", Value: bson.NewDateTimeFromTime(ts)}}}}), "meta.ts", ts, nil},
		{"string", mk(bson.D{{Key: "ts", Value: "yesterday"}}), "ts", time.Time{}, ErrInvalidTimeField},
		{"missing", mk(bson.D{{Key: "v", Value: 1}}), "ts", time.Time{}, ErrInvalidTimeField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TimeOf(tt.doc, tt.field)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("TimeOf() error = %v, want %v", err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("TimeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}
