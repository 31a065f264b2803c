package batch

import (
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ID identifies the time window of a batch.
// The window of an ID is the half-open interval [id*width, (id+1)*width) in milliseconds since the epoch.
type ID int64

// IDFor returns the ID of the window containing t
func IDFor(t time.Time, millisInBatch int64) ID {
	return IDForMillis(t.UnixMilli(), millisInBatch)
}

// IDForMillis returns the ID of the window containing the timestamp ms.
// The division rounds towards negative infinity so that timestamps before the epoch keep the window invariant.
func IDForMillis(ms, millisInBatch int64) ID {
	q := ms / millisInBatch
	if ms%millisInBatch != 0 && (ms < 0) != (millisInBatch < 0) {
		q--
	}
	return ID(q)
}

// Start returns the first instant of the window
func (id ID) Start(millisInBatch int64) time.Time {
	return time.UnixMilli(int64(id) * millisInBatch).UTC()
}

// End returns the exclusive end of the window
func (id ID) End(millisInBatch int64) time.Time {
	return time.UnixMilli((int64(id) + 1) * millisInBatch).UTC()
}

// TimeOf extracts the timestamp of a document.
// The field may be a dotted path into embedded documents. BSON datetimes are accepted,
// as well as int64 and int32 values which are interpreted as milliseconds since the epoch.
func TimeOf(doc bson.Raw, field string) (time.Time, error) {
	ms, err := millisOf(doc, field)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func millisOf(doc bson.Raw, field string) (int64, error) {
	rv, err := doc.LookupErr(strings.Split(field, ".")...)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q not found", ErrInvalidTimeField, field)
	}

	switch rv.Type {
	case bson.TypeDateTime:
		ms, _ := rv.DateTimeOK()
		return ms, nil
	case bson.TypeInt64:
		ms, _ := rv.Int64OK()
		return ms, nil
	case bson.TypeInt32:
		ms, _ := rv.Int32OK()
		return int64(ms), nil
	default:
		return 0, fmt.Errorf("%w: field %q has type %s", ErrInvalidTimeField, field, rv.Type)
	}
}
