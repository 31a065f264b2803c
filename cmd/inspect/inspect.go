package inspect

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/ValentinKolb/tsbatch/lib/batch"
	"github.com/ValentinKolb/tsbatch/lib/db/util"
	"github.com/ValentinKolb/tsbatch/lib/store"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// BatchInfo describes one persisted batch
type BatchInfo struct {
	ID         batch.ID
	Start, End time.Time
	Compressed bool
	Docs       int
	SizeBytes  int
}

// ListBatches decodes every batch of the collection in id order
func ListBatches(coll *store.Collection, millisInBatch int64) ([]BatchInfo, error) {
	var (
		infos     []BatchInfo
		decodeErr error
	)
	err := coll.ForEach(func(id int64, data []byte) bool {
		doc, err := batch.DecodeDocument(data)
		if err != nil {
			decodeErr = fmt.Errorf("batch %d: %w", id, err)
			return false
		}
		docs, err := doc.Expand()
		if err != nil {
			decodeErr = fmt.Errorf("batch %d: %w", id, err)
			return false
		}
		infos = append(infos, BatchInfo{
			ID:         doc.ID,
			Start:      doc.ID.Start(millisInBatch),
			End:        doc.ID.End(millisInBatch),
			Compressed: doc.IsCompressed(),
			Docs:       len(docs),
			SizeBytes:  len(data),
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return infos, decodeErr
}

// PrintBatches writes a table of all batches followed by a size summary
func PrintBatches(w io.Writer, coll *store.Collection, millisInBatch int64) error {
	infos, err := ListBatches(coll, millisInBatch)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTART\tEND\tFORM\tDOCS\tBYTES")

	sizes := make([]float64, len(infos))
	docs := 0
	for i, info := range infos {
		form := "array"
		if info.Compressed {
			form = "compressed"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\n", info.ID,
			info.Start.Format(time.RFC3339Nano), info.End.Format(time.RFC3339Nano),
			form, info.Docs, info.SizeBytes)
		sizes[i] = float64(info.SizeBytes)
		docs += info.Docs
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	stats := util.NewStats(sizes)
	_, err = fmt.Fprintf(w, "\n%d batches, %d documents, batch size min/mean/max: %.0f/%.0f/%.0f bytes\n",
		len(infos), docs, stats.Min, stats.Mean, stats.Max)
	return err
}

// PrintDocuments writes every document of the collection as one line of extended JSON
func PrintDocuments(w io.Writer, coll *store.Collection, canonical bool) error {
	var printErr error
	err := coll.ForEach(func(id int64, data []byte) bool {
		doc, err := batch.DecodeDocument(data)
		if err != nil {
			printErr = fmt.Errorf("batch %d: %w", id, err)
			return false
		}
		docs, err := doc.Expand()
		if err != nil {
			printErr = fmt.Errorf("batch %d: %w", id, err)
			return false
		}
		for _, d := range docs {
			line, err := bson.MarshalExtJSON(d, canonical, false)
			if err != nil {
				printErr = fmt.Errorf("batch %d: %w", id, err)
				return false
			}
			if _, err := fmt.Fprintf(w, "%s\n", line); err != nil {
				printErr = err
				return false
			}
		}
		return true
	})
	if err != nil {
		return err
	}
	return printErr
}
