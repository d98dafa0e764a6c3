package ingest

import (
	"context"
	"fmt"
	"os"

	"github.com/studyforge/studyforge/internal/progress"
	"github.com/studyforge/studyforge/internal/rag"
)

// Summary reports the outcome of one ingestion run.
type Summary struct {
	Indexed  int // documents chunked and embedded this run
	Skipped  int // documents whose content was already indexed
	Failed   int // documents that could not be read
	Degraded int // documents indexed without a usable collection
	Chunks   int // total chunks across indexed documents
}

// Indexer feeds discovered documents into the retrieval service.
type Indexer struct {
	svc *rag.Service
	rep progress.Reporter
	// Force reindexes documents even when their fingerprint matches
	// the already-indexed content.
	Force bool
}

// NewIndexer creates an indexer. rep may be nil to disable progress
// reporting.
func NewIndexer(svc *rag.Service, rep progress.Reporter) *Indexer {
	return &Indexer{svc: svc, rep: rep}
}

// IndexAll reads and indexes every document, skipping ones whose
// content is unchanged since the last run. Unreadable files are counted
// and skipped rather than failing the batch.
func (ix *Indexer) IndexAll(ctx context.Context, docs []Document) Summary {
	var sum Summary

	if ix.rep != nil {
		ix.rep.Start(len(docs))
	}
	for i, doc := range docs {
		if ix.rep != nil {
			ix.rep.Update(i+1, fmt.Sprintf("Indexing %s", doc.RelPath))
		}

		data, err := os.ReadFile(doc.Path)
		if err != nil {
			sum.Failed++
			continue
		}
		content := string(data)

		if !ix.Force && ix.svc.IsCurrent(ctx, doc.ID, content) {
			sum.Skipped++
			continue
		}

		dc := ix.svc.InitializeDocumentContext(ctx, doc.ID, content)
		sum.Indexed++
		sum.Chunks += dc.ChunkCount
		if dc.Degraded {
			sum.Degraded++
		}
	}
	if ix.rep != nil {
		ix.rep.Finish()
	}

	return sum
}
