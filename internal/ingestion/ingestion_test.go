package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Gskdl78/Labor-saver/internal/rag"
)

// vectorEmbedder returns a constant-dimension vector per text and records
// how many texts it embedded.
type vectorEmbedder struct {
	embedded int
	fail     bool
}

func (e *vectorEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if e.fail {
		return nil, fmt.Errorf("embedder offline")
	}
	e.embedded += len(texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeDataset writes one dataset file into dir.
func writeDataset(t *testing.T, dir, name, doc string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
}

func newPipeline(t *testing.T, store rag.VectorStore) (*Pipeline, *vectorEmbedder) {
	t.Helper()
	emb := &vectorEmbedder{}
	p, err := New(emb, store, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p, emb
}

// TestRun_IngestsAllDatasets verifies every dataset file contributes
// documents with the expected source labels and rendered content.
func TestRun_IngestsAllDatasets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDataset(t, dir, "勞工保險失能給付標準第三條附表.json",
		`[{"編號": 1, "失能種類": "精神", "失能項目": "1-1", "失能狀態": "終身無工作能力", "失能等級": "1", "失能審核基準": "基準", "開具診斷書醫療機構層級": "醫學中心"}]`)
	writeDataset(t, dir, "勞工職業災害保險職業傷病審查準則.json",
		`[{"序號": 3, "條號": "第3條", "內容": "職業傷害認定", "修正發布日期（民國年月日）": "111.03.09"}]`)
	writeDataset(t, dir, "勞工職業災害保險醫療給付介紹.json",
		`[{"項目": "門診", "說明": "免部分負擔", "法規": "災保法", "適用起日（民國年月日）": "111.05.01"}]`)
	writeDataset(t, dir, "各失能等級之給付標準.json",
		`[{"失能等級": "1", "普通傷病失能補助費給付標準": "1200日", "職業傷病失能補償費給付標準": "1800日"}]`)
	writeDataset(t, dir, "勞保局各地辦事處.json",
		`[{"縣市別": "臺北市辦事處", "辦事處地址": "a", "辦事處電話": "02", "櫃台服務時間": "8-17", "電話服務時間": "8-18"}]`)
	writeDataset(t, dir, "衛生福利部評鑑合格之醫院名單.json",
		`[{"醫院名稱": "台大醫院", "所在縣市": "臺北市", "醫院評鑑評鑑結果": "醫學中心", "醫院電話": "02", "地址": "b"}]`)

	store := rag.NewMemoryStore()
	p, emb := newPipeline(t, store)

	stats, err := p.Run(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Documents != 6 || stats.Batches != 1 || stats.DatasetErrors != 0 {
		t.Errorf("stats = %+v, want 6 documents in 1 batch with no errors", stats)
	}
	if emb.embedded != 6 {
		t.Errorf("embedded %d texts, want 6", emb.embedded)
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("store holds %d points, want 6", n)
	}

	docs, err := store.Search(context.Background(), []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	sources := make(map[string]bool)
	var disability rag.Document
	for _, d := range docs {
		sources[d.Source] = true
		if d.Source == "勞工保險失能給付標準第三條附表" {
			disability = d
		}
	}
	for _, want := range []string{
		"勞工保險失能給付標準第三條附表",
		"勞工職業災害保險職業傷病審查準則",
		"勞工職業災害保險醫療給付介紹",
		"各失能等級之給付標準",
		"勞保局各地辦事處",
		"衛生福利部評鑑合格之醫院名單",
	} {
		if !sources[want] {
			t.Errorf("missing source %q", want)
		}
	}
	if !strings.Contains(disability.Content, "失能狀態：終身無工作能力") {
		t.Errorf("disability content not rendered field-per-line:\n%s", disability.Content)
	}
	if disability.Metadata["失能等級"] != "1" {
		t.Errorf("disability metadata = %v", disability.Metadata)
	}
}

// TestRun_SkipsWhenPopulated verifies a populated store short-circuits the
// run unless force is set.
func TestRun_SkipsWhenPopulated(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDataset(t, dir, "各失能等級之給付標準.json",
		`[{"失能等級": "1", "普通傷病失能補助費給付標準": "1200日", "職業傷病失能補償費給付標準": "1800日"}]`)

	store := rag.NewMemoryStore()
	seed := []rag.Document{{ID: "55e87c21-a9e1-4b92-8f59-0d3c4a6e7b10", Content: "x"}}
	if err := store.Upsert(context.Background(), seed, [][]float32{{1, 0, 0}}); err != nil {
		t.Fatal(err)
	}

	p, emb := newPipeline(t, store)
	stats, err := p.Run(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !stats.Skipped {
		t.Error("expected Skipped on populated store")
	}
	if emb.embedded != 0 {
		t.Errorf("embedded %d texts during a skipped run", emb.embedded)
	}

	stats, err = p.Run(context.Background(), dir, true)
	if err != nil {
		t.Fatalf("forced Run: %v", err)
	}
	if stats.Skipped || stats.Documents != 1 {
		t.Errorf("forced run stats = %+v", stats)
	}
}

// TestRun_MissingDatasetIsSkippedNotFatal verifies one unreadable dataset
// does not abort the run.
func TestRun_MissingDatasetIsSkippedNotFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDataset(t, dir, "各失能等級之給付標準.json",
		`[{"失能等級": "2", "普通傷病失能補助費給付標準": "1000日", "職業傷病失能補償費給付標準": "1500日"}]`)

	p, _ := newPipeline(t, rag.NewMemoryStore())
	stats, err := p.Run(context.Background(), dir, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Documents != 1 {
		t.Errorf("documents = %d, want 1", stats.Documents)
	}
	if stats.DatasetErrors != len(datasets)-1 {
		t.Errorf("dataset errors = %d, want %d", stats.DatasetErrors, len(datasets)-1)
	}
}

// TestRun_NoDocumentsIsError verifies an empty dataset directory fails.
func TestRun_NoDocumentsIsError(t *testing.T) {
	t.Parallel()

	p, _ := newPipeline(t, rag.NewMemoryStore())
	if _, err := p.Run(context.Background(), t.TempDir(), false); err == nil {
		t.Error("expected error when no dataset yields documents")
	}
}

// TestRun_EmbedderFailureAborts verifies a batch embed failure surfaces.
func TestRun_EmbedderFailureAborts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeDataset(t, dir, "各失能等級之給付標準.json",
		`[{"失能等級": "3", "普通傷病失能補助費給付標準": "840日", "職業傷病失能補償費給付標準": "1260日"}]`)

	emb := &vectorEmbedder{fail: true}
	p, err := New(emb, rag.NewMemoryStore(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Run(context.Background(), dir, false); err == nil {
		t.Error("expected embed failure to abort the run")
	}
}

// TestDocIDsAreStable verifies re-rendering the same row yields the same
// document ID, keeping re-ingestion idempotent.
func TestDocIDsAreStable(t *testing.T) {
	t.Parallel()

	a := docID("disability", "12")
	b := docID("disability", "12")
	c := docID("disability", "13")
	if a != b {
		t.Errorf("same key produced different IDs: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different keys produced the same ID")
	}
}

// TestNew_Validation verifies constructor argument checks.
func TestNew_Validation(t *testing.T) {
	t.Parallel()

	store := rag.NewMemoryStore()
	if _, err := New(nil, store, discardLogger()); err == nil {
		t.Error("nil embedder accepted")
	}
	if _, err := New(&vectorEmbedder{}, nil, discardLogger()); err == nil {
		t.Error("nil store accepted")
	}
	if _, err := New(&vectorEmbedder{}, store, nil); err == nil {
		t.Error("nil logger accepted")
	}
}
