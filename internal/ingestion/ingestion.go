// Package ingestion loads the labor insurance datasets into the vector
// store. Each dataset row becomes one document: a fixed field-per-line
// rendering that embeds well for Chinese-language retrieval, plus payload
// metadata used for source attribution in answers.
package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/Gskdl78/Labor-saver/internal/rag"
)

const defaultBatchSize = 100

// idNamespace seeds deterministic document UUIDs so re-running ingestion
// upserts in place instead of duplicating points.
var idNamespace = uuid.MustParse("7c9e2f5a-1b64-4d8e-9a3f-5e0c8b7d2a41")

// dataset describes one JSON file under the dataset directory and how its
// rows render into documents.
type dataset struct {
	file   string
	label  string
	source string
	build  func(rows []map[string]any) []rag.Document
}

// datasets lists every knowledge file in ingestion order.
var datasets = []dataset{
	{
		file:   "勞工保險失能給付標準第三條附表.json",
		label:  "失能給付標準第三條附表",
		source: "勞工保險失能給付標準第三條附表",
		build:  buildDisabilityStandards,
	},
	{
		file:   "勞工職業災害保險職業傷病審查準則.json",
		label:  "職業傷病審查準則",
		source: "勞工職業災害保險職業傷病審查準則",
		build:  buildOccupationalRules,
	},
	{
		file:   "勞工職業災害保險醫療給付介紹.json",
		label:  "醫療給付介紹",
		source: "勞工職業災害保險醫療給付介紹",
		build:  buildMedicalBenefits,
	},
	{
		file:   "各失能等級之給付標準.json",
		label:  "各失能等級給付標準",
		source: "各失能等級之給付標準",
		build:  buildBenefitStandards,
	},
	{
		file:   "勞保局各地辦事處.json",
		label:  "勞保局辦事處",
		source: "勞保局各地辦事處",
		build:  buildLaborOffices,
	},
	{
		file:   "衛生福利部評鑑合格之醫院名單.json",
		label:  "醫院名單",
		source: "衛生福利部評鑑合格之醫院名單",
		build:  buildHospitals,
	},
}

// Stats summarizes one ingestion run.
type Stats struct {
	// Documents is the number of documents upserted.
	Documents int
	// Batches is the number of embed+upsert batches executed.
	Batches int
	// DatasetErrors counts datasets that failed to load and were skipped.
	DatasetErrors int
	// Skipped is true when the store already held data and Run bailed out.
	Skipped bool
}

// Pipeline embeds dataset documents and writes them to a vector store.
type Pipeline struct {
	embedder  rag.Embedder
	store     rag.VectorStore
	batchSize int
	log       *slog.Logger
}

// New builds a Pipeline. All three arguments are required.
func New(embedder rag.Embedder, store rag.VectorStore, log *slog.Logger) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: vector store is required")
	}
	if log == nil {
		return nil, fmt.Errorf("ingestion: logger is required")
	}
	return &Pipeline{
		embedder:  embedder,
		store:     store,
		batchSize: defaultBatchSize,
		log:       log,
	}, nil
}

// Run loads every dataset under dir into the vector store. When the store
// already holds points and force is false, Run returns immediately with
// Skipped set. A single unreadable dataset is logged and skipped; the run
// fails only when no dataset yields any document.
func (p *Pipeline) Run(ctx context.Context, dir string, force bool) (*Stats, error) {
	if !force {
		existing, err := p.store.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("ingestion: failed to check existing data: %w", err)
		}
		if existing > 0 {
			p.log.Info("vector store already populated, skipping ingestion",
				slog.Uint64("existing_points", existing))
			return &Stats{Skipped: true}, nil
		}
	}

	stats := &Stats{}
	var docs []rag.Document
	for _, ds := range datasets {
		rows, err := loadRows(filepath.Join(dir, ds.file))
		if err != nil {
			stats.DatasetErrors++
			p.log.Error("failed to load dataset, skipping",
				slog.String("dataset", ds.label), slog.Any("error", err))
			continue
		}
		built := ds.build(rows)
		p.log.Info("dataset loaded",
			slog.String("dataset", ds.label), slog.Int("documents", len(built)))
		docs = append(docs, built...)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("ingestion: no documents found under %s", dir)
	}

	totalBatches := (len(docs) + p.batchSize - 1) / p.batchSize
	p.log.Info("starting batched ingestion",
		slog.Int("documents", len(docs)), slog.Int("batches", totalBatches))

	for start := 0; start < len(docs); start += p.batchSize {
		end := min(start+p.batchSize, len(docs))
		batch := docs[start:end]

		contents := make([]string, len(batch))
		for i, d := range batch {
			contents[i] = d.Content
		}
		embeddings, err := p.embedder.Embed(ctx, contents)
		if err != nil {
			return nil, fmt.Errorf("ingestion: batch %d/%d embed failed: %w",
				stats.Batches+1, totalBatches, err)
		}
		if err := p.store.Upsert(ctx, batch, embeddings); err != nil {
			return nil, fmt.Errorf("ingestion: batch %d/%d upsert failed: %w",
				stats.Batches+1, totalBatches, err)
		}

		stats.Batches++
		stats.Documents += len(batch)
		p.log.Info("batch ingested",
			slog.Int("batch", stats.Batches),
			slog.Int("total_batches", totalBatches),
			slog.Int("documents_done", stats.Documents))
	}

	return stats, nil
}

// loadRows reads a dataset file as an array of loosely-typed rows.
func loadRows(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return rows, nil
}

// field reads a row value as a string, rendering numbers without a decimal
// tail. Missing keys are empty strings.
func field(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// render joins key：value lines in the given key order.
func render(row map[string]any, keys ...string) string {
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "：" + field(row, k)
	}
	return strings.Join(lines, "\n")
}

// docID derives a stable UUID for a document from its dataset and key.
func docID(parts ...string) string {
	return uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "/"))).String()
}

func buildDisabilityStandards(rows []map[string]any) []rag.Document {
	docs := make([]rag.Document, 0, len(rows))
	for i, row := range rows {
		key := field(row, "編號")
		if key == "" {
			key = strconv.Itoa(i)
		}
		docs = append(docs, rag.Document{
			ID: docID("disability", key),
			Content: render(row,
				"失能種類", "失能項目", "失能狀態", "失能等級", "失能審核基準", "開具診斷書醫療機構層級"),
			Source: "勞工保險失能給付標準第三條附表",
			Metadata: map[string]string{
				"type": "失能給付標準",
				"失能等級": field(row, "失能等級"),
				"失能種類": field(row, "失能種類"),
			},
		})
	}
	return docs
}

func buildOccupationalRules(rows []map[string]any) []rag.Document {
	docs := make([]rag.Document, 0, len(rows))
	for i, row := range rows {
		key := field(row, "序號")
		if key == "" {
			key = strconv.Itoa(i)
		}
		docs = append(docs, rag.Document{
			ID:      docID("occupational", key),
			Content: render(row, "條號", "內容", "修正發布日期（民國年月日）"),
			Source:  "勞工職業災害保險職業傷病審查準則",
			Metadata: map[string]string{
				"type": "職業傷病審查",
				"條號":   field(row, "條號"),
			},
		})
	}
	return docs
}

func buildMedicalBenefits(rows []map[string]any) []rag.Document {
	docs := make([]rag.Document, 0, len(rows))
	for i, row := range rows {
		docs = append(docs, rag.Document{
			ID:      docID("medical", strconv.Itoa(i)),
			Content: render(row, "項目", "說明", "法規", "適用起日（民國年月日）"),
			Source:  "勞工職業災害保險醫療給付介紹",
			Metadata: map[string]string{
				"type": "醫療給付",
				"項目":   field(row, "項目"),
			},
		})
	}
	return docs
}

func buildBenefitStandards(rows []map[string]any) []rag.Document {
	docs := make([]rag.Document, 0, len(rows))
	for i, row := range rows {
		key := field(row, "失能等級")
		if key == "" {
			key = strconv.Itoa(i)
		}
		docs = append(docs, rag.Document{
			ID:      docID("benefit", key),
			Content: render(row, "失能等級", "普通傷病失能補助費給付標準", "職業傷病失能補償費給付標準"),
			Source:  "各失能等級之給付標準",
			Metadata: map[string]string{
				"type": "給付標準",
				"失能等級": field(row, "失能等級"),
			},
		})
	}
	return docs
}

func buildLaborOffices(rows []map[string]any) []rag.Document {
	docs := make([]rag.Document, 0, len(rows))
	for i, row := range rows {
		docs = append(docs, rag.Document{
			ID:      docID("office", strconv.Itoa(i)),
			Content: render(row, "縣市別", "辦事處地址", "辦事處電話", "櫃台服務時間", "電話服務時間"),
			Source:  "勞保局各地辦事處",
			Metadata: map[string]string{
				"type":  "辦事處資訊",
				"縣市別": field(row, "縣市別"),
			},
		})
	}
	return docs
}

func buildHospitals(rows []map[string]any) []rag.Document {
	docs := make([]rag.Document, 0, len(rows))
	for i, row := range rows {
		docs = append(docs, rag.Document{
			ID:      docID("hospital", strconv.Itoa(i)),
			Content: render(row, "醫院名稱", "所在縣市", "醫院評鑑評鑑結果", "醫院電話", "地址"),
			Source:  "衛生福利部評鑑合格之醫院名單",
			Metadata: map[string]string{
				"type": "醫院資訊",
				"所在縣市": field(row, "所在縣市"),
				"醫院名稱": field(row, "醫院名稱"),
			},
		})
	}
	return docs
}
