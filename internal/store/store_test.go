package store

import (
	"context"
	"testing"
	"time"
)

// openTestLog opens an in-memory SQLiteLog for use in tests.
func openTestLog(t *testing.T) *SQLiteLog {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory log: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func Test_Log_AppendAndRecent(t *testing.T) {
	t.Parallel()
	s := openTestLog(t)
	ctx := context.Background()

	rec := Record{
		SessionID: "sess-1",
		ClientID:  "10.0.0.1",
		Question:  "失能給付如何計算",
		Tier:      "rag",
		Success:   true,
		Sources:   []string{"失能給付標準", "AI 語言模型"},
		Latency:   1500 * time.Millisecond,
	}
	if err := s.Append(ctx, rec); err != nil {
		t.Fatalf("append: %v", err)
	}

	recs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("want 1 record, got %d", len(recs))
	}

	got := recs[0]
	if got.SessionID != "sess-1" || got.ClientID != "10.0.0.1" {
		t.Errorf("identity fields: got %s/%s", got.SessionID, got.ClientID)
	}
	if got.Tier != "rag" || !got.Success {
		t.Errorf("outcome fields: got %s/%v", got.Tier, got.Success)
	}
	if len(got.Sources) != 2 || got.Sources[0] != "失能給付標準" {
		t.Errorf("sources round-trip failed: %v", got.Sources)
	}
	if got.Latency != 1500*time.Millisecond {
		t.Errorf("latency: got %s, want 1.5s", got.Latency)
	}
}

func Test_Log_RecentLimitAndOrdering(t *testing.T) {
	t.Parallel()
	s := openTestLog(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 6; i++ {
		rec := Record{
			ClientID:  "c",
			Question:  "q",
			Tier:      "preset",
			Success:   true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Append(ctx, rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	recs, err := s.Recent(ctx, 4)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("want 4 records, got %d", len(recs))
	}
	// Newest first.
	for i := 1; i < len(recs); i++ {
		if recs[i].CreatedAt.After(recs[i-1].CreatedAt) {
			t.Errorf("records not newest-first at index %d", i)
		}
	}
}

func Test_Log_TierCounts(t *testing.T) {
	t.Parallel()
	s := openTestLog(t)
	ctx := context.Background()

	tiers := []string{"preset", "preset", "rag", "degraded", "rag", "rag"}
	for _, tier := range tiers {
		if err := s.Append(ctx, Record{ClientID: "c", Question: "q", Tier: tier}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	counts, err := s.TierCounts(ctx)
	if err != nil {
		t.Fatalf("tier counts: %v", err)
	}
	want := map[string]int64{"preset": 2, "rag": 3, "degraded": 1}
	for tier, n := range want {
		if counts[tier] != n {
			t.Errorf("tier %s: got %d, want %d", tier, counts[tier], n)
		}
	}
}

func Test_Log_InvalidTierRejected(t *testing.T) {
	t.Parallel()
	s := openTestLog(t)

	err := s.Append(context.Background(), Record{ClientID: "c", Question: "q", Tier: "bogus"})
	if err == nil {
		t.Error("expected CHECK constraint violation for unknown tier")
	}
}

func Test_Log_EmptyRecentReturnsNil(t *testing.T) {
	t.Parallel()
	s := openTestLog(t)

	recs, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("want 0 records, got %d", len(recs))
	}
}
