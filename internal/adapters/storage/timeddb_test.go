package storage

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"messageboard/internal/adapters/http/perf"
)

func openTimedTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("CREATE TABLE messages (message_id INTEGER PRIMARY KEY, content TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestTimedDB_RecordsEveryCall verifies each wrapped method records one entry.
func TestTimedDB_RecordsEveryCall(t *testing.T) {
	db := openTimedTestDB(t)
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(db, collector, 0)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO messages (message_id, content) VALUES (?, ?)", 1, "hello"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	rows, err := tdb.QueryContext(ctx, "SELECT message_id, content FROM messages")
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	count := 0
	for rows.Next() {
		count++
	}
	rows.Close()
	if count != 1 {
		t.Errorf("rows = %d, want 1", count)
	}

	var content string
	if err := tdb.QueryRowContext(ctx, "SELECT content FROM messages WHERE message_id = ?", 1).Scan(&content); err != nil {
		t.Fatalf("QueryRowContext: %v", err)
	}
	if content != "hello" {
		t.Errorf("content = %q, want hello", content)
	}

	tx, err := tdb.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	tx.Rollback()

	if got := collector.TotalRecorded(); got != 4 {
		t.Errorf("TotalRecorded = %d, want 4", got)
	}
	snap := collector.Snapshot(time.Now().Add(-time.Minute), 10)
	labels := map[string]bool{}
	for _, s := range snap.SlowestQueries {
		labels[s.Path] = true
	}
	for _, want := range []string{"INSERT messages", "SELECT messages", "BEGIN"} {
		if !labels[want] {
			t.Errorf("missing query label %q in %v", want, labels)
		}
	}
}

// TestTimedDB_ErrorPassthrough verifies SQL errors are returned unchanged and
// still timed.
func TestTimedDB_ErrorPassthrough(t *testing.T) {
	db := openTimedTestDB(t)
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(db, collector, 0)
	ctx := context.Background()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO nonexistent_table VALUES (?)", 1); err == nil {
		t.Error("expected error from invalid insert")
	}
	if _, err := tdb.QueryContext(ctx, "SELECT * FROM nonexistent_table"); err == nil {
		t.Error("expected error from invalid select")
	}
	var v string
	if err := tdb.QueryRowContext(ctx, "SELECT content FROM messages WHERE message_id = ?", 99).Scan(&v); err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
	if got := collector.TotalRecorded(); got != 3 {
		t.Errorf("TotalRecorded = %d, want 3 (must record on error)", got)
	}
}

// TestTimedDB_CancelledContext verifies a cancelled context fails and is timed.
func TestTimedDB_CancelledContext(t *testing.T) {
	db := openTimedTestDB(t)
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(db, collector, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := tdb.ExecContext(ctx, "INSERT INTO messages (message_id, content) VALUES (?, ?)", 1, "x"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if collector.TotalRecorded() != 1 {
		t.Errorf("TotalRecorded = %d, want 1", collector.TotalRecorded())
	}
}

// TestTimedDB_NilCollectorAndRawDB verifies the wrapper works without a
// collector and exposes the original handle.
func TestTimedDB_NilCollectorAndRawDB(t *testing.T) {
	db := openTimedTestDB(t)
	tdb := NewTimedDB(db, nil, 5)

	res, err := tdb.ExecContext(context.Background(), "INSERT INTO messages (message_id, content) VALUES (?, ?)", 1, "x")
	if err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Errorf("RowsAffected = %d, want 1", n)
	}
	if tdb.RawDB() != db {
		t.Error("RawDB() should return the original *sql.DB")
	}
	if tdb.threshold != 5 {
		t.Errorf("threshold = %v, want 5", tdb.threshold)
	}
	if NewTimedDB(db, nil, 0).threshold != DefaultSlowQueryMs {
		t.Error("zero threshold should select the default")
	}
}

// TestQueryLabel verifies statement summaries used as perf paths.
func TestQueryLabel(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT message_id, content FROM messages WHERE user_id = ?", "SELECT messages"},
		{"select * from account", "SELECT account"},
		{"INSERT INTO messages(content, user_id) VALUES (?, ?)", "INSERT messages"},
		{"UPDATE messages SET content = ? WHERE message_id = ?", "UPDATE messages"},
		{"DELETE FROM access_token WHERE token = ?", "DELETE access_token"},
		{"SELECT 1", "SELECT"},
		{"PRAGMA foreign_keys=ON", "PRAGMA"},
		{"   ", "EMPTY"},
	}
	for _, tt := range tests {
		if got := queryLabel(tt.query); got != tt.want {
			t.Errorf("queryLabel(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

// TestTimedDB_ConcurrentMixedOps verifies no races under concurrent use.
func TestTimedDB_ConcurrentMixedOps(t *testing.T) {
	db := openTimedTestDB(t)
	collector := perf.NewCollector(1000)
	tdb := NewTimedDB(db, collector, 0)
	ctx := context.Background()

	tdb.ExecContext(ctx, "INSERT INTO messages (message_id, content) VALUES (?, ?)", 1, "seed")

	done := make(chan struct{})
	var wg sync.WaitGroup
	ops := []func(){
		func() {
			tdb.ExecContext(ctx, "INSERT OR REPLACE INTO messages (message_id, content) VALUES (?, ?)", 2, "w")
		},
		func() {
			if rows, err := tdb.QueryContext(ctx, "SELECT message_id FROM messages LIMIT 1"); err == nil {
				rows.Close()
			}
		},
		func() {
			var v string
			tdb.QueryRowContext(ctx, "SELECT content FROM messages WHERE message_id = ?", 1).Scan(&v)
		},
	}
	for _, op := range ops {
		wg.Add(1)
		go func(op func()) {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					op()
				}
			}
		}(op)
	}

	time.Sleep(100 * time.Millisecond)
	close(done)
	wg.Wait()

	if collector.TotalRecorded() < 4 {
		t.Errorf("TotalRecorded = %d, want >= 4", collector.TotalRecorded())
	}
}

// BenchmarkTimedDB_Overhead compares TimedDB against the raw handle.
func BenchmarkTimedDB_Overhead(b *testing.B) {
	db, _ := sql.Open("sqlite", ":memory:")
	defer db.Close()
	db.Exec("CREATE TABLE messages (message_id INTEGER PRIMARY KEY, content TEXT)")
	db.Exec("INSERT INTO messages VALUES (1, 'x')")
	ctx := context.Background()

	b.Run("RawDB", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			db.QueryRowContext(ctx, "SELECT content FROM messages WHERE message_id = 1")
		}
	})

	tdb := NewTimedDB(db, perf.NewCollector(perf.DefaultRingSize), 0)
	b.Run("TimedDB", func(b *testing.B) {
		b.ReportAllocs()
		for i := 0; i < b.N; i++ {
			tdb.QueryRowContext(ctx, "SELECT content FROM messages WHERE message_id = 1")
		}
	})
}
