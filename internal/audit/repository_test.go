package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE command_audit (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			device_id TEXT NOT NULL,
			account_id TEXT,
			outcome TEXT NOT NULL,
			detail TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestRecordAndList(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []Entry{
		{Action: "TurnOn", DeviceID: "fp-1", AccountID: "acct-1", Outcome: "ON", CreatedAt: base},
		{Action: "TurnOff", DeviceID: "fp-1", AccountID: "acct-1", Outcome: "OFF", CreatedAt: base.Add(time.Minute)},
		{Action: "Update", DeviceID: "fp-2", Outcome: "error", Detail: "agent: device unreachable", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range seed {
		if err := repo.Record(ctx, &seed[i]); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
		if seed[i].ID == "" {
			t.Fatal("Record() did not assign an id")
		}
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 3 || len(result.Entries) != 3 {
		t.Fatalf("total = %d, entries = %d, want 3/3", result.Total, len(result.Entries))
	}
	// Most recent first.
	if result.Entries[0].Action != "Update" {
		t.Errorf("first entry = %q, want most recent Update", result.Entries[0].Action)
	}
	if result.Entries[0].Detail != "agent: device unreachable" {
		t.Errorf("detail = %q", result.Entries[0].Detail)
	}
}

func TestList_Filters(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	for _, e := range []Entry{
		{Action: "TurnOn", DeviceID: "fp-1", Outcome: "ON"},
		{Action: "TurnOn", DeviceID: "fp-2", Outcome: "ON"},
		{Action: "Update", DeviceID: "fp-1", Outcome: "UNKNOWN"},
	} {
		entry := e
		if err := repo.Record(ctx, &entry); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by action", Filter{Action: "TurnOn"}, 2},
		{"by device", Filter{DeviceID: "fp-1"}, 2},
		{"by both", Filter{Action: "TurnOn", DeviceID: "fp-1"}, 1},
		{"no match", Filter{Action: "TurnOff"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if result.Total != tt.want {
				t.Errorf("total = %d, want %d", result.Total, tt.want)
			}
		})
	}
}

func TestList_Pagination(t *testing.T) {
	repo := NewSQLiteRepository(setupTestDB(t))
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		entry := Entry{
			Action:    "TurnOn",
			DeviceID:  "fp-1",
			Outcome:   "ON",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Record(ctx, &entry); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 5 {
		t.Errorf("total = %d, want 5", result.Total)
	}
	if len(result.Entries) != 2 {
		t.Errorf("entries = %d, want page of 2", len(result.Entries))
	}
}
