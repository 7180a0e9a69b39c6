package repo

import (
	"context"
	"testing"
)

func TestStats_EmptyStore(t *testing.T) {
	db := newTestDB(t)
	tc, err := Stats(context.Background(), db)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if tc != (TableCounts{}) {
		t.Fatalf("expected zero counts, got %+v", tc)
	}
}

func TestStats_CountError_NoTable(t *testing.T) {
	db, err := OpenSQLite(t.TempDir() + "/bare.db")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := Stats(context.Background(), db); err == nil {
		t.Fatalf("expected error due to missing tables")
	}
}

func TestStats_CountsRowsAndUnlinkedBodies(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for _, id := range []string{userID, otherID} {
		if _, _, err := ResolveUser(ctx, db, id); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}
	if _, _, err := ResolveChannel(ctx, db, userID); err != nil {
		t.Fatalf("seed channel: %v", err)
	}
	if err := CreateMessage(ctx, db, newMessage(msgID)); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	// Body written but never linked, as after an interrupted run.
	if _, _, err := ResolveBody(ctx, db, msgID, "hi"); err != nil {
		t.Fatalf("ResolveBody: %v", err)
	}

	tc, err := Stats(ctx, db)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	want := TableCounts{Users: 2, Channels: 1, Messages: 1, Bodies: 1, WithoutBody: 1, UnlinkedBodies: 1}
	if tc != want {
		t.Fatalf("Stats = %+v, want %+v", tc, want)
	}
}
