package assessment

import (
	"context"
	"testing"

	"github.com/yungbote/neurobridge-cat/internal/data/repos/testutil"
	"github.com/yungbote/neurobridge-cat/internal/pkg/dbctx"
	"github.com/yungbote/neurobridge-cat/internal/pkg/errors"
)

func TestItemExposureRepo_Increment(t *testing.T) {
	db := testutil.DB(t)
	repo := NewItemExposureRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	if n, err := repo.Get(dbc, "gf-01"); err != nil || n != 0 {
		t.Fatalf("Get unseen: want=0 got=%d err=%v", n, err)
	}
	for i := 0; i < 3; i++ {
		if err := repo.Increment(dbc, "gf-01"); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	if err := repo.Increment(dbc, "gf-02"); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if n, err := repo.Get(dbc, "gf-01"); err != nil || n != 3 {
		t.Fatalf("Get gf-01: want=3 got=%d err=%v", n, err)
	}

	rows, err := repo.ListAll(dbc)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(rows) != 2 || rows[0].ItemID != "gf-01" || rows[1].Count != 1 {
		t.Fatalf("ListAll: got=%+v", rows)
	}

	if err := repo.Increment(dbc, ""); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Fatalf("Increment empty id: want ErrInvalidArgument got=%v", err)
	}
}

func TestItemExposureRepo_Reset(t *testing.T) {
	db := testutil.DB(t)
	repo := NewItemExposureRepo(db, testutil.Logger(t))
	dbc := dbctx.New(context.Background())

	for _, id := range []string{"a", "a", "b", "c"} {
		if err := repo.Increment(dbc, id); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}
	if err := repo.Reset(dbc, []string{"a"}); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := repo.Get(dbc, "a"); n != 0 {
		t.Fatalf("a after reset: want=0 got=%d", n)
	}
	if n, _ := repo.Get(dbc, "b"); n != 1 {
		t.Fatalf("b after partial reset: want=1 got=%d", n)
	}
	if err := repo.Reset(dbc, nil); err != nil {
		t.Fatalf("Reset all: %v", err)
	}
	if n, _ := repo.Get(dbc, "c"); n != 0 {
		t.Fatalf("c after full reset: want=0 got=%d", n)
	}
}

func TestItemExposureRepo_Tx(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewItemExposureRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	if err := repo.Increment(dbc, "gq-07"); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if n, err := repo.Get(dbc, "gq-07"); err != nil || n != 1 {
		t.Fatalf("Get in tx: want=1 got=%d err=%v", n, err)
	}
}

func TestExposureLedger(t *testing.T) {
	db := testutil.DB(t)
	ledger := NewExposureLedger(NewItemExposureRepo(db, testutil.Logger(t)))
	ctx := context.Background()

	for _, id := range []string{"x", "y", "x"} {
		if err := ledger.Bump(ctx, id); err != nil {
			t.Fatalf("Bump: %v", err)
		}
	}
	if n, err := ledger.Count(ctx, "x"); err != nil || n != 2 {
		t.Fatalf("Count x: want=2 got=%d err=%v", n, err)
	}
	snap, err := ledger.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap) != 2 || snap["x"] != 2 || snap["y"] != 1 {
		t.Fatalf("Snapshot: got=%v", snap)
	}
}
