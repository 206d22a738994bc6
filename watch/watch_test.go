package watch

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/darkzap/dbopen"
)

func bump(t *testing.T, db *sql.DB) int64 {
	t.Helper()
	var v int64
	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		var err error
		v, err = Bump(context.Background(), tx)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestBump(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx := context.Background()

	if v, err := UserVersion(ctx, db); err != nil || v != 0 {
		t.Fatalf("fresh database: %d, %v", v, err)
	}
	if v := bump(t, db); v != 1 {
		t.Fatalf("first bump returned %d", v)
	}
	bump(t, db)
	if v, _ := UserVersion(ctx, db); v != 2 {
		t.Fatalf("after two bumps: %d", v)
	}
}

func TestBump_RolledBack(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Bump(ctx, tx); err != nil {
		t.Fatal(err)
	}
	tx.Rollback()

	if v, _ := UserVersion(ctx, db); v != 0 {
		t.Fatalf("rolled back bump is visible: %d", v)
	}
}

// A bump committed through one handle is seen through another handle on the
// same file.
func TestUserVersion_AcrossHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")
	writer, err := dbopen.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	reader, err := dbopen.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	bump(t, writer)
	if v, err := UserVersion(context.Background(), reader); err != nil || v != 1 {
		t.Fatalf("reader sees %d, %v", v, err)
	}
}

func TestPoll(t *testing.T) {
	db := dbopen.OpenMemory(t)
	p := NewPoller(db, time.Hour, nil)
	ctx := context.Background()

	calls := 0
	action := func(context.Context) error { calls++; return nil }

	if p.poll(ctx, action) {
		t.Fatal("fired with no change")
	}
	bump(t, db)
	bump(t, db)
	if !p.poll(ctx, action) || calls != 1 {
		t.Fatalf("two bumps should fire once, calls = %d", calls)
	}
	if p.poll(ctx, action) {
		t.Fatal("fired again without a new bump")
	}

	want := Stats{Seen: 2, Polls: 3, Fired: 1}
	if diff := cmp.Diff(want, p.Stats()); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
}

func TestPoll_FailedActionRetries(t *testing.T) {
	db := dbopen.OpenMemory(t)
	p := NewPoller(db, time.Hour, nil)
	ctx := context.Background()
	bump(t, db)

	fail := true
	action := func(context.Context) error {
		if fail {
			return errors.New("reload failed")
		}
		return nil
	}
	if p.poll(ctx, action) {
		t.Fatal("failed action reported success")
	}
	if p.Seen() != 0 {
		t.Fatalf("Seen advanced to %d after failure", p.Seen())
	}

	fail = false
	if !p.poll(ctx, action) || p.Seen() != 1 {
		t.Fatalf("retry: Seen = %d", p.Seen())
	}
	if s := p.Stats(); s.Failed != 1 || s.Fired != 1 {
		t.Errorf("stats: %+v", s)
	}
}

func TestRun(t *testing.T) {
	db := dbopen.OpenMemory(t)
	p := NewPoller(db, 5*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())

	var fired atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, func(context.Context) error {
			fired.Add(1)
			return nil
		})
	}()

	// Let Run record the starting counter before writing.
	time.Sleep(30 * time.Millisecond)
	bump(t, db)

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if fired.Load() != 1 {
		t.Fatalf("fired %d times, want 1", fired.Load())
	}
	if p.Seen() != 1 {
		t.Fatalf("Seen = %d", p.Seen())
	}
}
