package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalnine/ripedome/internal/matrix"
	"github.com/signalnine/ripedome/internal/result"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trials.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func trial(mode matrix.Mode, ptr matrix.CodePointer, v result.Verdict, tags ...result.Tag) *result.TrialResult {
	return &result.TrialResult{
		Mode: mode,
		Params: matrix.Params{
			Technique: matrix.Direct,
			Location:  matrix.Stack,
			Pointer:   ptr,
			Attack:    matrix.NoNop,
			Function:  matrix.Memcpy,
		},
		Verdict:   v,
		Successes: 1,
		Attempts:  3,
		Repeat:    3,
		Tags:      tags,
	}
}

func TestOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trials.db")
	for i := 0; i < 2; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() #%d failed: %v", i, err)
		}
		var version int
		if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
			t.Fatalf("user_version: %v", err)
		}
		if version != currentSchemaVersion {
			t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
		}
		s.Close()
	}
}

func TestWriteAndReadTrials(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	run := Run{ID: "run-1", Started: time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC), Techniques: []string{"direct", "indirect"}, Repeat: 3}
	if err := s.WriteRun(ctx, run); err != nil {
		t.Fatalf("WriteRun() failed: %v", err)
	}

	want := []*result.TrialResult{
		trial(matrix.GCC, matrix.Ret, result.Success),
		trial(matrix.GCC, matrix.BasePtr, result.PartialSuccess,
			result.Tag{Name: "SEGFAULT", Severity: result.Severe},
			result.Tag{Name: "SpecialPayload", Severity: result.Info}),
		trial(matrix.ClangCFI, matrix.FuncPtrHeap, result.NotPossible),
	}
	for i, tr := range want {
		if err := s.WriteTrial(ctx, run.ID, i, tr); err != nil {
			t.Fatalf("WriteTrial(%d) failed: %v", i, err)
		}
	}

	got, err := s.ReadTrials(ctx, run.ID)
	if err != nil {
		t.Fatalf("ReadTrials() failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d trials, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Mode != want[i].Mode || got[i].Params != want[i].Params || got[i].Verdict != want[i].Verdict {
			t.Errorf("trial %d = %+v, want %+v", i, got[i], *want[i])
		}
	}
	if len(got[1].Tags) != 2 || got[1].Tags[0].Name != "SEGFAULT" || got[1].Tags[1].Severity != result.Info {
		t.Errorf("tags = %+v", got[1].Tags)
	}
	if len(got[0].Tags) != 0 {
		t.Errorf("untagged trial has tags %+v", got[0].Tags)
	}
}

func TestWriteTrialDuplicateKeepsFirst(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.WriteRun(ctx, Run{ID: "r", Started: time.Now()}); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteTrial(ctx, "r", 0, trial(matrix.GCC, matrix.Ret, result.Success)); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteTrial(ctx, "r", 0, trial(matrix.GCC, matrix.Ret, result.Failure)); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadTrials(ctx, "r")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Verdict != result.Success {
		t.Errorf("got %+v, want the first write only", got)
	}
}

func TestWriteTrialUnknownRun(t *testing.T) {
	s := openTest(t)
	err := s.WriteTrial(context.Background(), "missing", 0, trial(matrix.GCC, matrix.Ret, result.Success))
	if err == nil {
		t.Error("expected foreign key error for unknown run")
	}
}

func TestAggregates(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if err := s.WriteRun(ctx, Run{ID: "r", Started: time.Now()}); err != nil {
		t.Fatal(err)
	}
	verdicts := []struct {
		mode matrix.Mode
		v    result.Verdict
	}{
		{matrix.ClangSafeStack, result.Success},
		{matrix.ClangSafeStack, result.Failure},
		{matrix.ClangSafeStack, result.NotPossible},
		{matrix.GCC, result.PartialSuccess},
		{matrix.GCC, result.Success},
	}
	for i, v := range verdicts {
		if err := s.WriteTrial(ctx, "r", i, trial(v.mode, matrix.Ret, v.v)); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Aggregates(ctx, "r")
	if err != nil {
		t.Fatalf("Aggregates() failed: %v", err)
	}
	want := []result.ModeAggregate{
		{Mode: matrix.ClangSafeStack, OK: 1, Fail: 1, NP: 1},
		{Mode: matrix.GCC, OK: 1, Some: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("aggregate %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestLatestRun(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	if _, err := s.LatestRun(ctx); !errors.Is(err, ErrNoRuns) {
		t.Fatalf("LatestRun() on empty ledger = %v, want ErrNoRuns", err)
	}

	older := Run{ID: "a", Started: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Techniques: []string{"direct"}, Repeat: 1}
	newer := Run{ID: "b", Started: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), Techniques: []string{"direct", "indirect"}, Repeat: 5}
	for _, r := range []Run{older, newer} {
		if err := s.WriteRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun() failed: %v", err)
	}
	if got.ID != "b" || got.Repeat != 5 || len(got.Techniques) != 2 || !got.Started.Equal(newer.Started) {
		t.Errorf("LatestRun() = %+v, want %+v", got, newer)
	}
}
