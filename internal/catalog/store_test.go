package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/procreport/internal/report"
)

func openTestStore(t *testing.T, opts ...Option) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "catalog", "reports.db"), opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, dir
}

func writeReport(t *testing.T, dir string, n int, generated bool, at time.Time) report.Record {
	t.Helper()
	name := fmt.Sprintf("ProcReport.20260101.000000.1.%03d.txt", n)
	if !generated {
		name = fmt.Sprintf("named-%d.txt", n)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("report"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return report.Record{
		ReportID:  fmt.Sprintf("id-%d", n),
		Filename:  name,
		Path:      path,
		Event:     "apicall",
		Message:   "API call",
		Location:  "TriggerReport",
		Bytes:     6,
		Generated: generated,
		CreatedAt: at,
	}
}

func TestOpen_CreatesDirectoryAndMigrates(t *testing.T) {
	t.Parallel()
	store, _ := openTestStore(t)

	if _, err := os.Stat(store.Path()); err != nil {
		t.Fatalf("database file missing: %v", err)
	}
	// A second open against the same file must not reapply the schema.
	again, err := Open(store.Path())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	_ = again.Close()
}

func TestStore_RecordAndList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, dir := openTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		if err := store.Record(ctx, writeReport(t, dir, i, true, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() = %d entries, want 3", len(entries))
	}
	if entries[0].ReportID != "id-3" || entries[2].ReportID != "id-1" {
		t.Errorf("order = %s..%s, want newest first", entries[0].ReportID, entries[2].ReportID)
	}
	if !entries[0].Generated || entries[0].Bytes != 6 || entries[0].Location != "TriggerReport" {
		t.Errorf("entry fields = %+v", entries[0])
	}
	if !entries[0].CreatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("created = %v", entries[0].CreatedAt)
	}

	limited, err := store.List(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Errorf("List(2) = %d entries, err %v", len(limited), err)
	}
}

func TestStore_LatestAndGet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, dir := openTestStore(t)

	if _, err := store.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest() on empty catalog error = %v, want ErrNotFound", err)
	}

	rec := writeReport(t, dir, 7, false, time.Now())
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	latest, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Filename != rec.Filename {
		t.Errorf("Latest() = %q, want %q", latest.Filename, rec.Filename)
	}

	got, err := store.Get(ctx, "id-7")
	if err != nil || got.Path != rec.Path {
		t.Errorf("Get() = %+v, %v", got, err)
	}
	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestStore_DuplicateReportIDRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, dir := openTestStore(t)

	rec := writeReport(t, dir, 1, true, time.Now())
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := store.Record(ctx, rec); err == nil {
		t.Error("expected error for duplicate report id")
	}
}

func TestStore_RecordPrunesGeneratedReports(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, dir := openTestStore(t, WithMaxFiles(2))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	named := writeReport(t, dir, 100, false, base)
	if err := store.Record(ctx, named); err != nil {
		t.Fatalf("Record(named) error = %v", err)
	}

	var recs []report.Record
	for i := 1; i <= 4; i++ {
		rec := writeReport(t, dir, i, true, base.Add(time.Duration(i)*time.Second))
		recs = append(recs, rec)
		if err := store.Record(ctx, rec); err != nil {
			t.Fatalf("Record(%d) error = %v", i, err)
		}
	}

	for _, rec := range recs[:2] {
		if _, err := os.Stat(rec.Path); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed, stat err = %v", rec.Filename, err)
		}
	}
	for _, rec := range append(recs[2:], named) {
		if _, err := os.Stat(rec.Path); err != nil {
			t.Errorf("%s should remain: %v", rec.Filename, err)
		}
	}

	entries, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("catalog has %d entries, want 2 generated + 1 named", len(entries))
	}
}

func TestStore_PruneToleratesMissingFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, dir := openTestStore(t)

	rec := writeReport(t, dir, 1, true, time.Now())
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := os.Remove(rec.Path); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	removed, err := store.Prune(ctx, 0)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Prune() removed %d, want 1", removed)
	}
	if _, err := store.Latest(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("catalog not empty after prune: %v", err)
	}
}

func TestStore_Content(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, dir := openTestStore(t)

	rec := writeReport(t, dir, 3, true, time.Now())
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	entry, data, err := store.Content(ctx, "id-3")
	if err != nil {
		t.Fatalf("Content() error = %v", err)
	}
	if entry.Path != rec.Path || string(data) != "report" {
		t.Errorf("Content() = %q from %q", data, entry.Path)
	}

	if _, _, err := store.Content(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Content(missing) error = %v, want ErrNotFound", err)
	}

	if err := os.Remove(rec.Path); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Content(ctx, "id-3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Content(removed file) error = %v, want ErrNotFound", err)
	}
}
