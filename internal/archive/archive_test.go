package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"concord/api/internal/store"
)

type fakeBackend struct {
	recent map[string][]store.VersionEntry
	blobs  map[string][]store.VersionArchive

	archiveCalls int
	failArchive  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		recent: make(map[string][]store.VersionEntry),
		blobs:  make(map[string][]store.VersionArchive),
	}
}

func (f *fakeBackend) append(paragraphID string, version int) {
	f.recent[paragraphID] = append(f.recent[paragraphID], store.VersionEntry{
		ParagraphID: paragraphID,
		Version:     version,
		Text:        fmt.Sprintf("text v%d", version),
		ReplacedBy:  fmt.Sprintf("sug_%d", version),
		Consensus:   0.6,
		FinalizedBy: "admin",
		FinalizedAt: time.Unix(1700000000+int64(version), 0).UTC(),
	})
}

func (f *fakeBackend) ListRecentVersions(_ context.Context, paragraphID string) ([]store.VersionEntry, error) {
	entries := append([]store.VersionEntry(nil), f.recent[paragraphID]...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Version > entries[j].Version })
	return entries, nil
}

func (f *fakeBackend) ArchiveVersionBatch(_ context.Context, blob store.VersionArchive) error {
	f.archiveCalls++
	if f.failArchive != nil {
		return f.failArchive
	}
	f.blobs[blob.ParagraphID] = append(f.blobs[blob.ParagraphID], blob)
	var kept []store.VersionEntry
	for _, entry := range f.recent[blob.ParagraphID] {
		if entry.Version < blob.FromVersion || entry.Version > blob.ToVersion {
			kept = append(kept, entry)
		}
	}
	f.recent[blob.ParagraphID] = kept
	return nil
}

func (f *fakeBackend) ListVersionArchives(_ context.Context, paragraphID string) ([]store.VersionArchive, error) {
	blobs := append([]store.VersionArchive(nil), f.blobs[paragraphID]...)
	sort.Slice(blobs, func(i, j int) bool { return blobs[i].ToVersion > blobs[j].ToVersion })
	return blobs, nil
}

func (f *fakeBackend) DropVersionArchives(_ context.Context, paragraphID string, archiveIDs []string) error {
	doomed := make(map[string]struct{}, len(archiveIDs))
	for _, id := range archiveIDs {
		doomed[id] = struct{}{}
	}
	var kept []store.VersionArchive
	for _, blob := range f.blobs[paragraphID] {
		if _, ok := doomed[blob.ID]; !ok {
			kept = append(kept, blob)
		}
	}
	f.blobs[paragraphID] = kept
	return nil
}

func newTestStore(t *testing.T, backend Backend, cfg Config) *Store {
	t.Helper()
	cache, err := NewMemoryCache(16)
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}
	return New(backend, cache, cfg)
}

func TestCompactSplitsTiers(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	tiered := newTestStore(t, backend, Config{MaxRecent: 4, BatchSize: 6, MaxTotal: 50})

	for version := 1; version <= 10; version++ {
		backend.append("par_1", version)
		if err := tiered.Compact(ctx, "par_1"); err != nil {
			t.Fatalf("compact after v%d: %v", version, err)
		}
	}

	recent, _ := backend.ListRecentVersions(ctx, "par_1")
	if len(recent) != 4 {
		t.Fatalf("tier 1 should hold 4 entries, got %d", len(recent))
	}
	for i, want := range []int{10, 9, 8, 7} {
		if recent[i].Version != want {
			t.Fatalf("tier 1 position %d: got v%d want v%d", i, recent[i].Version, want)
		}
	}

	blobs, _ := backend.ListVersionArchives(ctx, "par_1")
	if len(blobs) != 1 {
		t.Fatalf("expected one archive blob, got %d", len(blobs))
	}
	if blobs[0].FromVersion != 1 || blobs[0].ToVersion != 6 {
		t.Fatalf("blob should cover 1-6, covers %d-%d", blobs[0].FromVersion, blobs[0].ToVersion)
	}
}

func TestHistoryMergesWithoutGapsOrDuplicates(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	tiered := newTestStore(t, backend, Config{MaxRecent: 4, BatchSize: 6, MaxTotal: 50})

	for version := 1; version <= 10; version++ {
		backend.append("par_1", version)
		if err := tiered.Compact(ctx, "par_1"); err != nil {
			t.Fatalf("compact: %v", err)
		}
	}

	entries, err := tiered.History(ctx, "par_1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("expected 10 entries, got %d", len(entries))
	}
	for i, entry := range entries {
		want := 10 - i
		if entry.Version != want {
			t.Fatalf("position %d: got v%d want v%d", i, entry.Version, want)
		}
		if entry.Text != fmt.Sprintf("text v%d", want) {
			t.Fatalf("v%d text did not survive the archive round trip: %q", want, entry.Text)
		}
	}
	// archived entries keep their provenance
	if entries[9].FinalizedBy != "admin" || entries[9].ReplacedBy != "sug_1" {
		t.Fatalf("archived entry lost provenance: %+v", entries[9])
	}
}

func TestHistorySkipsCorruptBlob(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	tiered := newTestStore(t, backend, Config{MaxRecent: 2, BatchSize: 2, MaxTotal: 50})

	for version := 1; version <= 6; version++ {
		backend.append("par_1", version)
		if err := tiered.Compact(ctx, "par_1"); err != nil {
			t.Fatalf("compact: %v", err)
		}
	}
	blobs, _ := backend.ListVersionArchives(ctx, "par_1")
	if len(blobs) != 2 {
		t.Fatalf("expected two blobs, got %d", len(blobs))
	}
	// corrupt the blob covering versions 1-2
	for i := range backend.blobs["par_1"] {
		if backend.blobs["par_1"][i].FromVersion == 1 {
			backend.blobs["par_1"][i].Payload = []byte("not zlib")
		}
	}

	entries, err := tiered.History(ctx, "par_1")
	if err != nil {
		t.Fatalf("a corrupt blob must not fail the whole read: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("expected partial history of 4 entries, got %d", len(entries))
	}
	for _, entry := range entries {
		if entry.Version <= 2 {
			t.Fatalf("corrupt blob contents should be absent, saw v%d", entry.Version)
		}
	}
}

func TestHistoryLogsCorruptBlobOnce(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	tiered := newTestStore(t, backend, Config{MaxRecent: 2, BatchSize: 2, MaxTotal: 50})

	for version := 1; version <= 6; version++ {
		backend.append("par_1", version)
		if err := tiered.Compact(ctx, "par_1"); err != nil {
			t.Fatalf("compact: %v", err)
		}
	}
	for i := range backend.blobs["par_1"] {
		if backend.blobs["par_1"][i].FromVersion == 1 {
			backend.blobs["par_1"][i].Payload = []byte("not zlib")
		}
	}

	var logged bytes.Buffer
	log.SetOutput(&logged)
	defer log.SetOutput(os.Stderr)

	for read := 1; read <= 3; read++ {
		entries, err := tiered.History(ctx, "par_1")
		if err != nil {
			t.Fatalf("read %d: %v", read, err)
		}
		if len(entries) != 4 {
			t.Fatalf("read %d: expected partial history of 4 entries, got %d", read, len(entries))
		}
	}

	if got := strings.Count(logged.String(), "skipping blob"); got != 1 {
		t.Fatalf("a broken blob should be logged once, got %d log lines:\n%s", got, logged.String())
	}
}

func TestHistoryServesBlobsFromCache(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	tiered := newTestStore(t, backend, Config{MaxRecent: 2, BatchSize: 4, MaxTotal: 50})

	for version := 1; version <= 6; version++ {
		backend.append("par_1", version)
		if err := tiered.Compact(ctx, "par_1"); err != nil {
			t.Fatalf("compact: %v", err)
		}
	}
	if _, err := tiered.History(ctx, "par_1"); err != nil {
		t.Fatalf("first read: %v", err)
	}

	// corrupt the stored payload; a second read must come from cache
	for i := range backend.blobs["par_1"] {
		backend.blobs["par_1"][i].Payload = []byte("garbage")
	}
	entries, err := tiered.History(ctx, "par_1")
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("cached blob should still serve all 6 entries, got %d", len(entries))
	}
}

func TestCompactEnforcesTotalCap(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	tiered := newTestStore(t, backend, Config{MaxRecent: 2, BatchSize: 2, MaxTotal: 6})

	for version := 1; version <= 12; version++ {
		backend.append("par_1", version)
		if err := tiered.Compact(ctx, "par_1"); err != nil {
			t.Fatalf("compact: %v", err)
		}
	}

	entries, err := tiered.History(ctx, "par_1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) > 6 {
		t.Fatalf("retention cap exceeded: %d entries", len(entries))
	}
	// the newest versions survive, the oldest blobs are dropped
	if entries[0].Version != 12 {
		t.Fatalf("newest entry should be v12, got v%d", entries[0].Version)
	}
	blobs, _ := backend.ListVersionArchives(ctx, "par_1")
	for _, blob := range blobs {
		if blob.ToVersion <= 4 {
			t.Fatalf("oldest blobs should have been dropped, found %d-%d", blob.FromVersion, blob.ToVersion)
		}
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	entries := []store.VersionEntry{
		{ParagraphID: "par_1", Version: 3, Text: "hello", ReplacedBy: "sug_9",
			Consensus: 0.71, FinalizedBy: "root", FinalizedAt: time.Unix(1700000123, 0).UTC(),
			AdminEdited: true, AdminNotes: "tightened wording"},
	}
	payload, err := encodeEntries(entries)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := decodeEntries("par_1", payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0] != entries[0] {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", decoded[0], entries[0])
	}
}
