// Package archive implements the two-tier version history store:
// recent versions stay as individually readable rows, older versions
// are batched into immutable zlib-compressed blobs.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/zlib"

	"concord/api/internal/store"
	"concord/api/internal/util"
)

// Backend is the persistence surface the tiers sit on.
type Backend interface {
	ListRecentVersions(ctx context.Context, paragraphID string) ([]store.VersionEntry, error)
	ArchiveVersionBatch(ctx context.Context, blob store.VersionArchive) error
	ListVersionArchives(ctx context.Context, paragraphID string) ([]store.VersionArchive, error)
	DropVersionArchives(ctx context.Context, paragraphID string, archiveIDs []string) error
}

// Cache holds decompressed blob contents keyed by archive id. Blobs
// are immutable, so entries never need invalidation.
type Cache interface {
	Get(ctx context.Context, archiveID string) ([]store.VersionEntry, bool)
	Set(ctx context.Context, archiveID string, entries []store.VersionEntry)
}

type Config struct {
	// MaxRecent is the Tier 1 size.
	MaxRecent int
	// BatchSize is how many aged-out entries go into one blob.
	BatchSize int
	// MaxTotal caps retained versions across both tiers; beyond it the
	// oldest blobs are dropped.
	MaxTotal int
}

func (c Config) withDefaults() Config {
	if c.MaxRecent <= 0 {
		c.MaxRecent = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 6
	}
	if c.MaxTotal <= 0 {
		c.MaxTotal = 50
	}
	return c
}

type Store struct {
	backend Backend
	cache   Cache
	cfg     Config

	// blobs are immutable, so one that failed to decode stays broken;
	// remember it to avoid re-decoding and re-logging on every read
	corruptMu sync.Mutex
	corrupt   map[string]struct{}
}

func New(backend Backend, cache Cache, cfg Config) *Store {
	return &Store{
		backend: backend,
		cache:   cache,
		cfg:     cfg.withDefaults(),
		corrupt: make(map[string]struct{}),
	}
}

func (s *Store) isCorrupt(archiveID string) bool {
	s.corruptMu.Lock()
	defer s.corruptMu.Unlock()
	_, found := s.corrupt[archiveID]
	return found
}

func (s *Store) markCorrupt(archiveID string) {
	s.corruptMu.Lock()
	defer s.corruptMu.Unlock()
	s.corrupt[archiveID] = struct{}{}
}

// Compact migrates aged-out Tier 1 entries into compressed blobs and
// enforces the total retention cap. Runs after a replacement commits;
// a failure here leaves history readable and is safe to retry.
// Tier 1 may briefly exceed MaxRecent: entries only move once a full
// batch has aged out, so blobs stay uniformly sized.
func (s *Store) Compact(ctx context.Context, paragraphID string) error {
	recent, err := s.backend.ListRecentVersions(ctx, paragraphID)
	if err != nil {
		return fmt.Errorf("compact %s: %w", paragraphID, err)
	}

	// recent is newest-first; batches come off the old end
	for len(recent)-s.cfg.MaxRecent >= s.cfg.BatchSize {
		batch := make([]store.VersionEntry, s.cfg.BatchSize)
		for i := range batch {
			batch[i] = recent[len(recent)-1-i]
		}

		payload, err := encodeEntries(batch)
		if err != nil {
			return fmt.Errorf("compact %s: %w", paragraphID, err)
		}
		blob := store.VersionArchive{
			ID:          util.NewID("arc"),
			ParagraphID: paragraphID,
			FromVersion: batch[0].Version,
			ToVersion:   batch[len(batch)-1].Version,
			Payload:     payload,
		}
		if err := s.backend.ArchiveVersionBatch(ctx, blob); err != nil {
			return fmt.Errorf("compact %s: %w", paragraphID, err)
		}
		recent = recent[:len(recent)-s.cfg.BatchSize]
	}

	return s.enforceCap(ctx, paragraphID, len(recent))
}

func (s *Store) enforceCap(ctx context.Context, paragraphID string, recentCount int) error {
	blobs, err := s.backend.ListVersionArchives(ctx, paragraphID)
	if err != nil {
		return fmt.Errorf("enforce cap %s: %w", paragraphID, err)
	}

	retained := recentCount
	var drop []string
	for _, blob := range blobs { // newest-first
		if retained >= s.cfg.MaxTotal {
			drop = append(drop, blob.ID)
			continue
		}
		retained += blob.Span()
	}
	if len(drop) == 0 {
		return nil
	}
	if err := s.backend.DropVersionArchives(ctx, paragraphID, drop); err != nil {
		return fmt.Errorf("enforce cap %s: %w", paragraphID, err)
	}
	return nil
}

// History merges both tiers newest-first. A blob that fails to
// decompress is skipped and logged once; the rest of the history is
// still returned.
func (s *Store) History(ctx context.Context, paragraphID string) ([]store.VersionEntry, error) {
	recent, err := s.backend.ListRecentVersions(ctx, paragraphID)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", paragraphID, err)
	}
	blobs, err := s.backend.ListVersionArchives(ctx, paragraphID)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", paragraphID, err)
	}

	entries := append([]store.VersionEntry(nil), recent...)
	for _, blob := range blobs {
		if s.isCorrupt(blob.ID) {
			continue
		}
		if cached, ok := s.cache.Get(ctx, blob.ID); ok {
			entries = append(entries, cached...)
			continue
		}
		decoded, err := decodeEntries(paragraphID, blob.Payload)
		if err != nil {
			log.Printf("archive: skipping blob %s (versions %d-%d) for paragraph %s: %v",
				blob.ID, blob.FromVersion, blob.ToVersion, paragraphID, err)
			s.markCorrupt(blob.ID)
			continue
		}
		s.cache.Set(ctx, blob.ID, decoded)
		entries = append(entries, decoded...)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Version > entries[j].Version })
	if len(entries) > s.cfg.MaxTotal {
		entries = entries[:s.cfg.MaxTotal]
	}
	return entries, nil
}

// wireEntry is the compact blob serialization of a version entry. The
// paragraph id is implied by the blob row.
type wireEntry struct {
	Version     int     `json:"v"`
	Text        string  `json:"t"`
	ReplacedBy  string  `json:"rb,omitempty"`
	Consensus   float64 `json:"c"`
	FinalizedBy string  `json:"fb,omitempty"`
	FinalizedAt int64   `json:"fa"`
	AdminEdited bool    `json:"ae,omitempty"`
	AdminNotes  string  `json:"an,omitempty"`
}

func encodeEntries(entries []store.VersionEntry) ([]byte, error) {
	wire := make([]wireEntry, len(entries))
	for i, entry := range entries {
		wire[i] = wireEntry{
			Version:     entry.Version,
			Text:        entry.Text,
			ReplacedBy:  entry.ReplacedBy,
			Consensus:   entry.Consensus,
			FinalizedBy: entry.FinalizedBy,
			FinalizedAt: entry.FinalizedAt.Unix(),
			AdminEdited: entry.AdminEdited,
			AdminNotes:  entry.AdminNotes,
		}
	}

	var buf bytes.Buffer
	compressor := zlib.NewWriter(&buf)
	if err := json.NewEncoder(compressor).Encode(wire); err != nil {
		return nil, fmt.Errorf("encode archive payload: %w", err)
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("flush archive payload: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeEntries(paragraphID string, payload []byte) ([]store.VersionEntry, error) {
	decompressor, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("open archive payload: %w", err)
	}
	defer decompressor.Close()

	var wire []wireEntry
	if err := json.NewDecoder(decompressor).Decode(&wire); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode archive payload: %w", err)
	}

	entries := make([]store.VersionEntry, len(wire))
	for i, w := range wire {
		entries[i] = store.VersionEntry{
			ParagraphID: paragraphID,
			Version:     w.Version,
			Text:        w.Text,
			ReplacedBy:  w.ReplacedBy,
			Consensus:   w.Consensus,
			FinalizedBy: w.FinalizedBy,
			FinalizedAt: time.Unix(w.FinalizedAt, 0).UTC(),
			AdminEdited: w.AdminEdited,
			AdminNotes:  w.AdminNotes,
		}
	}
	return entries, nil
}
