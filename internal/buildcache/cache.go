// Package buildcache provides the incremental generation cache.
//
// A package whose source, manifest entry, and generator schema are all
// unchanged since the last successful run is skipped entirely. The cache is
// intentionally conservative: if ANY check fails, the package regenerates
// from scratch. There are no partial invalidation shortcuts, because one
// schema change can reshape the imports of any emitted file.
package buildcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/nickelgen/nickelgen/internal/config"
)

// SchemaVersion is bumped when the cache format or the generated output
// format changes. A mismatch forces a full regeneration, so binary upgrades
// never leave stale output trees behind.
const SchemaVersion = 1

// FileName is the cache file kept inside each package's output directory.
// Deleting the output directory also removes the cache, guaranteeing a
// fresh build.
const FileName = ".nickelgen-cache"

// Cache records what was true when a package last generated successfully.
type Cache struct {
	// V is the schema version. Must match SchemaVersion or the cache is
	// invalid.
	V int `json:"v"`

	// SourceHash fingerprints the package's schema source: content for
	// local files, pinned coordinates for remote sources.
	SourceHash string `json:"sourceHash"`

	// EntryHash fingerprints the package's manifest entry, so editing the
	// manifest invalidates the package it describes.
	EntryHash string `json:"entryHash"`

	// Outputs lists file paths that must still exist on disk for the
	// cache to be valid.
	Outputs []string `json:"outputs,omitempty"`
}

// New creates a cache entry with the current schema version.
func New(sourceHash, entryHash string, outputs []string) *Cache {
	return &Cache{
		V:          SchemaVersion,
		SourceHash: sourceHash,
		EntryHash:  entryHash,
		Outputs:    outputs,
	}
}

// Path returns the cache file path inside a package's output directory.
func Path(outputDir string) string {
	return filepath.Join(outputDir, FileName)
}

// Load reads a cache file. It returns nil if the file doesn't exist, is
// unreadable, or doesn't decode; callers treat nil as a miss and run the
// full generation.
func Load(path string) *Cache {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var c Cache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil
	}
	return &c
}

// Save writes the cache atomically (temp file, then rename). A failed save
// only costs the next run its skip, so callers may log and continue.
func Save(path string, cache *Cache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming cache file: %w", err)
	}
	return nil
}

// Delete removes the cache file. Errors are ignored; the file may not
// exist.
func Delete(path string) {
	os.Remove(path)
}

// IsValid reports whether the cached generation can be trusted. ALL of the
// following must hold:
//
//  1. Schema version matches (catches binary upgrades)
//  2. Source hash matches and is non-empty
//  3. Manifest entry hash matches
//  4. Every recorded output file still exists on disk
func (c *Cache) IsValid(sourceHash, entryHash string) bool {
	if c == nil || c.V != SchemaVersion {
		return false
	}
	if sourceHash == "" || c.SourceHash != sourceHash {
		return false
	}
	if c.EntryHash != entryHash {
		return false
	}
	for _, path := range c.Outputs {
		if _, err := os.Stat(path); err != nil {
			return false
		}
	}
	return true
}

// SourceKey derives the source fingerprint for a package. Remote sources
// key on their pinned coordinates; local files key on content. An empty
// key never validates, so unreadable sources always regenerate.
func SourceKey(p config.Package) string {
	switch p.Type {
	case config.SourceK8sCore:
		return HashBytes([]byte("k8s-core\x00" + p.EffectiveVersion()))
	case config.SourceURL:
		return HashBytes([]byte("url\x00" + p.ResolvedURL()))
	case config.SourceCRD, config.SourceOpenAPI, config.SourceGo:
		return HashPath(p.File)
	default:
		return ""
	}
}

// EntryKey fingerprints the manifest entry itself.
func EntryKey(p config.Package) string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return HashBytes(data)
}

// HashBytes computes the SHA-256 hex digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashFile computes the SHA-256 hex digest of a file's contents. It
// returns the empty string if the file can't be read.
func HashFile(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return HashBytes(data)
}

// HashPath fingerprints a file, or every regular file under a directory in
// sorted path order, so Go package sources digest stably.
func HashPath(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	if !info.IsDir() {
		return HashFile(path)
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return ""
	}
	slices.Sort(files)

	h := sha256.New()
	for _, p := range files {
		data, err := os.ReadFile(p)
		if err != nil {
			return ""
		}
		fmt.Fprintf(h, "%s\x00%d\x00", p, len(data))
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))
}
