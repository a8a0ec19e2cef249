package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Artifact describes one routed report file, located by its path relative to
// the pipelines root: <channel>/[<category>/]<date>/<id>.json.
type Artifact struct {
	RelPath  string `json:"path"`
	Channel  string `json:"channel"`
	Category string `json:"category"`
	Date     string `json:"date"`
	ID       string `json:"id"`
}

// ArtifactStore reads and writes routed artifacts under a root directory.
type ArtifactStore struct {
	root string
}

// NewArtifactStore creates an ArtifactStore rooted at root.
func NewArtifactStore(root string) *ArtifactStore {
	return &ArtifactStore{root: root}
}

// Root returns the pipelines root directory.
func (s *ArtifactStore) Root() string {
	return s.root
}

// ArtifactPath builds the slash-separated relative path of an artifact. An
// empty category omits the category segment.
func ArtifactPath(channel, category, date, id string) string {
	if category == "" {
		return path.Join(channel, date, id+".json")
	}
	return path.Join(channel, category, date, id+".json")
}

// ParseArtifactPath splits a relative artifact path into its parts. Paths
// without a category segment report category "other".
func ParseArtifactPath(rel string) (Artifact, error) {
	rel = filepath.ToSlash(rel)
	if !strings.HasSuffix(rel, ".json") {
		return Artifact{}, fmt.Errorf("artifact path %q: not a .json file", rel)
	}
	parts := strings.Split(rel, "/")
	a := Artifact{RelPath: rel, ID: strings.TrimSuffix(parts[len(parts)-1], ".json")}
	switch len(parts) {
	case 3:
		a.Channel, a.Category, a.Date = parts[0], "other", parts[1]
	case 4:
		a.Channel, a.Category, a.Date = parts[0], parts[1], parts[2]
	default:
		return Artifact{}, fmt.Errorf("artifact path %q: expected 3 or 4 segments, got %d", rel, len(parts))
	}
	return a, nil
}

// Write stores data at the relative path, creating parent directories. The
// write goes through a temp file and rename so readers never observe a
// partial artifact.
func (s *ArtifactStore) Write(rel string, data []byte) error {
	full, err := s.abs(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("creating artifact directory for %s: %w", rel, err)
	}
	return writeFileAtomic(full, data, 0o644)
}

// Read returns the bytes of the artifact at rel.
func (s *ArtifactStore) Read(rel string) ([]byte, error) {
	full, err := s.abs(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("reading artifact %s: %w", rel, err)
	}
	return data, nil
}

// Exists reports whether an artifact file is present at rel.
func (s *ArtifactStore) Exists(rel string) (bool, error) {
	full, err := s.abs(rel)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(full)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking artifact %s: %w", rel, err)
}

// List walks the root and returns every artifact, sorted by path. Files that
// do not match the artifact layout are ignored. A missing root yields no
// artifacts.
func (s *ArtifactStore) List() ([]Artifact, error) {
	var out []Artifact
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == s.root {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		a, err := ParseArtifactPath(rel)
		if err != nil {
			return nil
		}
		out = append(out, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking pipelines root %s: %w", s.root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RelPath < out[j].RelPath })
	return out, nil
}

// abs resolves rel under the root, refusing paths that escape it.
func (s *ArtifactStore) abs(rel string) (string, error) {
	clean := path.Clean(filepath.ToSlash(rel))
	if clean == "." || strings.HasPrefix(clean, "../") || clean == ".." || path.IsAbs(clean) {
		return "", fmt.Errorf("artifact path %q escapes the pipelines root", rel)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func writeFileAtomic(name string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting permissions on %s: %w", name, err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", name, err)
	}
	return nil
}
