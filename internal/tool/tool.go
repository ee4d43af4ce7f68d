// Package tool defines the tool descriptions the planner produces and the
// twin-file persistence (source + metadata) that makes them durable across
// runs. The on-disk copy is the source of truth; in-memory descriptions are
// refreshed from disk, never the other way around.
package tool

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// SourceDirName and MetadataDirName are the sandbox subdirectories holding
// tool source files and their metadata twins.
const (
	SourceDirName   = "tools"
	MetadataDirName = "metadata"
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidName reports whether name is usable as a tool identifier and
// as the artifact filename stem.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

// Description is one required capability: its natural-language contract,
// its source (empty until built) and its declared dependencies.
type Description struct {
	Name         string   `json:"name" yaml:"name"`
	Description  string   `json:"description" yaml:"description"`
	Code         string   `json:"code,omitempty" yaml:"-"`
	Dependencies []string `json:"dependencies" yaml:"dependencies"`
	NeedsReview  bool     `json:"needs_review" yaml:"needs_review"`
}

// SourcePath returns the path of the tool's Go source file.
func (d *Description) SourcePath(sandboxDir string) string {
	return filepath.Join(sandboxDir, SourceDirName, d.Name+".go")
}

// MetadataPath returns the path of the tool's metadata twin.
func (d *Description) MetadataPath(sandboxDir string) string {
	return filepath.Join(sandboxDir, MetadataDirName, d.Name+".json")
}

// Exists reports whether the tool's source artifact is present on disk.
func (d *Description) Exists(sandboxDir string) bool {
	info, err := os.Stat(d.SourcePath(sandboxDir))
	return err == nil && !info.IsDir()
}

// Save persists both the source file and the metadata twin.
func (d *Description) Save(sandboxDir string) error {
	if !ValidName(d.Name) {
		return fmt.Errorf("invalid tool name %q", d.Name)
	}
	for _, dir := range []string{
		filepath.Join(sandboxDir, SourceDirName),
		filepath.Join(sandboxDir, MetadataDirName),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(d.SourcePath(sandboxDir), []byte(d.Code), 0o644); err != nil {
		return fmt.Errorf("write tool source %s: %w", d.Name, err)
	}
	meta, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tool metadata %s: %w", d.Name, err)
	}
	if err := os.WriteFile(d.MetadataPath(sandboxDir), meta, 0o644); err != nil {
		return fmt.Errorf("write tool metadata %s: %w", d.Name, err)
	}
	return nil
}

// Refresh reloads code and metadata from disk if the artifact exists.
// Returns true when source was found.
func (d *Description) Refresh(sandboxDir string) (bool, error) {
	data, err := os.ReadFile(d.SourcePath(sandboxDir))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read tool source %s: %w", d.Name, err)
	}
	d.Code = string(data)

	meta, err := os.ReadFile(d.MetadataPath(sandboxDir))
	if err == nil {
		var stored Description
		if err := json.Unmarshal(meta, &stored); err == nil {
			d.Dependencies = stored.Dependencies
			if d.Description == "" {
				d.Description = stored.Description
			}
		}
	}
	return true, nil
}

// Delete removes both artifact files. Missing files are ignored so the
// operation is safe to repeat.
func (d *Description) Delete(sandboxDir string) error {
	for _, p := range []string{d.SourcePath(sandboxDir), d.MetadataPath(sandboxDir)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete %s: %w", p, err)
		}
	}
	return nil
}

// LoadMetadata reads a stored metadata twin by path.
func LoadMetadata(path string) (*Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var d Description
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", path, err)
	}
	return &d, nil
}
