package versions

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/framewell/callsheet/internal/entity"
)

// WorkfileExt is the authoring-host scene extension for workfiles.
const WorkfileExt = ".hip"

// Key addresses one versioned artifact location.
type Key struct {
	Entity     entity.Entity
	Variant    string
	Department string
}

// String returns the stable cache/sort key.
func (k Key) String() string {
	return k.Entity.URI().String() + "?" + k.Variant + "/" + k.Department
}

// Export is a located export version directory.
type Export struct {
	Version Version
	Dir     string
	ModTime time.Time
}

// Workfile is the newest located workfile for an entity and department.
type Workfile struct {
	Version Version
	Path    string
	ModTime time.Time
}

// Store reads versioned artifacts under a project tree root. All methods
// are pure reads over the filesystem and safe for concurrent use.
type Store struct {
	root string
}

// NewStore opens a store over a project tree root.
func NewStore(root string) *Store {
	return &Store{root: root}
}

// Root returns the project tree root.
func (s *Store) Root() string {
	return s.root
}

// ExportDir returns the directory that holds an artifact's version
// directories: <root>/export/<kind-path>/<variant>/<department>.
func (s *Store) ExportDir(k Key) string {
	parts := append([]string{s.root, "export"}, k.Entity.URI().Segments...)
	parts = append(parts, k.Variant, k.Department)
	return filepath.Join(parts...)
}

// VersionDir returns the directory of one export version.
func (s *Store) VersionDir(k Key, v Version) string {
	return filepath.Join(s.ExportDir(k), v.String())
}

// WorkspaceDir returns the directory holding an entity's workfiles for a
// department: <root>/work/<kind-path>/<department>.
func (s *Store) WorkspaceDir(e entity.Entity, department string) string {
	parts := append([]string{s.root, "work"}, e.URI().Segments...)
	parts = append(parts, department)
	return filepath.Join(parts...)
}

// ListVersions scans an artifact's export directory and returns its valid
// version codes in ascending order. Malformed directory names are ignored;
// a missing export directory yields an empty list.
func (s *Store) ListVersions(k Key) ([]Version, error) {
	entries, err := os.ReadDir(s.ExportDir(k))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing versions for %s: %w", k, err)
	}
	var out []Version
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if v, ok := ParseVersion(entry.Name()); ok {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// LatestVersion returns the highest existing version, if any.
func (s *Store) LatestVersion(k Key) (Version, bool, error) {
	versions, err := s.ListVersions(k)
	if err != nil {
		return 0, false, err
	}
	if len(versions) == 0 {
		return 0, false, nil
	}
	return versions[len(versions)-1], true, nil
}

// NextVersion computes the version the next publish would create: latest
// plus one, or v0001 when none exist. The number is computed, not
// reserved; the writer must create the directory exclusively and fail on
// collision.
func (s *Store) NextVersion(k Key) (Version, error) {
	latest, ok, err := s.LatestVersion(k)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 1, nil
	}
	return latest.Next(), nil
}

// Exists reports whether a specific export version is present.
func (s *Store) Exists(k Key, v Version) (bool, error) {
	info, err := os.Stat(s.VersionDir(k, v))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat version %s of %s: %w", v, k, err)
	}
	return info.IsDir(), nil
}

// LatestExport locates the newest export version directory and its
// modification time.
func (s *Store) LatestExport(k Key) (Export, bool, error) {
	latest, ok, err := s.LatestVersion(k)
	if err != nil || !ok {
		return Export{}, false, err
	}
	dir := s.VersionDir(k, latest)
	info, err := os.Stat(dir)
	if err != nil {
		return Export{}, false, fmt.Errorf("stat export %s: %w", dir, err)
	}
	return Export{Version: latest, Dir: dir, ModTime: info.ModTime()}, true, nil
}

// workfileName renders "<path-segments>_<department>_<version>.hip",
// matching the authoring host's save convention. Path segments omit the
// kind prefix.
func workfileName(e entity.Entity, department string, v Version) string {
	stem := strings.ReplaceAll(e.Path(), "/", "_")
	return stem + "_" + department + "_" + v.String() + WorkfileExt
}

// workfileVersion extracts the version code from a workfile name, if the
// name follows the convention.
func workfileVersion(name string) (Version, bool) {
	stem := strings.TrimSuffix(name, WorkfileExt)
	if stem == name {
		return 0, false
	}
	i := strings.LastIndex(stem, "_")
	if i < 0 {
		return 0, false
	}
	return ParseVersion(stem[i+1:])
}

// LatestWorkfile returns the highest-versioned workfile for an entity and
// department, with its filesystem modification time. Entities that have
// never been worked on yield ok=false, which staleness reads as "never
// stale".
func (s *Store) LatestWorkfile(e entity.Entity, department string) (Workfile, bool, error) {
	dir := s.WorkspaceDir(e, department)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return Workfile{}, false, nil
	}
	if err != nil {
		return Workfile{}, false, fmt.Errorf("listing workfiles in %s: %w", dir, err)
	}

	prefix := strings.ReplaceAll(e.Path(), "/", "_") + "_" + department + "_"
	var best Workfile
	found := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		v, ok := workfileVersion(entry.Name())
		if !ok {
			continue
		}
		if found && v <= best.Version {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return Workfile{}, false, fmt.Errorf("stat workfile %s: %w", entry.Name(), err)
		}
		best = Workfile{Version: v, Path: filepath.Join(dir, entry.Name()), ModTime: info.ModTime()}
		found = true
	}
	return best, found, nil
}

// NextWorkfilePath returns where the next workfile save would land.
func (s *Store) NextWorkfilePath(e entity.Entity, department string) (string, error) {
	latest, found, err := s.LatestWorkfile(e, department)
	if err != nil {
		return "", err
	}
	next := Version(1)
	if found {
		next = latest.Version.Next()
	}
	return filepath.Join(s.WorkspaceDir(e, department), workfileName(e, department, next)), nil
}

// ListShotsWithWork returns every shot that has a workspace directory,
// sorted by URI. The update flow uses this as its shot census.
func (s *Store) ListShotsWithWork() ([]entity.Shot, error) {
	root := filepath.Join(s.root, "work", "shots")
	sequences, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing shot workspaces: %w", err)
	}
	var out []entity.Shot
	for _, sequence := range sequences {
		if !sequence.IsDir() {
			continue
		}
		shots, err := os.ReadDir(filepath.Join(root, sequence.Name()))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("listing shots in sequence %s: %w", sequence.Name(), err)
		}
		for _, shot := range shots {
			if !shot.IsDir() {
				continue
			}
			out = append(out, entity.Shot{Sequence: sequence.Name(), Name: shot.Name()})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return entity.Key(out[i]) < entity.Key(out[j])
	})
	return out, nil
}

// IsStale reports whether an artifact needs republishing: true when a
// workfile exists and either no export exists or the workfile is newer
// than the latest export. Entities with no workfile are never stale.
// Callers evaluate this once per (entity, variant, department) per
// submission and treat the answer as a snapshot.
func (s *Store) IsStale(k Key) (bool, error) {
	wf, hasWorkfile, err := s.LatestWorkfile(k.Entity, k.Department)
	if err != nil {
		return false, err
	}
	if !hasWorkfile {
		return false, nil
	}
	export, hasExport, err := s.LatestExport(k)
	if err != nil {
		return false, err
	}
	if !hasExport {
		return true, nil
	}
	return wf.ModTime.After(export.ModTime), nil
}

// ReadLatestContext loads the context record of the newest export version.
// ok=false means the artifact has no exports at all.
func (s *Store) ReadLatestContext(k Key) (*Context, bool, error) {
	export, ok, err := s.LatestExport(k)
	if err != nil || !ok {
		return nil, false, err
	}
	ctx, err := ReadContext(export.Dir)
	if err != nil {
		return nil, true, err
	}
	return ctx, true, nil
}
