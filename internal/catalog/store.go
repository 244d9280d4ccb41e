package catalog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/veilproto/htx/internal/xerrors"
)

// Store persists and loads catalog wire envelopes from the application
// data directory's catalog/catalog.bak pair, per §6's persisted state
// layout.
type Store struct {
	dir string
}

func NewStore(dir string) *Store { return &Store{dir: dir} }

func (s *Store) currentPath() string  { return filepath.Join(s.dir, "catalog") }
func (s *Store) backupPath() string   { return filepath.Join(s.dir, "catalog.bak") }
func (s *Store) sigPath(p string) string { return p + ".sig" }

// LoadCurrent reads and parses the active persisted catalog, if any.
func (s *Store) LoadCurrent() (*Wire, error) { return s.load(s.currentPath()) }

// LoadBackup reads and parses the previous persisted catalog, if any.
func (s *Store) LoadBackup() (*Wire, error) { return s.load(s.backupPath()) }

func (s *Store) load(path string) (*Wire, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.KindIO, "catalog", "read catalog file failed", err)
	}

	var w Wire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, xerrors.Wrap(xerrors.KindInvalidFrame, "catalog", "malformed catalog file", err)
	}

	if sig, sigErr := os.ReadFile(s.sigPath(path)); sigErr == nil && w.SignatureHex == "" {
		w.SignatureHex = string(bytes.TrimSpace(sig))
	}
	return &w, nil
}

// Save promotes the current catalog to catalog.bak and atomically writes w
// as the new current catalog, via temp file + fsync + rename.
func (s *Store) Save(w *Wire) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return xerrors.Wrap(xerrors.KindIO, "catalog", "create data dir failed", err)
	}

	if _, err := os.Stat(s.currentPath()); err == nil {
		if err := s.copyFile(s.currentPath(), s.backupPath()); err != nil {
			return err
		}
	}

	raw, err := json.Marshal(w)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, "catalog", "marshal catalog failed", err)
	}
	return s.writeAtomic(s.currentPath(), raw)
}

func (s *Store) copyFile(src, dst string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, "catalog", "read previous catalog failed", err)
	}
	return s.writeAtomic(dst, raw)
}

func (s *Store) writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, ".catalog-*.tmp")
	if err != nil {
		return xerrors.Wrap(xerrors.KindIO, "catalog", "create temp file failed", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return xerrors.Wrap(xerrors.KindIO, "catalog", "write temp file failed", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return xerrors.Wrap(xerrors.KindIO, "catalog", "fsync temp file failed", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return xerrors.Wrap(xerrors.KindIO, "catalog", "close temp file failed", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return xerrors.Wrap(xerrors.KindIO, "catalog", "rename temp file failed", err)
	}
	return nil
}
