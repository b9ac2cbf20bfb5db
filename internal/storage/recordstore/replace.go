package recordstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Stage names a step of the atomic replace sequence.
type Stage string

const (
	StageWrite  Stage = "write"
	StageVerify Stage = "verify"
	StageBackup Stage = "backup"
	StageRename Stage = "rename"
)

func (s *Store) hit(stage Stage) error {
	if s.failpoint == nil {
		return nil
	}
	if err := s.failpoint(stage); err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	return nil
}

// writeTemp writes data to a fresh temp file beside the vault, syncs it and
// checks that it decodes back to the same bytes.
func (s *Store) writeTemp(data []byte) (string, error) {
	dir := filepath.Dir(s.path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return "", err
	}
	name := f.Name()

	fail := func(err error) (string, error) {
		f.Close()
		os.Remove(name)
		return "", err
	}

	if err := f.Chmod(0o600); err != nil {
		return fail(err)
	}
	if _, err := f.Write(data); err != nil {
		return fail(err)
	}
	if err := s.hit(StageWrite); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}

	if err := s.verifyFile(name, data); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func (s *Store) verifyFile(name string, want []byte) error {
	if err := s.hit(StageVerify); err != nil {
		return err
	}
	got, err := os.ReadFile(name)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return errors.New("verify: written image differs")
	}
	if _, err := decodeImage(got); err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	return nil
}

// replace performs one attempt of the write-verify-backup-rename sequence.
func (s *Store) replace(data []byte) error {
	tmp, err := s.writeTemp(data)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmp)
		}
	}()

	// A recovered store keeps the backup it was loaded from.
	if !s.noBackup && !s.recovered {
		if err := s.hit(StageBackup); err != nil {
			return err
		}
		if err := preserveBackup(s.path); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}

	if err := s.hit(StageRename); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	committed = true

	if err := syncDir(filepath.Dir(s.path)); err != nil {
		s.logger.Debug("directory sync failed", "error", err)
	}
	return nil
}

// createExclusive writes a new vault file, failing with fs.ErrExist if one
// appeared in the meantime.
func (s *Store) createExclusive(data []byte) error {
	tmp, err := s.writeTemp(data)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := s.hit(StageRename); err != nil {
		return err
	}
	if err := os.Link(tmp, s.path); err != nil {
		var linkErr *os.LinkError
		if errors.As(err, &linkErr) && errors.Is(linkErr.Err, fs.ErrExist) {
			return fs.ErrExist
		}
		// No hard links on this filesystem: fall back to O_EXCL.
		if err := writeExclusive(s.path, data); err != nil {
			return err
		}
	}

	if err := syncDir(filepath.Dir(s.path)); err != nil {
		s.logger.Debug("directory sync failed", "error", err)
	}
	return nil
}

func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// preserveBackup makes <path>.bak hold the current image. The new backup is
// staged under a temp name and renamed so an old backup is never lost
// half-written.
func preserveBackup(path string) error {
	bak := path + BackupSuffix
	staged := bak + ".tmp"
	os.Remove(staged)

	if err := os.Link(path, staged); err != nil {
		if err := copyFile(path, staged); err != nil {
			os.Remove(staged)
			return err
		}
	}
	if err := os.Rename(staged, bak); err != nil {
		os.Remove(staged)
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
