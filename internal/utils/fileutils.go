package utils

import (
	"os"
	"path/filepath"
)

// WriteFileAtomic replaces path with data. The bytes go to a temporary file in
// the same directory which is synced and renamed into place, so readers see
// either the previous file or the new one. Failures carry op and ErrIO.
func WriteFileAtomic(op, path string, data []byte) error {
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return NewAppError(op, ErrIO, "output directory "+dir, err)
	}
	if !info.IsDir() {
		return NewAppError(op, ErrIO, dir+" is not a directory", nil)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return NewAppError(op, ErrIO, "create temp file", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return NewAppError(op, ErrIO, "write "+path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return NewAppError(op, ErrIO, "sync "+path, err)
	}
	if err := tmp.Close(); err != nil {
		return NewAppError(op, ErrIO, "close "+path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return NewAppError(op, ErrIO, "chmod "+path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return NewAppError(op, ErrIO, "replace "+path, err)
	}
	committed = true
	return nil
}
