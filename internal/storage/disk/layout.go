package disk

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/tusstore/internal/common"
)

const (
	uploadSubDirectory = "uploads"
	infoFile           = "info"
	dataFile           = "data"
)

// layout maps upload ids to <root>/uploads/<id>/{info,data}.
type layout struct {
	root string
}

// uploadDir returns the directory of id without checking that it exists.
func (l layout) uploadDir(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid upload id %q: %w", id, common.ErrorNotFound)
	}
	return filepath.Join(l.root, id), nil
}

// resolveDirectory returns the directory of id, or ErrorNotFound when absent.
func (l layout) resolveDirectory(id string) (string, error) {
	dir, err := l.uploadDir(id)
	if err != nil {
		return "", err
	}
	st, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("upload %s: %w", id, common.ErrorNotFound)
		}
		return "", fmt.Errorf("stat upload %s: %w", id, err)
	}
	if !st.IsDir() {
		return "", fmt.Errorf("upload %s is not a directory: %w", id, common.ErrorNotFound)
	}
	return dir, nil
}

func (l layout) dataPath(id string) (string, error) {
	return l.fileInUploadDir(id, dataFile)
}

func (l layout) infoPath(id string) (string, error) {
	return l.fileInUploadDir(id, infoFile)
}

func (l layout) fileInUploadDir(id, name string) (string, error) {
	dir, err := l.resolveDirectory(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ids lists the names of all upload directories.
func (l layout) ids() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return nil, fmt.Errorf("read uploads root: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// notFoundIfMissing converts fs.ErrNotExist into common.ErrorNotFound.
func notFoundIfMissing(err error, id string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("upload %s: %w", id, errors.Join(common.ErrorNotFound, err))
	}
	return err
}
