package spawn

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type stater func(string) (os.FileInfo, error)

// lookPath resolves file the way execvp does: names containing a slash are
// used as-is, everything else is searched for in pathVar. An empty element
// (or an empty pathVar) means the current directory.
func lookPath(stat stater, pathVar string, file string) (string, error) {
	if strings.Contains(file, "/") {
		return file, nil
	}
	dirs := []string{""}
	if pathVar != "" {
		dirs = filepath.SplitList(pathVar)
	}
	denied := false
	for _, dir := range dirs {
		if dir == "" {
			dir = "."
		}
		path := filepath.Join(dir, file)
		err := findExecutable(stat, path)
		if err == nil {
			return path, nil
		}
		if errors.Is(err, os.ErrPermission) {
			denied = true
		}
	}
	if denied {
		return "", &exec.Error{Name: file, Err: os.ErrPermission}
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func findExecutable(stat stater, file string) error {
	d, err := stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0111 != 0 {
		return nil
	}
	return os.ErrPermission
}
