package policy

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LoadRegoFiles collects policy modules under dir, descending into
// subdirectories. Modules are keyed by slash-separated path relative to dir
// so that compiler errors point at a recognisable file. Rego unit tests
// (*_test.rego) are skipped.
func LoadRegoFiles(dir string) (map[string]string, error) {
	return loadModules(os.DirFS(dir))
}

func loadModules(fsys fs.FS) (map[string]string, error) {
	modules := make(map[string]string)
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if filepath.Ext(name) != ".rego" || strings.HasSuffix(name, "_test.rego") {
			return nil
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		modules[path] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return modules, nil
}
