//go:build debug

package dist

import (
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// Content serves the UI straight from the source tree so edits show up without a rebuild.
var Content fs.FS

func init() {
	_, file, _, _ := runtime.Caller(0)
	Content = os.DirFS(filepath.Dir(file))
}
