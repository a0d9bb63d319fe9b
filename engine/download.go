package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/xid"
	"github.com/spf13/afero"
)

// Download is a claimed output being streamed to its one recipient.
// Closing it deletes the output whether or not the stream completed.
type Download struct {
	File        string // the claimed output's file name
	Name        string // name to save it as, "<game>_<preset>.<ext>"
	Size        int64
	ContentType string

	f    afero.File
	fs   afero.Fs
	path string
}

func (d *Download) Read(p []byte) (int, error) { return d.f.Read(p) }

func (d *Download) Close() error {
	cerr := d.f.Close()
	if err := d.fs.Remove(d.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return cerr
}

func validOutputName(name string) bool {
	return name != "" &&
		filepath.Base(name) == name &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\`)
}

// Claim takes sole ownership of the output file, as named by Output.File.
// The output is renamed out of the way first so a second request for the
// same file finds nothing.
func (c *Controller) Claim(file string) (*Download, error) {
	_, name, ok := SplitOutputFile(file)
	if !ok || !validOutputName(file) {
		c.metrics.IncDownloads("missing")
		return nil, fmt.Errorf("%w: %s", ErrOutputNotFound, file)
	}

	path := filepath.Join(c.cfg.OutputsDir, file)
	claimed := filepath.Join(c.cfg.OutputsDir, fmt.Sprintf(".%s.%s", file, xid.New().String()))
	if err := c.fs.Rename(path, claimed); err != nil {
		c.metrics.IncDownloads("missing")
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrOutputNotFound, file)
		}
		return nil, fmt.Errorf("engine: claim '%s': %w", file, err)
	}

	f, err := c.fs.Open(claimed)
	if err != nil {
		_ = c.fs.Remove(claimed)
		return nil, fmt.Errorf("engine: open '%s': %w", file, err)
	}

	d := &Download{File: file, Name: name, f: f, fs: c.fs, path: claimed}
	if fi, err := f.Stat(); err == nil {
		d.Size = fi.Size()
	}

	d.ContentType = "application/octet-stream"
	if mt, err := mimetype.DetectReader(f); err == nil {
		d.ContentType = mt.String()
	}
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("engine: rewind '%s': %w", file, err)
	}

	c.metrics.IncDownloads("served")
	c.logger.Info("download claimed", "file", file, "size", d.Size)
	return d, nil
}
