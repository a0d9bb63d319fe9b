package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"romrando/checksum"
	"romrando/games"
	"romrando/rom"
)

// Report is what romident learns about one ROM file.
type Report struct {
	Path        string   `json:"path"`
	Size        int64    `json:"size"`
	Fingerprint string   `json:"checksum"`
	StoredName  string   `json:"stored_filename"`
	Format      string   `json:"format,omitempty"`
	Family      string   `json:"family,omitempty"`
	Game        string   `json:"game,omitempty"`
	Presets     []string `json:"presets,omitempty"`
}

func main() {
	flags := pflag.NewFlagSet("romident", pflag.ExitOnError)
	hashBytes := flags.String("hash-bytes", "1MiB", "length of the ROM prefix that is fingerprinted")
	asJSON := flags.Bool("json", false, "print one JSON object per file")
	_ = flags.Parse(os.Args[1:])

	args := flags.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: romident [--hash-bytes N] [--json] <rom file>...")
		os.Exit(2)
	}

	prefix, err := humanize.ParseBytes(*hashBytes)
	if err != nil || prefix == 0 {
		fmt.Fprintf(os.Stderr, "invalid --hash-bytes '%s'\n", *hashBytes)
		os.Exit(2)
	}

	fs := afero.NewOsFs()
	code := 0
	for _, path := range args {
		r, err := identify(fs, path, int64(prefix))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			code = 1
			continue
		}
		if *asJSON {
			err = json.NewEncoder(os.Stdout).Encode(r)
		} else {
			err = r.print(os.Stdout)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		if r.Game == "" {
			code = 1
		}
	}
	os.Exit(code)
}

func identify(fs afero.Fs, path string, prefix int64) (*Report, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r := &Report{Path: path, Size: fi.Size()}
	if r.Fingerprint, err = checksum.Fingerprint(f, prefix); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	r.StoredName = r.Fingerprint + "." + ext

	g, format := games.Identify(rom.New(f, fi.Size()))
	if g != nil {
		r.Format = format
		r.Family = g.Family
		r.Game = g.Name
		r.Presets = g.Presets
	}
	return r, nil
}

func (r *Report) print(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s (%s)\n  checksum:    %s\n  stored name: %s\n", r.Path, humanize.IBytes(uint64(r.Size)), r.Fingerprint, r.StoredName)
	if err != nil {
		return err
	}
	if r.Game == "" {
		_, err = fmt.Fprintln(w, "  game:        unrecognized")
		return err
	}
	_, err = fmt.Fprintf(w, "  game:        %s (%s, by %s)\n  presets:     %s\n", r.Game, r.Family, r.Format, strings.Join(r.Presets, ", "))
	return err
}
