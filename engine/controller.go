package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/xid"
	"github.com/spf13/afero"

	"romrando/games"
	"romrando/metrics"
	"romrando/store"
	"romrando/util"
)

// DefaultPresetExt is the file extension of randomizer settings files.
const DefaultPresetExt = "rnqs"

type Config struct {
	// PresetsDir holds the settings files, named "<family>_<preset>.<PresetExt>".
	PresetsDir string
	PresetExt  string
	// OutputsDir receives randomized ROMs until they are downloaded.
	OutputsDir string
	Engine     Engine
}

// Controller turns a stored ROM and a preset name into a randomized ROM by
// running the randomizer once. It never retries: every stage either advances
// or fails the request.
type Controller struct {
	store   *store.Store
	fs      afero.Fs
	runner  Runner
	cfg     Config
	logger  *log.Logger
	metrics metrics.Metrics
}

type Option func(*Controller)

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = util.Named(l, "engine") }
}

func WithMetrics(m metrics.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

func NewController(st *store.Store, runner Runner, cfg Config, opts ...Option) (*Controller, error) {
	if st == nil {
		return nil, errors.New("engine: nil store")
	}
	if runner == nil {
		return nil, errors.New("engine: nil runner")
	}
	if cfg.PresetExt == "" {
		cfg.PresetExt = DefaultPresetExt
	}
	cfg.PresetExt = strings.TrimPrefix(cfg.PresetExt, ".")
	if cfg.OutputsDir == "" {
		cfg.OutputsDir = st.Root()
	}

	c := &Controller{
		store:   st,
		fs:      st.Fs(),
		runner:  runner,
		cfg:     cfg,
		logger:  util.Named(nil, "engine"),
		metrics: metrics.Noop{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.fs.MkdirAll(cfg.OutputsDir, 0755); err != nil {
		return nil, fmt.Errorf("engine: could not create '%s': %w", cfg.OutputsDir, err)
	}
	return c, nil
}

// Output is a randomized ROM waiting to be downloaded once.
// Each run writes its own file, so concurrent runs for the same game and
// preset never touch each other's output.
type Output struct {
	Name   string // download file name, "<game>_<preset>.<ext>"
	File   string // file name within OutputsDir, "<xid>_<Name>"; the download handle
	Path   string
	Game   *games.Game
	Preset string
}

// PresetPath is where the settings file for a family's preset is provisioned.
func (c *Controller) PresetPath(family, preset string) string {
	return filepath.Join(c.cfg.PresetsDir, fmt.Sprintf("%s_%s.%s", family, preset, c.cfg.PresetExt))
}

// OutputName is the file name a randomized ROM is downloaded under.
func OutputName(game, preset, ext string) string {
	return fmt.Sprintf("%s_%s.%s", game, preset, ext)
}

// OutputFile prefixes name with a fresh run ID.
func OutputFile(name string) string {
	return xid.New().String() + "_" + name
}

// SplitOutputFile undoes OutputFile, reporting false for anything it did not produce.
func SplitOutputFile(file string) (id xid.ID, name string, ok bool) {
	prefix, name, found := strings.Cut(file, "_")
	if !found || !validOutputName(name) {
		return xid.NilID(), "", false
	}
	id, err := xid.FromString(prefix)
	if err != nil {
		return xid.NilID(), "", false
	}
	return id, name, true
}

// Randomize identifies the stored ROM afresh, checks the preset is offered for
// it, locates the preset's settings file and runs the randomizer over the ROM.
// The randomizer is not cancelled with ctx; once started it runs until it exits.
func (c *Controller) Randomize(ctx context.Context, a store.Artifact, preset string) (*Output, error) {
	g, err := c.store.Classify(a)
	if err != nil {
		return nil, err
	}
	if g == nil {
		c.metrics.IncRandomizations("unrecognized", "unsupported")
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, a.Name())
	}

	if !g.HasPreset(preset) {
		c.metrics.IncRandomizations(g.Family, "invalid_preset")
		return nil, fmt.Errorf("%w: '%s' is not offered for %s", ErrInvalidPreset, preset, g.Name)
	}

	configPath := c.PresetPath(g.Family, preset)
	ok, err := afero.Exists(c.fs, configPath)
	if err != nil {
		return nil, fmt.Errorf("engine: stat '%s': %w", configPath, err)
	}
	if !ok {
		c.metrics.IncRandomizations(g.Family, "configuration_missing")
		c.logger.Error("preset file not provisioned", "path", configPath)
		return nil, fmt.Errorf("%w: %s", ErrConfigurationMissing, configPath)
	}

	out := &Output{
		Name:   OutputName(g.Name, preset, a.Ext),
		Game:   g,
		Preset: preset,
	}
	out.File = OutputFile(out.Name)
	out.Path = filepath.Join(c.cfg.OutputsDir, out.File)

	command, args := c.cfg.Engine.Command(Invocation{
		Config: configPath,
		Input:  c.store.Path(a),
		Output: out.Path,
	})
	c.logger.Info("running command", "cmd", command+" "+strings.Join(args, " "))

	start := time.Now()
	res, err := c.runner.Run(context.WithoutCancel(ctx), command, args)
	c.metrics.ObserveEngineDuration(g.Family, time.Since(start).Seconds())

	if err == nil && res.ExitCode == 0 {
		var produced bool
		produced, err = afero.Exists(c.fs, out.Path)
		if err == nil && !produced {
			err = errors.New("randomizer exited successfully without writing its output")
		}
	}
	if err != nil || res.ExitCode != 0 {
		c.discard(out.Path)
		c.metrics.IncRandomizations(g.Family, "failed")

		terr := &TransformationError{ExitCode: res.ExitCode, Details: res.Diagnostics(), wrapped: err}
		if terr.Details == "" && err != nil {
			terr.Details = err.Error()
		}
		c.logger.Error("randomization failed", "game", g.Name, "preset", preset, "code", res.ExitCode, "err", err, "details", terr.Details)
		return nil, terr
	}

	c.metrics.IncRandomizations(g.Family, "ok")
	c.logger.Info("randomized", "game", g.Name, "preset", preset, "output", out.File, "took", time.Since(start).Round(time.Millisecond))
	return out, nil
}

func (c *Controller) discard(path string) {
	if err := c.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Warn("could not delete partial output", "path", path, "err", err)
	}
}
