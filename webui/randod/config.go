package main

import (
	"fmt"
	"net"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"romrando/engine"
	"romrando/store"
	"romrando/util"
)

const envPrefix = "RANDOD"

type config struct {
	Listen     string
	UploadsDir string
	OutputsDir string
	PresetsDir string
	PresetExt  string

	Engine engine.Engine

	HashBytes  int64
	MaxUpload  int64
	Extensions []string

	CORSOrigins []string
	GRPCListen  string
	Metrics     bool
	OpenBrowser bool
	Tray        bool

	LogLevel string
	LogFile  string
}

func addFlags(flags *pflag.FlagSet) {
	flags.String("listen", "0.0.0.0:5000", "HTTP listen address")
	flags.String("uploads-dir", "uploads", "directory holding uploaded ROMs")
	flags.String("outputs-dir", "outputs", "directory holding randomized ROMs until they are downloaded")
	flags.String("presets-dir", "randomizer/presets", "directory holding <family>_<preset> settings files")
	flags.String("preset-ext", engine.DefaultPresetExt, "settings file extension")
	flags.String("engine-jar", engine.DefaultEngine.Jar, "randomizer jar")
	flags.String("java", engine.DefaultEngine.Java, "java executable")
	flags.String("java-heap", engine.DefaultEngine.Heap, "maximum java heap (-Xmx)")
	flags.String("engine-mode", engine.DefaultEngine.Mode, "randomizer invocation mode")
	flags.String("hash-bytes", "1MiB", "length of the ROM prefix that is fingerprinted")
	flags.String("max-upload", "512MiB", "largest accepted upload")
	flags.String("extensions", strings.Join(store.DefaultExtensions, ","), "comma-separated ROM file extensions accepted for upload")
	flags.String("cors-origins", "", "comma-separated origins allowed cross-origin access (empty disables CORS)")
	flags.String("grpc-listen", "", "gRPC health service listen address (empty disables)")
	flags.Bool("metrics", true, "serve Prometheus metrics on /metrics")
	flags.Bool("open-browser", false, "open the web UI in the default browser on startup")
	flags.Bool("tray", false, "run as a system tray app")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-file", "", "log file path (default: a fresh file in the temp directory)")
}

// newViper binds flags and RANDOD_* environment variables, e.g. RANDOD_UPLOADS_DIR.
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v, nil
}

func loadConfig(v *viper.Viper) (cfg config, err error) {
	cfg = config{
		Listen:     strings.TrimSpace(v.GetString("listen")),
		UploadsDir: v.GetString("uploads-dir"),
		OutputsDir: v.GetString("outputs-dir"),
		PresetsDir: v.GetString("presets-dir"),
		PresetExt:  v.GetString("preset-ext"),
		Engine: engine.Engine{
			Java: v.GetString("java"),
			Heap: v.GetString("java-heap"),
			Jar:  v.GetString("engine-jar"),
			Mode: v.GetString("engine-mode"),
		},
		Extensions:  splitList(v.GetString("extensions")),
		CORSOrigins: splitList(v.GetString("cors-origins")),
		GRPCListen:  strings.TrimSpace(v.GetString("grpc-listen")),
		Metrics:     v.GetBool("metrics"),
		OpenBrowser: v.GetBool("open-browser"),
		Tray:        v.GetBool("tray"),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString("log-level"))),
		LogFile:     v.GetString("log-file"),
	}

	if cfg.HashBytes, err = parseSize(v, "hash-bytes"); err != nil {
		return
	}
	if cfg.MaxUpload, err = parseSize(v, "max-upload"); err != nil {
		return
	}
	if _, _, err = net.SplitHostPort(cfg.Listen); err != nil {
		return cfg, fmt.Errorf("parse listen: %w", err)
	}
	if cfg.UploadsDir == "" || cfg.OutputsDir == "" || cfg.PresetsDir == "" {
		return cfg, fmt.Errorf("uploads-dir, outputs-dir and presets-dir are required")
	}
	if len(cfg.Extensions) == 0 {
		return cfg, fmt.Errorf("extensions: at least one is required")
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFile == "" {
		cfg.LogFile = util.DefaultLogPath("randod")
	}
	return cfg, nil
}

func parseSize(v *viper.Viper, key string) (int64, error) {
	size, err := humanize.ParseBytes(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if size == 0 {
		return 0, fmt.Errorf("parse %s: must be positive", key)
	}
	return int64(size), nil
}

func splitList(s string) (list []string) {
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return
}

// browserURL is the address a local browser reaches the listener on.
func browserURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://127.0.0.1:5000/"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s/", net.JoinHostPort(host, port))
}
