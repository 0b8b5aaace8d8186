package core

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/google/go-jsonnet"
	"github.com/google/go-jsonnet/ast"
	"github.com/joho/godotenv"
	"github.com/rprtr258/fun"
	"github.com/spf13/afero"

	"github.com/rprtr258/procwatch/internal/errors"
	"github.com/rprtr258/procwatch/internal/inotify"
	"github.com/rprtr258/procwatch/internal/scanner"
	"github.com/rprtr258/procwatch/internal/walker"
	"github.com/rprtr258/procwatch/internal/watch"
)

// ErrInvalidConfig marks errors in config file, environment or flags.
var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	// Roots are directories to watch recursively.
	Roots []string `json:"roots"`
	// Depth is how many levels below each root are watched.
	Depth int `json:"depth"`
	// Policy is what consumer gets on changes: "events" or "wake".
	Policy string `json:"policy"`
	// Kinds of events triggering process table refresh, all if empty.
	Kinds []string `json:"kinds"`
	// PollTimeout bounds single wait for events.
	PollTimeout time.Duration `json:"poll_timeout"`
	// LimitPath is file with watch count ceiling.
	LimitPath string `json:"limit_path"`
	// ProcDir is procfs mount point.
	ProcDir string `json:"proc_dir"`
	// Rescan is cron expression of periodic full refresh, none if empty.
	Rescan string `json:"rescan"`
	Debug  bool   `json:"debug"`
}

var DefaultRoots = []string{"/usr", "/tmp", "/etc", "/home", "/var", "/opt"}

var DefaultConfig = Config{
	Roots:       DefaultRoots,
	Depth:       walker.DefaultDepth,
	Policy:      string(watch.PolicyEvents),
	Kinds:       nil,
	PollTimeout: watch.DefaultPollTimeout,
	LimitPath:   inotify.WatchLimitPath,
	ProcDir:     scanner.DefaultProcDir,
	Rescan:      "",
	Debug:       false,
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
}

func newVM(fsys afero.Fs) *jsonnet.VM {
	vm := jsonnet.MakeVM()
	hostname, _ := os.Hostname()
	vm.ExtVar("hostname", hostname)
	vm.NativeFunction(&jsonnet.NativeFunction{
		Name: "dotenv",
		Func: func(args []any) (any, error) {
			if len(args) != 1 {
				return nil, errors.Newf("wrong number of arguments: %d", len(args))
			}

			filename, ok := args[0].(string)
			if !ok {
				return nil, errors.Newf("filename must be a string, got %T", args[0])
			}

			data, errRead := afero.ReadFile(fsys, filename)
			if errRead != nil {
				return nil, errors.Wrapf(errRead, "read env file %s", filename)
			}

			env, errUnmarshal := godotenv.UnmarshalBytes(data)
			if errUnmarshal != nil {
				return nil, errors.Wrapf(errUnmarshal, "parse env file %s", filename)
			}

			res := make(map[string]any, len(env))
			for k, v := range env {
				res[k] = v
			}
			return res, nil
		},
		Params: ast.Identifiers{"filename"},
	})
	return vm
}

// configDTO is config file shape, durations are strings like "250ms".
type configDTO struct {
	Roots       []string `json:"roots"`
	Depth       *int     `json:"depth"`
	Policy      *string  `json:"policy"`
	Kinds       []string `json:"kinds"`
	PollTimeout *string  `json:"poll_timeout"`
	LimitPath   *string  `json:"limit_path"`
	ProcDir     *string  `json:"proc_dir"`
	Rescan      *string  `json:"rescan"`
	Debug       *bool    `json:"debug"`
}

func override[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// LoadConfig evaluates jsonnet config file over defaults. Missing file means
// defaults.
func LoadConfig(fsys afero.Fs, filename string) (Config, error) {
	config := DefaultConfig

	data, errRead := afero.ReadFile(fsys, filename)
	if errRead != nil {
		if errors.Is(errRead, fs.ErrNotExist) {
			return config, nil
		}

		return fun.Zero[Config](), errors.Wrapf(errRead, "read config file %s", filename)
	}

	jsonText, errEval := newVM(fsys).EvaluateAnonymousSnippet(filename, string(data))
	if errEval != nil {
		return fun.Zero[Config](), invalid(errors.Wrapf(errEval, "evaluate jsonnet file %s", filename))
	}

	var dto configDTO
	if errUnmarshal := json.Unmarshal([]byte(jsonText), &dto); errUnmarshal != nil {
		return fun.Zero[Config](), invalid(errors.Wrapf(errUnmarshal, "unmarshal config %s", filename))
	}

	if dto.Roots != nil {
		config.Roots = dto.Roots
	}
	if dto.Kinds != nil {
		config.Kinds = dto.Kinds
	}
	override(&config.Depth, dto.Depth)
	override(&config.Policy, dto.Policy)
	override(&config.LimitPath, dto.LimitPath)
	override(&config.ProcDir, dto.ProcDir)
	override(&config.Rescan, dto.Rescan)
	override(&config.Debug, dto.Debug)
	if dto.PollTimeout != nil {
		timeout, errParse := time.ParseDuration(*dto.PollTimeout)
		if errParse != nil {
			return fun.Zero[Config](), invalid(errors.Wrap(errParse, "parse poll_timeout"))
		}
		config.PollTimeout = timeout
	}

	return config, nil
}

// ApplyEnv overrides config with PROCWATCH_* environment variables.
func ApplyEnv(config Config) (Config, error) {
	if v, ok := os.LookupEnv(EnvDebug); ok {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fun.Zero[Config](), invalid(errors.Wrapf(err, "parse %s", EnvDebug))
		}
		config.Debug = debug
	}
	if v, ok := os.LookupEnv(EnvDepth); ok {
		depth, err := strconv.Atoi(v)
		if err != nil {
			return fun.Zero[Config](), invalid(errors.Wrapf(err, "parse %s", EnvDepth))
		}
		config.Depth = depth
	}
	if v, ok := os.LookupEnv(EnvPolicy); ok {
		config.Policy = v
	}
	return config, nil
}

// EventKinds returns parsed Kinds, zero if any kind triggers refresh.
func (c Config) EventKinds() (inotify.EventKind, error) {
	return inotify.ParseKinds(c.Kinds...)
}

func (c Config) Validate() error {
	var errs []error
	if len(c.Roots) == 0 {
		errs = append(errs, errors.New("no roots to watch"))
	}
	if c.Depth < 0 {
		errs = append(errs, errors.Newf("depth must not be negative, got %d", c.Depth))
	}
	if _, err := watch.ParsePolicy(c.Policy); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.EventKinds(); err != nil {
		errs = append(errs, err)
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.Newf("poll timeout must be positive, got %s", c.PollTimeout))
	}
	if err := scanner.ValidateRescan(c.Rescan); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Combine(errs...); err != nil {
		return invalid(err)
	}
	return nil
}
