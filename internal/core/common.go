// Package core holds procwatch configuration and things every command needs.
package core

import (
	"cmp"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// TODO: set at compile time with -ldflags
const Version = "0.1.0"

const (
	EnvHome   = "PROCWATCH_HOME"
	EnvDebug  = "PROCWATCH_DEBUG"
	EnvDepth  = "PROCWATCH_DEPTH"
	EnvPolicy = "PROCWATCH_POLICY"
)

var (
	DirHome = cmp.Or(os.Getenv(EnvHome), filepath.Join(xdg.ConfigHome, "procwatch"))
	// ConfigPath is used when no config file is given explicitly.
	ConfigPath = filepath.Join(DirHome, "config.jsonnet")
)
