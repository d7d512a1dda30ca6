package taglib

import (
	"io"

	"go.uber.org/zap"

	"github.com/CharlesWiltgen/taglib-wasm-sub003/provider"
)

// Config describes how to obtain and run a guest. Exactly one of Binary,
// Path, or URL must be set; precedence is in that order when several are.
type Config struct {
	// Binary is the guest wasm module as bytes.
	Binary []byte

	// Path loads the guest wasm module from the host filesystem.
	Path string

	// URL fetches the guest wasm module over HTTP(S).
	URL string

	// Preopens maps guest-visible directory names to provider roots.
	// Without at least one preopen the guest cannot open files by path.
	Preopens map[string]string

	// Provider backs the guest's file operations. Defaults to the host
	// OS filesystem.
	Provider provider.Provider

	// Stdout and Stderr receive the guest's writes to fds 1 and 2,
	// mostly diagnostics from the guest's libc. nil discards.
	Stdout io.Writer
	Stderr io.Writer

	Logger *zap.Logger
}

// WithBinary sets the guest module bytes.
func (c Config) WithBinary(b []byte) Config {
	c.Binary = b
	return c
}

// WithPath sets the guest module file path.
func (c Config) WithPath(path string) Config {
	c.Path = path
	return c
}

// WithURL sets the guest module URL.
func (c Config) WithURL(url string) Config {
	c.URL = url
	return c
}

// WithPreopen grants the guest access to real (a provider root) under the
// virtual directory name.
func (c Config) WithPreopen(name, real string) Config {
	m := make(map[string]string, len(c.Preopens)+1)
	for k, v := range c.Preopens {
		m[k] = v
	}
	m[name] = real
	c.Preopens = m
	return c
}

// WithProvider sets the filesystem provider.
func (c Config) WithProvider(p provider.Provider) Config {
	c.Provider = p
	return c
}

// WithStdio sets the guest's stdout and stderr sinks.
func (c Config) WithStdio(stdout, stderr io.Writer) Config {
	c.Stdout = stdout
	c.Stderr = stderr
	return c
}

// WithLogger sets the structured logger.
func (c Config) WithLogger(log *zap.Logger) Config {
	c.Logger = log
	return c
}
