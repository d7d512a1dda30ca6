package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/CharlesWiltgen/taglib-wasm-sub003/provider"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/taglib"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/wire"
)

// Virtual directory name the tool preopens for in-place writes.
const workDir = "work"

type setFlags []string

func (s *setFlags) String() string { return strings.Join(*s, ",") }

func (s *setFlags) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var sets setFlags
	var (
		wasmFile    = flag.String("wasm", os.Getenv("TAGLIB_WASM"), "Path to taglib guest wasm file (or TAGLIB_WASM)")
		wasmURL     = flag.String("wasm-url", "", "URL of taglib guest wasm file")
		jsonOut     = flag.Bool("json", false, "Print tags as JSON")
		showVersion = flag.Bool("version", false, "Print guest version and exit")
		verbose     = flag.Bool("v", false, "Verbose logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Var(&sets, "set", "Set a tag field (field=value), repeatable; writes the file in place")
	flag.Parse()

	if *wasmFile == "" && *wasmURL == "" {
		fmt.Fprintln(os.Stderr, "Usage: tagtool -wasm <taglib.wasm> <file.mp3> [file...]")
		fmt.Fprintln(os.Stderr, "       tagtool -wasm <taglib.wasm> -set title=Foo -set artist=Bar <file.mp3>")
		fmt.Fprintln(os.Stderr, "       tagtool -wasm <taglib.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*wasmFile, *wasmURL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *wasmURL, flag.Args(), sets, *jsonOut, *showVersion, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile, wasmURL string, files []string, sets setFlags, jsonOut, showVersion, verbose bool) error {
	ctx := context.Background()

	log := zap.NewNop()
	if verbose {
		var err error
		log, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer log.Sync()
	}

	cfg := taglib.Config{}.
		WithPath(wasmFile).
		WithURL(wasmURL).
		WithStdio(nil, os.Stderr).
		WithLogger(log)
	// In-place writes go through the guest's own file I/O, which only
	// reaches the directory granted here.
	if len(sets) > 0 && len(files) == 1 {
		cfg = cfg.WithPreopen(workDir, filepath.Dir(files[0]))
	}

	mod, err := taglib.Load(ctx, cfg)
	if err != nil {
		return err
	}
	defer mod.Close(ctx)

	if showVersion {
		return printVersion(ctx, mod)
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files")
	}

	if len(sets) > 0 {
		if len(files) != 1 {
			return fmt.Errorf("-set works on exactly one file")
		}
		tag, err := parseSets(sets)
		if err != nil {
			return err
		}
		guestPath := workDir + "/" + filepath.Base(files[0])
		if err := mod.WriteTagsToFile(ctx, guestPath, tag); err != nil {
			return fmt.Errorf("write %s: %w", files[0], err)
		}
		fmt.Printf("Updated %s\n", files[0])
		return nil
	}

	fs := provider.NewOS()
	for _, f := range files {
		data, err := fs.ReadFile(f)
		if err != nil {
			return err
		}
		tag, err := mod.ReadTagsWithFormat(ctx, data, taglib.FormatForExt(filepath.Ext(f)))
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}
		if jsonOut {
			out, err := json.MarshalIndent(tag, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			continue
		}
		printTag(f, tag)
	}
	return nil
}

func printVersion(ctx context.Context, mod *taglib.Module) error {
	v, err := mod.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Println(v)
	if api, err := mod.APIVersion(ctx); err == nil {
		fmt.Printf("API version: %d\n", api)
	}
	return nil
}

// parseSets builds a tag record from field=value pairs. Numeric fields
// parse their values; everything else is taken verbatim.
func parseSets(sets setFlags) (*wire.Tag, error) {
	tag := &wire.Tag{}
	for _, kv := range sets {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad -set %q, want field=value", kv)
		}
		field, value := parts[0], parts[1]
		switch field {
		case "title":
			tag.Title = value
		case "artist":
			tag.Artist = value
		case "album":
			tag.Album = value
		case "genre":
			tag.Genre = value
		case "comment":
			tag.Comment = value
		case "albumArtist":
			tag.AlbumArtist = value
		case "composer":
			tag.Composer = value
		case "year", "track", "disc", "bpm":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bad -set %s: %w", field, err)
			}
			switch field {
			case "year":
				tag.Year = uint32(n)
			case "track":
				tag.Track = uint32(n)
			case "disc":
				tag.Disc = uint32(n)
			case "bpm":
				tag.BPM = uint32(n)
			}
		default:
			return nil, fmt.Errorf("unknown field %q", field)
		}
	}
	return tag, nil
}

var (
	fileStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	keyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Width(14)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func printTag(file string, tag *wire.Tag) {
	fmt.Println(fileStyle.Render(file))
	row := func(key, value string) {
		if value == "" {
			return
		}
		fmt.Printf("  %s %s\n", keyStyle.Render(key), valueStyle.Render(value))
	}
	num := func(key string, v uint32) {
		if v != 0 {
			row(key, strconv.FormatUint(uint64(v), 10))
		}
	}
	row("Title", tag.Title)
	row("Artist", tag.Artist)
	row("Album", tag.Album)
	row("Album artist", tag.AlbumArtist)
	row("Composer", tag.Composer)
	row("Genre", tag.Genre)
	row("Comment", tag.Comment)
	num("Year", tag.Year)
	num("Track", tag.Track)
	num("Disc", tag.Disc)
	num("BPM", tag.BPM)

	var props []string
	if tag.Codec != "" {
		props = append(props, tag.Codec)
	}
	if tag.Bitrate != 0 {
		props = append(props, fmt.Sprintf("%d kbps", tag.Bitrate))
	}
	if tag.SampleRate != 0 {
		props = append(props, fmt.Sprintf("%d Hz", tag.SampleRate))
	}
	if tag.Channels != 0 {
		props = append(props, fmt.Sprintf("%d ch", tag.Channels))
	}
	if tag.Length != 0 {
		props = append(props, fmt.Sprintf("%ds", tag.Length))
	}
	if tag.IsLossless {
		props = append(props, "lossless")
	}
	if len(props) > 0 {
		fmt.Printf("  %s\n", dimStyle.Render(strings.Join(props, " · ")))
	}
	if n := len(tag.Pictures); n > 0 {
		fmt.Printf("  %s\n", dimStyle.Render(fmt.Sprintf("%d embedded picture(s)", n)))
	}
	fmt.Println()
}
