package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CharlesWiltgen/taglib-wasm-sub003/provider"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/taglib"
	"github.com/CharlesWiltgen/taglib-wasm-sub003/wire"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	tagKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	tagValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBrowse modelState = iota
	stateEnterPath
	stateShowTags
)

type interactiveModel struct {
	err      error
	mod      *taglib.Module
	version  string
	dir      string
	files    []string
	selected int
	input    textinput.Model
	tag      *wire.Tag
	tagFile  string
	state    modelState

	fs       *provider.OS
	wasmFile string
	wasmURL  string
}

func newInteractiveModel(wasmFile, wasmURL string) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "/path/to/music"
	ti.Prompt = "dir: "
	ti.Width = 48
	dir, _ := os.Getwd()
	return &interactiveModel{
		fs:       provider.NewOS(),
		wasmFile: wasmFile,
		wasmURL:  wasmURL,
		dir:      dir,
		input:    ti,
		state:    stateBrowse,
	}
}

type loadedMsg struct {
	err     error
	mod     *taglib.Module
	version string
}

type scannedMsg struct {
	err   error
	dir   string
	files []string
}

type tagsMsg struct {
	err  error
	file string
	tag  *wire.Tag
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(m.loadModule, m.scanDir(m.dir))
}

func (m *interactiveModel) loadModule() tea.Msg {
	ctx := context.Background()
	mod, err := taglib.Load(ctx, taglib.Config{}.
		WithPath(m.wasmFile).
		WithURL(m.wasmURL))
	if err != nil {
		return loadedMsg{err: err}
	}
	version, _ := mod.Version(ctx)
	return loadedMsg{mod: mod, version: version}
}

// Audio extensions worth listing.
var audioExts = map[string]bool{
	".mp3": true, ".flac": true, ".m4a": true, ".mp4": true,
	".ogg": true, ".wav": true, ".ape": true, ".wv": true, ".opus": true,
}

func (m *interactiveModel) scanDir(dir string) tea.Cmd {
	return func() tea.Msg {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return scannedMsg{err: err, dir: dir}
		}
		var files []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
				files = append(files, e.Name())
			}
		}
		sort.Strings(files)
		return scannedMsg{dir: dir, files: files}
	}
}

func (m *interactiveModel) readTags() tea.Msg {
	file := filepath.Join(m.dir, m.files[m.selected])
	data, err := m.fs.ReadFile(file)
	if err != nil {
		return tagsMsg{err: err, file: file}
	}
	tag, err := m.mod.ReadTagsWithFormat(context.Background(), data,
		taglib.FormatForExt(filepath.Ext(file)))
	if err != nil {
		return tagsMsg{err: err, file: file}
	}
	return tagsMsg{file: file, tag: tag}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateEnterPath && msg.String() == "q" {
				break
			}
			if m.mod != nil {
				m.mod.Close(context.Background())
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateBrowse && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateBrowse && m.selected < len(m.files)-1 {
				m.selected++
			}

		case "o":
			if m.state == stateBrowse {
				m.input.SetValue(m.dir)
				m.input.Focus()
				m.state = stateEnterPath
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateBrowse:
				if m.mod != nil && len(m.files) > 0 {
					return m, m.readTags
				}
			case stateEnterPath:
				m.input.Blur()
				m.state = stateBrowse
				m.selected = 0
				return m, m.scanDir(m.input.Value())
			case stateShowTags:
				m.state = stateBrowse
				m.tag = nil
				m.err = nil
			}

		case "esc":
			switch m.state {
			case stateEnterPath:
				m.input.Blur()
				m.state = stateBrowse
			case stateShowTags:
				m.state = stateBrowse
				m.tag = nil
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.mod = msg.mod
		m.version = msg.version

	case scannedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.dir = msg.dir
		m.files = msg.files
		if m.selected >= len(m.files) {
			m.selected = 0
		}

	case tagsMsg:
		m.err = msg.err
		m.tag = msg.tag
		m.tagFile = msg.file
		m.state = stateShowTags
	}

	if m.state == stateEnterPath {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	header := "tagtool"
	if m.version != "" {
		header += " · " + m.version
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	if m.err != nil && m.state != stateShowTags {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("o change dir • q quit"))
		return b.String()
	}

	switch m.state {
	case stateBrowse:
		b.WriteString(m.dir)
		b.WriteString("\n\n")
		if m.mod == nil {
			b.WriteString("Loading guest module...\n")
		} else if len(m.files) == 0 {
			b.WriteString(helpStyle.Render("no audio files here"))
			b.WriteString("\n")
		} else {
			for i, f := range m.files {
				if i == m.selected {
					b.WriteString(selectedStyle.Render("> " + f))
				} else {
					b.WriteString("  " + f)
				}
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter read tags • o change dir • q quit"))

	case stateEnterPath:
		b.WriteString("Open directory:\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter open • esc back"))

	case stateShowTags:
		b.WriteString(m.tagFile)
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(renderTag(m.tag))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter back • q quit"))
	}

	return b.String()
}

func renderTag(tag *wire.Tag) string {
	var b strings.Builder
	row := func(key, value string) {
		if value == "" {
			return
		}
		b.WriteString(fmt.Sprintf("%s %s\n",
			tagKeyStyle.Width(14).Render(key), tagValueStyle.Render(value)))
	}
	row("Title", tag.Title)
	row("Artist", tag.Artist)
	row("Album", tag.Album)
	row("Album artist", tag.AlbumArtist)
	row("Genre", tag.Genre)
	row("Comment", tag.Comment)
	if tag.Year != 0 {
		row("Year", fmt.Sprintf("%d", tag.Year))
	}
	if tag.Track != 0 {
		row("Track", fmt.Sprintf("%d", tag.Track))
	}
	if tag.Bitrate != 0 {
		row("Bitrate", fmt.Sprintf("%d kbps", tag.Bitrate))
	}
	if tag.Length != 0 {
		row("Length", fmt.Sprintf("%ds", tag.Length))
	}
	if n := len(tag.Pictures); n > 0 {
		row("Pictures", fmt.Sprintf("%d", n))
	}
	return b.String()
}

func runInteractive(wasmFile, wasmURL string) error {
	p := tea.NewProgram(newInteractiveModel(wasmFile, wasmURL), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
