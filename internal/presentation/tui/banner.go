package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{" _____              _      _ _ ", "#34d399"},
	{"|_   _|__ _ __   __| |_ __(_) |", "#2dd4bf"},
	{"  | |/ _ \\ '_ \\ / _` | '__| | |", "#22d3ee"},
	{"  | |  __/ | | | (_| | |  | | |", "#38bdf8"},
	{"  |_|\\___|_| |_|\\__,_|_|  |_|_|", "#60a5fa"},
}

// PrintBanner writes the ASCII art banner and the version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.EnvColorProfile()
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	if v := strings.TrimSpace(version); v != "" {
		fmt.Fprintln(w, termenv.String("  v"+v).Faint())
	}
	fmt.Fprintln(w)
}
