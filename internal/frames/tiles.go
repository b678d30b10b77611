package frames

import (
	"strconv"
	"strings"
)

// DefaultTileTemplate is the RainViewer tile layout.
const DefaultTileTemplate = "{host}{path}/{size}/{z}/{x}/{y}/{color}/{options}.png"

// TileOptions are the rendering parameters substituted into a template.
type TileOptions struct {
	Size    int    `json:"size"`
	Color   int    `json:"color"`
	Options string `json:"options"`
}

// DefaultTileOptions matches the dashboard's radar layer.
var DefaultTileOptions = TileOptions{Size: 256, Color: 2, Options: "1_1"}

// TileURL resolves a frame into a URL template that still carries the {z},
// {x} and {y} placeholders for the map library to fill.
func TileURL(template, host string, f Frame, opts TileOptions) string {
	if template == "" {
		template = DefaultTileTemplate
	}
	r := strings.NewReplacer(
		"{host}", strings.TrimSuffix(host, "/"),
		"{path}", f.Path,
		"{size}", strconv.Itoa(opts.Size),
		"{color}", strconv.Itoa(opts.Color),
		"{options}", opts.Options,
	)
	return r.Replace(template)
}

// ResolvedFrame is what the rendering layer receives.
type ResolvedFrame struct {
	Time int64  `json:"time"`
	URL  string `json:"url"`
}

// Resolve maps every frame in w to its tile URL.
func Resolve(w Window, template, host string, opts TileOptions) []ResolvedFrame {
	out := make([]ResolvedFrame, 0, w.Len())
	for _, f := range w.frames {
		out = append(out, ResolvedFrame{Time: f.Time, URL: TileURL(template, host, f, opts)})
	}
	return out
}
