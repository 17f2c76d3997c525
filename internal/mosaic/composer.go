package mosaic

import (
	"fmt"
	"path/filepath"
	"strings"
)

// HLS segmenting parameters for the composed output. The rolling window keeps
// the on-disk footprint of a session bounded.
const (
	hlsSegmentSeconds = 4
	hlsWindowSize     = 6
	manifestName      = "index.m3u8"
)

// BuildEngineArgs deterministically builds the full argument list for the
// transcoding engine from the session's resolved inputs and geometry. It has
// no side effects; header credential files referenced here must already have
// been written by the caller.
//
// Callers must ensure the session has at least one resolved input; a session
// with zero inputs never reaches the composer.
func BuildEngineArgs(sess *Session) []string {
	channels := sess.ResolvedChannels()
	layout := LayoutFor(len(channels))

	args := []string{"-hide_banner", "-loglevel", "warning"}

	for _, ch := range channels {
		if hf := sess.HeaderFiles[ch]; hf != "" {
			// -/headers reads the option value from a file, keeping the
			// upstream authorization header out of the process listing.
			args = append(args, "-/headers", hf)
		}
		args = append(args, "-i", sess.Inputs[ch])
	}

	args = append(args, "-filter_complex", buildFilterGraph(layout, sess.Geometry))
	args = append(args, "-map", "[mosaic]")

	for idx, ch := range channels {
		name := sess.Names[ch]
		if name == "" {
			name = fmt.Sprintf("Channel %d", idx+1)
		}
		args = append(args,
			"-map", fmt.Sprintf("%d:a?", idx),
			fmt.Sprintf("-metadata:s:a:%d", idx), fmt.Sprintf("title=%s", name),
		)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-b:v", fmt.Sprintf("%dk", sess.BitrateKbps),
		"-c:a", "aac",
		"-f", "hls",
		"-hls_time", fmt.Sprintf("%d", hlsSegmentSeconds),
		"-hls_list_size", fmt.Sprintf("%d", hlsWindowSize),
		"-hls_flags", "delete_segments",
		filepath.Join(sess.Dir, manifestName),
	)

	return args
}

// buildFilterGraph emits one scale+timestamp-normalization stage per input,
// then combines the labeled streams according to the layout.
func buildFilterGraph(layout Layout, g Geometry) string {
	parts := make([]string, 0, layout.Inputs+1)
	for i := 0; i < layout.Inputs; i++ {
		parts = append(parts, fmt.Sprintf(
			"[%d:v]scale=%d:%d,setpts=PTS-STARTPTS[v%d]",
			i, g.TileWidth, g.TileHeight, i,
		))
	}

	var combine strings.Builder
	for i := 0; i < layout.Inputs; i++ {
		fmt.Fprintf(&combine, "[v%d]", i)
	}

	switch layout.Kind {
	case LayoutSingle:
		combine.WriteString("null[mosaic]")
	case LayoutStack:
		fmt.Fprintf(&combine, "hstack=inputs=%d[mosaic]", layout.Inputs)
	default:
		offsets := make([]string, 0, layout.Inputs)
		for i := 0; i < layout.Inputs; i++ {
			x, y := layout.TileOffset(i, g)
			offsets = append(offsets, fmt.Sprintf("%d_%d", x, y))
		}
		// fill covers grid cells left empty when the input count does not
		// fill the last row.
		fmt.Fprintf(&combine, "xstack=inputs=%d:layout=%s:fill=black[mosaic]",
			layout.Inputs, strings.Join(offsets, "|"))
	}

	parts = append(parts, combine.String())
	return strings.Join(parts, ";")
}
