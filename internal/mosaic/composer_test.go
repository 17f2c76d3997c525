package mosaic

import (
	"reflect"
	"strings"
	"testing"
)

func newComposerSession(channels ...ChannelID) *Session {
	sess := &Session{
		ID:          SessionID("test-session"),
		Requested:   channels,
		Inputs:      make(map[ChannelID]string),
		Names:       make(map[ChannelID]string),
		HeaderFiles: make(map[ChannelID]string),
		Geometry:    DefaultGeometry,
		BitrateKbps: DefaultBitrateKbps,
		Dir:         "/tmp/test-session",
	}
	for _, ch := range channels {
		sess.Inputs[ch] = "http://origin/" + string(ch) + ".m3u8"
		sess.Names[ch] = "Name " + string(ch)
	}
	return sess
}

func countArg(args []string, want string) int {
	n := 0
	for _, a := range args {
		if a == want {
			n++
		}
	}
	return n
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildEngineArgs_fourInputsUseGrid(t *testing.T) {
	sess := newComposerSession("c1", "c2", "c3", "c4")
	args := BuildEngineArgs(sess)

	if got := countArg(args, "-i"); got != 4 {
		t.Fatalf("expected 4 inputs, got %d", got)
	}
	filter := argAfter(args, "-filter_complex")
	if !strings.Contains(filter, "xstack=inputs=4:layout=0_0|640_0|0_360|640_360") {
		t.Errorf("expected 2x2 xstack layout, got %q", filter)
	}
	if got := strings.Count(filter, "scale=640:360,setpts=PTS-STARTPTS"); got != 4 {
		t.Errorf("expected 4 scale+setpts stages, got %d in %q", got, filter)
	}
}

func TestBuildEngineArgs_twoInputsUseStack(t *testing.T) {
	sess := newComposerSession("c1", "c2")
	args := BuildEngineArgs(sess)

	filter := argAfter(args, "-filter_complex")
	if !strings.Contains(filter, "hstack=inputs=2[mosaic]") {
		t.Errorf("expected horizontal stack, got %q", filter)
	}
	if strings.Contains(filter, "xstack") {
		t.Errorf("unexpected grid layout for 2 inputs: %q", filter)
	}
}

func TestBuildEngineArgs_singleInputPassesThrough(t *testing.T) {
	sess := newComposerSession("c1")
	args := BuildEngineArgs(sess)

	filter := argAfter(args, "-filter_complex")
	if !strings.Contains(filter, "[v0]null[mosaic]") {
		t.Errorf("expected passthrough of the normalized stream, got %q", filter)
	}
}

func TestBuildEngineArgs_resolvedSubsetOnly(t *testing.T) {
	sess := newComposerSession("c1", "c2", "c3", "c4")
	// c2 and c4 failed resolution.
	delete(sess.Inputs, "c2")
	delete(sess.Inputs, "c4")

	args := BuildEngineArgs(sess)
	if got := countArg(args, "-i"); got != 2 {
		t.Fatalf("expected 2 inputs for the resolved subset, got %d", got)
	}
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "c2.m3u8") || strings.Contains(joined, "c4.m3u8") {
		t.Errorf("unresolved channels leaked into args: %s", joined)
	}
	// 3 resolved inputs would be a stack; 2 must also be.
	if !strings.Contains(argAfter(args, "-filter_complex"), "hstack=inputs=2") {
		t.Errorf("layout should follow resolved count, got %q", argAfter(args, "-filter_complex"))
	}
}

func TestBuildEngineArgs_audioTrackTitles(t *testing.T) {
	sess := newComposerSession("c1", "c2")
	sess.Names["c2"] = "" // resolution succeeded but carried no name

	args := BuildEngineArgs(sess)
	joined := strings.Join(args, "\x00")
	if !strings.Contains(joined, "-metadata:s:a:0\x00title=Name c1") {
		t.Errorf("expected resolved display name as first audio title: %v", args)
	}
	if !strings.Contains(joined, "-metadata:s:a:1\x00title=Channel 2") {
		t.Errorf("expected synthesized fallback title for unnamed channel: %v", args)
	}
	if got := countArg(args, "0:a?"); got != 1 {
		t.Errorf("expected audio map for input 0, got %d", got)
	}
	if got := countArg(args, "1:a?"); got != 1 {
		t.Errorf("expected audio map for input 1, got %d", got)
	}
}

func TestBuildEngineArgs_headerFileReferencedPerInput(t *testing.T) {
	sess := newComposerSession("c1", "c2")
	sess.HeaderFiles["c2"] = "/tmp/test-session/headers_1.txt"

	args := BuildEngineArgs(sess)
	if got := countArg(args, "-/headers"); got != 1 {
		t.Fatalf("expected one header file reference, got %d", got)
	}
	// The reference must precede the second input, not the first.
	var order []string
	for _, a := range args {
		if a == "-/headers" || a == "-i" {
			order = append(order, a)
		}
	}
	want := []string{"-i", "-/headers", "-i"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("flag order = %v, want %v", order, want)
	}
}

func TestBuildEngineArgs_deterministic(t *testing.T) {
	sess := newComposerSession("c1", "c2", "c3")
	first := BuildEngineArgs(sess)
	for i := 0; i < 10; i++ {
		if got := BuildEngineArgs(sess); !reflect.DeepEqual(got, first) {
			t.Fatalf("composer output varies between calls:\n%v\n%v", first, got)
		}
	}
}

func TestBuildEngineArgs_outputParameters(t *testing.T) {
	sess := newComposerSession("c1")
	sess.BitrateKbps = 4500
	args := BuildEngineArgs(sess)

	if got := argAfter(args, "-b:v"); got != "4500k" {
		t.Errorf("bitrate = %q, want 4500k", got)
	}
	if got := argAfter(args, "-hls_flags"); got != "delete_segments" {
		t.Errorf("hls_flags = %q", got)
	}
	if last := args[len(args)-1]; !strings.HasSuffix(last, "index.m3u8") {
		t.Errorf("final arg should be the manifest path, got %q", last)
	}
}
