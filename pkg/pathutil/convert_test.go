package pathutil

import (
	"testing"

	"github.com/standardbeagle/lci/internal/model"
)

func TestToRelativeWithinRoot(t *testing.T) {
	got := ToRelative("file:///home/user/project/src/Main.java", "/home/user/project")
	if got != "src/Main.java" {
		t.Errorf("got %q", got)
	}
}

func TestToRelativeOutsideRootFallsBackToURI(t *testing.T) {
	uri := "file:///other/location/File.java"
	got := ToRelative(uri, "/home/user/project")
	if got != uri {
		t.Errorf("expected fallback to original URI, got %q", got)
	}
}

func TestToRelativeNonFileURIPassesThrough(t *testing.T) {
	uri := "jar:///libs/lib.jar!a/B.class"
	got := ToRelative(uri, "/home/user/project")
	if got != uri {
		t.Errorf("expected non-file URI untouched, got %q", got)
	}
}

func TestToRelativeSymbolsLeavesContainerAndEntryURIAlone(t *testing.T) {
	in := []model.FqnSymbol{{
		Fqn:          "a.B",
		ContainerURI: "file:///home/user/project/lib.jar",
		EntryURI:     "a/B.class",
		SourceURI:    "file:///home/user/project/src/a/B.java",
	}}
	out := ToRelativeSymbols(in, "/home/user/project")
	if out[0].SourceURI != "src/a/B.java" {
		t.Errorf("expected relativized SourceURI, got %q", out[0].SourceURI)
	}
	if out[0].ContainerURI != in[0].ContainerURI || out[0].EntryURI != in[0].EntryURI {
		t.Errorf("expected ContainerURI/EntryURI untouched")
	}
	if in[0].SourceURI != "file:///home/user/project/src/a/B.java" {
		t.Errorf("expected input slice left unmodified")
	}
}
