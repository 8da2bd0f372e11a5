package textindex

import (
	"path/filepath"
	"testing"

	"github.com/standardbeagle/lci/internal/model"
)

func newTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return idx
}

func seedRichPresentationCompiler(idx *Index, container string) {
	idx.Add(container, []model.FqnSymbol{
		{ContainerURI: container, EntryURI: container, Fqn: "org.ensime.core.RichPresentationCompiler"},
	})
}

func TestSearchClassesExactFQN(t *testing.T) {
	idx := newTestIndex(t)
	idx.Add("rt.jar", []model.FqnSymbol{
		{ContainerURI: "rt.jar", EntryURI: "rt.jar", Fqn: "java.lang.String"},
	})

	results := idx.SearchClasses("java.lang.String", 10)
	if len(results) != 1 || results[0].Fqn != "java.lang.String" {
		t.Fatalf("expected exact FQN match, got %v", results)
	}
}

func TestSearchClassesAbbreviation(t *testing.T) {
	idx := newTestIndex(t)
	seedRichPresentationCompiler(idx, "core.jar")

	results := idx.SearchClasses("RPC", 10)
	found := false
	for _, r := range results {
		if r.Fqn == "org.ensime.core.RichPresentationCompiler" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected abbreviation match for RPC, got %v", results)
	}
}

func TestSearchClassesDottedAbbreviationWithSpaces(t *testing.T) {
	idx := newTestIndex(t)
	seedRichPresentationCompiler(idx, "core.jar")

	results := idx.SearchClasses("o e c Rich", 10)
	if len(results) == 0 || results[0].Fqn != "org.ensime.core.RichPresentationCompiler" {
		t.Fatalf("expected top result RichPresentationCompiler, got %v", results)
	}
}

func TestSearchClassesMethodsConjunction(t *testing.T) {
	idx := newTestIndex(t)
	idx.Add("rt.jar", []model.FqnSymbol{
		{ContainerURI: "rt.jar", EntryURI: "rt.jar", Fqn: "java.lang.Runtime"},
		{ContainerURI: "rt.jar", EntryURI: "rt.jar", Fqn: "java.lang.Runtime.addShutdownHook", Descriptor: "(Ljava/lang/Thread;)V"},
	})

	results := idx.SearchClassesMethods([]string{"addShutdownHook"}, 10)
	if len(results) != 1 || results[0].Fqn != "java.lang.Runtime.addShutdownHook" {
		t.Fatalf("expected method match, got %v", results)
	}
}

func TestSearchClassesMethodsExcludesFields(t *testing.T) {
	idx := newTestIndex(t)
	idx.Add("awt.jar", []model.FqnSymbol{
		{ContainerURI: "awt.jar", EntryURI: "awt.jar", Fqn: "java.awt.Point"},
		{ContainerURI: "awt.jar", EntryURI: "awt.jar", Fqn: "java.awt.Point.x", Internal: "java/awt/Point"},
	})

	results := idx.SearchClassesMethods([]string{"java.awt.Point.x"}, 1)
	if len(results) != 0 {
		t.Errorf("expected fields to be unsearchable, got %v", results)
	}
}

func TestRemoveDeletesByContainer(t *testing.T) {
	idx := newTestIndex(t)
	idx.Add("a.jar", []model.FqnSymbol{{ContainerURI: "a.jar", EntryURI: "a.jar", Fqn: "a.B"}})

	idx.Remove([]string{"a.jar"})

	results := idx.SearchClasses("a.B", 10)
	if len(results) != 0 {
		t.Errorf("expected no results after remove, got %v", results)
	}
}

func TestCommitAndReopenRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	idx, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	idx.Add("a.jar", []model.FqnSymbol{{ContainerURI: "a.jar", EntryURI: "a.jar", Fqn: "a.B"}})
	if err := idx.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	results := reopened.SearchClasses("a.B", 10)
	if len(results) != 1 {
		t.Fatalf("expected persisted document after reopen, got %v", results)
	}
}
