package model

import "testing"

func TestFQN(t *testing.T) {
	if got := FQN("org/ensime/core/RichPresentationCompiler"); got != "org.ensime.core.RichPresentationCompiler" {
		t.Errorf("unexpected FQN: %s", got)
	}
}

func TestKindDerivation(t *testing.T) {
	class := FqnSymbol{Fqn: "java.lang.String"}
	if class.Kind() != KindClass {
		t.Errorf("expected KindClass, got %v", class.Kind())
	}

	method := FqnSymbol{Fqn: "java.lang.String.length", Descriptor: "()I"}
	if method.Kind() != KindMethod {
		t.Errorf("expected KindMethod, got %v", method.Kind())
	}

	field := FqnSymbol{Fqn: "java.awt.Point.x", Internal: "java/awt/Point"}
	if field.Kind() != KindField {
		t.Errorf("expected KindField, got %v", field.Kind())
	}
}

func TestSimpleName(t *testing.T) {
	sym := FqnSymbol{Fqn: "org.ensime.core.RichPresentationCompiler"}
	if got := sym.SimpleName(); got != "RichPresentationCompiler" {
		t.Errorf("expected RichPresentationCompiler, got %s", got)
	}

	inner := FqnSymbol{Fqn: "foo.bar.Baz$Inner"}
	if got := inner.SimpleName(); got != "Inner" {
		t.Errorf("expected Inner, got %s", got)
	}
}

func TestHasIgnoredFragment(t *testing.T) {
	if !HasIgnoredFragment("org.ensime.Foo$$anonfun$bar$1") {
		t.Errorf("expected anonfun fragment to be flagged")
	}
	if !HasIgnoredFragment("org.ensime.Foo$worker$1") {
		t.Errorf("expected worker fragment to be flagged")
	}
	if HasIgnoredFragment("org.ensime.core.RichPresentationCompiler") {
		t.Errorf("expected ordinary FQN to pass")
	}
}

func TestIsBlacklisted(t *testing.T) {
	cases := map[string]bool{
		"sun/misc/Unsafe.class":       true,
		"sunw/io/Readable.class":      true,
		"com/sun/proxy/Foo.class":     true,
		"java/lang/String.class":      false,
		"org/ensime/core/Main.class":  false,
	}
	for path, want := range cases {
		if got := IsBlacklisted(path); got != want {
			t.Errorf("IsBlacklisted(%q) = %v, want %v", path, got, want)
		}
	}
}
