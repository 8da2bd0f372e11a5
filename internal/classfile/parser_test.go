package classfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/standardbeagle/lci/internal/model"
)

// buildMinimalClass hand-assembles a tiny but well-formed classfile:
// class a.B extends java.lang.Object, one public method foo()V whose
// Code attribute carries a LineNumberTable pinning it to line 10, one
// public field x:I, and a SourceFile attribute of "B.java".
func buildMinimalClass(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer

	u2 := func(v uint16) { binary.Write(&buf, binary.BigEndian, v) }
	u4 := func(v uint32) { binary.Write(&buf, binary.BigEndian, v) }
	utf8 := func(s string) {
		buf.WriteByte(tagUtf8)
		u2(uint16(len(s)))
		buf.WriteString(s)
	}
	classRef := func(nameIdx uint16) {
		buf.WriteByte(tagClass)
		u2(nameIdx)
	}

	u4(magic)
	u2(0) // minor
	u2(61) // major

	u2(13) // constant_pool_count (entries 1..12)
	utf8("a/B")               // 1
	classRef(1)                // 2
	utf8("java/lang/Object")  // 3
	classRef(3)                // 4
	utf8("foo")                // 5
	utf8("()V")                // 6
	utf8("Code")                // 7
	utf8("LineNumberTable")    // 8
	utf8("x")                  // 9
	utf8("I")                  // 10
	utf8("SourceFile")          // 11
	utf8("B.java")              // 12

	u2(0x0001) // access_flags: public
	u2(2)      // this_class
	u2(4)      // super_class
	u2(0)      // interfaces_count

	// fields
	u2(1) // fields_count
	u2(0x0001) // access_flags
	u2(9)      // name_index "x"
	u2(10)     // descriptor_index "I"
	u2(0)      // attributes_count

	// methods
	u2(1)      // methods_count
	u2(0x0001) // access_flags
	u2(5)      // name_index "foo"
	u2(6)      // descriptor_index "()V"
	u2(1)      // attributes_count

	// Code attribute body
	var code bytes.Buffer
	cu2 := func(v uint16) { binary.Write(&code, binary.BigEndian, v) }
	cu4 := func(v uint32) { binary.Write(&code, binary.BigEndian, v) }
	cu2(1)           // max_stack
	cu2(1)           // max_locals
	cu4(1)           // code_length
	code.WriteByte(0xB1) // return
	cu2(0)           // exception_table_length
	cu2(1)           // attributes_count (LineNumberTable)

	var lnt bytes.Buffer
	lu2 := func(v uint16) { binary.Write(&lnt, binary.BigEndian, v) }
	lu2(1) // line_number_table_length
	lu2(0) // start_pc
	lu2(10) // line_number

	cu2(8) // name_index "LineNumberTable"
	cu4(uint32(lnt.Len()))
	code.Write(lnt.Bytes())

	u2(7) // name_index "Code"
	u4(uint32(code.Len()))
	buf.Write(code.Bytes())

	// class attributes
	u2(1)  // attributes_count
	u2(11) // name_index "SourceFile"
	u4(2)
	u2(12) // sourcefile_index

	return buf.Bytes()
}

func TestParseMinimalClass(t *testing.T) {
	data := buildMinimalClass(t)

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if parsed.InternalName != "a/B" {
		t.Errorf("expected internal name a/B, got %s", parsed.InternalName)
	}
	if parsed.SuperClass != "java/lang/Object" {
		t.Errorf("expected super class java/lang/Object, got %s", parsed.SuperClass)
	}
	if parsed.Access != model.AccessPublic {
		t.Errorf("expected public access, got %v", parsed.Access)
	}
	if parsed.SourceName != "B.java" {
		t.Errorf("expected source name B.java, got %s", parsed.SourceName)
	}

	if len(parsed.Methods) != 1 {
		t.Fatalf("expected 1 method, got %d", len(parsed.Methods))
	}
	m := parsed.Methods[0]
	if m.Name != "foo" || m.Descriptor != "()V" {
		t.Errorf("unexpected method: %+v", m)
	}
	if m.Line == nil || *m.Line != 10 {
		t.Errorf("expected method line 10, got %v", m.Line)
	}

	if parsed.SourceLine == nil || *parsed.SourceLine != 10 {
		t.Errorf("expected class source line 10, got %v", parsed.SourceLine)
	}

	if len(parsed.Fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(parsed.Fields))
	}
	f := parsed.Fields[0]
	if f.Name != "x" || f.Access != model.AccessPublic {
		t.Errorf("unexpected field: %+v", f)
	}
}

func TestParseRejectsBadMagic(t *testing.T) {
	_, err := Parse([]byte{0, 0, 0, 0})
	if err == nil {
		t.Fatalf("expected error for bad magic")
	}
}

func TestParseRejectsTruncatedData(t *testing.T) {
	data := buildMinimalClass(t)
	_, err := Parse(data[:len(data)-20])
	if err == nil {
		t.Fatalf("expected error for truncated class data")
	}
}
