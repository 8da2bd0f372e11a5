// Package classfile decodes a single compiled JVM class unit into a
// model.ParsedClass. It understands just enough of the constant pool,
// access_flags, field_info/method_info, and attribute_info grammar to
// recover symbol identity and a best-effort source line; vendor and
// unrecognized attributes are skipped using their length prefix rather
// than interpreted, per the classfile format's own self-description.
package classfile

import (
	"encoding/binary"
	"fmt"

	"github.com/standardbeagle/lci/internal/model"
)

const (
	magic = 0xCAFEBABE

	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20

	accPublic = 0x0001

	attrSourceFile     = "SourceFile"
	attrCode           = "Code"
	attrLineNumberTable = "LineNumberTable"
)

// cpEntry is one constant-pool slot, tagged by kind. Only the fields
// relevant to symbol extraction are decoded; string-constant, numeric,
// and dynamic-call-site entries are skipped structurally but not
// interpreted.
type cpEntry struct {
	tag        byte
	utf8       string
	classIndex uint16 // first u2 operand; for tagClass, index into cp for the name Utf8
	nameIndex  uint16 // second u2 operand of two-index entries (name_and_type_index of a ref, descriptor_index of NameAndType)
}

// cursor is a small streaming reader over a classfile's raw bytes.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) u1() (byte, error) {
	if c.pos+1 > len(c.data) {
		return 0, fmt.Errorf("unexpected end of class data at offset %d", c.pos)
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) u2() (uint16, error) {
	if c.pos+2 > len(c.data) {
		return 0, fmt.Errorf("unexpected end of class data at offset %d", c.pos)
	}
	v := binary.BigEndian.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

func (c *cursor) u4() (uint32, error) {
	if c.pos+4 > len(c.data) {
		return 0, fmt.Errorf("unexpected end of class data at offset %d", c.pos)
	}
	v := binary.BigEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

func (c *cursor) skip(n int) error {
	if c.pos+n > len(c.data) {
		return fmt.Errorf("unexpected end of class data at offset %d", c.pos)
	}
	c.pos += n
	return nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, fmt.Errorf("unexpected end of class data at offset %d", c.pos)
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Parse decodes the raw bytes of one compiled class unit.
func Parse(data []byte) (*model.ParsedClass, error) {
	c := &cursor{data: data}

	magicVal, err := c.u4()
	if err != nil {
		return nil, err
	}
	if magicVal != magic {
		return nil, fmt.Errorf("not a class file: bad magic %#x", magicVal)
	}

	if _, err := c.u2(); err != nil { // minor_version
		return nil, err
	}
	if _, err := c.u2(); err != nil { // major_version
		return nil, err
	}

	pool, err := parseConstantPool(c)
	if err != nil {
		return nil, err
	}

	accessFlags, err := c.u2()
	if err != nil {
		return nil, err
	}

	thisClass, err := c.u2()
	if err != nil {
		return nil, err
	}
	superClass, err := c.u2()
	if err != nil {
		return nil, err
	}

	interfacesCount, err := c.u2()
	if err != nil {
		return nil, err
	}
	if err := c.skip(int(interfacesCount) * 2); err != nil {
		return nil, err
	}

	fieldsCount, err := c.u2()
	if err != nil {
		return nil, err
	}
	fields := make([]model.ParsedField, 0, fieldsCount)
	for i := 0; i < int(fieldsCount); i++ {
		f, err := parseField(c, pool)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}

	methodsCount, err := c.u2()
	if err != nil {
		return nil, err
	}
	methods := make([]model.ParsedMethod, 0, methodsCount)
	for i := 0; i < int(methodsCount); i++ {
		m, err := parseMethod(c, pool)
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}

	classAttrsCount, err := c.u2()
	if err != nil {
		return nil, err
	}
	var sourceName string
	for i := 0; i < int(classAttrsCount); i++ {
		name, body, err := readAttribute(c, pool)
		if err != nil {
			return nil, err
		}
		if name == attrSourceFile && len(body) >= 2 {
			idx := binary.BigEndian.Uint16(body)
			sourceName = utf8At(pool, idx)
		}
	}

	internalName := utf8At(pool, classIndexName(pool, thisClass))
	superName := ""
	if superClass != 0 {
		superName = utf8At(pool, classIndexName(pool, superClass))
	}

	var sourceLine *int
	for _, m := range methods {
		if m.Line != nil {
			line := *m.Line
			sourceLine = &line
			break
		}
	}

	return &model.ParsedClass{
		InternalName: internalName,
		SuperClass:   superName,
		Access:       toAccess(uint16(accessFlags)),
		SourceName:   sourceName,
		SourceLine:   sourceLine,
		Methods:      methods,
		Fields:       fields,
	}, nil
}

func parseConstantPool(c *cursor) ([]cpEntry, error) {
	count, err := c.u2()
	if err != nil {
		return nil, err
	}
	pool := make([]cpEntry, count) // index 0 unused; entries 1..count-1 populated

	for i := 1; i < int(count); i++ {
		tag, err := c.u1()
		if err != nil {
			return nil, err
		}
		switch tag {
		case tagUtf8:
			length, err := c.u2()
			if err != nil {
				return nil, err
			}
			b, err := c.bytes(int(length))
			if err != nil {
				return nil, err
			}
			pool[i] = cpEntry{tag: tag, utf8: string(b)}
		case tagInteger, tagFloat:
			if err := c.skip(4); err != nil {
				return nil, err
			}
			pool[i] = cpEntry{tag: tag}
		case tagLong, tagDouble:
			if err := c.skip(8); err != nil {
				return nil, err
			}
			pool[i] = cpEntry{tag: tag}
			i++ // occupies two slots
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			idx, err := c.u2()
			if err != nil {
				return nil, err
			}
			pool[i] = cpEntry{tag: tag, classIndex: idx}
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			a, err := c.u2()
			if err != nil {
				return nil, err
			}
			b, err := c.u2()
			if err != nil {
				return nil, err
			}
			pool[i] = cpEntry{tag: tag, classIndex: a, nameIndex: b}
		case tagMethodHandle:
			if _, err := c.u1(); err != nil {
				return nil, err
			}
			idx, err := c.u2()
			if err != nil {
				return nil, err
			}
			pool[i] = cpEntry{tag: tag, classIndex: idx}
		default:
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
	}
	return pool, nil
}

func classIndexName(pool []cpEntry, classRef uint16) uint16 {
	if int(classRef) >= len(pool) {
		return 0
	}
	return pool[classRef].classIndex
}

func utf8At(pool []cpEntry, idx uint16) string {
	if int(idx) >= len(pool) {
		return ""
	}
	return pool[idx].utf8
}

func toAccess(flags uint16) model.AccessFlag {
	if flags&accPublic != 0 {
		return model.AccessPublic
	}
	return model.AccessDefault
}

// readAttribute consumes one attribute_info block (name_index u2,
// length u4, info[length]) and returns its name and raw body. Unknown
// attributes are returned uninterpreted; the length prefix is what lets
// the caller skip past vendor-specific attributes safely.
func readAttribute(c *cursor, pool []cpEntry) (name string, body []byte, err error) {
	nameIdx, err := c.u2()
	if err != nil {
		return "", nil, err
	}
	length, err := c.u4()
	if err != nil {
		return "", nil, err
	}
	body, err = c.bytes(int(length))
	if err != nil {
		return "", nil, err
	}
	return utf8At(pool, nameIdx), body, nil
}

func parseField(c *cursor, pool []cpEntry) (model.ParsedField, error) {
	accessFlags, err := c.u2()
	if err != nil {
		return model.ParsedField{}, err
	}
	nameIdx, err := c.u2()
	if err != nil {
		return model.ParsedField{}, err
	}
	if _, err := c.u2(); err != nil { // descriptor_index, unused for fields
		return model.ParsedField{}, err
	}
	attrsCount, err := c.u2()
	if err != nil {
		return model.ParsedField{}, err
	}
	for i := 0; i < int(attrsCount); i++ {
		if _, _, err := readAttribute(c, pool); err != nil {
			return model.ParsedField{}, err
		}
	}
	return model.ParsedField{
		Name:   utf8At(pool, nameIdx),
		Access: toAccess(accessFlags),
	}, nil
}

func parseMethod(c *cursor, pool []cpEntry) (model.ParsedMethod, error) {
	accessFlags, err := c.u2()
	if err != nil {
		return model.ParsedMethod{}, err
	}
	nameIdx, err := c.u2()
	if err != nil {
		return model.ParsedMethod{}, err
	}
	descIdx, err := c.u2()
	if err != nil {
		return model.ParsedMethod{}, err
	}
	attrsCount, err := c.u2()
	if err != nil {
		return model.ParsedMethod{}, err
	}

	var line *int
	for i := 0; i < int(attrsCount); i++ {
		name, body, err := readAttribute(c, pool)
		if err != nil {
			return model.ParsedMethod{}, err
		}
		if name == attrCode {
			l, err := firstLineFromCode(body, pool)
			if err != nil {
				return model.ParsedMethod{}, err
			}
			line = l
		}
	}

	return model.ParsedMethod{
		Name:       utf8At(pool, nameIdx),
		Descriptor: utf8At(pool, descIdx),
		Access:     toAccess(accessFlags),
		Line:       line,
	}, nil
}

// firstLineFromCode decodes a Code attribute's own sub-attributes
// looking for a LineNumberTable, returning the smallest line_number
// entry (the method's declared line).
func firstLineFromCode(body []byte, pool []cpEntry) (*int, error) {
	cc := &cursor{data: body}

	if err := cc.skip(2); err != nil { // max_stack
		return nil, err
	}
	if err := cc.skip(2); err != nil { // max_locals
		return nil, err
	}
	codeLength, err := cc.u4()
	if err != nil {
		return nil, err
	}
	if err := cc.skip(int(codeLength)); err != nil {
		return nil, err
	}
	exceptionTableLength, err := cc.u2()
	if err != nil {
		return nil, err
	}
	if err := cc.skip(int(exceptionTableLength) * 8); err != nil {
		return nil, err
	}
	attrsCount, err := cc.u2()
	if err != nil {
		return nil, err
	}

	var best *int
	for i := 0; i < int(attrsCount); i++ {
		name, sub, err := readAttribute(cc, pool)
		if err != nil {
			return nil, err
		}
		if name != attrLineNumberTable {
			continue
		}
		lc := &cursor{data: sub}
		tableLength, err := lc.u2()
		if err != nil {
			return nil, err
		}
		for j := 0; j < int(tableLength); j++ {
			if err := lc.skip(2); err != nil { // start_pc
				return nil, err
			}
			lineNumber, err := lc.u2()
			if err != nil {
				return nil, err
			}
			l := int(lineNumber)
			if best == nil || l < *best {
				best = &l
			}
		}
	}
	return best, nil
}
