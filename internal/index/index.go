// Package index implements the secondary equality-hash index substrate
// (spec §4.3): per declared index, a mapping from a field's normalized
// string value to the ordered set of document paths carrying it.
package index

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"strconv"

	"github.com/chaturanga836/docstore/internal/common"
	"github.com/chaturanga836/docstore/internal/value"
)

// Declaration is an index declared at open time: {name, collection_path, field}.
type Declaration struct {
	Name           string
	CollectionPath string
	Field          string
}

// entry holds the ordered set of document paths sharing one field value,
// mirroring the teacher's SecondaryIndexEntry (value + ordered key refs)
// narrowed from byte-slice primary keys to document path strings.
type entry struct {
	fieldValue string
	paths      []string
	pathSet    map[string]struct{}
}

func newEntry(fieldValue string) *entry {
	return &entry{fieldValue: fieldValue, pathSet: make(map[string]struct{})}
}

func (e *entry) add(path string) {
	if _, ok := e.pathSet[path]; ok {
		return
	}
	e.pathSet[path] = struct{}{}
	e.paths = append(e.paths, path)
}

func (e *entry) remove(path string) {
	if _, ok := e.pathSet[path]; !ok {
		return
	}
	delete(e.pathSet, path)
	for i, p := range e.paths {
		if p == path {
			e.paths = append(e.paths[:i], e.paths[i+1:]...)
			break
		}
	}
}

// Index is one declared equality index over a collection's children.
type Index struct {
	Declaration

	byValue map[string]*entry
	byPath  map[string]string // docPath -> current field value, for O(1) stale removal
}

// New creates an empty index for the given declaration.
func New(decl Declaration) *Index {
	return &Index{
		Declaration: decl,
		byValue:     make(map[string]*entry),
		byPath:      make(map[string]string),
	}
}

// Update re-derives this document's field value from doc and refreshes its
// association, removing any stale entry first. Passing a doc without the
// field (or a non-object doc) removes any existing association.
func (ix *Index) Update(docPath string, doc value.Value) {
	ix.Remove(docPath)
	if !doc.IsObject() {
		return
	}
	fv, ok := doc.Field(ix.Field)
	if !ok {
		return
	}
	norm, ok := NormalizeFieldValue(fv)
	if !ok {
		return
	}
	e, ok := ix.byValue[norm]
	if !ok {
		e = newEntry(norm)
		ix.byValue[norm] = e
	}
	e.add(docPath)
	ix.byPath[docPath] = norm
}

// Remove drops any association this document currently has, used on delete
// of the document itself.
func (ix *Index) Remove(docPath string) {
	prev, ok := ix.byPath[docPath]
	if !ok {
		return
	}
	delete(ix.byPath, docPath)
	if e, ok := ix.byValue[prev]; ok {
		e.remove(docPath)
		if len(e.paths) == 0 {
			delete(ix.byValue, prev)
		}
	}
}

// FindFirst returns the first path associated with a field value, per
// spec §4.3's findByIndex contract.
func (ix *Index) FindFirst(fieldValue value.Value) (string, bool) {
	norm, ok := NormalizeFieldValue(fieldValue)
	if !ok {
		return "", false
	}
	e, ok := ix.byValue[norm]
	if !ok || len(e.paths) == 0 {
		return "", false
	}
	return e.paths[0], true
}

// FindAll returns every path associated with a field value, in insertion
// order, exposed to the parallel executor for index-seeded scans.
func (ix *Index) FindAll(fieldValue value.Value) []string {
	norm, ok := NormalizeFieldValue(fieldValue)
	if !ok {
		return nil
	}
	e, ok := ix.byValue[norm]
	if !ok {
		return nil
	}
	return append([]string(nil), e.paths...)
}

// Rebuild discards all entries and repopulates by scanning every child of
// the collection, used when no sidecar exists on load. A sidecar that
// exists but cannot be read or fails its checksum makes Load return an
// error instead.
func (ix *Index) Rebuild(collection value.Value) {
	ix.byValue = make(map[string]*entry)
	ix.byPath = make(map[string]string)
	if !collection.IsObject() {
		return
	}
	for _, k := range collection.Keys() {
		child, _ := collection.Field(k)
		ix.Update(ix.CollectionPath+"."+k, child)
	}
}

// Stats reports counters mirroring the teacher's SecondaryIndex.GetStats.
func (ix *Index) Stats() map[string]interface{} {
	totalRefs := 0
	for _, e := range ix.byValue {
		totalRefs += len(e.paths)
	}
	return map[string]interface{}{
		"name":           ix.Name,
		"collection":     ix.CollectionPath,
		"field":          ix.Field,
		"unique_values":  len(ix.byValue),
		"total_path_refs": totalRefs,
	}
}

// sidecar binary layout (little-endian), mirroring the WAL's own
// length-prefixed-field + trailing-crc32 idiom:
//
//	name_len(4) name
//	collection_len(4) collection
//	field_len(4) field
//	entry_count(4)
//	  per entry: value_len(4) value, path_count(4), per path: path_len(4) path
//	crc32(4) of all preceding bytes

// Persist writes the index to its sidecar file at path, atomically via a
// temp-file-then-rename, matching the snapshot checkpoint idiom.
func (ix *Index) Persist(path string) error {
	data := ix.serialize()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return common.NewIOError(err, "index: write sidecar temp file %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return common.NewIOError(err, "index: rename sidecar into place %s", path)
	}
	return nil
}

// Load reads the sidecar file at path and adopts its contents. Returns
// (false, nil) if the file does not exist, signaling the caller should
// rebuild by full scan instead (spec §4.3).
func (ix *Index) Load(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, common.NewIOError(err, "index: read sidecar %s", path)
	}
	if err := ix.deserialize(data); err != nil {
		return false, err
	}
	return true, nil
}

func (ix *Index) serialize() []byte {
	buf := make([]byte, 0, 256)
	buf = appendLenPrefixed(buf, ix.Name)
	buf = appendLenPrefixed(buf, ix.CollectionPath)
	buf = appendLenPrefixed(buf, ix.Field)

	countOffset := len(buf)
	buf = append(buf, 0, 0, 0, 0)
	count := uint32(0)
	for _, e := range ix.byValue {
		buf = appendLenPrefixed(buf, e.fieldValue)
		buf = appendUint32(buf, uint32(len(e.paths)))
		for _, p := range e.paths {
			buf = appendLenPrefixed(buf, p)
		}
		count++
	}
	binary.LittleEndian.PutUint32(buf[countOffset:], count)

	sum := crc32.ChecksumIEEE(buf)
	buf = appendUint32(buf, sum)
	return buf
}

func (ix *Index) deserialize(data []byte) error {
	if len(data) < 4 {
		return common.NewCorruptionError(nil, "index: sidecar too short")
	}
	body, wantSum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != wantSum {
		return common.NewCorruptionError(nil, "index: sidecar checksum mismatch")
	}

	r := &reader{data: body}
	name, err := r.readLenPrefixed()
	if err != nil {
		return err
	}
	collection, err := r.readLenPrefixed()
	if err != nil {
		return err
	}
	field, err := r.readLenPrefixed()
	if err != nil {
		return err
	}
	count, err := r.readUint32()
	if err != nil {
		return err
	}

	byValue := make(map[string]*entry)
	byPath := make(map[string]string)
	for i := uint32(0); i < count; i++ {
		fv, err := r.readLenPrefixed()
		if err != nil {
			return err
		}
		pathCount, err := r.readUint32()
		if err != nil {
			return err
		}
		e := newEntry(fv)
		for j := uint32(0); j < pathCount; j++ {
			p, err := r.readLenPrefixed()
			if err != nil {
				return err
			}
			e.add(p)
			byPath[p] = fv
		}
		byValue[fv] = e
	}

	ix.Name = name
	ix.CollectionPath = collection
	ix.Field = field
	ix.byValue = byValue
	ix.byPath = byPath
	return nil
}

func appendLenPrefixed(buf []byte, s string) []byte {
	buf = appendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) readUint32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, common.NewCorruptionError(nil, "index: truncated sidecar at offset %d", r.pos)
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) readLenPrefixed() (string, error) {
	n, err := r.readUint32()
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.data) {
		return "", common.NewCorruptionError(nil, "index: truncated sidecar field at offset %d", r.pos)
	}
	s := string(r.data[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

// NormalizeFieldValue converts a Value to its hashable string form. Arrays
// and objects normalize via their JSON text; every other variant uses its
// natural scalar representation.
func NormalizeFieldValue(v value.Value) (string, bool) {
	switch v.Kind() {
	case value.Null:
		return "null", true
	case value.Bool:
		b, _ := v.Bool()
		return strconv.FormatBool(b), true
	case value.Number:
		n, _ := v.NumberVal()
		return strconv.FormatFloat(n, 'g', -1, 64), true
	case value.String:
		s, _ := v.StringVal()
		return s, true
	case value.Array, value.Object:
		data, err := v.MarshalJSON()
		if err != nil {
			return "", false
		}
		return string(data), true
	default:
		return "", false
	}
}
