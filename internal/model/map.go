package model

// MapKey identifies a Map by the only fields that make two Maps equal
// (spec §3: "Two Maps are equal iff their (path, offset, length)
// coincide").
type MapKey struct {
	Path   string
	Offset int64
	Length int64
}

// Map is an immutable file-backed region: a path plus a byte range.
// It is owned by the Model Store's content-addressed table and lives
// as long as at least one ExeMap refers to it (spec §3 "Map (M)").
type Map struct {
	Key MapKey

	Seq        uint64
	UpdateTime float64
	Refcount   int

	// Transient per-tick fields, recomputed every Prophet pass and not
	// persisted beyond the fields already in the wire format.
	Lnprob float64
}

func (m *Map) Path() string   { return m.Key.Path }
func (m *Map) Offset() int64  { return m.Key.Offset }
func (m *Map) Length() int64  { return m.Key.Length }

// acquire increments the refcount. Called whenever a new ExeMap is
// created against this Map.
func (m *Map) acquire() { m.Refcount++ }

// release decrements the refcount and reports whether it reached zero,
// i.e. whether the caller must now remove the Map from the Store.
func (m *Map) release() bool {
	if m.Refcount > 0 {
		m.Refcount--
	}
	return m.Refcount == 0
}
