package persist

import (
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasteddreams/preheat/internal/model"
)

func buildState(t *testing.T) *model.State {
	t.Helper()
	s := model.New()
	s.Time = 1234.5

	a := model.NewExe("/usr/bin/a", s.NextExeSeq())
	a.Time = 10
	a.Pool = model.Priority
	a.WeightedLaunches = 3.5
	a.RawLaunches = 4
	a.LaunchedDuration = 42
	s.RegisterExe(a, false)

	b := model.NewExe("/usr/bin/b", s.NextExeSeq())
	b.Time = 5
	s.RegisterExe(b, true) // creates the a<->b markov

	k := a.Markovs["/usr/bin/b"]
	require.NotNil(t, k)
	k.Time = 7
	k.TimeToLeave = [4]float64{1, 2, 3, 4}
	k.Weight = [4][4]int64{{1, 1, 0, 0}, {0, 2, 2, 0}, {0, 0, 1, 1}, {0, 0, 0, 3}}

	m := s.GetOrCreateMap("/usr/bin/a", 0, 4096, s.Time)
	s.CreateExeMap(a, m, 0.9)

	s.MarkBadExe("/usr/bin/too-small", 10, s.Time)
	s.Families = []model.Family{{ID: "fam-1", Method: model.DiscoveryAuto, Members: []string{"/usr/bin/a", "/usr/bin/b"}}}

	return s
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preheat.state")

	orig := buildState(t)
	require.NoError(t, Save(path, orig))

	loaded, err := Load(path, "20260101_000000")
	require.NoError(t, err)

	require.Len(t, loaded.Exes(), 2)
	a, ok := loaded.LookupExe("/usr/bin/a")
	require.True(t, ok)
	assert.Equal(t, model.Priority, a.Pool)
	assert.InDelta(t, 3.5, a.WeightedLaunches, 1e-9)
	assert.Equal(t, int64(4), a.RawLaunches)
	assert.InDelta(t, 42.0, a.LaunchedDuration, 1e-9)
	assert.InDelta(t, 10.0, a.Time, 1e-9)

	require.Len(t, loaded.Maps(), 1)
	for _, m := range loaded.Maps() {
		assert.Equal(t, int64(4096), m.Length())
	}

	require.Len(t, loaded.Markovs(), 1)
	for _, k := range loaded.Markovs() {
		assert.InDelta(t, 7.0, k.Time, 1e-9)
		assert.Equal(t, [4]float64{1, 2, 3, 4}, k.TimeToLeave)
		assert.Equal(t, int64(3), k.Weight[3][3])
	}

	require.Len(t, loaded.Families, 1)
	assert.Equal(t, "fam-1", loaded.Families[0].ID)

	// Bad-exes are intentionally dropped on read (spec §4.8).
	assert.Empty(t, loaded.BadExes())
}

func TestLoad_MissingFileYieldsFreshState(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope"), "x")
	require.NoError(t, err)
	assert.Empty(t, s.Exes())
}

func TestLoad_CorruptHeaderQuarantinesAndStartsFresh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preheat.state")
	require.NoError(t, os.WriteFile(path, []byte("NOT_A_HEADER\tfoo\n"), 0o644))

	s, err := Load(path, "20260101_000000")
	require.NoError(t, err)
	assert.Empty(t, s.Exes())

	_, statErr := os.Stat(path + ".broken.20260101_000000")
	assert.NoError(t, statErr)
	_, statErr = os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoad_CRCMismatchQuarantines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preheat.state")
	content := "PRELOAD\t1.0\t0\nCRC32\tDEADBEEF\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path, "20260101_000001")
	require.NoError(t, err)
	assert.Empty(t, s.Exes())

	_, statErr := os.Stat(path + ".broken.20260101_000001")
	assert.NoError(t, statErr)
}

func TestLoad_MajorVersionMismatchStartsFreshWithoutQuarantine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preheat.state")
	body := "PRELOAD\t2.0\t0\n"
	crc := fmt.Sprintf("%08X", crc32.ChecksumIEEE([]byte(body)))
	require.NoError(t, os.WriteFile(path, []byte(body+"CRC32\t"+crc+"\n"), 0o644))

	s, err := Load(path, "20260101_000003")
	require.NoError(t, err)
	assert.Empty(t, s.Exes())

	// Ignored, not quarantined (spec §4.8 "Versioning"): the original
	// file is left in place and no .broken sibling is created.
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr)
	_, statErr = os.Stat(path + ".broken.20260101_000003")
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoad_UnknownTagQuarantines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preheat.state")

	// A file with a bogus tag but a correct CRC, so only the
	// unknown-tag path is exercised.
	body := "PRELOAD\t1.0\t0\nBOGUS\tx\ty\n"
	crc := fmt.Sprintf("%08X", crc32.ChecksumIEEE([]byte(body)))
	require.NoError(t, os.WriteFile(path, []byte(body+"CRC32\t"+crc+"\n"), 0o644))

	loaded, err := Load(path, "20260101_000002")
	require.NoError(t, err)
	assert.Empty(t, loaded.Exes())
}

func TestLoad_LegacyExeRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "preheat.state")

	body := "PRELOAD\t1.0\t100\nEXE\t1\t0\t5\t-1\t/bin/legacy5\n"
	crc := fmt.Sprintf("%08X", crc32.ChecksumIEEE([]byte(body)))
	require.NoError(t, os.WriteFile(path, []byte(body+"CRC32\t"+crc+"\n"), 0o644))

	s, err := Load(path, "x")
	require.NoError(t, err)
	require.Len(t, s.Exes(), 1)
	e, ok := s.LookupExe("/bin/legacy5")
	require.True(t, ok)
	assert.Equal(t, model.Observation, e.Pool)
	assert.InDelta(t, 5.0, e.Time, 1e-9)
}
