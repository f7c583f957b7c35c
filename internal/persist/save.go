package persist

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wasteddreams/preheat/internal/model"
	"github.com/wasteddreams/preheat/internal/perr"
	"github.com/wasteddreams/preheat/internal/types"
)

// Save writes the full State to path using the temp-file + fsync +
// rename procedure of spec §4.8. Any failure removes the temp file and
// returns a Resource error; the in-memory State is untouched, so the
// Scheduler can leave S.dirty set and retry next autosave cycle (spec §7).
func Save(path string, s *model.State) error {
	tmp := path + ".tmp"

	if err := writeTemp(tmp, s); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := appendCRC(tmp); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return perr.Wrap(perr.Resource, "persist.Save", path, err)
	}

	if dir, err := os.Open(filepath.Dir(path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}
	return nil
}

func writeTemp(tmp string, s *model.State) error {
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return perr.Wrap(perr.Resource, "persist.Save", tmp, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	writeBody(w, s)
	if err := w.Flush(); err != nil {
		return perr.Wrap(perr.Resource, "persist.Save", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return perr.Wrap(perr.Resource, "persist.Save", tmp, err)
	}
	return nil
}

func writeBody(w *bufio.Writer, s *model.State) {
	fmt.Fprintf(w, "%s\t%s\t%s\n", tagPreload, types.CurrentVersion.String(), f64(s.Time))

	for path := range s.BadExes() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", tagBadExe, f64(0), reserved, path)
	}

	for _, m := range s.Maps() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\t%d\t%s\n",
			tagMap, m.Seq, f64(m.UpdateTime), m.Offset(), m.Length(), reserved, m.Path())
	}

	for _, e := range s.Exes() {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\t%s\t%s\t%d\t%s\t%s\n",
			tagExe, e.Seq, f64(e.UpdateTime), f64(e.Time), reserved,
			e.Pool.String(), f64(e.WeightedLaunches), e.RawLaunches, f64(e.LaunchedDuration), e.Path)

		for _, em := range e.ExeMaps {
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", tagExeMap, e.Seq, em.Map.Seq, f64(em.Prob))
		}
	}

	for _, k := range s.Markovs() {
		fields := make([]string, 0, 23)
		fields = append(fields, tagMarkov,
			strconv.FormatUint(k.A.Seq, 10), strconv.FormatUint(k.B.Seq, 10), f64(k.Time))
		for _, ttl := range k.TimeToLeave {
			fields = append(fields, f64(ttl))
		}
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				fields = append(fields, strconv.FormatInt(k.Weight[i][j], 10))
			}
		}
		fmt.Fprintln(w, strings.Join(fields, "\t"))
	}

	for _, fam := range s.Families {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tagFamily, fam.ID, string(fam.Method), strings.Join(fam.Members, ";"))
	}
}

// appendCRC re-reads the just-written temp file, computes CRC32 over
// its exact bytes, and appends the CRC32 footer line with its own
// fsync, per spec §4.8: "CRC is computed by re-reading the written
// bytes before the CRC32 line is appended (and the file is fsynced
// again)".
func appendCRC(tmp string) error {
	body, err := os.ReadFile(tmp)
	if err != nil {
		return perr.Wrap(perr.Resource, "persist.Save", tmp, err)
	}

	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return perr.Wrap(perr.Resource, "persist.Save", tmp, err)
	}
	defer f.Close()

	line := fmt.Sprintf("%s\t%08X\n", tagCRC32, crc32.ChecksumIEEE(body))
	if _, err := f.WriteString(line); err != nil {
		return perr.Wrap(perr.Resource, "persist.Save", tmp, err)
	}
	if err := f.Sync(); err != nil {
		return perr.Wrap(perr.Resource, "persist.Save", tmp, err)
	}
	return nil
}

func f64(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
