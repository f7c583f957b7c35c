package persist

import (
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"strconv"
	"strings"

	"github.com/wasteddreams/preheat/internal/model"
	"github.com/wasteddreams/preheat/internal/perr"
	"github.com/wasteddreams/preheat/internal/types"
)

// Load reads the state file at path. A missing file yields a fresh,
// empty State (first-ever startup). A major version mismatch leaves the
// file untouched and starts fresh, since it may be readable by a future
// downgrade or inspected by hand (spec §4.8 "Versioning": "file is
// ignored, not quarantined"). Any other syntax error, duplicate index
// or object, or CRC mismatch quarantines the file (renamed
// "<path>.broken.<nowSuffix>") and also yields a fresh State, per spec
// §4.8's read procedure and spec §7's Input policy for C7 loads — both
// are deliberately non-fatal. nowSuffix is supplied by the caller (a
// timestamp string) since this package must not call time.Now()
// directly to stay testable without wall-clock coupling.
func Load(path, nowSuffix string) (*model.State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return model.New(), nil
	}
	if err != nil {
		return nil, perr.Wrap(perr.Resource, "persist.Load", path, err)
	}

	s, parseErr := parse(data)
	if parseErr == nil {
		return s, nil
	}

	if errors.Is(parseErr, perr.ErrMajorVersionMismatch) {
		return model.New(), nil
	}

	quarantine(path, nowSuffix)
	return model.New(), nil
}

func quarantine(path, nowSuffix string) {
	_ = os.Rename(path, fmt.Sprintf("%s.broken.%s", path, nowSuffix))
}

func parse(data []byte) (*model.State, error) {
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil, perr.Wrap(perr.Input, "persist.parse", "empty file", perr.ErrHeaderMissing)
	}
	lines := strings.Split(text, "\n")

	if !strings.HasPrefix(lines[0], tagPreload+"\t") {
		return nil, perr.Wrap(perr.Input, "persist.parse", "first line", perr.ErrHeaderMissing)
	}
	last := lines[len(lines)-1]
	if !strings.HasPrefix(last, tagCRC32+"\t") {
		return nil, perr.Wrap(perr.Input, "persist.parse", "last line", perr.ErrCRCMissing)
	}

	body := strings.Join(lines[:len(lines)-1], "\n") + "\n"
	wantCRC := strings.TrimPrefix(last, tagCRC32+"\t")
	gotCRC := fmt.Sprintf("%08X", crc32.ChecksumIEEE([]byte(body)))
	if !strings.EqualFold(wantCRC, gotCRC) {
		return nil, perr.Wrap(perr.Input, "persist.parse", "crc32 footer", perr.ErrCRCMismatch)
	}

	header := strings.Split(lines[0], "\t")
	if len(header) != 3 {
		return nil, perr.Wrap(perr.Input, "persist.parse", "PRELOAD header", perr.ErrMalformedRecord)
	}
	ver, err := types.ParseVersion(header[1])
	if err != nil {
		return nil, perr.Wrap(perr.Input, "persist.parse", "PRELOAD version", err)
	}
	if !ver.CompatibleWith(types.CurrentVersion) {
		return nil, perr.Wrap(perr.Input, "persist.parse", "PRELOAD version", perr.ErrMajorVersionMismatch)
	}
	fileTime, err := strconv.ParseFloat(header[2], 64)
	if err != nil {
		return nil, perr.Wrap(perr.Input, "persist.parse", "PRELOAD time", perr.ErrMalformedRecord)
	}

	s := model.New()
	s.Time = fileTime

	exeBySeq := make(map[uint64]*model.Exe)
	mapBySeq := make(map[uint64]*model.Map)
	var exemapLines, markovLines, familyLines [][]string

	for _, line := range lines[1 : len(lines)-1] {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		tag, rest := fields[0], fields[1:]

		switch tag {
		case tagMap:
			m, err := decodeMap(rest)
			if err != nil {
				return nil, err
			}
			if _, dup := mapBySeq[m.Seq]; dup {
				return nil, perr.Wrap(perr.Input, "persist.parse", "MAP seq", perr.ErrDuplicateIndex)
			}
			if !s.InsertMapRaw(m) {
				return nil, perr.Wrap(perr.Input, "persist.parse", "MAP key", perr.ErrDuplicateObject)
			}
			mapBySeq[m.Seq] = m

		case tagBadExe:
			// Ignored on read (spec §4.8); only shape-validated.
			if len(rest) != 3 {
				return nil, perr.Wrap(perr.Input, "persist.parse", "BADEXE", perr.ErrMalformedRecord)
			}

		case tagExe:
			e, err := decodeExe(rest)
			if err != nil {
				return nil, err
			}
			if _, dup := exeBySeq[e.Seq]; dup {
				return nil, perr.Wrap(perr.Input, "persist.parse", "EXE seq", perr.ErrDuplicateIndex)
			}
			if !s.InsertExeRaw(e) {
				return nil, perr.Wrap(perr.Input, "persist.parse", "EXE path", perr.ErrDuplicateObject)
			}
			exeBySeq[e.Seq] = e

		case tagExeMap:
			if len(rest) != 3 {
				return nil, perr.Wrap(perr.Input, "persist.parse", "EXEMAP", perr.ErrMalformedRecord)
			}
			exemapLines = append(exemapLines, rest)

		case tagMarkov:
			if len(rest) != 23 {
				return nil, perr.Wrap(perr.Input, "persist.parse", "MARKOV", perr.ErrMalformedRecord)
			}
			markovLines = append(markovLines, rest)

		case tagFamily:
			if len(rest) != 3 {
				return nil, perr.Wrap(perr.Input, "persist.parse", "FAMILY", perr.ErrMalformedRecord)
			}
			familyLines = append(familyLines, rest)

		default:
			return nil, perr.Wrap(perr.Input, "persist.parse", tag, perr.ErrUnknownTag)
		}
	}

	var maxMapSeq, maxExeSeq uint64
	for seq := range mapBySeq {
		if seq > maxMapSeq {
			maxMapSeq = seq
		}
	}
	for seq := range exeBySeq {
		if seq > maxExeSeq {
			maxExeSeq = seq
		}
	}
	s.SetSeqWatermarks(maxMapSeq, maxExeSeq)

	for _, rest := range exemapLines {
		exeSeq, err := strconv.ParseUint(rest[0], 10, 64)
		if err != nil {
			return nil, perr.Wrap(perr.Input, "persist.parse", "EXEMAP exe_seq", err)
		}
		mapSeq, err := strconv.ParseUint(rest[1], 10, 64)
		if err != nil {
			return nil, perr.Wrap(perr.Input, "persist.parse", "EXEMAP map_seq", err)
		}
		prob, err := strconv.ParseFloat(rest[2], 64)
		if err != nil {
			return nil, perr.Wrap(perr.Input, "persist.parse", "EXEMAP prob", err)
		}
		e, ok := exeBySeq[exeSeq]
		if !ok {
			return nil, perr.Wrap(perr.Input, "persist.parse", "EXEMAP exe_seq", perr.ErrMalformedRecord)
		}
		m, ok := mapBySeq[mapSeq]
		if !ok {
			return nil, perr.Wrap(perr.Input, "persist.parse", "EXEMAP map_seq", perr.ErrMalformedRecord)
		}
		s.CreateExeMap(e, m, prob)
	}

	for _, rest := range markovLines {
		k, err := decodeMarkov(rest, exeBySeq)
		if err != nil {
			return nil, err
		}
		if !s.LinkMarkovRaw(k) {
			return nil, perr.Wrap(perr.Input, "persist.parse", "MARKOV pair", perr.ErrDuplicateObject)
		}
	}

	for _, rest := range familyLines {
		s.Families = append(s.Families, model.Family{
			ID:      rest[0],
			Method:  model.DiscoveryMethod(rest[1]),
			Members: strings.Split(rest[2], ";"),
		})
	}

	return s, nil
}

func decodeMap(f []string) (*model.Map, error) {
	if len(f) != 6 {
		return nil, perr.Wrap(perr.Input, "persist.decodeMap", "field count", perr.ErrMalformedRecord)
	}
	seq, err1 := strconv.ParseUint(f[0], 10, 64)
	updateTime, err2 := strconv.ParseFloat(f[1], 64)
	offset, err3 := strconv.ParseInt(f[2], 10, 64)
	length, err4 := strconv.ParseInt(f[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, perr.Wrap(perr.Input, "persist.decodeMap", "field parse", perr.ErrMalformedRecord)
	}
	path := f[5]
	return &model.Map{
		Key:        model.MapKey{Path: path, Offset: offset, Length: length},
		Seq:        seq,
		UpdateTime: updateTime,
	}, nil
}

// decodeExe accepts the current 9-field EXE record as well as legacy
// 5- and 6-field rows (spec §4.8 "must accept legacy EXE rows with 5
// or 6 fields... migrate to defaults").
func decodeExe(f []string) (*model.Exe, error) {
	switch len(f) {
	case 5, 6, 9:
	default:
		return nil, perr.Wrap(perr.Input, "persist.decodeExe", "field count", perr.ErrMalformedRecord)
	}

	seq, err1 := strconv.ParseUint(f[0], 10, 64)
	updateTime, err2 := strconv.ParseFloat(f[1], 64)
	runTime, err3 := strconv.ParseFloat(f[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, perr.Wrap(perr.Input, "persist.decodeExe", "field parse", perr.ErrMalformedRecord)
	}

	e := model.NewExe("", seq)
	e.UpdateTime = updateTime
	e.Time = runTime

	switch len(f) {
	case 5:
		// seq, update_time, time, reserved, uri — legacy, no pool/counters.
		e.Path = f[4]
	case 6:
		// seq, update_time, time, reserved, pool, uri — no weighted counters.
		e.Pool = model.ParsePool(f[4])
		e.Path = f[5]
	case 9:
		e.Pool = model.ParsePool(f[4])
		weighted, err4 := strconv.ParseFloat(f[5], 64)
		raw, err5 := strconv.ParseInt(f[6], 10, 64)
		duration, err6 := strconv.ParseFloat(f[7], 64)
		if err4 != nil || err5 != nil || err6 != nil {
			return nil, perr.Wrap(perr.Input, "persist.decodeExe", "field parse", perr.ErrMalformedRecord)
		}
		e.WeightedLaunches = weighted
		e.RawLaunches = raw
		e.LaunchedDuration = duration
		e.Path = f[8]
	}
	return e, nil
}

func decodeMarkov(f []string, exeBySeq map[uint64]*model.Exe) (*model.Markov, error) {
	aSeq, err1 := strconv.ParseUint(f[0], 10, 64)
	bSeq, err2 := strconv.ParseUint(f[1], 10, 64)
	cumTime, err3 := strconv.ParseFloat(f[2], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return nil, perr.Wrap(perr.Input, "persist.decodeMarkov", "field parse", perr.ErrMalformedRecord)
	}
	a, ok := exeBySeq[aSeq]
	if !ok {
		return nil, perr.Wrap(perr.Input, "persist.decodeMarkov", "a_seq", perr.ErrMalformedRecord)
	}
	b, ok := exeBySeq[bSeq]
	if !ok {
		return nil, perr.Wrap(perr.Input, "persist.decodeMarkov", "b_seq", perr.ErrMalformedRecord)
	}
	if a == b {
		return nil, perr.Wrap(perr.Input, "persist.decodeMarkov", "a_seq==b_seq", perr.ErrSelfMarkov)
	}

	k := model.NewMarkovRaw(a, b)
	k.Time = cumTime

	for i := 0; i < 4; i++ {
		v, err := strconv.ParseFloat(f[3+i], 64)
		if err != nil {
			return nil, perr.Wrap(perr.Input, "persist.decodeMarkov", "ttl", perr.ErrMalformedRecord)
		}
		k.TimeToLeave[i] = v
	}
	for i := 0; i < 16; i++ {
		v, err := strconv.ParseInt(f[7+i], 10, 64)
		if err != nil {
			return nil, perr.Wrap(perr.Input, "persist.decodeMarkov", "weight", perr.ErrMalformedRecord)
		}
		k.Weight[i/4][i%4] = v
	}
	return k, nil
}
