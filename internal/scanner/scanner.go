//go:build linux

// Package scanner implements spec §4.1's Proc Scanner (C1): enumerating
// running processes, reading a process's file-backed memory maps, and
// reading system memory counters. Every reader here parses /proc
// directly, zero-dependency — no gopsutil, no cgo.
package scanner

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/wasteddreams/preheat/internal/model"
	"github.com/wasteddreams/preheat/internal/pathfilter"
)

// ProcessInfo is one entry returned by EnumerateProcesses.
type ProcessInfo struct {
	PID  int
	Path string
}

// EnumerateProcesses walks /proc, resolves each numeric entry's exe
// symlink, and discards entries that fail to resolve or whose path is
// empty (spec §4.1: "Unreadable PIDs are silently skipped (they
// died)").
func EnumerateProcesses() ([]ProcessInfo, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	out := make([]ProcessInfo, 0, len(entries))
	for _, ent := range entries {
		pid, err := strconv.Atoi(ent.Name())
		if err != nil {
			continue // not a PID directory
		}
		path, err := os.Readlink(filepath.Join("/proc", ent.Name(), "exe"))
		if err != nil || path == "" {
			continue // process died or is a kernel thread
		}
		out = append(out, ProcessInfo{PID: pid, Path: path})
	}
	return out, nil
}

// MapSeed is the seed for a fresh ExeMap: an observed file-backed
// region plus its initial probability (spec §4.1: "ExeMap-seed...
// with prob = 1.0").
type MapSeed struct {
	Path   string
	Offset int64
	Length int64
	Prob   float64
}

// GetMaps parses /proc/<pid>/maps, keeping only entries that are
// readable, file-backed, non-empty, absolute-pathed and pass the
// mapprefix filter, coalescing adjacent regions of the same file. A
// zero total with no error means the process vanished mid-read and any
// partially built output must be discarded by the caller (spec §4.1).
//
// withSeeds controls whether MapSeed values are returned at all: the
// caller passes false for the "how big is this exe" probe of spec
// §4.4 step 4 and true for the seeding pass that follows it.
func GetMaps(pid int, filter pathfilter.Filter, withSeeds bool) (totalBytes int64, seeds []MapSeed, err error) {
	f, err := os.Open(filepath.Join("/proc", strconv.Itoa(pid), "maps"))
	if err != nil {
		return 0, nil, nil // process vanished; spec: treat as "process vanished"
	}
	defer f.Close()

	type region struct {
		path   string
		offset int64
		end    int64 // offset + length, used to detect adjacency
	}
	var last *region
	var out []MapSeed

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue // no path: anonymous mapping, not file-backed
		}

		addrRange := fields[0]
		perms := fields[1]
		offsetHex := fields[2]
		path := strings.Join(fields[5:], " ")

		if !strings.HasPrefix(perms, "r") {
			continue // not readable
		}
		if !strings.HasPrefix(path, "/") {
			continue // not an absolute file path (anon, heap, [stack], etc.)
		}
		if !filter.AllowMap(path) {
			continue
		}

		lo, hi, ok := parseAddrRange(addrRange)
		if !ok {
			continue
		}
		length := hi - lo
		if length <= 0 {
			continue
		}
		offset, err := strconv.ParseInt(offsetHex, 16, 64)
		if err != nil {
			continue
		}

		// Coalesce adjacent regions of the same file: the previous
		// region's file offset + length equals this one's offset.
		if last != nil && last.path == path && last.end == offset {
			last.end = offset + length
			if withSeeds && len(out) > 0 {
				out[len(out)-1].Length = last.end - out[len(out)-1].Offset
			}
			totalBytes += length
			continue
		}

		totalBytes += length
		last = &region{path: path, offset: offset, end: offset + length}
		if withSeeds {
			out = append(out, MapSeed{Path: path, Offset: offset, Length: length, Prob: 1.0})
		}
	}
	if err := sc.Err(); err != nil {
		return 0, nil, nil // unreadable mid-scan: treat as vanished
	}

	if withSeeds {
		seeds = out
	}
	return totalBytes, seeds, nil
}

// parseAddrRange parses the "start-end" hex address range column of
// /proc/<pid>/maps.
func parseAddrRange(s string) (lo, hi int64, ok bool) {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	loU, err1 := strconv.ParseUint(parts[0], 16, 64)
	hiU, err2 := strconv.ParseUint(parts[1], 16, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return int64(loU), int64(hiU), true
}

// GetMemStat reads /proc/meminfo and /proc/vmstat for the system
// memory counters spec §4.1 requires, in kilobytes (pagein/pageout are
// cumulative since boot, taken unconverted from vmstat's pgpgin/pgpgout,
// which the kernel already reports in kilobytes).
func GetMemStat() (model.MemStat, error) {
	info, err := readMeminfo("/proc/meminfo")
	if err != nil {
		return model.MemStat{}, err
	}
	pgIn, pgOut, err := readVmstatPages("/proc/vmstat")
	if err != nil {
		return model.MemStat{}, err
	}

	return model.MemStat{
		Total:   info["MemTotal"],
		Free:    info["MemFree"],
		Buffers: info["Buffers"],
		Cached:  info["Cached"],
		// pgpgin/pgpgout in /proc/vmstat are already reported in
		// kilobytes cumulative since boot (spec §4.1).
		Pagein:  pgIn,
		Pageout: pgOut,
	}, nil
}

func readMeminfo(path string) (map[string]int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]int64, 8)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		key := strings.TrimSuffix(fields[0], ":")
		v, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		out[key] = v // always kB per the kernel's documented format
	}
	return out, sc.Err()
}

func readVmstatPages(path string) (pgIn, pgOut int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		v, e := strconv.ParseInt(fields[1], 10, 64)
		if e != nil {
			continue
		}
		switch fields[0] {
		case "pgpgin":
			pgIn = v
		case "pgpgout":
			pgOut = v
		}
	}
	return pgIn, pgOut, sc.Err()
}
