//go:build linux

// Command preheatd is the page-cache preheating daemon: it learns,
// per pair of executables, how often they run together, and spends a
// bounded slice of free memory each cycle re-warming the page cache
// for the files it predicts will be touched next.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wasteddreams/preheat/internal/config"
	"github.com/wasteddreams/preheat/internal/logging"
	"github.com/wasteddreams/preheat/internal/model"
	"github.com/wasteddreams/preheat/internal/pathfilter"
	"github.com/wasteddreams/preheat/internal/perr"
	"github.com/wasteddreams/preheat/internal/persist"
	"github.com/wasteddreams/preheat/internal/pidlock"
	"github.com/wasteddreams/preheat/internal/prophet"
	"github.com/wasteddreams/preheat/internal/readahead"
	"github.com/wasteddreams/preheat/internal/scanner"
	"github.com/wasteddreams/preheat/internal/scheduler"
	"github.com/wasteddreams/preheat/internal/spy"
	"github.com/wasteddreams/preheat/internal/stats"
	"github.com/wasteddreams/preheat/internal/types"
)

// familyCorrThreshold is the Corr() cutoff above which two executables
// are folded into the same AUTO-discovered family.
const familyCorrThreshold = 0.6

// weightDurationDivisor normalises a launch's duration into the
// weighted-launch accumulator (spec §4.10); one hour keeps the counter
// in the same rough magnitude as raw_launches for typical desktop use.
const weightDurationDivisor = 3600

type flags struct {
	configPath string
	statePath  string
	pidPath    string
	logPath    string
	statsPath  string
	foreground bool
	startup    bool
}

func main() {
	var f flags

	root := &cobra.Command{
		Use:   "preheatd",
		Short: "Keep the page cache warm for likely-next-to-run executables",
		Long: `preheatd watches which executables run together over time, learns a
per-pair correlation model, and spends a bounded memory budget each
cycle re-warming the page cache for the files it predicts will be
needed next.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), f)
		},
	}

	root.Flags().StringVar(&f.configPath, "config", "/etc/preheat.yaml", "configuration file path")
	root.Flags().StringVar(&f.statePath, "statefile", "/var/lib/preheat/state", "persistent state file path")
	root.Flags().StringVar(&f.pidPath, "pidfile", "/run/preheat.pid", "PID file path")
	root.Flags().StringVar(&f.logPath, "logfile", "/var/log/preheat.log", "log file path")
	root.Flags().StringVar(&f.statsPath, "statsfile", "/run/preheat.stats", "dump target for the USR1 stats snapshot")
	root.Flags().BoolVar(&f.foreground, "foreground", false, "stay attached to the terminal and log to stderr instead of --logfile")
	root.Flags().BoolVar(&f.startup, "startup", true, "treat an invalid configuration file as fatal instead of falling back to defaults")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func runDaemon(ctx context.Context, f flags) error {
	cfg, cfgErr := config.Load(f.configPath)
	if cfgErr != nil {
		if f.startup {
			return fmt.Errorf("preheatd: %w", cfgErr)
		}
		cfg = config.Default()
	}

	logPath := f.logPath
	if f.foreground {
		logPath = ""
	}
	lg, err := logging.New(logPath)
	if err != nil {
		return err
	}
	defer lg.Close()
	log := lg.Slog()
	if cfgErr != nil {
		log.Warn("config load failed, continuing with defaults", "err", cfgErr)
	}

	if err := os.MkdirAll(filepath.Dir(f.statePath), 0o755); err != nil {
		return perr.Wrap(perr.Fatal, "preheatd.main", f.statePath, err)
	}
	if err := pidlock.Acquire(f.pidPath); err != nil {
		return perr.Wrap(perr.Fatal, "preheatd.main", f.pidPath, err)
	}
	defer pidlock.Release(f.pidPath)

	filter := pathfilter.New(cfg.System.MapPrefix, cfg.System.ExePrefix, cfg.System.ExcludedPatterns, cfg.System.UserAppPaths)

	nowSuffix := time.Now().UTC().Format("20060102T150405")
	state, err := persist.Load(f.statePath, nowSuffix)
	if err != nil {
		return err
	}
	state.ResetBadExes()

	spyEngine := spy.New(filter, cfg.Model.MinSize)

	// Initial live rescan so every persisted Markov can be reinitialised
	// from current running flags before the first tick (spec §4.8).
	if err := spyEngine.Scan(state); err != nil {
		log.Warn("initial scan failed", "err", err)
	}
	for _, k := range state.Markovs() {
		k.ReinitState(state.LastRunningTimestamp, state.Time)
	}

	tr := stats.New(state.Time, cfg.Model.HitstatsWindow)

	cycle := time.Duration(cfg.Model.Cycle * float64(time.Second))
	autosave := time.Duration(cfg.System.Autosave * float64(time.Second))
	sch := scheduler.New(state, cycle, autosave)

	sch.DoScan = func() error {
		if !cfg.System.DoScan {
			return nil
		}
		wasRunning := make(map[string]bool, len(state.RunningExes))
		for _, e := range state.RunningExes {
			wasRunning[e.Path] = true
		}

		if err := spyEngine.Scan(state); err != nil {
			return err
		}
		if mem, err := scanner.GetMemStat(); err == nil {
			state.MemStat = mem
		}
		for _, e := range state.RunningExes {
			if !wasRunning[e.Path] {
				tr.RecordLaunch(state.Time, e, weightDurationDivisor)
			}
		}
		state.Dirty = true
		return nil
	}

	sch.DoPredict = func() error {
		if !cfg.System.DoPredict {
			return nil
		}
		prophet.ComputeLnprobs(state, state.LastRunningTimestamp, cfg.Model.UseCorrelation)

		budgetCfg := prophet.MemoryBudgetConfig{
			MemTotalPct:  cfg.Model.MemTotalPct,
			MemFreePct:   cfg.Model.MemFreePct,
			MemCachedPct: cfg.Model.MemCachedPct,
		}
		budgetKB := prophet.BudgetKB(budgetCfg, state.MemStat)
		if budgetKB <= 0 {
			tr.RecordMemoryPressure()
			return nil
		}

		// Only Maps owned by at least one priority-pool Exe are read
		// ahead; observation-pool Exes feed the correlation model only.
		owners := ownersByMap(state)
		candidates := make([]*model.Map, 0, len(state.Maps()))
		for key, m := range state.Maps() {
			for _, e := range owners[key] {
				if e.Pool == model.Priority {
					candidates = append(candidates, m)
					break
				}
			}
		}
		selected := prophet.Select(candidates, budgetKB)
		selected = prophet.Order(selected, prophet.ParseSortStrategy(cfg.System.SortStrategy))

		deadline := cycle / 2
		rctx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()

		for ev := range readahead.Run(rctx, selected, cfg.System.MaxProcs, deadline) {
			if ev.Err != nil {
				log.Warn("readahead failed", "path", ev.Map.Path(), "err", ev.Err)
				continue
			}
			tr.RecordPreload(state.Time, ev.Map, owners[ev.Map.Key])
		}
		return nil
	}

	sch.DoModel = func() error {
		if err := spyEngine.UpdateModel(state); err != nil {
			return err
		}
		for _, e := range state.Exes() {
			if e.PromotionReason == "" {
				res := filter.Classify(e.Path)
				if res.Priority {
					e.Pool = model.Priority
				}
				stats.PromotionReason(e, res.Reason)
			}
		}
		state.Families = model.BuildAutoFamilies(state, familyCorrThreshold, func() string { return uuid.NewString() })
		tr.Recompute(state)
		state.Dirty = true
		return nil
	}

	sch.DoSave = func() error {
		return persist.Save(f.statePath, state)
	}

	sch.OnReload = func() {
		newCfg, err := config.Load(f.configPath)
		if err != nil {
			log.Warn("reload: keeping previous configuration", "err", err)
		} else {
			cfg = newCfg
			filter = pathfilter.New(cfg.System.MapPrefix, cfg.System.ExePrefix, cfg.System.ExcludedPatterns, cfg.System.UserAppPaths)
			spyEngine.Filter = filter
			spyEngine.MinSize = cfg.Model.MinSize
		}
		if err := lg.Reopen(); err != nil {
			log.Warn("reload: log reopen failed", "err", err)
		} else {
			log = lg.Slog()
		}
		log.Info("reloaded")
	}

	sch.OnDump = func() {
		if err := writeStatsDump(f.statsPath, state, tr); err != nil {
			log.Warn("dump failed", "err", err)
		}
	}

	sch.OnStop = func() {
		log.Info("stopped")
	}

	sch.ErrHandler = func(source string, err error) {
		log.Warn("tick error", "source", source, "err", err)
	}

	notifyCtx, stopNotify := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopNotify()

	ctrl := make(chan os.Signal, 4)
	signal.Notify(ctrl, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(ctrl)

	go func() {
		for {
			select {
			case <-notifyCtx.Done():
				return
			case sig := <-ctrl:
				switch sig {
				case syscall.SIGHUP:
					sch.Signal(scheduler.SignalReload)
				case syscall.SIGUSR1:
					sch.Signal(scheduler.SignalDump)
				case syscall.SIGUSR2:
					sch.Signal(scheduler.SignalSave)
				}
			}
		}
	}()

	log.Info("started", "pid", os.Getpid(), "statefile", f.statePath)
	return sch.Run(notifyCtx)
}

// ownersByMap inverts every Exe's ExeMap set into map key -> owning
// Exes, so a readahead.Event can be attributed back to the Exe(s) it
// should count as preloaded for hit/miss classification.
func ownersByMap(s *model.State) map[model.MapKey][]*model.Exe {
	owners := make(map[model.MapKey][]*model.Exe)
	for _, e := range s.Exes() {
		for key := range e.ExeMaps {
			owners[key] = append(owners[key], e)
		}
	}
	return owners
}

// writeStatsDump implements the USR1 "dump" control command: a
// truncate-on-write snapshot of global counters and per-Exe state
// (spec §5 "/run/preheat.stats ... truncate-on-write").
func writeStatsDump(path string, s *model.State, tr *stats.Tracker) error {
	f, err := os.Create(path)
	if err != nil {
		return perr.Wrap(perr.Resource, "preheatd.dump", path, err)
	}
	defer f.Close()

	g := tr.Global
	fmt.Fprintf(f, "preloads_total\t%d\n", g.PreloadsTotal)
	fmt.Fprintf(f, "preload_hits\t%d\n", g.PreloadHits)
	fmt.Fprintf(f, "preload_misses\t%d\n", g.PreloadMisses)
	fmt.Fprintf(f, "memory_pressure_events\t%d\n", g.MemoryPressureEvents)
	fmt.Fprintf(f, "apps_tracked\t%d\n", g.AppsTracked)
	fmt.Fprintf(f, "apps_preloaded\t%d\n", g.AppsPreloaded)
	fmt.Fprintf(f, "total_preloaded_bytes\t%d\t%s\n", g.TotalPreloadedBytes, types.ToBytes(uint64(g.TotalPreloadedBytes)).Humanized())
	fmt.Fprintf(f, "daemon_start\t%.0f\n", g.DaemonStart)
	fmt.Fprintf(f, "last_prediction\t%.0f\n", g.LastPrediction)
	fmt.Fprintln(f)

	tw := tabwriter.NewWriter(f, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tPOOL\tREASON\tSIZE\tRAW_LAUNCHES\tWEIGHTED_LAUNCHES")
	for path, e := range s.Exes() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%.3f\n", path, e.Pool, e.PromotionReason, types.ToBytes(uint64(e.Size)).Humanized(), e.RawLaunches, e.WeightedLaunches)
	}
	if err := tw.Flush(); err != nil {
		return perr.Wrap(perr.Resource, "preheatd.dump", path, err)
	}

	fmt.Fprintln(f)
	for _, fam := range s.Families {
		fmt.Fprintf(f, "family\t%s\t%s\t%v\n", fam.ID, fam.Method, fam.Members)
	}
	return nil
}
