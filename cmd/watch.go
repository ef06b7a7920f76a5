package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/zjrosen/gitdir/internal/log"
	"github.com/zjrosen/gitdir/pkg/gitdir"
)

func (a *app) watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Print the metadata directory whenever it changes",
		Long: `Resolve dir (default: current directory), print the result, then keep
watching the filesystem and print again each time the result changes. In text
format a lost metadata directory prints an empty line.

Runs until interrupted.`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runWatch,
	}
	cmd.Flags().Duration("debounce", 100*time.Millisecond, "quiet period before re-resolving after a change")
	cmd.Flags().Duration("ttl", 0, "how long a result is reused between changes (default from config, 30s)")
	return cmd
}

func (a *app) runWatch(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	start, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", dir, err)
	}

	arg, err := a.arg(nil)
	if err != nil {
		return err
	}
	cached := gitdir.NewCachedResolver(a.resolver, a.cfg.Cache.TTL)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	current, err := cached.ResolveSync(start, arg)
	if err != nil {
		return err
	}
	watchDirs(watcher, watchSet(start, current, a.cfg.Roam))

	p := newPrinter(cmd.OutOrStdout(), a.cfg.Format)
	defer func() { _ = p.close() }()
	if err := p.print(result{Path: current, Found: current != ""}); err != nil {
		return err
	}

	ctx := cmd.Context()
	debounce := a.cfg.Watch.Debounce
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			log.Debug(log.CatWatch, "event", "name", event.Name, "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			cached.Invalidate()
			path, err := cached.ResolveSync(start, arg)
			if err != nil {
				log.ErrorErr(log.CatWatch, "re-resolve failed", err, "start", start)
				continue
			}
			if path == current {
				continue
			}

			log.Info(log.CatWatch, "changed", "from", current, "to", path)
			current = path
			watchDirs(watcher, watchSet(start, current, a.cfg.Roam))
			if err := p.print(result{Path: current, Found: current != ""}); err != nil {
				return err
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.ErrorErr(log.CatWatch, "watcher error", err)
		}
	}
}

// watchSet lists the directories whose entries can change the result: the
// start directory, its ancestors when roaming (up to the one holding the
// current result), and the directory holding the current result.
func watchSet(start, current string, roam bool) []string {
	holder := ""
	if current != "" {
		holder = filepath.Dir(current)
	}

	dirs := []string{start}
	if roam {
		for dir := start; dir != holder; {
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dirs = append(dirs, parent)
			dir = parent
		}
	}
	if holder != "" && holder != dirs[len(dirs)-1] {
		dirs = append(dirs, holder)
	}
	return dirs
}

// watchDirs replaces the watcher's directory list with dirs. Directories that
// do not exist yet are skipped.
func watchDirs(w *fsnotify.Watcher, dirs []string) {
	for _, dir := range w.WatchList() {
		_ = w.Remove(dir)
	}
	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			log.Debug(log.CatWatch, "not watching", "dir", dir, "error", err)
			continue
		}
		log.Debug(log.CatWatch, "watching", "dir", dir)
	}
}
