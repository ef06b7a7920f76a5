package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/gitdir/internal/log"
	"github.com/zjrosen/gitdir/pkg/gitdir"
)

func (a *app) batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Resolve directories read from stdin",
		Long: `Resolve every directory read from stdin, one per line, and print
"<dir><TAB><path>" for each in input order. A directory with no metadata
directory gets an empty path. Blank lines are skipped and repeated directories
are resolved once.

Examples:
  git submodule foreach -q pwd | gitdir batch
  find . -name go.mod -exec dirname {} \; | gitdir batch -r -f json`,
		Args: cobra.NoArgs,
		RunE: a.runBatch,
	}
	cmd.Flags().IntP("workers", "w", 8, "maximum concurrent resolutions")
	cmd.Flags().Duration("ttl", 0, "how long a result is reused (default from config, 30s)")
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, _ []string) error {
	dirs, err := readDirs(cmd.InOrStdin())
	if err != nil {
		return err
	}

	arg, err := a.arg(nil)
	if err != nil {
		return err
	}

	cached := gitdir.NewCachedResolver(a.resolver, a.cfg.Cache.TTL)
	results := make([]result, len(dirs))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(a.cfg.Batch.Workers)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			path, err := cached.ResolveSync(dir, arg)
			if err != nil {
				return fmt.Errorf("%s: %w", dir, err)
			}
			results[i] = result{Dir: dir, Path: path, Found: path != ""}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Debug(log.CatCLI, "batch resolved", "dirs", len(dirs), "distinct", cached.Len())

	p := newPrinter(cmd.OutOrStdout(), a.cfg.Format)
	if err := p.printAll(results); err != nil {
		return err
	}
	return p.close()
}

// readDirs returns the non-blank lines of r, trimmed.
func readDirs(r io.Reader) ([]string, error) {
	var dirs []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if dir := strings.TrimSpace(scanner.Text()); dir != "" {
			dirs = append(dirs, dir)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading directories: %w", err)
	}
	return dirs, nil
}
