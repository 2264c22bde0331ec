package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"autocode/internal/compiler"
	"autocode/internal/config"
	"autocode/internal/identity"
	"autocode/internal/workspace"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	cacheShowRaw bool
	cacheClearOK bool
	cacheJobs    int
)

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

// cacheCmd groups cache maintenance commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the function cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached functions",
	Args:  cobra.NoArgs,
	RunE:  runCacheList,
}

var cacheShowCmd = &cobra.Command{
	Use:   "show <key|file>",
	Short: "Show the source of a cached function (e.g. ids/add or structure/main.go/Add)",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheShow,
}

var cacheRmCmd = &cobra.Command{
	Use:   "rm <key|file>...",
	Short: "Remove cached functions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCacheRm,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached function",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

var cacheVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Recompile every cached function and report the broken ones",
	Args:  cobra.NoArgs,
	RunE:  runCacheVerify,
}

func init() {
	cacheShowCmd.Flags().BoolVar(&cacheShowRaw, "raw", false, "Print the source without rendering")
	cacheClearCmd.Flags().BoolVar(&cacheClearOK, "yes", false, "Confirm removal of the whole cache")
	cacheVerifyCmd.Flags().IntVarP(&cacheJobs, "jobs", "j", runtime.NumCPU(), "Parallel compilations")
}

func openWorkspace() (*config.Config, *workspace.Workspace, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return cfg, workspace.New(cfg.CachePath()), nil
}

func runCacheList(cmd *cobra.Command, args []string) error {
	_, ws, err := openWorkspace()
	if err != nil {
		return err
	}
	entries, err := ws.List()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "No cached functions in %s\n", ws.Root())
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		}).
		Headers("KEY", "NAME", "AGENT", "CREATED", "DESCRIPTION")
	for _, e := range entries {
		meta, err := ws.ReadMeta(e.Key)
		if err != nil {
			logger.Warn("Unreadable metadata", zap.String("key", e.Key.String()), zap.Error(err))
		}
		row := []string{e.Key.String(), "", "", "", ""}
		if meta != nil {
			row[1] = meta.Name
			row[2] = meta.Agent
			if !meta.CreatedAt.IsZero() {
				row[3] = meta.CreatedAt.Local().Format("2006-01-02 15:04")
			}
			row[4] = truncate(meta.Description, 48)
		}
		t.Row(row...)
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "%d cached function(s) in %s\n", len(entries), ws.Root())
	return nil
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	_, ws, err := openWorkspace()
	if err != nil {
		return err
	}
	key, err := resolveKey(ws, args[0])
	if err != nil {
		return err
	}
	entry, ok, err := ws.Lookup(key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not cached", key)
	}

	out := cmd.OutOrStdout()
	if cacheShowRaw {
		fmt.Fprint(out, entry.Source)
		return nil
	}

	md := fmt.Sprintf("# %s\n\n", key)
	if meta, err := ws.ReadMeta(key); err == nil && meta != nil {
		if meta.Description != "" {
			md += meta.Description + "\n\n"
		}
		if meta.Signature != "" {
			md += fmt.Sprintf("`%s`\n\n", meta.Signature)
		}
	}
	md += "```go\n" + entry.Source + "```\n"

	rendered, err := renderMarkdown(out, md)
	if err != nil {
		logger.Debug("Render failed, printing raw", zap.Error(err))
		fmt.Fprint(out, entry.Source)
		return nil
	}
	fmt.Fprint(out, rendered)
	return nil
}

// renderMarkdown uses the terminal's style when out is a terminal and the
// plain notty style otherwise.
func renderMarkdown(out io.Writer, md string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(100)}
	if f, ok := out.(*os.File); ok && term.IsTerminal(f.Fd()) {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle("notty"))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func runCacheRm(cmd *cobra.Command, args []string) error {
	_, ws, err := openWorkspace()
	if err != nil {
		return err
	}
	for _, arg := range args {
		key, err := resolveKey(ws, arg)
		if err != nil {
			return err
		}
		if err := ws.Remove(key); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", key)
	}
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	if !cacheClearOK {
		return fmt.Errorf("refusing to clear the cache without --yes")
	}
	_, ws, err := openWorkspace()
	if err != nil {
		return err
	}
	if err := ws.Clear(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cleared %s\n", ws.Root())
	return nil
}

type verifyResult struct {
	key string
	err error
}

func runCacheVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	_, ws, err := openWorkspace()
	if err != nil {
		return err
	}
	entries, err := ws.List()
	if err != nil {
		return err
	}
	results, err := verifyEntries(ctx, ws, entries, cacheJobs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s: %v\n", r.key, r.err)
			continue
		}
		fmt.Fprintf(out, "ok   %s\n", r.key)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d cached functions failed to compile", failed, len(results))
	}
	fmt.Fprintf(out, "%d cached function(s) compile\n", len(results))
	return nil
}

// verifyEntries recompiles entries with at most jobs compilations at a time.
// Results keep the order of entries.
func verifyEntries(ctx context.Context, ws *workspace.Workspace, entries []workspace.Entry, jobs int) ([]verifyResult, error) {
	results := make([]verifyResult, len(entries))
	c := compiler.New(compiler.Options{Stdout: io.Discard, Stderr: io.Discard})

	g, gctx := errgroup.WithContext(ctx)
	if jobs < 1 {
		jobs = 1
	}
	g.SetLimit(jobs)
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = verifyResult{key: e.Key.String(), err: verifyEntry(c, ws, e)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func verifyEntry(c *compiler.Compiler, ws *workspace.Workspace, e workspace.Entry) error {
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return err
	}
	name := ""
	if e.Key.Strategy == identity.StrategyStructure {
		name = e.Key.Value[strings.LastIndex(e.Key.Value, "/")+1:]
	} else if meta, err := ws.ReadMeta(e.Key); err == nil && meta != nil {
		name = meta.Name
	}
	_, err = c.Verify(string(data), name)
	return err
}

// resolveKey accepts a key string as shown by `cache list` or the path of a
// cached source file.
func resolveKey(ws *workspace.Workspace, arg string) (identity.Key, error) {
	if fi, err := os.Stat(arg); err == nil && fi.Mode().IsRegular() {
		return ws.KeyOf(arg)
	}
	return workspace.ParseKey(arg)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
