// Copyright (C) 2025 Toitware ApS. All rights reserved.
// Use of this source code is governed by an MIT-style license that can be
// found in the LICENSE file.

package commands

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toitlang/ardep-tools/cmd/ardep/copyright"
	"github.com/toitlang/ardep-tools/cmd/ardep/directory"
	"go.uber.org/zap"
)

func CopyrightCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copyright [path]",
		Short: "Normalize the copyright and license headers of a repository",
		Long: "Rewrite the license headers of all files git tracks (or would track) below\n" +
			"the given path, so every file names the company and carries an SPDX\n" +
			"license identifier. Running it again changes nothing.\n\n" +
			"Supported files: C/C++ sources and headers, devicetree sources and overlays,\n" +
			"CMakeLists.txt, Kconfig files, YAML files and Python scripts.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			cfg, err := directory.GetUserConfig()
			if err != nil {
				return err
			}
			opts, err := copyrightOptions(cmd, cfg)
			if err != nil {
				return err
			}

			dryRun, err := cmd.Flags().GetBool("dry-run")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			check, err := cmd.Flags().GetBool("check")
			if err != nil {
				return err
			}
			watch, err := cmd.Flags().GetBool("watch")
			if err != nil {
				return err
			}
			preset, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			if check && watch {
				return fmt.Errorf("--check and --watch cannot be combined")
			}

			buckets, err := copyright.ListFiles(root)
			if err != nil {
				return err
			}
			buckets, err = copyright.FilterPreset(buckets, preset)
			if err != nil {
				return err
			}
			files := copyright.Flatten(buckets)

			logger := GetLogger(cmd.Context())
			runner := &copyright.Runner{
				Options: opts,
				DryRun:  dryRun || check,
				Verbose: verbose,
				Logger:  logger,
			}

			ctx, cancel := interruptContext(cmd.Context())
			defer cancel()

			summary, err := runner.Run(ctx, files)
			if err != nil {
				return err
			}
			logger.Debug("processed files",
				zap.Int("checked", summary.Checked),
				zap.Int("changed", summary.Changed),
				zap.Int("skipped", summary.Skipped))

			if check && summary.Changed > 0 {
				return &ExitError{
					Code: 1,
					Err:  fmt.Errorf("%d of %d files need a header update", summary.Changed, summary.Checked),
				}
			}
			if verbose || dryRun {
				fmt.Printf("Checked %d files, %d %s\n", summary.Checked, summary.Changed, changedWord(dryRun))
			}

			if !watch {
				return nil
			}
			return watchFiles(ctx, runner, files)
		},
	}

	cmd.Flags().Bool("dry-run", false, "only report the files that would change")
	cmd.Flags().BoolP("verbose", "v", false, "report every processed file")
	cmd.Flags().Bool("check", false, "fail if any file needs a header update")
	cmd.Flags().Bool("watch", false, "keep running and fix files whenever they are written")
	cmd.Flags().StringP("config", "c", "", "restrict to a set of files: "+strings.Join(copyright.Presets(), " or "))
	cmd.Flags().String("style", "", "copyright notice style: "+strings.Join(copyright.Styles(), ", "))
	cmd.Flags().StringArray("company", nil, "copyright holder every file must name; repeat to accept several, the first is added when none is named")
	cmd.Flags().String("license", "", "SPDX license identifier every file carries")
	cmd.Flags().Bool("update-copyrights", false, "re-render the company's notices in the configured style and current year")
	return cmd
}

func changedWord(dryRun bool) string {
	if dryRun {
		return "would change"
	}
	return "changed"
}

// copyrightOptions combines the flags with the user config. Flags win.
func copyrightOptions(cmd *cobra.Command, cfg *viper.Viper) (copyright.Options, error) {
	stringFlag := func(name string, key string) (string, error) {
		v, err := cmd.Flags().GetString(name)
		if err != nil {
			return "", err
		}
		if v == "" {
			v = cfg.GetString(key)
		}
		return v, nil
	}

	companies, err := cmd.Flags().GetStringArray("company")
	if err != nil {
		return copyright.Options{}, err
	}
	if len(companies) == 0 {
		companies = splitCompanies(cfg.GetString(directory.CopyrightCompanyKey))
	}
	license, err := stringFlag("license", directory.CopyrightLicenseKey)
	if err != nil {
		return copyright.Options{}, err
	}
	styleName, err := stringFlag("style", directory.CopyrightStyleKey)
	if err != nil {
		return copyright.Options{}, err
	}
	style, err := copyright.ParseStyle(styleName)
	if err != nil {
		return copyright.Options{}, err
	}
	update, err := cmd.Flags().GetBool("update-copyrights")
	if err != nil {
		return copyright.Options{}, err
	}

	return copyright.Options{
		Companies:        companies,
		License:          license,
		Style:            style,
		UpdateCopyrights: update,
	}, nil
}

// splitCompanies splits the configured company list. Holders are
// separated by ';' since names may contain commas.
func splitCompanies(value string) []string {
	var companies []string
	for _, c := range strings.Split(value, ";") {
		if c = strings.TrimSpace(c); c != "" {
			companies = append(companies, c)
		}
	}
	return companies
}

type watcher struct {
	sync.Mutex
	watcher *fsnotify.Watcher

	paths map[string]struct{}
}

func newWatcher() (*watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &watcher{
		watcher: w,
		paths:   map[string]struct{}{},
	}, nil
}

func (w *watcher) Close() error {
	return w.watcher.Close()
}

func (w *watcher) Events() chan fsnotify.Event {
	return w.watcher.Events
}

func (w *watcher) Errors() chan error {
	return w.watcher.Errors
}

func (w *watcher) Watch(paths ...string) error {
	w.Lock()
	defer w.Unlock()
	for _, p := range paths {
		if _, ok := w.paths[p]; ok {
			continue
		}
		if err := w.watcher.Add(p); err != nil {
			return err
		}
		w.paths[p] = struct{}{}
	}
	return nil
}

// resolveWatched maps the files to their symlink-free paths and returns the
// directories holding them.
func resolveWatched(files []string) (map[string]struct{}, []string) {
	tracked := map[string]struct{}{}
	dirSet := map[string]struct{}{}
	for _, f := range files {
		if resolved, err := filepath.EvalSymlinks(f); err == nil {
			f = resolved
		}
		tracked[f] = struct{}{}
		dirSet[filepath.Dir(f)] = struct{}{}
	}
	var dirs []string
	for d := range dirSet {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	return tracked, dirs
}

const watchSettleTime = 200 * time.Millisecond

// watchFiles re-processes files when they are written, until ctx is done.
// Our own rewrites trigger one more pass that finds nothing to change.
func watchFiles(ctx context.Context, runner *copyright.Runner, files []string) error {
	w, err := newWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	tracked, dirs := resolveWatched(files)
	if err := w.Watch(dirs...); err != nil {
		return fmt.Errorf("failed to watch: %w", err)
	}
	fmt.Printf("Watching %d files for changes. Press Ctrl-C to stop.\n", len(tracked))

	pending := map[string]struct{}{}
	ticker := time.NewTicker(watchSettleTime)
	defer ticker.Stop()
	for {
		select {
		case event, ok := <-w.Events():
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if _, ok := tracked[event.Name]; ok {
				pending[event.Name] = struct{}{}
			}
		case <-ticker.C:
			for path := range pending {
				changed, _, err := runner.ProcessFile(path)
				if err != nil {
					fmt.Println("Error:", err)
				} else if changed && !runner.Verbose && !runner.DryRun {
					fmt.Printf("Updated '%s'\n", path)
				}
				delete(pending, path)
			}
		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			fmt.Println("Watch error:", err)
		case <-ctx.Done():
			return nil
		}
	}
}
