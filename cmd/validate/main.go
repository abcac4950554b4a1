// Command validate lints scenario files: JSON shape, internal
// consistency, and a dry run of the starting state through the same
// validated mutation path a live session uses.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tavernkeep/gamemaster/pkg/scenario"
	"github.com/tavernkeep/gamemaster/pkg/state"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <scenario.json | dir> [...]\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	var paths []string
	for _, arg := range os.Args[1:] {
		info, err := os.Stat(arg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot stat %s: %v\n", arg, err)
			os.Exit(2)
		}
		if info.IsDir() {
			entries, err := os.ReadDir(arg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "cannot read %s: %v\n", arg, err)
				os.Exit(2)
			}
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
					paths = append(paths, filepath.Join(arg, entry.Name()))
				}
			}
		} else {
			paths = append(paths, arg)
		}
	}

	failed := 0
	for _, path := range paths {
		if err := check(path, logger); err != nil {
			fmt.Printf("FAIL  %s: %v\n", path, err)
			failed++
		} else {
			fmt.Printf("ok    %s\n", path)
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d of %d scenario(s) failed validation\n", failed, len(paths))
		os.Exit(1)
	}
}

func check(path string, logger *slog.Logger) error {
	s, err := scenario.Load(path)
	if err != nil {
		return err
	}

	// Dry-run the starting state through a throwaway store so item
	// ownership and id uniqueness get the same scrutiny as live play.
	store := state.NewStore(nil, logger)
	if err := store.Apply(s.StartingOps()); err != nil {
		return fmt.Errorf("starting state rejected: %w", err)
	}
	return nil
}
