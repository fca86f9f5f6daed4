package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/hyphop/saugns/pkg/audio"
	"github.com/hyphop/saugns/pkg/program"
	"github.com/hyphop/saugns/pkg/script"
)

// watchScripts renders the already built programs once, then
// re-builds and re-renders a script whenever its file changes.
// Runs until interrupted.
func watchScripts(paths []string, prgs []*program.Program,
	o *options, params audio.Params) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("can't create watcher: %w", err)
	}
	defer watcher.Close()
	for _, path := range paths {
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("can't watch %s: %w", path, err)
		}
	}

	render := func(path string) {
		prg, err := script.Load(path, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return
		}
		if o.printInfo {
			prg.PrintInfo(os.Stdout)
		}
		if err := renderProgram(prg, params, o.interactive); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	for _, prg := range prgs {
		if err := renderProgram(prg, params, o.interactive); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	fmt.Fprintln(os.Stderr, "watching for changes... (interrupt to quit)")

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// editors tend to rename or replace on save
			if event.Op&(fsnotify.Write|fsnotify.Rename|fsnotify.Create) > 0 {
				render(event.Name)
				// re-add in case the file was replaced
				watcher.Add(event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "error: watcher: %v\n", err)
		case <-signals:
			return nil
		}
	}
}
