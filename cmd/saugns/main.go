package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/hyphop/saugns/pkg/audio"
	"github.com/hyphop/saugns/pkg/program"
	"github.com/hyphop/saugns/pkg/script"
	"github.com/hyphop/saugns/pkg/tui"
)

const defaultSRate = 44100

type options struct {
	audible     bool
	muted       bool
	srate       int
	wavPath     string
	evalString  bool
	printInfo   bool
	onlyCheck   bool
	watch       bool
	interactive bool
}

func (o *options) valid(args []string) bool {
	switch {
	case o.audible && o.muted:
		return false
	case o.onlyCheck && (o.audible || o.muted || o.wavPath != "" ||
		o.srate != defaultSRate || o.interactive):
		return false
	case o.watch && o.evalString:
		return false
	case o.srate <= 0:
		return false
	case len(args) == 0:
		return false
	}
	return true
}

func (o *options) useDevice() bool {
	if o.wavPath != "" {
		return o.audible
	}
	return !o.muted
}

func buildScripts(args []string, o *options) ([]*program.Program, bool) {
	var prgs []*program.Program
	ok := true
	for _, arg := range args {
		prg, err := script.Load(arg, !o.evalString)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			ok = false
			continue
		}
		if o.printInfo {
			prg.PrintInfo(os.Stdout)
		}
		prgs = append(prgs, prg)
	}
	return prgs, ok
}

// renderProgram runs one program into the configured sinks,
// optionally behind the live playback view.
func renderProgram(prg *program.Program, p audio.Params,
	interactive bool) error {
	if !interactive || !p.UseDevice {
		return audio.Render(prg, p)
	}
	progress := make(chan tui.Progress, 8)
	stop := make(chan struct{})
	p.Progress = func(done, total uint32) {
		select {
		case progress <- tui.Progress{Done: done, Total: total}:
		default:
		}
	}
	p.Stop = stop
	errc := make(chan error, 1)
	go func() {
		errc <- audio.Render(prg, p)
		close(progress)
	}()
	uiErr := tui.Run(tui.NewModel(prg.Name, p.SRate, progress, stop))
	err := <-errc
	if err == nil {
		err = uiErr
	}
	return err
}

func main() {
	var o options
	flag.BoolVar(&o.audible, "a", false,
		"audible; always enable audio device output")
	flag.BoolVar(&o.muted, "m", false,
		"muted; always disable audio device output")
	flag.IntVar(&o.srate, "r", defaultSRate,
		"sample rate in Hz")
	flag.StringVar(&o.wavPath, "o", "",
		"write a 16-bit PCM WAV file; disables audio device output by default")
	flag.BoolVar(&o.evalString, "e", false,
		"evaluate strings instead of files")
	flag.BoolVar(&o.printInfo, "p", false,
		"print info for scripts after loading")
	flag.BoolVar(&o.onlyCheck, "c", false,
		"check scripts only, reporting any errors or requested info")
	flag.BoolVar(&o.watch, "w", false,
		"watch script files, re-rendering on change")
	flag.BoolVar(&o.interactive, "i", false,
		"show a live playback view during audio device output")
	help := flag.Bool("h", false, "print this message, or topic help")
	version := flag.Bool("v", false, "print version")
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()
	args := flag.Args()

	if *version {
		printVersion()
		return
	}
	if *help {
		topic := ""
		if len(args) > 0 {
			topic = args[0]
		}
		printHelp(os.Stdout, topic)
		return
	}
	if !o.valid(args) {
		printUsage(os.Stderr)
		return
	}

	prgs, ok := buildScripts(args, &o)
	if len(prgs) == 0 {
		os.Exit(1)
	}
	exitCode := 0
	if !ok {
		exitCode = 1
	}
	if o.onlyCheck {
		os.Exit(exitCode)
	}
	params := audio.Params{
		SRate:     uint32(o.srate),
		UseDevice: o.useDevice(),
		WavPath:   o.wavPath,
	}
	if o.watch {
		if err := watchScripts(args, prgs, &o, params); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}
	for _, prg := range prgs {
		if err := renderProgram(prg, params, o.interactive); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			exitCode = 1
		}
	}
	os.Exit(exitCode)
}
