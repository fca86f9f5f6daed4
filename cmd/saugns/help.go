package main

import (
	"fmt"
	"io"

	"github.com/hyphop/saugns/pkg/ramp"
	"github.com/hyphop/saugns/pkg/wave"
)

const versionStr = "saugns v0.1.0"

func printVersion() {
	fmt.Println(versionStr)
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage: saugns [-a|-m] [-r <srate>] [-p] [-i] [-o <wavfile>] <script>...
       saugns [-a|-m] [-r <srate>] [-p] [-i] [-o <wavfile>] -e <string>...
       saugns [-c] [-p] <script>...
       saugns [-c] [-p] -e <string>...

By default, audio device output is enabled.

  -a 	Audible; always enable audio device output.
  -m 	Muted; always disable audio device output.
  -r 	Sample rate in Hz (default 44100);
     	the audio device is opened at this rate, or fails with an error.
  -o 	Write a 16-bit PCM WAV file, always using the sample rate requested;
     	disables audio device output by default.
  -e 	Evaluate strings instead of files.
  -c 	Check scripts only, reporting any errors or requested info.
  -p 	Print info for scripts after loading.
  -w 	Watch script files, re-rendering on change.
  -i 	Show a live playback view during audio device output.
  -h 	Print this message, or topic help ("-h <topic>").
  -v 	Print version.
`)
}

var helpTopics = []string{"wave", "ramp"}

func printNameList(w io.Writer, names []string) {
	for _, n := range names {
		fmt.Fprintf(w, "\t%s\n", n)
	}
}

func printHelp(w io.Writer, topic string) {
	switch topic {
	case "":
		printUsage(w)
	case "wave":
		fmt.Fprintln(w, "Wave types:")
		printNameList(w, wave.Names[:])
	case "ramp":
		fmt.Fprintln(w, "Ramp shapes:")
		printNameList(w, ramp.Names[:])
	default:
		fmt.Fprintf(w, "Unknown help topic %q. Available topics:\n", topic)
		printNameList(w, helpTopics)
	}
}
