package program

import (
	"fmt"
	"io"

	"github.com/hyphop/saugns/pkg/ramp"
)

func printLinked(w io.Writer, header, footer string, ids []uint32) {
	if len(ids) == 0 {
		return
	}
	fmt.Fprintf(w, "%s%d", header, ids[0])
	for _, id := range ids[1:] {
		fmt.Fprintf(w, ", %d", id)
	}
	fmt.Fprint(w, footer)
}

func printOpList(w io.Writer, list []OpRef) {
	maxIndent := 0
	fmt.Fprint(w, "\n\t    [")
	for i := range list {
		indent := int(list[i].Level) * 2
		if indent > maxIndent {
			maxIndent = indent
		}
		fmt.Fprintf(w, "%6d:  ", list[i].ID)
		for j := indent; j > 0; j-- {
			fmt.Fprint(w, " ")
		}
		fmt.Fprint(w, UseNames[list[i].Use])
		if i+1 < len(list) {
			fmt.Fprint(w, "\n\t     ")
		}
	}
	for j := maxIndent; j > 0; j-- {
		fmt.Fprint(w, " ")
	}
	fmt.Fprint(w, "]")
}

func printOpLine(w io.Writer, od *OpData) {
	if od.Time.VMs == TimeInf {
		fmt.Fprintf(w, "\n\top %d \tt=INF   \t", od.ID)
	} else {
		fmt.Fprintf(w, "\n\top %d \tt=%-6d\t", od.ID, od.Time.VMs)
	}
	if od.Params&OpFreq != 0 && od.Freq.Flags&ramp.FlagState != 0 {
		if od.Freq.Flags&ramp.FlagGoal != 0 {
			fmt.Fprintf(w, "f=%-6.1f->%-6.1f", od.Freq.V0, od.Freq.Vt)
		} else {
			fmt.Fprintf(w, "f=%-6.1f\t", od.Freq.V0)
		}
	} else {
		fmt.Fprint(w, "\t\t")
	}
	if od.Params&OpAmp != 0 && od.Amp.Flags&ramp.FlagState != 0 {
		if od.Amp.Flags&ramp.FlagGoal != 0 {
			fmt.Fprintf(w, "\ta=%-6.1f->%-6.1f", od.Amp.V0, od.Amp.Vt)
		} else {
			fmt.Fprintf(w, "\ta=%-6.1f", od.Amp.V0)
		}
	}
}

// PrintInfo writes a human-readable dump of the program contents.
// Useful for checking what a script compiled into.
func (o *Program) PrintInfo(w io.Writer) {
	fmt.Fprintf(w, "Program: %q\n", o.Name)
	fmt.Fprintf(w, "\tDuration: \t%d ms\n"+
		"\tEvents:   \t%d\n"+
		"\tVoices:   \t%d\n"+
		"\tOperators:\t%d\n",
		o.DurationMS, len(o.Events), o.VoCount, o.OpCount)
	for evID := range o.Events {
		ev := &o.Events[evID]
		fmt.Fprintf(w, "\\%d \tEV %d \t(VO %d)", ev.WaitMS, evID, ev.VoID)
		if vd := ev.VoData; vd != nil {
			fmt.Fprintf(w, "\n\tvo %d", ev.VoID)
			if len(vd.OpList) > 0 {
				printOpList(w, vd.OpList)
			}
		}
		for i := range ev.OpData {
			od := &ev.OpData[i]
			printOpLine(w, od)
			if od.FMods != nil {
				printLinked(w, "\n\t    f~[", "]", od.FMods)
			}
			if od.PMods != nil {
				printLinked(w, "\n\t    p+[", "]", od.PMods)
			}
			if od.AMods != nil {
				printLinked(w, "\n\t    a~[", "]", od.AMods)
			}
		}
		fmt.Fprintln(w)
	}
}
