package main

import (
	"fmt"
	"io"
)

// terminalDialog renders dialog updates as lines. Its methods run on the
// affinity goroutine only.
type terminalDialog struct {
	out   io.Writer
	title string
	max   int
}

func newTerminalDialog(out io.Writer, title string) *terminalDialog {
	return &terminalDialog{out: out, title: title}
}

func (d *terminalDialog) SetTitle(title string) { d.title = title }

func (d *terminalDialog) SetMessage(message string) {
	fmt.Fprintf(d.out, "[%s] %s\n", d.title, message)
}

func (d *terminalDialog) SetProgress(progress int) {
	if d.max > 0 {
		fmt.Fprintf(d.out, "[%s] %d/%d\n", d.title, progress, d.max)
		return
	}
	fmt.Fprintf(d.out, "[%s] %d\n", d.title, progress)
}

func (d *terminalDialog) SetMax(max int) { d.max = max }

func (d *terminalDialog) SetIndeterminate(indeterminate bool) {
	if indeterminate {
		d.max = 0
	}
}

func (d *terminalDialog) Show() {
	fmt.Fprintf(d.out, "[%s] started\n", d.title)
}

func (d *terminalDialog) Dismiss() {}
