package main

import (
	"fmt"
	"os"

	"github.com/inconshreveable/log15"
	"github.com/mattn/go-isatty"
)

// newLogger writes records at or above level to w, colored when w is a
// terminal and logfmt otherwise.
func newLogger(level string, w *os.File) (log15.Logger, error) {
	lvl, err := log15.LvlFromString(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	format := log15.LogfmtFormat()
	if isatty.IsTerminal(w.Fd()) || isatty.IsCygwinTerminal(w.Fd()) {
		format = log15.TerminalFormat()
	}
	logger := log15.New("cmd", "signalnetctl")
	logger.SetHandler(log15.LvlFilterHandler(lvl, log15.StreamHandler(w, format)))
	return logger, nil
}
