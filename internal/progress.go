package internal

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// UIManager is the user-facing output of the CLI: progress, status lines and
// verbose detail. Server and MCP paths use a quiet manager and log to file.
type UIManager interface {
	NewProgressBar(total int, description string) ProgressBar
	NewBytesBar(total int64, description string) ProgressBar

	Verbose(format string, args ...any)
	Printf(format string, args ...any)
	Println(args ...any)
	Warnf(format string, args ...any)
}

// ProgressBar counts steps via Set or bytes via Write
type ProgressBar interface {
	io.Writer
	Set(current int)
	Finish()
}

type StandardUIManager struct {
	verbose     bool
	quiet       bool
	interactive bool
}

func NewUIManager(verbose, quiet bool) UIManager {
	fd := os.Stdout.Fd()
	return &StandardUIManager{
		verbose:     verbose,
		quiet:       quiet,
		interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

func (ui *StandardUIManager) silent() bool {
	return ui.quiet || !ui.interactive
}

// NewProgressBar returns a percentage-style bar; silent when quiet or piped
func (ui *StandardUIManager) NewProgressBar(total int, description string) ProgressBar {
	if ui.silent() {
		return &progressBar{bar: progressbar.DefaultSilent(int64(total))}
	}
	return &progressBar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))}
}

// NewBytesBar tracks a transfer of total bytes. An unknown size (-1) shows a
// spinner instead.
func (ui *StandardUIManager) NewBytesBar(total int64, description string) ProgressBar {
	if ui.silent() {
		return &progressBar{bar: progressbar.DefaultBytesSilent(total, description)}
	}
	return &progressBar{bar: progressbar.DefaultBytes(total, description)}
}

func (ui *StandardUIManager) Verbose(format string, args ...any) {
	if ui.verbose {
		fmt.Printf(format, args...)
	}
}

func (ui *StandardUIManager) Printf(format string, args ...any) {
	if !ui.quiet {
		fmt.Printf(format, args...)
	}
}

func (ui *StandardUIManager) Println(args ...any) {
	if !ui.quiet {
		fmt.Println(args...)
	}
}

// Warnf writes to stderr even in quiet mode
func (ui *StandardUIManager) Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Warning: "+format, args...)
}

type progressBar struct {
	bar *progressbar.ProgressBar
}

func (p *progressBar) Write(b []byte) (int, error) {
	return p.bar.Write(b)
}

func (p *progressBar) Set(current int) {
	_ = p.bar.Set(current)
}

func (p *progressBar) Finish() {
	_ = p.bar.Finish()
}
