// babygc CLI - runs an allocation script against a mark-and-sweep VM
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/tliron/commonlog"

	"github.com/chazu/babygc/journal"
	"github.com/chazu/babygc/manifest"
	"github.com/chazu/babygc/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (log every collection)")
	configDir := flag.String("config", ".", "Directory to search upward for babygc.toml")
	scriptPath := flag.String("script", "", "Read ops from a script file instead of arguments")
	journalPath := flag.String("journal", "", "Record collections in a SQLite journal")
	imageOut := flag.String("image", "", "Write a heap image here when done")
	imageIn := flag.String("load", "", "Start from a heap image instead of an empty heap")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: babygc [options] [ops...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs ops against a fresh VM and reports what the collector does.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nOps:\n")
		fmt.Fprintf(os.Stderr, "  int:N  pair  pop  head:I:J  tail:I:J  gc  dump  stats\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  babygc int:1 int:2 pair int:3 int:4 pair pair gc stats\n")
		fmt.Fprintf(os.Stderr, "  babygc int:1 int:2 pair int:3 int:4 pair tail:0:1 tail:1:0 pop pop gc stats\n")
		fmt.Fprintf(os.Stderr, "  babygc -script churn.gc -journal gc.db\n")
	}
	flag.Parse()

	cfg := options{
		verbose:     *verbose,
		configDir:   *configDir,
		scriptPath:  *scriptPath,
		journalPath: *journalPath,
		imageOut:    *imageOut,
		imageIn:     *imageIn,
		args:        flag.Args(),
	}
	if err := run(cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	verbose     bool
	configDir   string
	scriptPath  string
	journalPath string
	imageOut    string
	imageIn     string
	args        []string
}

// run executes one babygc invocation. Resources it opens are closed
// before it returns, on error paths too.
func run(cfg options, stdout io.Writer) error {
	m, err := manifest.FindAndLoad(cfg.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if m == nil {
		m = &manifest.Manifest{}
	}

	verbosity := m.Log.Verbosity
	if cfg.verbose {
		verbosity = 2
	}
	var logPath *string
	if p := m.LogFilePath(); p != "" {
		logPath = &p
	}
	commonlog.Configure(verbosity, logPath)

	ops, err := loadOps(cfg.scriptPath, cfg.args)
	if err != nil {
		return err
	}

	v, err := newVM(cfg.imageIn, m.VMOptions())
	if err != nil {
		return err
	}

	jpath := cfg.journalPath
	if jpath == "" {
		jpath = m.JournalPath()
	}
	if jpath != "" {
		j, err := journal.Open(jpath)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer j.Close()
		j.Attach(v)
	}

	if err := Run(v, ops, stdout); err != nil {
		return err
	}

	out := cfg.imageOut
	if out == "" {
		out = m.ImageOutputPath()
	}
	if out != "" {
		if err := writeImage(v, out); err != nil {
			return fmt.Errorf("writing image: %w", err)
		}
		if cfg.verbose {
			fmt.Fprintf(stdout, "Wrote heap image (%d objects) to %s\n", v.HeapSize(), out)
		}
	}
	return nil
}

func loadOps(scriptPath string, args []string) ([]Op, error) {
	if scriptPath == "" {
		return ParseOps(args)
	}
	f, err := os.Open(scriptPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseScript(f)
}

func newVM(imagePath string, opts []vm.Option) (*vm.VM, error) {
	if imagePath == "" {
		return vm.New(opts...), nil
	}
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return vm.LoadImage(f, opts...)
}

func writeImage(v *vm.VM, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := v.SaveImage(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
