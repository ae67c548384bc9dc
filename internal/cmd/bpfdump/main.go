// bpfdump: a tool for displaying the block graph, dominance
// information and symbolic execution results of programs.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"runtime/pprof"

	"honnef.co/go/bpfcheck/config"
	"honnef.co/go/bpfcheck/debug"
	"honnef.co/go/bpfcheck/verifier"
	"honnef.co/go/bpfcheck/version"

	"golang.org/x/sync/errgroup"
)

// flags
var (
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
	confFile    = flag.String("config", "", "read the configuration from `file` instead of bpfcheck.conf")
	strategy    = flag.String("strategy", "", "override the branch resolution strategy (fork or inline)")
	backend     = flag.String("solver", "", "override the solver backend (sat or z3)")
	jobs        = flag.Int("j", runtime.GOMAXPROCS(0), "number of files to check concurrently")
	printBlocks bool
	dot         bool
	domtree     bool
	showVersion bool
)

func init() {
	flag.BoolVar(&printBlocks, "blocks", false, "Print basic blocks, dominators and merge points")
	flag.BoolVar(&dot, "dot", false, "Print Graphviz dot of the block graph")
	flag.BoolVar(&domtree, "domtree", false, "Print Graphviz dot of the dominator tree")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
}

const usage = `Block graph and symbolic execution dump.
Usage: bpfdump [-blocks] [-dot] [-domtree] [-strategy=fork|inline] file...
Use -help flag to display options.

Examples:
% bpfdump prog.txt                  # check a program, print per-context results
% bpfdump -dot prog.txt | dot -Tsvg # render its block graph
`

func main() {
	log.SetFlags(0)
	log.SetPrefix("bpfdump: ")
	err := doMain()
	var failed errFailed
	switch {
	case err == nil:
	case errors.As(err, &failed):
		os.Exit(1)
	default:
		log.Fatal(err)
	}
}

// errFailed reports that some program was rejected. The reports
// themselves have already been printed.
type errFailed int

func (e errFailed) Error() string { return fmt.Sprintf("%d programs failed", int(e)) }

func doMain() error {
	flag.Parse()
	if showVersion {
		version.Verbose(os.Stdout)
		return nil
	}
	if len(flag.Args()) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			return err
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	files := flag.Args()
	out := make([]bytes.Buffer, len(files))
	fails := make([]bool, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(*jobs, 1))
	for i, path := range files {
		g.Go(func() error {
			failed, err := dump(ctx, &out[i], path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fails[i] = failed
			return nil
		})
	}
	err := g.Wait()

	n := 0
	for i := range files {
		if len(files) > 1 && out[i].Len() > 0 {
			fmt.Printf("== %s\n", files[i])
		}
		out[i].WriteTo(os.Stdout)
		if fails[i] {
			n++
		}
	}
	if err != nil {
		return err
	}
	if n > 0 {
		return errFailed(n)
	}
	return nil
}

func loadConfig(path string) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if *confFile != "" {
		data, rerr := os.ReadFile(*confFile)
		if rerr != nil {
			return config.Config{}, rerr
		}
		cfg, err = config.Parse(string(data))
	} else {
		abs, aerr := filepath.Abs(path)
		if aerr != nil {
			return config.Config{}, aerr
		}
		cfg, err = config.Load(filepath.Dir(abs))
	}
	if err != nil {
		return config.Config{}, err
	}
	if *strategy != "" {
		cfg.Analysis.Strategy = *strategy
	}
	if *backend != "" {
		cfg.Solver.Backend = *backend
	}
	return cfg, cfg.Validate()
}

// dump checks the program in path and writes everything requested by
// the flags to buf. It reports whether the program was rejected.
func dump(ctx context.Context, buf *bytes.Buffer, path string) (bool, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return false, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	rep, err := verifier.Check(ctx, string(src), cfg)
	if err != nil {
		return false, err
	}

	if perr := rep.Program.Err(); perr != nil {
		fmt.Fprintf(buf, "decode errors:\n%s\n", perr)
	}
	if printBlocks {
		rep.Func.WriteTo(buf)
	}
	if dot {
		if err := debug.CFGDot(buf, rep.Func); err != nil {
			return false, err
		}
	}
	if domtree {
		if err := debug.DomTreeDot(buf, rep.Func); err != nil {
			return false, err
		}
	}
	if _, err := rep.WriteTo(buf); err != nil {
		return false, err
	}
	return rep.Failed(), nil
}
