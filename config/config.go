package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"honnef.co/go/bpfcheck/insn"

	"github.com/BurntSushi/toml"
)

type config struct {
	cfg  Config
	meta toml.MetaData
}

func mergeLists(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	for _, el := range b {
		if el == "inherit" {
			out = append(out, a...)
		} else {
			out = append(out, el)
		}
	}
	return out
}

func normalizeList(list []string) []string {
	if len(list) > 1 {
		sort.Strings(list)
		nlist := make([]string, 0, len(list))
		nlist = append(nlist, list[0])
		for i, el := range list[1:] {
			if el != list[i] {
				nlist = append(nlist, el)
			}
		}
		list = nlist
	}

	for _, el := range list {
		if el == "inherit" {
			// This should never happen, because the default config
			// should not use "inherit"
			panic(`unresolved "inherit"`)
		}
		if el == "all" {
			return []string{"all"}
		}
	}

	return list
}

func (cfg config) Merge(ocfg config) config {
	if ocfg.meta.IsDefined("machine", "width") {
		cfg.cfg.Machine.Width = ocfg.cfg.Machine.Width
	}
	if ocfg.meta.IsDefined("machine", "registers") {
		cfg.cfg.Machine.Registers = ocfg.cfg.Machine.Registers
	}
	if ocfg.meta.IsDefined("machine", "operand_order") {
		cfg.cfg.Machine.OperandOrder = ocfg.cfg.Machine.OperandOrder
	}
	if ocfg.meta.IsDefined("machine", "inputs") {
		cfg.cfg.Machine.Inputs = mergeLists(cfg.cfg.Machine.Inputs, ocfg.cfg.Machine.Inputs)
	}

	if ocfg.meta.IsDefined("analysis", "strategy") {
		cfg.cfg.Analysis.Strategy = ocfg.cfg.Analysis.Strategy
	}
	if ocfg.meta.IsDefined("analysis", "signed_overflow") {
		cfg.cfg.Analysis.SignedOverflow = ocfg.cfg.Analysis.SignedOverflow
	}
	if ocfg.meta.IsDefined("analysis", "max_contexts") {
		cfg.cfg.Analysis.MaxContexts = ocfg.cfg.Analysis.MaxContexts
	}

	if ocfg.meta.IsDefined("solver", "backend") {
		cfg.cfg.Solver.Backend = ocfg.cfg.Solver.Backend
	}
	if ocfg.meta.IsDefined("solver", "z3_path") {
		cfg.cfg.Solver.Z3Path = ocfg.cfg.Solver.Z3Path
	}
	if ocfg.meta.IsDefined("solver", "timeout") {
		cfg.cfg.Solver.Timeout = ocfg.cfg.Solver.Timeout
	}
	return cfg
}

type Config struct {
	Machine  MachineConfig  `toml:"machine"`
	Analysis AnalysisConfig `toml:"analysis"`
	Solver   SolverConfig   `toml:"solver"`
}

type MachineConfig struct {
	// Width is the register width in bits.
	Width     int `toml:"width"`
	Registers int `toml:"registers"`
	// OperandOrder is "dst-src" (mov r1 4) or "src-dst" (mov 4 r1).
	OperandOrder string `toml:"operand_order"`
	// Inputs names the registers that hold arbitrary values when the
	// program starts, as "r1", "r2", ... or "all".
	Inputs []string `toml:"inputs"`
}

type AnalysisConfig struct {
	// Strategy is "fork" or "inline".
	Strategy       string `toml:"strategy"`
	SignedOverflow bool   `toml:"signed_overflow"`
	MaxContexts    int    `toml:"max_contexts"`
}

type SolverConfig struct {
	// Backend is "sat" for the built-in solver or "z3".
	Backend string   `toml:"backend"`
	Z3Path  string   `toml:"z3_path"`
	Timeout Duration `toml:"timeout"`
}

// Duration is a time.Duration written as a string such as "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

var defaultConfig = Config{
	Machine: MachineConfig{
		Width:        64,
		Registers:    10,
		OperandOrder: "dst-src",
		Inputs:       []string{},
	},
	Analysis: AnalysisConfig{
		Strategy:    "fork",
		MaxContexts: 1024,
	},
	Solver: SolverConfig{
		Backend: "sat",
		Z3Path:  "z3",
		Timeout: Duration{10 * time.Second},
	},
}

// Default returns the configuration used when no configuration file
// is found.
func Default() Config {
	cfg := defaultConfig
	cfg.Machine.Inputs = []string{}
	return cfg
}

const configName = "bpfcheck.conf"

func decode(r io.Reader, name string) (config, error) {
	var cfg Config
	meta, err := toml.NewDecoder(r).Decode(&cfg)
	if err != nil {
		return config{}, fmt.Errorf("%s: %w", name, err)
	}
	if keys := meta.Undecoded(); len(keys) > 0 {
		return config{}, fmt.Errorf("%s: unknown key %s", name, keys[0])
	}
	return config{cfg, meta}, nil
}

func parseConfigs(dir string) ([]config, error) {
	var out []config

	for dir != "" {
		path := filepath.Join(dir, configName)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			ndir := filepath.Dir(dir)
			if ndir == dir {
				break
			}
			dir = ndir
			continue
		}
		if err != nil {
			return nil, err
		}
		cfg, err := decode(f, path)
		f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, cfg)
		ndir := filepath.Dir(dir)
		if ndir == dir {
			break
		}
		dir = ndir
	}
	out = append(out, config{
		cfg:  Default(),
		meta: toml.MetaData{}, // meta of the base config should never be accessed
	})
	if len(out) < 2 {
		return out, nil
	}
	for i := 0; i < len(out)/2; i++ {
		out[i], out[len(out)-1-i] = out[len(out)-1-i], out[i]
	}
	return out, nil
}

func mergeConfigs(confs []config) Config {
	if len(confs) == 0 {
		// This shouldn't happen because we always have at least a
		// default config.
		panic("trying to merge zero configs")
	}
	if len(confs) == 1 {
		return confs[0].cfg
	}
	conf := confs[0]
	for _, oconf := range confs[1:] {
		conf = conf.Merge(oconf)
	}
	return conf.cfg
}

func finish(conf Config) (Config, error) {
	conf.Machine.Inputs = normalizeList(conf.Machine.Inputs)
	if err := conf.Validate(); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// Load reads bpfcheck.conf from dir and all of its parents. Files
// closer to dir take precedence; settings no file defines keep their
// defaults. The inputs list of a file replaces that of its parents,
// except where it contains the entry "inherit".
func Load(dir string) (Config, error) {
	confs, err := parseConfigs(dir)
	if err != nil {
		return Config{}, err
	}
	return finish(mergeConfigs(confs))
}

// Parse parses a configuration from text and merges it over the
// defaults.
func Parse(text string) (Config, error) {
	cfg, err := decode(strings.NewReader(text), "config")
	if err != nil {
		return Config{}, err
	}
	return finish(mergeConfigs([]config{{cfg: Default()}, cfg}))
}

// Validate reports the first setting that is out of range.
func (cfg Config) Validate() error {
	if err := insn.CheckMachine(cfg.Machine.Width, cfg.Machine.Registers); err != nil {
		return err
	}
	if _, err := insn.ParseOperandOrder(cfg.Machine.OperandOrder); err != nil {
		return err
	}
	if _, err := cfg.InputRegisters(); err != nil {
		return err
	}
	switch cfg.Analysis.Strategy {
	case "fork", "inline":
	default:
		return fmt.Errorf("unknown strategy %q", cfg.Analysis.Strategy)
	}
	if cfg.Analysis.MaxContexts < 0 {
		return fmt.Errorf("max_contexts must not be negative, got %d", cfg.Analysis.MaxContexts)
	}
	switch cfg.Solver.Backend {
	case "sat", "z3":
	default:
		return fmt.Errorf("unknown solver backend %q", cfg.Solver.Backend)
	}
	if cfg.Solver.Timeout.Duration < 0 {
		return fmt.Errorf("negative solver timeout %s", cfg.Solver.Timeout)
	}
	return nil
}

// Decoder returns the instruction decoder for the configured machine.
func (cfg Config) Decoder() (insn.Decoder, error) {
	order, err := insn.ParseOperandOrder(cfg.Machine.OperandOrder)
	if err != nil {
		return insn.Decoder{}, err
	}
	return insn.Decoder{
		Width:     cfg.Machine.Width,
		Registers: cfg.Machine.Registers,
		Order:     order,
	}, nil
}

// InputRegisters returns the register numbers named by
// Machine.Inputs, in increasing order.
func (cfg Config) InputRegisters() ([]int, error) {
	var out []int
	for _, name := range cfg.Machine.Inputs {
		if name == "all" {
			out = out[:0]
			for r := 1; r <= cfg.Machine.Registers; r++ {
				out = append(out, r)
			}
			return out, nil
		}
		t := strings.TrimPrefix(strings.ToLower(name), "r")
		r, err := strconv.Atoi(t)
		if err != nil || r < 1 || r > cfg.Machine.Registers {
			return nil, fmt.Errorf("input %q: %w", name, insn.ErrRegister)
		}
		out = append(out, r)
	}
	sort.Ints(out)
	return out, nil
}
