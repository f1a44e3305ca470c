package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/kf7aae/burstprobe/config"
	"github.com/kf7aae/burstprobe/rfio"
	"github.com/kf7aae/burstprobe/rx"
	"github.com/kf7aae/burstprobe/sim"
	"github.com/kf7aae/burstprobe/store"
	"github.com/kf7aae/burstprobe/tui"
	"github.com/kf7aae/burstprobe/waveform"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var cli struct {
	Verbose bool `help:"Prints debug output by default"`
	Profile bool `help:"Output a pprof profile"`

	Generate struct {
		Out string `help:"Output waveform path (metadata written next to it)" default:""`
	} `cmd:"" help:"Write the reference QPSK burst as interleaved int8 IQ for transmission"`

	Analyze struct {
		Iq          string  `arg:"" help:"Raw IQ capture file"`
		Format      string  `help:"Capture format: u8iq (rtl_sdr) or i8iq (hackrf)" default:"u8iq"`
		Meta        string  `help:"Waveform metadata file written by generate"`
		Fc          float64 `help:"RF center frequency in Hz, only used for the CFO ppm figure" default:"915e6"`
		Average     int     `help:"Average metrics over up to this many bursts" default:"1"`
		Out         string  `help:"Write the JSON report to this path"`
		Save        bool    `help:"Persist results to the configured SQLite store"`
		NoReference bool    `help:"Treat the payload as unknown: blind ambiguity resolution, no BER"`
	} `cmd:"" help:"Run the burst receiver chain on a capture and report EVM/BER/CFO"`

	Scan struct {
		Iq          string `arg:"" help:"Raw IQ capture file"`
		Format      string `help:"Capture format: u8iq or i8iq" default:"u8iq"`
		Meta        string `help:"Waveform metadata file written by generate"`
		Save        bool   `help:"Persist results to the configured SQLite store"`
		NoReference bool   `help:"Treat the payload as unknown"`
	} `cmd:"" help:"Find every burst in a capture and report per-burst and stability metrics"`

	Simulate struct {
		Snrs string `help:"Comma-separated Es/N0 points in dB" default:"0,1,2,3,4,5,6,7,8,9,10,11,12"`
		Bits int    `help:"Bits per SNR point" default:"400000"`
		Out  string `help:"Write the sweep as CSV to this path"`
		Seed int64  `help:"Noise generator seed" default:"0"`
	} `cmd:"" help:"AWGN BER-vs-SNR sweep of the demapper against the closed-form QPSK curve"`

	Monitor struct {
		Iq          string `arg:"" help:"Raw IQ capture file, re-scanned on every refresh"`
		Format      string `help:"Capture format: u8iq or i8iq" default:"u8iq"`
		Meta        string `help:"Waveform metadata file written by generate"`
		NoReference bool   `help:"Treat the payload as unknown"`
	} `cmd:"" help:"Live TUI over repeated scans of a capture"`
}

var configFile = koanf.New(".")

func getConfigPath() string {
	paths := []string{"/etc/burstprobe/config.hcl", "~/.config/burstprobe/config.hcl", "./config.hcl"}
	for _, path := range paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("Found config file: %s", path)
			return path
		}
	}
	log.Info("Config file not found!")
	return ""
}

func loadConfig() {
	if err := configFile.Load(file.Provider(getConfigPath()), hcl.Parser(true)); err != nil {
		log.Errorf("Could not read config file: %v", err)
		log.Error("Attempting to use environment variables")
		configFile.Load(env.Provider("", env.Opt{
			Prefix: "BURSTPROBE_",
			TransformFunc: func(k, v string) (string, any) {
				key := strings.ToLower(strings.TrimPrefix(k, "BURSTPROBE_"))
				k = strings.Replace(key, "_", ".", 1)
				fmt.Printf("Found config env var: %s=%v\n", k, v)
				return k, v
			},
		}), nil)
	}
}

func waveformConf() config.WaveformConf {
	wf := config.DefaultWaveform()
	if configFile.Exists("waveform.sample_rate") {
		wf.SampleRate = configFile.Float64("waveform.sample_rate")
	}
	if configFile.Exists("waveform.symbol_rate") {
		wf.SymbolRate = configFile.Float64("waveform.symbol_rate")
	}
	if configFile.Exists("waveform.rrc_beta") {
		wf.RRCBeta = configFile.Float64("waveform.rrc_beta")
	}
	if configFile.Exists("waveform.rrc_span_syms") {
		wf.RRCSpanSyms = configFile.Int("waveform.rrc_span_syms")
	}
	if configFile.Exists("waveform.guard_syms") {
		wf.GuardSyms = configFile.Int("waveform.guard_syms")
	}
	if configFile.Exists("waveform.payload_syms") {
		wf.PayloadSyms = configFile.Int("waveform.payload_syms")
	}
	if configFile.Exists("waveform.preamble_syms") {
		wf.PreambleSyms = configFile.Int("waveform.preamble_syms")
	}
	if configFile.Exists("waveform.preamble_repeats") {
		wf.PreambleRepeats = configFile.Int("waveform.preamble_repeats")
	}
	if configFile.Exists("waveform.seed") {
		wf.Seed = configFile.Int64("waveform.seed")
	}
	if configFile.Exists("waveform.amplitude") {
		wf.Amplitude = configFile.Float64("waveform.amplitude")
	}
	return wf
}

func detectorConf() config.DetectorConf {
	det := config.DefaultDetector()
	if configFile.Exists("detector.threshold") {
		det.Threshold = configFile.Float64("detector.threshold")
	}
	if configFile.Exists("detector.search_seconds") {
		det.SearchSeconds = configFile.Float64("detector.search_seconds")
	}
	if configFile.Exists("detector.min_sep_ms") {
		det.MinSepMs = configFile.Float64("detector.min_sep_ms")
	}
	if configFile.Exists("detector.mask_frac") {
		det.MaskFrac = configFile.Float64("detector.mask_frac")
	}
	if configFile.Exists("detector.coarse_mode") {
		det.CoarseMode = configFile.String("detector.coarse_mode")
	}
	return det
}

func tuiConf() config.TuiConf {
	return config.TuiConf{
		RefreshMs:       configFile.Int("tui.refresh_ms"),
		EvmWarnPct:      configFile.Float64("tui.evm_threshold_warn_pct"),
		EvmCritPct:      configFile.Float64("tui.evm_threshold_crit_pct"),
		BerWarnPct:      configFile.Float64("tui.ber_threshold_warn_pct"),
		BerCritPct:      configFile.Float64("tui.ber_threshold_crit_pct"),
		EnableLogOutput: configFile.Bool("tui.enable_log_output"),
	}
}

// newPipeline regenerates the reference waveform and builds the receiver for
// the configured (and optionally metadata-overridden) burst format.
func newPipeline(metaPath string) (*rx.Pipeline, *waveform.Reference, error) {
	wf := waveformConf()
	if metaPath != "" {
		var err error
		if wf, err = waveform.ParseMeta(metaPath, wf); err != nil {
			return nil, nil, err
		}
	}
	ref, err := waveform.NewReference(wf)
	if err != nil {
		return nil, nil, err
	}
	return rx.NewPipeline(ref, detectorConf()), ref, nil
}

// report is the JSON document analyze and scan print for the Metrics
// Reporter to consume.
type report struct {
	IqFile     string        `json:"iq_file"`
	FcHz       float64       `json:"fc_hz,omitempty"`
	FsHz       float64       `json:"fs_hz"`
	CfoTotalHz float64       `json:"cfo_total_hz,omitempty"`
	CfoPpm     float64       `json:"cfo_ppm,omitempty"`
	AvgEvmPct  float64       `json:"avg_evm_pct,omitempty"`
	AvgBer     float64       `json:"avg_ber,omitempty"`
	Bursts     []*rx.Result  `json:"bursts"`
	Stats      *rx.ScanStats `json:"scan_stats,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func emitReport(rep *report, outPath string) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		log.Fatalf("Could not marshal report: %v", err)
	}
	fmt.Println(string(data))
	if outPath != "" {
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			log.Fatalf("Could not write report to %s: %v", outPath, err)
		}
		log.Infof("Saved: %s", outPath)
	}
}

func saveResults(source string, results []*rx.Result) {
	path := configFile.String("store.path")
	if path == "" {
		path = "burstprobe.db"
	}
	st, err := store.Open(path)
	if err != nil {
		log.Errorf("Could not open results store: %v", err)
		return
	}
	defer st.Close()
	for _, res := range results {
		if err := st.InsertResult(context.Background(), source, res); err != nil {
			log.Errorf("Could not store result: %v", err)
		}
	}
	log.Infof("Stored %d results in %s", len(results), path)
}

func runGenerate() {
	wf := waveformConf()
	ref, err := waveform.NewReference(wf)
	if err != nil {
		log.Fatalf("Could not build reference waveform: %v", err)
	}

	out := cli.Generate.Out
	if out == "" {
		out = fmt.Sprintf("qpsk_fs%d_sym%d_rrc%g_i8iq.bin", int(wf.SampleRate), int(wf.SymbolRate), wf.RRCBeta)
	}
	if err := os.WriteFile(out, ref.InterleavedInt8(), 0o644); err != nil {
		log.Fatalf("Could not write waveform: %v", err)
	}
	meta := strings.TrimSuffix(out, ".bin") + ".txt"
	if err := waveform.WriteMeta(meta, wf); err != nil {
		log.Fatalf("Could not write metadata: %v", err)
	}
	log.Infof("Wrote %s (%d samples) and %s", out, len(ref.Shaped), meta)
}

func runAnalyze() {
	pipe, ref, err := newPipeline(cli.Analyze.Meta)
	if err != nil {
		log.Fatalf("Could not build receiver: %v", err)
	}
	src, err := rfio.Open(cli.Analyze.Iq, cli.Analyze.Format, ref.Conf.SampleRate)
	if err != nil {
		log.Fatalf("Could not load capture: %v", err)
	}

	rep := &report{IqFile: src.Label, FcHz: cli.Analyze.Fc, FsHz: ref.Conf.SampleRate}
	useRef := !cli.Analyze.NoReference

	if cli.Analyze.Average > 1 {
		results, stats := pipe.Scan(src.Samples, useRef)
		if len(results) > cli.Analyze.Average {
			results = results[:cli.Analyze.Average]
		}
		rep.Bursts = results
		rep.Stats = &stats
		fillAverages(rep)
	} else {
		res, err := pipe.Process(src.Samples, useRef)
		rep.Bursts = []*rx.Result{res}
		var perr *rx.PipelineError
		if err != nil {
			rep.Error = err.Error()
			emitReport(rep, cli.Analyze.Out)
			if errors.As(err, &perr) {
				log.Errorf("Analysis failed: %v", err)
				os.Exit(1)
			}
			log.Fatalf("Analysis failed: %v", err)
		}
		rep.CfoTotalHz = res.Record.TotalCFOHz()
		if cli.Analyze.Fc > 0 {
			rep.CfoPpm = rep.CfoTotalHz / cli.Analyze.Fc * 1e6
		}
		fillAverages(rep)
	}

	emitReport(rep, cli.Analyze.Out)
	if cli.Analyze.Save {
		saveResults(src.Label, rep.Bursts)
	}
}

// fillAverages computes metric averages over the locked bursts in the report.
func fillAverages(rep *report) {
	var evmSum float64
	var evmCount int
	var bitErrs, bits float64
	for _, res := range rep.Bursts {
		if !res.Record.Locked || res.Metrics == nil {
			continue
		}
		evmSum += res.Metrics.EVMPercent
		evmCount++
		if res.Metrics.HasBER() {
			bitErrs += res.Metrics.BER * float64(res.Metrics.BitsCompared)
			bits += float64(res.Metrics.BitsCompared)
		}
	}
	if evmCount > 0 {
		rep.AvgEvmPct = evmSum / float64(evmCount)
	}
	if bits > 0 {
		rep.AvgBer = bitErrs / bits
	}
}

func runScan() {
	pipe, ref, err := newPipeline(cli.Scan.Meta)
	if err != nil {
		log.Fatalf("Could not build receiver: %v", err)
	}
	src, err := rfio.Open(cli.Scan.Iq, cli.Scan.Format, ref.Conf.SampleRate)
	if err != nil {
		log.Fatalf("Could not load capture: %v", err)
	}

	results, stats := pipe.Scan(src.Samples, !cli.Scan.NoReference)
	rep := &report{IqFile: src.Label, FsHz: ref.Conf.SampleRate, Bursts: results, Stats: &stats}
	rep.CfoTotalHz = stats.CFOMeanHz
	fillAverages(rep)
	emitReport(rep, "")
	if cli.Scan.Save {
		saveResults(src.Label, results)
	}
}

func runSimulate() {
	var snrs []float64
	for _, f := range strings.Split(cli.Simulate.Snrs, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			log.Fatalf("Bad SNR point %q: %v", f, err)
		}
		snrs = append(snrs, v)
	}

	rng := rand.New(rand.NewSource(cli.Simulate.Seed))
	points := sim.Sweep(rng, snrs, cli.Simulate.Bits)
	for _, p := range points {
		log.Infof("SNR=%5.1f dB  BER=%.3e  theory=%.3e", p.SNRdB, p.BER, p.Theoretical)
	}

	if cli.Simulate.Out != "" {
		f, err := os.Create(cli.Simulate.Out)
		if err != nil {
			log.Fatalf("Could not create %s: %v", cli.Simulate.Out, err)
		}
		defer f.Close()
		w := csv.NewWriter(f)
		w.Write([]string{"snr_db", "ber", "theoretical_ber"})
		for _, p := range points {
			w.Write([]string{
				strconv.FormatFloat(p.SNRdB, 'g', -1, 64),
				strconv.FormatFloat(p.BER, 'e', 6, 64),
				strconv.FormatFloat(p.Theoretical, 'e', 6, 64),
			})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			log.Fatalf("Could not write CSV: %v", err)
		}
		log.Infof("Saved: %s", cli.Simulate.Out)
	}
}

func runMonitor() {
	pipe, ref, err := newPipeline(cli.Monitor.Meta)
	if err != nil {
		log.Fatalf("Could not build receiver: %v", err)
	}
	tconf := tuiConf()
	if tconf.RefreshMs <= 0 {
		tconf.RefreshMs = 1000
	}

	updates := make(chan tui.Update, 1)
	go func() {
		for {
			src, err := rfio.Open(cli.Monitor.Iq, cli.Monitor.Format, ref.Conf.SampleRate)
			if err != nil {
				log.Errorf("Could not load capture: %v", err)
			} else {
				results, stats := pipe.Scan(src.Samples, !cli.Monitor.NoReference)
				updates <- tui.Update{Source: src.Label, Results: results, Stats: stats}
			}
			time.Sleep(time.Duration(tconf.RefreshMs) * time.Millisecond)
		}
	}()

	tui.StartUI(updates, tconf)
}

func main() {
	log.Info("Starting burstprobe")
	flags := kong.Parse(&cli)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			panic(err)
		}
		pprof.StartCPUProfile(prof)
		defer pprof.StopCPUProfile()
	}

	loadConfig()

	switch flags.Command() {
	case "generate":
		runGenerate()
	case "analyze <iq>":
		runAnalyze()
	case "scan <iq>":
		runScan()
	case "simulate":
		runSimulate()
	case "monitor <iq>":
		runMonitor()
	default:
		log.Info("Command not recognized")
	}
}
