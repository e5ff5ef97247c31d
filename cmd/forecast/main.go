package main

// forecast rolls a model forward from initializations in a gridded series and
// writes the result on the cubed sphere and, when map files are configured,
// on a lat/lon grid.
//
// Usage:
//   go run ./cmd/forecast -config gridcast.yaml
//   go run ./cmd/forecast -series era5_c48.nc -model model.msgpack.zst -inits 4,8 -steps 20
//
// Settings come from GRIDCAST_* environment variables, then the YAML file,
// then any flag given explicitly on the command line.

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Noofbiz/gridcast/archive"
	"github.com/Noofbiz/gridcast/config"
	"github.com/Noofbiz/gridcast/datasets"
	"github.com/Noofbiz/gridcast/forecast"
	"github.com/Noofbiz/gridcast/grid"
	"github.com/Noofbiz/gridcast/log"
	"github.com/Noofbiz/gridcast/monte"
	"github.com/Noofbiz/gridcast/remap"
	"github.com/Noofbiz/gridcast/scaling"
	"github.com/Noofbiz/gridcast/simple"
	"github.com/Noofbiz/gridcast/store"
	"github.com/Noofbiz/gridcast/verify"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	series := flag.String("series", "", "netCDF file holding the predictors series")
	scale := flag.String("scale", "", "netCDF file with mean/std per varlev (optional)")
	model := flag.String("model", "", "model weights written by simple.Model.Save")
	predictor := flag.String("predictor", "mlp", "predictor kind: 'mlp' (weights from -model), 'tensor' (same weights on gomlx tensors) or 'analog'")
	analogK := flag.Int("k", 8, "number of nearest analogs used by the analog predictor")
	analogSims := flag.Int("sims", 0, "Monte Carlo draws per analog forecast (0 = exact weighted mean)")
	selection := flag.String("select", "", "comma-separated varlevs to predict, e.g. 'z/500,t2m' (empty = all)")
	layout := flag.String("layout", "first", "channel layout: 'first' or 'last'")
	inits := flag.String("inits", "", "comma-separated initialization indices (empty = every index with enough history)")
	steps := flag.Int("steps", 4, "number of forecast lead times")
	workers := flag.Int("workers", 1, "number of batches rolled out concurrently")
	maxBatch := flag.Int("max-batch", 0, "maximum initializations per predictor call (0 = all)")
	forwardMap := flag.String("forward-map", "", "lat/lon to cubed sphere map file (ESMF netCDF or compiled cache)")
	inverseMap := flag.String("inverse-map", "", "cubed sphere to lat/lon map file (ESMF netCDF or compiled cache)")
	nlat := flag.Int("nlat", 0, "lat/lon grid rows")
	nlon := flag.Int("nlon", 0, "lat/lon grid columns")
	outDir := flag.String("out", "output", "output directory")
	noPlots := flag.Bool("no-plots", false, "skip writing plots")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	printEffectiveConfig := flag.Bool("print-effective-config", false, "print the effective (env+YAML+CLI merged) configuration and exit")
	flag.Parse()

	cfg, err := config.Read(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config: %v\n", err)
		os.Exit(2)
	}

	// explicit CLI flags always override env and YAML values
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "series":
			cfg.Data.Series = *series
		case "scale":
			cfg.Data.Scale = *scale
		case "model":
			cfg.Model.Path = *model
		case "predictor":
			cfg.Model.Kind = *predictor
		case "k":
			cfg.Model.K = *analogK
		case "sims":
			cfg.Model.Sims = *analogSims
		case "select":
			cfg.Data.Selection = splitList(*selection)
		case "layout":
			cfg.Data.Layout = *layout
		case "inits":
			cfg.Forecast.Inits, flagErr = parseInts(*inits)
		case "steps":
			cfg.Forecast.Steps = *steps
		case "workers":
			cfg.Model.Workers = *workers
		case "max-batch":
			cfg.Model.MaxBatch = *maxBatch
		case "forward-map":
			cfg.Remap.Forward = *forwardMap
		case "inverse-map":
			cfg.Remap.Inverse = *inverseMap
		case "nlat":
			cfg.Remap.NLat = *nlat
		case "nlon":
			cfg.Remap.NLon = *nlon
		case "out":
			cfg.Output.Dir = *outDir
		case "no-plots":
			cfg.Output.Plots = !*noPlots
		case "log-level":
			cfg.Logging.Level = *logLevel
		}
	})
	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "invalid -inits: %v\n", flagErr)
		os.Exit(2)
	}

	if *printEffectiveConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to render config: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	lg, err := log.New(cfg.Logging.Options())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Close()
	slog.SetDefault(lg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, lg.Logger); err != nil {
		lg.Error("forecast failed", "error", err)
		stop()
		lg.Close()
		os.Exit(1)
	}
}

// run executes the whole pipeline: load, scale, roll out, scale back, label,
// write faces, remap, write lat/lon and plot.
func run(ctx context.Context, cfg *config.Config, lg *slog.Logger) error {
	started := time.Now()

	s, err := datasets.LoadNetCDF(cfg.Data.Series)
	if err != nil {
		return fmt.Errorf("failed to load series: %w", err)
	}
	lg.Info("series loaded", "path", cfg.Data.Series, "grid", s.Topology, "snapshots", s.Len(), "step", s.Step(), "varlevs", len(s.VarLevels))
	truth := s

	gcfg, err := cfg.Data.GeneratorConfig()
	if err != nil {
		return err
	}

	var params scaling.ScaleParameters
	if cfg.Data.Scale != "" {
		params, err = scaling.LoadNetCDF(cfg.Data.Scale)
		if err != nil {
			return fmt.Errorf("failed to load scale parameters: %w", err)
		}
		if s, err = scaling.ScaleSeries(s, gcfg.Selection, params); err != nil {
			return err
		}
		lg.Info("series scaled", "path", cfg.Data.Scale)
	}
	gen, err := datasets.NewGenerator(s, gcfg)
	if err != nil {
		return fmt.Errorf("failed to create generator: %w", err)
	}

	p, caps, err := newPredictor(cfg.Model, gen, lg)
	if err != nil {
		return err
	}
	est, err := forecast.NewEstimator(p, caps, gen)
	if err != nil {
		return err
	}
	est.WithLogger(lg).WithWorkers(cfg.Model.Workers)

	inits := cfg.Forecast.Inits
	if len(inits) == 0 {
		inits = defaultInits(s.Len(), gcfg.InputTimeSteps)
	}
	// a partial rollout is still written; the failure is reported at the end
	ft, rollErr := est.Predict(ctx, inits, cfg.Forecast.Steps)
	var rerr *forecast.RolloutError
	if rollErr != nil && (ctx.Err() != nil || !errors.As(rollErr, &rerr)) {
		return rollErr
	}

	vars := gen.Selection()
	if params != nil {
		if ft, err = scaling.InverseScale(ft, vars, params); err != nil {
			return err
		}
	}

	initTimes, err := forecast.InitTimes(s, inits)
	if err != nil {
		return err
	}
	faces, err := forecast.Reformat(ft, forecast.LeadTimes(s.Step(), cfg.Forecast.Steps), initTimes, vars, s.Topology)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		return err
	}
	runID := archive.NewRunID()
	lg = lg.With("run_id", runID)
	if err := write(cfg.Output, faces, runID, lg); err != nil {
		return err
	}
	if cfg.Output.Scores {
		if err := writeScores(cfg.Output.Dir, faces, truth, lg); err != nil {
			return err
		}
	}

	result := faces
	if cfg.Remap.Enabled() {
		if result, err = toLatLon(cfg.Remap, faces, lg); err != nil {
			return err
		}
		if err := write(cfg.Output, result, runID, lg); err != nil {
			return err
		}
	}

	// failed initializations are NaN, which the plotters reject
	if cfg.Output.Plots && rollErr == nil {
		if err := plotLeadMeans(cfg.Output.Dir, result); err != nil {
			return fmt.Errorf("failed to plot lead-time means: %w", err)
		}
		if err := plotField(cfg.Output.Dir, result, 0, 0, 0); err != nil {
			return fmt.Errorf("failed to plot field: %w", err)
		}
	}
	if rollErr != nil {
		lg.Error("forecast written with failed initializations", "failed", rerr.Failed, "elapsed", time.Since(started))
		return rollErr
	}
	lg.Info("forecast finished", "inits", len(inits), "steps", cfg.Forecast.Steps, "elapsed", time.Since(started))
	return nil
}

// newPredictor builds the configured predictor and its capabilities.
func newPredictor(mc config.ModelConfig, gen *datasets.Generator, lg *slog.Logger) (forecast.Predictor, forecast.Capabilities, error) {
	if mc.Kind == "analog" {
		m, err := monte.NewMonte(gen, mc.K)
		if err != nil {
			return nil, forecast.Capabilities{}, err
		}
		m.Sims = mc.Sims
		if mc.Seed != 0 {
			m.SetSeed(mc.Seed)
		}
		m.SetLogger(lg)
		lg.Info("analog predictor", "library", gen.Len(), "k", mc.K, "sims", mc.Sims)
		return m, m.Capabilities(mc.MaxBatch), nil
	}
	m, err := simple.Load(mc.Path)
	if err != nil {
		return nil, forecast.Capabilities{}, fmt.Errorf("failed to load model: %w", err)
	}
	lg.Info("model loaded", "path", mc.Path, "kind", mc.Kind, "layers", m.LayerSizes())
	layout := gen.Config().Layout
	caps := m.Capabilities(layout, mc.MaxBatch)
	if mc.Kind == "tensor" {
		tp, err := forecast.NewTensorPredictor(m.TensorFunc(gen.Topology(), layout), m.Config.OutputChannels, gen.Topology(), layout)
		if err != nil {
			return nil, forecast.Capabilities{}, err
		}
		return tp, caps, nil
	}
	return m, caps, nil
}

// writeScores scores the forecast and a persistence baseline against truth.
func writeScores(dir string, l *forecast.Labeled, truth *datasets.Series, lg *slog.Logger) error {
	scores, err := verify.Evaluate(l, truth)
	if err != nil {
		return fmt.Errorf("failed to score forecast: %w", err)
	}
	base, err := verify.Persistence(l, truth)
	if err != nil {
		return err
	}
	baseScores, err := verify.Evaluate(base, truth)
	if err != nil {
		return fmt.Errorf("failed to score persistence: %w", err)
	}
	for name, sc := range map[string][]verify.Score{"scores.csv": scores, "scores_persistence.csv": baseScores} {
		path := filepath.Join(dir, name)
		if err := verify.WriteCSVFile(path, sc); err != nil {
			return err
		}
		lg.Info("wrote scores", "path", path)
	}
	return nil
}

// toLatLon remaps a cubed-sphere forecast onto the configured lat/lon grid.
func toLatLon(rc config.RemapConfig, faces *forecast.Labeled, lg *slog.Logger) (*forecast.Labeled, error) {
	if faces.Topology.Kind != grid.KindCubeSphere {
		return nil, fmt.Errorf("remapping needs a cubed-sphere series, got %v", faces.Topology)
	}
	r, err := remap.NewRemapper(faces.Topology, rc.LatLon())
	if err != nil {
		return nil, err
	}
	r.WithLogger(lg)
	if err := r.AssignMapFiles(rc.Forward, rc.Inverse); err != nil {
		return nil, err
	}
	cols, err := r.ConvertFromFaces(faces)
	if err != nil {
		return nil, err
	}
	sel, err := rc.VarLevels()
	if err != nil {
		return nil, err
	}
	return r.InverseRemap(cols, sel)
}

// write stores l as netCDF and/or archive, named after its grid.
func write(oc config.OutputConfig, l *forecast.Labeled, runID string, lg *slog.Logger) error {
	base := filepath.Join(oc.Dir, "forecast_"+l.Topology.Kind.String())
	if oc.NetCDF {
		path := base + ".nc"
		if err := archive.WriteNetCDF(path, l, runID); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		lg.Info("wrote netCDF", "path", path, "dims", l.Dims())
	}
	if oc.Archive {
		path := base + store.Ext
		if _, err := archive.Save(path, l, runID); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		lg.Info("wrote archive", "path", path)
	}
	return nil
}

// defaultInits returns every snapshot index with ti steps of history.
func defaultInits(n, ti int) []int {
	var out []int
	for i := ti - 1; i < n; i++ {
		out = append(out, i)
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInts(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
