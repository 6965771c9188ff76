// eonsim runs a dynamic traffic experiment over an optical network at a sweep of offered loads.
//
//	eonsim -topo nsfnet.yaml -exp exp.yaml -minload 50 -maxload 250 -step 50
//
// Each load gets a fresh topology, control plane and workload. One summary line per load goes to
// stdout. With -metrics-addr the admission metrics of every load are served at /metrics until
// the process is interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/iti/eonsim"
	"github.com/iti/eonsim/internal/logging"
	"github.com/iti/eonsim/ra"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tebeka/atexit"
)

type options struct {
	topo, exp           string
	seed                int
	minLoad, maxLoad    float64
	step                float64
	trace               string
	metricsAddr         string
	natsURL, natsSubj   string
	logLevel, logFormat string
}

func parseOptions() *options {
	opts := new(options)
	flag.StringVar(&opts.topo, "topo", "", "topology description (json or yaml)")
	flag.StringVar(&opts.exp, "exp", "", "experiment description (json or yaml)")
	flag.IntVar(&opts.seed, "seed", -1, "random seed, overrides the experiment's when non-negative")
	flag.Float64Var(&opts.minLoad, "minload", 0.0, "first offered load in Erlangs")
	flag.Float64Var(&opts.maxLoad, "maxload", 0.0, "last offered load in Erlangs, minload when smaller")
	flag.Float64Var(&opts.step, "step", 1.0, "offered load increment")
	flag.StringVar(&opts.trace, "trace", "", "trace file; each load writes its own, with the load in its name")
	flag.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve prometheus metrics at this address")
	flag.StringVar(&opts.natsURL, "nats-url", "", "publish admission decisions to this NATS server")
	flag.StringVar(&opts.natsSubj, "nats-subject", "eonsim.decisions", "NATS subject of admission decisions")
	flag.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error; $LOG_LEVEL or info when empty")
	flag.StringVar(&opts.logFormat, "log-format", "", "text or json; $LOG_FORMAT or text when empty")
	flag.Parse()
	return opts
}

func (opts *options) check() error {
	var errs []error
	if len(opts.topo) == 0 {
		errs = append(errs, errors.New("-topo is required"))
	}
	if len(opts.exp) == 0 {
		errs = append(errs, errors.New("-exp is required"))
	}
	if !(opts.minLoad > 0.0) {
		errs = append(errs, fmt.Errorf("-minload %g must be positive", opts.minLoad))
	}
	if !(opts.step > 0.0) {
		errs = append(errs, fmt.Errorf("-step %g must be positive", opts.step))
	}
	return eonsim.ReportErrs(errs)
}

// loads lists the offered loads of the sweep
func (opts *options) loads() []float64 {
	maxLoad := max(opts.maxLoad, opts.minLoad)
	loads := []float64{}
	for idx := 0; ; idx++ {
		load := opts.minLoad + float64(idx)*opts.step
		if load > maxLoad+opts.step*1e-9 {
			break
		}
		loads = append(loads, load)
	}
	return loads
}

// traceFileFor puts the load into the trace file name, ahead of its extension
func traceFileFor(filename string, load float64) string {
	ext := path.Ext(filename)
	return fmt.Sprintf("%s-load%g%s", strings.TrimSuffix(filename, ext), load, ext)
}

func main() {
	opts := parseOptions()
	logger := logging.NewFromEnv(opts.logLevel, opts.logFormat)

	if err := opts.check(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		atexit.Exit(2)
	}

	tc, xc, err := eonsim.GetExperimentDicts(map[string]string{"topo": opts.topo, "exp": opts.exp})
	if err != nil {
		logger.Error("reading experiment", "err", err)
		atexit.Exit(1)
	}
	if opts.seed >= 0 {
		xc.Seed = opts.seed
	}
	params, err := ra.ParamsFromExp(xc)
	if err != nil {
		logger.Error("strategy parameters", "err", err)
		atexit.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	atexit.Register(stop)

	registry := prometheus.NewRegistry()
	if len(opts.metricsAddr) > 0 {
		serveMetrics(opts.metricsAddr, registry, logger)
	}

	var sinks []eonsim.AdmissionSink
	var natsSink *eonsim.NatsSink
	if len(opts.natsURL) > 0 {
		natsSink, err = eonsim.CreateNatsSink(opts.natsURL, opts.natsSubj)
		if err != nil {
			logger.Error("connecting to NATS", "url", opts.natsURL, "err", err)
			atexit.Exit(1)
		}
		natsSink.SetLogger(logger)
		atexit.Register(natsSink.Close)
		sinks = append(sinks, natsSink)
	}

	for _, load := range opts.loads() {
		strategy, err := ra.New(xc.Strategy, params)
		if err != nil {
			logger.Error("choosing strategy", "err", err)
			atexit.Exit(1)
		}
		sim, err := eonsim.BuildSimulation(tc, xc, strategy, load,
			eonsim.SimOptions{Registerer: registry, Sinks: sinks, Logger: logger})
		if err != nil {
			logger.Error("building simulation", "load", load, "err", err)
			atexit.Exit(1)
		}
		if natsSink != nil {
			natsSink.SetRun(sim.RunID, load)
		}

		summary, err := sim.Run(ctx)
		fmt.Println(summary.String())

		if len(opts.trace) > 0 {
			traceFile := traceFileFor(opts.trace, load)
			if _, werr := sim.Trace.WriteToFile(traceFile); werr != nil {
				logger.Error("writing trace", "file", traceFile, "err", werr)
			}
		}
		if err != nil {
			logger.Warn("sweep interrupted", "load", load, "err", err)
			atexit.Exit(1)
		}
	}

	if len(opts.metricsAddr) > 0 {
		logger.Info("sweep done, serving metrics until interrupted", "addr", opts.metricsAddr)
		<-ctx.Done()
	}
	atexit.Exit(0)
}

// serveMetrics exposes the registry at /metrics and registers the server's shutdown
func serveMetrics(addr string, registry *prometheus.Registry, logger *slog.Logger) {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server", "addr", addr, "err", err)
		}
	}()

	atexit.Register(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("metrics server shutdown", "err", err)
		}
	})
}
