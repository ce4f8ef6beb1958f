// Command ad4826ctl talks to an AD-4826A weighing/batching controller over a
// serial line.
//
//	ad4826ctl [flags] weight
//	ad4826ctl [flags] cutout AMOUNT
//	ad4826ctl [flags] discharge
//	ad4826ctl [flags] raw CMD [TEXT]
//	ad4826ctl [flags] poll
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	ad4826 "github.com/hootrhino/goad4826"
	"github.com/hootrhino/goad4826/internal/config"
	"github.com/hootrhino/goad4826/internal/httpserver"
	"github.com/hootrhino/goad4826/internal/logging"
)

const (
	exitOK       = 0
	exitFailed   = 1
	exitUsage    = 2
	exitSetupErr = 3
)

// openFunc opens the transporter for the configured serial port.
type openFunc func(cfg ad4826.SerialConfig) (ad4826.Transporter, error)

func openSerial(cfg ad4826.SerialConfig) (ad4826.Transporter, error) {
	return ad4826.DialSerial(cfg)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr, openSerial))
}

// app bundles what every subcommand needs.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	dev     *ad4826.Device
	reg     *prometheus.Registry
	unit    ad4826.Code
	channel ad4826.Code
	out     io.Writer
}

func run(args []string, stdout, stderr io.Writer, open openFunc) int {
	fs := pflag.NewFlagSet("ad4826ctl", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ad4826ctl [flags] weight|cutout AMOUNT|discharge|raw CMD [TEXT]|poll")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := config.Load("", fs)
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitSetupErr
	}
	logger := logging.NewLogger(cfg.Logging, stderr)
	defer func() { _ = logger.Sync() }()

	unit, channel, err := cfg.Address()
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitSetupErr
	}
	mode, err := cfg.DecodeMode()
	if err != nil {
		fmt.Fprintln(stderr, "config:", err)
		return exitSetupErr
	}

	tr, err := open(cfg.SerialConfig())
	if err != nil {
		logger.Error("open serial port failed", zap.String("port", cfg.Serial.Port), zap.Error(err))
		return exitSetupErr
	}

	reg := prometheus.NewRegistry()
	client := ad4826.NewClient(tr,
		ad4826.WithLogger(logger),
		ad4826.WithMetrics(ad4826.NewMetrics(reg)),
		ad4826.WithDecodeMode(mode),
	)
	defer client.Close()

	a := &app{
		cfg:     cfg,
		log:     logger,
		dev:     ad4826.NewDevice(client),
		reg:     reg,
		unit:    unit,
		channel: channel,
		out:     stdout,
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "weight":
		return a.weight()
	case "cutout":
		if len(rest) != 1 {
			fs.Usage()
			return exitUsage
		}
		amount, err := strconv.ParseFloat(rest[0], 64)
		if err != nil {
			fmt.Fprintf(stderr, "invalid amount %q\n", rest[0])
			return exitUsage
		}
		return a.cutout(amount)
	case "discharge":
		return a.discharge()
	case "raw":
		if len(rest) < 1 || len(rest) > 2 {
			fs.Usage()
			return exitUsage
		}
		text := ""
		if len(rest) == 2 {
			text = rest[1]
		}
		return a.raw(rest[0], text)
	case "poll":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.poll(ctx)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		fs.Usage()
		return exitUsage
	}
}

func (a *app) report(op string, err error) int {
	outcome := ad4826.OutcomeOf(err)
	if err != nil {
		fmt.Fprintf(a.out, "%s: %s (%v)\n", op, outcome, err)
		return exitFailed
	}
	fmt.Fprintf(a.out, "%s: %s\n", op, outcome)
	return exitOK
}

func (a *app) weight() int {
	w, err := a.dev.ReadWeight(a.unit, a.channel)
	if err != nil {
		return a.report("weight", err)
	}
	fmt.Fprintln(a.out, strconv.FormatFloat(w, 'f', -1, 64))
	return exitOK
}

func (a *app) cutout(amount float64) int {
	return a.report("cutout", a.dev.CutOutAmount(a.unit, a.channel, amount))
}

func (a *app) discharge() int {
	return a.report("discharge", a.dev.DischargeAll(a.unit, a.channel))
}

func (a *app) raw(cmd, text string) int {
	resp, err := a.dev.Call(a.unit, a.channel, cmd, text)
	if err != nil {
		return a.report("raw", err)
	}
	if resp.IsNak() {
		fmt.Fprintf(a.out, "%s %s%s %s error=%s\n", resp.Header, resp.Unit, resp.Channel, resp.Command, resp.ErrorCode)
		return exitFailed
	}
	fmt.Fprintf(a.out, "%s %s%s %s %s\n", resp.Header, resp.Unit, resp.Channel, resp.Command, resp.Text)
	return exitOK
}

// metricsServer returns the /metrics, /healthz and /readyz server, or nil
// when metrics are disabled.
func (a *app) metricsServer(ready func() bool) *httpserver.Server {
	if !a.cfg.Metrics.Enable {
		return nil
	}
	a.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	handler := promhttp.HandlerFor(a.reg, promhttp.HandlerOpts{Registry: a.reg})
	return httpserver.New(a.cfg.Metrics.Addr, a.cfg.Metrics.Path, handler, ready)
}

// poll prints one line per reading until ctx ends. With metrics enabled it
// also serves /metrics, /healthz and /readyz.
func (a *app) poll(ctx context.Context) int {
	var healthy atomic.Bool
	p := ad4826.NewWeightPoller(a.dev, a.unit, a.channel, a.cfg.Poll.Interval)
	p.SetOnData(func(s ad4826.WeightSample) {
		healthy.Store(true)
		fmt.Fprintf(a.out, "%s %s\n", s.At.Format(time.RFC3339), strconv.FormatFloat(s.Weight, 'f', -1, 64))
	})
	p.SetOnError(func(s ad4826.WeightSample) {
		healthy.Store(false)
		a.log.Warn("weight poll failed", zap.Stringer("outcome", ad4826.OutcomeOf(s.Err)), zap.Error(s.Err))
	})

	if srv := a.metricsServer(healthy.Load); srv != nil {
		go func() {
			if err := srv.Start(); err != nil {
				a.log.Error("metrics server error", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		a.log.Info("serving metrics", zap.String("addr", a.cfg.Metrics.Addr), zap.String("path", a.cfg.Metrics.Path))
	}

	err := p.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Error("poller stopped", zap.Error(err))
		return exitFailed
	}
	return exitOK
}
