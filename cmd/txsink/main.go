// Command txsink transmits a test tone or an rfcap capture through the
// transmit sink, on a simulated device or a HackRF.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"hz.tools/rf"
	"hz.tools/sdr"

	"github.com/rjboer/txsink/internal/convert"
	"github.com/rjboer/txsink/internal/device"
	"github.com/rjboer/txsink/internal/logging"
	"github.com/rjboer/txsink/internal/sink"
	"github.com/rjboer/txsink/internal/telemetry"
)

func main() {
	configPath := "txsink.json"
	if p, ok := os.LookupEnv("TXSINK_CONFIG"); ok {
		configPath = p
	}

	persistentCfg, err := loadOrCreateConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg, err := parseConfig(os.Args[1:], os.LookupEnv, persistentCfg)
	if err != nil {
		log.Fatalf("parse config: %v", err)
	}
	if err := saveConfig(configPath, persistentFromCLI(cfg)); err != nil {
		log.Fatalf("save config: %v", err)
	}

	logger, closer, err := logging.Open(logging.Config{
		Level:  cfg.logLevel,
		Format: cfg.logFormat,
		File:   cfg.logFile,
	})
	if err != nil {
		log.Fatalf("open log: %v", err)
	}
	defer closer.Close()
	logging.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("txsink failed", logging.F("err", err))
		os.Exit(1)
	}
}

// selectBackend opens the configured device. capture, when set, sees every
// buffer the simulated device transmits.
func selectBackend(cfg cliConfig, capture func([]byte)) (device.Device, error) {
	switch cfg.backend {
	case "mock":
		return device.NewMock(device.MockConfig{TransferSize: cfg.bufferLength, Capture: capture}), nil
	case "hackrf":
		return device.OpenHackRF()
	default:
		return nil, fmt.Errorf("unknown backend %s", cfg.backend)
	}
}

func run(ctx context.Context, cfg cliConfig, logger logging.Logger) error {
	if cfg.backend == "hackrf" {
		// libhackrf always asks for full-size transfers.
		cfg.bufferLength = sink.DefaultBufferLength
	}
	strategy, err := convert.Lookup(cfg.converter)
	if err != nil {
		return err
	}

	src, srcName, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer src.Close()
	if rate := src.SampleRate(); rate != 0 {
		cfg.sampleRate = float64(rate)
	}

	var hub *telemetry.Hub
	if cfg.webAddr != "" {
		hub = telemetry.NewHub(cfg.historyLimit, logger)
	}
	// The simulated device lets the monitor look at what actually went out.
	var (
		capture func([]byte)
		observe func([]complex64)
	)
	if cfg.backend == "mock" {
		mon := newMonitor(hub, cfg.centerFreq, cfg.sampleRate, srcName+" (on air)")
		if mon != nil {
			capture = mon.wire
		}
	} else if mon := newMonitor(hub, cfg.centerFreq, cfg.sampleRate, srcName); mon != nil {
		observe = mon.samples
	}

	dev, err := selectBackend(cfg, capture)
	if err != nil {
		return fmt.Errorf("select backend: %w", err)
	}
	defer dev.Close()

	s, err := sink.New(dev, cfg.deviceArgs,
		sink.WithBufferLength(cfg.bufferLength),
		sink.WithConverter(strategy),
		sink.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}
	defer s.Close()

	if err := tune(s, cfg); err != nil {
		return err
	}
	logger.Info("tuned",
		logging.F("freq", s.CenterFreq()),
		logging.F("sample_rate", s.SampleRate()),
		logging.F("bandwidth", s.Bandwidth()),
		logging.F("rf_gain", s.Gain()),
		logging.F("if_gain", s.GainNamed(sink.GainIF)),
		logging.F("converter", s.Converter()),
		logging.F("source", srcName))

	reporters := telemetry.MultiReporter{telemetry.NewStdoutReporter(logger)}
	if hub != nil {
		s.SetEventLogger(hub)
		reporters = append(reporters, hub)
		go telemetry.NewWebServer(cfg.webAddr, hub, logger).Start(ctx)
	}

	if err := startWithRetry(ctx, s, cfg.startRetries, logger); err != nil {
		return err
	}

	pollCtx, stopPoll := context.WithCancel(ctx)
	polled := make(chan struct{})
	go func() {
		telemetry.Poll(pollCtx, s, cfg.statsInterval, reporters)
		close(polled)
	}()

	streamErr := streamSamples(ctx, s, src, cfg, observe, srcName)
	stopErr := stopWithTimeout(s, dev, cfg.stopTimeout)

	stopPoll()
	<-polled
	return errors.Join(streamErr, stopErr)
}

func tune(s *sink.Sink, cfg cliConfig) error {
	if _, err := s.SetSampleRate(cfg.sampleRate); err != nil {
		return err
	}
	if _, err := s.SetBandwidth(cfg.bandwidth); err != nil {
		return err
	}
	if _, err := s.SetFreqCorr(cfg.freqCorr); err != nil {
		return err
	}
	if _, err := s.SetCenterFreq(rf.Hz(cfg.centerFreq)); err != nil {
		return err
	}
	if _, err := s.SetGain(cfg.rfGain); err != nil {
		return err
	}
	if _, err := s.SetIFGain(cfg.ifGain); err != nil {
		return err
	}
	return nil
}

// startWithRetry retries Start with exponential backoff while the device
// reports a transient failure such as a busy USB endpoint.
func startWithRetry(ctx context.Context, s *sink.Sink, retries int, logger logging.Logger) error {
	if retries < 0 {
		retries = 0
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Second

	attempt := 0
	var fatal error
	err := backoff.Retry(func() error {
		attempt++
		err := s.Start()
		if err == nil {
			return nil
		}
		if errors.Is(err, sink.ErrDeviceNotReady) || errors.Is(err, sink.ErrClosed) {
			fatal = err
			return nil
		}
		logger.Warn("start failed, retrying", logging.F("attempt", attempt), logging.F("err", err))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))
	if fatal != nil {
		return fatal
	}
	return err
}

// streamSamples copies src into the sink until it ends, ctx is cancelled or
// the configured duration passes. observe, when set, sees every block.
func streamSamples(ctx context.Context, s *sink.Sink, src source, cfg cliConfig, observe func([]complex64), srcName string) error {
	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}

	buf := make(sdr.SamplesC64, cfg.bufferLength/2)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			return nil
		default:
		}

		n, err := sdr.ReadFull(src, buf)
		if n > 0 {
			if _, werr := s.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write samples: %w", werr)
			}
			if observe != nil {
				observe(buf[:n])
			}
		}
		if err != nil {
			if isEOF(err) {
				return nil
			}
			return fmt.Errorf("read %s: %w", srcName, err)
		}
	}
}

// stopWithTimeout drains the sink. When the device stops calling back the
// drain would never finish, so after timeout the device and sink are closed
// to release the waiting Stop.
func stopWithTimeout(s *sink.Sink, dev device.Device, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- s.Stop() }()
	if timeout <= 0 {
		return <-done
	}
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
	}
	_ = dev.Close()
	_ = s.Close()
	<-done
	return fmt.Errorf("stop: drain did not finish within %v", timeout)
}
