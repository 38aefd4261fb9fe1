package main

import (
	"encoding/json"
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/rjboer/txsink/internal/sink"
)

type cliConfig struct {
	backend       string
	deviceArgs    string
	bufferLength  int
	converter     string
	centerFreq    float64
	freqCorr      float64
	sampleRate    float64
	bandwidth     float64
	rfGain        float64
	ifGain        float64
	source        string
	toneOffset    float64
	amplitude     float64
	duration      time.Duration
	startRetries  int
	stopTimeout   time.Duration
	logLevel      string
	logFormat     string
	logFile       string
	webAddr       string
	historyLimit  int
	statsInterval time.Duration
}

type persistentConfig struct {
	Backend       string  `json:"backend"`
	DeviceArgs    string  `json:"device_args"`
	BufferLength  int     `json:"buffer_length"`
	Converter     string  `json:"converter"`
	CenterFreq    float64 `json:"center_freq"`
	FreqCorr      float64 `json:"freq_corr_ppm"`
	SampleRate    float64 `json:"sample_rate"`
	Bandwidth     float64 `json:"bandwidth"`
	RFGain        float64 `json:"rf_gain"`
	IFGain        float64 `json:"if_gain"`
	Source        string  `json:"source"`
	ToneOffset    float64 `json:"tone_offset"`
	Amplitude     float64 `json:"amplitude"`
	StartRetries  int     `json:"start_retries"`
	StopTimeout   string  `json:"stop_timeout"`
	LogLevel      string  `json:"log_level"`
	LogFormat     string  `json:"log_format"`
	LogFile       string  `json:"log_file"`
	WebAddr       string  `json:"web_addr"`
	HistoryLimit  int     `json:"history_limit"`
	StatsInterval string  `json:"stats_interval"`
}

func defaultPersistentConfig() persistentConfig {
	return persistentConfig{
		Backend:       "mock",
		DeviceArgs:    "",
		BufferLength:  sink.DefaultBufferLength,
		Converter:     "auto",
		CenterFreq:    433.92e6,
		SampleRate:    2e6,
		Bandwidth:     0,
		RFGain:        0,
		IFGain:        16,
		Source:        "tone",
		ToneOffset:    100e3,
		Amplitude:     0.5,
		StartRetries:  3,
		StopTimeout:   "10s",
		LogLevel:      "info",
		LogFormat:     "text",
		HistoryLimit:  500,
		StatsInterval: "1s",
	}
}

func parseConfig(args []string, lookup func(string) (string, bool), defaults persistentConfig) (cliConfig, error) {
	cfg := cliConfig{}
	fs := flag.NewFlagSet("txsink", flag.ContinueOnError)
	fs.StringVar(&cfg.backend, "backend", envString(lookup, "TXSINK_BACKEND", defaults.Backend), "Device backend (mock|hackrf)")
	fs.StringVar(&cfg.deviceArgs, "device-args", envString(lookup, "TXSINK_DEVICE_ARGS", defaults.DeviceArgs), "Sink arguments, e.g. \"buffers=32,bias_tx=1\"")
	fs.IntVar(&cfg.bufferLength, "buffer-length", envInt(lookup, "TXSINK_BUFFER_LENGTH", defaults.BufferLength), "Transfer buffer size in bytes (mock backend only)")
	fs.StringVar(&cfg.converter, "converter", envString(lookup, "TXSINK_CONVERTER", defaults.Converter), "Sample converter (auto|scalar|block)")
	fs.Float64Var(&cfg.centerFreq, "freq", envFloat(lookup, "TXSINK_FREQ", defaults.CenterFreq), "Center frequency in Hz")
	fs.Float64Var(&cfg.freqCorr, "ppm", envFloat(lookup, "TXSINK_PPM", defaults.FreqCorr), "Frequency correction in ppm")
	fs.Float64Var(&cfg.sampleRate, "sample-rate", envFloat(lookup, "TXSINK_SAMPLE_RATE", defaults.SampleRate), "Sample rate in Hz; a capture file's own rate wins")
	fs.Float64Var(&cfg.bandwidth, "bandwidth", envFloat(lookup, "TXSINK_BANDWIDTH", defaults.Bandwidth), "Baseband filter bandwidth in Hz (0 = auto)")
	fs.Float64Var(&cfg.rfGain, "rf-gain", envFloat(lookup, "TXSINK_RF_GAIN", defaults.RFGain), "RF amplifier gain (0 or 14 dB)")
	fs.Float64Var(&cfg.ifGain, "if-gain", envFloat(lookup, "TXSINK_IF_GAIN", defaults.IFGain), "IF (TX VGA) gain, 0-47 dB")
	fs.StringVar(&cfg.source, "source", envString(lookup, "TXSINK_SOURCE", defaults.Source), "Sample source: \"tone\" or a path to an rfcap file (\"-\" for stdin)")
	fs.Float64Var(&cfg.toneOffset, "tone-offset", envFloat(lookup, "TXSINK_TONE_OFFSET", defaults.ToneOffset), "Tone offset from the carrier in Hz")
	fs.Float64Var(&cfg.amplitude, "amplitude", envFloat(lookup, "TXSINK_AMPLITUDE", defaults.Amplitude), "Tone amplitude relative to full scale")
	fs.DurationVar(&cfg.duration, "duration", envDuration(lookup, "TXSINK_DURATION", 0), "Stop after this long (0 = until interrupted or end of file)")
	fs.IntVar(&cfg.startRetries, "start-retries", envInt(lookup, "TXSINK_START_RETRIES", defaults.StartRetries), "Retries when the device refuses to start streaming")
	fs.DurationVar(&cfg.stopTimeout, "stop-timeout", envDuration(lookup, "TXSINK_STOP_TIMEOUT", parseDuration(defaults.StopTimeout, 10*time.Second)), "Give up draining after this long")
	fs.StringVar(&cfg.logLevel, "log-level", envString(lookup, "TXSINK_LOG_LEVEL", defaults.LogLevel), "Log level (debug|info|warn|error)")
	fs.StringVar(&cfg.logFormat, "log-format", envString(lookup, "TXSINK_LOG_FORMAT", defaults.LogFormat), "Log format (text|json)")
	fs.StringVar(&cfg.logFile, "log-file", envString(lookup, "TXSINK_LOG_FILE", defaults.LogFile), "Optional rotating log file")
	fs.StringVar(&cfg.webAddr, "web-addr", envString(lookup, "TXSINK_WEB_ADDR", defaults.WebAddr), "Optional web telemetry listen address (e.g. :8080)")
	fs.IntVar(&cfg.historyLimit, "history-limit", envInt(lookup, "TXSINK_HISTORY_LIMIT", defaults.HistoryLimit), "Maximum samples to keep in telemetry history")
	fs.DurationVar(&cfg.statsInterval, "stats-interval", envDuration(lookup, "TXSINK_STATS_INTERVAL", parseDuration(defaults.StatsInterval, time.Second)), "Interval between statistics samples")

	if err := fs.Parse(args); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func persistentFromCLI(cfg cliConfig) persistentConfig {
	return persistentConfig{
		Backend:       cfg.backend,
		DeviceArgs:    cfg.deviceArgs,
		BufferLength:  cfg.bufferLength,
		Converter:     cfg.converter,
		CenterFreq:    cfg.centerFreq,
		FreqCorr:      cfg.freqCorr,
		SampleRate:    cfg.sampleRate,
		Bandwidth:     cfg.bandwidth,
		RFGain:        cfg.rfGain,
		IFGain:        cfg.ifGain,
		Source:        cfg.source,
		ToneOffset:    cfg.toneOffset,
		Amplitude:     cfg.amplitude,
		StartRetries:  cfg.startRetries,
		StopTimeout:   cfg.stopTimeout.String(),
		LogLevel:      cfg.logLevel,
		LogFormat:     cfg.logFormat,
		LogFile:       cfg.logFile,
		WebAddr:       cfg.webAddr,
		HistoryLimit:  cfg.historyLimit,
		StatsInterval: cfg.statsInterval.String(),
	}
}

func loadOrCreateConfig(path string) (persistentConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := defaultPersistentConfig()
			if saveErr := saveConfig(path, cfg); saveErr != nil {
				return persistentConfig{}, saveErr
			}
			return cfg, nil
		}
		return persistentConfig{}, err
	}
	defer f.Close()

	cfg := defaultPersistentConfig()
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return persistentConfig{}, err
	}
	return cfg, nil
}

func saveConfig(path string, cfg persistentConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func envFloat(lookup func(string) (string, bool), key string, def float64) float64 {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(lookup func(string) (string, bool), key string, def int) int {
	if val, ok := lookup(key); ok {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(lookup func(string) (string, bool), key, def string) string {
	if val, ok := lookup(key); ok {
		return val
	}
	return def
}

func envDuration(lookup func(string) (string, bool), key string, def time.Duration) time.Duration {
	if val, ok := lookup(key); ok {
		return parseDuration(val, def)
	}
	return def
}

func parseDuration(s string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}
