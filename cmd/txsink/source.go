package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"hz.tools/rf"
	"hz.tools/rfcap"
	"hz.tools/sdr"
	"hz.tools/sdr/stream"

	"github.com/rjboer/txsink/internal/dsp"
)

// source is an sdr.Reader that may own a file.
type source interface {
	sdr.Reader
	io.Closer
}

type readerSource struct {
	sdr.Reader
	io.Closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openSource returns the configured sample source and a short name for it.
func openSource(cfg cliConfig) (source, string, error) {
	if cfg.source == "" || cfg.source == "tone" {
		tone := dsp.NewTone(rf.Hz(cfg.toneOffset), uint(cfg.sampleRate), cfg.amplitude)
		return readerSource{Reader: tone, Closer: nopCloser{}}, "tone", nil
	}

	var (
		in     io.Reader = os.Stdin
		closer io.Closer = nopCloser{}
	)
	if cfg.source != "-" {
		f, err := os.Open(cfg.source)
		if err != nil {
			return nil, "", fmt.Errorf("open capture: %w", err)
		}
		in, closer = f, f
	}

	reader, _, err := rfcap.Reader(in)
	if err != nil {
		_ = closer.Close()
		return nil, "", fmt.Errorf("read capture header: %w", err)
	}
	reader, err = stream.ConvertReader(reader, sdr.SampleFormatC64)
	if err != nil {
		_ = closer.Close()
		return nil, "", fmt.Errorf("convert capture samples: %w", err)
	}
	return readerSource{Reader: reader, Closer: closer}, cfg.source, nil
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
