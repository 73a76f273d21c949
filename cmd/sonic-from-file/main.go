package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lisuiheng/sonic-go/audio"
	"github.com/lisuiheng/sonic-go/modem"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := pflag.NewFlagSet("sonic-from-file", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	payloadLength := fs.IntP("payload-length", "l", -1, "Fixed payload length; -1 for variable length")
	dss := fs.Bool("dss", false, "Input uses direct sequence spreading")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sonic-from-file [flags] [file.wav]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	in := stdin
	if fs.NArg() > 0 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	rate, samples, err := audio.ReadWAV(in)
	if err != nil {
		return err
	}
	if rate < modem.SampleRateMin || rate > modem.SampleRateMax {
		return fmt.Errorf("unsupported sample rate %d", rate)
	}

	params := modem.DefaultParameters()
	params.PayloadLength = *payloadLength
	params.SampleRateInp = float64(rate)
	params.SampleFormatInp = modem.SampleFormatI16
	params.OperatingMode = modem.ModeRX
	if *dss {
		params.OperatingMode |= modem.ModeUseDSS
	}
	engine, err := modem.New(params)
	if err != nil {
		return err
	}
	defer engine.Close()

	// trailing silence flushes the last symbols through the resampler
	raw := make([]byte, 2*(len(samples)+16*params.SamplesPerFrame))
	for i, s := range samples {
		binary.NativeEndian.PutUint16(raw[2*i:], uint16(s))
	}

	frame := params.SamplesPerFrame * 2
	var count int
	for off := 0; off < len(raw); off += frame {
		engine.Decode(raw[off:min(off+frame, len(raw))])
		for p := engine.TakeRxData(); p != nil; p = engine.TakeRxData() {
			fmt.Fprintf(stdout, "%s\n", p)
			count++
		}
	}

	fmt.Fprintf(stderr, "Decoded %d payload(s), %d corrupted\n", count, engine.RxFailures())
	if count == 0 {
		return errors.New("no payload found")
	}
	return nil
}
