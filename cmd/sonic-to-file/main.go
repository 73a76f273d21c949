package main

import (
	"bufio"
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
	fs := pflag.NewFlagSet("sonic-to-file", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	volume := fs.IntP("volume", "v", modem.DefaultVolume, "Output volume, in (0, 100]")
	sampleRate := fs.Float64P("sample-rate", "s", modem.DefaultSampleRate,
		fmt.Sprintf("Output sample rate, in [%d, %d]", modem.SampleRateMin, modem.SampleRateMax))
	protocolID := fs.IntP("protocol", "p", int(modem.DefaultProtocol), "Transmission protocol id")
	payloadLength := fs.IntP("payload-length", "l", -1,
		fmt.Sprintf("Fixed payload length, in [1, %d]; -1 for variable length", modem.MaxLengthFixed))
	output := fs.StringP("output", "o", "", "Output WAV file (default stdout)")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sonic-to-file [flags] < message\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nAvailable protocols:\n")
		for _, p := range modem.Protocols() {
			fmt.Fprintf(stderr, "  %d - %s\n", p.ID, p.Name)
		}
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if *volume <= 0 || *volume > 100 {
		return fmt.Errorf("invalid volume %d", *volume)
	}
	if *sampleRate < modem.SampleRateMin || *sampleRate > modem.SampleRateMax {
		return fmt.Errorf("invalid sample rate %g", *sampleRate)
	}
	if _, err := modem.ProtocolByID(modem.ProtocolID(*protocolID)); err != nil {
		return err
	}

	fmt.Fprintln(stderr, "Enter a text message:")
	message, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to read message: %w", err)
	}
	message = trimNewline(message)
	switch {
	case len(message) == 0:
		return errors.New("invalid message: size = 0")
	case len(message) > modem.MaxLengthVariable:
		return fmt.Errorf("invalid message: size > %d", modem.MaxLengthVariable)
	}

	fmt.Fprintf(stderr, "Generating waveform for message '%s' ...\n", message)

	params := modem.DefaultParameters()
	params.PayloadLength = *payloadLength
	params.SampleRateOut = *sampleRate
	params.SampleFormatOut = modem.SampleFormatI16
	engine, err := modem.New(params)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.Init([]byte(message), modem.ProtocolID(*protocolID), *volume); err != nil {
		return err
	}
	wave, err := engine.Encode()
	if err != nil {
		return fmt.Errorf("failed to generate waveform: %w", err)
	}
	fmt.Fprintf(stderr, "Output size = %d bytes\n", len(wave))

	samples := make([]int16, len(wave)/2)
	for i := range samples {
		samples[i] = int16(binary.NativeEndian.Uint16(wave[2*i:]))
	}

	w := stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	fmt.Fprintln(stderr, "Writing WAV data ...")
	bw := bufio.NewWriter(w)
	if err := audio.WriteWAV(bw, int(*sampleRate), samples); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(stderr, "WAV frames written = %d\n", len(samples))
	return nil
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
