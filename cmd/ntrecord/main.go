package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slaclab/pydm-pva-widgets/modules/gstsource"
	"github.com/slaclab/pydm-pva-widgets/modules/ntimage"
	"github.com/slaclab/pydm-pva-widgets/modules/ntndsource"
)

// Version information
const version = "v0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  ntrecord record -out run.ntnd [-source synthetic|gstreamer] [-max-records N]\n")
	fmt.Fprintf(os.Stderr, "  ntrecord dump run.ntnd\n")
	fmt.Fprintf(os.Stderr, "  ntrecord version\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "record":
		err = record(os.Args[2:])
	case "dump":
		err = dump(os.Args[2:], os.Stdout)
	case "version":
		fmt.Printf("ntrecord %s\n", version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func record(args []string) error {
	fs := flag.NewFlagSet("record", flag.ExitOnError)
	out := fs.String("out", "", "Output recording path (required)")
	kind := fs.String("source", "synthetic", "Source: synthetic, gstreamer")
	pipeline := fs.String("pipeline", "", "GStreamer pipeline ending in 'appsink name=sink' (default: test pattern)")
	retries := fs.Int("reconnect", 0, "GStreamer restarts after network errors (0 = none)")
	width := fs.Int("width", 320, "Synthetic frame width")
	height := fs.Int("height", 240, "Synthetic frame height")
	mode := fs.String("mode", "Mono", "Synthetic color mode: Mono, RGB1, RGB2, RGB3")
	sampleType := fs.String("type", "uint16", "Synthetic sample type")
	rate := fs.Float64("rate", 10, "Synthetic frame rate in Hz")
	maxRecords := fs.Int("max-records", 100, "Stop after N records (0 = until interrupted)")
	compress := fs.Bool("compress", true, "zstd-compress the recording")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Parse(args)

	if *out == "" {
		fs.PrintDefaults()
		return errors.New("-out is required")
	}

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	var src ntndsource.Source
	switch *kind {
	case "synthetic":
		m, err := ntimage.ParseColorMode(*mode)
		if err != nil {
			return err
		}
		t, err := ntimage.ParseSampleType(*sampleType)
		if err != nil {
			return err
		}
		src, err = ntndsource.NewSynthetic(ntndsource.SyntheticConfig{
			Width: *width, Height: *height, RateHz: *rate, Mode: m, Type: t,
		})
		if err != nil {
			return err
		}
	case "gstreamer":
		gc := gstsource.Config{Pipeline: *pipeline}
		if *retries > 0 {
			gc.Reconnect = gstsource.DefaultReconnectConfig()
			gc.Reconnect.MaxRetries = *retries
		}
		src = gstsource.New(gc)
	default:
		return fmt.Errorf("unknown source %q", *kind)
	}

	rec, err := ntndsource.Create(*out, *compress)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// The sink runs on the source goroutine; the recorder is not shared.
	full := make(chan struct{})
	var n int
	sink := func(r *ntimage.Record) {
		if *maxRecords > 0 && n >= *maxRecords {
			return
		}
		rec.Record(r)
		n++
		if n == *maxRecords {
			close(full)
		}
	}

	if err := src.Start(ctx, sink); err != nil {
		rec.Close()
		return err
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-full:
			break wait
		case <-ticker.C:
			st := src.Stats()
			written, failed := rec.Count()
			slog.Info("recording", "written", written, "failed", failed, "fps", st.FPSReal, "done", st.Done)
			if st.Done {
				break wait
			}
		}
	}

	if err := src.Stop(); err != nil {
		slog.Warn("source stop failed", "error", err)
	}
	written, failed := rec.Count()
	if err := rec.Close(); err != nil {
		return err
	}
	fmt.Printf("%s: %d records written, %d failed\n", *out, written, failed)
	return nil
}

func dump(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	quiet := fs.Bool("q", false, "Print only the summary line")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("dump needs exactly one recording path")
	}
	path := fs.Arg(0)

	r, err := ntndsource.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()

	var total, malformed int
	var first, last time.Time
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("record %d: %w", total+1, err)
		}
		total++

		if first.IsZero() {
			first = rec.Timestamp
		}
		last = rec.Timestamp

		f, err := ntimage.FrameFromRecord(rec)
		if err != nil {
			malformed++
			if !*quiet {
				fmt.Fprintf(w, "%6d  uid=%-8d  malformed: %v\n", total, rec.UniqueID, err)
			}
			continue
		}
		if !*quiet {
			fmt.Fprintf(w, "%6d  uid=%-8d  %-4s %-6s shape=%v bytes=%d trace=%s\n",
				total, f.UniqueID, f.ColorMode, f.Type, f.Shape, len(f.Data), f.TraceID)
		}
	}

	fmt.Fprintf(w, "%s: %d records (%d malformed), compressed=%v, span=%v\n",
		path, total, malformed, r.Compressed(), last.Sub(first).Round(time.Millisecond))
	return nil
}
