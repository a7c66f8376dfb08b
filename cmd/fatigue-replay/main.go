// fatigue-replay: runs recorded measurements through the classifier offline.
//
// Input is one MeasurementData per line as JSON, or a length-prefixed msgpack
// stream (-format msgpack). Output is one DetectionResult per line on stdout.
// Records carrying t_ms drive the classifier clock; otherwise each record
// advances it by -interval.
package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/teslashibe/go-fatigue/internal/log"
	"github.com/teslashibe/go-fatigue/pkg/fatigue"
	"github.com/teslashibe/go-fatigue/pkg/protocol"
)

var (
	configPath = flag.String("config", "", "Thresholds YAML (overlays the preset)")
	preset     = flag.String("preset", "default", "Threshold preset: default, sensitive, relaxed")
	format     = flag.String("format", "json", "Input format: json or msgpack")
	interval   = flag.Duration("interval", 33*time.Millisecond, "Clock step for records without t_ms")
	trace      = flag.Bool("trace", false, "Write a JSON trace per frame to stderr")
)

func main() {
	flag.Parse()
	log.Init(os.Getenv("LOG_LEVEL"))

	in := io.Reader(os.Stdin)
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			log.Error("open input", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	cfg, err := thresholds()
	if err != nil {
		log.Error("invalid thresholds", "error", err)
		os.Exit(1)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	opts := replayOptions{Format: *format, Interval: *interval}
	if *trace {
		opts.Trace = os.Stderr
	}
	n, err := replay(cfg, in, out, opts)
	if err != nil {
		out.Flush()
		log.Error("replay failed", "frames", n, "error", err)
		os.Exit(1)
	}
	log.Debug("replay done", "frames", n)
}

func thresholds() (fatigue.Config, error) {
	if *configPath != "" {
		return fatigue.LoadConfig(*configPath)
	}
	return fatigue.Preset(*preset)
}

// replayClock advances to t_ms when a record has one, else by step
type replayClock struct {
	start time.Time
	now   time.Time
	step  time.Duration
}

func newReplayClock(step time.Duration) *replayClock {
	start := time.Unix(0, 0).UTC()
	return &replayClock{start: start, now: start, step: step}
}

func (c *replayClock) advance(d protocol.MeasurementData) {
	if d.TimeOffsetMs != nil {
		c.now = c.start.Add(time.Duration(*d.TimeOffsetMs) * time.Millisecond)
		return
	}
	c.now = c.now.Add(c.step)
}

func (c *replayClock) Now() time.Time { return c.now }

type replayOptions struct {
	Format   string
	Interval time.Duration
	Trace    io.Writer // Per-frame traces, nil disables
}

// replay classifies every record of in and writes results to out.
// It returns the number of frames processed.
func replay(cfg fatigue.Config, in io.Reader, out io.Writer, ro replayOptions) (int, error) {
	next, err := recordReader(in, ro.Format)
	if err != nil {
		return 0, err
	}

	clock := newReplayClock(ro.Interval)
	opts := []fatigue.Option{fatigue.WithClock(clock.Now)}
	if ro.Trace != nil {
		enc := json.NewEncoder(ro.Trace)
		opts = append(opts, fatigue.WithTracer(func(tr fatigue.Trace) {
			_ = enc.Encode(tr)
		}))
	}
	classifier, err := fatigue.NewClassifier(cfg, opts...)
	if err != nil {
		return 0, err
	}

	enc := json.NewEncoder(out)
	frames := 0
	for {
		d, err := next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("record %d: %w", frames+1, err)
		}

		clock.advance(d)
		result := classifier.ProcessFrame(d.Measurement())
		frames++
		if err := enc.Encode(result); err != nil {
			return frames, err
		}
	}
}

func recordReader(in io.Reader, format string) (func() (protocol.MeasurementData, error), error) {
	switch format {
	case "json":
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), protocol.MaxRecordSize)
		return func() (protocol.MeasurementData, error) {
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var d protocol.MeasurementData
				if err := json.Unmarshal(line, &d); err != nil {
					return d, err
				}
				return d, nil
			}
			if err := scanner.Err(); err != nil {
				return protocol.MeasurementData{}, err
			}
			return protocol.MeasurementData{}, io.EOF
		}, nil
	case "msgpack":
		r := bufio.NewReader(in)
		return func() (protocol.MeasurementData, error) {
			return protocol.ReadRecord(r)
		}, nil
	default:
		return nil, fmt.Errorf("unknown format %q (want json or msgpack)", format)
	}
}
