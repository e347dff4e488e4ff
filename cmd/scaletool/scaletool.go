package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fako1024/libra/pkg/config"
	"github.com/fako1024/libra/pkg/scale"
	"go.uber.org/zap"
)

type cfg struct {
	configPath string
	index      int
	debug      bool

	samples    int
	timeout    time.Duration
	noiseRatio float64

	raw         bool
	calibrate   bool
	knownWeight float64
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run() (err error) {

	// Parse command line options (defaulting to the environment)
	var (
		c   cfg
		env = config.LoadEnv()
	)

	flag.StringVar(&c.configPath, "config", env.ConfigPath, "path to scale configuration file")
	flag.IntVar(&c.index, "index", 0, "index of the scale in the configuration file")
	flag.BoolVar(&c.debug, "debug", env.Debug, "enable debug logging")

	flag.IntVar(&c.samples, "samples", 3, "number of consecutive stable samples required")
	flag.DurationVar(&c.timeout, "timeout", 10*time.Second, "maximum time to wait for the reading to settle")
	flag.Float64Var(&c.noiseRatio, "noise", 0.1, "maximum noise relative to the settling baseline")

	flag.BoolVar(&c.raw, "raw", false, "print the raw (uncalibrated) reading")
	flag.BoolVar(&c.calibrate, "calibrate", false, "determine gain / offset using an empty and a loaded reading")
	flag.Float64Var(&c.knownWeight, "weight", 0, "known weight placed on the scale during calibration")
	flag.Parse()

	log, err := scale.NewDefaultLogger(c.debug)
	if err != nil {
		return fmt.Errorf("failed to instantiate logger: %w", err)
	}

	entries, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.index < 0 || c.index >= len(entries) {
		return fmt.Errorf("scale index %d out of range (%d scales configured)", c.index, len(entries))
	}
	entry := entries[c.index]

	s, err := entry.Disconnected().Connect(entry.BuildDriver(log), scale.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to connect scale `%s`: %w", entry.Device, err)
	}
	defer func() {
		if _, cerr := s.Disconnect(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if c.calibrate {
		return calibrate(s, c, log)
	}

	var val float64
	if c.raw {
		val, err = s.RawReadOnceSettled(c.samples, c.timeout, c.noiseRatio)
	} else {
		val, err = s.WeighOnceSettled(c.samples, c.timeout, c.noiseRatio)
	}
	if err != nil {
		return fmt.Errorf("failed to read scale `%s`: %w", entry.Device, err)
	}

	fmt.Println(val)
	return nil
}

func calibrate(s *scale.Scale, c cfg, log *zap.SugaredLogger) error {
	if c.knownWeight <= 0 {
		return fmt.Errorf("a positive known weight is required for calibration")
	}

	stdin := bufio.NewReader(os.Stdin)
	prompt := func(msg string) error {
		fmt.Print(msg)
		_, err := stdin.ReadString('\n')
		return err
	}

	if err := prompt("Remove all weight from the scale and press ENTER "); err != nil {
		return err
	}
	emptyRaw, err := s.RawReadOnceSettled(c.samples, c.timeout, c.noiseRatio)
	if err != nil {
		return fmt.Errorf("failed to read empty scale: %w", err)
	}
	log.Debugf("empty reading: %v", emptyRaw)

	if err := prompt(fmt.Sprintf("Place %v on the scale and press ENTER ", c.knownWeight)); err != nil {
		return err
	}
	loadedRaw, err := s.RawReadOnceSettled(c.samples, c.timeout, c.noiseRatio)
	if err != nil {
		return fmt.Errorf("failed to read loaded scale: %w", err)
	}
	log.Debugf("loaded reading: %v", loadedRaw)

	gain, offset, err := scale.ComputeCalibration(emptyRaw, loadedRaw, c.knownWeight)
	if err != nil {
		return err
	}

	fmt.Printf("gain: %v\noffset: %v\n", gain, offset)
	return nil
}
