package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fako1024/libra/pkg/api"
	"github.com/fako1024/libra/pkg/config"
	"github.com/fako1024/libra/pkg/scale"
	"go.uber.org/zap"
)

type cfg struct {
	configPath string
	apiAddr    string
	debug      bool
}

func main() {

	// Parse command line options (defaulting to the environment)
	var (
		c   cfg
		env = config.LoadEnv()
	)

	flag.StringVar(&c.configPath, "config", env.ConfigPath, "path to scale configuration file")
	flag.StringVar(&c.apiAddr, "api", env.APIAddr, "address to serve the control API of the first scale on (disabled if empty)")
	flag.BoolVar(&c.debug, "debug", env.Debug, "enable debug logging (logs every weight reading)")
	flag.Parse()

	log, err := scale.NewDefaultLogger(c.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to instantiate logger: %s\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	entries, err := config.Load(c.configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %s", err)
	}

	var (
		wg       sync.WaitGroup
		doneChan = make(chan struct{})
	)
	for i, entry := range entries {
		s, err := entry.Disconnected().Connect(entry.BuildDriver(log), scale.WithLogger(log))
		if err != nil {
			log.Errorf("failed to connect scale `%s`: %s", entry.Device, err)
			continue
		}

		// Each scale is driven by a single goroutine, the lock is shared with the API (if any)
		lock := &sync.Mutex{}
		if i == 0 && c.apiAddr != "" {
			srv := api.New(s, lock)
			go func() {
				if err := srv.Listen(c.apiAddr); err != nil {
					log.Errorf("control API stopped: %s", err)
				}
			}()
			defer func() {
				_ = srv.Shutdown()
			}()
		}

		wg.Add(1)
		go func(s *scale.Scale, lock sync.Locker) {
			defer wg.Done()
			run(s, lock, doneChan, log)
		}(s, lock)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, os.Interrupt)
	<-sigChan
	log.Infof("Got signal, terminating connection to all scales")

	close(doneChan)
	wg.Wait()
}

func run(s *scale.Scale, lock sync.Locker, doneChan chan struct{}, log *zap.SugaredLogger) {

	ticker := time.NewTicker(s.Config().SamplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-doneChan:
			lock.Lock()
			defer lock.Unlock()
			if _, err := s.Disconnect(); err != nil && !errors.Is(err, scale.ErrNotConnected) {
				log.Warnf("failed to disconnect scale `%s`: %s", s.Device(), err)
			}
			return
		case <-ticker.C:
			lock.Lock()
			poll(s, log)
			lock.Unlock()
		}
	}
}

func poll(s *scale.Scale, log *zap.SugaredLogger) {
	weight, err := s.GetWeight()
	if err != nil {

		// A failing or lost channel is restarted, the next tick tries again if that fails as well
		if errors.Is(err, scale.ErrNotConnected) {
			log.Warnf("scale `%s` is not connected, trying to reconnect", s.Device())
		} else {
			log.Warnf("failed to read scale `%s`: %s", s.Device(), err)
		}
		if rerr := s.Restart(); rerr != nil {
			log.Errorf("failed to restart scale `%s`: %s", s.Device(), rerr)
		}
		return
	}
	log.Debugf("scale `%s`: %s", s.Device(), weight)

	if event, ok := s.CheckForAction(); ok {
		log.Infof("event %s: %s", event.ID, event)
	}
}
