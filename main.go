/*
This is an example of application that will use the
engine package to test things out
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/framekeeper/engine"
	"github.com/spaghettifunk/framekeeper/engine/config"
	"github.com/spaghettifunk/framekeeper/engine/core"
	"github.com/spaghettifunk/framekeeper/testbed"
)

func main() {
	path := flag.String("config", "config.toml", "engine configuration file, reloaded on change")
	flag.Parse()

	cfg, err := config.Load(*path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		core.LogWarn("no configuration at %s, using defaults", *path)
		cfg = config.Default()
	case err != nil:
		core.LogFatal("%s", err)
	}

	tb := testbed.NewTestGame()
	e, err := engine.New(tb.Game, cfg)
	if err != nil {
		core.LogFatal("create engine: %s", err)
	}
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("initialize engine: %s", err)
	}

	if w, err := config.Watch(*path); err != nil {
		core.LogWarn("config hot reload disabled: %s", err)
	} else {
		defer w.Close()
		e.WatchConfig(w)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Stop()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%+v", runErr)
	}
}
