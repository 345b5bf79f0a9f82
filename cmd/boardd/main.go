package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/balance.go/pkg/env"
	fx "github.com/robotalks/balance.go/pkg/framework"
)

var configFile string

func init() {
	env.SetupFlags()
	flag.StringVar(&configFile, "config", configFile, "YAML config file.")
}

func main() {
	flag.Parse()
	if configFile != "" {
		if err := env.Default().LoadFile(configFile); err != nil {
			log.Fatalln(err)
		}
		// flags override the file
		flag.Parse()
	}

	e := env.NewConfig().MustNewEnv()
	opener, err := e.Opener("")
	if err != nil {
		log.Fatalln(err)
	}

	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedRun("loop", fx.NewLoop().Add(e)))
	runner.Go(fx.NamedRun("board", fx.RunFunc(func(ctx context.Context) error {
		if _, err := e.Driver.Connect(ctx, opener); err != nil {
			return err
		}
		<-ctx.Done()
		return e.Driver.Disconnect()
	})))
	if err := runner.Wait(); err != nil {
		glog.Flush()
		log.Fatalln(err)
	}
	glog.Flush()
}
