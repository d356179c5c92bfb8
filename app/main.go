package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"

	"github.com/Jthora/intel-feed/app/api"
	"github.com/Jthora/intel-feed/app/cors"
	"github.com/Jthora/intel-feed/app/fetch"
	"github.com/Jthora/intel-feed/app/proc"
	"github.com/Jthora/intel-feed/app/proto"
	"github.com/Jthora/intel-feed/app/store"
)

type options struct {
	DB   string `short:"c" long:"db" env:"IF_DB" default:"var/intel-feed.bdb" description:"bolt cache file"`
	Conf string `short:"f" long:"conf" env:"IF_CONF" default:"intel-feed.yml" description:"config file (yml)"`
	Port int    `short:"p" long:"port" env:"IF_PORT" default:"8080" description:"api port"`

	Proxy string `long:"proxy" env:"PROXY_URL" default:"http://localhost:8889/" description:"local cors relay base url"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

var revision = "local"

func main() {
	fmt.Printf("intel-feed %s\n", revision)
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}
	setupLog(opts.Dbg)

	conf, err := proc.LoadConf(opts.Conf)
	if err != nil {
		log.Fatalf("[ERROR] can't load config %s, %v", opts.Conf, err)
	}

	cache, err := store.NewCache(opts.DB)
	if err != nil {
		log.Fatalf("[ERROR] can't open cache %s, %v", opts.DB, err)
	}

	client := fetch.NewClient(conf.System.MaxRetries, conf.System.Backoff, conf.System.Timeout)
	resolver := cors.NewResolver(cors.Strategy(conf.CORS.DefaultStrategy), conf.Services(opts.Proxy),
		cors.ProberFunc(func(ctx context.Context, target string) error {
			_, err := client.Do(ctx, fetch.Request{URL: target})
			return err
		}))
	for protocol, strategy := range conf.CORS.Overrides {
		resolver.SetOverride(protocol, cors.Strategy(strategy))
	}

	p := &proc.Processor{
		Conf:     conf,
		Registry: proto.NewRegistry(client, resolver, conf.Credentials),
		Cache:    cache,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	go p.Do(ctx)

	server := api.Server{
		Version:  revision,
		Proc:     p,
		Resolver: resolver,
	}
	server.Run(opts.Port)
}

func setupLog(dbg bool) {
	if dbg {
		log.Setup(log.Debug, log.CallerFile, log.Msec, log.LevelBraces)
		return
	}
	log.Setup(log.Msec, log.LevelBraces)
}
