package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mhartig/idmbridge/cmd/app"
	httpctrl "github.com/mhartig/idmbridge/internal/controllers/http"
	mqttctrl "github.com/mhartig/idmbridge/internal/controllers/mqtt"
	"github.com/mhartig/idmbridge/internal/heatpump"
	"github.com/mhartig/idmbridge/internal/metrics"
	"github.com/mhartig/idmbridge/internal/modbusio"
	"github.com/mhartig/idmbridge/internal/ports"
	"github.com/mhartig/idmbridge/internal/registers"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml/.yml/.json)")
	flag.Parse()

	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	m := metrics.New()

	var (
		pumps []*heatpump.HeatPump
		svcs  []ports.HeatPumpService
	)
	for _, d := range cfg.Devices {
		conn := modbusio.New(modbusio.Config{
			Addr:        d.Addr(),
			UnitID:      d.UnitID,
			Timeout:     d.Timeout,
			Retries:     cfg.Modbus.Retries,
			CoalesceGap: cfg.Modbus.CoalesceGap,
		})
		hp := heatpump.New(heatpump.Config{
			ID:           d.ID,
			ScanInterval: d.ScanInterval,
			Cooling:      d.Cooling,
			MaxBoost:     d.MaxBoost,
			Metrics:      m,
		}, registers.Default(), conn)
		pumps = append(pumps, hp)
		svcs = append(svcs, hp)
	}
	defer func() {
		for _, hp := range pumps {
			_ = hp.Close()
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	for _, hp := range pumps {
		g.Go(func() error { return hp.Run(ctx) })
	}

	if cfg.HTTP.Enabled {
		srv := httpctrl.New(svcs, cfg.HTTP.Addr, m.Handler())
		log.Printf("idmbridge listening on %s", cfg.HTTP.Addr)
		g.Go(func() error { return srv.Run(ctx) })
	}

	if cfg.MQTT.Enabled {
		ctrl, err := mqttctrl.New(svcs, mqttctrl.Config{
			BrokerURL:       cfg.MQTT.BrokerURL,
			ClientID:        cfg.MQTT.ClientID,
			BaseTopic:       cfg.MQTT.BaseTopic,
			DiscoveryPrefix: cfg.MQTT.DiscoveryPrefix,
			QoS:             cfg.MQTT.QoS,
			RetainState:     cfg.MQTT.RetainState,
			Username:        cfg.MQTT.Username,
			Password:        cfg.MQTT.Password,
		})
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("idmbridge publishing to %s", cfg.MQTT.BrokerURL)
		g.Go(func() error { return ctrl.Run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("exited: %v", err)
	}
}
