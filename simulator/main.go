// Command simulator runs a fleet of fake storage assets against a broker:
// each asset follows the setpoints the planner publishes and reports its
// state on the telemetry topic.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// Config holds the simulator parameters.
type Config struct {
	Broker      string
	Portfolio   string
	Count       int
	TopicPrefix string
	StatePrefix string

	CapacityKWh     float64
	ChargeRateKW    float64
	DischargeRateKW float64
	Efficiency      float64
	InitialSoc      float64

	Interval   time.Duration
	DropRate   float64
	OutageRate float64
	Profile    string
	Seed       int64
	Verbose    bool
}

// Validate rejects parameter combinations the fleet cannot run with.
func (c *Config) Validate() error {
	if c.Count <= 0 {
		return fmt.Errorf("count must be positive")
	}
	if c.Portfolio == "" {
		return fmt.Errorf("portfolio must be set")
	}
	if c.CapacityKWh <= 0 || c.ChargeRateKW <= 0 || c.DischargeRateKW <= 0 {
		return fmt.Errorf("capacity and rates must be positive")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.DropRate < 0 || c.DropRate > 1 || c.OutageRate < 0 || c.OutageRate > 1 {
		return fmt.Errorf("drop-rate and outage-rate must be within [0,1]")
	}
	if c.InitialSoc < 0 || c.InitialSoc > 1 {
		return fmt.Errorf("initial-soc must be within [0,1]")
	}
	return nil
}

func main() {
	cfg := parseFlags()
	applyProfile(&cfg)
	if err := (&cfg).Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	assets := GenerateAssets(cfg)
	runAssets(ctx, assets)
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.Portfolio, "portfolio", "park-a", "portfolio the assets belong to")
	flag.IntVar(&cfg.Count, "count", 3, "number of simulated assets")
	flag.StringVar(&cfg.TopicPrefix, "topic-prefix", "flexplan", "setpoint topic prefix")
	flag.StringVar(&cfg.StatePrefix, "state-prefix", "assets/state", "state report topic prefix")
	flag.Float64Var(&cfg.CapacityKWh, "capacity", 60, "battery capacity kWh")
	flag.Float64Var(&cfg.ChargeRateKW, "charge-rate", 20, "maximum charging power kW")
	flag.Float64Var(&cfg.DischargeRateKW, "discharge-rate", 20, "maximum discharging power kW")
	flag.Float64Var(&cfg.Efficiency, "efficiency", 0.95, "charge and discharge efficiency")
	flag.Float64Var(&cfg.InitialSoc, "initial-soc", 0.5, "initial state of charge [0,1]")
	flag.DurationVar(&cfg.Interval, "interval", 30*time.Second, "state report interval")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "probability of skipping a state report")
	flag.Float64Var(&cfg.OutageRate, "outage-rate", 0, "probability per interval of a short outage")
	flag.StringVar(&cfg.Profile, "profile", "", "predefined battery profile (small,medium,large)")
	flag.Int64Var(&cfg.Seed, "seed", 0, "random seed, 0 uses the clock")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()
	return cfg
}

func applyProfile(cfg *Config) {
	switch cfg.Profile {
	case "small":
		cfg.CapacityKWh = 20
		cfg.ChargeRateKW = 5
		cfg.DischargeRateKW = 5
	case "medium":
		cfg.CapacityKWh = 60
		cfg.ChargeRateKW = 20
		cfg.DischargeRateKW = 20
	case "large":
		cfg.CapacityKWh = 200
		cfg.ChargeRateKW = 50
		cfg.DischargeRateKW = 50
	case "":
	default:
		log.Printf("unknown battery profile %s", cfg.Profile)
	}
}

// GenerateAssets creates Count assets with IDs bat001..batNNN.
func GenerateAssets(cfg Config) []*SimulatedAsset {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	assets := make([]*SimulatedAsset, cfg.Count)
	for i := range assets {
		assets[i] = &SimulatedAsset{
			ID:          fmt.Sprintf("bat%03d", i+1),
			Portfolio:   cfg.Portfolio,
			Broker:      cfg.Broker,
			TopicPrefix: cfg.TopicPrefix,
			StatePrefix: cfg.StatePrefix,
			Interval:    cfg.Interval,
			DropRate:    cfg.DropRate,
			OutageRate:  cfg.OutageRate,
			Verbose:     cfg.Verbose,
			rnd:         rand.New(rand.NewSource(seed + int64(i))),
			Battery: &Battery{
				CapacityKWh:    cfg.CapacityKWh,
				StateKWh:       cfg.InitialSoc * cfg.CapacityKWh,
				MaxChargeKW:    cfg.ChargeRateKW,
				MaxDischargeKW: cfg.DischargeRateKW,
				EfficiencyIn:   cfg.Efficiency,
				EfficiencyOut:  cfg.Efficiency,
			},
		}
	}
	return assets
}

func runAssets(ctx context.Context, assets []*SimulatedAsset) {
	var wg sync.WaitGroup
	for _, a := range assets {
		wg.Add(1)
		go func(a *SimulatedAsset) {
			defer wg.Done()
			if err := a.Run(ctx); err != nil {
				log.Printf("%s: %v", a.ID, err)
			}
		}(a)
	}
	wg.Wait()
}
