package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// SimulatedAsset stands in for an asset gateway: it follows published
// setpoints with its battery and reports state back on the telemetry topic.
type SimulatedAsset struct {
	ID          string
	Portfolio   string
	Broker      string
	TopicPrefix string
	StatePrefix string
	Interval    time.Duration
	DropRate    float64 // probability of skipping one state report
	OutageRate  float64 // probability per interval of going offline for a while
	Battery     *Battery
	Verbose     bool

	mu        sync.Mutex
	starts    []time.Time
	setpoints []float64
	offline   bool
	rnd       *rand.Rand
}

// Run connects to the broker and follows setpoints until ctx is done.
func (a *SimulatedAsset) Run(ctx context.Context) error {
	if a.rnd == nil {
		a.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	cli, err := newMQTTClient(a.Broker, fmt.Sprintf("sim-%s-%s", a.Portfolio, a.ID))
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("%s/%s/asset/%s/setpoints", a.TopicPrefix, a.Portfolio, a.ID)
	if token := cli.Subscribe(topic, 0, a.onSetpoints); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return token.Error()
	}

	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			if !a.isOffline() {
				power := a.currentSetpoint(now)
				applied := a.Battery.ApplyPower(power, now.Sub(last))
				if a.Verbose {
					log.Printf("%s: setpoint %.2f kW applied %.2f kW state %.2f kWh", a.ID, power, applied, a.Battery.State())
				}
			}
			a.maybeToggleOutage()
			a.report(cli)
			last = now
		case <-ctx.Done():
			cli.Disconnect(250)
			return nil
		}
	}
}

func (a *SimulatedAsset) onSetpoints(_ paho.Client, msg paho.Message) {
	var m struct {
		ScheduleID  string    `json:"schedule_id"`
		Stale       bool      `json:"stale"`
		PeriodsMS   []int64   `json:"period_starts_ms"`
		SetpointsKW []float64 `json:"setpoints_kw"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		log.Printf("%s: decode setpoints: %v", a.ID, err)
		return
	}
	if len(m.PeriodsMS) != len(m.SetpointsKW) {
		log.Printf("%s: schedule %s has mismatched lengths", a.ID, m.ScheduleID)
		return
	}
	starts := make([]time.Time, len(m.PeriodsMS))
	for i, ms := range m.PeriodsMS {
		starts[i] = time.UnixMilli(ms)
	}
	a.applySchedule(starts, m.SetpointsKW)
	if a.Verbose {
		log.Printf("%s: schedule %s with %d periods (stale=%t)", a.ID, m.ScheduleID, len(starts), m.Stale)
	}
}

func (a *SimulatedAsset) applySchedule(starts []time.Time, kw []float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts = starts
	a.setpoints = kw
}

// currentSetpoint returns the power the schedule asks for at now, or zero
// when no period covers it.
func (a *SimulatedAsset) currentSetpoint(now time.Time) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.starts) == 0 || now.Before(a.starts[0]) {
		return 0
	}
	idx := 0
	for i := range a.starts {
		if !a.starts[i].After(now) {
			idx = i
		}
	}
	if idx == len(a.starts)-1 {
		width := 15 * time.Minute
		if len(a.starts) > 1 {
			width = a.starts[idx].Sub(a.starts[idx-1])
		}
		if !now.Before(a.starts[idx].Add(width)) {
			return 0 // schedule ran out
		}
	}
	return a.setpoints[idx]
}

func (a *SimulatedAsset) isOffline() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.offline
}

// maybeToggleOutage starts an outage with OutageRate probability and ends a
// running one with a fixed recovery chance, so outages last a few intervals.
func (a *SimulatedAsset) maybeToggleOutage() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.offline {
		if a.rnd.Float64() < 0.3 {
			a.offline = false
		}
		return
	}
	if a.OutageRate > 0 && a.rnd.Float64() < a.OutageRate {
		a.offline = true
	}
}

func (a *SimulatedAsset) report(cli paho.Client) {
	if a.DropRate > 0 && a.rnd.Float64() < a.DropRate {
		return
	}
	payload, err := json.Marshal(struct {
		AssetID   string  `json:"asset_id"`
		StateKWh  float64 `json:"state_kwh"`
		Available bool    `json:"available"`
	}{AssetID: a.ID, StateKWh: a.Battery.State(), Available: !a.isOffline()})
	if err != nil {
		log.Printf("%s: marshal state: %v", a.ID, err)
		return
	}
	topic := fmt.Sprintf("%s/%s/%s", a.StatePrefix, a.Portfolio, a.ID)
	token := cli.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("%s: state publish timeout", a.ID)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("%s: state publish: %v", a.ID, err)
	}
}
