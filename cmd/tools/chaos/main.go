package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"main/internal/chaos"
	"main/internal/failsafe"
	"main/internal/model"
	"main/internal/model/enum"
	"main/internal/router"
)

// Drives an in-process router and failsafe monitor against a fault-injecting
// executor, so escalation and recovery behavior can be watched without any
// real subsystems.
func main() {
	seed := flag.Int64("seed", 0, "RNG seed (0=now)")
	failRate := flag.Float64("fail-rate", 0.95, "Dispatch failure probability [0-1]")
	transientShare := flag.Float64("transient-share", 1, "Share of failures that are retryable [0-1]")
	maxLatency := flag.Duration("max-latency", 5*time.Millisecond, "Max injected dispatch latency")
	submitInterval := flag.Duration("submit-interval", 10*time.Millisecond, "Delay between submissions")
	failFor := flag.Duration("fail-for", 5*time.Second, "How long to keep injecting failures")
	runFor := flag.Duration("run-for", 20*time.Second, "Total drill duration")
	flag.Parse()

	executor, err := chaos.NewExecutor(chaos.Config{
		Seed:           *seed,
		FailRate:       *failRate,
		TransientShare: *transientShare,
		MaxLatency:     *maxLatency,
	})
	if err != nil {
		log.Fatalf("chaos config invalid: %v", err)
	}

	monitor := failsafe.NewMonitor(failsafe.Config{
		LevelDwell:   2 * time.Second,
		ReasonDwell:  2 * time.Second,
		EvalInterval: 200 * time.Millisecond,
	})
	commandRouter := router.New(router.Config{
		BackoffBase:       5 * time.Millisecond,
		BackoffCap:        50 * time.Millisecond,
		TelemetryWindow:   3 * time.Second,
		TelemetryInterval: 500 * time.Millisecond,
	}, executor, monitor, router.WithTelemetrySink(monitor))

	ctx, cancel := context.WithTimeout(context.Background(), *runFor)
	defer cancel()
	go monitor.Run(ctx)
	go commandRouter.Run(ctx)

	go func() {
		timer := time.NewTimer(*failFor)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			executor.SetFailRate(0)
			fmt.Println("--- fault injection stopped ---")
		}
	}()

	var submitted, rejected int
	lastLevel := monitor.CurrentLevel()
	ticker := time.NewTicker(*submitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dispatches, failures := executor.Counts()
			fmt.Printf("submitted=%d rejected=%d dispatches=%d injected_failures=%d final_level=%s\n",
				submitted, rejected, dispatches, failures, monitor.CurrentLevel())
			return
		case <-ticker.C:
			if level := monitor.CurrentLevel(); level != lastLevel {
				fmt.Printf("level %s -> %s\n", lastLevel, level)
				lastLevel = level
			}
			if _, err := commandRouter.Submit(model.Command{Priority: enum.PriorityNormal}); err != nil {
				rejected++
				continue
			}
			submitted++
		}
	}
}
