package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/ondelive/onde/internal/hubsim"
	"github.com/ondelive/onde/internal/logging"
)

func main() {
	// Optional .env; environment wins over it.
	godotenv.Load()

	var (
		addr     = flag.String("addr", ":7000", "listen address")
		secret   = flag.String("jwt-secret", os.Getenv("ONDE_JWT_SECRET"), "access token signing secret")
		rotate   = flag.Duration("rotate", 30*time.Second, "track rotation interval, 0 disables")
		logLevel = flag.String("log-level", "info", "log level (debug, info, warn, error)")
	)
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:  *logLevel,
		Format: "text",
	})

	sim := hubsim.New(hubsim.Options{
		JWTSecret: *secret,
		Logger:    logger,
	})

	if *rotate > 0 {
		go func() {
			ticker := time.NewTicker(*rotate)
			defer ticker.Stop()

			station := 1
			for range ticker.C {
				sim.AdvanceTrack(station)
				// Alternate stations so both rotations move.
				if station == 1 {
					station = 2
				} else {
					station = 1
				}
			}
		}()
	}

	logger.Info("simulated backend listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, sim.Handler()); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
