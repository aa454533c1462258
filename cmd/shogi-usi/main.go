package main

import (
	"flag"
	"log"
	"os"
	"runtime/pprof"

	"github.com/hailam/shogi-engine/internal/engine"
	"github.com/hailam/shogi-engine/internal/usi"
)

const defaultHashMB = 64

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to file")

func main() {
	flag.Parse()

	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	// Evaluation tables and the opening book are loaded lazily on "isready"
	// (from Eval_Dir/Book_File or their platform-specific defaults), not here.
	eng := engine.NewEngine(defaultHashMB)

	protocol := usi.New(eng)
	protocol.Run()
}
