package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"

	"github.com/tomeito/knes/nes"
	"github.com/tomeito/knes/ui"
)

var (
	debug = flag.Bool("debug", false, "start the interactive debug console")
	scale = flag.Int("scale", 2, "window scale factor")
)

func main() {
	flag.Parse()
	defer glog.Flush()
	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <rom or raw binary>\n", os.Args[0])
		os.Exit(1)
	}
	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open %s: %v\n", path, err)
		os.Exit(1)
	}
	if !nes.IsINES(data) {
		// A bare 6502 image: run it on the harness until the sentinel
		// is written, and report the result through the exit code.
		result := nes.NewHarness(data).Run()
		fmt.Printf("result: %d\n", result)
		os.Exit(int(result))
	}
	cartridge, err := nes.NewCartridge(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", path, err)
		os.Exit(1)
	}
	console := nes.NewConsole(cartridge, *debug)
	console.Reset()
	ui.Start(console, 256**scale, 240**scale)
}
