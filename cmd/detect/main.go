// Command detect prints the plant disease class index predicted for one image.
//
//	detect [-model path] [-config file] [-debug] <image>
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/SyedDaiam9101/leafscan/internal/config"
	"github.com/SyedDaiam9101/leafscan/internal/detector"
	"github.com/SyedDaiam9101/leafscan/internal/inference"
	"github.com/SyedDaiam9101/leafscan/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("detect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	modelPath := fs.String("model", "", "Path to ONNX model file (default: "+detector.DefaultModelPath+")")
	configFile := fs.String("config", "", "Path to config file (optional)")
	debug := fs.Bool("debug", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: detect [flags] <image>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	imagePath := fs.Arg(0)

	cfg, err := config.Load(config.Flags{ConfigFile: *configFile, Model: *modelPath, Debug: *debug})
	if err != nil {
		fmt.Fprintf(stderr, "detect: %v\n", err)
		return 1
	}
	if err := logging.Setup(cfg.LogLevel, stderr); err != nil {
		fmt.Fprintf(stderr, "detect: %v\n", err)
		return 1
	}
	prep, err := cfg.Preprocessor()
	if err != nil {
		log.Error().Err(err).Msg("Invalid preprocessing configuration")
		return 1
	}

	log.Debug().Str("model", cfg.Model).Str("image", imagePath).Msg("Classifying")

	idx, err := detector.DetectWithOptions(cfg.Model, imagePath, inference.Options{
		SharedLibrary: cfg.ONNXLibrary,
		InputName:     cfg.InputName,
		OutputName:    cfg.OutputName,
		NumClasses:    cfg.NumClasses,
	}, prep)
	if err != nil {
		log.Error().Err(err).Str("image", imagePath).Msg("Detection failed")
		return 1
	}

	fmt.Fprintln(stdout, idx)
	return 0
}
