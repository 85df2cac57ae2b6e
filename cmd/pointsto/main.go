package main

import (
	"os"
	"runtime/pprof"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/tools/go/packages"

	"github.com/valset/pointsto"
	"github.com/valset/pointsto/pkgutil"
)

func main() {
	app := cli.NewApp()
	app.Name = "pointsto"
	app.Usage = "compute and inspect points-to sets for Go programs"
	app.ArgsUsage = "package-query..."
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "dir",
			Usage: "alternative directory to run the go build tool in",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "YAML configuration `file`",
		},
		cli.BoolFlag{
			Name:  "lazy",
			Usage: "defer per-function analysis until queried",
		},
		cli.StringFlag{
			Name:  "analysis",
			Usage: "oracle variant: unification or typebased",
		},
		cli.StringFlag{
			Name:  "load",
			Usage: "restore engine state from `file` instead of analyzing",
		},
		cli.StringFlag{
			Name:  "save",
			Usage: "write engine state to `file`",
		},
		cli.BoolFlag{
			Name:  "print",
			Usage: "dump every value with its points-to set",
		},
		cli.IntFlag{
			Name:  "histogram",
			Usage: "draw the set-size distribution, peeking `n` members into the biggest set",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "print log.Debug messages",
		},
		cli.StringFlag{
			Name:  "cpuprofile",
			Usage: "write cpu profile to `file`",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.NewExitError("specify a package query on the command line", 1)
	}

	if c.Bool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if profile := c.String("cpuprofile"); profile != "" {
		f, err := os.Create(profile)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return cli.NewExitError(err, 1)
		}
		defer pprof.StopCPUProfile()
	}

	var opts pointsto.Options
	if path := c.String("config"); path != "" {
		var err error
		if opts, err = pointsto.LoadOptions(path); err != nil {
			return cli.NewExitError(err, 1)
		}
	}
	if c.Bool("lazy") {
		opts.UseLazyEvaluation = true
	}
	if s := c.String("analysis"); s != "" {
		kind, err := pointsto.ParseAnalysisKind(s)
		if err != nil {
			return cli.NewExitError(err, 1)
		}
		opts.AnalysisKind = kind
	}

	pkgs, err := pkgutil.LoadPackagesWithConfig(&packages.Config{
		Mode:  pkgutil.LoadMode,
		Tests: true,
		Dir:   c.String("dir"),
	}, c.Args()...)
	if err != nil {
		return cli.NewExitError(err, 1)
	}

	log.Infof("loaded %d packages", len(pkgs))

	prog, _ := pkgutil.BuildProgram(pkgs)
	db := pointsto.NewIRDB(prog)

	log.Info("built packages")

	var engine *pointsto.Engine
	if path := c.String("load"); path != "" {
		if engine, err = pointsto.NewEngineFromFile(db, path, opts); err != nil {
			return cli.NewExitError(err, 1)
		}
	} else {
		engine = pointsto.NewEngine(db, opts)
	}

	values, sets := engine.Stats()
	log.Infof("%d analyzed functions, %d values in %d points-to sets",
		len(engine.AnalyzedFunctions()), values, sets)

	if path := c.String("save"); path != "" {
		if err := engine.Save(path, db); err != nil {
			return cli.NewExitError(err, 1)
		}
	}

	if c.Bool("print") {
		engine.Print(os.Stdout)
	}
	if peek := c.Int("histogram"); peek > 0 {
		engine.DrawPointsToSetsDistribution(os.Stdout, peek)
	}

	return nil
}
