package main

import (
	"flag"
	"fmt"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

// NewKlogFlagSet wires klog's verbosity and output flags into the top-level
// app, trimmed to the knobs a single-binary CLI actually needs.
func NewKlogFlagSet() []cli.Flag {
	fs := flag.NewFlagSet("klog", flag.PanicOnError)
	klog.InitFlags(fs)

	fs.Set("v", "2")
	fs.Set("logtostderr", "true")

	return []cli.Flag{
		&cli.IntFlag{
			Name:    "v",
			Usage:   "number for the log level verbosity",
			EnvVars: []string{"PICBLOCKS_V"},
			Value:   2,
			Action: func(cctx *cli.Context, v int) error {
				return fs.Set("v", fmt.Sprint(v))
			},
		},
		&cli.BoolFlag{
			Name:        "logtostderr",
			Usage:       "log to standard error instead of files",
			EnvVars:     []string{"PICBLOCKS_LOGTOSTDERR"},
			DefaultText: "true",
			Action: func(cctx *cli.Context, v bool) error {
				return fs.Set("logtostderr", fmt.Sprint(v))
			},
		},
		&cli.StringFlag{
			Name:    "log_dir",
			Usage:   "If non-empty, write log files in this directory (no effect when -logtostderr=true)",
			EnvVars: []string{"PICBLOCKS_LOG_DIR"},
			Action: func(cctx *cli.Context, v string) error {
				if v != "" {
					return fs.Set("log_dir", v)
				}
				return nil
			},
		},
	}
}
