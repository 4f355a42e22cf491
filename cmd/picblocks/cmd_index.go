package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/rpcpool/picblocks-go/internal/config"
	"github.com/rpcpool/picblocks-go/internal/index"
	"github.com/rpcpool/picblocks-go/internal/perrors"
)

const defaultDBPath = "picblocksdb.json"

// loadIndexAnyFormat tries the plain-JSON format first, falling back to the
// zstd-compressed format written by "index build --compress".
func loadIndexAnyFormat(path string) (*index.Index, error) {
	idx, err := index.Load(path)
	if err == nil {
		return idx, nil
	}
	if idx, zerr := index.LoadCompressed(path); zerr == nil {
		return idx, nil
	}
	return nil, err
}

func newCmd_Index() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Build and inspect the corpus blockhash database.",
		Subcommands: []*cli.Command{
			newCmd_IndexBuild(),
			newCmd_IndexStats(),
		},
	}
}

func newCmd_IndexBuild() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Aggregate a directory of .blocks files into a corpus database.",
		ArgsUsage: "<blocks-dir>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Value: defaultDBPath, Usage: "output database path"},
			&cli.BoolFlag{Name: "compress", Usage: "write a zstd-compressed database"},
			&cli.IntFlag{Name: "workers", Usage: "parallel .blocks parsers (default: runtime.NumCPU())"},
		},
		Action: func(c *cli.Context) error {
			dir := c.Args().First()
			if dir == "" {
				return perrors.New(perrors.KindUsage, "index build requires a blocks directory")
			}

			cfg := config.Default()
			cfg.Workers = c.Int("workers")
			cfg.DBPath = c.String("db")
			if err := cfg.Validate(); err != nil {
				return err
			}

			idx, err := index.BuildFromDir(c.Context, dir, cfg.Workers)
			if err != nil {
				return err
			}
			if c.Bool("compress") {
				err = idx.SaveCompressed(cfg.DBPath)
			} else {
				err = idx.Save(cfg.DBPath)
			}
			if err != nil {
				return err
			}

			stats := idx.Stats()
			klog.V(2).Infof("index build: %d families, %d files, %d hashes", stats.NumFamilies, stats.NumFiles, stats.NumHashes)
			fmt.Fprintf(os.Stdout, "%s\n", cfg.DBPath)
			return nil
		},
	}
}

func newCmd_IndexStats() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print summary statistics for a corpus database.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Value: defaultDBPath, Usage: "database path"},
			&cli.BoolFlag{Name: "json", Usage: "print as JSON instead of a table"},
		},
		Action: func(c *cli.Context) error {
			cfg := config.Default()
			cfg.DBPath = c.String("db")
			if err := cfg.Validate(); err != nil {
				return err
			}

			idx, err := loadIndexAnyFormat(cfg.DBPath)
			if err != nil {
				return err
			}
			stats := idx.Stats()

			if c.Bool("json") {
				json := jsoniter.ConfigCompatibleWithStandardLibrary
				return json.NewEncoder(os.Stdout).Encode(stats)
			}

			fmt.Fprintf(os.Stdout, "families:        %s\n", humanize.Comma(int64(stats.NumFamilies)))
			fmt.Fprintf(os.Stdout, "libraries:       %s\n", humanize.Comma(int64(stats.NumLibraries)))
			fmt.Fprintf(os.Stdout, "files:           %s\n", humanize.Comma(int64(stats.NumFiles)))
			fmt.Fprintf(os.Stdout, "functions:       %s\n", humanize.Comma(int64(stats.NumFunctions)))
			fmt.Fprintf(os.Stdout, "distinct hashes: %s\n", humanize.Comma(int64(stats.NumHashes)))
			fmt.Fprintf(os.Stdout, "hash/size pairs: %s\n", humanize.Comma(int64(stats.NumHashAndSizes)))
			fmt.Fprintf(os.Stdout, "total bytes:     %s\n", humanize.Bytes(stats.NumBytes))
			fmt.Fprintf(os.Stdout, "unique bytes:    %s\n", humanize.Bytes(stats.NumBytesUnique))
			return nil
		},
	}
}
