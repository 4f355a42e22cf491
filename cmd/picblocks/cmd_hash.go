package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/rpcpool/picblocks-go/internal/config"
	"github.com/rpcpool/picblocks-go/internal/disasm"
	"github.com/rpcpool/picblocks-go/internal/hasher"
	"github.com/rpcpool/picblocks-go/internal/perrors"
	"github.com/rpcpool/picblocks-go/internal/report"
)

func newCmd_Hash() *cli.Command {
	return &cli.Command{
		Name:      "hash",
		Usage:     "Extract a blockhash report from a disassembly report.",
		ArgsUsage: "<disasm-report.json>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "min-block-size", Value: hasher.DefaultMinBlockSize, Usage: "minimum instruction count for a block to be hashed"},
			&cli.IntFlag{Name: "hash-size", Value: 4, Usage: "block hash truncation width in bytes: 4 or 8 (stored hashes are 32-bit either way)"},
			&cli.StringFlag{Name: "out", Usage: "output .blocks path (default: <basename>.blocks in the current directory)"},
		},
		Action: func(c *cli.Context) error {
			path := c.Args().First()
			if path == "" {
				return perrors.New(perrors.KindUsage, "hash requires a disassembly report path")
			}

			rep, err := disasm.LoadReport(path)
			if err != nil {
				return err
			}

			cfg := config.Default()
			cfg.MinBlockSize = c.Int("min-block-size")
			cfg.HashSize = config.HashSize(c.Int("hash-size"))
			if err := cfg.Validate(); err != nil {
				return err
			}

			h := hasher.New(cfg.HasherOptions()...)
			blocks, err := h.ProcessDisasm(rep)
			if err != nil {
				return err
			}

			out := c.String("out")
			if out == "" {
				base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				out = base + ".blocks"
			}
			if err := report.Save(out, blocks); err != nil {
				return err
			}

			klog.V(2).Infof("hash: wrote %s (%d hashes, %d blocks)", out, blocks.NumHashes, blocks.NumBlocks)
			fmt.Fprintf(os.Stdout, "%s\n", out)
			return nil
		},
	}
}
