package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/rpcpool/picblocks-go/internal/config"
	"github.com/rpcpool/picblocks-go/internal/disasm"
	"github.com/rpcpool/picblocks-go/internal/hasher"
	"github.com/rpcpool/picblocks-go/internal/index"
	"github.com/rpcpool/picblocks-go/internal/matcher"
	"github.com/rpcpool/picblocks-go/internal/perrors"
	"github.com/rpcpool/picblocks-go/internal/report"
)

func newCmd_Match() *cli.Command {
	return &cli.Command{
		Name:      "match",
		Usage:     "Score a sample against a corpus database.",
		ArgsUsage: "<blocks-dir> <target>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "db", Value: defaultDBPath, Usage: "database path; built from blocks-dir if missing"},
			&cli.BoolFlag{Name: "verify-checksum", Usage: "recompute and print the database's structural checksum before matching"},
			&cli.IntFlag{Name: "top", Value: 10, Usage: "number of ranked families to print"},
			&cli.IntFlag{Name: "workers", Usage: "parallel .blocks parsers when building the database on demand (default: runtime.NumCPU())"},
			&cli.IntFlag{Name: "min-block-size", Value: hasher.DefaultMinBlockSize, Usage: "minimum instruction count for a block to be hashed, when target is a raw disassembly report"},
			&cli.IntFlag{Name: "hash-size", Value: 4, Usage: "block hash truncation width in bytes: 4 or 8 (stored hashes are 32-bit either way), when target is a raw disassembly report"},
		},
		Action: func(c *cli.Context) error {
			blocksDir := c.Args().Get(0)
			target := c.Args().Get(1)
			if blocksDir == "" || target == "" {
				return perrors.New(perrors.KindUsage, "match requires <blocks-dir> <target>")
			}

			cfg := config.Default()
			cfg.DBPath = c.String("db")
			cfg.Workers = c.Int("workers")
			cfg.MinBlockSize = c.Int("min-block-size")
			cfg.HashSize = config.HashSize(c.Int("hash-size"))
			if err := cfg.Validate(); err != nil {
				return err
			}

			idx, err := loadOrBuildIndex(c, cfg, blocksDir)
			if err != nil {
				return err
			}

			if c.Bool("verify-checksum") {
				fmt.Fprintf(os.Stdout, "db checksum: %016x\n", idx.Checksum())
			}

			rep, err := loadQueryReport(target, cfg)
			if err != nil {
				return err
			}

			m := matcher.New(idx)
			out, _, err := m.MatchContext(c.Context, rep)
			if err != nil {
				return err
			}

			printMatchReport(out, c.Int("top"))
			return nil
		},
	}
}

func loadOrBuildIndex(c *cli.Context, cfg config.Config, blocksDir string) (*index.Index, error) {
	if idx, err := loadIndexAnyFormat(cfg.DBPath); err == nil {
		return idx, nil
	}
	klog.V(2).Infof("match: no usable database at %s, building from %s", cfg.DBPath, blocksDir)
	idx, err := index.BuildFromDir(c.Context, blocksDir, cfg.Workers)
	if err != nil {
		return nil, err
	}
	if err := idx.Save(cfg.DBPath); err != nil {
		return nil, err
	}
	return idx, nil
}

// loadQueryReport accepts target either as an already-hashed blockhash
// report or as a disassembly report JSON, which is hashed here. Anything
// else, such as a raw binary, fails with KindDisassemblyFailed, since this
// repo ships no disassembler.
func loadQueryReport(target string, cfg config.Config) (*report.BlockhashReport, error) {
	if strings.HasSuffix(target, ".blocks") {
		return report.Load(target)
	}
	// A disassembly report also decodes as a BlockhashReport (unknown fields
	// are ignored), but it carries no blockhashes map.
	if rep, err := report.Load(target); err == nil && rep.Blockhashes != nil {
		return rep, nil
	}
	disRep, err := disasm.LoadReport(target)
	if err != nil {
		return nil, perrors.Wrap(perrors.KindDisassemblyFailed, err, "target is neither a blockhash report nor a disassembly report")
	}
	return hasher.New(cfg.HasherOptions()...).ProcessDisasm(disRep)
}

func printMatchReport(out *matcher.MatchReport, top int) {
	fmt.Fprintf(os.Stdout, "input: %s (sha256 %s, %d hashes, %d unmatched blocks, %d unmatched score)\n",
		out.InputFilename, out.SHA256, out.InputBlockHashes, out.UnmatchedBlocks, out.UnmatchedScore)

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "#\tfamily\tdirect%\tnonlib%\tfreq%\tuniq%")
	n := len(out.FamilyMatches)
	if top > 0 && top < n {
		n = top
	}
	for _, fm := range out.FamilyMatches[:n] {
		fmt.Fprintf(w, "%d\t%s\t%.2f\t%.2f\t%.2f\t%.2f\n", fm.Index, fm.Family, fm.DirectPerc, fm.NonlibPerc, fm.FreqPerc, fm.UniqPerc)
	}
	w.Flush()
}
