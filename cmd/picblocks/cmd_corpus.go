package main

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	"github.com/rpcpool/picblocks-go/internal/config"
	"github.com/rpcpool/picblocks-go/internal/disasm"
	"github.com/rpcpool/picblocks-go/internal/hasher"
	"github.com/rpcpool/picblocks-go/internal/perrors"
	"github.com/rpcpool/picblocks-go/internal/report"
)

// newCmd_Corpus supplements the core CLI surface with the batch-crawling
// convenience of original_source/hash_malpedia.py: walk a <family>/<sample>
// corpus tree and hash every sample found, inferring family (when the report
// names none) from the first path component under the corpus root. It is
// additive, not a core module: it only
// composes hasher and filesystem walking.
func newCmd_Corpus() *cli.Command {
	return &cli.Command{
		Name:  "corpus",
		Usage: "Batch-hash an on-disk malware corpus tree.",
		Subcommands: []*cli.Command{
			newCmd_CorpusHash(),
		},
	}
}

func newCmd_CorpusHash() *cli.Command {
	return &cli.Command{
		Name:      "hash",
		Usage:     "Walk a <family>/<sample> corpus tree, writing one .blocks file per sample.",
		ArgsUsage: "<corpus-root>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out-dir", Value: ".", Usage: "directory to write .blocks files into"},
			&cli.IntFlag{Name: "min-block-size", Value: hasher.DefaultMinBlockSize, Usage: "minimum instruction count for a block to be hashed"},
			&cli.IntFlag{Name: "hash-size", Value: 4, Usage: "block hash truncation width in bytes: 4 or 8 (stored hashes are 32-bit either way)"},
			&cli.IntFlag{Name: "workers", Usage: "parallel hashers (default: runtime.NumCPU())"},
		},
		Action: func(c *cli.Context) error {
			root := c.Args().First()
			if root == "" {
				return perrors.New(perrors.KindUsage, "corpus hash requires a corpus root directory")
			}
			outDir := c.String("out-dir")
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return perrors.Wrap(perrors.KindIO, err, "create out-dir")
			}

			cfg := config.Default()
			cfg.MinBlockSize = c.Int("min-block-size")
			cfg.HashSize = config.HashSize(c.Int("hash-size"))
			cfg.Workers = c.Int("workers")
			if err := cfg.Validate(); err != nil {
				return err
			}

			paths, err := walkCorpus(root)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				klog.Warningf("corpus hash: no candidate files found under %s", root)
				return nil
			}

			bar := progressbar.Default(int64(len(paths)), "hashing corpus")
			defer bar.Close()

			workers := cfg.Workers
			if workers <= 0 {
				workers = runtime.NumCPU()
			}

			var hashed, skipped atomic.Int64
			g, gctx := errgroup.WithContext(c.Context)
			g.SetLimit(workers)
			for _, p := range paths {
				p := p
				g.Go(func() error {
					if err := hashCorpusSample(gctx, cfg, root, p, outDir); err != nil {
						klog.V(2).Infof("corpus hash: skipping %s: %v", p, err)
						skipped.Add(1)
					} else {
						hashed.Add(1)
					}
					_ = bar.Add(1)
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			klog.Infof("corpus hash: wrote %s reports, skipped %s", humanize.Comma(hashed.Load()), humanize.Comma(skipped.Load()))
			return nil
		},
	}
}

// walkCorpus collects every regular file under root, per
// hash_malpedia.py's os.walk(malpedia_path) sweep.
func walkCorpus(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, perrors.Wrap(perrors.KindIO, err, "walk corpus root")
	}
	return paths, nil
}

// familyFromPath infers the family name as the first path component under
// root, matching hash_malpedia.py's getFamilyName convention of one
// top-level subdirectory per family.
func familyFromPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return ""
	}
	parts := strings.Split(rel, string(filepath.Separator))
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// hashCorpusSample hashes one corpus file and writes its .blocks report.
// Only files that are themselves a disassembly-report JSON can be processed
// without a real disassembler collaborator; raw binaries fail with
// KindDisassemblyFailed, consistent with disasm.NullDisassembler.
func hashCorpusSample(ctx context.Context, cfg config.Config, root, path, outDir string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rep, err := disasm.LoadReport(path)
	if err != nil {
		return perrors.Wrap(perrors.KindDisassemblyFailed, err, "no disassembler available for raw binary")
	}
	if rep.Family == "" {
		rep.Family = familyFromPath(root, path)
	}

	h := hasher.New(cfg.HasherOptions()...)
	blocks, err := h.ProcessDisasm(rep)
	if err != nil {
		return err
	}

	out := filepath.Join(outDir, filepath.Base(path)+".blocks")
	return report.Save(out, blocks)
}
