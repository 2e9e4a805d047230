package main

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/seqsense/pcgol/pc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"pcdpublisher/pkg/logger"
	"pcdpublisher/pkg/pcd"
)

var cfg struct {
	in  string
	out string
}

var log = logger.New(os.Stderr, zapcore.InfoLevel)

// updatepcd rewrites PCD files (including binary_compressed ones) as plain
// binary x/y/z files that the publisher decodes without loss.
var cmd = &cobra.Command{
	Use:   "updatepcd",
	Short: "Normalize PCD files to uncompressed binary x y z",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if cfg.out == "" {
			cfg.out = cfg.in
		}
		return TransDirPcd(cfg.in, cfg.out)
	},
}

func init() {
	cmd.PersistentFlags().StringVarP(&cfg.in, "in", "i", "", "input dir")
	cmd.PersistentFlags().StringVarP(&cfg.out, "out", "o", "", "output dir")

	cmd.MarkPersistentFlagRequired("in")
}

func main() {
	defer log.Sync()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// TransDirPcd normalizes every .pcd file in sourceDir into outDir.
func TransDirPcd(sourceDir, outDir string) error {
	ds, err := os.ReadDir(sourceDir)
	if err != nil {
		return err
	}
	for _, d := range ds {
		fn := d.Name()
		if filepath.Ext(fn) != ".pcd" {
			continue
		}
		src := filepath.Join(sourceDir, fn)
		out := filepath.Join(outDir, fn)
		n, err := NormalizeFile(src, out)
		if err != nil {
			return errors.Wrapf(err, "normalize %s", src)
		}
		log.Info("TransPcd", zap.String("src", src), zap.String("dst", out), zap.Int("points", n))
	}
	return nil
}

// NormalizeFile decodes src with pcgol and writes it to dst as binary x y z.
// src and dst may be the same path.
func NormalizeFile(src, dst string) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	pcf, err := pc.Unmarshal(in)
	in.Close()
	if err != nil {
		return 0, err
	}

	ir, iw := io.Pipe()
	go func() {
		iw.CloseWithError(pc.Marshal(pcf, iw))
	}()
	pp, err := pcd.DecodePcd(ir)
	ir.Close()
	if err != nil {
		return 0, err
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	if err := pp.Encode(out); err != nil {
		out.Close()
		return 0, err
	}
	return pp.Len(), out.Close()
}
