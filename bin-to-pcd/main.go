package main

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

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

var cmd = &cobra.Command{
	Use:   "bin-to-pcd",
	Short: "Convert KITTI .bin scans to binary PCD files",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if strings.HasSuffix(cfg.in, ".zip") {
			return tranZipFile()
		}
		return tranBinFiles()
	},
}

func init() {
	cmd.PersistentFlags().StringVarP(&cfg.in, "in", "i", "", "input zipFile or dir")
	cmd.PersistentFlags().StringVarP(&cfg.out, "out", "o", "", "output zipFile or dir")

	cmd.MarkPersistentFlagRequired("in")
}

func main() {
	defer log.Sync()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func tranBinFiles() (err error) {
	if cfg.out == "" {
		cfg.out = cfg.in
	}
	return TransDirBinToPcd(cfg.in, cfg.out)
}

func tranZipFile() (err error) {
	if cfg.out == "" {
		base := filepath.Base(cfg.in)
		ext := filepath.Ext(base)
		cfg.out = strings.TrimSuffix(base, ext) + "-pcd" + ext
	}
	if cfg.out == cfg.in {
		return errors.New("input file can not sample as output file")
	}
	return TransZipBinToPcd(cfg.in, cfg.out)
}

// TransZipBinToPcd copies the archive at in to out, converting every .bin
// entry to a .pcd entry and copying the rest untouched.
func TransZipBinToPcd(in, out string) (err error) {
	outFile, err := os.Create(out)
	if err != nil {
		return err
	}
	defer outFile.Close()
	outZip := zip.NewWriter(outFile)
	defer func() {
		if cerr := outZip.Close(); err == nil {
			err = cerr
		}
	}()
	inZip, err := zip.OpenReader(in)
	if err != nil {
		return err
	}
	defer inZip.Close()

	for _, f := range inZip.File {
		if filepath.Ext(f.Name) == ".bin" {
			if err = transZipEntry(outZip, f); err != nil {
				return err
			}
			continue
		}
		w, err := outZip.CreateRaw(&f.FileHeader)
		if err != nil {
			return err
		}
		r, err := f.OpenRaw()
		if err != nil {
			return err
		}
		if _, err = io.Copy(w, r); err != nil {
			return err
		}
	}
	return nil
}

func transZipEntry(outZip *zip.Writer, f *zip.File) error {
	binr, err := f.Open()
	if err != nil {
		return err
	}
	defer binr.Close()
	bin, err := pcd.DecodeBin(binr)
	if err != nil {
		return err
	}
	newName := strings.TrimSuffix(f.Name, ".bin") + ".pcd"
	w, err := outZip.Create(newName)
	if err != nil {
		return err
	}
	if err := bin.ToPcd().Encode(w); err != nil {
		return err
	}
	log.Info("TransBinToPcd", zap.String("src", f.Name), zap.String("dst", newName), zap.Int("points", bin.Len()))
	return nil
}

// TransDirBinToPcd converts every .bin file in sourceDir into a .pcd file in outDir.
func TransDirBinToPcd(sourceDir, outDir string) error {
	ds, err := os.ReadDir(sourceDir)
	if err != nil {
		return err
	}
	dec := pcd.NewDecoder(log)
	for _, d := range ds {
		fn := d.Name()
		if filepath.Ext(fn) != ".bin" {
			continue
		}
		src := filepath.Join(sourceDir, fn)
		out := filepath.Join(outDir, strings.TrimSuffix(fn, ".bin")+".pcd")
		bin, err := dec.DecodeBinFile(src)
		if err != nil {
			return err
		}
		if err := writePcd(out, bin.ToPcd()); err != nil {
			return err
		}
		log.Info("TransBinToPcd", zap.String("src", src), zap.String("dst", out), zap.Int("points", bin.Len()))
	}
	return nil
}

func writePcd(path string, p *pcd.Pcd) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.Encode(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
