// Command fatutil mounts a FAT32 image file and performs simple read/write
// operations against it from the command line.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	fat "github.com/soypat/fat32"
)

var (
	blockSize int
	logger    *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fatutil",
		Short:         "Inspect and manipulate FAT32 filesystem images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			logger, err = zap.NewDevelopment()
			return err
		},
	}
	root.PersistentFlags().IntVar(&blockSize, "block-size", 512, "device block size in bytes")
	root.AddCommand(newLsCmd(), newCatCmd(), newMkdirCmd(), newRmCmd(), newInfoCmd())
	return root
}

func mountImage(path string, mode fat.Mode) (*fat.FS, *os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}
	dev := &fileBlockDevice{f: f, blockSize: blockSize}
	var fsys fat.FS
	fsys.SetLogger(slog.Default())
	if err := fsys.Mount(dev, blockSize, mode); err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("mount %s: %w", path, err)
	}
	return &fsys, f, nil
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <image> [path]",
		Short: "List directory contents",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/"
			if len(args) == 2 {
				path = args[1]
			}
			fsys, f, err := mountImage(args[0], fat.ModeRead)
			if err != nil {
				return err
			}
			defer f.Close()
			var dp fat.Dir
			if err := fsys.OpenDir(&dp, path); err != nil {
				return fmt.Errorf("opendir %s: %w", path, err)
			}
			return dp.ForEachFile(func(fi *fat.FileInfo) error {
				kind := "-"
				if fi.IsDir() {
					kind = "d"
				}
				fmt.Printf("%s %10s %s %s\n", kind, humanize.Bytes(uint64(fi.Size())), fi.ModTime().Format("2006-01-02 15:04"), fi.Name())
				return nil
			})
		},
	}
}

func newCatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <image> <path>",
		Short: "Print file contents to stdout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, f, err := mountImage(args[0], fat.ModeRead)
			if err != nil {
				return err
			}
			defer f.Close()
			var fp fat.File
			if err := fsys.OpenFile(&fp, args[1], fat.ModeRead); err != nil {
				return fmt.Errorf("open %s: %w", args[1], err)
			}
			defer fp.Close()
			_, err = io.Copy(os.Stdout, &fp)
			return err
		},
	}
}

func newMkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <image> <path>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, f, err := mountImage(args[0], fat.ModeRW)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := fsys.Mkdir(args[1]); err != nil {
				return fmt.Errorf("mkdir %s: %w", args[1], err)
			}
			logger.Info("created directory", zap.String("path", args[1]))
			return nil
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <image> <path>",
		Short: "Remove a file or empty directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, f, err := mountImage(args[0], fat.ModeRW)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := fsys.Remove(args[1]); err != nil {
				return fmt.Errorf("remove %s: %w", args[1], err)
			}
			logger.Info("removed", zap.String("path", args[1]))
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <image>",
		Short: "Print volume label and free space",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, f, err := mountImage(args[0], fat.ModeRead)
			if err != nil {
				return err
			}
			defer f.Close()
			label, err := fsys.VolumeLabel()
			if err != nil {
				return err
			}
			free, total, err := fsys.FreeClusters()
			if err != nil {
				return err
			}
			clusterSize := uint64(fsys.ClusterSize())
			fmt.Printf("label:      %s\n", label)
			fmt.Printf("free space: %s\n", humanize.Bytes(uint64(free)*clusterSize))
			fmt.Printf("total size: %s\n", humanize.Bytes(uint64(total)*clusterSize))
			return nil
		},
	}
}

// fileBlockDevice adapts an *os.File to the fat.BlockDevice interface.
type fileBlockDevice struct {
	f         *os.File
	blockSize int
}

func (d *fileBlockDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	return d.f.ReadAt(dst, startBlock*int64(d.blockSize))
}

func (d *fileBlockDevice) WriteBlocks(data []byte, startBlock int64) (int, error) {
	return d.f.WriteAt(data, startBlock*int64(d.blockSize))
}

func (d *fileBlockDevice) EraseBlocks(startBlock, numBlocks int64) error {
	zeros := make([]byte, d.blockSize)
	for i := int64(0); i < numBlocks; i++ {
		if _, err := d.f.WriteAt(zeros, (startBlock+i)*int64(d.blockSize)); err != nil {
			return err
		}
	}
	return nil
}
