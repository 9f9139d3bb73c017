// Package cmd implements bbic-volume's single flat command, one flag per
// argparse argument of the tool this was distilled from.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bluebrain/bbic/internal/bbic"
	"github.com/bluebrain/bbic/internal/cluster"
	"github.com/bluebrain/bbic/internal/codec"
	"github.com/bluebrain/bbic/internal/logging"
	"github.com/bluebrain/bbic/internal/source"
	"github.com/bluebrain/bbic/internal/store"
	"github.com/bluebrain/bbic/internal/volumebuild"
)

// NewRoot builds bbic-volume's command tree.
func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bbic-volume <container-dir>",
		Short: "create or inspect a bbic 3D block volume",
		Args:  cobra.ExactArgs(1),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logLevel, _ := cmd.Flags().GetString("log-level")
			var level slog.Level
			if err := level.UnmarshalText([]byte(strings.ToUpper(logLevel))); err != nil {
				level = slog.LevelInfo
			}
			if logDir, _ := cmd.Flags().GetString("log-dir"); logDir != "" {
				// This CLI always runs as a single rank (see cluster.NewLocal below);
				// rank 0 here only, the per-rank naming matters once a multi-rank
				// launcher shares the same log directory.
				slog.SetDefault(cluster.RankLogger(logDir, 0, level))
			} else {
				slog.SetDefault(logging.Logger(os.Stdout, false, level))
			}
		},
		RunE: runVolume,
	}

	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-dir", "", "write diagnostic logs to a rotating per-rank file in this directory instead of stdout")

	f := cmd.Flags()
	f.Int("volume", 0, "volume index")
	f.Int("level", 0, "resolution level (LOD) to extract")
	f.String("to-images", "", "extract the volume's LOD as a stack of images into the given folder")
	f.String("create-from", "", "pattern (or list file) of source slice images to fill the volume from")
	f.String("format", "png", "output format for generated images")
	f.Int("axis", 0, "axis along which to take slices: 0, 1 or 2")
	f.Int("block-size", 64, "block size")

	return cmd
}

func runVolume(cmd *cobra.Command, args []string) error {
	start := time.Now()
	containerPath := args[0]

	volumeIndex, _ := cmd.Flags().GetInt("volume")
	level, _ := cmd.Flags().GetInt("level")
	toImages, _ := cmd.Flags().GetString("to-images")
	createFrom, _ := cmd.Flags().GetString("create-from")
	formatName, _ := cmd.Flags().GetString("format")
	axis, _ := cmd.Flags().GetInt("axis")
	blockSize, _ := cmd.Flags().GetInt("block-size")

	if axis < 0 || axis > 2 {
		return fmt.Errorf("--axis must be 0, 1 or 2, got %d", axis)
	}

	comm := cluster.NewLocal()

	s, err := store.NewDirStore(containerPath)
	if err != nil {
		return fmt.Errorf("opening container: %w", err)
	}
	container, err := bbic.Open(s)
	if err != nil {
		return fmt.Errorf("opening container: %w", err)
	}

	if createFrom != "" {
		imageSource, err := source.NewFileStack(createFrom)
		if err != nil {
			return fmt.Errorf("opening source files: %w", err)
		}
		if err := imageSource.DetermineSize(comm); err != nil {
			return fmt.Errorf("determining source dimensions: %w", err)
		}
		blockSource := source.NewSliceToBlocks(imageSource, blockSize)

		volume, err := container.CreateVolume(volumeIndex)
		if err != nil {
			return fmt.Errorf("creating volume: %w", err)
		}
		if err := (volumebuild.Filler{}).Fill(volume, blockSource, blockSize); err != nil {
			return fmt.Errorf("filling volume: %w", err)
		}
	} else {
		volume, err := container.GetVolume(volumeIndex)
		if err != nil {
			return fmt.Errorf("the requested volume does not exist in this container: %w", err)
		}
		fmt.Println(volume)
		fmt.Println("detailed structure:")
		printStructure(volume)

		if toImages != "" {
			lod, err := volume.GetLOD(level)
			if err != nil {
				return fmt.Errorf("the requested level does not exist in this volume: %w", err)
			}
			format, err := codec.ParseFormat(formatName)
			if err != nil {
				return err
			}
			fmt.Printf("Exporting to images: %s\n", lod)
			if err := lod.ExtractSlices(toImages, format, axis); err != nil {
				return err
			}
		}
	}

	if comm.Rank() == 0 {
		fmt.Printf("--- Execution time: %s ---\n", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// printStructure prints every LOD of volume, mirroring Volume.print_structure
// which is just a loop over get_lod(l) -- too thin to deserve library API.
func printStructure(volume *bbic.Volume) {
	for l := 0; l < volume.LODCount(); l++ {
		lod, err := volume.GetLOD(l)
		if err != nil {
			fmt.Printf("lod %d: error: %v\n", l, err)
			continue
		}
		fmt.Println(lod)
	}
}
