// Package cmd implements bbic-stack's single flat command, mirroring the
// argparse surface of the tool this was distilled from one flag at a time
// rather than splitting into Cobra subcommands, since every flag here
// branches off the same stack-filename/source-files pair.
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
	"github.com/bluebrain/bbic/internal/project"
	"github.com/bluebrain/bbic/internal/pyramid"
	"github.com/bluebrain/bbic/internal/source"
	"github.com/bluebrain/bbic/internal/store"
)

// NewRoot builds bbic-stack's command tree.
func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bbic-stack <container-dir>",
		Short: "create or inspect a bbic tiled image stack",
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
		RunE: runStack,
	}

	pf := cmd.PersistentFlags()
	pf.String("log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	pf.String("log-dir", "", "write diagnostic logs to a rotating per-rank file in this directory instead of stdout")

	f := cmd.Flags()
	f.String("create-from", "", "pattern of source filenames, e.g. foo_%03d_bar.png, or a text file listing image paths")
	f.String("to-images", "", "extract the stack's level as images into the given folder")
	f.String("orientation", "sagittal", "orientation of the input or output stack: coronal|axial|sagittal[-reverse]")
	f.Bool("all-stacks", false, "also generate the two stacks perpendicular to the created one")
	f.String("description", "Imported image stack", "stack description")
	f.Int("tile-size", 256, "tile image size")
	f.Int("level", 0, "resolution level to extract")
	f.Bool("no-lods", false, "do not generate LODs, only level 0")
	f.String("format", "JPEG", "tile image format: PNG|JPEG|TIFF")
	f.String("mat", "Z", "axis for the automatic voxel-based local_to_world matrix: X|Y|Z")
	f.String("slice-positions", "", "text file containing slice positions")
	f.String("interp", "linear", "interpolation for downsampling: nearest|linear")
	f.Int("from", 0, "start writing from this slice index (for resuming)")
	f.Uint8("padding-value", 255, "padding value for extending tiles at the border")

	return cmd
}

func runStack(cmd *cobra.Command, args []string) error {
	start := time.Now()
	containerPath := args[0]

	createFrom, _ := cmd.Flags().GetString("create-from")
	toImages, _ := cmd.Flags().GetString("to-images")
	orientation, _ := cmd.Flags().GetString("orientation")
	allStacks, _ := cmd.Flags().GetBool("all-stacks")
	description, _ := cmd.Flags().GetString("description")
	tileSize, _ := cmd.Flags().GetInt("tile-size")
	level, _ := cmd.Flags().GetInt("level")
	noLODs, _ := cmd.Flags().GetBool("no-lods")
	formatName, _ := cmd.Flags().GetString("format")
	matName, _ := cmd.Flags().GetString("mat")
	slicePositionsFile, _ := cmd.Flags().GetString("slice-positions")
	interpName, _ := cmd.Flags().GetString("interp")
	fromSlice, _ := cmd.Flags().GetInt("from")
	paddingValue, _ := cmd.Flags().GetUint8("padding-value")

	rawOrientation := orientation
	reverse := false
	if strings.HasSuffix(orientation, "-reverse") {
		reverse = true
		orientation = strings.TrimSuffix(orientation, "-reverse")
	}
	stackIndex := axisIndexForOrientation(orientation)

	comm := cluster.NewLocal()

	s, err := store.NewDirStore(containerPath)
	if err != nil {
		return fmt.Errorf("opening container: %w", err)
	}
	container, err := bbic.Open(s)
	if err != nil {
		return fmt.Errorf("opening container: %w", err)
	}

	if createFrom == "" {
		stack, err := container.GetStack(stackIndex)
		if err != nil {
			return fmt.Errorf("the requested stack does not exist in this container: %w", err)
		}
		fmt.Println(stack)

		if toImages != "" {
			lvl, err := stack.GetLevel(level)
			if err != nil {
				return fmt.Errorf("the requested level does not exist in this stack: %w", err)
			}
			format, err := codec.ParseFormat(formatName)
			if err != nil {
				return err
			}
			fmt.Printf("Exporting to images: %s\n", lvl)
			if err := lvl.ExtractSlices(toImages, format); err != nil {
				return err
			}
		} else {
			printStructure(stack)
		}
	} else {
		imageSource, err := source.NewFileStack(createFrom)
		if err != nil {
			return fmt.Errorf("opening source files: %w", err)
		}
		if err := imageSource.DetermineSize(comm); err != nil {
			return fmt.Errorf("determining source dimensions: %w", err)
		}
		width, height, numSlices := imageSource.Dimensions()

		axis, ok := bbic.ParseAxis(matName)
		if !ok {
			return fmt.Errorf("unsupported --mat axis %q", matName)
		}
		interp, err := codec.ParseInterp(interpName)
		if err != nil {
			return err
		}

		stack, err := container.CreateStack(stackIndex)
		if err != nil {
			return fmt.Errorf("creating stack: %w", err)
		}
		stack.Width, stack.Height, stack.NumSlices = width, height, numSlices
		stack.TileSize = tileSize
		format, err := codec.ParseFormat(formatName)
		if err != nil {
			return err
		}
		stack.Format = format.String()
		stack.Description = description
		stack.OriginalFilenames = createFrom
		stack.SetAxis(axis)
		stack.Orientation = rawOrientation
		if slicePositionsFile != "" {
			data, err := os.ReadFile(slicePositionsFile)
			if err != nil {
				return fmt.Errorf("reading slice positions file: %w", err)
			}
			stack.SlicePositions = string(data)
		}

		generateLODs := !noLODs
		if err := (pyramid.Builder{}).Write(comm, imageSource, stack, pyramid.Config{
			PaddingValue: paddingValue,
			Interp:       interp,
			StartOffset:  fromSlice,
			GenerateLODs: generateLODs,
			Reverse:      reverse,
			Concurrency:  1,
		}); err != nil {
			return fmt.Errorf("writing stack: %w", err)
		}

		if allStacks {
			left, upper, err := (project.Projector{}).MakeAllStacks(comm, container, stack, stackIndex, project.Config{
				Interp:       interp,
				GenerateLODs: generateLODs,
			})
			if err != nil {
				return fmt.Errorf("making perpendicular stacks: %w", err)
			}
			fmt.Println(left)
			fmt.Println(upper)
		}
	}

	if comm.Rank() == 0 {
		fmt.Printf("--- Execution time: %s ---\n", time.Since(start).Round(time.Millisecond))
	}
	return nil
}

// axisIndexForOrientation maps an orientation name to the stack index
// convention: 0=coronal, 1=axial, 2=sagittal (the default).
func axisIndexForOrientation(orientation string) int {
	switch orientation {
	case "coronal":
		return 0
	case "axial":
		return 1
	default:
		return 2
	}
}

// printStructure prints every level of stack, mirroring Stack.print_structure
// which is just a loop over get_level(l) -- too thin to deserve library API.
func printStructure(stack *bbic.Stack) {
	for l := 0; l < stack.NumLevels; l++ {
		lvl, err := stack.GetLevel(l)
		if err != nil {
			fmt.Printf("level %d: error: %v\n", l, err)
			continue
		}
		fmt.Println(lvl)
	}
}
