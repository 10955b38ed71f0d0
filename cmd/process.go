package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/khangpv/imgprep/internal/models"
	"github.com/khangpv/imgprep/internal/service"
	"github.com/spf13/cobra"
)

func newProcessCmd() *cobra.Command {
	var maxDimension int
	var outputsJSON string

	cmd := &cobra.Command{
		Use:   "process <input> [output]",
		Short: "Convert and resize an image",
		Long: `Decode the input image (JPEG, PNG, GIF, WebP, TIFF, BMP, HEIC),
correct its orientation and re-encode it as JPEG, optionally bounded
by a maximum dimension. Multiple outputs can be produced in one run
with --outputs.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outputs, err := resolveOutputs(args, outputsJSON, maxDimension)
			if err != nil {
				return err
			}

			processor := service.NewImageProcessor(service.DefaultQuality)
			if err := processor.ProcessFile(args[0], outputs); err != nil {
				return err
			}

			for _, out := range outputs {
				fmt.Fprintf(cmd.OutOrStdout(), "Successfully processed: %s\n", out.Path)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDimension, "max_dimension", 0, "maximum width or height for the output image")
	cmd.Flags().StringVar(&outputsJSON, "outputs", "", `JSON array of outputs, e.g. [{"path":"out.jpg","height":1200}]`)

	return cmd
}

// resolveOutputs reconciles the legacy positional output with the --outputs
// flag. The flag wins when both are present.
func resolveOutputs(args []string, outputsJSON string, maxDimension int) ([]models.OutputSpec, error) {
	if outputsJSON != "" {
		var outputs []models.OutputSpec
		if err := json.Unmarshal([]byte(outputsJSON), &outputs); err != nil {
			return nil, fmt.Errorf("invalid --outputs value: %w", err)
		}
		if len(outputs) == 0 {
			return nil, fmt.Errorf("--outputs must contain at least one entry")
		}
		for _, out := range outputs {
			if out.Path == "" {
				return nil, fmt.Errorf("every --outputs entry requires a path")
			}
			if out.Height < 0 {
				return nil, fmt.Errorf("output height must be a positive integer")
			}
		}
		return outputs, nil
	}

	if len(args) < 2 {
		return nil, fmt.Errorf("output path required when --outputs is not given")
	}
	if maxDimension < 0 {
		return nil, fmt.Errorf("max_dimension must be a positive integer")
	}
	return []models.OutputSpec{{Path: args[1], Height: maxDimension}}, nil
}
