package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"go-cane-inspector/internal/container"
	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/factory"
	"go-cane-inspector/internal/render"
	"go-cane-inspector/pkg/models"
)

type analyzeOptions struct {
	model     string
	conf      float64
	format    string
	endpoint  string
	timeout   time.Duration
	withImage bool
	saveImage string
}

func newAnalyzeCommand() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <path|url|azblob://container/blob>",
		Short: "Analyze one leaf image",
		Long: `Load one image, validate it (PNG, JPEG, BMP or TIFF up to 16MB), submit it
to the analysis server and print the report.`,
		Example: `  inspector analyze leaf.jpg
  inspector analyze leaf.jpg --model segmentation --conf 0.5
  inspector analyze https://example.com/leaf.png --format markdown
  inspector analyze azblob://fields/plot-7/leaf.jpg --save-image annotated.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "model type (detection, segmentation)")
	cmd.Flags().Float64Var(&opts.conf, "conf", 0, "confidence threshold in [0,1]")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", fmt.Sprintf("output format (%s)", strings.Join(render.Formats, ", ")))
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "analysis server base URL")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "submission timeout")
	cmd.Flags().BoolVar(&opts.withImage, "image", false, "include the annotated image in json/markdown output")
	cmd.Flags().StringVar(&opts.saveImage, "save-image", "", "write the annotated image to this path")

	return cmd
}

func runAnalyze(cmd *cobra.Command, location string, opts *analyzeOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("endpoint") {
		cfg.Endpoint = opts.endpoint
	}
	if cmd.Flags().Changed("timeout") {
		cfg.SubmitTimeout = opts.timeout
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format = opts.format
	}
	params := cfg.Defaults
	if cmd.Flags().Changed("model") {
		m, err := models.ParseModelType(opts.model)
		if err != nil {
			return err
		}
		params.ModelType = m
	}
	if cmd.Flags().Changed("conf") {
		params.ConfidenceThreshold = opts.conf
	}
	cfg.Defaults = params
	if err := cfg.Validate(); err != nil {
		return err
	}

	formatter, err := render.NewFormatter(cfg.Output.Format, render.Options{
		Color:        cfg.Output.Color,
		IncludeImage: opts.withImage,
	})
	if err != nil {
		return err
	}

	c, err := container.NewContainer(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	loadCtx, cancel := context.WithTimeout(ctx, cfg.ImageFetchTimeout)
	file, err := factory.Load(loadCtx, c.Sources(), location)
	cancel()
	if err != nil {
		return userError(err)
	}

	ctrl := c.Controller()
	if _, err := ctrl.Select(file); err != nil {
		return userError(err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Analyzing %s with %s model (threshold %s)...\n",
		file.Name, params.ModelType.DisplayName(), formatThreshold(params.ConfidenceThreshold))

	if _, err := ctrl.SubmitAndWait(ctx); err != nil {
		return userError(err)
	}

	dm, ok := ctrl.Display()
	if !ok {
		return apperrors.NewInternalError("no result to display", nil)
	}

	out, err := formatter.Format(*dm)
	if err != nil {
		return err
	}
	if _, err := cmd.OutOrStdout().Write(out); err != nil {
		return err
	}

	if opts.saveImage != "" {
		if err := saveDataURI(dm.AnnotatedImage, opts.saveImage); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Annotated image written to %s\n", opts.saveImage)
	}
	return nil
}

func formatThreshold(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// userError replaces err with the message the user should see
func userError(err error) error {
	if appErr, ok := apperrors.As(err); ok {
		return fmt.Errorf("%s", appErr.UserMessage())
	}
	return err
}

// saveDataURI decodes a base64 data URI and writes its payload to path
func saveDataURI(uri, path string) error {
	i := strings.Index(uri, ";base64,")
	if !strings.HasPrefix(uri, "data:") || i < 0 {
		return fmt.Errorf("annotated image is not a base64 data URI")
	}
	data, err := base64.StdEncoding.DecodeString(uri[i+len(";base64,"):])
	if err != nil {
		return fmt.Errorf("failed to decode annotated image: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write annotated image: %w", err)
	}
	return nil
}
