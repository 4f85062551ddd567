package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/api"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var out string
	var resolution string
	var follow bool

	cmd := &cobra.Command{
		Use:   "export --out PATH [--resolution R] [--follow] <clip-or-id[:start-end]>...",
		Short: "Render clips into a single video",
		Long: "Each argument is a clip id or a video file path, optionally " +
			"suffixed with a trim range in seconds, e.g. intro.mp4:0-5.5",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ctx.client()
			clips := make([]api.ExportClipRequest, 0, len(args))
			for _, arg := range args {
				clip, err := parseClipArg(arg)
				if err != nil {
					return err
				}
				if clip.ClipID != "" {
					if clip.ClipID, err = c.resolveClipID(cmd.Context(), clip.ClipID); err != nil {
						return err
					}
				}
				clips = append(clips, clip)
			}

			outputPath, err := filepath.Abs(out)
			if err != nil {
				return err
			}

			var job api.JobResponse
			if err := c.postJSON(cmd.Context(), "/exports", api.ExportRequest{
				Clips:      clips,
				Resolution: resolution,
				OutputPath: outputPath,
			}, &job); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "queued export %s (%d clip(s) -> %s)\n",
				shortID(job.ID), job.ClipCount, job.OutputPath)
			if !follow {
				fmt.Fprintf(w, "  follow with: clipctl show %s\n", shortID(job.ID))
				return nil
			}

			renderer := newProgressRenderer(w)
			output, err := c.followJob(cmd.Context(), job.ID, renderer.update)
			renderer.finish()
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			fmt.Fprintf(w, "wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file path (.mp4)")
	cmd.Flags().StringVarP(&resolution, "resolution", "r", "720p", "source|480p|720p|1080p|4K")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream progress until the export finishes")
	cmd.MarkFlagRequired("out")

	return cmd
}

// parseClipArg splits "ref[:start-end]" and classifies ref as a file path
// or a clip id. Anything that exists on disk or carries a path separator
// is treated as a path and sent absolute.
func parseClipArg(arg string) (api.ExportClipRequest, error) {
	ref := arg
	var start, end float64
	if i := strings.LastIndex(arg, ":"); i > 0 {
		if s, e, ok := parseTrimRange(arg[i+1:]); ok {
			ref = arg[:i]
			start, end = s, e
		}
	}
	if ref == "" {
		return api.ExportClipRequest{}, fmt.Errorf("empty clip reference in %q", arg)
	}

	if strings.ContainsAny(ref, `/\`) || fileExists(ref) {
		abs, err := filepath.Abs(ref)
		if err != nil {
			return api.ExportClipRequest{}, err
		}
		return api.ExportClipRequest{Path: abs, Start: start, End: end}, nil
	}
	return api.ExportClipRequest{ClipID: ref, Start: start, End: end}, nil
}

func parseTrimRange(s string) (float64, float64, bool) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return 0, 0, false
	}
	start, err1 := strconv.ParseFloat(a, 64)
	end, err2 := strconv.ParseFloat(b, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, end, true
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List export jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.JobsResponse
			if err := ctx.client().getJSON(cmd.Context(), "/jobs", &resp); err != nil {
				return err
			}
			if len(resp.Jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no export jobs")
				return nil
			}

			rows := make([][]string, 0, len(resp.Jobs))
			for _, j := range resp.Jobs {
				rows = append(rows, []string{
					shortID(j.ID),
					j.Status,
					fmt.Sprintf("%d%%", j.Progress),
					fmt.Sprintf("%d", j.ClipCount),
					j.Resolution,
					j.OutputPath,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "STATUS", "PROGRESS", "CLIPS", "RESOLUTION", "OUTPUT"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ctx.client()
			id, err := c.resolveJobID(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			var job api.JobResponse
			if err := c.getJSON(cmd.Context(), "/jobs/"+id, &job); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			kvLine(out, "Job", job.ID)
			kvLine(out, "Status", job.Status)
			kvLine(out, "Progress", fmt.Sprintf("%d%%", job.Progress))
			kvLine(out, "Clips", fmt.Sprintf("%d", job.ClipCount))
			kvLine(out, "Resolution", job.Resolution)
			kvLine(out, "Output", job.OutputPath)
			if job.Error != "" {
				kvLine(out, "Error", colorize(out, ansiRed, job.Error))
			}
			kvLine(out, "Created", job.CreatedAt)
			kvLine(out, "Updated", job.UpdatedAt)
			return nil
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a queued or running export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ctx.client()
			id, err := c.resolveJobID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := c.delete(cmd.Context(), "/jobs/"+id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "canceled %s\n", shortID(id))
			return nil
		},
	}
}
