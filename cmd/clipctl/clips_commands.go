package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/api"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <path>",
		Short: "Copy a video file into the library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			var clip api.ClipResponse
			if err := ctx.client().postJSON(cmd.Context(),
				"/clips", api.ImportRequest{Path: path}, &clip); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "imported %s  %s (%.1fs, %dx%d)\n",
				shortID(clip.ID), clip.Filename, clip.DurationSeconds, clip.Width, clip.Height)
			return nil
		},
	}
}

func newClipsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clips",
		Short: "List the clip library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.ClipsResponse
			if err := ctx.client().getJSON(cmd.Context(), "/clips", &resp); err != nil {
				return err
			}
			if len(resp.Clips) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "library is empty")
				return nil
			}

			rows := make([][]string, 0, len(resp.Clips))
			for _, c := range resp.Clips {
				rows = append(rows, []string{
					shortID(c.ID),
					c.Filename,
					c.Kind,
					fmt.Sprintf("%.1fs", c.DurationSeconds),
					fmt.Sprintf("%dx%d", c.Width, c.Height),
					byteSize(c.SizeBytes),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "NAME", "KIND", "DURATION", "RESOLUTION", "SIZE"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight},
			))
			return nil
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <clip-id>",
		Short: "Delete a clip and its derived files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ctx.client()
			id, err := c.resolveClipID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := c.delete(cmd.Context(), "/clips/"+id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", shortID(id))
			return nil
		},
	}
}

func newProbeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <path>",
		Short: "Read a media file's metadata without importing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			var meta api.ProbeResponse
			if err := ctx.client().postJSON(cmd.Context(),
				"/probe", api.ProbeRequest{Path: path}, &meta); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			kvLine(out, "Duration", fmt.Sprintf("%.3fs", meta.DurationSeconds))
			kvLine(out, "Resolution", fmt.Sprintf("%dx%d", meta.Width, meta.Height))
			kvLine(out, "Codec", meta.Codec)
			kvLine(out, "Frame rate", fmt.Sprintf("%.2f fps", meta.FrameRate))
			kvLine(out, "Bit rate", fmt.Sprintf("%d", meta.BitRate))
			kvLine(out, "Size", byteSize(meta.SizeBytes))
			return nil
		},
	}
}
