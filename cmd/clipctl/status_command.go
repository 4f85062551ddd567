package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipforge/clipforge-agent/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show agent state and toolchain readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ctx.client()
			out := cmd.OutOrStdout()

			var health api.HealthResponse
			if err := c.getJSON(cmd.Context(), "/health", &health); err != nil {
				return fmt.Errorf("agent unreachable at %s: %w", c.baseURL, err)
			}

			var status api.StatusResponse
			if err := c.getJSON(cmd.Context(), "/status", &status); err != nil {
				return err
			}

			state := status.State
			if state == "exporting" && status.ActiveJob != nil {
				state = fmt.Sprintf("exporting %s (%d%%)",
					shortID(status.ActiveJob.ID), status.ActiveJob.Progress)
			}

			kvLine(out, "Agent", fmt.Sprintf("v%s, up %ds", health.Version, health.UptimeS))
			kvLine(out, "State", state)
			kvLine(out, "Clips", fmt.Sprintf("%d", status.ClipsCount))
			kvLine(out, "Jobs queued", fmt.Sprintf("%d", status.JobsQueued))

			switch {
			case status.Tools == nil:
				kvLine(out, "FFmpeg", colorize(out, ansiYellow, "not probed yet"))
			case status.Tools.Ready:
				version := status.Tools.Version
				if version == "" {
					version = "unknown version"
				}
				kvLine(out, "FFmpeg", colorize(out, ansiGreen, version)+" ("+status.Tools.FFmpeg+")")
			default:
				kvLine(out, "FFmpeg", colorize(out, ansiRed, "not found"))
			}

			if status.LastError != "" {
				kvLine(out, "Last error", colorize(out, ansiRed, status.LastError))
			}
			return nil
		},
	}
}
