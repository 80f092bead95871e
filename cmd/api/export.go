package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"meeting-insights-go/internal/report"
	"meeting-insights-go/internal/store"
)

func newExportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write users, meetings and engagement to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()
			ins, err := report.Export(cmd.Context(), store.NewMeetings(a.pool), out, a.log.Entry)
			if err != nil {
				return err
			}
			a.log.WithFields(logrus.Fields{
				"out":           out,
				"meetings":      ins.Meetings,
				"video_on_rate": ins.VideoOnRate,
			}).Info("export complete")
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "meetings.xlsx", "output workbook path")
	return cmd
}
