package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"qrattend/internal/app"
	"qrattend/internal/attendance"
	"qrattend/internal/config"
	"qrattend/internal/report"
)

var filter attendance.Filter

var exportOut string

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Export attendance records to an XLSX workbook",
	Example: `  attendctl export --from 2026-03-01 --to 2026-03-31 --subject Math --out march-math.xlsx`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackends(cmd.Context(), func(cfg config.App, b *app.Backends) error {
			recs, err := report.Collect(cmd.Context(), b.Service(cfg), filter)
			if err != nil {
				return err
			}
			f, err := os.Create(exportOut)
			if err != nil {
				return err
			}
			if err := report.WriteXLSX(f, recs); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", exportOut, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records to %s\n", len(recs), exportOut)
			return nil
		})
	},
}

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "Print subject-wise attendance statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackends(cmd.Context(), func(cfg config.App, b *app.Backends) error {
			recs, err := report.Collect(cmd.Context(), b.Service(cfg), filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SUBJECT\tTOTAL\tPRESENT\tPERCENT")
			for _, s := range report.BySubject(recs) {
				fmt.Fprintf(w, "%s\t%d\t%d\t%.2f\n", s.Subject, s.Total, s.Present, s.Percentage)
			}
			return w.Flush()
		})
	},
}

func addFilterFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&filter.From, "from", "", "first day, YYYY-MM-DD")
	f.StringVar(&filter.To, "to", "", "last day, YYYY-MM-DD")
	f.StringVar(&filter.Subject, "subject", "", "only this subject")
	f.StringVar(&filter.TeacherID, "teacher", "", "only this teacher's sessions")
	f.StringVar(&filter.StudentID, "student", "", "only this student")
}

func init() {
	addFilterFlags(exportCmd)
	addFilterFlags(subjectsCmd)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "attendance.xlsx", "output file")
}
