package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
)

// ListRequestsCmd creates the listRequests command
func ListRequestsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listRequests",
		Short: "List join requests, optionally filtered by appointment, candidate or status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			appointmentID, _ := cmd.Flags().GetInt64("appointment")
			candidateID, _ := cmd.Flags().GetInt64("candidate")
			status, _ := cmd.Flags().GetString("status")

			filter := db.JoinRequestFilter{
				AppointmentID: appointmentID,
				CandidateID:   candidateID,
				Status:        model.RequestStatus(status),
			}
			app.Logger.Debug("listRequests command",
				zap.Int64("appointment_id", appointmentID),
				zap.Int64("candidate_id", candidateID),
				zap.String("status", status))

			reqs, err := app.Database.ListJoinRequests(app.Ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list join requests: %w", err)
			}

			fmt.Print(formatRequests(reqs))
			return nil
		},
	}

	cmd.Flags().Int64("appointment", 0, "Only requests for this appointment")
	cmd.Flags().Int64("candidate", 0, "Only requests from this candidate")
	cmd.Flags().String("status", "", "Only requests with this status")

	return cmd
}

func statusColor(status model.RequestStatus) string {
	switch status {
	case model.RequestStatusApproved:
		return colorGreen
	case model.RequestStatusPending:
		return colorYellow
	case model.RequestStatusDeclined:
		return colorRed
	}
	return colorDim
}

func formatUnits(units []model.Unit) string {
	if len(units) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(units))
	for _, u := range units {
		parts = append(parts, fmt.Sprintf("%s %d", u.Type, u.Number))
	}
	return strings.Join(parts, ", ")
}

func formatRequests(reqs []model.JoinRequest) string {
	if len(reqs) == 0 {
		return "\nNo join requests found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\nFound %d join requests:\n\n", len(reqs))
	fmt.Fprintf(&b, "%-8s %-8s %-10s %-10s %-17s %s\n", "ID", "Job", "Candidate", "Status", "Expires", "Units")
	b.WriteString(strings.Repeat("-", 72) + "\n")
	for _, r := range reqs {
		fmt.Fprintf(&b, "%-8d %-8d %-10d %s%-10s%s %-17s %s\n",
			r.ID, r.JobID, r.CandidateID,
			statusColor(r.Status), r.Status, colorReset,
			r.ExpiresAt.Format("2006-01-02 15:04"),
			formatUnits(r.ProposedUnits))
		if r.DeclineReason != "" {
			fmt.Fprintf(&b, "%s         reason: %s%s\n", colorDim, r.DeclineReason, colorReset)
		}
	}
	b.WriteString("\n")
	return b.String()
}
