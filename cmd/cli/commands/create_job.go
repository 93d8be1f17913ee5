package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/core/services"
)

// CreateJobCmd creates the createJob command. It acts as an admin.
func CreateJobCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "createJob <appointment_id> <total_workers>",
		Short: "Open a multi-worker job for an appointment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appointmentID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("appointment_id must be a number: %w", err)
			}
			total, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("total_workers must be a number: %w", err)
			}
			coordinatorID, _ := cmd.Flags().GetInt64("coordinator")
			minutes, _ := cmd.Flags().GetInt("minutes")

			actor := model.Actor{ID: model.SystemActorID, Role: model.RoleAdmin}
			job, err := app.Service.CreateJob(app.Ctx, actor, services.CreateJobInput{
				AppointmentID:    appointmentID,
				TotalRequired:    total,
				CoordinatorID:    coordinatorID,
				AutoGenerated:    coordinatorID == 0,
				EstimatedMinutes: minutes,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Job created successfully!\n\n")
			fmt.Printf("Job ID:       %d\n", job.ID)
			fmt.Printf("Appointment:  %d\n", job.AppointmentID)
			fmt.Printf("Workers:      %d/%d confirmed\n", job.ConfirmedCount, job.TotalRequired)
			if job.CoordinatorID != 0 {
				fmt.Printf("Coordinator:  %d\n", job.CoordinatorID)
			}
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().Int64("coordinator", 0, "Worker id coordinating the job (must be the assigned worker)")
	cmd.Flags().Int("minutes", 0, "Estimated minutes of work")

	return cmd
}
