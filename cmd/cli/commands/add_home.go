package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/core/services"
)

// AddHomeCmd creates the addHome command. It acts as an admin on behalf of the owner.
func AddHomeCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "addHome <address>",
		Short: "Register a home with its sensitive fields encrypted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := homeInputFromFlags(cmd, args[0])
			if err != nil {
				return err
			}

			actor := model.Actor{ID: model.SystemActorID, Role: model.RoleAdmin}
			home, err := app.Service.RegisterHome(app.Ctx, actor, in)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Home registered successfully!\n\n")
			fmt.Printf("Home ID:  %d\n", home.ID)
			fmt.Printf("Owner:    %d\n", home.OwnerID)
			fmt.Printf("Rooms:    %d bed / %d bath\n", home.Beds, home.Baths)
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().Int64("owner", 0, "Client id owning the home (required)")
	cmd.Flags().String("name", "", "Label shown to workers")
	cmd.Flags().String("postal-code", "", "Postal code")
	cmd.Flags().String("city", "", "City")
	cmd.Flags().String("state", "", "State or region")
	cmd.Flags().String("access-code", "", "Door or gate access code")
	cmd.Flags().String("phone", "", "Contact phone")
	cmd.Flags().Int("beds", 0, "Number of bedrooms")
	cmd.Flags().Int("baths", 0, "Number of bathrooms")
	cmd.Flags().Int("minutes", 0, "Typical minutes to clean")
	cmd.MarkFlagRequired("owner")

	return cmd
}

func homeInputFromFlags(cmd *cobra.Command, address string) (services.RegisterHomeInput, error) {
	flags := cmd.Flags()
	owner, _ := flags.GetInt64("owner")
	if owner <= 0 {
		return services.RegisterHomeInput{}, fmt.Errorf("--owner must be a positive client id")
	}
	in := services.RegisterHomeInput{OwnerID: owner, Address: address}
	in.Name, _ = flags.GetString("name")
	in.PostalCode, _ = flags.GetString("postal-code")
	in.City, _ = flags.GetString("city")
	in.State, _ = flags.GetString("state")
	in.AccessCode, _ = flags.GetString("access-code")
	in.ContactPhone, _ = flags.GetString("phone")
	in.Beds, _ = flags.GetInt("beds")
	in.Baths, _ = flags.GetInt("baths")
	in.TimeToCleanMins, _ = flags.GetInt("minutes")
	return in, nil
}
