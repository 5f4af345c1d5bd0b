package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/os1/backend/internal/service/settings"
)

func newCallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call",
		Short: "Request an outbound call to the saved phone number",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			req, err := a.Calls.Request(cmd.Context())
			if errors.Is(err, settings.ErrPhoneNumberRequired) {
				return errors.New("please enter and save a phone number first (agentctl config save --phone ...)")
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), req.Summary())
			return nil
		},
	}
}
