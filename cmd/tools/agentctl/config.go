package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zhouzirui/os1/backend/internal/service/settings"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or save the phone number and knowledge snippet",
	}
	cmd.AddCommand(newConfigShowCmd(), newConfigSaveCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the saved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			fmt.Fprint(cmd.OutOrStdout(), renderStatus(a.Settings.Current().Summarize()))
			return nil
		},
	}
}

type configSaveOptions struct {
	phone         string
	knowledge     string
	knowledgeFile string
}

func newConfigSaveCmd() *cobra.Command {
	opts := &configSaveOptions{}

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Replace the saved configuration",
		Long: `Replace the saved configuration as a whole.

Fields not given are saved empty, exactly like submitting the console form.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			knowledge := opts.knowledge
			if opts.knowledgeFile != "" {
				data, err := os.ReadFile(opts.knowledgeFile)
				if err != nil {
					return fmt.Errorf("read knowledge file: %w", err)
				}
				knowledge = string(data)
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			cfg, err := a.Settings.Save(cmd.Context(), settings.SanitizePhone(opts.phone), knowledge)
			if err != nil {
				return fmt.Errorf("error saving configuration: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration saved successfully")
			fmt.Fprint(out, renderStatus(cfg.Summarize()))
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.phone, "phone", "", "Phone number for call requests")
	cmd.Flags().StringVar(&opts.knowledge, "knowledge", "", "Knowledge snippet sent as the agent prompt")
	cmd.Flags().StringVar(&opts.knowledgeFile, "knowledge-file", "", "Read the knowledge snippet from a file")
	cmd.MarkFlagsMutuallyExclusive("knowledge", "knowledge-file")
	return cmd
}
