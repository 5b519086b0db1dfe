package cli

import (
	"github.com/spf13/cobra"
)

const defaultConfigFile = "vachanamrut.yaml"

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "vachanamrut",
		Short:        "Scripture question answering over the Vachanamrut",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return SetupGlobalConfig(cmd)
		},
	}
	addGlobalFlags(root)

	root.AddCommand(
		ServeCmd(),
		AskCmd(),
	)

	return root
}

func addGlobalFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.String("config", defaultConfigFile, "Path to the YAML configuration file")
	flags.String("env-file", ".env", "Path to the environment variables file")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Output logs in JSON format")
	flags.Bool("log-source", false, "Include source code location in logs")

	// LLM flags
	flags.String("primary", "", "Primary LLM provider (groq, google)")
	flags.String("secondary", "", "Fallback LLM provider (groq, google)")

	// Knowledge flags
	flags.String("vector-provider", "", "Vector index provider (qdrant, memory)")
	flags.String("vector-url", "", "Vector index URL")
	flags.String("collection", "", "Vector collection name")
	flags.String("corpus", "", "Path to the cleaned corpus JSON file")
}
