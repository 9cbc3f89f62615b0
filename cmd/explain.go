package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/reddit-newsbot/internal/server"
	"github.com/JakeFAU/reddit-newsbot/internal/viewer"
)

func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <keyword>",
		Short: "Ask the model to explain a keyword",
		Long: `explain sends the configured prompt template filled with the keyword to the
generative model and prints the answer. Failures are printed as "Error: ..."
just like in the viewer.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			keyword := strings.Join(args, " ")
			if strings.TrimSpace(keyword) == "" {
				return errors.New("keyword must not be blank")
			}
			answer := server.NewExplainer(rt.cfg, rt.logger).Explain(cmd.Context(), keyword)
			fmt.Fprintln(cmd.OutOrStdout(), viewer.FormatExplanation(strings.TrimSpace(keyword), answer))
			return nil
		},
	}
}
