package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aeolun/irctunnel/pkg/client"
	"github.com/aeolun/irctunnel/pkg/commands"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send /COMMAND [arguments]",
	Short: "Print the raw IRC line a slash command produces",
	Long: `Validates a slash command the same way the interactive client does and
prints the raw line that would be sent. Usage errors are printed to stderr.

Example:
  irctunnel send --channel '#go' /op alice bob`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		channel, _ := cmd.Flags().GetString("channel")
		query, _ := cmd.Flags().GetString("query")
		nick, _ := cmd.Flags().GetString("nick")

		in := commands.Input{Text: strings.Join(args, " ")}
		switch {
		case channel != "":
			in.Origin = commands.Origin{Kind: commands.OriginChannel, Name: channel}
		case query != "":
			in.Origin = commands.Origin{Kind: commands.OriginPrivate, Name: query}
		}

		res := commands.Synthesize(client.NewSession(nick), in)
		if errors.Is(res.Err, commands.ErrNotCommand) {
			return fmt.Errorf("%q is not a slash command", in.Text)
		}
		if res.Err != nil {
			return errors.New(res.UsageMessage())
		}
		if res.NoOp {
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), res.Line)
		return nil
	},
}

func init() {
	sendCmd.Flags().String("channel", "", "Channel window the command is typed into")
	sendCmd.Flags().String("query", "", "Private message window the command is typed into")
	sendCmd.Flags().String("nick", "irctunnel", "Own nickname")
}
