package main

import (
	"bufio"
	"encoding/json"
	"io"
	"time"

	"github.com/aeolun/irctunnel/pkg/protocol"
	"github.com/spf13/cobra"
)

var parseUTC bool

var parseCmd = &cobra.Command{
	Use:   "parse",
	Short: "Decode raw gateway traffic from stdin",
	Long: `Reads raw gateway traffic from stdin, frames it into lines and prints
one JSON object per line: the decoded message, the CTCP sub-message if any,
or the control token.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loc := time.Local
		if parseUTC {
			loc = time.UTC
		}
		nick, _ := cmd.Flags().GetString("nick")
		return decodeStream(cmd.InOrStdin(), cmd.OutOrStdout(), nick, loc)
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseUTC, "utc", false, "Render @time tags in UTC instead of local time")
	parseCmd.Flags().String("nick", "", "Own nickname, used to classify CTCP direction")
}

// decodedLine is the JSON shape printed by parse.
type decodedLine struct {
	Control string                `json:"control,omitempty"`
	Lag     float64               `json:"lag,omitempty"`
	Message *protocol.Message     `json:"message,omitempty"`
	CTCP    *protocol.CTCPMessage `json:"ctcp,omitempty"`
	Dir     string                `json:"direction,omitempty"`
}

func decodeStream(in io.Reader, out io.Writer, nick string, loc *time.Location) error {
	var framer protocol.Framer
	enc := json.NewEncoder(out)

	r := bufio.NewReader(in)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			for _, line := range framer.Write(string(buf[:n])) {
				if err := enc.Encode(decodeLine(line, nick, loc)); err != nil {
					return err
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func decodeLine(line, nick string, loc *time.Location) decodedLine {
	if c, ok := protocol.ParseControl(line); ok {
		return decodedLine{Control: c.Kind.String(), Lag: c.Lag}
	}

	msg := protocol.ParseAt(line, loc)
	d := decodedLine{Message: &msg}
	if ctcp, ok := protocol.DecodeCTCP(msg, nick); ok {
		d.CTCP = &ctcp
		d.Dir = ctcp.Direction.String()
	}
	return d
}
