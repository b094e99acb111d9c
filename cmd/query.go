package cmd

import (
	"fmt"
	"os"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/shelfdb/shelf/internal/client"
	"github.com/shelfdb/shelf/internal/config"
	"github.com/shelfdb/shelf/internal/protocol"
)

// dialClient builds a Client for the query subcommands. The server bind
// default of 0.0.0.0 is not a dialable address, so an unset host becomes
// localhost.
func dialClient() *client.Client {
	cfg := config.Resolve(flagHost, flagPort, 0, flagConfig)
	host := cfg.Host
	if host == "" || host == protocol.DefaultHost {
		host = "localhost"
	}
	return client.New(host, cfg.Port)
}

func printLines(out string) {
	if out != "" {
		fmt.Println(out)
	}
}

var queryCmd = &cobra.Command{
	Use:   "query [tokens...]",
	Short: "Send a raw argument vector to the server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := dialClient()
		defer c.Close()
		out, err := c.Apply(args...)
		if err != nil {
			return err
		}
		printLines(out)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get [keys...]",
	Short: "Read the value at a path, rendered as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := dialClient()
		defer c.Close()
		v, err := c.Get(args...)
		if err != nil {
			return err
		}
		if v == nil {
			return nil
		}
		fmt.Println(oj.JSON(v, &oj.Options{Sort: true, Indent: 4}))
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set [keys...] <json>",
	Short: "Replace the subtree at a path with a JSON value",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := args[len(args)-1]
		keys := args[:len(args)-1]

		v, err := oj.ParseString(raw)
		if err != nil {
			return fmt.Errorf("value is not valid JSON: %w", err)
		}

		c := dialClient()
		defer c.Close()
		return c.Set(keys, v)
	},
}

var appendCmd = &cobra.Command{
	Use:   "append <key> <value...>",
	Short: "Append values to the sequence at a path",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := dialClient()
		defer c.Close()
		return c.Append(args[:1], args[1:]...)
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <key> <value...>",
	Short: "Remove values from the sequence at a path",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := dialClient()
		defer c.Close()
		return c.Remove(args[:1], args[1:]...)
	},
}

var popCmd = &cobra.Command{
	Use:   "pop [keys...]",
	Short: "Print and remove the value at a path",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := dialClient()
		defer c.Close()
		out, err := c.Pop(args...)
		if err != nil {
			return err
		}
		printLines(out)
		return nil
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys [keys...]",
	Short: "List the sorted keys of the mapping at a path",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := dialClient()
		defer c.Close()
		keys, err := c.Keys(args...)
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var delCmd = &cobra.Command{
	Use:   "del <keys...>",
	Short: "Delete a path from its parent mapping",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := dialClient()
		defer c.Close()
		return c.Delete(args...)
	},
}

var editCmd = &cobra.Command{
	Use:   "edit [keys...]",
	Short: "Print the subtree at a path as pretty-printed JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := dialClient()
		defer c.Close()
		out, err := c.Apply(append(args, protocol.OpEditLong)...)
		if err != nil {
			return err
		}
		if out == "" {
			return nil
		}
		fmt.Fprintln(os.Stdout, out)
		return nil
	},
}
