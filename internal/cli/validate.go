package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/toshima-abt/hachiq/pkg/catalog"
	"github.com/toshima-abt/hachiq/pkg/sqlguard"
)

type ValidateCmd struct{}

func NewValidateCmd() *ValidateCmd {
	return &ValidateCmd{}
}

// Command builds the validate subcommand. It runs entirely offline: no
// store, no model, just the validator's verdict on one statement.
func (c *ValidateCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <sql>",
		Short: "Check a statement against the validator without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guard, err := sqlguard.New(sqlguard.Config{Catalog: catalog.Hachioji()})
			if err != nil {
				return fmt.Errorf("failed to create guard: %w", err)
			}

			validated, err := guard.Validate(args[0])
			if err != nil {
				return err
			}

			fmt.Println("OK")
			fmt.Println(validated.SQL)
			if len(validated.Tables) > 0 {
				fmt.Println("参照テーブル:", strings.Join(validated.Tables, ", "))
			}
			if validated.LimitInjected {
				fmt.Println("※ LIMITが自動付与されました")
			}
			return nil
		},
	}

	return cmd
}
