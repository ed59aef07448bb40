package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toshima-abt/hachiq/pkg/catalog"
)

type CatalogCmd struct{}

func NewCatalogCmd() *CatalogCmd {
	return &CatalogCmd{}
}

func (c *CatalogCmd) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the queryable schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Print(catalog.Hachioji().Describe())
			return nil
		},
	}

	return cmd
}
