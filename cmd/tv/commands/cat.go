package commands

import (
	"fmt"
	"os"

	"tensorvault/pkg/core"
	"tensorvault/pkg/storage"

	"github.com/spf13/cobra"
)

var catTypeOnly bool

var catCmd = &cobra.Command{
	Use:   "cat [hash]",
	Short: "Show an object by hash",
	Long:  `Print the type of an object, or its content. Commits and trees are printed as fields, chunks are written raw to stdout.`,
	Args:  cobra.ExactArgs(1), // 必须提供 Hash
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLocal(); err != nil {
			return err
		}
		ctx := cmdContext(cmd)

		hash, err := resolveHash(ctx, args[0])
		if err != nil {
			return err
		}

		typ, err := storage.TypeOf(ctx, TV.Store, hash)
		if err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}
		if catTypeOnly {
			fmt.Println(typ)
			return nil
		}

		data, err := storage.ReadAll(ctx, TV.Store, hash)
		if err != nil {
			return fmt.Errorf("cat failed: %w", err)
		}

		switch typ {
		case core.TypeCommit:
			c, err := core.DecodeCommit(hash, data)
			if err != nil {
				return err
			}
			fmt.Printf("tree %s\n", c.TreeCid.Hash)
			for _, p := range c.Parents {
				fmt.Printf("parent %s\n", p.Hash)
			}
			fmt.Printf("author %s %d\n\n%s\n", c.Author, c.Timestamp, c.Message)
		case core.TypeTree:
			var tree core.Tree
			if err := core.DecodeObject(data, &tree); err != nil {
				return err
			}
			for _, e := range tree.Entries {
				fmt.Printf("%s %s %10d\t%s\n", e.Type, e.Hash.Hash, e.Size, e.Name)
			}
		default:
			// 二进制可以通过 > file.bin 重定向
			_, err = os.Stdout.Write(data)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
	catCmd.Flags().BoolVarP(&catTypeOnly, "type", "t", false, "show object type only")
}
