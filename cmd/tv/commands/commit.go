package commands

import (
	"fmt"
	"time"

	"tensorvault/pkg/core"
	"tensorvault/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	commitMsg     string
	commitTree    string
	commitParents []string
	commitRoot    bool
)

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Record a commit object",
	Long: `Create a new commit pointing at the given tree and move HEAD to it.

Without -p the current HEAD becomes the only parent. Repeat -p to record a
merge; parents are kept in the order given. Without --tree an empty tree is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLocal(); err != nil {
			return err
		}
		if commitMsg == "" {
			return fmt.Errorf("commit message cannot be empty (use -m)")
		}
		if commitRoot && len(commitParents) > 0 {
			return fmt.Errorf("--root and --parent are mutually exclusive")
		}

		ctx := cmdContext(cmd)
		start := time.Now()

		// 1. Tree
		var tree types.Hash
		if commitTree == "" {
			empty, err := core.NewTree(nil)
			if err != nil {
				return err
			}
			if err := TV.Store.Put(ctx, empty); err != nil {
				return fmt.Errorf("failed to store tree: %w", err)
			}
			tree = empty.ID()
		} else {
			h, err := resolveHash(ctx, commitTree)
			if err != nil {
				return err
			}
			tree = h
		}

		// 2. Parents：nil 表示跟随 HEAD，空切片表示根提交
		var parents []types.Hash
		if commitRoot {
			parents = []types.Hash{}
		}
		for _, p := range commitParents {
			h, err := resolveHash(ctx, p)
			if err != nil {
				return err
			}
			parents = append(parents, h)
		}

		// 3. Author (从配置中读，如果没配就用默认值)
		author := viper.GetString("user.name")
		if author == "" {
			author = "TensorVault User"
		}

		c, err := TV.CreateCommit(ctx, tree, parents, author, commitMsg)
		if err != nil {
			return err
		}

		if len(c.Parents) == 0 {
			fmt.Println("🌱 Initial Commit")
		}
		fmt.Printf("✅ [%s] %s\n", c.ID()[:8], commitMsg)
		fmt.Printf("   Time: %s | Author: %s | Parents: %d\n", time.Since(start), author, len(c.Parents))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commitCmd)

	// 绑定 Flags
	commitCmd.Flags().StringVarP(&commitMsg, "message", "m", "", "commit message")
	commitCmd.Flags().StringVarP(&commitTree, "tree", "t", "", "tree object (defaults to an empty tree)")
	commitCmd.Flags().StringArrayVarP(&commitParents, "parent", "p", nil, "parent commit, repeat for merges")
	commitCmd.Flags().BoolVar(&commitRoot, "root", false, "create a root commit even if HEAD exists")
}
