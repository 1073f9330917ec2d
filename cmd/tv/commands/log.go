package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"tensorvault/pkg/core"
	"tensorvault/pkg/refs"
	"tensorvault/pkg/storage"
	"tensorvault/pkg/types"

	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log [commit-hash]",
	Short: "Show commit logs",
	Long:  `Display the first-parent history starting from the specified commit (or HEAD if not specified).`,
	Args:  cobra.MaximumNArgs(1), // 0 或 1 个参数
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireLocal(); err != nil {
			return err
		}
		ctx := cmdContext(cmd)
		var currentHash types.Hash

		// 1. 确定起始点 (Start Point)
		if len(args) > 0 {
			h, err := resolveHash(ctx, args[0])
			if err != nil {
				return err
			}
			currentHash = h
		} else {
			// 默认从 HEAD 开始
			head, _, err := TV.Refs.GetHead(ctx)
			if errors.Is(err, refs.ErrNoHead) {
				fmt.Println("No commits yet.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read HEAD: %w", err)
			}
			currentHash = head
		}

		// 2. 沿第一个父节点遍历
		for n := 0; currentHash != "" && (logLimit <= 0 || n < logLimit); n++ {
			data, err := storage.ReadAll(ctx, TV.Store, currentHash)
			if err != nil {
				return fmt.Errorf("failed to retrieve commit object %s: %w", currentHash, err)
			}
			commit, err := core.DecodeCommit(currentHash, data)
			if err != nil {
				return err
			}

			printCommitLog(os.Stdout, commit)

			// 与 git log --first-parent 一致
			currentHash = ""
			if len(commit.Parents) > 0 {
				currentHash = commit.Parents[0].Hash
			}
		}

		return nil
	},
}

// printCommitLog 格式化输出
func printCommitLog(w io.Writer, c *core.Commit) {
	const (
		colorYellow = "\033[33m"
		colorReset  = "\033[0m"
	)

	fmt.Fprintf(w, "%scommit %s%s\n", colorYellow, c.ID(), colorReset)
	if len(c.Parents) > 1 {
		short := make([]string, len(c.Parents))
		for i, p := range c.Parents {
			short[i] = p.Hash.String()[:8]
		}
		fmt.Fprintf(w, "Merge:  %s\n", strings.Join(short, " "))
	}
	fmt.Fprintf(w, "Author: %s\n", c.Author)
	fmt.Fprintf(w, "Date:   %s\n", time.Unix(c.Timestamp, 0).Format(time.RFC1123))
	fmt.Fprintf(w, "\n    %s\n\n", c.Message)
}

func init() {
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntVarP(&logLimit, "max-count", "n", 0, "limit the number of commits to show")
}
