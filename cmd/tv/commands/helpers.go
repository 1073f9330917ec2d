package commands

import (
	"context"
	"fmt"

	"tensorvault/pkg/types"

	"github.com/spf13/cobra"
)

// cmdContext 在测试里直接调用 RunE 时 cmd.Context() 为 nil
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// requireLocal 用于不支持 --remote 的命令
func requireLocal() error {
	if remoteAddr != "" {
		return fmt.Errorf("this command does not support --remote")
	}
	if TV == nil {
		return fmt.Errorf("application not initialized")
	}
	return nil
}

// resolveHash 把用户输入的 (短) Hash 扩展为完整 Hash
func resolveHash(ctx context.Context, input string) (types.Hash, error) {
	if h := types.Hash(input); h.IsValid() {
		return h, nil
	}
	full, err := TV.Store.ExpandHash(ctx, types.HashPrefix(input))
	if err != nil {
		return "", fmt.Errorf("invalid object name '%s': %w", input, err)
	}
	return full, nil
}
