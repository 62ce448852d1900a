package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tvwebhook/internal/app"
)

var selfTestSet []string

var selfTestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "通过完整流水线写入一条合成告警",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := parseOverrides(selfTestSet)
		if err != nil {
			return err
		}
		return getApp().SelfTest(cmd.Context(), app.SelfTestOptions{Overrides: overrides})
	},
}

var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print the alert message template for the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Example(cmd.Context())
	},
}

func parseOverrides(pairs []string) (map[string]string, error) {
	overrides := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --set value %q, expected key=value", pair)
		}
		overrides[strings.TrimSpace(key)] = value
	}
	return overrides, nil
}

func init() {
	selfTestCmd.Flags().StringArrayVar(&selfTestSet, "set", nil, "覆盖字段，格式 key=value，可重复 (例如 --set ticker=ETHUSD --set kre=2500)")
}
