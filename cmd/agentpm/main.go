// Package main agentpm 命令行入口
//
// 子命令：
//   - start / continue / status：驱动会话阶段状态机
//   - checkpoint create|list / restore：检查点管理
//   - documents：查看已持久化的文档
//   - refine：对本地文档执行质量精炼
//   - serve-metrics：暴露 Prometheus 指标
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agentpm/internal/config"
)

var (
	jsonOutput bool
	configDir  string
)

var rootCmd = &cobra.Command{
	Use:   "agentpm",
	Short: "Orchestrate LLM specialists into a reviewed set of planning documents",
	Long: `agentpm drives a conversation through discovery, definition and review.
Specialists (product manager, business analyst, UX designer, technical writer,
database architect, reviewer) are consulted per phase; the definition phase
generates PRD/BRD/UXDD/SRS/ERD/DBRD documents with dependency-aware batching
and quality refinement.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if configDir != "" {
			config.SetConfigDir(configDir)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "", "directory containing {env}.yaml")
	rootCmd.AddCommand(
		startCmd(),
		continueCmd(),
		statusCmd(),
		checkpointCmd(),
		restoreCmd(),
		documentsCmd(),
		refineCmd(),
		serveMetricsCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
