// turnosctl 运维命令行：执行数据库迁移、签发本地联调用的 Access Token
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"cenate-turnos/backend/config"
	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/pkg/database"
	"cenate-turnos/backend/pkg/jwt"
	applogger "cenate-turnos/backend/pkg/logger"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "turnosctl",
	Short:        "排班申请服务运维工具",
	SilenceUsage: true,
}

// ────────────────────── migrate ──────────────────────

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "执行全部未应用的数据库迁移",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		logger, err := applogger.NewLogger(&cfg.Log)
		if err != nil {
			return fmt.Errorf("初始化日志失败: %w", err)
		}
		defer logger.Sync()

		db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
		if err != nil {
			return fmt.Errorf("数据库连接失败: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		return database.RunMigrations(sqlDB, logger)
	},
}

// ────────────────────── token ──────────────────────

var (
	tokenUserID string
	tokenRole   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "签发 Access Token（仅供本地联调）",
	Example: `  turnosctl token --user 3f6c... --role reviewer`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !model.ValidRole(tokenRole) {
			return fmt.Errorf("未知角色: %s", tokenRole)
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		token, err := jwt.NewManager(&cfg.Auth).GenerateAccessToken(tokenUserID, tokenRole)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "用户 ID")
	tokenCmd.Flags().StringVar(&tokenRole, "role", model.RoleStaff, "角色: staff | reviewer | admin")
	tokenCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(migrateCmd, tokenCmd)
}
