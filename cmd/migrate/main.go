// Package main 提供数据库迁移管理的命令行工具
// 基于 golang-migrate，支持向上迁移、回滚、迁移到指定版本、强制版本与状态查询
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/MorseWayne/cart_shop/internal/config"
	"github.com/MorseWayne/cart_shop/internal/database"
	"github.com/MorseWayne/cart_shop/internal/logger"
)

// migrator cmd/migrate 用到的 database.DB 方法
type migrator interface {
	RunMigrations(dir string) error
	MigrateDown(dir string, steps int) error
	MigrateToVersion(dir string, version uint) error
	ForceMigrationVersion(dir string, version uint) error
	MigrationVersion(dir string) (uint, bool, error)
}

type options struct {
	action string
	steps  int
	target uint
}

var errUsage = errors.New("invalid arguments")

// validate 在连接数据库之前检查参数
func (o options) validate() error {
	switch o.action {
	case "up", "force", "status":
		return nil
	case "down":
		if o.steps < 1 {
			return fmt.Errorf("%w: -steps must be at least 1", errUsage)
		}
		return nil
	case "version":
		if o.target == 0 {
			return fmt.Errorf("%w: -target is required for version", errUsage)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", errUsage, o.action)
	}
}

func run(m migrator, dir string, o options, lg *zap.Logger) error {
	switch o.action {
	case "up":
		lg.Info("running up migrations")
		return m.RunMigrations(dir)
	case "down":
		lg.Info("running down migrations", zap.Int("steps", o.steps))
		return m.MigrateDown(dir, o.steps)
	case "version":
		lg.Info("migrating to version", zap.Uint("target", o.target))
		return m.MigrateToVersion(dir, o.target)
	case "force":
		// 版本 0 表示回到无迁移状态
		lg.Warn("forcing migration version, dirty state will be cleared", zap.Uint("target", o.target))
		return m.ForceMigrationVersion(dir, o.target)
	case "status":
		version, dirty, err := m.MigrationVersion(dir)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", errUsage, o.action)
}

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s -action=[up|down|version|force|status] [options]\n\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprint(out, `
Examples:
  ./migrate -action=up                  # apply all pending migrations
  ./migrate -action=down -steps=1       # roll back one migration
  ./migrate -action=version -target=2   # migrate up or down to version 2
  ./migrate -action=force -target=0     # clear a dirty state
  ./migrate -action=status              # print current version
`)
}

func main() {
	var o options
	flag.StringVar(&o.action, "action", "up", "Migration action: up, down, version, force, status")
	flag.IntVar(&o.steps, "steps", 1, "Number of steps for down migration")
	flag.UintVar(&o.target, "target", 0, "Target version for version or force migration")
	flag.Usage = usage
	flag.Parse()

	if err := o.validate(); err != nil {
		fmt.Fprintln(flag.CommandLine.Output(), err)
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	lg, err := logger.New(cfg.App.Env, cfg.Log.Level, cfg.Log.Encoding, "migrate", cfg.App.Version)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	db, err := database.New(cfg, lg)
	if err != nil {
		lg.Fatal("failed to connect to database", zap.Error(err))
	}

	err = run(db, cfg.Migrations.Dir, o, lg)
	if cerr := db.Close(); cerr != nil {
		lg.Error("failed to close database", zap.Error(cerr))
	}
	if err != nil {
		lg.Fatal("migration failed", zap.String("action", o.action), zap.Error(err))
	}
	lg.Info("migration completed", zap.String("action", o.action))
}
