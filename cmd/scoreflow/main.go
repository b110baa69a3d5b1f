// =============================================================================
// ScoreFlow 主入口
// =============================================================================
// 加载流水线定义并执行工作流，可选开启运维 HTTP 端点
//
// 使用方法:
//
//	scoreflow plan  -pipeline pipeline.yaml            # 打印解析后的执行顺序
//	scoreflow run   -pipeline pipeline.yaml -set k=v   # 执行工作流并输出终态
//	scoreflow serve -pipeline pipeline.yaml            # 执行工作流并保持运维端点
//	scoreflow version                                  # 显示版本信息
//	scoreflow health -addr http://localhost:9091       # 健康检查
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/scoreflow/config"
	"github.com/BaSui01/scoreflow/workflow"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var code int
	switch os.Args[1] {
	case "plan":
		code = runPlan(os.Args[2:], os.Stdout)
	case "run":
		code = runRun(os.Args[2:], os.Stdout)
	case "serve":
		code = runServe(os.Args[2:])
	case "version":
		printVersion(os.Stdout)
	case "health":
		code = runHealthCheck(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		code = 1
	}
	os.Exit(code)
}

// =============================================================================
// 🚩 公共参数
// =============================================================================

// varsFlag collects repeated -set key=value pairs.
type varsFlag map[string]string

func (v varsFlag) String() string {
	pairs := make([]string, 0, len(v))
	for k, val := range v {
		pairs = append(pairs, k+"="+val)
	}
	return strings.Join(pairs, ",")
}

func (v varsFlag) Set(s string) error {
	key, val, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	v[strings.TrimSpace(key)] = val
	return nil
}

type commonFlags struct {
	configPath   string
	pipelinePath string
	workflowIDs  string
	vars         varsFlag
}

func newFlagSet(name string, c *commonFlags) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	c.vars = varsFlag{}
	fs.StringVar(&c.configPath, "config", "", "Path to config file (YAML)")
	fs.StringVar(&c.pipelinePath, "pipeline", "", "Path to pipeline definition (YAML)")
	fs.StringVar(&c.workflowIDs, "workflow", "", "Comma-separated workflow IDs to run (default: all)")
	fs.Var(c.vars, "set", "Pipeline variable override key=value (repeatable)")
	return fs
}

func (c *commonFlags) selectedWorkflows() []string {
	if c.workflowIDs == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(c.workflowIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// bootstrap parses flags, loads config and builds the application.
func bootstrap(ctx context.Context, name string, args []string, extra func(*flag.FlagSet)) (*app, *commonFlags, error) {
	var c commonFlags
	fs := newFlagSet(name, &c)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if c.pipelinePath == "" {
		return nil, nil, fmt.Errorf("-pipeline is required")
	}

	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := initLogger(cfg.Log)

	a, err := newApp(ctx, cfg, c.pipelinePath, c.vars, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return a, &c, nil
}

// =============================================================================
// 🗺️ plan 命令
// =============================================================================

func runPlan(args []string, out io.Writer) int {
	ctx := context.Background()
	a, flags, err := bootstrap(ctx, "plan", args, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plan: %v\n", err)
		return 1
	}
	defer a.close(ctx)

	plans, err := a.plan(flags.selectedWorkflows())
	if err != nil {
		fmt.Fprintf(os.Stderr, "plan: %v\n", err)
		return 1
	}
	for _, p := range plans {
		fmt.Fprintf(out, "%s: %s\n", p.workflowID, strings.Join(p.order, " -> "))
	}
	return 0
}

// =============================================================================
// ▶️ run 命令
// =============================================================================

func runRun(args []string, out io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, flags, err := bootstrap(ctx, "run", args, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 1
	}
	defer a.close(context.Background())

	states, err := a.runWorkflows(ctx, flags.selectedWorkflows())
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return 1
	}
	return reportStates(out, states)
}

// reportStates writes the terminal states as JSON and returns 1 if any failed.
func reportStates(out io.Writer, states []*workflow.WorkflowState) int {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(states); err != nil {
		fmt.Fprintf(os.Stderr, "encode result: %v\n", err)
		return 1
	}
	for _, st := range states {
		if st.Status == workflow.StatusFailed {
			return 1
		}
	}
	return 0
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, flags, err := bootstrap(ctx, "serve", args, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}
	defer a.close(context.Background())

	a.logger.Info("Starting ScoreFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	if err := a.serve(ctx, flags.selectedWorkflows()); err != nil {
		a.logger.Error("serve failed", zap.Error(err))
		return 1
	}
	a.logger.Info("ScoreFlow stopped")
	return 0
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:9091", "Ops endpoint address")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(strings.TrimRight(*addr, "/") + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}
	fmt.Fprintln(out, "OK")
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "ScoreFlow %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `ScoreFlow - workflow orchestration for scoring pipelines

Usage:
  scoreflow <command> [options]

Commands:
  plan      Print the resolved processor order of each workflow
  run       Execute workflows and print their terminal states as JSON
  serve     Execute workflows and keep the ops endpoint up until SIGINT/SIGTERM
  version   Show version information
  health    Check ops endpoint health
  help      Show this help message

Options for plan/run/serve:
  -pipeline <path>   Pipeline definition (YAML), required
  -config <path>     Configuration file (YAML)
  -workflow <ids>    Comma-separated workflow IDs (default: all)
  -set key=value     Override a pipeline variable (repeatable)

Examples:
  scoreflow plan -pipeline nightly.yaml
  scoreflow run -pipeline nightly.yaml -set region=eu -workflow daily
  scoreflow serve -config /etc/scoreflow/config.yaml -pipeline nightly.yaml
  scoreflow health -addr http://localhost:9091`)
}
