package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"susan/agent"
	"susan/config"
	"susan/datasource"
	"susan/logger"
	"susan/server"
)

// duckFlags collects repeatable -duck alias=path pairs.
type duckFlags map[string]string

func (d duckFlags) String() string {
	parts := make([]string, 0, len(d))
	for alias, path := range d {
		parts = append(parts, alias+"="+path)
	}
	return strings.Join(parts, ",")
}

func (d duckFlags) Set(value string) error {
	alias, path, ok := strings.Cut(value, "=")
	if !ok || alias == "" || path == "" {
		return fmt.Errorf("expected alias=path, got %q", value)
	}
	d[alias] = path
	return nil
}

func main() {
	var (
		configPath    = flag.String("config", "", "path to a JSON config file")
		initDemo      = flag.Bool("init-demo-db", false, "create the demo sales database and exit")
		repl          = flag.Bool("repl", false, "interactive prompt")
		api           = flag.Bool("api", false, "serve the HTTP API")
		port          = flag.Int("port", 8000, "HTTP API port")
		dbURL         = flag.String("db", "", "database URL or sqlite path")
		csvPath       = flag.String("csv", "", "CSV file to query")
		excelPath     = flag.String("excel", "", "Excel file to query")
		sheet         = flag.String("sheet", "", "Excel sheet name (first sheet when empty)")
		table         = flag.String("table", "", "default table name for file sources")
		useTableAgent = flag.Bool("table-agent", false, "delegate data questions to the tool-calling table agent")
		question      = flag.String("q", "", "ask one question and exit")
		threadID      = flag.String("thread", "", "conversation thread id for checkpointing")
	)
	duck := duckFlags{}
	flag.Var(duck, "duck", "register alias=path with the analytical engine (repeatable)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	if *dbURL != "" {
		cfg.DBURL = *dbURL
	}

	log := logger.NewLogger()
	if err := log.Init(cfg.LogDir); err != nil {
		fmt.Fprintf(os.Stderr, "logging disabled: %v\n", err)
	}
	defer log.Close()
	if cfg.DetailedLog {
		log.SetEcho(true)
	}

	if *initDemo {
		if err := datasource.InitDemoDB(cfg.DBURL); err != nil {
			fatal(log, WrapError("datasource", "init-demo-db", err))
		}
		fmt.Printf("Demo database ready at %s\n", cfg.DBURL)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var checkpoints *agent.CheckpointStore
	if cfg.CheckpointPath != "" {
		checkpoints, err = agent.NewCheckpointStore(cfg.CheckpointPath)
		if err != nil {
			fatal(log, WrapError("checkpoint", "open", err))
		}
		defer checkpoints.Close()
	}

	if *api {
		// table-agent requests bind tools onto their model, so the server
		// gets a fresh model per request instead of the CLI's shared one
		factory := func(ctx context.Context) (model.ChatModel, error) {
			return newChatModel(ctx, cfg)
		}
		srv := server.New(cfg, factory, checkpoints, log.Log)
		addr := fmt.Sprintf(":%d", *port)
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			fatal(log, WrapError("server", "serve", err))
		}
		return
	}

	chatModel, err := newChatModel(ctx, cfg)
	if err != nil {
		fatal(log, WrapError("llm", "create-model", err))
	}

	backend, err := datasource.Open(datasource.Options{
		DBURL:     cfg.DBURL,
		CSV:       *csvPath,
		Excel:     *excelPath,
		Sheet:     *sheet,
		DuckFiles: duck,
		Table:     *table,
	}, log.Log)
	if err != nil {
		fatal(log, WrapError("datasource", "open", err))
	}
	if c, ok := backend.(interface{ Close() error }); ok {
		defer c.Close()
	}

	ag, err := buildAgent(ctx, cfg, chatModel, backend, checkpoints, *useTableAgent, log.Log)
	if err != nil {
		fatal(log, WrapError("agent", "build", err))
	}

	if *question != "" {
		runOnce(ctx, ag, *threadID, *question)
		return
	}
	if *repl {
		runREPL(ctx, ag, *threadID)
		return
	}
	flag.Usage()
}

func newChatModel(ctx context.Context, cfg config.Config) (model.ChatModel, error) {
	return openai.NewChatModel(ctx, chatModelConfig(cfg))
}

func chatModelConfig(cfg config.Config) *openai.ChatModelConfig {
	mc := &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.ModelName,
		Timeout: 60 * time.Second,
	}
	if cfg.Temperature > 0 {
		t := cfg.Temperature
		mc.Temperature = &t
	}
	if cfg.MaxTokens > 0 {
		m := cfg.MaxTokens
		mc.MaxTokens = &m
	}
	return mc
}

func buildAgent(ctx context.Context, cfg config.Config, chatModel model.ChatModel,
	backend datasource.Backend, checkpoints *agent.CheckpointStore,
	useTableAgent bool, logFunc func(string)) (*agent.Agent, error) {

	planner := agent.NewPlanner(chatModel, logFunc)

	sqlSpec := agent.NewSQLSpecialist(planner, backend, cfg.MaxPreviewRows, logFunc)
	if useTableAgent {
		ta, err := agent.NewTableAgent(ctx, chatModel, backend, logFunc)
		if err != nil {
			return nil, err
		}
		sqlSpec.SetTableAgent(ta)
	}

	router := agent.NewRouter(agent.NewLLMClassifier(planner), logFunc)
	chart := agent.NewChartSpecialist(planner, sqlSpec, cfg.ArtifactsDir, logFunc)
	web := agent.NewWebChecker(planner,
		time.Duration(cfg.FetchTimeoutSec)*time.Second, cfg.UserAgent, logFunc)
	chat := agent.NewChatFallback(planner, logFunc)

	return agent.New(ctx, router, sqlSpec, chart, web, chat, checkpoints, logFunc)
}

func runOnce(ctx context.Context, ag *agent.Agent, threadID, question string) {
	state, err := ag.Run(ctx, threadID, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printReply(state)
}

func runREPL(ctx context.Context, ag *agent.Agent, threadID string) {
	fmt.Println("Susan ready. Ask about your data, paste a URL, or just chat. Ctrl-D to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		state, err := ag.Run(ctx, threadID, line)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		printReply(state)
	}
}

// printReply shows this turn's assistant reply; each specialist appends
// exactly one, so the newest assistant message is the answer.
func printReply(state *agent.State) {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == agent.RoleAssistant {
			fmt.Println(state.Messages[i].Content)
			return
		}
	}
}

func fatal(log *logger.Logger, err error) {
	log.Log(fmt.Sprintf("[FATAL] %v", err))
	fmt.Fprintf(os.Stderr, "%v\n", err)
	os.Exit(1)
}
