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

	"patchsage/internal/util"
	"patchsage/pkg/ai"
	"patchsage/pkg/answer"
	"patchsage/pkg/linker"
	"patchsage/pkg/logger"
	"patchsage/pkg/logger/console"
	"patchsage/pkg/query"
	storepgx "patchsage/pkg/store/pgx"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: util.GetEnvBool("DEBUG", false),
	})
	logger.Init(consoleLogger)

	var (
		question string
		topK     int
		noFuzzy  bool
	)
	flag.StringVar(&question, "query", "", "Ask one question and exit.")
	flag.IntVar(&topK, "top-k", query.DefaultTopK, "Maximum number of changes to return.")
	flag.BoolVar(&noFuzzy, "no-fuzzy", false, "Disable fuzzy entity matching.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := storepgx.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("failed to connect to database", "err", err)
	}
	defer st.Close()

	generator, err := ai.FromEnv()
	if err != nil {
		logger.Fatal("failed to configure AI adapter", "err", err)
	}

	router := query.NewRouter(st, linker.Options{DisableFuzzy: noFuzzy})

	if question != "" {
		fmt.Println(ask(ctx, router, generator, question, topK))
		return
	}

	fmt.Println("Interactive mode. Type 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		q := strings.TrimSpace(scanner.Text())
		if q == "" {
			continue
		}
		if strings.EqualFold(q, "exit") || strings.EqualFold(q, "quit") {
			return
		}
		fmt.Println(ask(ctx, router, generator, q, topK))
		fmt.Println()
	}
}

// ask retrieves and formats one answer. When a generator is
// configured, the extractive answer is followed by generated prose;
// a generation failure falls back to the extractive answer alone.
func ask(ctx context.Context, router *query.Router, generator ai.Generator, question string, topK int) string {
	result, err := router.Retrieve(ctx, question, topK)
	if err != nil {
		logger.Error("retrieval failed", "err", err)
		return "Retrieval failed: " + err.Error()
	}

	formatted := answer.Format(question, result)
	if generator == nil || len(result.Contexts) == 0 {
		return formatted
	}

	contexts := make([]string, 0, len(result.Contexts))
	for _, c := range result.Contexts {
		contexts = append(contexts, fmt.Sprintf("[%s] %s: %s", c.PatchID, c.SectionName, c.Text))
	}
	generated, err := generator.Generate(ctx, ai.AnswerPrompt(question, contexts))
	if err != nil {
		logger.Warn("answer generation failed, returning extractive answer", "err", err)
		return formatted
	}
	return formatted + "\n\n" + strings.TrimSpace(generated)
}
