package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"hermes/internal/archive"
	"hermes/internal/config"
	"hermes/internal/index"
	"hermes/internal/logging"
	"hermes/internal/provider"
	"hermes/internal/session"
	"hermes/internal/tokens"
	"hermes/internal/tools"
	"hermes/internal/transcript"
	"hermes/internal/vault"

	"github.com/chzyer/readline"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath string
		vaultRoot  string
	)
	flag.StringVar(&configPath, "config", "", "Path to config JSON")
	flag.StringVar(&vaultRoot, "vault", "", "Vault root override")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Runtime.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logging failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	root := strings.TrimSpace(vaultRoot)
	if root == "" {
		root = cfg.Runtime.VaultRoot
	}
	root, err = config.ExpandPath(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve vault root failed: %v\n", err)
		os.Exit(1)
	}
	storage, err := vault.NewFS(root)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init vault failed: %v\n", err)
		os.Exit(1)
	}

	indexPath, err := config.ExpandPath(cfg.Runtime.IndexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve index path failed: %v\n", err)
		os.Exit(1)
	}
	idx, err := index.NewSQLiteIndex(indexPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open archive index failed: %v\n", err)
		os.Exit(1)
	}
	defer idx.Close()
	if legacy, err := config.ExpandPath(cfg.Runtime.LegacyIndexPath); err == nil && legacy != "" {
		if n, err := index.ImportJSON(legacy, idx); err != nil {
			fmt.Fprintf(os.Stderr, "import legacy index failed: %v\n", err)
		} else if n > 0 {
			fmt.Printf("imported %d legacy archive records\n", n)
		}
	}

	// A missing API key blocks startup; nothing downstream can work without it.
	prov, err := provider.NewOpenAIProvider(provider.OpenAIConfig{
		BaseURL:   cfg.Provider.BaseURL,
		APIKey:    cfg.Provider.APIKey,
		Model:     cfg.Provider.Model,
		TimeoutMS: cfg.Provider.TimeoutMS,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init provider failed: %v\n", err)
		os.Exit(1)
	}

	store := transcript.NewStore()
	pipeline := archive.NewPipeline(storage, idx, prov, archive.Config{
		Folder:          cfg.Archive.Folder,
		MinEntries:      cfg.Archive.MinEntries,
		MinContentChars: cfg.Archive.MinContentChars,
		ToolDenylist:    cfg.Archive.ToolDenylist,
		MetadataModel:   cfg.Archive.MetadataModel,
	}, log)

	coord := session.New(session.Deps{
		Store:     store,
		Marks:     transcript.NewWatermarks(store),
		Pipeline:  pipeline,
		Provider:  prov,
		Registry:  tools.NewRegistry(),
		Tokenizer: tokens.NewTokenizerForModel(cfg.Provider.Model),
		Log:       log,
	}, session.Options{
		MaxSteps:         cfg.Runtime.MaxSteps,
		RetryAttempts:    cfg.Provider.RetryAttempts,
		RetryDelay:       cfg.RetryDelay(),
		DeltaTokenBudget: cfg.Runtime.DeltaTokenBudget,
	}, session.Notices{
		OnUsage: func(u provider.Usage) {
			log.Debug("model turn usage",
				zap.Int("prompt_tokens", u.PromptTokens),
				zap.Int("completion_tokens", u.CompletionTokens),
				zap.Int("total_tokens", u.TotalTokens))
		},
		OnRetry: func(attempt, max int) {
			fmt.Printf("retrying attempt %d/%d\n", attempt, max)
		},
		OnToolEvent: func(name, summary string, ok bool) {
			if ok {
				fmt.Printf("[%s] %s\n", name, summary)
			} else {
				fmt.Printf("[%s] error: %s\n", name, summary)
			}
		},
		OnNotice: func(text string) {
			fmt.Println(text)
		},
	})
	coord.Start(transcript.ModeText)

	historyPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyPath = filepath.Join(home, ".hermes", "repl.history")
	}
	input, inputErr := newLineInput(historyPath)
	if inputErr != nil {
		fmt.Fprintf(os.Stderr, "line editor unavailable, fallback to basic input: %v\n", inputErr)
	}
	defer input.Close()

	fmt.Printf("hermes started, vault: %s\n", root)
	printCommands(os.Stdout)

	for {
		line, err := input.ReadLine("> ")
		if err != nil {
			switch {
			case errors.Is(err, readline.ErrInterrupt):
				fmt.Println()
				continue
			case errors.Is(err, io.EOF):
				endAndReport(coord)
				return
			default:
				fmt.Fprintf(os.Stderr, "read input failed: %v\n", err)
				return
			}
		}
		text := strings.TrimSpace(line)
		if text == "" {
			continue
		}

		if strings.HasPrefix(text, "/") {
			if exit := handleCommand(coord, text); exit {
				return
			}
			continue
		}

		reply, err := coord.Send(context.Background(), text)
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}
		fmt.Println(reply)
	}
}

func handleCommand(coord *session.Coordinator, text string) (exit bool) {
	fields := strings.Fields(text)
	switch fields[0] {
	case "/mode":
		if len(fields) < 2 {
			fmt.Printf("current mode: %s\n", coord.CurrentMode())
			return false
		}
		var target transcript.Mode
		switch fields[1] {
		case "voice":
			target = transcript.ModeVoice
		case "text":
			target = transcript.ModeText
		default:
			fmt.Println("usage: /mode voice|text")
			return false
		}
		if line := coord.SwitchMode(target); line != "" {
			fmt.Printf("handoff context: %s\n", line)
		}
		fmt.Printf("mode: %s\n", target)
	case "/topic":
		res := coord.SwitchTopic(context.Background())
		reportArchive(res.Filename, res.Skipped, res.Message)
	case "/end", "/exit", "/quit":
		endAndReport(coord)
		return true
	case "/help":
		printCommands(os.Stdout)
	default:
		fmt.Printf("unknown command: %s\n", fields[0])
	}
	return false
}

func endAndReport(coord *session.Coordinator) {
	res := coord.EndSession(context.Background())
	reportArchive(res.Filename, res.Skipped, res.Message)
	fmt.Println("bye")
}

func reportArchive(filename string, skipped bool, message string) {
	switch {
	case filename != "":
		fmt.Printf("archived: %s\n", filename)
	case skipped:
		fmt.Printf("archive skipped: %s\n", message)
	default:
		fmt.Printf("archive failed: %s\n", message)
	}
}

func printCommands(out io.Writer) {
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  /mode voice|text  switch front end (injects unseen context)")
	fmt.Fprintln(out, "  /topic            close the current topic and archive it")
	fmt.Fprintln(out, "  /end              archive the session and exit")
	fmt.Fprintln(out, "  /help             show this help")
}
