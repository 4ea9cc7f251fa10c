package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/teamail/teamail/internal/config"
	"github.com/teamail/teamail/internal/db"
	"github.com/teamail/teamail/internal/gmail"
	"github.com/teamail/teamail/internal/services"
	"github.com/teamail/teamail/internal/version"
	"github.com/teamail/teamail/pkg/auth"
)

func main() {
	configPathFlag := flag.String("config", "", "Path to JSON configuration file (default: ~/.config/teamail/config.json)")
	credPathFlag := flag.String("credentials", "", "Path to OAuth client credentials JSON (default: ~/.config/teamail/credentials.json)")
	versionFlag := flag.Bool("version", false, "Show version information and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s\n\n", version.GetVersionString())
		fmt.Fprintf(os.Stderr, "Usage:\n")
		fmt.Fprintf(os.Stderr, "  %s [options] [command [args]]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  labels                 List all resolved labels\n")
		fmt.Fprintf(os.Stderr, "  mklabel <name>         Resolve or create a hierarchical label\n")
		fmt.Fprintf(os.Stderr, "  list <query|saved>     List threads matching a query or saved-query name\n")
		fmt.Fprintf(os.Stderr, "  archive <threadID>     Remove INBOX from the thread's known messages\n")
		fmt.Fprintf(os.Stderr, "  keep <threadID>        Apply the keep label to the thread's known messages\n")
		fmt.Fprintf(os.Stderr, "  undo                   Undo the last label delta (interactive mode)\n")
		fmt.Fprintf(os.Stderr, "  prune                  Remove expired thread snapshots\n\n")
		fmt.Fprintf(os.Stderr, "Without a command, an interactive prompt accepting the same commands starts.\n\n")
		fmt.Fprintf(os.Stderr, "Environment Variables:\n")
		fmt.Fprintf(os.Stderr, "  TEAMAIL_CONFIG       Override default config file path\n")
		fmt.Fprintf(os.Stderr, "  TEAMAIL_CREDENTIALS  Override default credentials file path\n")
		fmt.Fprintf(os.Stderr, "  TEAMAIL_TOKEN        Override default token file path\n")
	}

	flag.Parse()

	if *versionFlag {
		fmt.Println(version.GetDetailedVersionString())
		return
	}

	configPath := getConfigPath(*configPathFlag)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Printf("Warning: could not load configuration: %v", err)
		cfg = config.DefaultConfig()
	}

	credPath := getCredentialsPath(*credPathFlag, cfg.Credentials)
	tokenPath := getTokenPath(cfg.Token)

	if _, err := os.Stat(credPath); err != nil {
		log.Fatalf("Credentials file not found at %s. Download client credentials from Google Cloud Console and place it there.", credPath)
	}

	logger := log.New(io.Discard, "", log.LstdFlags)
	if cfg.LogFile != "" {
		if f, err := os.OpenFile(config.ExpandPath(cfg.LogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600); err == nil {
			logger = log.New(f, "teamail ", log.LstdFlags)
		} else {
			log.Printf("Warning: could not open log file: %v", err)
		}
	}

	ctx := context.Background()

	authenticator := auth.NewAuthenticator(auth.NewOAuth2Config(credPath, tokenPath,
		"https://www.googleapis.com/auth/gmail.modify",
	))
	service, err := auth.NewGmailService(ctx, authenticator)
	if err != nil {
		log.Fatalf("Could not initialize Gmail service: %v", err)
	}

	client := gmail.NewClient(service)
	client.SetCredentialRefresher(authenticator)

	app, err := newApp(ctx, client, cfg, logger)
	if err != nil {
		log.Fatalf("Could not initialize: %v", err)
	}
	defer app.close()

	args := flag.Args()
	if len(args) == 0 {
		app.runInteractive(ctx, os.Stdin, os.Stdout)
		return
	}
	if err := app.runCommand(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app wires the services for one account session
type app struct {
	client     *gmail.Client
	cfg        *config.Config
	queries    config.SavedQueries
	directory  services.LabelDirectory
	reconciler services.ThreadReconciler
	undo       services.UndoService
	snapshots  services.SnapshotService
	store      *db.Store
	logger     *log.Logger
}

func newApp(ctx context.Context, client *gmail.Client, cfg *config.Config, logger *log.Logger) (*app, error) {
	a := &app{client: client, cfg: cfg, logger: logger}

	queries, err := config.LoadSavedQueries(config.ExpandPath(cfg.Queries))
	if err != nil {
		return nil, err
	}
	a.queries = queries

	directory := services.NewLabelDirectory(client)
	directory.SetLogger(logger)
	a.directory = directory

	reconciler := services.NewThreadReconciler(client, directory, cfg.KeepLabelName())
	reconciler.SetLogger(logger)
	a.reconciler = reconciler

	undo := services.NewUndoService(client)
	undo.SetLogger(logger)
	reconciler.SetUndoService(undo)
	a.undo = undo

	if cfg.CacheEnabled {
		email, err := client.ActiveAccountEmail(ctx)
		if err != nil {
			return nil, fmt.Errorf("could not resolve account: %w", err)
		}
		store, err := db.Open(ctx, snapshotDBPath(cfg, email))
		if err != nil {
			logger.Printf("could not open snapshot store: %v", err)
		} else {
			a.store = store
			snapshots := services.NewSnapshotService(db.NewSnapshotStore(store), email)
			snapshots.SetLogger(logger)
			a.snapshots = snapshots
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// snapshotDBPath builds a per-account database path under the cache dir
func snapshotDBPath(cfg *config.Config, email string) string {
	baseDir := config.DefaultCacheDir()
	if cfg.CachePath != "" {
		baseDir = config.ExpandPath(cfg.CachePath)
	}
	if ext := filepath.Ext(baseDir); ext != "" && ext != "." {
		return baseDir
	}
	safe := strings.ToLower(strings.TrimSpace(email))
	safe = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "@", "_", " ", "_").Replace(safe)
	if safe == "" {
		safe = "default"
	}
	return filepath.Join(baseDir, safe+".sqlite3")
}

func (a *app) runInteractive(ctx context.Context, in io.Reader, out io.Writer) {
	fmt.Fprintf(out, "%s - type 'help' for commands, 'quit' to exit\n", version.GetVersionString())
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return
		case "help":
			flag.Usage()
			continue
		}
		if err := a.runCommand(ctx, fields); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

func (a *app) runCommand(ctx context.Context, args []string) error {
	switch args[0] {
	case "labels":
		return a.cmdLabels(ctx)
	case "mklabel":
		if len(args) < 2 {
			return fmt.Errorf("usage: mklabel <name>")
		}
		return a.cmdMkLabel(ctx, args[1])
	case "list":
		query := ""
		if len(args) > 1 {
			query = strings.Join(args[1:], " ")
		}
		return a.cmdList(ctx, query)
	case "archive":
		if len(args) < 2 {
			return fmt.Errorf("usage: archive <threadID>")
		}
		return a.cmdApply(ctx, args[1], false)
	case "keep":
		if len(args) < 2 {
			return fmt.Errorf("usage: keep <threadID>")
		}
		return a.cmdApply(ctx, args[1], true)
	case "undo":
		return a.cmdUndo(ctx)
	case "prune":
		return a.cmdPrune(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (a *app) cmdLabels(ctx context.Context) error {
	if err := a.directory.Init(ctx); err != nil {
		return err
	}
	for _, label := range a.directory.Labels() {
		fmt.Printf("%-20s %s\n", label.Id, label.Name)
	}
	return nil
}

func (a *app) cmdMkLabel(ctx context.Context, name string) error {
	label, err := a.directory.GetOrCreate(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", label.Id, label.Name)
	return nil
}

func (a *app) cmdList(ctx context.Context, query string) error {
	query = a.queries.Resolve(query)
	threads, _, err := a.client.ListThreads(ctx, query, a.cfg.MaxResults, "")
	if err != nil {
		return err
	}
	for _, t := range threads {
		members, err := a.client.FetchThreadMembers(ctx, t.Id)
		if err != nil {
			a.logger.Printf("skipping thread %s: %v", t.Id, err)
			continue
		}
		snap := services.SnapshotFromMessages(t.Id, members, time.Now())
		if a.snapshots != nil {
			if err := a.snapshots.SaveSnapshot(ctx, snap); err != nil {
				a.logger.Printf("could not save snapshot for %s: %v", t.Id, err)
			}
		}
		subject := ""
		if len(members) > 0 {
			if msg, err := a.client.GetMessage(ctx, members[0].Id); err == nil {
				subject = headerValue(msg.Payload, "Subject")
			}
		}
		inbox := " "
		if snap.HasMessagesInInbox() {
			inbox = "*"
		}
		fmt.Printf("%s %s %2d  %s\n", inbox, t.Id, len(members), subject)
	}
	return nil
}

// cmdApply runs the reconciler against the thread's known messages: the
// stored snapshot when available, otherwise a fresh fetch.
func (a *app) cmdApply(ctx context.Context, threadID string, keep bool) error {
	snap, err := a.knownSnapshot(ctx, threadID)
	if err != nil {
		return err
	}
	if keep {
		err = a.reconciler.Keep(ctx, snap.Messages)
	} else {
		err = a.reconciler.Archive(ctx, snap.Messages)
	}
	if err != nil {
		return err
	}
	if a.snapshots != nil {
		_ = a.snapshots.DeleteSnapshot(ctx, threadID)
	}
	return nil
}

func (a *app) knownSnapshot(ctx context.Context, threadID string) (*services.ThreadSnapshot, error) {
	if a.snapshots != nil {
		if snap, ok, err := a.snapshots.LoadSnapshot(ctx, threadID); err == nil && ok {
			return snap, nil
		} else if err != nil {
			a.logger.Printf("could not load snapshot for %s: %v", threadID, err)
		}
	}
	members, err := a.client.FetchThreadMembers(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return services.SnapshotFromMessages(threadID, members, time.Now()), nil
}

func (a *app) cmdUndo(ctx context.Context) error {
	result, err := a.undo.UndoLastAction(ctx)
	if err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%s", strings.Join(result.Errors, "; "))
	}
	fmt.Println(result.Description)
	return nil
}

func (a *app) cmdPrune(ctx context.Context) error {
	if a.snapshots == nil {
		return fmt.Errorf("snapshot cache is disabled")
	}
	n, err := a.snapshots.PruneSnapshots(ctx, a.cfg.GetSnapshotTTL())
	if err != nil {
		return err
	}
	fmt.Printf("pruned %d snapshot rows\n", n)
	return nil
}

func headerValue(payload *gmailapi.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// getConfigPath returns the configuration file path using the following priority:
// 1. CLI flag
// 2. Environment variable TEAMAIL_CONFIG
// 3. Default path ~/.config/teamail/config.json
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("TEAMAIL_CONFIG"); envPath != "" {
		return config.ExpandPath(envPath)
	}
	return config.DefaultConfigPath()
}

// getCredentialsPath returns the credentials file path using the following priority:
// 1. CLI flag
// 2. Environment variable TEAMAIL_CREDENTIALS
// 3. Config file setting
// 4. Default path ~/.config/teamail/credentials.json
func getCredentialsPath(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("TEAMAIL_CREDENTIALS"); envPath != "" {
		return config.ExpandPath(envPath)
	}
	if configValue != "" {
		return config.ExpandPath(configValue)
	}
	return config.DefaultCredentialsPath()
}

// getTokenPath returns the token file path using the following priority:
// 1. Environment variable TEAMAIL_TOKEN
// 2. Config file setting
// 3. Default path ~/.config/teamail/token.json
func getTokenPath(configValue string) string {
	if envPath := os.Getenv("TEAMAIL_TOKEN"); envPath != "" {
		return config.ExpandPath(envPath)
	}
	if configValue != "" {
		return config.ExpandPath(configValue)
	}
	return config.DefaultTokenPath()
}
