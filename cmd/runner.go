package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/scrobtools/scrob/internal/providers"
	"github.com/scrobtools/scrob/internal/repositories"
	"github.com/scrobtools/scrob/internal/shared"
	"github.com/scrobtools/scrob/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config  *shared.Config
	store   *repositories.Store
	history tasks.HistoryProvider
	info    tasks.InfoProvider
	listens tasks.ListenProvider
	mb      tasks.MusicBrainzProvider
	discogs tasks.DiscogsProvider
	logger  *log.Logger
	output  io.Writer

	// presetClients marks providers injected through RunnerOpts; buildClients
	// leaves those alone so tests keep their doubles.
	presetClients bool
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config  *shared.Config
	Store   *repositories.Store // Preset store, mainly for tests; commands open their own otherwise
	History tasks.HistoryProvider
	Info    tasks.InfoProvider
	Listens tasks.ListenProvider
	MB      tasks.MusicBrainzProvider
	Discogs tasks.DiscogsProvider
	Logger  *log.Logger
	Output  io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	preset := opts.History != nil || opts.Info != nil || opts.Listens != nil ||
		opts.MB != nil || opts.Discogs != nil

	return &Runner{
		config:        opts.Config,
		store:         opts.Store,
		history:       opts.History,
		info:          opts.Info,
		listens:       opts.Listens,
		mb:            opts.MB,
		discogs:       opts.Discogs,
		logger:        opts.Logger,
		output:        opts.Output,
		presetClients: preset,
	}
}

// buildClients constructs provider clients from the resolved config. Runs
// after loadConfig so a --config file's credentials reach the network layer.
func (r *Runner) buildClients() {
	if r.presetClients {
		return
	}

	var httpClient *http.Client
	if r.config.Sync.RequestTimeout > 0 {
		httpClient = &http.Client{Timeout: time.Duration(r.config.Sync.RequestTimeout) * time.Second}
	}

	lastfm := providers.NewLastFMClient(r.config.Credentials.LastFM.APIKey, httpClient, r.logger)
	r.history = lastfm
	r.info = lastfm
	r.listens = providers.NewListenBrainzClient(
		r.config.Credentials.ListenBrainz.BaseURL,
		r.config.Credentials.ListenBrainz.UserAgent,
		httpClient, r.logger)
	r.mb = providers.NewMusicBrainzClient(r.config.Credentials.ListenBrainz.UserAgent, httpClient, r.logger)
	r.discogs = providers.NewDiscogsClient(r.config.Credentials.Discogs.Tokens, httpClient, r.logger)
}

// SetLogger swaps the runner's logger, used by the TUI to redirect logs away
// from the rendered view.
func (r *Runner) SetLogger(l *log.Logger) { r.logger = l }

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, syncCommand, importCommand, enrichCommand, statsCommand, cacheCommand, exportCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// withStore runs fn against the configured database. A store preset on the
// Runner is reused as-is; otherwise the database is opened for the duration
// of the command.
func (r *Runner) withStore(fn func(*repositories.Store) error) error {
	if r.store != nil {
		return fn(r.store)
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	return fn(repositories.NewStore(db))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
