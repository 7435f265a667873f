// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

// Gazelog records one study session: it asks for the participant,
// connects to the companion applications, runs the planned tasks, and
// fuses gaze, head-mounted hand, and top-view hand tracking into one
// log record per gaze sample.
//
// Configuration comes from the YAML file named by --config or
// GAZELOG_CONFIG, with built-in defaults otherwise; a few flags
// override it for a single run. Ctrl+C interrupts the session: the
// records gathered so far are saved and moved to the interrupted
// folder, and the process exits with status 130.
//
// Without vendor tracker bindings the gaze and hand sources report no
// device, so sessions need --debug, which skips the device check and
// feeds synthetic gaze samples.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/gazelog/gazelog/lib/applog"
	"github.com/gazelog/gazelog/lib/archive"
	"github.com/gazelog/gazelog/lib/catalog"
	"github.com/gazelog/gazelog/lib/config"
	"github.com/gazelog/gazelog/lib/console"
	"github.com/gazelog/gazelog/lib/process"
	"github.com/gazelog/gazelog/lib/sensor"
	"github.com/gazelog/gazelog/lib/taskplan"
	"github.com/gazelog/gazelog/lib/version"
	"github.com/gazelog/gazelog/lib/watchdog"
	"github.com/gazelog/gazelog/recorder"
)

// markerName is the in-progress session marker, under DataRoot.
const markerName = "session.marker"

func main() {
	process.Exit(run(os.Args[1:], os.Stdin, os.Stdout))
}

// options are the command-line flags. set records which flags were
// given, so that only those override the configuration.
type options struct {
	configPath  string
	logFolder   string
	debug       bool
	verbose     bool
	setupFile   string
	setupIndex  int
	pace        string
	host        string
	participant int
	seed        uint64
	noRating    bool
	showVersion bool

	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{set: make(map[string]bool)}
	flags := pflag.NewFlagSet("gazelog", pflag.ContinueOnError)
	flags.SetOutput(output)
	flags.StringVar(&opts.configPath, "config", "", "configuration file (default: $GAZELOG_CONFIG, then built-in defaults)")
	flags.StringVar(&opts.logFolder, "log", "", "folder for record files")
	flags.BoolVar(&opts.debug, "debug", false, "skip the device check and synthesize gaze samples without an eye tracker")
	flags.BoolVar(&opts.verbose, "verbose", false, "log progress and every 50th fused sample")
	flags.StringVar(&opts.setupFile, "setup", "", "task setup file (JSONC)")
	flags.IntVar(&opts.setupIndex, "index", 0, "setup to run from the setup file")
	flags.StringVar(&opts.pace, "pace", "", "pace profile sent to the task application")
	flags.StringVar(&opts.host, "ip", "", "host running the companion applications")
	flags.IntVar(&opts.participant, "participant", -1, "participant ID; prompts when negative")
	flags.Uint64Var(&opts.seed, "seed", 0, "task order seed for randomized setups (0 picks one)")
	flags.BoolVar(&opts.noRating, "no-rating", false, "do not ask for a rating after each task")
	flags.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}
	flags.Visit(func(flag *pflag.Flag) { opts.set[flag.Name] = true })
	return opts, nil
}

// loadConfig reads the configuration and applies the flag overrides.
func loadConfig(opts *options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if opts.set["log"] {
		cfg.Log.Folder = opts.logFolder
	}
	if opts.set["debug"] {
		cfg.Session.Debug = opts.debug
	}
	if opts.set["verbose"] {
		cfg.Session.Verbose = opts.verbose
	}
	if opts.set["setup"] {
		cfg.Session.SetupFile = opts.setupFile
	}
	if opts.set["index"] {
		cfg.Session.SetupIndex = opts.setupIndex
	}
	if opts.set["pace"] {
		cfg.Session.Pace = opts.pace
	}
	if opts.set["ip"] {
		cfg.Peers.Host = opts.host
	}
	if opts.noRating {
		cfg.Session.Rating = false
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if opts.showVersion {
		fmt.Fprintln(stdout, "gazelog", version.Full())
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	started := time.Now()
	logger, closeLogger, err := newLogger(cfg.Log.DebugFolder, started, cfg.Session.Verbose)
	if err != nil {
		return err
	}
	defer closeLogger()

	sessionID := uuid.NewString()
	logger.Info("gazelog starting",
		"version", version.Info(),
		"session_id", sessionID,
		"data_root", cfg.DataRoot,
		"debug", cfg.Session.Debug,
	)

	operator := console.New(console.Config{In: stdin, Out: stdout, Logger: logger})
	operator.Title("gazelog " + version.Short())

	store, err := archive.New(archive.Config{
		Source:      cfg.Log.Folder,
		Destination: cfg.Archive.Destination,
		Masks:       cfg.Archive.Masks,
		Paces:       cfg.Archive.Paces,
		Recipients:  cfg.Archive.Recipients,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var sessions *catalog.Catalog
	if cfg.Catalog.Path != "" {
		sessions, err = catalog.Open(ctx, cfg.Catalog.Path, logger)
		if err != nil {
			return err
		}
		defer sessions.Close()
	}

	markerPath := filepath.Join(cfg.DataRoot, markerName)
	recoverAbandoned(ctx, operator, logger, store, sessions, markerPath, cfg.Session.StaleMarkerAge)

	participant := opts.participant
	if participant < 0 {
		participant, err = askParticipant(ctx, operator, logger, store, sessions)
		if err != nil {
			return err
		}
	}

	setup, err := taskplan.Load(cfg.Session.SetupFile, cfg.Session.SetupIndex)
	if err != nil {
		return err
	}
	if err := setup.Validate(); err != nil {
		return fmt.Errorf("task setup %d in %s: %w", cfg.Session.SetupIndex, cfg.Session.SetupFile, err)
	}
	seed := opts.seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	conditions := setup.Expand(rand.New(rand.NewPCG(seed, seed)))
	logger.Info("task plan loaded",
		"setup_file", cfg.Session.SetupFile,
		"setup_index", cfg.Session.SetupIndex,
		"tasks", len(conditions),
		"randomized", setup.Randomized,
		"seed", seed,
	)

	records, err := applog.New(applog.Config{
		Folder:      cfg.Log.Folder,
		Prefix:      cfg.Log.Prefix,
		Compression: applog.Compression(cfg.Log.Compression),
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	datagramAddress := cfg.HandDatagram.Address
	if cfg.HandDatagram.Disabled {
		datagramAddress = ""
	}
	recorderConfig := recorder.Config{
		SessionID:     sessionID,
		ParticipantID: participant,
		Pace:          cfg.Session.Pace,
		SetupFile:     cfg.Session.SetupFile,
		SetupIndex:    cfg.Session.SetupIndex,
		Peers: recorder.PeerAddresses{
			Task:         cfg.Peers.Address(cfg.Peers.Task),
			Peripheral:   cfg.Peers.Address(cfg.Peers.Peripheral),
			HandStreamer: cfg.Peers.Address(cfg.Peers.HandStreamer),
		},
		DatagramAddress: datagramAddress,
		Gaze:            sensor.Unavailable{},
		Hand:            sensor.UnavailableHand{},
		Operator:        consoleOperator{operator},
		Log:             records,
		LogFolder:       cfg.Log.Folder,
		Archive:         store,
		MarkerPath:      markerPath,
		HandOffset:      cfg.Devices.HandOffset,
		Debug:           cfg.Session.Debug,
		Verbose:         cfg.Session.Verbose,
		Rating:          cfg.Session.Rating,
		Timing: recorder.Timing{
			ConnectTimeout:    cfg.Peers.ConnectTimeout,
			ReplyTimeout:      cfg.Session.ReplyTimeout,
			PollInterval:      cfg.Session.PollInterval,
			StartStagger:      cfg.Session.StartStagger,
			StopSettle:        cfg.Session.StopSettle,
			ProfileDelay:      cfg.Session.ProfileDelay,
			SyntheticInterval: cfg.Session.SyntheticInterval,
		},
		Logger: logger,
	}
	if sessions != nil {
		recorderConfig.Catalog = sessions
	}
	rec, err := recorder.New(recorderConfig)
	if err != nil {
		return err
	}
	defer rec.Close()

	if err := rec.Prepare(ctx); err != nil {
		return &process.ExitError{Code: process.ExitCodeInterrupted, Err: fmt.Errorf("interrupted while connecting: %w", err)}
	}

	report, err := rec.Run(ctx, conditions)
	printSummary(operator, report)
	if err != nil {
		return err
	}

	switch report.Outcome {
	case recorder.OutcomeCompleted:
		return nil
	case recorder.OutcomeDeviceNotReady:
		return recorder.ErrDeviceNotReady
	default:
		return &process.ExitError{Code: process.ExitCodeInterrupted, Err: recorder.ErrOperatorInterrupt}
	}
}

// askParticipant prompts for the participant, hinting at the highest ID
// known to the archive or the catalog.
func askParticipant(ctx context.Context, operator *console.Console, logger *slog.Logger, store *archive.Archive, sessions *catalog.Catalog) (int, error) {
	last, err := store.LastParticipantID()
	if err != nil {
		logger.Warn("scanning participant folders failed", "error", err)
	}
	if sessions != nil {
		cataloged, err := sessions.LastParticipantID(ctx)
		if err != nil {
			logger.Warn("reading last participant from catalog failed", "error", err)
		}
		last = max(last, cataloged)
	}
	return operator.AskParticipantID(ctx, last, store.IsParticipantComplete)
}

// recoverAbandoned reports a session that crashed before cleanup and
// quarantines the files it left in the log folder, so they are not
// collected into the next participant's folder.
func recoverAbandoned(ctx context.Context, operator *console.Console, logger *slog.Logger, store *archive.Archive, sessions *catalog.Catalog, markerPath string, maxAge time.Duration) {
	state, found, err := watchdog.Check(markerPath, maxAge, time.Now())
	switch {
	case err != nil:
		logger.Warn("session marker unreadable", "path", markerPath, "error", err)
	case found:
		logger.Warn("previous session did not finish",
			"session_id", state.SessionID,
			"participant", state.ParticipantID,
			"task", state.TaskIndex,
			"pid", state.PID,
		)
		operator.Warn(fmt.Sprintf("The previous session (participant %d) stopped at task %d/%d without saving.",
			state.ParticipantID, state.TaskIndex+1, state.TaskCount))
		result, err := store.Quarantine(state.SessionID)
		if err != nil {
			logger.Error("quarantining abandoned session files failed", "error", err)
		} else if len(result.Files) > 0 {
			operator.Info(fmt.Sprintf("Its %d files were moved to %s.", len(result.Files), result.Folder))
		}
	}
	if err := watchdog.Clear(markerPath); err != nil {
		logger.Warn("clearing session marker failed", "error", err)
	}

	if sessions == nil {
		return
	}
	unfinished, err := sessions.Unfinished(ctx)
	if err != nil {
		logger.Warn("listing unfinished sessions failed", "error", err)
		return
	}
	for _, session := range unfinished {
		if err := sessions.FinishSession(ctx, session.ID, string(recorder.OutcomeAbandoned), time.Now()); err != nil {
			logger.Warn("closing abandoned session failed", "session_id", session.ID, "error", err)
		}
	}
}

func printSummary(operator *console.Console, report recorder.SessionReport) {
	completed := 0
	for _, task := range report.Tasks {
		if task.Outcome == recorder.OutcomeCompleted {
			completed++
		}
	}
	operator.Title(fmt.Sprintf("Session %s: %d task(s) completed", report.Outcome, completed))
	if report.ArchiveFolder != "" {
		operator.Info("Files saved to " + report.ArchiveFolder)
	}
}
