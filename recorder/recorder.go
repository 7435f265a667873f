// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gazelog/gazelog/lib/applog"
	"github.com/gazelog/gazelog/lib/archive"
	"github.com/gazelog/gazelog/lib/await"
	"github.com/gazelog/gazelog/lib/catalog"
	"github.com/gazelog/gazelog/lib/cell"
	"github.com/gazelog/gazelog/lib/clock"
	"github.com/gazelog/gazelog/lib/geometry"
	"github.com/gazelog/gazelog/lib/schema"
	"github.com/gazelog/gazelog/lib/sensor"
	"github.com/gazelog/gazelog/lib/taskplan"
	"github.com/gazelog/gazelog/lib/watchdog"
	"github.com/gazelog/gazelog/transport"
)

// Operator is the person running the session. Every blocking method
// returns when ctx ends; an error from WaitStart, WaitStop, or Rating
// (end of input included) interrupts the session.
type Operator interface {
	Announce(message string)
	Warn(message string)
	WaitStart(ctx context.Context) error
	WaitStop(ctx context.Context) error
	Rating(ctx context.Context) (int, error)
	Report(stats TaskStats)
}

// Catalog records sessions and tasks. *catalog.Catalog implements it.
type Catalog interface {
	BeginSession(ctx context.Context, session catalog.Session) error
	RecordTask(ctx context.Context, task catalog.Task) error
	FinishSession(ctx context.Context, sessionID, outcome string, finishedAt time.Time) error
}

// Archive stores the files of a finished session. *archive.Archive
// implements it.
type Archive interface {
	SaveTemporary(name string, content []byte) (string, error)
	Collect(participantID int, pace string) (archive.Result, error)
	Quarantine(sessionID string) (archive.Result, error)
}

// PeerAddresses are host:port addresses of the companion applications.
// An empty address leaves that peer unconnected.
type PeerAddresses struct {
	Task         string
	Peripheral   string
	HandStreamer string
}

// Timing holds the protocol delays. Zero timeouts and intervals take
// the defaults. The three pauses (StartStagger, StopSettle, ProfileDelay)
// may be zero to skip them; a negative pause takes the default.
type Timing struct {
	// ConnectTimeout bounds each peer connection. Default 3s.
	ConnectTimeout time.Duration

	// ReplyTimeout bounds each request/reply exchange. Default 3s.
	ReplyTimeout time.Duration

	// PollInterval is the period of every "wait until" loop. Default
	// 100ms.
	PollInterval time.Duration

	// StartStagger delays the start of the task and peripheral peers
	// behind the hand streamer. Default 1s.
	StartStagger time.Duration

	// StopSettle is the pause between the stop commands and the log
	// request. Default 500ms.
	StopSettle time.Duration

	// ProfileDelay surrounds the pace profile command. Default 200ms.
	ProfileDelay time.Duration

	// SyntheticInterval is the debug gaze period. Default 5ms.
	SyntheticInterval time.Duration
}

func (t Timing) withDefaults() Timing {
	defaults := Timing{
		ConnectTimeout:    transport.DefaultConnectTimeout,
		ReplyTimeout:      await.DefaultTimeout,
		PollInterval:      await.DefaultInterval,
		StartStagger:      time.Second,
		StopSettle:        500 * time.Millisecond,
		ProfileDelay:      200 * time.Millisecond,
		SyntheticInterval: 5 * time.Millisecond,
	}
	fill := func(value *time.Duration, fallback time.Duration) {
		if *value <= 0 {
			*value = fallback
		}
	}
	fillPause := func(value *time.Duration, fallback time.Duration) {
		if *value < 0 {
			*value = fallback
		}
	}
	fill(&t.ConnectTimeout, defaults.ConnectTimeout)
	fill(&t.ReplyTimeout, defaults.ReplyTimeout)
	fill(&t.PollInterval, defaults.PollInterval)
	fillPause(&t.StartStagger, defaults.StartStagger)
	fillPause(&t.StopSettle, defaults.StopSettle)
	fillPause(&t.ProfileDelay, defaults.ProfileDelay)
	fill(&t.SyntheticInterval, defaults.SyntheticInterval)
	return t
}

// Config configures a Recorder.
type Config struct {
	// SessionID names the session in the catalog, the marker, and the
	// quarantine folder. Required.
	SessionID string

	// ParticipantID is 0 for an anonymous session.
	ParticipantID int

	// Pace selects the task peer's profile and the archive folder.
	// Empty sends no profile.
	Pace string

	SetupFile  string
	SetupIndex int

	Peers PeerAddresses

	// Dialer defaults to a TCP dialer.
	Dialer transport.Dialer

	// DatagramAddress is the UDP bind address of the top-view hand
	// stream. Empty disables the receiver.
	DatagramAddress string

	// Gaze and Hand default to sources with no device.
	Gaze sensor.GazeSource
	Hand sensor.HandSource

	// Operator is required.
	Operator Operator

	// Log receives the fused records. Required.
	Log *applog.Log

	// LogFolder receives the session manifest and the task peer's
	// logs. Required.
	LogFolder string

	// Archive, Catalog, and MarkerPath are optional.
	Archive    Archive
	Catalog    Catalog
	MarkerPath string

	// HandOffset is the head-mounted hand tracker's mounting offset.
	HandOffset geometry.Vector

	// Debug skips the device check and substitutes synthetic gaze
	// samples for a missing eye tracker.
	Debug bool

	// Verbose logs every 50th fused sample at info level with all
	// values. Without it the line carries only counters, at debug level.
	Verbose bool

	// Rating asks the operator for a difficulty rating after each
	// completed task.
	Rating bool

	Timing Timing

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to a discarding logger.
	Logger *slog.Logger

	// OnStateChange observes every state transition, on the goroutine
	// that made it.
	OnStateChange func(from, to State)
}

// Recorder runs one session. Create it with New, call Prepare once to
// reach the peers, then Run, then Close.
type Recorder struct {
	sessionID     string
	participantID int
	pace          string
	setupFile     string
	setupIndex    int

	peers           PeerAddresses
	datagramAddress string

	gaze     sensor.GazeSource
	hand     sensor.HandSource
	operator Operator

	log        *applog.Log
	logFolder  string
	archive    Archive
	catalog    Catalog
	markerPath string

	debug         bool
	rating        bool
	timing        Timing
	clock         clock.Clock
	logger        *slog.Logger
	onStateChange func(from, to State)

	task       *transport.LineClient
	peripheral *transport.LineClient
	streamer   *transport.LineClient
	datagrams  *transport.DatagramReceiver

	fusion *fusion

	state           atomic.Int32
	finished        atomic.Bool
	logReceived     atomic.Bool
	lambdasReceived atomic.Bool
	tasksReceived   atomic.Bool
	streamerPackets atomic.Int64

	lambdas *cell.Cell[[]float64]
	tasks   *cell.Cell[[]string]

	interrupted atomic.Bool
	runMu       sync.Mutex
	cancelRun   context.CancelFunc

	closeOnce sync.Once
}

// New validates cfg and returns an idle Recorder. No connection is
// made until Prepare.
func New(cfg Config) (*Recorder, error) {
	var problems []error
	if cfg.SessionID == "" {
		problems = append(problems, errors.New("recorder: SessionID is required"))
	}
	if cfg.Operator == nil {
		problems = append(problems, errors.New("recorder: Operator is required"))
	}
	if cfg.Log == nil {
		problems = append(problems, errors.New("recorder: Log is required"))
	}
	if cfg.LogFolder == "" {
		problems = append(problems, errors.New("recorder: LogFolder is required"))
	}
	if err := errors.Join(problems...); err != nil {
		return nil, err
	}

	r := &Recorder{
		sessionID:       cfg.SessionID,
		participantID:   cfg.ParticipantID,
		pace:            cfg.Pace,
		setupFile:       cfg.SetupFile,
		setupIndex:      cfg.SetupIndex,
		peers:           cfg.Peers,
		datagramAddress: cfg.DatagramAddress,
		gaze:            cfg.Gaze,
		hand:            cfg.Hand,
		operator:        cfg.Operator,
		log:             cfg.Log,
		logFolder:       cfg.LogFolder,
		archive:         cfg.Archive,
		catalog:         cfg.Catalog,
		markerPath:      cfg.MarkerPath,
		debug:           cfg.Debug,
		rating:          cfg.Rating,
		timing:          cfg.Timing.withDefaults(),
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		onStateChange:   cfg.OnStateChange,
		lambdas:         cell.New[[]float64](nil),
		tasks:           cell.New[[]string](nil),
	}
	if r.gaze == nil {
		r.gaze = sensor.Unavailable{}
	}
	if r.hand == nil {
		r.hand = sensor.UnavailableHand{}
	}
	if r.clock == nil {
		r.clock = clock.Real()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	r.logger = r.logger.With("session_id", r.sessionID)
	if r.onStateChange == nil {
		r.onStateChange = func(State, State) {}
	}

	r.fusion = newFusion(r.log, r.logger, cfg.HandOffset, cfg.Verbose)

	r.task = transport.NewLineClient(transport.LineClientConfig{
		Name:         "task",
		Dialer:       cfg.Dialer,
		Logger:       r.logger,
		OnMessage:    r.onTaskMessage,
		OnDisconnect: r.onPeerDisconnect("task"),
	})
	r.peripheral = transport.NewLineClient(transport.LineClientConfig{
		Name:         "peripheral",
		Dialer:       cfg.Dialer,
		Logger:       r.logger,
		OnMessage:    r.onPeripheralMessage,
		OnDisconnect: r.onPeerDisconnect("peripheral"),
	})
	r.streamer = transport.NewLineClient(transport.LineClientConfig{
		Name:         "hand_streamer",
		Dialer:       cfg.Dialer,
		Logger:       r.logger,
		OnMessage:    func(string) { r.streamerPackets.Add(1) },
		OnDisconnect: r.onPeerDisconnect("hand_streamer"),
	})
	return r, nil
}

// State returns the current state.
func (r *Recorder) State() State {
	return State(r.state.Load())
}

func (r *Recorder) setState(to State) {
	from := State(r.state.Swap(int32(to)))
	if from == to {
		return
	}
	r.logger.Debug("state changed", "from", from, "to", to)
	r.onStateChange(from, to)
}

// Interrupt ends the session at the next state boundary and cancels
// whatever the orchestrator is waiting on. It is safe to call from any
// goroutine, any number of times.
func (r *Recorder) Interrupt() {
	if !r.interrupted.Swap(true) {
		r.logger.Warn("session interrupted")
	}
	r.runMu.Lock()
	cancel := r.cancelRun
	r.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Interrupted reports whether Interrupt has been called.
func (r *Recorder) Interrupted() bool {
	return r.interrupted.Load()
}

// Close disconnects every peer and stops the datagram receiver.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.task.Stop()
		r.peripheral.Stop()
		r.streamer.Stop()
		if r.datagrams != nil {
			r.datagrams.Stop()
			r.logger.Info("hand datagram receiver stopped",
				"received", r.datagrams.Received(),
				"dropped", r.datagrams.Dropped(),
			)
		}
	})
}

func (r *Recorder) onTaskMessage(message string) {
	switch {
	case strings.HasPrefix(message, replyFinished):
		r.finished.Store(true)
	case strings.HasPrefix(message, replyTasks):
		r.tasks.Write(parseTaskDescriptions(message[len(replyTasks):]))
		r.tasksReceived.Store(true)
	case strings.HasPrefix(message, replyLog):
		r.saveTaskLog(message[len(replyLog):])
		r.logReceived.Store(true)
		message = replyLog
	}
	r.fusion.post(message)
}

func (r *Recorder) onPeripheralMessage(message string) {
	if strings.HasPrefix(message, replyLambdas) {
		r.lambdas.Write(parseLambdas(message[len(replyLambdas):]))
		r.lambdasReceived.Store(true)
	}
}

func (r *Recorder) onPeerDisconnect(name string) func(error) {
	return func(err error) {
		if err != nil {
			r.logger.Warn("peer disconnected", "peer", name, "error", err)
			return
		}
		r.logger.Info("peer disconnected", "peer", name)
	}
}

// saveTaskLog stores the task peer's log next to the session's logs,
// where collection picks it up.
func (r *Recorder) saveTaskLog(payload string) {
	now := r.clock.Now()
	var (
		path string
		err  error
	)
	if r.archive != nil {
		path, err = applog.UniquePath(r.logFolder, "nbt", now, ".txt")
		if err == nil {
			path, err = r.archive.SaveTemporary(filepath.Base(path), []byte(payload))
		}
	} else {
		path, err = applog.WriteStamped(r.logFolder, "nbt", now, []byte(payload))
	}
	if err != nil {
		r.logger.Error("saving task peer log failed", "error", err)
		return
	}
	r.logger.Info("task peer log saved", "path", path, "bytes", len(payload))
}

// Prepare starts the datagram receiver, connects the peers, fetches
// their catalogs, and loads the pace profile. Unreachable peers and
// unanswered requests are reported to the operator and skipped; only
// cancellation of ctx is an error.
func (r *Recorder) Prepare(ctx context.Context) error {
	if r.datagramAddress != "" {
		receiver, err := transport.ListenDatagrams(ctx, transport.DatagramConfig{
			Address: r.datagramAddress,
			Logger:  r.logger,
			OnData:  r.fusion.onTopView,
		})
		if err != nil {
			r.logger.Warn("hand datagram receiver not started", "error", err)
			r.operator.Warn(fmt.Sprintf("Cannot receive hand datagrams on %s.", r.datagramAddress))
		} else {
			r.datagrams = receiver
		}
	}

	r.connect(ctx, r.task, r.peers.Task, "task application")
	r.connect(ctx, r.peripheral, r.peers.Peripheral, "peripheral application")
	r.connect(ctx, r.streamer, r.peers.HandStreamer, "hand streamer")
	if err := ctx.Err(); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if r.peripheral.IsConnected() {
		wg.Go(func() { r.request(ctx, r.peripheral, commandGetLambdas, r.lambdasReceived.Load) })
	}
	if r.task.IsConnected() {
		wg.Go(func() { r.request(ctx, r.task, commandGetTasks, r.tasksReceived.Load) })
	}
	wg.Wait()

	if r.pace != "" && r.task.IsConnected() {
		r.clock.Sleep(r.timing.ProfileDelay)
		r.task.Send(commandLoadProfile + r.pace)
		r.clock.Sleep(r.timing.ProfileDelay)
		r.logger.Info("pace profile sent", "pace", r.pace)
	}
	return ctx.Err()
}

func (r *Recorder) connect(ctx context.Context, client *transport.LineClient, address, label string) {
	if address == "" {
		return
	}
	if err := client.Connect(ctx, address, r.timing.ConnectTimeout); err != nil {
		r.logger.Warn("peer connection failed", "peer", client.Name(), "address", address, "error", err)
		r.operator.Warn(fmt.Sprintf("Cannot connect to %s on %s. Is it running?", label, address))
		return
	}
	r.operator.Announce(fmt.Sprintf("Connected to %s on %s.", label, address))
}

// request sends command and waits for hasReply. A timeout is reported
// and returned; the caller carries on either way.
func (r *Recorder) request(ctx context.Context, client *transport.LineClient, command string, hasReply func() bool) error {
	err := await.Reply(ctx, r.clock, func() { client.Send(command) }, hasReply, await.Options{
		Interval: r.timing.PollInterval,
		Timeout:  r.timing.ReplyTimeout,
	})
	if errors.Is(err, await.ErrTimeout) {
		r.logger.Warn("request timed out", "peer", client.Name(), "command", command)
		r.operator.Warn(fmt.Sprintf("Timeout for request '%s'.", command))
	}
	return err
}

func sendIfConnected(client *transport.LineClient, command string) {
	if client.IsConnected() {
		client.Send(command)
	}
}

// Run executes conditions in order and returns the session report.
// Cancelling ctx interrupts the session like Interrupt. The returned
// error reports a manifest or flush failure; task outcomes are in the
// report.
func (r *Recorder) Run(ctx context.Context, conditions []schema.TaskCondition) (SessionReport, error) {
	runCtx, cancel := context.WithCancel(ctx)
	r.runMu.Lock()
	r.cancelRun = cancel
	r.runMu.Unlock()
	defer func() {
		r.runMu.Lock()
		r.cancelRun = nil
		r.runMu.Unlock()
		cancel()
	}()
	if r.interrupted.Load() {
		cancel()
	}
	stopWatching := context.AfterFunc(ctx, r.Interrupt)
	defer stopWatching()

	// Cleanup outlives an interrupt.
	cleanupCtx := context.WithoutCancel(ctx)

	started := r.clock.Now()
	report := SessionReport{
		SessionID: r.sessionID,
		Started:   started,
		Outcome:   OutcomeCompleted,
	}

	manifestPath, err := taskplan.WriteManifest(r.logFolder, started, conditions)
	if err != nil {
		report.Outcome = OutcomeInterrupted
		report.Finished = r.clock.Now()
		r.setState(StateInterrupted)
		return report, fmt.Errorf("writing session manifest: %w", err)
	}
	report.ManifestPath = manifestPath
	r.logger.Info("session started",
		"participant", r.participantID,
		"pace", r.pace,
		"tasks", len(conditions),
		"manifest", manifestPath,
	)

	if r.catalog != nil {
		err := r.catalog.BeginSession(cleanupCtx, catalog.Session{
			ID:            r.sessionID,
			ParticipantID: r.participantID,
			Pace:          r.pace,
			SetupFile:     r.setupFile,
			SetupIndex:    r.setupIndex,
			TaskCount:     len(conditions),
			Debug:         r.debug,
			StartedAt:     started,
		})
		if err != nil {
			r.logger.Error("catalog session not recorded", "error", err)
		}
	}

	var flushErrors []error
	for index, condition := range conditions {
		if r.interrupted.Load() {
			break
		}
		r.writeMarker(started, index, len(conditions))

		result := r.runTask(runCtx, index, len(conditions), condition)
		report.Tasks = append(report.Tasks, result)
		r.recordTask(cleanupCtx, result)

		if result.Outcome != OutcomeCompleted {
			report.Outcome = result.Outcome
			break
		}
		if result.Err != nil {
			flushErrors = append(flushErrors, result.Err)
		}
	}
	if r.interrupted.Load() && report.Outcome == OutcomeCompleted {
		report.Outcome = OutcomeInterrupted
	}

	if r.log.Len() > 0 {
		if _, err := r.log.Flush(); err != nil {
			r.operator.Warn("Could not save the remaining records.")
			flushErrors = append(flushErrors, fmt.Errorf("flushing session log: %w", err))
		}
	}
	report.Finished = r.clock.Now()

	r.store(&report)

	if r.catalog != nil {
		if err := r.catalog.FinishSession(cleanupCtx, r.sessionID, string(report.Outcome), report.Finished); err != nil {
			r.logger.Error("catalog session not finished", "error", err)
		}
	}
	if r.markerPath != "" {
		if err := watchdog.Clear(r.markerPath); err != nil {
			r.logger.Warn("session marker not cleared", "error", err)
		}
	}

	if report.Outcome == OutcomeCompleted {
		r.setState(StateSessionDone)
	} else {
		r.setState(StateInterrupted)
	}
	r.logger.Info("session finished",
		"outcome", report.Outcome,
		"tasks", len(report.Tasks),
		"duration", report.Finished.Sub(report.Started),
	)
	return report, errors.Join(flushErrors...)
}

// store collects the session files, or quarantines them when the
// session did not complete.
func (r *Recorder) store(report *SessionReport) {
	if r.archive == nil {
		return
	}
	var (
		result archive.Result
		err    error
	)
	if report.Outcome == OutcomeCompleted {
		result, err = r.archive.Collect(r.participantID, r.pace)
	} else {
		result, err = r.archive.Quarantine(r.sessionID)
	}
	if err != nil {
		r.logger.Error("archiving session files failed", "error", err)
		r.operator.Warn("Could not move all session files: " + err.Error())
	}
	if !result.Skipped {
		report.ArchiveFolder = result.Folder
	}
}

func (r *Recorder) writeMarker(started time.Time, index, count int) {
	if r.markerPath == "" {
		return
	}
	err := watchdog.Write(r.markerPath, watchdog.State{
		SessionID:     r.sessionID,
		ParticipantID: r.participantID,
		Pace:          r.pace,
		TaskIndex:     index,
		TaskCount:     count,
		PID:           os.Getpid(),
		Started:       started,
		Timestamp:     r.clock.Now(),
	})
	if err != nil {
		r.logger.Warn("session marker not written", "error", err)
	}
}

func (r *Recorder) recordTask(ctx context.Context, result TaskResult) {
	if r.catalog == nil {
		return
	}
	err := r.catalog.RecordTask(ctx, catalog.Task{
		SessionID:       r.sessionID,
		Index:           result.Index,
		CttLambdaIndex:  result.Condition.CttLambdaIndex,
		NBackTaskIndex:  result.Condition.NBackTaskIndex,
		Outcome:         string(result.Outcome),
		Rating:          result.Rating,
		GazeSamples:     result.Stats.GazeSamples,
		HeadsetTotal:    result.Stats.HeadsetTotal,
		HeadsetValid:    result.Stats.HeadsetValid,
		TopViewTotal:    result.Stats.TopViewTotal,
		TopViewValid:    result.Stats.TopViewValid,
		StreamerPackets: result.Stats.StreamerPackets,
		LogPath:         result.LogPath,
		LogDigest:       result.LogDigest,
		FinishedAt:      r.clock.Now(),
	})
	if err != nil {
		r.logger.Error("catalog task not recorded", "task", result.Index, "error", err)
	}
}

func (r *Recorder) runTask(ctx context.Context, index, count int, condition schema.TaskCondition) TaskResult {
	result := TaskResult{Index: index, Condition: condition}
	logger := r.logger.With("task", index, "condition", condition.String())

	r.fusion.clear()
	r.finished.Store(false)
	r.logReceived.Store(false)

	if condition.IsValid() {
		sendIfConnected(r.task, commandSetTask+strconv.Itoa(condition.NBackTaskIndex))
		sendIfConnected(r.peripheral, commandSetLambda+strconv.Itoa(condition.CttLambdaIndex))
		r.operator.Announce(fmt.Sprintf("Task %d/%d: CTT = %s, NBack = %s [%d]",
			index+1, count,
			lambdaLabel(r.lambdas.Read(), condition.CttLambdaIndex),
			taskLabel(r.tasks.Read(), condition.NBackTaskIndex),
			condition.NBackTaskIndex,
		))
	} else {
		r.operator.Announce(fmt.Sprintf("Task %d/%d: wait", index+1, count))
	}

	r.setState(StateDeviceCheck)
	if !r.debug && !(r.hand.Ready() && r.gaze.Ready()) {
		logger.Warn("devices not ready", "hand", r.hand.Ready(), "gaze", r.gaze.Ready())
		r.operator.Warn("Not all devices are ready.")
		result.Outcome, result.Err = OutcomeDeviceNotReady, ErrDeviceNotReady
		return result
	}

	r.setState(StateAwaitStart)
	if r.interrupted.Load() {
		result.Outcome, result.Err = OutcomeInterrupted, ErrOperatorInterrupt
		return result
	}
	if err := r.operator.WaitStart(ctx); err != nil || r.interrupted.Load() {
		logger.Info("start not confirmed", "error", err)
		r.Interrupt()
		result.Outcome, result.Err = OutcomeInterrupted, ErrOperatorInterrupt
		return result
	}

	result.Stats = r.track(ctx, logger, condition)

	if r.interrupted.Load() {
		result.Outcome, result.Err = OutcomeInterrupted, ErrOperatorInterrupt
		return result
	}
	r.complete(ctx, logger, &result)
	return result
}

// track runs the Tracking and Stopping states and returns the task's
// counters.
func (r *Recorder) track(ctx context.Context, logger *slog.Logger, condition schema.TaskCondition) TaskStats {
	r.setState(StateTracking)
	r.streamerPackets.Store(0)
	r.fusion.attach()

	trackCtx, stopTracking := context.WithCancel(ctx)
	defer stopTracking()
	var background sync.WaitGroup

	if err := r.hand.Start(r.fusion.onHeadsetHand); err != nil {
		logger.Warn("hand source not started", "error", err)
	}
	if r.debug && !r.gaze.Ready() {
		logger.Info("substituting synthetic gaze samples", "interval", r.timing.SyntheticInterval)
		background.Go(func() {
			sensor.RunSynthetic(trackCtx, r.clock, r.timing.SyntheticInterval, r.fusion.onGaze)
		})
	} else if err := r.gaze.Start(r.fusion.onGaze); err != nil {
		logger.Warn("gaze source not started", "error", err)
	}

	sendIfConnected(r.streamer, commandStart)
	if condition.IsValid() {
		background.Go(func() {
			select {
			case <-trackCtx.Done():
				return
			case <-r.clock.After(r.timing.StartStagger):
			}
			if trackCtx.Err() != nil {
				return
			}
			sendIfConnected(r.task, commandStart)
			sendIfConnected(r.peripheral, commandStart)
		})
	}

	var stopRequested atomic.Bool
	background.Go(func() {
		err := r.operator.WaitStop(trackCtx)
		switch {
		case err == nil:
			stopRequested.Store(true)
		case trackCtx.Err() == nil:
			logger.Info("operator input closed while tracking", "error", err)
			r.Interrupt()
		}
	})

	started := r.clock.Now()
	r.waitTracking(trackCtx, &stopRequested)
	logger.Info("tracking ended",
		"finished", r.finished.Load(),
		"stopped", stopRequested.Load(),
		"interrupted", r.interrupted.Load(),
		"duration", r.clock.Now().Sub(started),
	)

	r.setState(StateStopping)
	r.fusion.detach()
	stopTracking()
	if condition.IsValid() {
		sendIfConnected(r.task, commandStop)
		sendIfConnected(r.peripheral, commandStop)
	}
	sendIfConnected(r.streamer, commandStop)
	r.hand.Stop()
	r.gaze.Stop()
	background.Wait()

	stats := r.fusion.counts()
	stats.StreamerPackets = int(r.streamerPackets.Load())
	return stats
}

// waitTracking blocks until the task peer finishes, the operator stops
// the task, or ctx ends.
func (r *Recorder) waitTracking(ctx context.Context, stopRequested *atomic.Bool) {
	ticker := r.clock.NewTicker(r.timing.PollInterval)
	defer ticker.Stop()
	for !r.finished.Load() && !stopRequested.Load() && !r.interrupted.Load() {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// complete runs the TaskComplete state of a task that was not
// interrupted.
func (r *Recorder) complete(ctx context.Context, logger *slog.Logger, result *TaskResult) {
	r.setState(StateTaskComplete)
	r.clock.Sleep(r.timing.StopSettle)

	if r.task.IsConnected() {
		r.request(ctx, r.task, commandGetLog, r.logReceived.Load)
	}

	r.operator.Report(result.Stats)
	logger.Info("task statistics",
		"gaze", result.Stats.GazeSamples,
		"headset_total", result.Stats.HeadsetTotal,
		"headset_valid_percent", result.Stats.HeadsetPercent(),
		"topview_total", result.Stats.TopViewTotal,
		"topview_valid_percent", result.Stats.TopViewPercent(),
		"streamer_packets", result.Stats.StreamerPackets,
	)

	if r.rating {
		rating, err := r.operator.Rating(ctx)
		if err != nil {
			logger.Info("rating not entered", "error", err)
			r.Interrupt()
			result.Outcome, result.Err = OutcomeInterrupted, ErrOperatorInterrupt
			return
		}
		result.Rating = rating
		r.log.Append("Rating", strconv.Itoa(rating))
	}

	result.Outcome = OutcomeCompleted
	flushed, err := r.log.Flush()
	if err != nil {
		logger.Error("task log not flushed", "error", err)
		r.operator.Warn("Could not save the task log; records are kept for the next attempt.")
		result.Err = fmt.Errorf("flushing task log: %w", err)
		return
	}
	result.LogPath = flushed.Path
	result.LogDigest = flushed.Digest
	result.Records = flushed.Records
}
