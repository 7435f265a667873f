// Copyright 2026 The Gazelog Authors
// SPDX-License-Identifier: Apache-2.0

package recorder

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/gazelog/gazelog/lib/applog"
	"github.com/gazelog/gazelog/lib/cell"
	"github.com/gazelog/gazelog/lib/geometry"
	"github.com/gazelog/gazelog/lib/schema"
)

// verboseEvery is the sample period of the progress log line.
const verboseEvery = 50

// handState is one hand cell: the latest location and the sample
// counters, updated together under the cell's lock.
type handState struct {
	location schema.HandLocation
	total    int
	valid    int
}

// fusion owns the cells and turns each gaze sample into a record.
type fusion struct {
	log     *applog.Log
	logger  *slog.Logger
	offset  geometry.Vector
	verbose bool

	headset *cell.Cell[handState]
	topView *cell.Cell[handState]
	message *cell.Cell[string]
	head    *cell.Cell[geometry.Rotation]

	// mu serializes fuse with attach and detach, so that detach
	// returns only after the last record is appended.
	mu        sync.Mutex
	attached  bool
	samples   int
	startTime int64
}

func newFusion(log *applog.Log, logger *slog.Logger, offset geometry.Vector, verbose bool) *fusion {
	return &fusion{
		log:     log,
		logger:  logger,
		offset:  offset,
		verbose: verbose,
		headset: cell.New(handState{}),
		topView: cell.New(handState{}),
		message: cell.New(""),
		head:    cell.New(geometry.Rotation{}),
	}
}

// clear empties the locations and the pending message, keeping the
// counters.
func (f *fusion) clear() {
	f.headset.Update(func(state *handState) { state.location = schema.HandLocation{} })
	f.topView.Update(func(state *handState) { state.location = schema.HandLocation{} })
	f.message.Write("")
}

// attach resets the counters and starts fusing gaze samples.
func (f *fusion) attach() {
	f.headset.Update(func(state *handState) { state.total, state.valid = 0, 0 })
	f.topView.Update(func(state *handState) { state.total, state.valid = 0, 0 })

	f.mu.Lock()
	f.attached = true
	f.samples = 0
	f.startTime = 0
	f.mu.Unlock()
}

// detach stops fusing. A sample being fused when detach is called is
// appended before detach returns.
func (f *fusion) detach() {
	f.mu.Lock()
	f.attached = false
	f.mu.Unlock()
}

// post makes message the pending message, replacing one not yet
// attributed to a record.
func (f *fusion) post(message string) {
	f.message.Write(message)
}

// onHeadsetHand receives the head-mounted tracker. Tracking losses are
// stored as they are: transforming the zero sentinel would turn it
// into the mounting offset.
func (f *fusion) onHeadsetHand(raw schema.HandLocation) {
	location := raw
	if !raw.IsEmpty() {
		location = raw.Transform(f.head.Read(), f.offset)
	}
	f.headset.Update(func(state *handState) {
		state.location = location
		state.total++
		if !raw.IsEmpty() {
			state.valid++
		}
	})
}

// onTopView receives the UDP hand streamer, which already reports in
// the shared frame.
func (f *fusion) onTopView(location schema.HandLocation) {
	f.topView.Update(func(state *handState) {
		state.location = location
		state.total++
		if !location.IsEmpty() {
			state.valid++
		}
	})
}

// onGaze fuses one gaze sample. Samples arriving while detached only
// update the head rotation.
func (f *fusion) onGaze(sample schema.EyeHead) {
	f.head.Write(sample.Head)

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.attached {
		return
	}

	f.samples++
	if f.startTime == 0 {
		f.startTime = sample.Timestamp
	}

	message := f.message.Swap("")
	headset := f.headset.Read()
	topView := f.topView.Read()

	f.log.Append(formatRecord(sample, headset.location, topView.location, message)...)

	if f.samples%verboseEvery == 0 {
		f.logProgress(sample, headset, topView)
	}
}

func (f *fusion) logProgress(sample schema.EyeHead, headset, topView handState) {
	elapsed := sample.Timestamp - f.startTime
	if !f.verbose {
		f.logger.Debug("tracking",
			"elapsed", elapsed,
			"gaze", f.samples,
			"headset_hand", headset.total,
			"topview_hand", topView.total,
		)
		return
	}
	f.logger.Info("tracking",
		"elapsed", elapsed,
		"gaze_yaw", sample.Eye.Yaw,
		"gaze_pitch", sample.Eye.Pitch,
		"pupil", sample.Pupil,
		"head_yaw", sample.Head.Yaw,
		"head_pitch", sample.Head.Pitch,
		"headset_hand", headset.location,
		"topview_hand", topView.location,
	)
}

// counts returns the gaze and hand counters of the current task.
func (f *fusion) counts() TaskStats {
	headset := f.headset.Read()
	topView := f.topView.Read()
	f.mu.Lock()
	samples := f.samples
	f.mu.Unlock()
	return TaskStats{
		GazeSamples:  samples,
		HeadsetTotal: headset.total,
		HeadsetValid: headset.valid,
		TopViewTotal: topView.total,
		TopViewValid: topView.valid,
	}
}

// recordFields is the number of fields formatRecord returns.
const recordFields = 1 + 4 + 4 + 12 + 12 + 1

// formatRecord lays out one record after the log's own timestamp:
// gaze timestamp, eye yaw and pitch, head yaw and pitch, the four
// pupil values, the head-mounted hand points, the top-view hand points,
// and the attributed message.
func formatRecord(sample schema.EyeHead, headset, topView schema.HandLocation, message string) []string {
	fields := make([]string, 0, recordFields)
	fields = append(fields,
		strconv.FormatInt(sample.Timestamp, 10),
		fixed4(sample.Eye.Yaw), fixed4(sample.Eye.Pitch),
		fixed4(sample.Head.Yaw), fixed4(sample.Head.Pitch),
		fixed4(float64(sample.Pupil.OpennessLeft)), fixed4(float64(sample.Pupil.SizeLeft)),
		fixed4(float64(sample.Pupil.OpennessRight)), fixed4(float64(sample.Pupil.SizeRight)),
	)
	for _, hand := range [2]schema.HandLocation{headset, topView} {
		for _, point := range hand.Points() {
			fields = append(fields, fixed2(point.X), fixed2(point.Y), fixed2(point.Z))
		}
	}
	return append(fields, message)
}

func fixed4(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
func fixed2(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
