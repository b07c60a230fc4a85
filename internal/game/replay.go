package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/threatlanes/threatlanes-server-go/internal/cards"
	"github.com/threatlanes/threatlanes-server-go/internal/content"
	"go.uber.org/zap"
)

// ReplayStep is one committed command and the checksum of the state it
// produced. ForceEnd is set instead of Action for an administrative end;
// SetPreference marks a steal preference change.
type ReplayStep struct {
	PlayerID        string
	Action          Action
	ForceEnd        string
	SetPreference   bool
	StealPreference map[cards.ResourceType]int
	Checksum        string
}

// Replay is everything needed to rebuild a match: its seed, seats, rules and
// the ordered list of committed commands.
type Replay struct {
	GameID       string
	Seed         uint64
	Seats        []PlayerSeat
	Rules        Rules
	Steps        []ReplayStep
	CurrentIndex int
	mu           sync.RWMutex
}

// NewReplay creates an empty replay for a match.
func NewReplay(gameID string, seed uint64, seats []PlayerSeat, rules Rules) *Replay {
	return &Replay{
		GameID: gameID,
		Seed:   seed,
		Seats:  append([]PlayerSeat(nil), seats...),
		Rules:  rules,
		Steps:  make([]ReplayStep, 0, 64),
	}
}

// Record appends a committed step.
func (r *Replay) Record(step ReplayStep) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Steps = append(r.Steps, step)
}

// Start resets the cursor to the first step.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CurrentIndex = 0
}

// Next returns the step under the cursor and advances it.
func (r *Replay) Next() (ReplayStep, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CurrentIndex >= len(r.Steps) {
		return ReplayStep{}, false
	}
	step := r.Steps[r.CurrentIndex]
	r.CurrentIndex++
	return step, true
}

// Size returns the number of recorded steps.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Steps)
}

// Run rebuilds the match from scratch and re-applies every step, checking
// each resulting checksum. It returns the final state.
func (r *Replay) Run(lib *content.Library) (*GameState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := NewGameState(r.GameID, r.Seats, lib, r.Rules, r.Seed)
	if err != nil {
		return nil, fmt.Errorf("replay setup: %w", err)
	}
	if err := s.Start(nil); err != nil {
		return nil, fmt.Errorf("replay start: %w", err)
	}
	for i, step := range r.Steps {
		switch {
		case step.ForceEnd != "":
			err = s.ForceEnd(nil, step.ForceEnd)
		case step.SetPreference:
			err = s.SetStealPreference(nil, step.PlayerID, step.StealPreference)
		default:
			err = Apply(s, nil, step.PlayerID, step.Action)
		}
		if err != nil {
			return s, fmt.Errorf("replay step %d (%s): %w", i, step.Action, err)
		}
		if step.Checksum != "" {
			if got := s.Checksum(); got != step.Checksum {
				return s, fmt.Errorf("replay diverged at step %d: checksum %s, recorded %s", i, got, step.Checksum)
			}
		}
	}
	return s, nil
}

// replayMetadata heads a saved replay file.
type replayMetadata struct {
	GameID    string
	Timestamp time.Time
	Version   int
	StepCount int
}

// SaveToFile writes the replay as gzipped gob to <directory>/<gameID>.replay.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", r.GameID))
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()
	encoder := gob.NewEncoder(gzipWriter)

	metadata := replayMetadata{
		GameID:    r.GameID,
		Timestamp: time.Now(),
		Version:   1,
		StepCount: len(r.Steps),
	}
	if err := encoder.Encode(&metadata); err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	header := replayHeader{Seed: r.Seed, Seats: r.Seats, Rules: r.Rules}
	if err := encoder.Encode(&header); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	for i := range r.Steps {
		if err := encoder.Encode(&r.Steps[i]); err != nil {
			return fmt.Errorf("failed to encode step %d: %w", i, err)
		}
	}
	return nil
}

type replayHeader struct {
	Seed  uint64
	Seats []PlayerSeat
	Rules Rules
}

// LoadReplayFromFile reads a replay written by SaveToFile.
func LoadReplayFromFile(directory, gameID string) (*Replay, error) {
	filename := filepath.Join(directory, fmt.Sprintf("%s.replay", gameID))
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()
	decoder := gob.NewDecoder(gzipReader)

	var metadata replayMetadata
	if err := decoder.Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}
	if metadata.Version != 1 {
		return nil, fmt.Errorf("unsupported replay version: %d", metadata.Version)
	}
	var header replayHeader
	if err := decoder.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	replay := NewReplay(metadata.GameID, header.Seed, header.Seats, header.Rules)
	for i := 0; i < metadata.StepCount; i++ {
		var step ReplayStep
		if err := decoder.Decode(&step); err != nil {
			return nil, fmt.Errorf("failed to decode step %d: %w", i, err)
		}
		replay.Steps = append(replay.Steps, step)
	}
	return replay, nil
}

// ReplayRecorder keeps the replays of running matches and flushes them to
// disk when a match ends.
type ReplayRecorder struct {
	logger  *zap.Logger
	mu      sync.RWMutex
	replays map[string]*Replay
	saveDir string
}

// NewReplayRecorder creates a recorder. An empty saveDir keeps replays in
// memory only.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	return &ReplayRecorder{
		logger:  logger,
		replays: make(map[string]*Replay),
		saveDir: saveDir,
	}
}

// StartRecording begins recording a match.
func (rr *ReplayRecorder) StartRecording(replay *Replay) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.replays[replay.GameID] = replay

	if rr.logger != nil {
		rr.logger.Info("started replay recording",
			zap.String("game_id", replay.GameID),
			zap.Uint64("seed", replay.Seed),
		)
	}
}

// Record appends a step to the match's replay, if one is being recorded.
func (rr *ReplayRecorder) Record(gameID string, step ReplayStep) {
	rr.mu.RLock()
	replay := rr.replays[gameID]
	rr.mu.RUnlock()
	if replay == nil {
		return
	}
	replay.Record(step)

	if rr.logger != nil {
		rr.logger.Debug("recorded replay step",
			zap.String("game_id", gameID),
			zap.Int("step_count", replay.Size()),
		)
	}
}

// GetReplay returns the replay for a match.
func (rr *ReplayRecorder) GetReplay(gameID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	replay, exists := rr.replays[gameID]
	return replay, exists
}

// SaveReplay writes a replay to disk. The replay stays in memory.
func (rr *ReplayRecorder) SaveReplay(gameID string) error {
	if rr.saveDir == "" {
		return nil
	}
	replay, exists := rr.GetReplay(gameID)
	if !exists {
		return fmt.Errorf("no replay found for game %s", gameID)
	}
	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}

	if rr.logger != nil {
		rr.logger.Info("saved replay to disk",
			zap.String("game_id", gameID),
			zap.Int("step_count", replay.Size()),
			zap.String("directory", rr.saveDir),
		)
	}
	return nil
}

// LoadReplay reads a replay from the recorder's directory.
func (rr *ReplayRecorder) LoadReplay(gameID string) (*Replay, error) {
	replay, err := LoadReplayFromFile(rr.saveDir, gameID)
	if err != nil {
		return nil, err
	}
	if rr.logger != nil {
		rr.logger.Info("loaded replay from disk",
			zap.String("game_id", gameID),
			zap.Int("step_count", replay.Size()),
		)
	}
	return replay, nil
}

// ClearReplay forgets a replay without saving it.
func (rr *ReplayRecorder) ClearReplay(gameID string) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	delete(rr.replays, gameID)
}
