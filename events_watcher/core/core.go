package core

import (
	"context"
	"time"

	chaincore "github.com/Ethernal-Tech/anchor-bridge-relayer/chain/core"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/common"
	"github.com/Ethernal-Tech/anchor-bridge-relayer/relayerstore"
)

// EffectLog collects the durable store mutations of one dispatch batch.
// The watcher applies them through the store's batch in the same
// transaction that advances the cursor, so the cursor never leads the
// effects. The scratch map lets handlers overlay their not-yet-committed
// state while later events of the same batch are dispatched.
type EffectLog struct {
	effects []func(batch relayerstore.Batch) error
	scratch map[string]any
}

func NewEffectLog() *EffectLog {
	return &EffectLog{scratch: map[string]any{}}
}

func (l *EffectLog) Add(effect func(batch relayerstore.Batch) error) {
	l.effects = append(l.effects, effect)
}

func (l *EffectLog) Put(key string, value any) {
	l.scratch[key] = value
}

func (l *EffectLog) Get(key string) (any, bool) {
	value, exists := l.scratch[key]

	return value, exists
}

func (l *EffectLog) Apply(batch relayerstore.Batch) error {
	for _, effect := range l.effects {
		if err := effect(batch); err != nil {
			return err
		}
	}

	return nil
}

// EventHandler reacts to one event kind. Delivery is at least once, so
// implementations must be idempotent keyed by (chain, block, log index).
// Durable writes go through the effect log, never directly to the store;
// a handler signals a transient condition by returning a retryable error,
// anything else is terminal for the event.
type EventHandler interface {
	Name() string
	Kinds() []chaincore.EventKind
	HandleEvent(ctx context.Context, ev *chaincore.Event, effects *EffectLog) error
}

type WatcherState int32

const (
	StateBooting WatcherState = iota
	StateBackfilling
	StateTailing
	StateDegraded
	StateStopped
)

func (s WatcherState) String() string {
	switch s {
	case StateBooting:
		return "Booting"
	case StateBackfilling:
		return "Backfilling"
	case StateTailing:
		return "Tailing"
	case StateDegraded:
		return "Degraded"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

type WatcherConfig struct {
	ChainID               common.ChainID
	Target                string
	Kinds                 []chaincore.EventKind
	DeployedAt            uint64
	Confirmations         uint64
	PollingInterval       time.Duration
	PrintProgressInterval time.Duration
	MaxBlocksPerStep      uint64
	MaxRetryAttempts      uint64
	// DegradedThreshold is the number of consecutive network failures
	// after which the watcher reports itself degraded.
	DegradedThreshold int
}

func (c *WatcherConfig) ApplyDefaults() {
	if c.PollingInterval == 0 {
		c.PollingInterval = 7 * time.Second
	}

	if c.MaxBlocksPerStep == 0 {
		c.MaxBlocksPerStep = 1_000
	}

	if c.MaxRetryAttempts == 0 {
		c.MaxRetryAttempts = common.DefaultRetryAttempts
	}

	if c.DegradedThreshold == 0 {
		c.DegradedThreshold = 5
	}
}

type EventWatcher interface {
	Start(ctx context.Context) error
	State() WatcherState
}
