package engine

import (
	"sync/atomic"

	"github.com/marketcalls/openalgo-sub001/internal/model"
)

// modeCell is the process-wide execution mode toggle. Reads vastly
// outnumber writes, so it is a single atomic word.
type modeCell struct {
	analyze int32 // 0=live, 1=analyze
}

func (m *modeCell) set(mode string) {
	if mode == model.ModeAnalyze {
		atomic.StoreInt32(&m.analyze, 1)
		return
	}
	atomic.StoreInt32(&m.analyze, 0)
}

func (m *modeCell) get() string {
	if atomic.LoadInt32(&m.analyze) == 1 {
		return model.ModeAnalyze
	}
	return model.ModeLive
}

// SetMode switches the gateway between live and analyze execution.
// Anything other than "analyze" selects live.
func (e *Engine) SetMode(mode string) {
	e.mode.set(mode)
	if e.Metrics != nil {
		if mode == model.ModeAnalyze {
			e.Metrics.ModeState.Set(1)
		} else {
			e.Metrics.ModeState.Set(0)
		}
	}
}

// Mode returns the current execution mode.
func (e *Engine) Mode() string { return e.mode.get() }
