package workflow

import (
	"adsplice/internal/queue"
	"adsplice/internal/stage"
)

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Analyzer  stage.Handler
	Planner   stage.Handler
	Generator stage.Handler
	Splicer   stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
// Stages whose handler is nil are skipped, which lets tests wire a partial
// pipeline, but production callers should register all four.
func (m *Manager) ConfigureStages(set StageSet) {
	stages := make([]pipelineStage, 0, 4)

	if set.Analyzer != nil {
		stages = append(stages, pipelineStage{
			name:             "analyzer",
			handler:          set.Analyzer,
			startStatus:      queue.StatusPending,
			processingStatus: queue.StatusAnalyzing,
			doneStatus:       queue.StatusAnalyzed,
		})
	}
	if set.Planner != nil {
		stages = append(stages, pipelineStage{
			name:             "planner",
			handler:          set.Planner,
			startStatus:      queue.StatusAnalyzed,
			processingStatus: queue.StatusPlanning,
			doneStatus:       queue.StatusPlanned,
		})
	}
	if set.Generator != nil {
		stages = append(stages, pipelineStage{
			name:             "generator",
			handler:          set.Generator,
			startStatus:      queue.StatusPlanned,
			processingStatus: queue.StatusGenerating,
			doneStatus:       queue.StatusGenerated,
		})
	}
	if set.Splicer != nil {
		stages = append(stages, pipelineStage{
			name:             "splicer",
			handler:          set.Splicer,
			startStatus:      queue.StatusGenerated,
			processingStatus: queue.StatusComposing,
			doneStatus:       queue.StatusCompleted,
		})
	}

	stageByStart := make(map[queue.Status]pipelineStage, len(stages))
	statusOrder := make([]queue.Status, 0, len(stages))
	processing := make([]queue.Status, 0, len(stages))
	seenProcessing := make(map[queue.Status]struct{}, len(stages))
	for _, stg := range stages {
		stageByStart[stg.startStatus] = stg
		statusOrder = append(statusOrder, stg.startStatus)
		if stg.processingStatus != "" {
			if _, ok := seenProcessing[stg.processingStatus]; !ok {
				processing = append(processing, stg.processingStatus)
				seenProcessing[stg.processingStatus] = struct{}{}
			}
		}
	}

	m.mu.Lock()
	m.stages = stages
	m.stageByStart = stageByStart
	m.statusOrder = statusOrder
	m.processingStatuses = processing
	m.mu.Unlock()
}

func (m *Manager) stageForStatus(status queue.Status) (pipelineStage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stg, ok := m.stageByStart[status]
	return stg, ok
}
