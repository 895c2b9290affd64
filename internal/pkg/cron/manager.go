package cron

import (
	"Parley/internal/job"
	log "log/slog"

	"github.com/robfig/cron/v3"
)

const defaultCallSweepSpec = "*/5 * * * * *"

type Manager struct {
	engine         *cron.Cron
	callTimeoutJob *job.CallTimeoutJob
	callSweepSpec  string
}

func NewCronManager(callTimeoutJob *job.CallTimeoutJob, callSweepSpec string) *Manager {
	if callSweepSpec == "" {
		callSweepSpec = defaultCallSweepSpec
	}
	return &Manager{
		engine:         cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		callTimeoutJob: callTimeoutJob,
		callSweepSpec:  callSweepSpec,
	}
}

// RegisterJobs 注册定时任务
func (s *Manager) RegisterJobs() error {
	if _, err := s.engine.AddJob(s.callSweepSpec, s.callTimeoutJob); err != nil {
		return err
	}
	return nil
}

// Start 注册任务并启动引擎，表达式非法时返回错误
func (s *Manager) Start() error {
	if err := s.RegisterJobs(); err != nil {
		return err
	}
	log.Info("Cron 定时任务引擎启动", "call_sweep", s.callSweepSpec, "entries", len(s.engine.Entries()))
	s.engine.Start()
	return nil
}

func (s *Manager) Stop() {
	log.Info("Cron 定时任务引擎停止")
	<-s.engine.Stop().Done()
}
