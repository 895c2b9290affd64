package cron

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManagerRejectsBadSpec(t *testing.T) {
	mgr := NewCronManager(nil, "not a spec")
	assert.Error(t, mgr.Start())
}

func TestManagerDefaultsSweepSpec(t *testing.T) {
	mgr := NewCronManager(nil, "")
	assert.Equal(t, defaultCallSweepSpec, mgr.callSweepSpec)
	assert.NoError(t, mgr.RegisterJobs())
	assert.Len(t, mgr.engine.Entries(), 1)
}
